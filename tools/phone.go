package tools

import (
	"strings"
	"unicode"
)

// StripJID turns a WhatsApp jid ("5511999990000:12@s.whatsapp.net") into the bare number.
func StripJID(jid string) string {
	jid = strings.TrimSpace(jid)
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		jid = jid[:i]
	}
	return jid
}

// IsGroupJID reports whether the jid addresses a group chat.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(strings.TrimSpace(jid), "@g.us")
}

// DigitsOnly keeps only the digits of a phone typed by a human ("+55 (11) 99999-0000").
func DigitsOnly(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
