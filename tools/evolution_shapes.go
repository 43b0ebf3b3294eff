package tools

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Gateway payloads differ between Evolution API versions, so the fields below accept
// every shape seen in the wild and expose one accessor per concept.

// flexString decodes a JSON string, or an object carrying the value under "id" or "base64".
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if b[0] == '{' {
		var obj struct {
			ID     string `json:"id"`
			Base64 string `json:"base64"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		if obj.Base64 != "" {
			*f = flexString(obj.Base64)
		} else {
			*f = flexString(obj.ID)
		}
	}
	return nil
}

// flexUnix decodes epoch seconds sent as a number, a numeric string or a protobuf Long.
type flexUnix int64

func (f *flexUnix) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil
		}
		*f = flexUnix(n)
	case '{':
		var long struct {
			Low  int64 `json:"low"`
			High int64 `json:"high"`
		}
		if err := json.Unmarshal(b, &long); err != nil {
			return err
		}
		*f = flexUnix(long.High<<32 | (long.Low & 0xffffffff))
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		if v, err := n.Int64(); err == nil {
			*f = flexUnix(v)
		} else if fv, err := n.Float64(); err == nil {
			*f = flexUnix(int64(fv))
		}
	}
	return nil
}

/************************************************
/**** MARK: INSTANCE STATE ****/
/************************************************/

// InstanceState is the gateway's view of one session.
type InstanceState struct {
	Name  string `json:"instanceName"`
	State string `json:"state"`
	Owner string `json:"owner,omitempty"`
}

func (s InstanceState) IsOpen() bool {
	return strings.EqualFold(s.State, "open")
}

type fetchedInstance struct {
	Instance *struct {
		InstanceName string     `json:"instanceName"`
		State        string     `json:"state"`
		Status       string     `json:"status"`
		Owner        flexString `json:"owner"`
	} `json:"instance"`
	Name             string     `json:"name"`
	InstanceName     string     `json:"instanceName"`
	State            string     `json:"state"`
	ConnectionStatus string     `json:"connectionStatus"`
	OwnerJid         flexString `json:"ownerJid"`
	Owner            flexString `json:"owner"`
}

func (f fetchedInstance) toState() InstanceState {
	var st InstanceState
	if f.Instance != nil {
		st.Name = f.Instance.InstanceName
		st.State = firstNonEmpty(f.Instance.State, f.Instance.Status)
		st.Owner = StripJID(string(f.Instance.Owner))
	}
	st.Name = firstNonEmpty(st.Name, f.InstanceName, f.Name)
	st.State = firstNonEmpty(st.State, f.State, f.ConnectionStatus)
	st.Owner = firstNonEmpty(st.Owner, StripJID(string(f.OwnerJid)), StripJID(string(f.Owner)))
	return st
}

func parseFetchedInstances(raw []byte) ([]InstanceState, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var items []fetchedInstance
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
	} else {
		var one fetchedInstance
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, err
		}
		items = append(items, one)
	}

	out := make([]InstanceState, 0, len(items))
	for _, it := range items {
		st := it.toState()
		if st.Name == "" && st.State == "" {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func parseConnectQR(raw []byte) string {
	var resp struct {
		Base64 string     `json:"base64"`
		Code   string     `json:"code"`
		QRCode flexString `json:"qrcode"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ""
	}
	return firstNonEmpty(resp.Base64, resp.Code, string(resp.QRCode))
}

/************************************************
/**** MARK: WEBHOOK: CONNECTION / QR ****/
/************************************************/

// ConnectionUpdate is the data of a connection.update event.
type ConnectionUpdate struct {
	State            string     `json:"state"`
	ConnectionStatus string     `json:"connectionStatus"`
	PhoneNumber      string     `json:"phoneNumber"`
	Owner            flexString `json:"owner"`
	Wuid             string     `json:"wuid"`
	ID               string     `json:"id"`
}

// RawState is the gateway state string, whichever field carried it.
func (u ConnectionUpdate) RawState() string {
	return firstNonEmpty(u.State, u.ConnectionStatus)
}

// Phone is the paired number with the jid domain and device suffix removed.
func (u ConnectionUpdate) Phone() string {
	return StripJID(firstNonEmpty(u.PhoneNumber, string(u.Owner), u.Wuid, u.ID))
}

// QRCodeUpdate is the data of a qrcode.updated event.
type QRCodeUpdate struct {
	QRCode flexString `json:"qrcode"`
	Base64 string     `json:"base64"`
}

func (q QRCodeUpdate) QR() string {
	return firstNonEmpty(string(q.QRCode), q.Base64)
}

/************************************************
/**** MARK: WEBHOOK: MESSAGES ****/
/************************************************/

type MessageKey struct {
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type mediaCaption struct {
	Caption  string `json:"caption"`
	FileName string `json:"fileName"`
}

type MessageContent struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
	ImageMessage    *mediaCaption    `json:"imageMessage"`
	AudioMessage    *json.RawMessage `json:"audioMessage"`
	VideoMessage    *mediaCaption    `json:"videoMessage"`
	DocumentMessage *mediaCaption    `json:"documentMessage"`
	StickerMessage  *json.RawMessage `json:"stickerMessage"`
}

// UpsertMessage is one entry of a messages.upsert event.
type UpsertMessage struct {
	Key              *MessageKey     `json:"key"`
	PushName         string          `json:"pushName"`
	MessageTimestamp flexUnix        `json:"messageTimestamp"`
	Message          *MessageContent `json:"message"`
}

// SentAt returns the gateway timestamp, or ok=false when absent.
func (m UpsertMessage) SentAt() (time.Time, bool) {
	if m.MessageTimestamp <= 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(m.MessageTimestamp), 0).UTC(), true
}

// Content returns the display text and the media type ("" for plain text).
// Text wins over media; media without a caption gets a placeholder.
func (m UpsertMessage) Content() (string, string) {
	c := m.Message
	if c == nil {
		return "", ""
	}
	switch {
	case c.Conversation != "":
		return c.Conversation, ""
	case c.ExtendedTextMessage != nil && c.ExtendedTextMessage.Text != "":
		return c.ExtendedTextMessage.Text, ""
	case c.ImageMessage != nil:
		return firstNonEmpty(c.ImageMessage.Caption, "[Imagem]"), "image"
	case c.AudioMessage != nil:
		return "[Áudio]", "audio"
	case c.VideoMessage != nil:
		return firstNonEmpty(c.VideoMessage.Caption, "[Vídeo]"), "video"
	case c.DocumentMessage != nil:
		return firstNonEmpty(c.DocumentMessage.FileName, "[Documento]"), "document"
	case c.StickerMessage != nil:
		return "[Figurinha]", "sticker"
	}
	return "", ""
}

// ParseUpsertMessages accepts a single message, an array, or {"messages": [...]}.
func ParseUpsertMessages(raw json.RawMessage) ([]UpsertMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '[' {
		var list []UpsertMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapper struct {
		Messages []UpsertMessage `json:"messages"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, err
	}
	if wrapper.Messages != nil {
		return wrapper.Messages, nil
	}

	var one UpsertMessage
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []UpsertMessage{one}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
