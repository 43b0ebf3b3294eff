package models

import "time"

/************************************************
/**** MARK: INSTANCE STATUS ****/
/************************************************/
const INSTANCE_STATUS_DISCONNECTED = "disconnected"
const INSTANCE_STATUS_CONNECTING = "connecting"
const INSTANCE_STATUS_CONNECTED = "connected"

// InstanceNamePrefix + bot id is the deterministic gateway instance name.
const InstanceNamePrefix = "bot-"

// WhatsAppInstance is the local mirror of one gateway session. One row per bot.
//
// connected implies no QR fields; connecting implies the QR expiry is unset or still ahead.
type WhatsAppInstance struct {
	ID                 int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	BotConfigurationID string     `gorm:"column:bot_configuration_id;not null;index" json:"bot_configuration_id"`
	InstanceName       string     `gorm:"column:instance_name;not null;unique_index" json:"instance_name"`
	Status             string     `gorm:"column:status;not null;default:'disconnected'" json:"status"`
	QRCode             *string    `gorm:"column:qr_code;type:text" json:"qr_code"`
	QRCodeExpiresAt    *time.Time `gorm:"column:qr_code_expires_at" json:"qr_code_expires_at"`
	PhoneNumber        *string    `gorm:"column:phone_number" json:"phone_number"`
	ConnectedAt        *time.Time `gorm:"column:connected_at" json:"connected_at"`
	LastSeen           *time.Time `gorm:"column:last_seen" json:"last_seen"`
	CreatedAt          *time.Time `json:"created_at"`
	UpdatedAt          *time.Time `json:"updated_at"`
}

func (WhatsAppInstance) TableName() string {
	return "whatsapp_instances"
}

func InstanceNameForBot(botID string) string {
	return InstanceNamePrefix + botID
}

// HasLiveQR reports whether the row holds a QR that can still be scanned at now.
func (i WhatsAppInstance) HasLiveQR(now time.Time) bool {
	if i.Status != INSTANCE_STATUS_CONNECTING || i.QRCode == nil || *i.QRCode == "" {
		return false
	}
	return i.QRCodeExpiresAt != nil && i.QRCodeExpiresAt.After(now)
}

// Masked returns a copy safe to show a polling client: a stale QR is reported as absent.
func (i WhatsAppInstance) Masked(now time.Time) WhatsAppInstance {
	if i.Status == INSTANCE_STATUS_CONNECTING && i.QRCodeExpiresAt != nil && !i.QRCodeExpiresAt.After(now) {
		i.QRCode = nil
		i.QRCodeExpiresAt = nil
	}
	return i
}
