package models

import "time"

/************************************************
/**** MARK: MESSAGE DIRECTION / STATUS ****/
/************************************************/
const MESSAGE_DIRECTION_INCOMING = "incoming"
const MESSAGE_DIRECTION_OUTGOING = "outgoing"

const MESSAGE_STATUS_SENT = "sent"

const MEDIA_TYPE_IMAGE = "image"
const MEDIA_TYPE_AUDIO = "audio"
const MEDIA_TYPE_VIDEO = "video"
const MEDIA_TYPE_DOCUMENT = "document"
const MEDIA_TYPE_STICKER = "sticker"

// WhatsAppMessage is append-only; (instance, message_id) identifies a gateway delivery.
type WhatsAppMessage struct {
	ID                 int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	WhatsAppInstanceID int64      `gorm:"column:whatsapp_instance_id;not null;unique_index:idx_message_instance_message" json:"whatsapp_instance_id"`
	ConversationID     int64      `gorm:"column:conversation_id;not null;index" json:"conversation_id"`
	MessageID          string     `gorm:"column:message_id;not null;unique_index:idx_message_instance_message" json:"message_id"`
	Direction          string     `gorm:"column:direction;not null" json:"direction"`
	Content            string     `gorm:"column:content;type:text" json:"content"`
	MediaURL           *string    `gorm:"column:media_url" json:"media_url"`
	MediaType          *string    `gorm:"column:media_type" json:"media_type"`
	Status             string     `gorm:"column:status;not null;default:'sent'" json:"status"`
	SentAt             *time.Time `gorm:"column:sent_at" json:"sent_at"`
	CreatedAt          *time.Time `json:"created_at"`
}

func (WhatsAppMessage) TableName() string {
	return "whatsapp_messages"
}
