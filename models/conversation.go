package models

import "time"

/************************************************
/**** MARK: CONVERSATION STATUS ****/
/************************************************/
const CONVERSATION_STATUS_ACTIVE = "active"
const CONVERSATION_STATUS_ARCHIVED = "archived"
const CONVERSATION_STATUS_CLOSED = "closed"

// WhatsAppConversation is the thread with one customer phone on one instance.
type WhatsAppConversation struct {
	ID                 int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	WhatsAppInstanceID int64      `gorm:"column:whatsapp_instance_id;not null;unique_index:idx_conversation_instance_phone" json:"whatsapp_instance_id"`
	BotConfigurationID string     `gorm:"column:bot_configuration_id;index" json:"bot_configuration_id"`
	CustomerPhone      string     `gorm:"column:customer_phone;not null;unique_index:idx_conversation_instance_phone" json:"customer_phone"`
	CustomerName       *string    `gorm:"column:customer_name" json:"customer_name"`
	LastMessageAt      *time.Time `gorm:"column:last_message_at;index" json:"last_message_at"`
	Status             string     `gorm:"column:status;not null;default:'active'" json:"status"`
	CreatedAt          *time.Time `json:"created_at"`
	UpdatedAt          *time.Time `json:"updated_at"`
}

func (WhatsAppConversation) TableName() string {
	return "whatsapp_conversations"
}
