package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
)

// BotConfiguration is the tenant bot managed by the dashboard. The WhatsApp core only reads it.
type BotConfiguration struct {
	ID                   string     `gorm:"primary_key;type:varchar(64)" json:"id"`
	OrganizationID       string     `gorm:"column:organization_id;index" json:"organization_id"`
	BotName              string     `gorm:"column:bot_name;not null" json:"bot_name"`
	CompanyName          string     `gorm:"column:company_name" json:"company_name"`
	ToneOfVoice          string     `gorm:"column:tone_of_voice;default:'professional'" json:"tone_of_voice"`
	SystemPrompt         string     `gorm:"column:system_prompt;type:text" json:"system_prompt"`
	WhatsAppNumber       *string    `gorm:"column:whatsapp_number;index" json:"whatsapp_number"`
	TypebotID            *string    `gorm:"column:typebot_id" json:"typebot_id"`
	PrimaryColor         string     `gorm:"column:primary_color" json:"primary_color"`
	AvatarURL            *string    `gorm:"column:avatar_url" json:"avatar_url"`
	KnowledgeBaseEnabled bool       `gorm:"column:knowledge_base_enabled;not null" json:"knowledge_base_enabled"`
	IsActive             bool       `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt            *time.Time `json:"created_at"`
	UpdatedAt            *time.Time `json:"updated_at"`
}

func (BotConfiguration) TableName() string {
	return "bot_configurations"
}

// BeforeCreate assigns a uuid when the caller did not choose an id.
func (b *BotConfiguration) BeforeCreate(scope *gorm.Scope) error {
	if strings.TrimSpace(b.ID) == "" {
		return scope.SetColumn("ID", uuid.NewString())
	}
	return nil
}

// Phone returns the configured WhatsApp number, or nil when unset.
func (b BotConfiguration) Phone() *string {
	if b.WhatsAppNumber == nil || strings.TrimSpace(*b.WhatsAppNumber) == "" {
		return nil
	}
	p := strings.TrimSpace(*b.WhatsAppNumber)
	return &p
}
