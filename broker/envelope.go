package broker

import (
	"time"

	"wabot/models"

	"github.com/google/uuid"
)

const (
	KeyMessageIncoming = "whatsapp.message.incoming"
	KeyMessageOutgoing = "whatsapp.message.outgoing"

	TypeMessageStored = "whatsapp.message.stored.v1"

	producer = "wabot"
)

type Meta struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Producer   string    `json:"producer,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// MessageStored is published once per message written by the webhook pipeline.
type MessageStored struct {
	InstanceName       string    `json:"instance_name"`
	BotConfigurationID string    `json:"bot_configuration_id"`
	ConversationID     int64     `json:"conversation_id"`
	CustomerPhone      string    `json:"customer_phone"`
	CustomerName       *string   `json:"customer_name,omitempty"`
	MessageID          string    `json:"message_id"`
	Direction          string    `json:"direction"`
	Content            string    `json:"content"`
	MediaType          *string   `json:"media_type,omitempty"`
	SentAt             time.Time `json:"sent_at"`
}

// MessageRoutingKey maps a message direction to its topic.
func MessageRoutingKey(direction string) string {
	if direction == models.MESSAGE_DIRECTION_OUTGOING {
		return KeyMessageOutgoing
	}
	return KeyMessageIncoming
}

func NewMessageEnvelope(inst models.WhatsAppInstance, conv models.WhatsAppConversation, msg models.WhatsAppMessage, now time.Time) Envelope {
	data := MessageStored{
		InstanceName:       inst.InstanceName,
		BotConfigurationID: inst.BotConfigurationID,
		ConversationID:     conv.ID,
		CustomerPhone:      conv.CustomerPhone,
		CustomerName:       conv.CustomerName,
		MessageID:          msg.MessageID,
		Direction:          msg.Direction,
		Content:            msg.Content,
		MediaType:          msg.MediaType,
	}
	if msg.SentAt != nil {
		data.SentAt = *msg.SentAt
	}
	return Envelope{
		Meta: Meta{
			ID:         uuid.NewString(),
			Type:       TypeMessageStored,
			Producer:   producer,
			OccurredAt: now,
		},
		Data: data,
	}
}
