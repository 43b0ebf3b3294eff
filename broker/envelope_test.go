package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"wabot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoutingKey(t *testing.T) {
	assert.Equal(t, KeyMessageIncoming, MessageRoutingKey(models.MESSAGE_DIRECTION_INCOMING))
	assert.Equal(t, KeyMessageOutgoing, MessageRoutingKey(models.MESSAGE_DIRECTION_OUTGOING))
	assert.Equal(t, KeyMessageIncoming, MessageRoutingKey(""))
}

func TestNewMessageEnvelope_JSON(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	name := "Ana"
	env := NewMessageEnvelope(
		models.WhatsAppInstance{InstanceName: "bot-b1", BotConfigurationID: "b1"},
		models.WhatsAppConversation{ID: 7, CustomerPhone: "5511988887777", CustomerName: &name},
		models.WhatsAppMessage{MessageID: "ABC", Direction: models.MESSAGE_DIRECTION_INCOMING, Content: "Olá", SentAt: &now},
		now,
	)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded struct {
		Meta map[string]any `json:"meta"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotEmpty(t, decoded.Meta["id"])
	assert.Equal(t, TypeMessageStored, decoded.Meta["type"])
	assert.Equal(t, "2026-01-02T03:04:05Z", decoded.Meta["occurred_at"])
	assert.Equal(t, "bot-b1", decoded.Data["instance_name"])
	assert.Equal(t, "ABC", decoded.Data["message_id"])
	assert.Equal(t, "Ana", decoded.Data["customer_name"])
	assert.NotContains(t, decoded.Data, "media_type")
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), KeyMessageIncoming, Envelope{}))
	assert.NoError(t, p.Close())
}
