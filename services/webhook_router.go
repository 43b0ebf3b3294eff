package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"wabot/broker"
	"wabot/config"
	"wabot/models"
	"wabot/store"
	"wabot/tools"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventConnectionUpdate = "connection.update"
	EventQRCodeUpdated    = "qrcode.updated"
	EventMessagesUpsert   = "messages.upsert"
)

// Event is one gateway callback.
type Event struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

// NormalizeEventName maps "CONNECTION_UPDATE" and "connection.update" to the same name.
func NormalizeEventName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", ".")
}

// WebhookRouter applies gateway callbacks to the store. Replays are harmless.
type WebhookRouter struct {
	store     *store.Store
	publisher broker.Publisher
	qrTTL     time.Duration
	log       *zap.Logger

	Now func() time.Time
}

func NewWebhookRouter(cfg config.LifecycleConfig, st *store.Store, publisher broker.Publisher) *WebhookRouter {
	if publisher == nil {
		publisher = broker.Noop{}
	}
	return &WebhookRouter{
		store:     st,
		publisher: publisher,
		qrTTL:     cfg.QRTTL(),
		log:       zap.L().Named("webhook"),
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch routes ev to its handler. Handler failures are logged, never returned,
// so the gateway always sees a successful delivery.
func (w *WebhookRouter) Dispatch(ctx context.Context, ev Event) {
	name := NormalizeEventName(ev.Event)
	log := w.log.With(zap.String("event", name), zap.String("instance", ev.Instance))

	var err error
	switch name {
	case EventConnectionUpdate:
		err = w.handleConnectionUpdate(ev)
	case EventQRCodeUpdated:
		err = w.handleQRCodeUpdated(ev)
	case EventMessagesUpsert:
		err = w.handleMessagesUpsert(ctx, log, ev)
	default:
		log.Debug("ignored event")
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		log.Warn("event for unknown instance dropped")
		return
	}
	if err != nil {
		log.Error("webhook handler failed", zap.Error(err))
	}
}

func mapGatewayState(state string) string {
	switch strings.ToLower(state) {
	case "open":
		return models.INSTANCE_STATUS_CONNECTED
	case "connecting":
		return models.INSTANCE_STATUS_CONNECTING
	default:
		return models.INSTANCE_STATUS_DISCONNECTED
	}
}

func (w *WebhookRouter) handleConnectionUpdate(ev Event) error {
	var upd tools.ConnectionUpdate
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &upd); err != nil {
			return err
		}
	}

	inst, err := w.store.FindInstanceByName(ev.Instance)
	if err != nil {
		return err
	}

	now := w.Now()
	status := mapGatewayState(upd.RawState())
	fields := map[string]any{
		"status":    status,
		"last_seen": now,
	}
	if status == models.INSTANCE_STATUS_CONNECTED {
		// a replayed open keeps the original pairing time
		if inst.Status != models.INSTANCE_STATUS_CONNECTED || inst.ConnectedAt == nil {
			fields["connected_at"] = now
		}
		fields["qr_code"] = nil
		fields["qr_code_expires_at"] = nil
		if phone := upd.Phone(); phone != "" {
			fields["phone_number"] = phone
		}
	}
	return w.store.UpdateInstance(ev.Instance, fields)
}

func (w *WebhookRouter) handleQRCodeUpdated(ev Event) error {
	var upd tools.QRCodeUpdate
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &upd); err != nil {
			return err
		}
	}
	qr := upd.QR()
	if qr == "" {
		w.log.Info("qrcode.updated without qr", zap.String("instance", ev.Instance))
		return nil
	}

	return w.store.UpdateInstance(ev.Instance, map[string]any{
		"qr_code":            qr,
		"qr_code_expires_at": w.Now().Add(w.qrTTL),
		"status":             models.INSTANCE_STATUS_CONNECTING,
	})
}

func (w *WebhookRouter) handleMessagesUpsert(ctx context.Context, log *zap.Logger, ev Event) error {
	messages, err := tools.ParseUpsertMessages(ev.Data)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	inst, err := w.store.FindInstanceByName(ev.Instance)
	if err != nil {
		return err
	}

	for _, m := range messages {
		if m.Key == nil || m.Key.RemoteJid == "" {
			log.Debug("message without key skipped")
			continue
		}
		if err := w.storeMessage(ctx, log, *inst, m); err != nil {
			log.Error("store message failed", zap.String("remote_jid", m.Key.RemoteJid), zap.Error(err))
		}
	}
	return nil
}

func (w *WebhookRouter) storeMessage(ctx context.Context, log *zap.Logger, inst models.WhatsAppInstance, m tools.UpsertMessage) error {
	now := w.Now()
	phone := tools.StripJID(m.Key.RemoteJid)

	var pushName *string
	if name := strings.TrimSpace(m.PushName); name != "" && !tools.IsGroupJID(m.Key.RemoteJid) {
		pushName = &name
	}

	sentAt := now
	if at, ok := m.SentAt(); ok {
		sentAt = at
	}

	conv, err := w.store.TouchConversation(inst, phone, pushName, sentAt)
	if err != nil {
		return err
	}

	content, mediaType := m.Content()
	msg := models.WhatsAppMessage{
		WhatsAppInstanceID: inst.ID,
		ConversationID:     conv.ID,
		MessageID:          m.Key.ID,
		Direction:          models.MESSAGE_DIRECTION_INCOMING,
		Content:            content,
		Status:             models.MESSAGE_STATUS_SENT,
		SentAt:             &sentAt,
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if m.Key.FromMe {
		msg.Direction = models.MESSAGE_DIRECTION_OUTGOING
	}
	if mediaType != "" {
		msg.MediaType = &mediaType
	}

	inserted, err := w.store.InsertMessageOnce(&msg)
	if err != nil {
		return err
	}
	if !inserted {
		log.Debug("duplicate message ignored", zap.String("message_id", msg.MessageID))
		return nil
	}

	env := broker.NewMessageEnvelope(inst, *conv, msg, now)
	if err := w.publisher.Publish(ctx, broker.MessageRoutingKey(msg.Direction), env); err != nil {
		log.Warn("publish message failed", zap.String("message_id", msg.MessageID), zap.Error(err))
	}
	return nil
}
