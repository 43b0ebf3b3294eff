package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wabot/config"
	"wabot/models"
	"wabot/store"
	"wabot/tools"

	"go.uber.org/zap"
)

const StatusAlreadyConnected = "already_connected"

// Gateway is the part of the Evolution API the lifecycle drives.
type Gateway interface {
	FetchInstance(ctx context.Context, name string) (*tools.InstanceState, error)
	CreateInstance(ctx context.Context, name, webhookURL string, events []string) error
	Connect(ctx context.Context, name string) (string, error)
	DeleteInstance(ctx context.Context, name string) bool
}

// ConnectResult is either a fresh pairing QR or the already_connected short-circuit.
type ConnectResult struct {
	Status       string     `json:"status,omitempty"`
	QRCode       string     `json:"qrCode,omitempty"`
	InstanceName string     `json:"instanceName"`
	PhoneNumber  *string    `json:"phoneNumber"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// InstanceLifecycle creates, pairs and tears down the gateway session of each bot.
type InstanceLifecycle struct {
	cfg        config.LifecycleConfig
	gateway    Gateway
	store      *store.Store
	webhookURL string
	log        *zap.Logger

	Now   func() time.Time
	Sleep func(time.Duration)
}

func NewInstanceLifecycle(cfg config.LifecycleConfig, gateway Gateway, st *store.Store, webhookURL string) *InstanceLifecycle {
	return &InstanceLifecycle{
		cfg:        cfg,
		gateway:    gateway,
		store:      st,
		webhookURL: webhookURL,
		log:        zap.L().Named("lifecycle"),
		Now:        func() time.Time { return time.Now().UTC() },
		Sleep:      time.Sleep,
	}
}

// Connect brings the bot's instance to a state where it is paired or has a scannable QR.
// It runs to completion even if ctx is cancelled by the caller.
func (l *InstanceLifecycle) Connect(ctx context.Context, botID string) (*ConnectResult, error) {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return nil, ErrBotIDRequired
	}
	ctx = context.WithoutCancel(ctx)

	bot, err := l.store.FindBot(botID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("load bot %s: %w", botID, err)
	}

	name := models.InstanceNameForBot(bot.ID)
	log := l.log.With(zap.String("instance", name))
	phone := bot.Phone()

	if inst, err := l.store.FindInstanceByName(name); err == nil && inst.HasLiveQR(l.Now()) {
		log.Info("returning cached qr")
		return &ConnectResult{
			QRCode:       *inst.QRCode,
			InstanceName: name,
			PhoneNumber:  firstPhone(inst.PhoneNumber, phone),
			ExpiresAt:    inst.QRCodeExpiresAt,
		}, nil
	}

	state, err := l.gateway.FetchInstance(ctx, name)
	switch {
	case err == nil && state.IsOpen():
		return l.markAlreadyConnected(bot, name, state), nil
	case err == nil:
		log.Info("instance exists on gateway", zap.String("state", state.State))
	default:
		if !errors.Is(err, tools.ErrInstanceNotFound) {
			log.Warn("fetch instance failed, creating anyway", zap.Error(err))
		}
		l.create(ctx, log, name)
	}

	qr := l.pollQR(ctx, log, name)
	if qr == "" {
		qr = l.forceReset(ctx, log, name)
	}

	now := l.Now()
	fields := map[string]any{
		"status":             models.INSTANCE_STATUS_CONNECTING,
		"qr_code":            nil,
		"qr_code_expires_at": nil,
	}
	var expiresAt *time.Time
	if qr != "" {
		exp := now.Add(l.cfg.QRTTL())
		expiresAt = &exp
		fields["qr_code"] = qr
		fields["qr_code_expires_at"] = exp
	}
	if phone != nil {
		fields["phone_number"] = *phone
	}
	if _, err := l.store.UpsertInstance(name, bot.ID, fields); err != nil {
		log.Error("persist instance failed", zap.Error(err))
	}

	if qr == "" {
		log.Warn("no qr after retries and reset")
		return nil, ErrQRUnavailable
	}

	return &ConnectResult{
		QRCode:       qr,
		InstanceName: name,
		PhoneNumber:  phone,
		ExpiresAt:    expiresAt,
	}, nil
}

func (l *InstanceLifecycle) create(ctx context.Context, log *zap.Logger, name string) {
	err := l.gateway.CreateInstance(ctx, name, l.webhookURL, tools.WebhookEvents)
	switch {
	case err == nil:
		log.Info("instance created")
	case errors.Is(err, tools.ErrInstanceExists):
		log.Info("instance already exists")
	default:
		log.Error("create instance failed", zap.Error(err))
	}
}

// pollQR asks for a QR up to MaxAttempts times, waiting between failed attempts.
func (l *InstanceLifecycle) pollQR(ctx context.Context, log *zap.Logger, name string) string {
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		qr, err := l.gateway.Connect(ctx, name)
		if err != nil {
			log.Warn("qr attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		} else if qr != "" {
			log.Info("qr obtained", zap.Int("attempt", attempt))
			return qr
		}
		l.Sleep(l.delayAfter(attempt))
	}
	return ""
}

func (l *InstanceLifecycle) delayAfter(attempt int) time.Duration {
	if attempt <= l.cfg.ShortAttempts {
		return l.cfg.ShortDelay()
	}
	return l.cfg.LongDelay()
}

// forceReset recreates a session stuck without a QR and tries to connect exactly once.
func (l *InstanceLifecycle) forceReset(ctx context.Context, log *zap.Logger, name string) string {
	log.Warn("no qr after polling, forcing reset")
	l.gateway.DeleteInstance(ctx, name)
	l.Sleep(l.cfg.ResetGrace())

	l.create(ctx, log, name)
	l.Sleep(l.cfg.RecreateGrace())

	qr, err := l.gateway.Connect(ctx, name)
	if err != nil {
		log.Error("connect after reset failed", zap.Error(err))
		return ""
	}
	return qr
}

func (l *InstanceLifecycle) markAlreadyConnected(bot *models.BotConfiguration, name string, state *tools.InstanceState) *ConnectResult {
	var phone *string
	if state.Owner != "" {
		owner := state.Owner
		phone = &owner
	} else {
		phone = bot.Phone()
	}

	now := l.Now()
	fields := map[string]any{
		"status":             models.INSTANCE_STATUS_CONNECTED,
		"qr_code":            nil,
		"qr_code_expires_at": nil,
		"last_seen":          now,
	}
	if phone != nil {
		fields["phone_number"] = *phone
	}
	inst, err := l.store.UpsertInstance(name, bot.ID, fields)
	if err != nil {
		l.log.Error("sync connected instance failed", zap.String("instance", name), zap.Error(err))
	} else if inst.ConnectedAt == nil {
		if err := l.store.UpdateInstance(name, map[string]any{"connected_at": now}); err != nil {
			l.log.Error("stamp connected_at failed", zap.String("instance", name), zap.Error(err))
		}
	}

	return &ConnectResult{
		Status:       StatusAlreadyConnected,
		InstanceName: name,
		PhoneNumber:  phone,
	}
}

// Disconnect tears down the gateway session and resets the local row regardless of the outcome.
func (l *InstanceLifecycle) Disconnect(ctx context.Context, instanceName string) error {
	instanceName = strings.TrimSpace(instanceName)
	if instanceName == "" {
		return ErrInstanceRequired
	}
	ctx = context.WithoutCancel(ctx)

	if !l.gateway.DeleteInstance(ctx, instanceName) {
		l.log.Warn("gateway delete failed, resetting local state anyway", zap.String("instance", instanceName))
	}

	err := l.store.UpdateInstance(instanceName, map[string]any{
		"status":             models.INSTANCE_STATUS_DISCONNECTED,
		"qr_code":            nil,
		"qr_code_expires_at": nil,
		"phone_number":       nil,
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("reset instance %s: %w", instanceName, err)
	}
	return nil
}

// Status returns the local row for polling clients, with an expired QR hidden.
func (l *InstanceLifecycle) Status(instanceName string) (*models.WhatsAppInstance, error) {
	inst, err := l.store.FindInstanceByName(strings.TrimSpace(instanceName))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	masked := inst.Masked(l.Now())
	return &masked, nil
}

func firstPhone(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}
