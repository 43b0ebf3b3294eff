package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wabot/broker"
	"wabot/config"
	dbpkg "wabot/db"
	"wabot/models"
	"wabot/store"
	"wabot/tools"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLifecycleConfig() config.LifecycleConfig {
	return config.LifecycleConfig{
		MaxAttempts:     10,
		ShortAttempts:   2,
		ShortDelayMs:    1500,
		LongDelayMs:     3000,
		ResetGraceMs:    5000,
		RecreateGraceMs: 2000,
		QRTTLSeconds:    300,
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	database, err := dbpkg.Connect(config.Configuration{
		Database: "sqlite3",
		DbPath:   filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, dbpkg.Migrate(database))
	return store.New(database)
}

func seedBot(t *testing.T, st *store.Store, id, number string) *models.BotConfiguration {
	t.Helper()
	bot := &models.BotConfiguration{ID: id, BotName: "Bot " + id, IsActive: true}
	if number != "" {
		bot.WhatsAppNumber = &number
	}
	require.NoError(t, st.CreateBot(bot))
	return bot
}

// fakeGateway scripts the Evolution API and records every call.
type fakeGateway struct {
	mu sync.Mutex

	state     *tools.InstanceState
	fetchErr  error
	createErr error
	qrs       []string
	connectFn func(call int) (string, error)

	fetches, creates, connects, deletes int
	calls                               []string
}

func (f *fakeGateway) FetchInstance(ctx context.Context, name string) (*tools.InstanceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	f.calls = append(f.calls, "fetch")
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.state == nil {
		return nil, tools.ErrInstanceNotFound
	}
	st := *f.state
	return &st, nil
}

func (f *fakeGateway) CreateInstance(ctx context.Context, name, webhookURL string, events []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.calls = append(f.calls, "create")
	return f.createErr
}

func (f *fakeGateway) Connect(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.calls = append(f.calls, "connect")
	if f.connectFn != nil {
		return f.connectFn(f.connects)
	}
	if f.connects <= len(f.qrs) {
		return f.qrs[f.connects-1], nil
	}
	return "", nil
}

func (f *fakeGateway) DeleteInstance(ctx context.Context, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	f.calls = append(f.calls, "delete")
	return true
}

// recordingPublisher keeps every published envelope.
type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	envs []broker.Envelope
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, env broker.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.envs = append(p.envs, env)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }
