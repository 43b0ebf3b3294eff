package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"wabot/models"
	"wabot/store"
	"wabot/tools"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLifecycle(t *testing.T, gw *fakeGateway) (*InstanceLifecycle, *store.Store, *[]time.Duration) {
	t.Helper()
	st := newTestStore(t)
	l := NewInstanceLifecycle(testLifecycleConfig(), gw, st, "https://hooks.example.com/api/whatsapp/webhook")
	l.Now = func() time.Time { return testNow }
	var sleeps []time.Duration
	l.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return l, st, &sleeps
}

func TestConnect_QROnSecondAttempt(t *testing.T) {
	gw := &fakeGateway{qrs: []string{"", "data:image/png;base64,QR"}}
	l, st, sleeps := newTestLifecycle(t, gw)
	seedBot(t, st, "b1", "5511999990000")

	res, err := l.Connect(context.Background(), "b1")
	require.NoError(t, err)

	assert.Equal(t, "data:image/png;base64,QR", res.QRCode)
	assert.Equal(t, "bot-b1", res.InstanceName)
	require.NotNil(t, res.PhoneNumber)
	assert.Equal(t, "5511999990000", *res.PhoneNumber)
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, testNow.Add(5*time.Minute), *res.ExpiresAt)

	assert.Equal(t, []string{"fetch", "create", "connect", "connect"}, gw.calls)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, *sleeps)

	inst, err := st.FindInstanceByName("bot-b1")
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTING, inst.Status)
	assert.Equal(t, "b1", inst.BotConfigurationID)
	require.NotNil(t, inst.QRCode)
	assert.Equal(t, "data:image/png;base64,QR", *inst.QRCode)
	require.NotNil(t, inst.QRCodeExpiresAt)
	assert.True(t, inst.QRCodeExpiresAt.Equal(testNow.Add(5*time.Minute)))
}

func TestConnect_ExistingInstanceSkipsCreate(t *testing.T) {
	gw := &fakeGateway{state: &tools.InstanceState{Name: "bot-b1", State: "close"}, qrs: []string{"QR"}}
	l, st, _ := newTestLifecycle(t, gw)
	seedBot(t, st, "b1", "")

	res, err := l.Connect(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "QR", res.QRCode)
	assert.Nil(t, res.PhoneNumber)
	assert.Equal(t, 0, gw.creates)
}

func TestConnect_CreateErrorsDoNotStopPolling(t *testing.T) {
	for _, createErr := range []error{tools.ErrInstanceExists, errors.New("gateway down")} {
		gw := &fakeGateway{createErr: createErr, qrs: []string{"QR"}}
		l, st, _ := newTestLifecycle(t, gw)
		seedBot(t, st, "b1", "")

		res, err := l.Connect(context.Background(), "b1")
		require.NoError(t, err)
		assert.Equal(t, "QR", res.QRCode)
	}
}

func TestConnect_BoundedAttemptsThenSingleReset(t *testing.T) {
	gw := &fakeGateway{connectFn: func(call int) (string, error) {
		if call%2 == 0 {
			return "", errors.New("timeout")
		}
		return "", nil
	}}
	l, st, sleeps := newTestLifecycle(t, gw)
	seedBot(t, st, "b1", "")

	_, err := l.Connect(context.Background(), "b1")
	assert.ErrorIs(t, err, ErrQRUnavailable)

	assert.Equal(t, 11, gw.connects, "10 polls plus one after reset")
	assert.Equal(t, 1, gw.deletes)
	assert.Equal(t, 2, gw.creates, "initial create plus one after reset")
	tail := gw.calls[len(gw.calls)-3:]
	assert.Equal(t, []string{"delete", "create", "connect"}, tail)

	expected := []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}
	for i := 3; i <= 10; i++ {
		expected = append(expected, 3000*time.Millisecond)
	}
	expected = append(expected, 5000*time.Millisecond, 2000*time.Millisecond)
	assert.Equal(t, expected, *sleeps)

	inst, err := st.FindInstanceByName("bot-b1")
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTING, inst.Status)
	assert.Nil(t, inst.QRCode)
	assert.Nil(t, inst.QRCodeExpiresAt)
}

func TestConnect_ResetYieldsQR(t *testing.T) {
	gw := &fakeGateway{connectFn: func(call int) (string, error) {
		if call == 11 {
			return "QR-AFTER-RESET", nil
		}
		return "", nil
	}}
	l, st, _ := newTestLifecycle(t, gw)
	seedBot(t, st, "b1", "")

	res, err := l.Connect(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "QR-AFTER-RESET", res.QRCode)
	assert.Equal(t, 1, gw.deletes)
}

func TestConnect_AlreadyConnected(t *testing.T) {
	gw := &fakeGateway{state: &tools.InstanceState{Name: "bot-b1", State: "open", Owner: "5511888887777"}}
	l, st, _ := newTestLifecycle(t, gw)
	seedBot(t, st, "b1", "5511999990000")
	_, err := st.UpsertInstance("bot-b1", "b1", map[string]any{"status": models.INSTANCE_STATUS_CONNECTING, "qr_code": "old"})
	require.NoError(t, err)

	res, err := l.Connect(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyConnected, res.Status)
	assert.Equal(t, "bot-b1", res.InstanceName)
	require.NotNil(t, res.PhoneNumber)
	assert.Equal(t, "5511888887777", *res.PhoneNumber)
	assert.Empty(t, res.QRCode)
	assert.Equal(t, []string{"fetch"}, gw.calls)

	inst, err := st.FindInstanceByName("bot-b1")
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTED, inst.Status)
	assert.Nil(t, inst.QRCode)
	assert.NotNil(t, inst.ConnectedAt)
}

func TestConnect_ReturnsLiveCachedQR(t *testing.T) {
	gw := &fakeGateway{}
	l, st, _ := newTestLifecycle(t, gw)
	seedBot(t, st, "b1", "")
	exp := testNow.Add(2 * time.Minute)
	_, err := st.UpsertInstance("bot-b1", "b1", map[string]any{
		"status": models.INSTANCE_STATUS_CONNECTING, "qr_code": "CACHED", "qr_code_expires_at": exp,
	})
	require.NoError(t, err)

	res, err := l.Connect(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "CACHED", res.QRCode)
	assert.Empty(t, gw.calls)
}

func TestConnect_UnknownBot(t *testing.T) {
	gw := &fakeGateway{}
	l, _, _ := newTestLifecycle(t, gw)

	_, err := l.Connect(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrConfigNotFound)
	assert.Empty(t, gw.calls)

	_, err = l.Connect(context.Background(), " ")
	assert.ErrorIs(t, err, ErrBotIDRequired)
}

func TestConnect_IgnoresCallerCancellation(t *testing.T) {
	gw := &fakeGateway{qrs: []string{"", "QR"}}
	l, st, _ := newTestLifecycle(t, gw)
	seedBot(t, st, "b1", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := l.Connect(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "QR", res.QRCode)
}

func TestDisconnect_ResetsRow(t *testing.T) {
	gw := &fakeGateway{}
	l, st, _ := newTestLifecycle(t, gw)
	_, err := st.UpsertInstance("bot-b1", "b1", map[string]any{
		"status": models.INSTANCE_STATUS_CONNECTED, "phone_number": "5511", "qr_code": "x",
	})
	require.NoError(t, err)

	require.NoError(t, l.Disconnect(context.Background(), "bot-b1"))
	assert.Equal(t, 1, gw.deletes)

	inst, err := st.FindInstanceByName("bot-b1")
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_DISCONNECTED, inst.Status)
	assert.Nil(t, inst.QRCode)
	assert.Nil(t, inst.PhoneNumber)

	assert.ErrorIs(t, l.Disconnect(context.Background(), ""), ErrInstanceRequired)
	assert.NoError(t, l.Disconnect(context.Background(), "bot-unknown"))
}

func TestStatus_MasksStaleQR(t *testing.T) {
	gw := &fakeGateway{}
	l, st, _ := newTestLifecycle(t, gw)
	_, err := st.UpsertInstance("bot-b1", "b1", map[string]any{
		"status": models.INSTANCE_STATUS_CONNECTING, "qr_code": "OLD", "qr_code_expires_at": testNow.Add(-time.Second),
	})
	require.NoError(t, err)

	inst, err := l.Status("bot-b1")
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTING, inst.Status)
	assert.Nil(t, inst.QRCode)

	_, err = l.Status("bot-none")
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestConnect_NoQRClearsExpiredQR(t *testing.T) {
	gw := &fakeGateway{}
	l, st, _ := newTestLifecycle(t, gw)
	seedBot(t, st, "b1", "")
	_, err := st.UpsertInstance("bot-b1", "b1", map[string]any{
		"status": models.INSTANCE_STATUS_CONNECTING, "qr_code": "OLD-QR", "qr_code_expires_at": testNow.Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = l.Connect(context.Background(), "b1")
	require.ErrorIs(t, err, ErrQRUnavailable)

	row, err := st.FindInstanceByName("bot-b1")
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTING, row.Status)
	assert.Nil(t, row.QRCode)
	assert.Nil(t, row.QRCodeExpiresAt)

	polled, err := l.Status("bot-b1")
	require.NoError(t, err)
	assert.Nil(t, polled.QRCode)
}

func TestConnect_AlreadyConnectedLogsConnectedAtFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	t.Cleanup(zap.ReplaceGlobals(zap.New(core)))

	gw := &fakeGateway{state: &tools.InstanceState{Name: "bot-b1", State: "open"}}
	l, st, _ := newTestLifecycle(t, gw)
	seedBot(t, st, "b1", "")

	st.DB().Callback().Update().Before("gorm:update").Register("test:fail_connected_at", func(scope *gorm.Scope) {
		if attrs, ok := scope.InstanceGet("gorm:update_attrs"); ok {
			if _, ok := attrs.(map[string]interface{})["connected_at"]; ok {
				scope.Err(errors.New("disk full"))
			}
		}
	})

	res, err := l.Connect(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyConnected, res.Status)

	entries := logs.FilterMessage("stamp connected_at failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "bot-b1", entries[0].ContextMap()["instance"])
}
