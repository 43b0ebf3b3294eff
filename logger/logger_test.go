package logger

import (
	"os"
	"path/filepath"
	"testing"

	"wabot/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit_WritesToLogPath(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zap.NewNop()))
	path := filepath.Join(t.TempDir(), "server.log")

	log, err := Init(config.Configuration{LogPath: path, LogLevel: "info", LogMode: "production"})
	require.NoError(t, err)

	zap.L().Info("hello", zap.String("instance", "bot-b1"))
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"hello"`)
	assert.Contains(t, string(raw), `"instance":"bot-b1"`)
}

func TestInit_RejectsUnknownLevel(t *testing.T) {
	_, err := Init(config.Configuration{LogLevel: "loud"})
	assert.Error(t, err)
}

func TestGormLogger_Print(t *testing.T) {
	assert.NotPanics(t, func() {
		g := NewGormLogger()
		g.Print("sql", "store.go:10", "1ms", "SELECT 1", []interface{}{}, int64(1))
		g.Print("log", "something")
	})
}
