package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapWrapper_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core))

	log.WithFields(map[string]interface{}{"taskType": "normalize-deal"}).
		WithError(errors.New("boom")).
		Warn("job failed", map[string]interface{}{"jobKey": int64(42)})
	log.Debug("debug line", nil)

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "job failed", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "normalize-deal", fields["taskType"])
	assert.Equal(t, int64(42), fields["jobKey"])
	assert.Equal(t, "boom", fields["error"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(" WARN "))
}

func TestMapToZapFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := ForTask(NewZapAdapter(zap.New(core)), "persist-deals")

	log.Info("persisted", map[string]interface{}{
		"stored":  3,
		"cause":   errors.New("READONLY"),
		"elapsed": 1500 * time.Millisecond,
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	var keys []string
	for _, f := range entry.Context {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"taskType", "cause", "elapsed", "stored"}, keys)
	fields := entry.ContextMap()
	assert.Equal(t, "READONLY", fields["cause"])
	assert.Equal(t, 1500*time.Millisecond, fields["elapsed"])
}

func TestNewWithOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")
	l := NewWithOutput("info", "json", path)
	l.Info("hello")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestNewWithOutput_BadPathFallsBack(t *testing.T) {
	l := NewWithOutput("info", "console", filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	require.NotNil(t, l)
}
