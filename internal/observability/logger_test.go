package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/obsidiansec/personaforge/internal/config"
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	bytes.Buffer
}

func (b *syncBuffer) Sync() error { return nil }

func TestInitialize(t *testing.T) {
	t.Run("console format", func(t *testing.T) {
		ResetForTest()
		var buf syncBuffer

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "testsvc",
		}, &buf)

		GetLogger().Info("hello from the test")

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "hello from the test")
		assert.Contains(t, output, "testsvc.")
	})

	t.Run("json format", func(t *testing.T) {
		ResetForTest()
		var buf syncBuffer

		Initialize(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "jsonsvc",
		}, &buf)

		GetLogger().Warn("structured message", zap.String("key", "value"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "jsonsvc", entry["logger"])
		assert.Equal(t, "structured message", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("second initialize is a no-op", func(t *testing.T) {
		ResetForTest()
		var first, second syncBuffer

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "a"}, &first)
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "b"}, &second)

		GetLogger().Info("routed to the first sink")
		assert.NotEmpty(t, first.String())
		assert.Empty(t, second.String())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		var buf syncBuffer

		Initialize(config.LoggerConfig{Level: "chatty", Format: "json", ServiceName: "x"}, &buf)

		GetLogger().Debug("suppressed")
		assert.Empty(t, buf.String())
		GetLogger().Info("emitted")
		assert.NotEmpty(t, buf.String())
	})

	t.Run("file sink writes json", func(t *testing.T) {
		ResetForTest()
		path := filepath.Join(t.TempDir(), "app.log")

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "filesvc",
			LogFile:     path,
			MaxSize:     1,
		}, zapcore.AddSync(&syncBuffer{}))

		GetLogger().Info("file bound message")
		Sync()

		raw, err := os.ReadFile(path)
		require.NoError(t, err)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &entry))
		assert.Equal(t, "file bound message", entry["msg"])
	})
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	assert.NotNil(t, GetLogger())
}
