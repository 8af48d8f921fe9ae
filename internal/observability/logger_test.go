package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/tabwire/internal/config"
)

// memSink is a zapcore.WriteSyncer backed by a byte slice so tests can
// inspect console output without redirecting stdout.
type memSink struct {
	data []byte
}

func (m *memSink) Write(p []byte) (int, error) {
	m.data = append(m.data, p...)
	return len(p), nil
}

func (m *memSink) Sync() error { return nil }

func TestInitialize_ConsoleFormat(t *testing.T) {
	ResetForTest()
	sink := &memSink{}

	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "tabwire-test",
	}, sink)

	GetLogger().Info("bus endpoint open")
	require.NoError(t, GetLogger().Sync())

	out := string(sink.data)
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "bus endpoint open")
	assert.Contains(t, out, "tabwire-test")
}

func TestInitialize_JSONFormat(t *testing.T) {
	ResetForTest()
	sink := &memSink{}

	Initialize(config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "tabwire-json",
	}, sink)

	GetLogger().Warn("auth failure", zap.String("remote", "127.0.0.1:51000"))
	require.NoError(t, GetLogger().Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(sink.data, &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "tabwire-json", entry["logger"])
	assert.Equal(t, "auth failure", entry["msg"])
	assert.Equal(t, "127.0.0.1:51000", entry["remote"])
}

func TestInitialize_FileSink(t *testing.T) {
	ResetForTest()
	logPath := filepath.Join(t.TempDir(), "tabwire.log")

	Initialize(config.LoggerConfig{
		Level:   "debug",
		Format:  "json",
		LogFile: logPath,
		MaxSize: 1,
	}, zapcore.AddSync(&memSink{}))

	GetLogger().Error("dial failed")
	Sync()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "dial failed")
}

func TestInitialize_OnlyOnce(t *testing.T) {
	ResetForTest()
	sink := &memSink{}

	Initialize(config.LoggerConfig{Level: "info", ServiceName: "first"}, sink)
	first := GetLogger()

	Initialize(config.LoggerConfig{Level: "debug", ServiceName: "second"}, sink)
	second := GetLogger()

	assert.Same(t, first, second)
}

func TestGetLogger_FallbackBeforeInitialize(t *testing.T) {
	ResetForTest()
	logger := GetLogger()
	require.NotNil(t, logger)
	// The fallback must be usable without panicking.
	logger.Debug("early startup message")
}

func TestGetLogger_ReturnsStoredLogger(t *testing.T) {
	ResetForTest()
	Initialize(config.LoggerConfig{Level: "info", ServiceName: "stored"}, &memSink{})
	assert.Same(t, globalLogger.Load(), GetLogger())
}
