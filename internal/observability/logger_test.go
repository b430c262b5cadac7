// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
)

func TestInitialize(t *testing.T) {
	t.Run("console logger colorizes levels", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "specter-test",
			Colors:      config.ColorConfig{Info: "blue"},
		}, zapcore.AddSync(&buf))
		GetLogger().Info("tick finished")
		Sync()

		out := buf.String()
		assert.Contains(t, out, "tick finished")
		assert.Contains(t, out, colorBlue+"INFO"+colorReset)
		assert.Contains(t, out, "specter-test.")
	})

	t.Run("json logger carries fields", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "svc"}, zapcore.AddSync(&buf))
		GetLogger().Warn("step failed", Investigation("inv-1"), Step(schemas.StepGeo), Provider("crtsh"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "svc", entry["logger"])
		assert.Equal(t, "inv-1", entry["investigation_id"])
		assert.Equal(t, "geo", entry["step"])
		assert.Equal(t, "crtsh", entry["provider"])
	})

	t.Run("file output is written", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		path := filepath.Join(t.TempDir(), "specter.log")

		Initialize(config.LoggerConfig{Level: "debug", Format: "json", LogFile: path, MaxSize: 1}, zapcore.AddSync(&bytes.Buffer{}))
		GetLogger().Error("to the file")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "to the file")
	})

	t.Run("only the first call wins", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, zapcore.AddSync(&buf))
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, zapcore.AddSync(&buf))
		assert.Same(t, first, GetLogger())

		GetLogger().Info("hello")
		Sync()
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	require.NotNil(t, GetLogger())
	assert.Nil(t, globalLogger.Load(), "the fallback must not be stored globally")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Tick(TickRan)
	m.Tick(TickRan)
	m.Tick(TickSkipped)
	m.Step("osint", "completed", 2*time.Second)
	m.ProviderCall("hibp", ProviderFound)
	m.EnhancerFallback("timeout")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues(TickRan)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues(TickSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("osint", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("hibp", ProviderFound)))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.Tick(TickRan)
		nilMetrics.Step("ai", "failed", time.Second)
		nilMetrics.ProviderCall("x", ProviderError)
		nilMetrics.EnhancerFallback("parse")
	})
}
