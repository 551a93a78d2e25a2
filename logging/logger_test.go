package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTextFormatter(t *testing.T) {
	f := NewTextFormatter()
	entry := &LogEntry{
		Time:     time.Now(),
		Level:    LogLevelInfo,
		Category: "Test",
		Message:  "Hello",
		Fields:   []Field{{Key: "key", Value: "val"}},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)

	str := string(out)
	assert.Contains(t, str, "INFO")
	assert.Contains(t, str, "[Test]")
	assert.Contains(t, str, "Hello")
	assert.Contains(t, str, "{key=val}")
	assert.True(t, strings.HasSuffix(str, "\n"))
}

func TestJSONFormatter(t *testing.T) {
	f := NewJSONFormatter()
	entry := &LogEntry{
		Time:     time.Now(),
		Level:    LogLevelWarn,
		Category: "Test",
		Message:  "Hello",
		Fields:   []Field{{Key: "key", Value: "val"}, {Key: "error", Value: errors.New("boom")}},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)

	var data map[string]any
	require.NoError(t, json.Unmarshal(out, &data))
	assert.Equal(t, "WARN", data["level"])
	assert.Equal(t, "Test", data["category"])

	fields, ok := data["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "val", fields["key"])
	assert.Equal(t, "boom", fields["error"])
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("Debug")
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, level)

	var l LogLevel
	require.NoError(t, l.UnmarshalText([]byte("warning")))
	assert.Equal(t, LogLevelWarn, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestAsyncWriter(t *testing.T) {
	writer := &syncWriter{}
	asyncWriter := NewAsyncWriter(writer, NewJSONFormatter(), 2)

	entry := &LogEntry{
		Time:    time.Now(),
		Level:   LogLevelInfo,
		Message: "Async",
	}
	for range 5 {
		asyncWriter.WriteLog(entry)
	}
	require.NoError(t, asyncWriter.Close())

	// JSON 输出没有换行时补齐
	lines := strings.Split(strings.TrimSpace(writer.String()), "\n")
	assert.Len(t, lines, 5)
}

func TestConsoleProviderLevels(t *testing.T) {
	writer := &syncWriter{}
	factory := NewLoggingBuilder().
		SetMinimumLevel(LogLevelWarn).
		AddConsole(ConsoleLoggerOptions{Output: writer}).
		Build()

	logger := factory.CreateLogger("di").WithFields(Field{Key: "component", Value: "repo"})
	logger.Info("hidden")
	logger.Warn("shown", Field{Key: "attempt", Value: 2})

	out := writer.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN [di] shown {component=repo, attempt=2}")

	factory.SetMinimumLevel(LogLevelDebug)
	logger.Debug("now visible")
	assert.Contains(t, writer.String(), "now visible")
}

func TestFileProviderRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	factory := NewLoggingBuilder().AddFile(path, FileLoggerOptions{JSON: true}).Build()

	factory.CreateLogger("file").Info("persisted", Field{Key: "n", Value: 1})
	require.NoError(t, factory.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"persisted"`)
	assert.Contains(t, string(data), `"category":"file"`)
}

func TestZapProvider(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	provider := NewZapLoggerProviderFrom(zap.New(core))

	logger := provider.CreateLogger("di").WithFields(Field{Key: "component", Value: "repo"})
	logger.Info("created", Field{Key: "error", Value: errors.New("none")})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "created", entries[0].Message)
	assert.Equal(t, "di", entries[0].LoggerName)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "repo", ctx["component"])
	assert.Equal(t, "none", ctx["error"])
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger().WithCategory("x").WithFields(Field{Key: "k", Value: 1})
	assert.NotPanics(t, func() { logger.Info("ignored") })
}

type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func BenchmarkAsyncLogging(b *testing.B) {
	asyncWriter := NewAsyncWriter(io.Discard, NewTextFormatter(), 10000)
	defer asyncWriter.Close()

	entry := &LogEntry{
		Time:    time.Now(),
		Level:   LogLevelInfo,
		Message: "Benchmark",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		asyncWriter.WriteLog(entry)
	}
}
