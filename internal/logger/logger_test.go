package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)

	log.Trace("trace message")
	log.Debug("debug message")
	log.Info("info message")
	log.Warn("warn message")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "info message", entries[0]["msg"])
	assert.Equal(t, "warn message", entries[1]["msg"])
}

func TestSlogLogger_ModuleAndFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, time.UTC).
		Module("migration").
		Module("loader").
		With(String("run_id", "abc"))

	log.Info("member inserted", Int("attempt", 1), Error(errors.New("boom")), Duration("took", 1500*time.Millisecond))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "migration.loader", entry["module"])
	assert.Equal(t, "abc", entry["run_id"])
	assert.InDelta(t, 1, entry["attempt"], 0)
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "1.5s", entry["took"])
}

func TestSlogLogger_WithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)

	ctx := WithTraceID(context.Background(), "run-42")
	log.WithContext(ctx).Info("started")
	log.WithContext(context.Background()).Info("no trace")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "run-42", entries[0]["trace_id"])
	assert.NotContains(t, entries[1], "trace_id")
}

func TestSlogLogger_NilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var log *SlogLogger
	assert.NotPanics(t, func() {
		log.Info("ignored")
		log.Error("ignored")
	})
	assert.Nil(t, log.Module("x"))
}

func TestCentralLogger_ModuleLevels(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "logs", "run.log")
	central, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "warn",
		Timezone:     "UTC",
		FileOutput:   &FileOutput{Enabled: true, Path: logPath, Level: "debug"},
		ModuleLevels: map[string]string{"relocator": "debug"},
	})
	require.NoError(t, err)

	central.Module("loader").Info("suppressed by default level")
	central.Module("relocator").Debug("visible via module level")
	require.NoError(t, central.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suppressed by default level")
	assert.Contains(t, string(data), "visible via module level")
	assert.Contains(t, string(data), `"module":"relocator"`)
}

func TestCentralLogger_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(nil)
	require.Error(t, err)

	_, err = NewCentralLogger(&LoggingConfig{Timezone: "Not/AZone"})
	require.Error(t, err)
}

func TestGormLoggerAdapter_Trace(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	adapter := NewGormLoggerAdapter(NewSlogLogger(&buf, LogLevelDebug, time.UTC), 10*time.Millisecond)
	fc := func() (string, int64) { return "SELECT 1", 1 }

	adapter.Trace(context.Background(), time.Now(), fc, nil)
	adapter.Trace(context.Background(), time.Now(), fc, gorm.ErrDuplicatedKey)
	adapter.Trace(context.Background(), time.Now(), fc, errors.New("connection reset"))
	adapter.Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 3, "plain queries log at trace and are filtered out at debug")
	assert.Equal(t, "query returned expected error", entries[0]["msg"])
	assert.Equal(t, "DEBUG", entries[0]["level"])
	assert.Equal(t, "query error", entries[1]["msg"])
	assert.Equal(t, "slow query", entries[2]["msg"])
}
