package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, format logFormat) (*structuredHandler, *asyncWriter, *bytes.Buffer) {
	t.Helper()

	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	return h, aw, buf
}

func drain(t *testing.T, aw *asyncWriter, buf *bytes.Buffer) string {
	t.Helper()

	require.NoError(t, aw.Flush())
	require.NoError(t, aw.Close())
	return strings.TrimSpace(buf.String())
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	h, aw, buf := newTestHandler(t, formatKV)
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	LogEvent(ctx, slog.New(h).With("component", "app"), slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)

	tokens := strings.Split(drain(t, aw, buf), " ")
	require.GreaterOrEqual(t, len(tokens), 6)
	expected := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123"}
	for i, prefix := range expected {
		assert.True(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, expected prefix %s", i, tokens[i], prefix)
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	h, aw, buf := newTestHandler(t, formatJSON)
	ctx := WithRID(context.Background(), "rid-json")

	LogEvent(ctx, slog.New(h).With("component", "db.migrate"), slog.LevelError, "migration.failed",
		slog.String("status", "fail"),
		slog.String("version", "20241201_000001"),
		slog.String("err", "boom"),
	)

	line := drain(t, aw, buf)
	require.True(t, strings.HasPrefix(line, "{"), "expected JSON, got %s", line)
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"db.migrate"`, `"event":"migration.failed"`, `"status":"fail"`, `"rid":"rid-json"`, `"version":"20241201_000001"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		require.True(t, idx != -1 && idx > pos, "prefix %s not found in order within %s", pref, line)
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	rawRID := "123:456:789"

	t.Run("kv omits full rid", func(t *testing.T) {
		h, aw, buf := newTestHandler(t, formatKV)
		LogEvent(WithRID(context.Background(), rawRID), slog.New(h), slog.LevelInfo, "rid.test")

		line := drain(t, aw, buf)
		assert.Contains(t, line, "rid="+CompactRID(rawRID))
		assert.NotContains(t, line, "rid_full=")
	})

	t.Run("json keeps full rid", func(t *testing.T) {
		h, aw, buf := newTestHandler(t, formatJSON)
		LogEvent(WithRID(context.Background(), rawRID), slog.New(h), slog.LevelInfo, "rid.test")

		line := drain(t, aw, buf)
		assert.Contains(t, line, `"rid":"`+CompactRID(rawRID)+`"`)
		assert.Contains(t, line, `"rid_full":"`+rawRID+`"`)
		assert.Contains(t, line, `"ts_unix_nano"`)
	})
}

func TestStructuredHandlerRunIDAndDurations(t *testing.T) {
	h, aw, buf := newTestHandler(t, formatKV)
	ctx := WithRunID(context.Background(), "run-1")

	LogEvent(ctx, slog.New(h).With("component", "db.migrate"), slog.LevelInfo, "migrations.summary",
		slog.Duration("duration", 1500*time.Millisecond),
		slog.Duration("upgrade_duration", 20*time.Millisecond),
		slog.Any("applied", []string{"a", "b"}),
	)

	line := drain(t, aw, buf)
	assert.Contains(t, line, "run_id=run-1")
	assert.Contains(t, line, "duration_ms=1500")
	assert.Contains(t, line, "upgrade_duration_ms=20")
	assert.Contains(t, line, "applied=a,b")
	assert.Less(t, strings.Index(line, "run_id="), strings.Index(line, "duration_ms="))
}

func TestStructuredHandlerLevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{level: slog.LevelWarn, writer: aw, format: formatKV})
	log := slog.New(h)

	log.Info("dropped")
	log.Warn("kept")

	line := drain(t, aw, buf)
	assert.NotContains(t, line, "dropped")
	assert.Contains(t, line, "event=kept")
	assert.Contains(t, line, "component=app")
}

func TestCompactRIDAndSanitize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "z.1.a", CompactRID("35:1:10"))
	assert.Equal(t, "not-a-rid", CompactRID("not-a-rid"))
	assert.Equal(t, "abc\tdef", Sanitize("a\x00bc\tde\x7ff"))
	assert.Equal(t, "héll", SanitizeLimit("héllo", 4))
	assert.Empty(t, SanitizeLimit("x", 0))
}

func TestContextValues(t *testing.T) {
	t.Parallel()

	ctx := WithUpdateMeta(context.Background(), 7, 42, -100)
	ctx = WithHandler(ctx, "cmd_start")
	ctx = WithHandler(ctx, "")
	ctx = WithRunID(ctx, "")

	assert.Equal(t, 7, UpdateIDFrom(ctx))
	assert.Equal(t, int64(42), UserIDFrom(ctx))
	assert.Equal(t, int64(-100), ChatIDFrom(ctx))
	assert.Equal(t, "cmd_start", HandlerFrom(ctx))
	assert.Empty(t, RunIDFrom(ctx))
	assert.Equal(t, "7.-2s.16", CompactRID(BuildRID(7, -100, 42)))
}
