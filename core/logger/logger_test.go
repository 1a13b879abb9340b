package logger

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	coreconfig "github.com/m3rciful/starterbot/core/config"
)

func TestResolveSettingsDefaults(t *testing.T) {
	t.Parallel()

	s := resolveSettings(nil)
	assert.Equal(t, formatJSON, s.format)
	assert.Equal(t, slog.LevelInfo, s.level)
	assert.Equal(t, "prod", s.profile)
	assert.Equal(t, defaultKeyOrder, s.keyOrder)
	assert.Equal(t, 1, s.sampleN)
	assert.Equal(t, 50, s.sampleD)
	assert.Empty(t, s.filePath)
}

func TestResolveSettings(t *testing.T) {
	t.Parallel()

	cfg := &coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Profile:     "Dev",
		Level:       "warning",
		KeysOrder:   " ts, event ,,level",
		DebugSample: "0",
		Dir:         "logs",
		BotFile:     "bot.log",
	}}
	s := resolveSettings(cfg)
	assert.Equal(t, formatKV, s.format)
	assert.Equal(t, slog.LevelWarn, s.level)
	assert.Equal(t, "dev", s.profile)
	assert.Equal(t, []string{"ts", "event", "level"}, s.keyOrder)
	assert.Zero(t, s.sampleN)
	assert.Equal(t, filepath.Join("logs", "bot.log"), s.filePath)

	cfg.Logging.Format = "json"
	assert.Equal(t, formatJSON, resolveSettings(cfg).format)
}

func TestUtilHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ok", Status(nil))
	assert.Equal(t, "error", Status(assert.AnError))
	assert.Zero(t, RoundMS(-time.Second))
	assert.Equal(t, 2*time.Millisecond, RoundMS(1600*time.Microsecond))

	list, cut := SummarizeStrings([]string{"a", "b", "c"}, 2)
	assert.Equal(t, "a, b", list)
	assert.True(t, cut)
	list, cut = SummarizeStrings([]string{"a"}, 0)
	assert.Empty(t, list)
	assert.True(t, cut)
	list, cut = SummarizeStrings(nil, 3)
	assert.Empty(t, list)
	assert.False(t, cut)
}
