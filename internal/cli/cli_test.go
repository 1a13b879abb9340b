package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/starterbot/core/migrate"
)

func TestCommandTree(t *testing.T) {
	root := NewRootCommand()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["migrate"])

	down, _, err := root.Find([]string{"migrate", "down"})
	require.NoError(t, err)
	assert.NotNil(t, down.Flags().Lookup("steps"))
	assert.NotNil(t, down.Flags().Lookup("to"))
	assert.NotNil(t, down.Flags().Lookup("all"))
}

func TestMigrateRejectsBadInvocations(t *testing.T) {
	cases := map[string][]string{
		"zero steps":          {"migrate", "down", "--steps", "0"},
		"exclusive flags":     {"migrate", "down", "--steps", "2", "--all"},
		"to with all":         {"migrate", "down", "--to", "20241201_000001", "--all"},
		"unexpected argument": {"migrate", "status", "extra"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Execute(context.Background(), args))
		})
	}
}

func TestWriteStatus(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)

	err := writeStatus(&buf, []migrate.Status{
		{Version: "20241201_000001", Description: "Create initial tables: users, bot_stats", Registered: true, Applied: true, AppliedAt: at},
		{Version: "20241215_000001", Description: "users language code", Registered: true},
		{Version: "20250101_000001", Applied: true},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"VERSION", "STATE", "APPLIED", "AT", "DESCRIPTION"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"20241201_000001", "applied", "2024-12-01T10:00:00Z"}, strings.Fields(lines[1])[:3])
	assert.Equal(t, []string{"20241215_000001", "pending", "-", "users", "language", "code"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"20250101_000001", "unknown", "-", "-"}, strings.Fields(lines[3]))
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	writeSummary(&buf, migrate.Summary{
		Applied: []string{"20241215_000001"},
		Skipped: []string{"20241201_000001"},
		Current: 1,
		Failed:  "20250101_000001",
	})
	out := buf.String()
	assert.Contains(t, out, "applied: 1, skipped: 1, current: 1, concurrent: 0")
	assert.Contains(t, out, "applied 20241215_000001")
	assert.Contains(t, out, "skipped 20241201_000001")
	assert.Contains(t, out, "failed  20250101_000001")
}
