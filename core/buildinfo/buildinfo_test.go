package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })

	Version, Commit, Date = "v1.0.0", "abc1234", ""
	assert.Equal(t, "v1.0.0 (abc1234)", String())

	Date = "2024-12-01T00:00:00Z"
	assert.Equal(t, "v1.0.0 (abc1234, 2024-12-01T00:00:00Z)", String())
}
