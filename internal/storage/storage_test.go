package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileNullsEmptyFields(t *testing.T) {
	u := Profile(42, "neo", "Thomas", "", "en")

	assert.Equal(t, int64(42), u.ID)
	assert.True(t, u.Username.Valid)
	assert.Equal(t, "neo", u.Username.String)
	assert.True(t, u.FirstName.Valid)
	assert.False(t, u.LastName.Valid)
	assert.Equal(t, "en", u.LanguageCode.String)
	assert.True(t, u.IsActive)
}
