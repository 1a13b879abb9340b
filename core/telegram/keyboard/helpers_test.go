package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineButtonsRows(t *testing.T) {
	t.Parallel()

	markup := InlineButtonsRows(
		[]InlineBtn{{Text: "Refresh", Unique: "admin_refresh"}, {Text: "API", Unique: "admin_api"}},
		[]InlineBtn{{Text: "Back", Unique: "admin_back"}},
	)
	require.Len(t, markup.InlineKeyboard, 2)
	require.Len(t, markup.InlineKeyboard[0], 2)
	assert.Equal(t, "Refresh", markup.InlineKeyboard[0][0].Text)
	assert.Equal(t, "admin_refresh", markup.InlineKeyboard[0][0].Unique)
	assert.Equal(t, "admin_back", markup.InlineKeyboard[1][0].Unique)
}

func TestInlineButtonsOnePerRow(t *testing.T) {
	t.Parallel()

	markup := InlineButtons(InlineBtn{Text: "A", Unique: "a"}, InlineBtn{Text: "B", Unique: "b", Data: "1"})
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "b", markup.InlineKeyboard[1][0].Unique)
	assert.Equal(t, "1", markup.InlineKeyboard[1][0].Data)
}
