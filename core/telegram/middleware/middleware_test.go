package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func newContext(t *testing.T, upd tele.Update) tele.Context {
	t.Helper()

	bot, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return bot.NewContext(upd)
}

func textUpdate(id int, userID int64, text string) tele.Update {
	return tele.Update{
		ID: id,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   text,
		},
	}
}

func TestAdminOnlyMiddleware(t *testing.T) {
	var called, rejected int
	next := func(tele.Context) error { called++; return nil }
	reject := func(tele.Context) error { rejected++; return nil }

	t.Run("admin passes", func(t *testing.T) {
		called, rejected = 0, 0
		h := AdminOnlyMiddleware(AdminOptions{AdminID: 42, OnReject: reject})(next)
		require.NoError(t, h(newContext(t, textUpdate(1, 42, "/admin"))))
		assert.Equal(t, 1, called)
		assert.Zero(t, rejected)
	})

	t.Run("other user rejected", func(t *testing.T) {
		called, rejected = 0, 0
		h := AdminOnlyMiddleware(AdminOptions{AdminID: 42, OnReject: reject})(next)
		require.NoError(t, h(newContext(t, textUpdate(2, 7, "/admin"))))
		assert.Zero(t, called)
		assert.Equal(t, 1, rejected)
	})

	t.Run("unset admin matches nobody", func(t *testing.T) {
		called, rejected = 0, 0
		h := AdminOnlyMiddleware(AdminOptions{OnReject: reject})(next)
		require.NoError(t, h(newContext(t, textUpdate(3, 42, "/admin"))))
		assert.Zero(t, called)
		assert.Equal(t, 1, rejected)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	clock := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)
	var handled, limited int
	h := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
		now:       func() time.Time { return clock },
	})(func(tele.Context) error { handled++; return nil })

	require.NoError(t, h(newContext(t, textUpdate(1, 5, "a"))))
	require.NoError(t, h(newContext(t, textUpdate(2, 5, "b"))))
	assert.Equal(t, 1, handled)
	assert.Equal(t, 1, limited)

	require.NoError(t, h(newContext(t, textUpdate(3, 6, "c"))), "other users are tracked separately")
	assert.Equal(t, 2, handled)

	cb := tele.Update{ID: 4, Callback: &tele.Callback{Sender: &tele.User{ID: 5}, Data: "\fadmin_refresh"}}
	require.NoError(t, h(newContext(t, cb)))
	assert.Equal(t, 3, handled, "callbacks are excluded")

	clock = clock.Add(time.Second)
	require.NoError(t, h(newContext(t, textUpdate(5, 5, "d"))))
	assert.Equal(t, 4, handled)
	assert.Equal(t, 1, limited)
}

func TestUpdateKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "message", UpdateKind(tele.Update{Message: &tele.Message{}}))
	assert.Equal(t, "callback", UpdateKind(tele.Update{Callback: &tele.Callback{}}))
	assert.Equal(t, "inline_query", UpdateKind(tele.Update{Query: &tele.Query{}}))
	assert.Equal(t, "other", UpdateKind(tele.Update{}))
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(newContext(t, textUpdate(1, 5, "x")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestLoggerMiddlewareSetsRID(t *testing.T) {
	var rid string
	h := LoggerMiddleware(func(c tele.Context) error {
		rid, _ = c.Get("rid").(string)
		return nil
	})
	require.NoError(t, h(newContext(t, textUpdate(9, 5, "hello"))))
	assert.NotEmpty(t, rid)
}

func TestGetCountersDefaults(t *testing.T) {
	c := newContext(t, textUpdate(1, 5, "x"))
	msgs, kb := GetCounters(c)
	assert.Zero(t, msgs)
	assert.False(t, kb)

	var inner tele.Context
	h := MessageMetricsMiddleware(func(c tele.Context) error { inner = c; return nil })
	require.NoError(t, h(c))
	_, wrapped := inner.(metricsContext)
	assert.True(t, wrapped)
	assert.True(t, hasKeyboard([]any{&tele.ReplyMarkup{}}))
	assert.False(t, hasKeyboard([]any{&tele.SendOptions{}}))
}
