package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/starterbot/core/telegram"
	"github.com/m3rciful/starterbot/core/telegram/commands"
)

func newContext(t *testing.T, upd tele.Update) tele.Context {
	t.Helper()

	bot, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return bot.NewContext(upd)
}

func message(userID int64, text string) tele.Update {
	return tele.Update{ID: 1, Message: &tele.Message{
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID},
		Text:   text,
	}}
}

func testRegistry(t *testing.T, calls *[]string) *tg.Registry {
	t.Helper()

	reg := tg.NewRegistry()
	record := func(name string) tele.HandlerFunc {
		return func(tele.Context) error { *calls = append(*calls, name); return nil }
	}
	require.NoError(t, reg.RegisterCommand("/help", commands.Command{Handler: record("help"), Description: "Help", Aliases: []string{"h"}}))
	require.NoError(t, reg.RegisterCommand("/admin", commands.Command{Handler: record("admin"), Description: "Admin", AdminOnly: true}))
	require.NoError(t, reg.RegisterCallback("admin_refresh", record("cb:refresh")))
	reg.SetTextFallback(record("fallback"))
	reg.SetCallbackNotFound(record("cb:missing"))
	return reg
}

func TestTextRoutes(t *testing.T) {
	var calls []string
	reg := testRegistry(t, &calls)
	routes := TextRoutes(reg, TextOptions{})
	require.Len(t, routes, 1)
	assert.Equal(t, tele.OnText, routes[0].Endpoint)
	h := routes[0].Handler

	require.NoError(t, h(newContext(t, message(5, "help"))))
	require.NoError(t, h(newContext(t, message(5, "h"))))
	require.NoError(t, h(newContext(t, message(5, "admin"))))
	require.NoError(t, h(newContext(t, message(5, "help me please"))))
	assert.Equal(t, []string{"help", "help", "fallback", "fallback"}, calls)
}

func TestCommandRoutes(t *testing.T) {
	var calls []string
	reg := testRegistry(t, &calls)
	var rejected int
	routes := CommandRoutes(reg, CommandRouteOptions{
		AdminID:       42,
		OnAdminReject: func(tele.Context) error { rejected++; return nil },
	})

	byEndpoint := make(map[string]tele.HandlerFunc)
	for _, r := range routes {
		byEndpoint[r.Endpoint.(string)] = r.Handler
	}
	require.Contains(t, byEndpoint, "/help")
	require.Contains(t, byEndpoint, "/h")
	require.Contains(t, byEndpoint, "/admin")

	require.NoError(t, byEndpoint["/admin"](newContext(t, message(5, "/admin"))))
	assert.Equal(t, 1, rejected)
	require.NoError(t, byEndpoint["/admin"](newContext(t, message(42, "/admin"))))
	require.NoError(t, byEndpoint["/h"](newContext(t, message(5, "/h"))))
	assert.Equal(t, []string{"admin", "help"}, calls)
}

func TestCallbackRoute(t *testing.T) {
	var calls []string
	reg := testRegistry(t, &calls)
	h := CallbackRoute(reg, CallbackOptions{}).Handler

	cb := func(data string) tele.Update {
		return tele.Update{ID: 2, Callback: &tele.Callback{Sender: &tele.User{ID: 42}, Data: data}}
	}
	require.NoError(t, h(newContext(t, cb("\fadmin_refresh"))))
	require.NoError(t, h(newContext(t, cb("\funknown|1"))))
	assert.Equal(t, []string{"cb:refresh", "cb:missing"}, calls)
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "rate limited" }

func TestDeriveErrorCode(t *testing.T) {
	t.Parallel()

	assert.Empty(t, deriveErrorCode(nil))
	assert.Equal(t, "RATE_LIMITED", deriveErrorCode(codedErr{}))
	assert.Equal(t, "ERRORSTRING", deriveErrorCode(errors.New("x")))
	assert.Equal(t, "HTTP_4XX", deriveErrorCode(&tele.Error{Code: 403, Description: "Forbidden"}))
	assert.Equal(t, "TIMEOUT", deriveErrorCode(context.DeadlineExceeded))
	assert.Equal(t, "start", normalizeHandlerName("/Start"))
	assert.Equal(t, "unknown", normalizeHandlerName(" "))
}
