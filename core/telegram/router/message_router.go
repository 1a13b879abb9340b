package router

import (
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/starterbot/core/telegram"
	"github.com/m3rciful/starterbot/core/telegram/middleware"
)

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes builds the handler for plain text. Text that names a registered
// command (with or without the slash) is dispatched to it, everything else
// goes to the registry fallback.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	return []tg.Route{{
		Endpoint: tele.OnText,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(textHandler(reg, opts))),
	}}
}

func textHandler(reg *tg.Registry, opts TextOptions) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		text := strings.TrimSpace(c.Text())

		if reg != nil && text != "" && !strings.ContainsAny(text, " \n") {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil && !cmd.AdminOnly {
				name := normalizeHandlerName(key)
				return handled(c, name, start, func() error {
					return cmd.Handler(c)
				})
			}
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handled(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handled(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}

		skipped(c, "unknown_text", start)
		return nil
	}
}
