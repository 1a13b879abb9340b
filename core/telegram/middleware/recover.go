package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/starterbot/core/logger"
	tghelpers "github.com/m3rciful/starterbot/core/telegram/helpers"
)

// RecoverMiddleware catches panics in handlers and reports them as errors
// instead of crashing the bot.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				ctx, ok := tghelpers.ContextFrom(c)
				if !ok {
					ctx = context.Background()
				}
				logger.LogEvent(ctx, logger.TG, slog.LevelError, "tg.panic",
					slog.String("status", "fail"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return next(c)
	}
}
