package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/starterbot/core/config"
	"github.com/m3rciful/starterbot/core/logger"
	"github.com/m3rciful/starterbot/core/telegram/netutil"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	Middlewares []Middleware
	Routes      []Route

	// HTTPClient overrides the Bot API client; nil builds one from config.
	HTTPClient *http.Client

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot      *tele.Bot
	Registry *Registry
	// APIURL is the Bot API base URL in use after the local API probe.
	APIURL   string
	LocalAPI bool
}

// RunTelegram composes and runs a Telegram bot until the provided context is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}

	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	pollerOpts := PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	}
	poller := BuildPoller(pollerOpts)

	client := opts.HTTPClient
	if client == nil {
		client = BuildHTTPClient(HTTPClientOptions{LongPollTimeout: pollerOpts.LongPollTimeout()})
	}

	apiURL, local := ResolveAPIURL(ctx, cfg.Telegram, client)

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		URL:       apiURL,
		Token:     cfg.Telegram.Token,
		Poller:    poller,
		Client:    client,
		ParseMode: tele.ModeHTML,
		OnError:   logBotError,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %s", netutil.Redact(err.Error()))
	}
	buildTook := time.Since(buildStart)

	rt := Runtime{
		Bot:      bot,
		Registry: reg,
		APIURL:   apiURL,
		LocalAPI: local,
	}

	switch p := poller.(type) {
	case *tele.Webhook:
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "mode",
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.String("username", bot.Me.Username),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
	default:
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "mode",
			slog.String("mode", "polling"),
			slog.Int("timeout_seconds", int(pollerOpts.LongPollTimeout().Seconds())),
			slog.String("username", bot.Me.Username),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)

		if !opts.DisableWebhookCleanup {
			if err := bot.RemoveWebhook(false); err != nil {
				logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "delete_webhook",
					slog.String("status", "error"),
					slog.String("err", netutil.Redact(err.Error())),
				)
			} else {
				logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "delete_webhook",
					slog.String("status", "ok"),
				)
			}
		}
	}

	for _, mw := range opts.Middlewares {
		if mw.Use == nil {
			continue
		}
		bot.Use(mw.Use)
	}

	for _, route := range opts.Routes {
		if route.Endpoint == nil || route.Handler == nil {
			continue
		}
		bot.Handle(route.Endpoint, route.Handler)
	}

	InitBotCommands(bot, reg)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	if opts.OnStop != nil {
		// ctx is already cancelled here; give the hook its own deadline.
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := opts.OnStop(stopCtx, rt); err != nil {
			return err
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// ResolveAPIURL picks the Bot API base URL. A configured local server is used
// only if it answers the probe; otherwise the public API is used.
func ResolveAPIURL(ctx context.Context, cfg coreconfig.TelegramConfig, client *http.Client) (string, bool) {
	if !cfg.UseLocalAPI {
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "api.mode",
			slog.String("mode", cfg.APIModeName()),
			slog.Int("upload_limit_mb", cfg.FileUploadLimitMB),
		)
		return PublicAPIURL, false
	}

	res := ProbeLocalAPI(ctx, client, cfg.LocalAPIURL)
	if !res.Available {
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "api.local.unavailable",
			slog.String("api_url", res.URL),
			slog.Int("http_code", res.StatusCode),
			slog.String("err", res.ErrorText()),
		)
		return PublicAPIURL, false
	}

	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "api.mode",
		slog.String("mode", cfg.APIModeName()),
		slog.String("api_url", res.URL),
		slog.Int("http_code", res.StatusCode),
		slog.Int("upload_limit_mb", cfg.FileUploadLimitMB),
		slog.Duration("duration", logger.RoundMS(res.ResponseTime)),
	)
	return res.URL, true
}

func logBotError(err error, c tele.Context) {
	if err == nil {
		return
	}
	ctx := context.Background()
	if c != nil {
		ctx = logger.WithUpdateMeta(ctx, c.Update().ID, senderID(c), chatID(c))
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelError, "bot.error",
		slog.String("err", logger.SanitizeLimit(netutil.Redact(err.Error()), 256)),
		slog.String("err_code", netutil.Classify(err)),
	)
}

func senderID(c tele.Context) int64 {
	if u := c.Sender(); u != nil {
		return u.ID
	}
	return 0
}

func chatID(c tele.Context) int64 {
	if ch := c.Chat(); ch != nil {
		return ch.ID
	}
	return 0
}
