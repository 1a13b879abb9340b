// Package handlers implements the bot commands and the admin panel.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/starterbot/core/config"
	"github.com/m3rciful/starterbot/core/logger"
	coretelegram "github.com/m3rciful/starterbot/core/telegram"
	"github.com/m3rciful/starterbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/starterbot/core/telegram/helpers"
	"github.com/m3rciful/starterbot/core/telegram/keyboard"
	"github.com/m3rciful/starterbot/core/telegram/middleware"
	"github.com/m3rciful/starterbot/internal/storage"
)

// Callback keys of the admin panel buttons.
const (
	CallbackRefresh     = "admin_refresh"
	CallbackAPISettings = "admin_api_settings"
	CallbackCheckAPI    = "api_check_status"
	CallbackSwitchMode  = "api_switch_mode"
	CallbackBack        = "api_back"
)

const (
	opTimeout     = 10 * time.Second
	noPermission  = "No permission"
	adminOnlyText = "⛔ This command is available to the administrator only."
	fallbackText  = "I don't understand that yet. Send /help to see what I can do."
	limitedText   = "Too many requests, please slow down."
	errorText     = "Something went wrong, please try again later."
)

// Store is the storage surface used by the handlers.
type Store interface {
	UpsertUser(ctx context.Context, u storage.User) error
	SetUserActive(ctx context.Context, id int64, active bool) error
	GetBotStats(ctx context.Context) (*storage.BotStats, error)
	RefreshBotStats(ctx context.Context) (*storage.BotStats, error)
	GetUsersCount(ctx context.Context) (int, error)
	GetActiveUsersCount(ctx context.Context) (int, error)
}

// Deps carries everything the handlers need.
type Deps struct {
	Store    Store
	Telegram coreconfig.TelegramConfig
	// HTTPClient is used for the local Bot API probe.
	HTTPClient *http.Client
	StartedAt  time.Time
	Now        func() time.Time
}

// Handlers serves the bot commands.
type Handlers struct {
	deps     Deps
	registry *coretelegram.Registry
}

// New returns Handlers over deps.
func New(deps Deps) *Handlers {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = deps.Now()
	}
	return &Handlers{deps: deps}
}

// Register adds the commands, admin callbacks and the text fallback to reg.
func (h *Handlers) Register(reg *coretelegram.Registry) error {
	h.registry = reg
	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{Handler: h.Start, Description: "Start the bot"}},
		{"/help", commands.Command{Handler: h.Help, Description: "Help"}},
		{"/status", commands.Command{Handler: h.Status, Description: "Bot status"}},
		{"/admin", commands.Command{Handler: h.Admin, Description: "Admin panel", AdminOnly: true}},
	}
	var errs []error
	for _, c := range cmds {
		c.cmd.Handler = h.deactivateBlocked(c.cmd.Handler)
		errs = append(errs, reg.RegisterCommand(c.name, c.cmd))
	}

	callbacks := map[string]tele.HandlerFunc{
		CallbackRefresh:     h.adminOnly(h.Refresh),
		CallbackAPISettings: h.adminOnly(h.APISettings),
		CallbackCheckAPI:    h.adminOnly(h.CheckAPI),
		CallbackSwitchMode:  h.adminOnly(h.SwitchMode),
		CallbackBack:        h.adminOnly(h.Back),
	}
	for key, fn := range callbacks {
		errs = append(errs, reg.RegisterCallback(key, h.deactivateBlocked(fn)))
	}
	reg.SetTextFallback(h.deactivateBlocked(h.Fallback))
	return errors.Join(errs...)
}

// Start records the sender and greets them.
func (h *Handlers) Start(c tele.Context) error {
	ctx, cancel := h.opContext(c)
	defer cancel()

	name := ""
	if u := c.Sender(); u != nil {
		name = u.FirstName
		user := storage.Profile(u.ID, u.Username, u.FirstName, u.LastName, u.LanguageCode)
		if err := h.deps.Store.UpsertUser(ctx, user); err != nil {
			h.logFailure(ctx, "start.upsert_user", err)
		}
	}
	return c.Send(WelcomeText(name, h.registry.ListCommands(true)))
}

// Help lists the commands visible to the sender.
func (h *Handlers) Help(c tele.Context) error {
	isAdmin := middleware.IsAdmin(h.deps.Telegram.AdminID, c)
	return c.Send(HelpText(h.registry.HelpCommands(isAdmin)))
}

// Status reports bot status, uptime and user counts.
func (h *Handlers) Status(c tele.Context) error {
	ctx, cancel := h.opContext(c)
	defer cancel()

	stats, err := h.collectStats(ctx, false)
	if err != nil {
		h.logFailure(ctx, "status.stats", err)
		return c.Send(errorText)
	}
	return c.Send(StatusText(stats, h.deps.Now().Sub(h.deps.StartedAt)))
}

// Admin opens the admin panel.
func (h *Handlers) Admin(c tele.Context) error {
	ctx, cancel := h.opContext(c)
	defer cancel()

	stats, err := h.collectStats(ctx, false)
	if err != nil {
		h.logFailure(ctx, "admin.stats", err)
		return c.Send(errorText)
	}
	return c.Send(AdminPanelText(stats), adminMenu())
}

// Refresh recomputes the stored counters and redraws the panel.
func (h *Handlers) Refresh(c tele.Context) error {
	return h.showPanel(c, true, "Statistics refreshed")
}

// Back returns from the API settings to the main panel.
func (h *Handlers) Back(c tele.Context) error {
	return h.showPanel(c, false, "")
}

func (h *Handlers) showPanel(c tele.Context, refresh bool, notice string) error {
	ctx, cancel := h.opContext(c)
	defer cancel()

	stats, err := h.collectStats(ctx, refresh)
	if err != nil {
		h.logFailure(ctx, "admin.stats", err)
		return c.Respond(&tele.CallbackResponse{Text: errorText})
	}
	if err := c.Edit(AdminPanelText(stats), adminMenu()); err != nil && !errors.Is(err, tele.ErrSameMessageContent) {
		return err
	}
	return c.Respond(&tele.CallbackResponse{Text: notice})
}

// APISettings shows the Bot API mode and file limits.
func (h *Handlers) APISettings(c tele.Context) error {
	if err := c.Edit(APISettingsText(h.deps.Telegram), apiSettingsMenu(h.deps.Telegram.UseLocalAPI)); err != nil {
		return err
	}
	return c.Respond()
}

// CheckAPI probes the local Bot API server and shows the result.
func (h *Handlers) CheckAPI(c tele.Context) error {
	ctx, cancel := h.opContext(c)
	defer cancel()

	_ = c.Respond(&tele.CallbackResponse{Text: "Checking..."})

	url := h.deps.Telegram.LocalAPIURL
	if url == "" {
		url = coreconfig.DefaultLocalAPIURL
	}
	res := coretelegram.ProbeLocalAPI(ctx, h.deps.HTTPClient, url)
	logger.LogEvent(ctx, logger.Handlers, slog.LevelInfo, "admin.api_check",
		slog.String("status", probeStatus(res)),
		slog.String("url", res.URL),
		slog.Int("http_status", res.StatusCode),
		slog.Duration("response_time", logger.RoundMS(res.ResponseTime)),
	)

	err := c.Edit(ProbeText(res), apiSettingsMenu(h.deps.Telegram.UseLocalAPI))
	if errors.Is(err, tele.ErrSameMessageContent) {
		return nil
	}
	return err
}

// SwitchMode shows how to switch the Bot API mode.
func (h *Handlers) SwitchMode(c tele.Context) error {
	if err := c.Edit(SwitchModeText(h.deps.Telegram.UseLocalAPI), apiBackMenu()); err != nil {
		return err
	}
	return c.Respond()
}

// Fallback answers text that matched no command.
func (h *Handlers) Fallback(c tele.Context) error {
	return c.Send(fallbackText)
}

// RejectAdmin answers non-admins that invoked an admin command.
func (h *Handlers) RejectAdmin(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: noPermission})
	}
	return c.Send(adminOnlyText)
}

// RateLimited answers updates dropped by the rate limiter.
func (h *Handlers) RateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: limitedText})
	}
	return nil
}

func (h *Handlers) adminOnly(next tele.HandlerFunc) tele.HandlerFunc {
	return middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  h.deps.Telegram.AdminID,
		OnReject: h.RejectAdmin,
	})(next)
}

// deactivateBlocked marks the sender inactive when the reply fails because
// they blocked the bot or deleted their account. The failure is consumed.
func (h *Handlers) deactivateBlocked(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		err := next(c)
		if !blockedByUser(err) {
			return err
		}
		u := c.Sender()
		if u == nil {
			return err
		}
		ctx, cancel := h.opContext(c)
		defer cancel()
		if setErr := h.deps.Store.SetUserActive(ctx, u.ID, false); setErr != nil {
			h.logFailure(ctx, "user.deactivate", setErr)
			return err
		}
		logger.LogEvent(ctx, logger.Handlers, slog.LevelInfo, "user.deactivated",
			slog.Int64("user_id", u.ID),
			slog.String("reason", logger.SanitizeLimit(err.Error(), 128)),
		)
		return nil
	}
}

func blockedByUser(err error) bool {
	return errors.Is(err, tele.ErrBlockedByUser) || errors.Is(err, tele.ErrUserIsDeactivated)
}

// collectStats reads the counters. With refresh the stored row is recomputed
// first; a missing row is created the same way.
func (h *Handlers) collectStats(ctx context.Context, refresh bool) (Stats, error) {
	var (
		row *storage.BotStats
		err error
	)
	if !refresh {
		row, err = h.deps.Store.GetBotStats(ctx)
		if err != nil {
			return Stats{}, err
		}
	}
	if row == nil {
		if row, err = h.deps.Store.RefreshBotStats(ctx); err != nil {
			return Stats{}, err
		}
	}
	total, err := h.deps.Store.GetUsersCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	active, err := h.deps.Store.GetActiveUsersCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalUsers:  total,
		ActiveUsers: active,
		Status:      row.Status,
		LastRestart: row.LastRestart,
		APIMode:     h.deps.Telegram.APIModeName(),
	}, nil
}

func (h *Handlers) opContext(c tele.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(tghelpers.BuildContext(c), opTimeout)
}

func (h *Handlers) logFailure(ctx context.Context, event string, err error) {
	logger.LogEvent(ctx, logger.Handlers, slog.LevelError, event,
		slog.String("status", logger.Status(err)),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}

func probeStatus(res coretelegram.ProbeResult) string {
	if res.Available {
		return "ok"
	}
	return "fail"
}

func adminMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{{Text: "🔄 Refresh stats", Unique: CallbackRefresh}},
		[]keyboard.InlineBtn{{Text: "⚙️ API settings", Unique: CallbackAPISettings}},
	)
}

func apiSettingsMenu(useLocal bool) *tele.ReplyMarkup {
	switchText := "🏠 Switch to Local API"
	if useLocal {
		switchText = "🌍 Switch to Public API"
	}
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{{Text: "📡 Check Local API", Unique: CallbackCheckAPI}},
		[]keyboard.InlineBtn{{Text: switchText, Unique: CallbackSwitchMode}},
		[]keyboard.InlineBtn{{Text: "⬅️ Back", Unique: CallbackBack}},
	)
}

func apiBackMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtons(keyboard.InlineBtn{Text: "⬅️ Back", Unique: CallbackAPISettings})
}
