package handlers

import (
	"fmt"
	"html"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/starterbot/core/config"
	coretelegram "github.com/m3rciful/starterbot/core/telegram"
)

const timestampLayout = "02.01.2006 15:04:05"

// Stats is the data shown by /status and the admin panel.
type Stats struct {
	TotalUsers  int
	ActiveUsers int
	Status      string
	LastRestart time.Time
	APIMode     string
}

// WelcomeText greets firstName and lists cmds.
func WelcomeText(firstName string, cmds []tele.Command) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👋 <b>Hello, %s!</b>\n\n", html.EscapeString(name))
	b.WriteString("🤖 This is a starter bot template.\n\n")
	b.WriteString("📝 Available commands:\n")
	writeCommands(&b, cmds)
	b.WriteString("\n✨ Ready for development!")
	return b.String()
}

// HelpText lists cmds with their descriptions.
func HelpText(cmds []tele.Command) string {
	var b strings.Builder
	b.WriteString("<b>Help</b>\n\n")
	if len(cmds) == 0 {
		b.WriteString("No commands available.")
		return b.String()
	}
	writeCommands(&b, cmds)
	return strings.TrimRight(b.String(), "\n")
}

func writeCommands(b *strings.Builder, cmds []tele.Command) {
	for _, c := range cmds {
		fmt.Fprintf(b, "• %s - %s\n", c.Text, html.EscapeString(c.Description))
	}
}

// StatusText renders the /status reply.
func StatusText(s Stats, uptime time.Duration) string {
	var b strings.Builder
	b.WriteString("<b>Bot status</b>\n\n")
	fmt.Fprintf(&b, "Status: <b>%s</b>\n", html.EscapeString(s.Status))
	fmt.Fprintf(&b, "Uptime: <b>%s</b>\n", FormatUptime(uptime))
	fmt.Fprintf(&b, "Users: <b>%d</b> (active <b>%d</b>)\n", s.TotalUsers, s.ActiveUsers)
	fmt.Fprintf(&b, "API mode: <b>%s</b>", s.APIMode)
	return b.String()
}

// AdminPanelText renders the main admin panel.
func AdminPanelText(s Stats) string {
	var b strings.Builder
	b.WriteString("<b>Admin panel</b>\n\n")
	b.WriteString("<b>Bot statistics:</b>\n")
	fmt.Fprintf(&b, "Total users: <b>%d</b>\n", s.TotalUsers)
	fmt.Fprintf(&b, "Active: <b>%d</b>\n", s.ActiveUsers)
	fmt.Fprintf(&b, "Status: <b>%s</b>\n", html.EscapeString(s.Status))
	fmt.Fprintf(&b, "Last restart: <b>%s</b>\n", formatTime(s.LastRestart))
	fmt.Fprintf(&b, "API mode: <b>%s</b>", s.APIMode)
	return b.String()
}

// APISettingsText describes the configured Bot API mode and file limits.
func APISettingsText(cfg coreconfig.TelegramConfig) string {
	var b strings.Builder
	b.WriteString("<b>Bot API settings</b>\n\n")
	fmt.Fprintf(&b, "<b>Current mode:</b> %s\n\n", cfg.APIModeName())
	b.WriteString("<b>File limits:</b>\n")
	fmt.Fprintf(&b, " Upload: <b>%d MB</b>\n", cfg.FileUploadLimitMB)
	fmt.Fprintf(&b, " Download: <b>%d MB</b>", cfg.FileDownloadLimitMB)
	if cfg.UseLocalAPI {
		fmt.Fprintf(&b, "\n\n<b>URL:</b> <code>%s</code>", html.EscapeString(cfg.LocalAPIURL))
	}
	return b.String()
}

// ProbeText renders the outcome of a local Bot API probe.
func ProbeText(res coretelegram.ProbeResult) string {
	var b strings.Builder
	checked := res.CheckedAt.Format("15:04:05")
	url := html.EscapeString(res.URL)
	if res.Available {
		b.WriteString("<b>Local Bot API server is available!</b>\n\n")
		fmt.Fprintf(&b, "URL: <code>%s</code>\n", url)
		fmt.Fprintf(&b, "Response time: <b>%d ms</b>\n", res.ResponseTime.Milliseconds())
		fmt.Fprintf(&b, "Checked: <code>%s</code>", checked)
		return b.String()
	}
	b.WriteString("<b>Local Bot API server is unavailable</b>\n\n")
	fmt.Fprintf(&b, "URL: <code>%s</code>\n", url)
	fmt.Fprintf(&b, "Error: <code>%s</code>\n", html.EscapeString(res.ErrorText()))
	fmt.Fprintf(&b, "Checked: <code>%s</code>\n\n", checked)
	b.WriteString("<b>Next steps:</b>\n")
	b.WriteString("1. Start the local Bot API server\n")
	b.WriteString("2. Check TELEGRAM_API_ID and TELEGRAM_API_HASH\n")
	b.WriteString("3. Inspect the server logs")
	return b.String()
}

// SwitchModeText explains how to switch between the public and local Bot API.
func SwitchModeText(useLocal bool) string {
	target, value := "Local", "true"
	if useLocal {
		target, value = "Public", "false"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Switching to %s Bot API</b>\n\n", target)
	b.WriteString("1. Set in the environment:\n")
	fmt.Fprintf(&b, "<code>USE_LOCAL_API=%s</code>\n\n", value)
	b.WriteString("2. Restart the bot")
	if !useLocal {
		b.WriteString("\n\n3. Make sure these are set:\nTELEGRAM_API_ID\nTELEGRAM_API_HASH\n\n")
		b.WriteString("4. Start the local Bot API server")
	}
	return b.String()
}

// FormatUptime renders d as "1d 2h 3m", or "3m 4s" below an hour.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	seconds := int(d % time.Minute / time.Second)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.Format(timestampLayout)
}
