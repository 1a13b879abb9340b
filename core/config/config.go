package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token    string `yaml:"token" envconfig:"BOT_TOKEN"`
	Username string `yaml:"username" envconfig:"BOT_USERNAME"`
	AdminID  int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode  string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`

	// UseLocalAPI routes Bot API calls through a self-hosted Bot API server.
	UseLocalAPI bool   `yaml:"use_local_api" envconfig:"USE_LOCAL_API"`
	LocalAPIURL string `yaml:"local_api_url" envconfig:"LOCAL_API_URL"`

	FileUploadLimitMB   int `yaml:"file_upload_limit_mb" envconfig:"FILE_UPLOAD_LIMIT_MB"`
	FileDownloadLimitMB int `yaml:"file_download_limit_mb" envconfig:"FILE_DOWNLOAD_LIMIT_MB"`
}

// APIModeName returns a human-readable name of the configured Bot API mode.
func (t TelegramConfig) APIModeName() string {
	if t.UseLocalAPI {
		return "Local Bot API"
	}
	return "Public Bot API"
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Defaults applied by Normalize when the file limits or local API URL are unset.
const (
	DefaultUploadLimitMB        = 50
	DefaultDownloadLimitMB      = 20
	DefaultLocalUploadLimitMB   = 2000
	DefaultLocalDownloadLimitMB = 2000
	DefaultLocalAPIURL          = "http://localhost:8081"
)

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Env       string          `yaml:"env" envconfig:"ENV"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode fills out from the YAML file at path and then overlays environment
// variables. A missing file is tolerated so that containers can run on env alone.
func Decode(path string, out any) error {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := envconfig.Process("", out); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.Env == "" {
		cfg.Env = "development"
	}

	if cfg.Telegram.UseLocalAPI && strings.TrimSpace(cfg.Telegram.LocalAPIURL) == "" {
		cfg.Telegram.LocalAPIURL = DefaultLocalAPIURL
	}
	cfg.Telegram.LocalAPIURL = strings.TrimRight(strings.TrimSpace(cfg.Telegram.LocalAPIURL), "/")
	if cfg.Telegram.FileUploadLimitMB < 0 || cfg.Telegram.FileDownloadLimitMB < 0 {
		return fmt.Errorf("telegram file limits must be >= 0")
	}
	if cfg.Telegram.FileUploadLimitMB == 0 {
		cfg.Telegram.FileUploadLimitMB = DefaultUploadLimitMB
		if cfg.Telegram.UseLocalAPI {
			cfg.Telegram.FileUploadLimitMB = DefaultLocalUploadLimitMB
		}
	}
	if cfg.Telegram.FileDownloadLimitMB == 0 {
		cfg.Telegram.FileDownloadLimitMB = DefaultDownloadLimitMB
		if cfg.Telegram.UseLocalAPI {
			cfg.Telegram.FileDownloadLimitMB = DefaultLocalDownloadLimitMB
		}
	}

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}
