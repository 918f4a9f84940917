// Package config loads the streakd configuration from a YAML file with
// sensible defaults and environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Telegram holds the Telegram notification settings.
type Telegram struct {
	Enabled bool `yaml:"enabled"`
	// BotToken and ChatID are usually supplied via STREAKD_TELEGRAM_TOKEN and
	// STREAKD_TELEGRAM_CHAT_ID rather than committed to the config file.
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	// MirrorLevel is the minimum severity mirrored to Telegram: debug, info,
	// warn, error or fatal.
	MirrorLevel   string `yaml:"mirror_level"`
	MinIntervalMs int    `yaml:"min_interval_ms"`
}

// Config is the full streakd configuration.
type Config struct {
	BaseURL     string `yaml:"base_url"`
	MessagesURL string `yaml:"messages_url"`

	Message      string `yaml:"message"`
	ScheduleTime string `yaml:"schedule_time"` // 24h HH:MM

	CookiesFile  string `yaml:"cookies_file"`
	ContactsFile string `yaml:"contacts_file"`

	Headless bool `yaml:"headless"`

	PageLoadWaitMs int `yaml:"page_load_wait_ms"`
	ElementWaitMs  int `yaml:"element_wait_ms"`
	SendDelayMs    int `yaml:"send_delay_ms"`
	RetryDelayMs   int `yaml:"retry_delay_ms"`

	ListenAddr string `yaml:"listen_addr"`
	APIKey     string `yaml:"api_key"`

	Telegram Telegram `yaml:"telegram"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		BaseURL:        "https://www.tiktok.com",
		MessagesURL:    "https://www.tiktok.com/messages",
		Message:        "\U0001F525 Streak Reminder \U0001F525",
		ScheduleTime:   "07:00",
		CookiesFile:    "cookies.json",
		ContactsFile:   "contacts.json",
		Headless:       false,
		PageLoadWaitMs: 5000,
		ElementWaitMs:  3000,
		SendDelayMs:    2000,
		RetryDelayMs:   2000,
		ListenAddr:     ":8000",
		Telegram: Telegram{
			Enabled:       false,
			MirrorLevel:   "info",
			MinIntervalMs: 1000,
		},
	}
}

// Load reads the config file at path, layered over defaults. A missing file is
// not an error; the defaults are returned. Environment overrides are applied
// last so secrets never need to live in the file.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("STREAKD_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("STREAKD_TELEGRAM_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("STREAKD_TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
}

// PageLoadWait returns the wait applied after full page navigations.
func (c Config) PageLoadWait() time.Duration {
	if c.PageLoadWaitMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.PageLoadWaitMs) * time.Millisecond
}

// ElementWait returns the wait applied after opening a conversation.
func (c Config) ElementWait() time.Duration {
	if c.ElementWaitMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.ElementWaitMs) * time.Millisecond
}

// SendDelay returns the settle delay after submitting a message.
func (c Config) SendDelay() time.Duration {
	if c.SendDelayMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.SendDelayMs) * time.Millisecond
}

// RetryDelay returns the pause between failed delivery attempts.
func (c Config) RetryDelay() time.Duration {
	if c.RetryDelayMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// MinInterval returns the minimum interval between Telegram sends.
func (t Telegram) MinInterval() time.Duration {
	if t.MinIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(t.MinIntervalMs) * time.Millisecond
}
