// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Telegram
	TelegramBotToken string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string

	// External collaborators（未設定の場合は該当機能はフォールバック動作）
	SummarizerURL  string
	TranscriberURL string

	// Schedule
	Timezone string

	// Dispatch
	DrainGracePeriod time.Duration

	// External call timeouts
	TelegramTimeout   time.Duration
	CalendarTimeout   time.Duration
	ProviderTimeout   time.Duration
	SummarizeTimeout  time.Duration
	TranscribeTimeout time.Duration

	// Rate Limit（ユーザーごとの受付メッセージ数/分）
	MessageRatePerMin int
	MessageBurst      int

	// Server
	ServerPort string
	BaseURL    string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SummarizerURL = getEnvString("SUMMARIZER_URL", "")
	cfg.TranscriberURL = getEnvString("TRANSCRIBER_URL", "")
	cfg.Timezone = getEnvString("TIMEZONE", "Europe/Saratov")
	cfg.DrainGracePeriod = getEnvDuration("DRAIN_GRACE_PERIOD", 10*time.Second)
	cfg.TelegramTimeout = getEnvDuration("TELEGRAM_TIMEOUT", 10*time.Second)
	cfg.CalendarTimeout = getEnvDuration("CALENDAR_TIMEOUT", 15*time.Second)
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second)
	cfg.SummarizeTimeout = getEnvDuration("SUMMARIZE_TIMEOUT", 10*time.Second)
	cfg.TranscribeTimeout = getEnvDuration("TRANSCRIBE_TIMEOUT", 30*time.Second)
	cfg.MessageRatePerMin = getEnvInt("MESSAGE_RATE_PER_MIN", 20)
	cfg.MessageBurst = getEnvInt("MESSAGE_BURST", 5)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

// Location はTimezone設定をtime.Locationとして読み込む。
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// RedirectURL はOAuthコールバックの絶対URLを返す。
func (c *Config) RedirectURL() string {
	return c.BaseURL + "/auth/callback"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
