package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はプロバイダーバックエンドの設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge int // 秒

	// Password
	PasswordMinLength int
	ResetTokenTTL     time.Duration

	// Rate Limit（req/min）
	RateLimitAuth int
	RateLimitAPI  int

	// Worker
	CleanupInterval time.Duration

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string // カンマ区切りで複数指定可
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

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.PasswordMinLength = getEnvInt("PASSWORD_MIN_LENGTH", 6)
	cfg.ResetTokenTTL = getEnvDuration("RESET_TOKEN_TTL", time.Hour)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.RateLimitAPI = getEnvInt("RATE_LIMIT_API", 120)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.LogLevel = getEnvLevel("LOG_LEVEL", slog.LevelInfo)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.ServerPort)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	return cfg, nil
}

// ClientMode はクライアントのバックエンド種別。
type ClientMode string

const (
	// ModeRemote はプロバイダーAPIを使用する。
	ModeRemote ClientMode = "remote"
	// ModeLocal は端末内の設定ストアのみを使用する。
	ModeLocal ClientMode = "local"
)

// ClientConfig はクライアント（shellサブコマンド）の設定を保持する。
type ClientConfig struct {
	Mode            ClientMode
	APIURL          string
	PrefsPath       string
	SeedSource      string // RSS/AtomのURLまたはファイル。空なら組み込みのシード
	RefreshInterval time.Duration
	LogLevel        slog.Level
}

// LoadClient は環境変数からClientConfigを読み込む。
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		Mode:            ClientMode(strings.ToLower(getEnvString("AMIOT_MODE", string(ModeRemote)))),
		APIURL:          getEnvString("AMIOT_API_URL", "http://localhost:8080"),
		PrefsPath:       getEnvString("AMIOT_PREFS_PATH", "amiot-prefs.db"),
		SeedSource:      os.Getenv("AMIOT_SEED_SOURCE"),
		RefreshInterval: getEnvDuration("AMIOT_REFRESH_INTERVAL", 30*time.Minute),
		LogLevel:        getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}

	switch cfg.Mode {
	case ModeRemote, ModeLocal:
	default:
		return nil, fmt.Errorf("invalid AMIOT_MODE %q: must be %q or %q", cfg.Mode, ModeRemote, ModeLocal)
	}
	return cfg, nil
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

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
