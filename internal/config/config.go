package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvProduction は本番環境を示すAPP_ENVの値。
const EnvProduction = "production"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// App
	AppEnv   string
	LogLevel string

	// Server
	ServerPort    string
	MaxUploadSize int64

	// Identification (Gemini)
	GeminiAPIKey    string
	GeminiModel     string
	IdentifyTimeout time.Duration

	// Cache store
	DatabaseURL     string
	CacheTTL        time.Duration
	CleanupInterval time.Duration

	// Listing source
	ListingTimeout     time.Duration
	ListingMinDelay    time.Duration
	ListingMaxDelay    time.Duration
	ListingRatePerSec  float64
	ListingIncludeSold bool

	// Verification
	VerifyEnabled    bool
	VerifyTimeout    time.Duration
	VerifyMaxResults int

	// CORS
	CORSAllowedOrigins []string
}

// IdentificationEnabled は画像識別APIキーが設定されているかを返す。
func (c *Config) IdentificationEnabled() bool {
	return c.GeminiAPIKey != ""
}

// CacheEnabled はキャッシュストアが設定されているかを返す。
func (c *Config) CacheEnabled() bool {
	return c.DatabaseURL != ""
}

// IsProduction は本番環境かを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込む。
// 外部サービスの設定はすべて任意で、未設定のサービスは無効化される。
// 設定値の組み合わせが不正な場合はエラーを返す。
func Load() (*Config, error) {
	// .envは任意。既に設定済みの環境変数は上書きしない
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	cfg.AppEnv = getEnvString("APP_ENV", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 10485760)

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-flash-latest")
	cfg.IdentifyTimeout = getEnvDuration("IDENTIFY_TIMEOUT", 30*time.Second)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", 24*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)

	cfg.ListingTimeout = getEnvDuration("LISTING_TIMEOUT", 15*time.Second)
	cfg.ListingMinDelay = getEnvDuration("LISTING_MIN_DELAY", 500*time.Millisecond)
	cfg.ListingMaxDelay = getEnvDuration("LISTING_MAX_DELAY", 1500*time.Millisecond)
	cfg.ListingRatePerSec = getEnvFloat("LISTING_RATE_PER_SEC", 1)
	cfg.ListingIncludeSold = getEnvBool("LISTING_INCLUDE_SOLD", false)

	cfg.VerifyEnabled = getEnvBool("VERIFY_ENABLED", true)
	cfg.VerifyTimeout = getEnvDuration("VERIFY_TIMEOUT", 10*time.Second)
	cfg.VerifyMaxResults = getEnvInt("VERIFY_MAX_RESULTS", 5)

	cfg.CORSAllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// 開発環境ではオリジン未指定時に全許可とする
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	return cfg, nil
}

// validate は設定値の組み合わせを検証する。
func (c *Config) validate() error {
	var problems []string

	if c.ListingMinDelay < 0 {
		problems = append(problems, "LISTING_MIN_DELAY must not be negative")
	}
	if c.ListingMaxDelay < c.ListingMinDelay {
		problems = append(problems, "LISTING_MAX_DELAY must be >= LISTING_MIN_DELAY")
	}
	if c.ListingRatePerSec <= 0 {
		problems = append(problems, "LISTING_RATE_PER_SEC must be positive")
	}
	if c.VerifyMaxResults <= 0 {
		problems = append(problems, "VERIFY_MAX_RESULTS must be positive")
	}
	if c.CacheTTL <= 0 {
		problems = append(problems, "CACHE_TTL must be positive")
	}
	if c.CleanupInterval <= 0 {
		problems = append(problems, "CLEANUP_INTERVAL must be positive")
	}
	if c.MaxUploadSize <= 0 {
		problems = append(problems, "MAX_UPLOAD_SIZE must be positive")
	}
	if c.IsProduction() && len(c.CORSAllowedOrigins) == 0 {
		problems = append(problems, "CORS_ALLOWED_ORIGINS is required in production")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %v", problems)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
