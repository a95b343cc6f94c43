package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alextreichler/shopbot/internal/logging"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	DefaultPort             = "8585"
	DefaultDBPath           = "shop_database.db"
	DefaultPrefix           = "s!"
	DefaultReminderInterval = 2 * time.Minute
	DefaultPriceFeedURL     = "https://api.coingecko.com/api/v3"
	DefaultPriceFeedTimeout = 10 * time.Second
	DefaultPriceCacheTTL    = time.Minute
)

var ErrMissingToken = errors.New("DISCORD_TOKEN is not set")

type Config struct {
	// Chat bot
	DiscordToken     string
	AdminRoleID      string
	AdminChannelID   string
	LTCAddress       string
	CommandPrefix    string
	ReminderInterval time.Duration

	// Price feed. A positive FixedLTCRate bypasses the HTTP feed.
	PriceFeedURL     string
	PriceFeedTimeout time.Duration
	PriceCacheTTL    time.Duration
	FixedLTCRate     decimal.Decimal

	// Admin dashboard
	Port         string
	DBPath       string
	CSRFKey      []byte
	SessionKey   []byte
	CookieDomain string
	CookieSecure bool

	Log logging.Config
}

// LoadConfig reads path when given, otherwise ./.env if present, and lets
// environment variables override either. Keys are the environment names,
// matched case-insensitively in files.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	cfg := &Config{
		DiscordToken:   strings.TrimSpace(v.GetString("discord_token")),
		AdminRoleID:    strings.TrimSpace(v.GetString("admin_role_id")),
		AdminChannelID: strings.TrimSpace(v.GetString("admin_channel_id")),
		LTCAddress:     strings.TrimSpace(v.GetString("ltc_address")),
		CommandPrefix:  v.GetString("command_prefix"),
		PriceFeedURL:   strings.TrimRight(v.GetString("price_feed_url"), "/"),
		Port:           v.GetString("port"),
		DBPath:         v.GetString("db_path"),
		CookieDomain:   v.GetString("cookie_domain"),
		CookieSecure:   v.GetBool("cookie_secure"),
		Log: logging.Config{
			Level:      v.GetString("log_level"),
			Format:     v.GetString("log_format"),
			Output:     v.GetString("log_output"),
			FilePath:   v.GetString("log_file"),
			MaxSizeMB:  v.GetInt("log_max_size"),
			MaxBackups: v.GetInt("log_max_backups"),
			MaxAgeDays: v.GetInt("log_max_age"),
			Compress:   v.GetBool("log_compress"),
		},
	}

	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = DefaultPrefix
	}
	cfg.ReminderInterval = duration(v, "reminder_interval", DefaultReminderInterval)
	cfg.PriceFeedTimeout = duration(v, "price_feed_timeout", DefaultPriceFeedTimeout)
	cfg.PriceCacheTTL = duration(v, "price_cache_ttl", DefaultPriceCacheTTL)

	if raw := strings.TrimSpace(v.GetString("ltc_usd_rate")); raw != "" {
		rate, err := decimal.NewFromString(raw)
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("LTC_USD_RATE must be a positive number, got %q", raw)
		}
		cfg.FixedLTCRate = rate
	}

	if cfg.AdminRoleID != "" {
		if _, err := strconv.ParseUint(cfg.AdminRoleID, 10, 64); err != nil {
			return nil, fmt.Errorf("ADMIN_ROLE_ID must be numeric, got %q", cfg.AdminRoleID)
		}
	}

	// CSRF Key (critical for security)
	cfg.CSRFKey = secretKey(v.GetString("csrf_key"), "CSRF_KEY")
	// Session Key (critical for security)
	cfg.SessionKey = secretKey(v.GetString("session_key"), "SESSION_KEY")

	// Make sure port is valid
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		slog.Error("Invalid PORT. Falling back to default.", "PORT", cfg.Port)
		cfg.Port = DefaultPort
	}

	return cfg, nil
}

// Validate checks what the bot process needs on top of what the CLI needs.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return ErrMissingToken
	}
	if c.LTCAddress == "" {
		slog.Warn("LTC_ADDRESS is not set. Buyers will not be told where to pay.")
	}
	if c.AdminRoleID == "" || c.AdminRoleID == "0" {
		slog.Warn("ADMIN_ROLE_ID is not set. Only members with the Administrator permission can run admin commands.")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discord_token", "")
	v.SetDefault("admin_role_id", "")
	v.SetDefault("admin_channel_id", "")
	v.SetDefault("ltc_address", "")
	v.SetDefault("command_prefix", DefaultPrefix)
	v.SetDefault("reminder_interval", DefaultReminderInterval.String())
	v.SetDefault("price_feed_url", DefaultPriceFeedURL)
	v.SetDefault("price_feed_timeout", DefaultPriceFeedTimeout.String())
	v.SetDefault("price_cache_ttl", DefaultPriceCacheTTL.String())
	v.SetDefault("ltc_usd_rate", "")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("db_path", DefaultDBPath)
	v.SetDefault("csrf_key", "")
	v.SetDefault("session_key", "")
	v.SetDefault("cookie_domain", "")
	v.SetDefault("cookie_secure", false)

	logDefaults := logging.DefaultConfig()
	v.SetDefault("log_level", logDefaults.Level)
	v.SetDefault("log_format", logDefaults.Format)
	v.SetDefault("log_output", logDefaults.Output)
	v.SetDefault("log_file", logDefaults.FilePath)
	v.SetDefault("log_max_size", logDefaults.MaxSizeMB)
	v.SetDefault("log_max_backups", logDefaults.MaxBackups)
	v.SetDefault("log_max_age", logDefaults.MaxAgeDays)
	v.SetDefault("log_compress", logDefaults.Compress)
}

func duration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil || d <= 0 {
		slog.Warn("Invalid duration, using default", "key", strings.ToUpper(key), "value", v.GetString(key), "default", fallback.String())
		return fallback
	}
	return d
}

// secretKey decodes a base64 key of at least 32 bytes, or generates a random one
// with a warning.
func secretKey(encoded, name string) []byte {
	if encoded == "" {
		slog.Warn(name + " is not set. Generating a random key for development. This key will change on each restart. PLEASE SET " + name + " IN PRODUCTION!")
		return generateRandomBytes(32)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(decoded) < 32 {
		slog.Warn(name + " is invalid or too short (min 32 bytes). Generating a random key for development. PLEASE SET A SECURE " + name + " IN PRODUCTION!")
		return generateRandomBytes(32)
	}
	return decoded
}

// generateRandomBytes generates a random byte slice of specified length
// Uses crypto/rand for secure random numbers.
func generateRandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		slog.Error("Failed to read random bytes", "error", err)
		// Only here to avoid a panic; never meant for production.
		fallbackKey := "fallback-insecure-key-" + strconv.FormatInt(time.Now().UnixNano(), 10)
		if len(fallbackKey) < n {
			paddedKey := make([]byte, n)
			copy(paddedKey, fallbackKey)
			return paddedKey
		}
		return []byte(fallbackKey)[:n]
	}
	return b
}
