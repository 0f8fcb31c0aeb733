package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the binaries read from the environment.
type Config struct {
	Port     string
	Store    string // postgres | sqlite | memory
	LogLevel slog.Level

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	SQLitePath string

	JWTSecret         string
	BotToken          string
	InitDataMaxAge    time.Duration
	AdminTgIDs        map[int64]bool
	AdminPasswordHash string

	RedisAddr    string
	AMQPURL      string
	AMQPExchange string
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{
		Port:       getOrDefault("PORT", "8080"),
		Store:      strings.ToLower(getOrDefault("STORE", "postgres")),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBHost:     getOrDefault("DB_HOST", "localhost"),
		DBPort:     getOrDefault("DB_PORT", "5432"),
		DBName:     os.Getenv("DB_NAME"),
		SQLitePath: getOrDefault("SQLITE_PATH", "errandhub.db"),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		BotToken:          os.Getenv("BOT_TOKEN"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getOrDefault("AMQP_EXCHANGE", "errandhub_events"),
	}

	switch cfg.Store {
	case "postgres", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("config: unknown STORE %q", cfg.Store)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}

	level, err := parseLevel(getOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	maxAge, err := time.ParseDuration(getOrDefault("INIT_DATA_MAX_AGE", "24h"))
	if err != nil {
		return nil, fmt.Errorf("config: INIT_DATA_MAX_AGE: %w", err)
	}
	cfg.InitDataMaxAge = maxAge

	cfg.AdminTgIDs, err = parseIDs(os.Getenv("ADMIN_TG_IDS"))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// PostgresDSN builds the connection string from the DB_* variables.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// MustGet returns the named variable or exits when it is unset.
func MustGet(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "required environment variable %s is not set\n", key)
		os.Exit(1)
	}
	return v
}

func getOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return l, nil
}

// parseIDs parses a comma separated list of Telegram ids.
func parseIDs(raw string) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: ADMIN_TG_IDS: bad id %q", part)
		}
		out[id] = true
	}
	return out, nil
}
