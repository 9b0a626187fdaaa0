// Package config reads the server configuration from the environment.
//
// A .env file in the working directory is loaded first if present; real
// environment variables always win over it.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/tapcard/internal/cache"
	"github.com/sakif/tapcard/internal/events"
)

type Config struct {
	Env           string // "development" or "production"
	Port          int
	DBPath        string
	JWTSecret     string
	PublicBaseURL string // used in QR codes and resolve links
	LogLevel      slog.Level
	LogFormat     string // "text" or "json"

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	VisitWindow   time.Duration

	RabbitMQURL string
	EventsQueue string

	S3Bucket        string
	S3Region        string
	S3PublicBaseURL string
}

func (c Config) Production() bool { return c.Env == "production" }

// Load reads the configuration. It fails only on malformed values or when a
// production deployment is missing its JWT secret.
func Load() (Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := Config{
		Env:             getEnv("APP_ENV", "development"),
		DBPath:          getEnv("DB_PATH", "data/tapcard.db"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RabbitMQURL:     os.Getenv("RABBITMQ_URL"),
		EventsQueue:     getEnv("EVENTS_QUEUE", events.DefaultQueue),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Region:        os.Getenv("S3_REGION"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
	}

	var err error
	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.VisitWindow, err = getDuration("VISIT_DEDUPE_WINDOW", cache.DefaultVisitWindow); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel, err = parseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return Config{}, err
	}

	cfg.PublicBaseURL = strings.TrimRight(
		getEnv("PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.Port)), "/")

	if cfg.JWTSecret == "" && cfg.Production() {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required when APP_ENV=production")
	}
	return cfg, nil
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s value %q", key, v)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s value %q", key, v)
	}
	return d, nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL value %q", s)
	}
	return l, nil
}
