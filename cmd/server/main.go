// Package main is the entry point for the tapcard server.
//
// main only reads configuration, builds the outside collaborators and hands
// them to internal/server. Everything else lives in internal/.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/tapcard/internal/auth"
	"github.com/sakif/tapcard/internal/cache"
	"github.com/sakif/tapcard/internal/config"
	"github.com/sakif/tapcard/internal/events"
	"github.com/sakif/tapcard/internal/server"
	"github.com/sakif/tapcard/internal/storage"
)

func main() {
	// === 1. CONFIGURATION AND LOGGING ===
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	// === 2. DATABASE DIRECTORY ===
	// os.MkdirAll is `mkdir -p`; 0755 = owner rwx, others r-x.
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 3. AUTH ===
	// config.Load already refused a production start without a secret.
	secret := cfg.JWTSecret
	if secret == "" {
		secret = randomSecret()
		logger.Warn("JWT_SECRET not set; using a random secret, tokens die with this process")
	}
	tokens, err := auth.NewTokenService(secret)
	if err != nil {
		logger.Error("invalid JWT secret", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 4. OPTIONAL COLLABORATORS ===
	// Each one degrades to "off" when it is not configured.
	collab := server.Collaborators{Tokens: tokens}

	if cfg.RabbitMQURL != "" {
		pub := events.NewAMQPPublisher(cfg.RabbitMQURL, cfg.EventsQueue, logger)
		defer pub.Close()
		collab.Events = pub
	} else {
		logger.Info("RABBITMQ_URL not set; lifecycle events are not published")
	}

	if rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); rdb != nil {
		defer rdb.Close()
		collab.Dedupe = cache.NewVisitDeduper(rdb, cfg.VisitWindow)
	} else {
		logger.Info("redis unavailable; every visit is recorded")
	}

	if cfg.S3Bucket != "" {
		up, err := storage.NewS3Uploader(context.Background(), cfg.S3Bucket, cfg.S3Region, cfg.S3PublicBaseURL)
		if err != nil {
			logger.Error("failed to set up S3 uploads", slog.String("error", err.Error()))
			os.Exit(1)
		}
		collab.Uploader = up
	} else {
		logger.Info("S3_BUCKET not set; image uploads are disabled")
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(server.Config{
		Port:          cfg.Port,
		DBPath:        cfg.DBPath,
		PublicBaseURL: cfg.PublicBaseURL,
	}, collab, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
