// Package main is the entry point for the ConsultHub API server.
//
// main only reads configuration, opens the long-lived resources and hands
// them to internal/server. Everything else lives in internal/.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/consulthub/internal/cache"
	"github.com/sakif/consulthub/internal/config"
	"github.com/sakif/consulthub/internal/notify"
	sqliteRepo "github.com/sakif/consulthub/internal/repository/sqlite"
	"github.com/sakif/consulthub/internal/server"
)

func main() {
	// === 1. CONFIGURATION ===
	// Logging is not configured yet, so config errors go to a default
	// logger.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. LOGGING ===
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if cfg.InsecureSecret() {
		logger.Warn("SECRET_KEY not set, using the development secret")
	}

	// === 3. DATABASE ===
	// The data directory is created on first run (like `mkdir -p`).
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 4. SESSION CACHE ===
	sessions, err := openSessions(cfg, logger)
	if err != nil {
		db.Close()
		logger.Error("session cache unavailable", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 5. MAIL ===
	// Without a mail password notifications are written to the log.
	var sender notify.Sender = notify.LogSender{Logger: logger}
	if cfg.Mail.Enabled() {
		smtpSender, err := notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.Sender,
			Password: cfg.Mail.Password,
		})
		if err != nil {
			closeSessions(sessions)
			db.Close()
			logger.Error("invalid mail configuration", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sender = smtpSender
	} else {
		logger.Warn("MAIL_PASSWORD not set, notifications will only be logged")
	}

	// === 6. SERVE ===
	srv, err := server.New(cfg, logger, server.Deps{
		DB:       db,
		Sessions: sessions,
		Sender:   sender,
	})
	if err != nil {
		closeSessions(sessions)
		db.Close()
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM and closes db and sessions on exit.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// closeSessions releases a store that holds a connection.
func closeSessions(sessions cache.SessionStore) {
	if c, ok := sessions.(io.Closer); ok {
		c.Close()
	}
}

// openSessions builds the configured session store. A Redis store is
// pinged so a wrong address fails at startup, not on the first login.
func openSessions(cfg *config.Config, logger *slog.Logger) (cache.SessionStore, error) {
	if cfg.CacheBackend == config.CacheMemory {
		logger.Info("using in-process session store")
		return cache.NewMemoryStore(cfg.SessionTTL, cfg.SecretKey), nil
	}

	store := cache.NewRedisStore(cache.RedisOptions{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.SessionTTL,
		Secret:   cfg.SecretKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, err
	}

	logger.Info("connected to redis", slog.String("addr", cfg.Redis.Addr()))
	return store, nil
}
