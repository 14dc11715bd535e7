package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"quantumshield/internal/app"
	"quantumshield/internal/config"
	"quantumshield/internal/ratelimit"
	"quantumshield/internal/server"
	"quantumshield/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		StorageDriver: cfg.StorageDriver,
		DatabaseURL:   cfg.DatabaseURL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var signupLimiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		limit := cfg.SignupRateLimitPerMinute
		if limit <= 0 {
			limit = 5
		}
		signupLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "quantumshield:ratelimit:signup", limit, time.Minute,
		)
		if err != nil {
			log.Fatalf("failed to init signup limiter: %v", err)
		}
	}

	httpServer := server.New(server.Config{
		App:           appCore,
		SignupLimiter: signupLimiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("quantum shield server listening", "addr", addr, "storage", cfg.StorageDriver)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
