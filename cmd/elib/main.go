package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"elib/internal/app"
	"elib/internal/config"
	"elib/internal/ratelimit"
	"elib/internal/server"
	"elib/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	tokenTTL, err := config.ParseTokenTTL(cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to parse token TTL: %v", err)
	}
	uploadTimeout, err := config.ParseUploadTimeout(cfg.UploadTimeout)
	if err != nil {
		log.Fatalf("failed to parse upload timeout: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
		PublicBaseURL:  cfg.PublicBaseURL,
		JWTSecret:      cfg.JWTSecret,
		TokenTTL:       tokenTTL,
		UploadTimeout:  uploadTimeout,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	registerLimiter := newLimiter(cfg, "register", cfg.RegisterRateLimitPerMinute)
	loginLimiter := newLimiter(cfg, "login", cfg.LoginRateLimitPerMinute)

	httpServer := server.New(server.Config{
		App:             appCore,
		Development:     cfg.IsDevelopment(),
		FrontendOrigin:  cfg.FrontendOrigin,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		RegisterLimiter: registerLimiter,
		LoginLimiter:    loginLimiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("elib server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

// newLimiter builds a rate limiter when both Redis and a positive limit are
// configured; otherwise the endpoint runs unlimited.
func newLimiter(cfg config.FileConfig, name string, perMinute int) *ratelimit.FixedWindowLimiter {
	if cfg.RedisAddr == "" || perMinute <= 0 {
		return nil
	}
	limiter, err := ratelimit.NewFixedWindowLimiter(
		cfg.RedisAddr,
		cfg.RedisPassword,
		"elib:ratelimit:"+name,
		perMinute,
		time.Minute,
	)
	if err != nil {
		log.Fatalf("failed to init %s rate limiter: %v", name, err)
	}
	return limiter
}
