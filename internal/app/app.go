// Package app holds the business logic of the E-Lib service: user
// registration and login, and the book upload lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"elib/internal/media"
	"elib/internal/store"
	"elib/internal/token"
)

// Config holds runtime configuration for the core application.
// Store and Uploader may be injected (tests); otherwise they are built
// from the connection settings.
type Config struct {
	DatabaseURL string
	Store       store.Store

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	PublicBaseURL  string
	Uploader       media.Uploader

	JWTSecret     string
	TokenTTL      time.Duration
	UploadTimeout time.Duration
}

// App wires together the credential store, book store, media uploader,
// and token service.
type App struct {
	store         store.Store
	media         media.Uploader
	tokens        *token.Service
	uploadTimeout time.Duration
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	uploader := cfg.Uploader
	if uploader == nil {
		var err error
		uploader, err = media.NewMinioUploader(
			cfg.MinioEndpoint,
			cfg.MinioAccessKey,
			cfg.MinioSecretKey,
			cfg.MinioBucket,
			cfg.PublicBaseURL,
			cfg.MinioUseSSL,
		)
		if err != nil {
			return nil, fmt.Errorf("init media uploader: %w", err)
		}
	}

	return &App{
		store:         dataStore,
		media:         uploader,
		tokens:        token.NewService(cfg.JWTSecret, cfg.TokenTTL),
		uploadTimeout: cfg.UploadTimeout,
	}, nil
}

// UserIDFromToken verifies a bearer token and returns its subject.
// Used by the authentication middleware; no store access involved.
func (a *App) UserIDFromToken(tokenString string) (string, error) {
	return a.tokens.Verify(tokenString)
}

// Ready reports whether the backing database is reachable.
func (a *App) Ready(ctx context.Context) error {
	return a.store.Ping(ctx)
}
