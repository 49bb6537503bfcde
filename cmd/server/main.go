package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bodega/backend/internal/cache"
	"bodega/backend/internal/config"
	"bodega/backend/internal/httpapi"
	"bodega/backend/internal/logger"
	"bodega/backend/internal/metrics"
	"bodega/backend/internal/service"
	"bodega/backend/internal/store"
	"bodega/backend/internal/store/memory"
	pgstore "bodega/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}
	decimal.MarshalJSONWithoutQuotes = true

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("repository unavailable")
	}

	productCache := cache.ProductCache(cache.NoopProductCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisProductCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ProductCacheTTL())
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using noop cache")
			_ = redisCache.Close()
		} else {
			productCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Str("addr", cfg.RedisAddr).Msg("cache: redis")
		}
	} else if cfg.DatabaseURL == "" {
		productCache = cache.NewMemoryProductCache(cfg.ProductCacheTTL())
		log.Info().Msg("cache: memory")
	} else {
		log.Info().Msg("cache: noop")
	}

	recorder := metrics.New()
	svc := service.New(repo, productCache, recorder, log)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.AccessPassword)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		StaticDir:     cfg.StaticDir,
		Metrics:       recorder,
		Logger:        log,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("bodega backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// openRepository picks postgres when DATABASE_URL is set, a JSON snapshot
// when DATA_FILE is set, and a seeded in-memory catalogue otherwise.
func openRepository(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.Repository, []func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set, refusing to fall back: %w", err)
		}
		log.Info().Msg("repository: postgres")
		return pg, []func() error{pg.Close}, nil
	case cfg.DataFile != "":
		mem, err := memory.Open(cfg.DataFile)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.DataFile).Msg("repository: snapshot file")
		return mem, nil, nil
	default:
		log.Info().Msg("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.AccessPassword) < 8 {
		return fmt.Errorf("ACCESS_PASSWORD must be set and at least 8 characters")
	}
	if err := validatePasswordStrength(cfg.AccessPassword); err != nil {
		return fmt.Errorf("ACCESS_PASSWORD is too weak: %w", err)
	}
	return nil
}

// validatePasswordStrength rejects passwords that repeat one character or
// appear on a short list of common choices.
func validatePasswordStrength(password string) error {
	known := map[string]bool{
		"password": true, "12345678": true, "123456789": true, "contraseña": true,
		"qwertyui": true, "bodega123": true, "admin123": true, "tienda123": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("single-character password not allowed")
	}

	return nil
}
