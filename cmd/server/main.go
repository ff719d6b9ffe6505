// Copyright 2026 The LendCore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lendcore/lendcore/docs"
	"github.com/lendcore/lendcore/internal/audit"
	"github.com/lendcore/lendcore/internal/authz"
	"github.com/lendcore/lendcore/internal/config"
	"github.com/lendcore/lendcore/internal/observability/logger"
	"github.com/lendcore/lendcore/internal/observability/metrics"
	"github.com/lendcore/lendcore/internal/observability/tracing"
	"github.com/lendcore/lendcore/internal/store/postgres"
	"github.com/lendcore/lendcore/internal/store/rediscache"
	"github.com/lendcore/lendcore/internal/tenant"
	transportHTTP "github.com/lendcore/lendcore/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		OTelExport:  cfg.Observability.OTELEnabled,
	})

	// CLI Commands
	if len(os.Args) > 1 {
		var cmdErr error
		switch os.Args[1] {
		case "migrate":
			cmdErr = runMigrate(cfg)
		case "bootstrap":
			cmdErr = runBootstrap(cfg)
		default:
			cmdErr = fmt.Errorf("unknown command %q (want migrate or bootstrap)", os.Args[1])
		}
		if cmdErr != nil {
			slog.Error("command failed", logger.Operation(os.Args[1]), logger.Error(cmdErr))
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := run(cfg); err != nil {
		slog.Error("server failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("starting lendcore access control service")
	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   cfg.Observability.SamplingRate,
		Endpoint:       cfg.Observability.OTELEndpoint,
		Insecure:       cfg.Observability.OTELInsecure,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	} else {
		defer tracer.Shutdown(ctx)
	}

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		return fmt.Errorf("initialize meter: %w", err)
	}
	defer meter.Shutdown(ctx)
	instruments, err := metrics.NewAuthzInstruments(meter)
	if err != nil {
		return fmt.Errorf("initialize authz instruments: %w", err)
	}

	// Initialize database
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("connected to database")

	opts := authz.Options{
		CacheTTL:      cfg.Authz.CacheTTL,
		MaxDelegation: cfg.Authz.MaxDelegation,
		Metrics:       instruments,
	}

	// Optional shared permission cache
	cache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
		opts.Cache = cache
		slog.Info("permission cache enabled", logger.Component("rediscache"))
	}

	store := postgres.NewStore(db)
	auditLogger := audit.NewSlogLogger(slog.Default())
	svc := authz.NewService(store, auditLogger, opts)

	// Bootstrap (ENV driven)
	if cfg.Bootstrap.AdminUserID != "" {
		assigned, err := authz.NewBootstrapper(store, auditLogger, opts).Bootstrap(ctx, cfg.Bootstrap.AdminUserID)
		if err != nil {
			slog.Error("bootstrap failed", logger.Error(err))
		} else if assigned {
			slog.Info("bootstrap assigned system administrator", logger.UserID(cfg.Bootstrap.AdminUserID))
		}
	}

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	tenantService := tenant.NewService(postgres.NewTenantRepository(db), authz.NewSeeder(store, auditLogger, opts), auditLogger)

	clientIPs, err := transportHTTP.NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("invalid SERVER_TRUSTED_PROXIES: %w", err)
	}

	handler := transportHTTP.NewHandler(
		svc,
		tenantService,
		transportHTTP.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience),
		db,
		clientIPs,
	)
	router := transportHTTP.NewRouter(handler, rateLimiter, transportHTTP.RouterOptions{
		Production:     cfg.Server.Production,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start expired grant cleanup
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go purgeLoop(cleanupCtx, svc.Engine, cfg.Authz.Retention)

	// Start server
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"), logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
	return nil
}

// purgeLoop removes assignments and delegations that expired more than
// retention ago, once an hour.
func purgeLoop(ctx context.Context, engine *authz.Engine, retention time.Duration) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			links, delegations, err := engine.PurgeExpired(ctx, time.Now().Add(-retention))
			if err != nil {
				slog.ErrorContext(ctx, "failed to purge expired grants", logger.Error(err))
				continue
			}
			if links+delegations > 0 {
				slog.InfoContext(ctx, "purged expired grants",
					logger.Component("cleanup"),
					slog.Int64("assignments", links),
					slog.Int64("delegations", delegations),
				)
			}
		}
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openCache connects the shared permission cache, or returns nil when Redis is
// not configured. Commands that change grants use it to bump the generation
// that running servers read.
func openCache(ctx context.Context, cfg *config.Config) (*rediscache.Cache, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	return rediscache.Dial(ctx, rediscache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
}

// commandOptions builds service options for one-shot commands.
func commandOptions(ctx context.Context, cfg *config.Config) (authz.Options, func(), error) {
	cache, err := openCache(ctx, cfg)
	if err != nil {
		return authz.Options{}, nil, err
	}
	if cache == nil {
		return authz.Options{}, func() {}, nil
	}
	return authz.Options{Cache: cache}, func() { _ = cache.Close() }, nil
}

func runBootstrap(cfg *config.Config) error {
	if cfg.Bootstrap.AdminUserID == "" {
		return errors.New("LC_BOOTSTRAP_ADMIN_USER_ID is required")
	}

	ctx := context.Background()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	opts, closeCache, err := commandOptions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	assigned, err := authz.NewBootstrapper(postgres.NewStore(db), audit.NewSlogLogger(slog.Default()), opts).
		Bootstrap(ctx, cfg.Bootstrap.AdminUserID)
	if err != nil {
		return err
	}
	if !assigned {
		slog.Info("system administrator already assigned, nothing to do")
	}
	return nil
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("applying initial schema")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	opts, closeCache, err := commandOptions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	if err := authz.NewSeeder(postgres.NewStore(db), audit.NewSlogLogger(slog.Default()), opts).SeedCatalog(ctx); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	slog.Info("migration successful")
	return nil
}
