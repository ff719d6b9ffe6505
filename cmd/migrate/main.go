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

// Command migrate applies the schema and seeds the built-in catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lendcore/lendcore/internal/audit"
	"github.com/lendcore/lendcore/internal/authz"
	"github.com/lendcore/lendcore/internal/observability/logger"
	"github.com/lendcore/lendcore/internal/store/postgres"
	"github.com/lendcore/lendcore/internal/store/rediscache"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "PostgreSQL connection string (default $DATABASE_URL)")
	tenants := flag.String("seed-tenants", "", "comma-separated tenant IDs whose default roles should be provisioned")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	redisAddr := flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "permission cache to invalidate after seeding (default $REDIS_ADDR)")
	redisPrefix := flag.String("redis-prefix", os.Getenv("REDIS_PREFIX"), "permission cache key prefix (default $REDIS_PREFIX)")
	flag.Parse()

	logger.InitLogger(logger.Config{Level: "info", Format: "text", ServiceName: "lendcore-migrate"})

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "a connection string is required (--dsn or DATABASE_URL)")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	opts := authz.Options{}
	if *redisAddr != "" {
		cache, err := rediscache.Dial(ctx, rediscache.Options{Addr: *redisAddr, Password: os.Getenv("REDIS_PASSWORD"), Prefix: *redisPrefix})
		if err != nil {
			slog.Error("failed to connect to permission cache", logger.Error(err))
			os.Exit(1)
		}
		defer cache.Close()
		opts.Cache = cache
	}

	if err := migrate(ctx, *dsn, splitList(*tenants), opts); err != nil {
		slog.Error("migration failed", logger.Error(err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, dsn string, tenantIDs []string, opts authz.Options) error {
	db, err := postgres.Open(ctx, dsn, 0)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("applying initial schema")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}

	seeder := authz.NewSeeder(postgres.NewStore(db), audit.NewSlogLogger(slog.Default()), opts)
	if err := seeder.SeedCatalog(ctx); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	slog.Info("catalog seeded", logger.Component("migrate"))

	for _, tenantID := range tenantIDs {
		roles, err := seeder.SeedTenantRoles(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("seed roles of tenant %s: %w", tenantID, err)
		}
		slog.Info("tenant roles seeded", logger.TenantID(tenantID), slog.Int("roles", len(roles)))
	}

	slog.Info("migration successful")
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
