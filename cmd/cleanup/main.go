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

// Command cleanup purges role assignments and delegations that expired before
// the retention window.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lendcore/lendcore/internal/audit"
	"github.com/lendcore/lendcore/internal/authz"
	"github.com/lendcore/lendcore/internal/observability/logger"
	"github.com/lendcore/lendcore/internal/store/postgres"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "PostgreSQL connection string (default $DATABASE_URL)")
	retention := flag.Duration("retention", 30*24*time.Hour, "keep rows that expired less than this long ago")
	flag.Parse()

	logger.InitLogger(logger.Config{Level: "info", Format: "text", ServiceName: "lendcore-cleanup"})

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "a connection string is required (--dsn or DATABASE_URL)")
		os.Exit(2)
	}
	if *retention < 0 {
		fmt.Fprintln(os.Stderr, "--retention must not be negative")
		os.Exit(2)
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, *dsn, 0)
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	engine := authz.NewEngine(postgres.NewStore(db), audit.NewSlogLogger(slog.Default()), authz.Options{})
	links, delegations, err := engine.PurgeExpired(ctx, time.Now().Add(-*retention))
	if err != nil {
		slog.Error("cleanup failed", logger.Error(err))
		db.Close()
		os.Exit(1)
	}

	slog.Info("cleanup finished",
		slog.Int64("assignments", links),
		slog.Int64("delegations", delegations),
		slog.Duration("retention", *retention),
	)
}
