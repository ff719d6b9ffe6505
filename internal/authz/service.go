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

package authz

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/lendcore/lendcore/internal/audit"
	"github.com/lendcore/lendcore/internal/observability/logger"
	"github.com/lendcore/lendcore/internal/observability/metrics"
)

var tracer = otel.Tracer("github.com/lendcore/lendcore/internal/authz")

// Options carries the optional collaborators of the authorization services.
type Options struct {
	// Cache holds resolved grants. Nil disables caching.
	Cache PermissionCache
	// CacheTTL bounds the lifetime of a cache entry.
	CacheTTL time.Duration
	// MaxDelegation bounds how far in the future a delegation may expire.
	MaxDelegation time.Duration
	Metrics       *metrics.AuthzInstruments
	// Clock defaults to time.Now.
	Clock func() time.Time
}

const (
	defaultCacheTTL      = 5 * time.Minute
	defaultMaxDelegation = 30 * 24 * time.Hour
)

// deps is shared by every service of this package.
type deps struct {
	store         Store
	auditLogger   audit.Logger
	cache         PermissionCache
	cacheTTL      time.Duration
	maxDelegation time.Duration
	metrics       *metrics.AuthzInstruments
	now           func() time.Time
}

func newDeps(store Store, auditLogger audit.Logger, opts Options) *deps {
	d := &deps{
		store:         store,
		auditLogger:   audit.Safe(auditLogger),
		cache:         opts.Cache,
		cacheTTL:      opts.CacheTTL,
		maxDelegation: opts.MaxDelegation,
		metrics:       opts.Metrics,
		now:           opts.Clock,
	}
	if d.cacheTTL <= 0 {
		d.cacheTTL = defaultCacheTTL
	}
	if d.maxDelegation <= 0 {
		d.maxDelegation = defaultMaxDelegation
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// invalidate drops every cached grant set. A failure leaves entries to expire
// through their TTL.
func (d *deps) invalidate(ctx context.Context) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Invalidate(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to invalidate permission cache", logger.Error(err))
	}
}

// finish records the outcome of a mutation.
func (d *deps) finish(ctx context.Context, op string, p Principal, roleID string, err error) {
	switch {
	case err == nil:
		d.metrics.RecordMutation(ctx, op, "ok")
	case KindOf(err) == ErrSecurityViolation:
		d.metrics.RecordMutation(ctx, op, "security_violation")
		d.metrics.RecordSecurityViolation(ctx, op)
		logViolation(ctx, op, p, roleID, err)
	default:
		d.metrics.RecordMutation(ctx, op, "error")
	}
}

// Service bundles the authorization components over one store.
type Service struct {
	Catalog     *Catalog
	Registry    *Registry
	Engine      *Engine
	Evaluator   *Evaluator
	Delegations *Delegations
}

// NewService creates a new authorization service
func NewService(store Store, auditLogger audit.Logger, opts Options) *Service {
	d := newDeps(store, auditLogger, opts)
	return &Service{
		Catalog:     &Catalog{store: store, auditLogger: d.auditLogger},
		Registry:    &Registry{deps: d},
		Engine:      &Engine{deps: d},
		Evaluator:   newEvaluator(d),
		Delegations: &Delegations{deps: d},
	}
}
