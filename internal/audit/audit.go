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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Event types
const (
	TypeRoleCreated           = "role_created"
	TypeRoleUpdated           = "role_updated"
	TypeRoleDeleted           = "role_deleted"
	TypePermissionGranted     = "permission_granted"
	TypePermissionRevoked     = "permission_revoked"
	TypePermissionsReplaced   = "permissions_replaced"
	TypeRoleAssigned          = "role_assigned"
	TypeRoleUnassigned        = "role_unassigned"
	TypeDelegationCreated     = "delegation_created"
	TypeDelegationRevoked     = "delegation_revoked"
	TypePermissionProvisioned = "permission_provisioned"
	TypeModuleProvisioned     = "module_provisioned"
	TypeSystemAdminBootstrap  = "system_admin_bootstrap"
	TypeTenantCreated         = "tenant_created"
	TypeTenantStatusChanged   = "tenant_status_changed"
)

// Actors for mutations not driven by a user
const (
	ActorSystemBootstrap = "system:bootstrap"
	ActorSystemSeed      = "system:seed"
)

// Entity types
const (
	EntityRole       = "role"
	EntityUser       = "user"
	EntityDelegation = "delegation"
	EntityPermission = "permission"
	EntityModule     = "module"
	EntityTenant     = "tenant"
)

// Event represents an auditable action
type Event struct {
	Type       string
	TenantID   string
	ActorID    string
	EntityType string
	EntityID   string
	Before     any
	After      any
	Metadata   map[string]any
	Timestamp  time.Time
}

// Logger defines the interface for audit logging.
// Implementations must not block the caller on storage failures.
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger. A nil logger uses slog.Default.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l.With(slog.String("component", "audit"))}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []slog.Attr{
		slog.String("audit_type", event.Type),
		slog.String("tenant_id", event.TenantID),
		slog.String("actor_id", event.ActorID),
		slog.String("entity_type", event.EntityType),
		slog.String("entity_id", event.EntityID),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.Before != nil {
		attrs = append(attrs, slog.Any("before", event.Before))
	}
	if event.After != nil {
		attrs = append(attrs, slog.Any("after", event.After))
	}

	// Flatten metadata
	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	l.logger.LogAttrs(ctx, slog.LevelInfo, "AUDIT_EVENT", attrs...)
}

var secretMarkers = []string{"password", "secret", "token", "key", "authorization", "hash", "credential"}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	for _, s := range secretMarkers {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Safe wraps a Logger so that a panicking implementation never reaches the caller.
func Safe(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return safeLogger{next: l}
}

type safeLogger struct {
	next Logger
}

func (s safeLogger) Log(ctx context.Context, event Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "audit logger panicked",
				slog.String("audit_type", event.Type),
				slog.Any("panic", r),
			)
		}
	}()
	s.next.Log(ctx, event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Log(context.Context, Event) {}
