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

package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lendcore/lendcore/internal/audit"
)

var tenantIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// RoleSeeder provisions the default roles of a tenant. It must be idempotent.
type RoleSeeder interface {
	SeedDefaultRoles(ctx context.Context, tenantID string) error
}

// Service provides tenant management business logic
type Service struct {
	repo        Manager
	seeder      RoleSeeder
	auditLogger audit.Logger
	now         func() time.Time
}

// NewService creates a new tenant service
func NewService(repo Manager, seeder RoleSeeder, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		seeder:      seeder,
		auditLogger: audit.Safe(auditLogger),
		now:         time.Now,
	}
}

// Provision creates an active tenant and its default roles. Provisioning an
// existing tenant under the same name only re-seeds its roles, so a call that
// failed while seeding can be retried.
func (s *Service) Provision(ctx context.Context, id, name, actorID string) (*Tenant, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if !tenantIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: id must be 2-63 lowercase letters, digits or dashes", ErrInvalidTenant)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTenant)
	}

	existing, err := s.repo.GetByID(ctx, id)
	switch {
	case err == nil:
		if existing.Name != name {
			return nil, ErrTenantExists
		}
	case errors.Is(err, ErrTenantNotFound):
		now := s.now()
		existing = &Tenant{
			ID:        id,
			Name:      name,
			Status:    StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Create(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to create tenant: %w", err)
		}
		s.auditLogger.Log(ctx, audit.Event{
			Type:       audit.TypeTenantCreated,
			TenantID:   id,
			ActorID:    actorID,
			EntityType: audit.EntityTenant,
			EntityID:   id,
			After:      map[string]any{"name": name, "status": StatusActive},
		})
	default:
		return nil, fmt.Errorf("failed to look up tenant: %w", err)
	}

	if err := s.seeder.SeedDefaultRoles(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to seed default roles: %w", err)
	}
	return existing, nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// SetStatus suspends or reactivates a tenant. No new roles can be created in
// an inactive tenant.
func (s *Service) SetStatus(ctx context.Context, id, status, actorID string) (*Tenant, error) {
	if status != StatusActive && status != StatusInactive {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTenant, status)
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == status {
		return t, nil
	}

	before := t.Status
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("failed to update tenant status: %w", err)
	}
	t.Status = status
	t.UpdatedAt = s.now()

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeTenantStatusChanged,
		TenantID:   id,
		ActorID:    actorID,
		EntityType: audit.EntityTenant,
		EntityID:   id,
		Before:     before,
		After:      status,
	})
	return t, nil
}
