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
	"errors"
	"log/slog"

	"github.com/lendcore/lendcore/internal/audit"
	"github.com/lendcore/lendcore/internal/id"
	"github.com/lendcore/lendcore/internal/observability/logger"
)

// Seeder installs the built-in catalog and roles. It acts as the system
// itself and bypasses principal ownership, but never the permission space
// match.
type Seeder struct {
	*deps
	catalog *Catalog
}

// NewSeeder creates a new catalog seeder
func NewSeeder(store Store, auditLogger audit.Logger, opts Options) *Seeder {
	d := newDeps(store, auditLogger, opts)
	return &Seeder{deps: d, catalog: &Catalog{store: store, auditLogger: d.auditLogger}}
}

// SeedCatalog provisions the built-in modules, permissions and the system
// administrator role. Running it again refreshes descriptions only.
func (s *Seeder) SeedCatalog(ctx context.Context) error {
	for _, m := range BuiltinModules() {
		if err := s.catalog.ProvisionModule(ctx, m); err != nil {
			return err
		}
	}
	for _, p := range BuiltinPermissions() {
		if err := s.catalog.ProvisionPermission(ctx, p); err != nil {
			return err
		}
	}

	now := s.now()
	admin := &Role{
		ID:          RoleIDSystemAdmin,
		Name:        RoleSystemAdmin,
		Description: "Full platform administration",
		Scope:       SystemScope(),
		Status:      RoleStatusActive,
		CreatedBy:   audit.ActorSystemSeed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.provisionRole(ctx, admin, SystemAdminPermissions()); err != nil {
		return err
	}

	s.invalidate(ctx)
	slog.InfoContext(ctx, "seeded authorization catalog", logger.RoleID(admin.ID))
	return nil
}

// SeedTenantRoles provisions the default roles of a new tenant.
func (s *Seeder) SeedTenantRoles(ctx context.Context, tenantID string) ([]*Role, error) {
	scope, err := TenantScope(tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	defaults := []struct {
		name        string
		description string
		keys        []string
	}{
		{RoleTenantAdmin, "Full administration of the tenant", TenantAdminPermissions},
		{RoleTenantMember, "Read access to loans, billing and reports", TenantMemberPermissions},
	}

	roles := make([]*Role, 0, len(defaults))
	for _, d := range defaults {
		role := &Role{
			ID:          id.Derive(tenantID, d.name),
			Name:        d.name,
			Description: d.description,
			Scope:       scope,
			Status:      RoleStatusActive,
			CreatedBy:   audit.ActorSystemSeed,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.provisionRole(ctx, role, d.keys); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}

	s.invalidate(ctx)
	return roles, nil
}

// SeedDefaultRoles is SeedTenantRoles for callers that only need the outcome.
func (s *Seeder) SeedDefaultRoles(ctx context.Context, tenantID string) error {
	_, err := s.SeedTenantRoles(ctx, tenantID)
	return err
}

// provisionRole creates role if missing and links keys to it.
func (s *Seeder) provisionRole(ctx context.Context, role *Role, keys []string) error {
	created := false
	err := s.store.InTx(ctx, func(tx Store) error {
		if err := requireActiveTenant(ctx, tx, role.Scope); err != nil {
			return err
		}

		existing, err := tx.Roles().GetForUpdate(ctx, role.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			if err := tx.Roles().Create(ctx, role); err != nil {
				return storageFailure("create role", err)
			}
			created = true
		case err != nil:
			return storageFailure("get role", err)
		default:
			if existing.Scope != role.Scope {
				return invalidSpace("built-in role " + role.Name + " exists in another scope")
			}
			*role = *existing
		}

		for _, key := range keys {
			perm, err := tx.Permissions().GetByKey(ctx, key)
			if err != nil {
				return storageFailure("get permission "+key, err)
			}
			if err := checkPermissionSpace(role, perm); err != nil {
				return err
			}
			if _, err := tx.Grants().Add(ctx, role.ID, perm.ID, role.Space()); err != nil {
				return storageFailure("grant permission", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if created {
		s.auditLogger.Log(ctx, audit.Event{
			Type:       audit.TypeRoleCreated,
			TenantID:   roleTenant(role),
			ActorID:    audit.ActorSystemSeed,
			EntityType: audit.EntityRole,
			EntityID:   role.ID,
			After:      roleSummary(role),
			Metadata:   map[string]any{"permissions": keys},
		})
	}
	return nil
}

func roleTenant(r *Role) string {
	tid, _ := r.Scope.TenantID()
	return tid
}
