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
	"strings"

	"github.com/lendcore/lendcore/internal/audit"
	"github.com/lendcore/lendcore/internal/id"
	"github.com/lendcore/lendcore/internal/tenant"
)

// Registry manages the lifecycle of roles.
type Registry struct {
	*deps
}

// CreateRole creates a role bound to one scope for its whole life.
//
// System roles must not reference a tenant; tenant roles must reference an
// existing active tenant. The principal may only create roles in the space
// (and tenant) it acts in.
func (r *Registry) CreateRole(ctx context.Context, p Principal, in RoleInput) (*Role, error) {
	ctx, span := tracer.Start(ctx, "authz.CreateRole")
	defer span.End()

	role, err := r.createRole(ctx, p, in)
	roleID := ""
	if role != nil {
		roleID = role.ID
	}
	r.finish(ctx, "create_role", p, roleID, err)
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (r *Registry) createRole(ctx context.Context, p Principal, in RoleInput) (*Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidArgument("role name is required")
	}
	scope, err := ScopeFor(in.Space, in.TenantID)
	if err != nil {
		return nil, err
	}
	if scope.Space() != p.Space() {
		return nil, permissionDenied("%s principal cannot create %s role %q", p.Space(), scope.Space(), name)
	}
	if tid, ok := scope.TenantID(); ok && tid != p.Tenant() {
		return nil, permissionDenied("cannot create role %q for another tenant", name)
	}
	if _, err := ParseConstraints(in.Constraints); err != nil {
		return nil, err
	}

	now := r.now()
	role := &Role{
		ID:          id.NewUUIDv7(),
		Name:        name,
		Description: in.Description,
		Scope:       scope,
		Status:      RoleStatusActive,
		Constraints: in.Constraints,
		CreatedBy:   p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = r.store.InTx(ctx, func(tx Store) error {
		if err := requireActiveTenant(ctx, tx, scope); err != nil {
			return err
		}
		return storageFailure("create role", tx.Roles().Create(ctx, role))
	})
	if err != nil {
		return nil, err
	}

	r.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeRoleCreated,
		TenantID:   p.Tenant(),
		ActorID:    p.UserID,
		EntityType: audit.EntityRole,
		EntityID:   role.ID,
		After:      roleSummary(role),
	})
	return role, nil
}

// requireActiveTenant checks that a tenant scope points at an active tenant.
func requireActiveTenant(ctx context.Context, s Store, scope Scope) error {
	tid, ok := scope.TenantID()
	if !ok {
		return nil
	}
	t, err := s.Tenants().GetByID(ctx, tid)
	if errors.Is(err, tenant.ErrTenantNotFound) {
		return invalidSpace("tenant " + tid + " does not exist")
	}
	if err != nil {
		return storageFailure("load tenant", err)
	}
	if !t.IsActive() {
		return invalidSpace("tenant " + tid + " is not active")
	}
	return nil
}

// GetRole returns a role visible to the principal. Roles of other tenants are
// reported as not found.
func (r *Registry) GetRole(ctx context.Context, roleID string, p Principal) (*Role, error) {
	role, err := r.store.Roles().GetByID(ctx, roleID)
	if err != nil {
		return nil, storageFailure("get role", err)
	}
	if role.Status == RoleStatusDeleted || !canRead(p, role) {
		return nil, ErrRoleNotFound
	}
	return role, nil
}

// ListRoles pages through the roles visible to the principal, ordered by
// status, space and name.
func (r *Registry) ListRoles(ctx context.Context, p Principal, params PageParams) (Page[*Role], error) {
	params = params.normalize()
	roles, total, err := r.store.Roles().List(ctx, RoleFilter{VisibleToTenant: p.TenantID}, params)
	if err != nil {
		return Page[*Role]{}, storageFailure("list roles", err)
	}
	return newPage(roles, params, total), nil
}

// UpdateRole applies patch after the ownership checks. A role's space can
// never change.
func (r *Registry) UpdateRole(ctx context.Context, roleID string, patch RolePatch, p Principal) (*Role, error) {
	ctx, span := tracer.Start(ctx, "authz.UpdateRole")
	defer span.End()

	var before, after map[string]any
	var updated *Role
	err := r.store.InTx(ctx, func(tx Store) error {
		role, err := loadMutableRole(ctx, tx, roleID, p)
		if err != nil {
			return err
		}
		before = roleSummary(role)

		if patch.Space != nil && *patch.Space != role.Space() {
			return invalidSpace("role " + role.Name + " cannot move from space " + string(role.Space()) + " to " + string(*patch.Space))
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return invalidArgument("role name is required")
			}
			role.Name = name
		}
		if patch.Description != nil {
			role.Description = *patch.Description
		}
		if patch.Status != nil {
			if *patch.Status != RoleStatusActive && *patch.Status != RoleStatusDisabled {
				return invalidArgument("role status must be active or disabled")
			}
			role.Status = *patch.Status
		}
		if patch.Constraints != nil {
			if _, err := ParseConstraints(*patch.Constraints); err != nil {
				return err
			}
			role.Constraints = *patch.Constraints
		}
		role.UpdatedAt = r.now()

		if err := tx.Roles().Update(ctx, role); err != nil {
			return storageFailure("update role", err)
		}
		after = roleSummary(role)
		updated = role
		return nil
	})
	r.finish(ctx, "update_role", p, roleID, err)
	if err != nil {
		return nil, err
	}

	r.invalidate(ctx)
	r.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeRoleUpdated,
		TenantID:   p.Tenant(),
		ActorID:    p.UserID,
		EntityType: audit.EntityRole,
		EntityID:   roleID,
		Before:     before,
		After:      after,
	})
	return updated, nil
}

// DeleteRole soft-deletes a role. Its links stay stored for audit history but
// stop granting anything.
func (r *Registry) DeleteRole(ctx context.Context, roleID string, p Principal) error {
	ctx, span := tracer.Start(ctx, "authz.DeleteRole")
	defer span.End()

	var before map[string]any
	err := r.store.InTx(ctx, func(tx Store) error {
		role, err := loadMutableRole(ctx, tx, roleID, p)
		if err != nil {
			return err
		}
		before = roleSummary(role)
		role.Status = RoleStatusDeleted
		role.UpdatedAt = r.now()
		return storageFailure("delete role", tx.Roles().Update(ctx, role))
	})
	r.finish(ctx, "delete_role", p, roleID, err)
	if err != nil {
		return err
	}

	r.invalidate(ctx)
	r.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeRoleDeleted,
		TenantID:   p.Tenant(),
		ActorID:    p.UserID,
		EntityType: audit.EntityRole,
		EntityID:   roleID,
		Before:     before,
	})
	return nil
}

// loadMutableRole locks a non-deleted role and runs the ownership checks.
func loadMutableRole(ctx context.Context, tx Store, roleID string, p Principal) (*Role, error) {
	role, err := tx.Roles().GetForUpdate(ctx, roleID)
	if err != nil {
		return nil, storageFailure("get role", err)
	}
	if role.Status == RoleStatusDeleted {
		return nil, ErrRoleNotFound
	}
	if err := checkRoleOwnership(p, role); err != nil {
		return nil, err
	}
	return role, nil
}

func roleSummary(r *Role) map[string]any {
	return map[string]any{
		"name":   r.Name,
		"space":  string(r.Space()),
		"status": string(r.Status),
	}
}
