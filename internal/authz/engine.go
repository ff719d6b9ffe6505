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
	"time"

	"github.com/lendcore/lendcore/internal/audit"
)

// Engine mutates role-permission and user-role links after enforcing space
// and tenant ownership.
//
// Every mutation first runs, in order: the cross-space check, the
// cross-tenant check and, when a permission is attached, the
// permission/role space match. The last one fails with ErrSecurityViolation
// and aborts the whole transaction.
type Engine struct {
	*deps
}

// NewEngine creates a new grant/revoke engine
func NewEngine(store Store, auditLogger audit.Logger, opts Options) *Engine {
	return &Engine{deps: newDeps(store, auditLogger, opts)}
}

// GrantPermission links the permission named by key to a role. Granting a
// held permission is a no-op.
func (e *Engine) GrantPermission(ctx context.Context, roleID, key string, p Principal) error {
	ctx, span := tracer.Start(ctx, "authz.GrantPermission")
	defer span.End()

	if _, _, err := ParsePermissionKey(key); err != nil {
		return err
	}

	var role *Role
	var added bool
	err := e.store.InTx(ctx, func(tx Store) error {
		var err error
		if role, err = loadMutableRole(ctx, tx, roleID, p); err != nil {
			return err
		}
		perm, err := tx.Permissions().GetByKey(ctx, key)
		if err != nil {
			return storageFailure("get permission", err)
		}
		if err := checkPermissionSpace(role, perm); err != nil {
			return err
		}
		added, err = tx.Grants().Add(ctx, role.ID, perm.ID, role.Space())
		return storageFailure("grant permission", err)
	})
	e.finish(ctx, "grant_permission", p, roleID, err)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}

	e.invalidate(ctx)
	e.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypePermissionGranted,
		TenantID:   p.Tenant(),
		ActorID:    p.UserID,
		EntityType: audit.EntityRole,
		EntityID:   role.ID,
		After:      key,
		Metadata:   map[string]any{"permission": key, "space": string(role.Space())},
	})
	return nil
}

// RevokePermission unlinks the permission named by key from a role. Revoking
// an unheld permission is a no-op.
func (e *Engine) RevokePermission(ctx context.Context, roleID, key string, p Principal) error {
	ctx, span := tracer.Start(ctx, "authz.RevokePermission")
	defer span.End()

	if _, _, err := ParsePermissionKey(key); err != nil {
		return err
	}

	var role *Role
	var removed bool
	err := e.store.InTx(ctx, func(tx Store) error {
		var err error
		if role, err = loadMutableRole(ctx, tx, roleID, p); err != nil {
			return err
		}
		perm, err := tx.Permissions().GetByKey(ctx, key)
		if err != nil {
			return storageFailure("get permission", err)
		}
		removed, err = tx.Grants().Remove(ctx, role.ID, perm.ID)
		return storageFailure("revoke permission", err)
	})
	e.finish(ctx, "revoke_permission", p, roleID, err)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	e.invalidate(ctx)
	e.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypePermissionRevoked,
		TenantID:   p.Tenant(),
		ActorID:    p.UserID,
		EntityType: audit.EntityRole,
		EntityID:   role.ID,
		Before:     key,
		Metadata:   map[string]any{"permission": key, "space": string(role.Space())},
	})
	return nil
}

// BulkReplacePermissions replaces the role's whole permission set in one
// transaction. Keys missing from the catalog are skipped and reported. A key
// of the wrong space aborts the call and leaves the role untouched.
// Concurrent replaces on the same role serialize on the role row.
func (e *Engine) BulkReplacePermissions(ctx context.Context, roleID string, keys []string, p Principal) (BulkResult, error) {
	ctx, span := tracer.Start(ctx, "authz.BulkReplacePermissions")
	defer span.End()

	result := BulkResult{NotFoundKeys: []string{}}
	var role *Role
	var before, after []string
	err := e.store.InTx(ctx, func(tx Store) error {
		var err error
		if role, err = loadMutableRole(ctx, tx, roleID, p); err != nil {
			return err
		}

		// Resolve the whole batch before touching any link.
		perms := make([]*Permission, 0, len(keys))
		seen := make(map[string]struct{}, len(keys))
		for _, key := range keys {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			if _, _, err := ParsePermissionKey(key); err != nil {
				result.NotFoundKeys = append(result.NotFoundKeys, key)
				continue
			}
			perm, err := tx.Permissions().GetByKey(ctx, key)
			if errors.Is(err, ErrNotFound) {
				result.NotFoundKeys = append(result.NotFoundKeys, key)
				continue
			}
			if err != nil {
				return storageFailure("get permission", err)
			}
			if err := checkPermissionSpace(role, perm); err != nil {
				return err
			}
			perms = append(perms, perm)
		}

		if before, err = tx.Grants().ListKeys(ctx, role.ID); err != nil {
			return storageFailure("list role permissions", err)
		}
		if _, err := tx.Grants().RemoveAll(ctx, role.ID); err != nil {
			return storageFailure("clear role permissions", err)
		}
		for _, perm := range perms {
			added, err := tx.Grants().Add(ctx, role.ID, perm.ID, role.Space())
			if err != nil {
				return storageFailure("grant permission", err)
			}
			if added {
				result.GrantedCount++
				after = append(after, perm.Key)
			}
		}
		return nil
	})
	e.finish(ctx, "bulk_replace_permissions", p, roleID, err)
	if err != nil {
		return BulkResult{}, err
	}

	e.invalidate(ctx)
	e.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypePermissionsReplaced,
		TenantID:   p.Tenant(),
		ActorID:    p.UserID,
		EntityType: audit.EntityRole,
		EntityID:   role.ID,
		Before:     before,
		After:      after,
		Metadata:   map[string]any{"not_found": result.NotFoundKeys},
	})
	return result, nil
}

// AssignRole gives a user a role. The user must live in the role's space and
// tenant. Assigning a held role is a no-op; an expired link is renewed.
func (e *Engine) AssignRole(ctx context.Context, userID, roleID string, p Principal, opts AssignOptions) error {
	ctx, span := tracer.Start(ctx, "authz.AssignRole")
	defer span.End()

	now := e.now()
	if opts.ExpiresAt != nil && !opts.ExpiresAt.After(now) {
		return invalidArgument("expiry must be in the future")
	}

	var role *Role
	var changed bool
	err := e.store.InTx(ctx, func(tx Store) error {
		var err error
		if role, err = loadMutableRole(ctx, tx, roleID, p); err != nil {
			return err
		}
		user, err := loadUser(ctx, tx.Users(), userID)
		if err != nil {
			return err
		}
		if err := checkUserFitsRole(user, role); err != nil {
			return err
		}
		changed, err = tx.Assignments().Assign(ctx, &Assignment{
			UserID:    user.ID,
			RoleID:    role.ID,
			GrantedBy: p.UserID,
			GrantedAt: now,
			ExpiresAt: opts.ExpiresAt,
		})
		return storageFailure("assign role", err)
	})
	e.finish(ctx, "assign_role", p, roleID, err)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	e.invalidate(ctx)
	e.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeRoleAssigned,
		TenantID:   p.Tenant(),
		ActorID:    p.UserID,
		EntityType: audit.EntityUser,
		EntityID:   userID,
		After:      map[string]any{"role_id": role.ID, "role_name": role.Name, "expires_at": formatExpiry(opts.ExpiresAt)},
	})
	return nil
}

// UnassignRole removes a user's role link. Removing an absent link is a
// no-op. Links to deleted roles can still be removed.
func (e *Engine) UnassignRole(ctx context.Context, userID, roleID string, p Principal) error {
	ctx, span := tracer.Start(ctx, "authz.UnassignRole")
	defer span.End()

	var role *Role
	var removed bool
	err := e.store.InTx(ctx, func(tx Store) error {
		var err error
		if role, err = tx.Roles().GetForUpdate(ctx, roleID); err != nil {
			return storageFailure("get role", err)
		}
		if err := checkRoleOwnership(p, role); err != nil {
			return err
		}
		removed, err = tx.Assignments().Unassign(ctx, userID, role.ID)
		return storageFailure("unassign role", err)
	})
	e.finish(ctx, "unassign_role", p, roleID, err)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	e.invalidate(ctx)
	e.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeRoleUnassigned,
		TenantID:   p.Tenant(),
		ActorID:    p.UserID,
		EntityType: audit.EntityUser,
		EntityID:   userID,
		Before:     map[string]any{"role_id": role.ID, "role_name": role.Name},
	})
	return nil
}

// PurgeExpired deletes user-role links and delegations that stopped granting
// before cutoff. Evaluations ignore them already; this only reclaims storage.
func (e *Engine) PurgeExpired(ctx context.Context, cutoff time.Time) (links, delegations int64, err error) {
	err = e.store.InTx(ctx, func(tx Store) error {
		var err error
		if links, err = tx.Assignments().PurgeExpired(ctx, cutoff); err != nil {
			return storageFailure("purge assignments", err)
		}
		if delegations, err = tx.Delegations().PurgeExpired(ctx, cutoff); err != nil {
			return storageFailure("purge delegations", err)
		}
		return nil
	})
	return links, delegations, err
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
