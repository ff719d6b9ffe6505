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

	"github.com/lendcore/lendcore/internal/audit"
	"github.com/lendcore/lendcore/internal/id"
)

// Delegations manages time-boxed hand-overs of a role from one user to another.
type Delegations struct {
	*deps
}

// Delegate lets in.ToUserID exercise in.RoleID until in.ExpiresAt.
//
// The delegator must hold the role through a live assignment; delegated roles
// cannot be passed on. The delegatee must live in the role's space and tenant.
func (d *Delegations) Delegate(ctx context.Context, p Principal, in DelegationInput) (*Delegation, error) {
	ctx, span := tracer.Start(ctx, "authz.Delegate")
	defer span.End()

	now := d.now()
	if in.FromUserID == "" || in.ToUserID == "" {
		return nil, invalidArgument("delegator and delegatee are required")
	}
	if in.FromUserID == in.ToUserID {
		return nil, invalidArgument("a user cannot delegate to themselves")
	}
	if !in.ExpiresAt.After(now) {
		return nil, invalidArgument("expiry must be in the future")
	}
	if in.ExpiresAt.Sub(now) > d.maxDelegation {
		return nil, invalidArgument("delegation may last at most %s", d.maxDelegation)
	}

	var delegation *Delegation
	err := d.store.InTx(ctx, func(tx Store) error {
		role, err := loadMutableRole(ctx, tx, in.RoleID, p)
		if err != nil {
			return err
		}
		if !role.IsActive() {
			return invalidArgument("role %q is not active", role.Name)
		}

		held, err := tx.Assignments().Get(ctx, in.FromUserID, role.ID)
		if errors.Is(err, ErrNotFound) || (err == nil && !held.ActiveAt(now)) {
			return permissionDenied("delegator does not hold role %q", role.Name)
		}
		if err != nil {
			return storageFailure("load assignment", err)
		}

		delegatee, err := loadUser(ctx, tx.Users(), in.ToUserID)
		if err != nil {
			return err
		}
		if err := checkUserFitsRole(delegatee, role); err != nil {
			return err
		}

		delegation = &Delegation{
			ID:         id.NewUUIDv7(),
			FromUserID: in.FromUserID,
			ToUserID:   delegatee.ID,
			RoleID:     role.ID,
			ExpiresAt:  in.ExpiresAt,
			CreatedBy:  p.UserID,
			CreatedAt:  now,
		}
		return storageFailure("create delegation", tx.Delegations().Create(ctx, delegation))
	})
	d.finish(ctx, "delegate", p, in.RoleID, err)
	if err != nil {
		return nil, err
	}

	d.invalidate(ctx)
	d.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeDelegationCreated,
		TenantID:   p.Tenant(),
		ActorID:    p.UserID,
		EntityType: audit.EntityDelegation,
		EntityID:   delegation.ID,
		After: map[string]any{
			"from_user_id": delegation.FromUserID,
			"to_user_id":   delegation.ToUserID,
			"role_id":      delegation.RoleID,
			"expires_at":   formatExpiry(&delegation.ExpiresAt),
		},
	})
	return delegation, nil
}

// RevokeDelegation ends a delegation early. Revoking twice is a no-op.
func (d *Delegations) RevokeDelegation(ctx context.Context, p Principal, delegationID string) error {
	ctx, span := tracer.Start(ctx, "authz.RevokeDelegation")
	defer span.End()

	var revoked bool
	var roleID string
	err := d.store.InTx(ctx, func(tx Store) error {
		delegation, err := tx.Delegations().GetByID(ctx, delegationID)
		if err != nil {
			return storageFailure("get delegation", err)
		}
		roleID = delegation.RoleID
		role, err := tx.Roles().GetByID(ctx, delegation.RoleID)
		if err != nil {
			return storageFailure("get role", err)
		}
		if err := checkRoleOwnership(p, role); err != nil {
			return err
		}
		revoked, err = tx.Delegations().Revoke(ctx, delegation.ID, d.now())
		return storageFailure("revoke delegation", err)
	})
	d.finish(ctx, "revoke_delegation", p, roleID, err)
	if err != nil {
		return err
	}
	if !revoked {
		return nil
	}

	d.invalidate(ctx)
	d.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeDelegationRevoked,
		TenantID:   p.Tenant(),
		ActorID:    p.UserID,
		EntityType: audit.EntityDelegation,
		EntityID:   delegationID,
		Metadata:   map[string]any{"role_id": roleID},
	})
	return nil
}

// ListDelegations returns delegations given or received by userID. Users the
// principal cannot see are reported as not found.
func (d *Delegations) ListDelegations(ctx context.Context, p Principal, userID string) ([]*Delegation, error) {
	user, err := loadUser(ctx, d.store.Users(), userID)
	if err != nil {
		return nil, err
	}
	if user.IsSystem() != (p.Space() == SpaceSystem) || user.Tenant() != p.Tenant() {
		return nil, ErrUserNotFound
	}
	delegations, err := d.store.Delegations().ListForUser(ctx, userID)
	if err != nil {
		return nil, storageFailure("list delegations", err)
	}
	return delegations, nil
}
