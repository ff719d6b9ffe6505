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

	"github.com/lendcore/lendcore/internal/identity"
	"github.com/lendcore/lendcore/internal/observability/logger"
)

// checkRoleOwnership runs the cross-space and cross-tenant checks, in that
// order, for a principal about to mutate role.
func checkRoleOwnership(p Principal, role *Role) error {
	switch {
	case p.Space() == SpaceSystem && role.Space() == SpaceTenant:
		return permissionDenied("system principal cannot modify tenant role %q (space %s)", role.Name, role.Space())
	case p.Space() == SpaceTenant && role.Space() == SpaceSystem:
		return permissionDenied("tenant principal cannot modify system role %q (space %s)", role.Name, role.Space())
	}
	if p.Space() == SpaceTenant {
		if tid, _ := role.Scope.TenantID(); tid != p.Tenant() {
			return permissionDenied("role %q belongs to another tenant", role.Name)
		}
	}
	return nil
}

// checkPermissionSpace is the third check: a permission may only be linked to
// a role of the same space.
func checkPermissionSpace(role *Role, perm *Permission) error {
	if perm.Space != role.Space() {
		return securityViolation("permission %s (space %s) cannot be granted to role %q (space %s)",
			perm.Key, perm.Space, role.Name, role.Space())
	}
	return nil
}

// canRead reports whether p may see role. Tenant principals see their own
// tenant's roles and, read-only, every system role.
func canRead(p Principal, role *Role) bool {
	if p.Space() == SpaceSystem || role.Space() == SpaceSystem {
		return true
	}
	tid, _ := role.Scope.TenantID()
	return tid == p.Tenant()
}

// checkUserFitsRole requires the user to live in the role's space and tenant.
func checkUserFitsRole(user *identity.User, role *Role) error {
	if user.IsSystem() != role.Scope.IsSystem() {
		return securityViolation("user space does not match role %q (space %s)", role.Name, role.Space())
	}
	if tid, ok := role.Scope.TenantID(); ok && tid != user.Tenant() {
		return securityViolation("user belongs to another tenant than role %q", role.Name)
	}
	return nil
}

// loadUser fetches a user that can receive a role.
func loadUser(ctx context.Context, users identity.UserRepository, userID string) (*identity.User, error) {
	user, err := users.GetByID(ctx, userID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storageFailure("load user", err)
	}
	if user.Status == identity.StatusDeleted {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// logViolation records a rejected cross-space attempt. Every security
// violation must leave a WARN record behind.
func logViolation(ctx context.Context, op string, p Principal, roleID string, err error) {
	slog.WarnContext(ctx, "authorization security violation",
		logger.SecurityViolation(),
		logger.Operation(op),
		logger.ActorID(p.UserID),
		logger.TenantID(p.Tenant()),
		logger.RoleID(roleID),
		logger.Error(err),
	)
}
