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
	"time"

	"github.com/lendcore/lendcore/internal/identity"
	"github.com/lendcore/lendcore/internal/tenant"
)

// RoleFilter restricts a role listing.
type RoleFilter struct {
	// VisibleToTenant limits the listing to roles of this tenant plus system
	// roles. Nil lists every role.
	VisibleToTenant *string
}

// RoleRepository defines the interface for role persistence
type RoleRepository interface {
	// Create inserts a new role
	Create(ctx context.Context, role *Role) error

	// GetByID retrieves a role by ID, including deleted roles
	GetByID(ctx context.Context, id string) (*Role, error)

	// GetForUpdate retrieves a role and locks it until the surrounding
	// transaction ends. Outside a transaction it behaves like GetByID.
	GetForUpdate(ctx context.Context, id string) (*Role, error)

	// Update stores name, description, status and constraints
	Update(ctx context.Context, role *Role) error

	// List returns non-deleted roles ordered by status, space, name and the total count
	List(ctx context.Context, filter RoleFilter, page PageParams) ([]*Role, int, error)
}

// PermissionRepository defines the interface for the permission catalog
type PermissionRepository interface {
	// List returns permissions, optionally restricted to one space
	List(ctx context.Context, space *Space) ([]*Permission, error)

	// GetByKey retrieves a permission by its resource:action key
	GetByKey(ctx context.Context, key string) (*Permission, error)

	// Upsert inserts a permission or updates its description and menu override
	Upsert(ctx context.Context, perm *Permission) error

	// ListModules returns modules, optionally restricted to one space
	ListModules(ctx context.Context, space *Space) ([]*Module, error)

	// GetModule retrieves a module by menu key
	GetModule(ctx context.Context, menuKey string) (*Module, error)

	// UpsertModule inserts a module or updates its display metadata
	UpsertModule(ctx context.Context, module *Module) error
}

// GrantRepository manages role-permission links
type GrantRepository interface {
	// Add links a permission to a role; returns false if the link existed
	Add(ctx context.Context, roleID, permissionID string, space Space) (bool, error)

	// Remove unlinks a permission; returns false if there was no link
	Remove(ctx context.Context, roleID, permissionID string) (bool, error)

	// RemoveAll unlinks every permission of a role
	RemoveAll(ctx context.Context, roleID string) (int64, error)

	// ListKeys returns the permission keys linked to a role, sorted
	ListKeys(ctx context.Context, roleID string) ([]string, error)
}

// AssignmentRepository manages user-role links
type AssignmentRepository interface {
	// Assign creates the link. An existing unexpired link is left untouched
	// and false is returned; an expired link is renewed.
	Assign(ctx context.Context, a *Assignment) (bool, error)

	// Unassign deletes the link; returns false if there was none
	Unassign(ctx context.Context, userID, roleID string) (bool, error)

	// Get retrieves a single link
	Get(ctx context.Context, userID, roleID string) (*Assignment, error)

	// ListForUser returns every link of a user, expired ones included
	ListForUser(ctx context.Context, userID string) ([]*Assignment, error)

	// HasActiveHolder reports whether any user holds the role unexpired at t
	HasActiveHolder(ctx context.Context, roleID string, at time.Time) (bool, error)

	// PurgeExpired deletes links that expired before t
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// DelegationRepository manages delegations
type DelegationRepository interface {
	Create(ctx context.Context, d *Delegation) error
	GetByID(ctx context.Context, id string) (*Delegation, error)

	// Revoke marks the delegation revoked; returns false if it already was
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)

	// ListForUser returns delegations given or received by a user
	ListForUser(ctx context.Context, userID string) ([]*Delegation, error)

	// PurgeExpired deletes delegations that expired or were revoked before t
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// ResolutionRepository answers the evaluator's single question: which grants
// reach a user right now.
type ResolutionRepository interface {
	// ResolveGrants returns every permission reachable by the user at t through
	// active roles held by unexpired assignments or active delegations. The
	// user must be active and each role must belong to the user's space and
	// tenant. Permissions whose menu module exists but is disabled are omitted.
	ResolveGrants(ctx context.Context, userID string, at time.Time) ([]Grant, error)
}

// Store is the entity store seen by the access control core.
type Store interface {
	Roles() RoleRepository
	Permissions() PermissionRepository
	Grants() GrantRepository
	Assignments() AssignmentRepository
	Delegations() DelegationRepository
	Resolution() ResolutionRepository
	Tenants() tenant.Repository
	Users() identity.UserRepository

	// InTx runs fn inside one atomic transaction. Every repository reached
	// through tx takes part in it; fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// PermissionCache caches resolved grants per user.
//
// Entries live under a generation number. Any mutation bumps the generation
// through Invalidate, which makes every older entry unreachable at once.
type PermissionCache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, generation int64, userID string) ([]Grant, bool, error)
	Set(ctx context.Context, generation int64, userID string, grants []Grant, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}
