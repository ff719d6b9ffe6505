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

import "fmt"

// Space is the isolation tier of a role or permission.
type Space string

const (
	// SpaceSystem is the platform-wide administrative space.
	SpaceSystem Space = "system"
	// SpaceTenant is scoped to exactly one tenant.
	SpaceTenant Space = "tenant"
)

// Valid reports whether s is a known space.
func (s Space) Valid() bool {
	return s == SpaceSystem || s == SpaceTenant
}

// ParseSpace converts a stored or user supplied value into a Space.
func ParseSpace(v string) (Space, error) {
	s := Space(v)
	if !s.Valid() {
		return "", invalidSpace(fmt.Sprintf("unknown space %q", v))
	}
	return s, nil
}

// Scope binds a role to one space and, for tenant roles, to one tenant.
//
// A Scope can only be built through SystemScope, TenantScope or ScopeFor, so a
// tenant scope without a tenant (or a system scope with one) is not representable.
// The zero value is invalid and rejected wherever a role is created.
type Scope struct {
	space    Space
	tenantID string
}

// SystemScope returns the scope of a platform-wide role.
func SystemScope() Scope {
	return Scope{space: SpaceSystem}
}

// TenantScope returns the scope of a role owned by tenantID.
func TenantScope(tenantID string) (Scope, error) {
	if tenantID == "" {
		return Scope{}, invalidSpace("tenant roles require a tenant")
	}
	return Scope{space: SpaceTenant, tenantID: tenantID}, nil
}

// ScopeFor rebuilds a scope from the (space, nullable tenant) pair used in storage
// and in API requests.
func ScopeFor(space Space, tenantID *string) (Scope, error) {
	switch space {
	case SpaceSystem:
		if tenantID != nil {
			return Scope{}, invalidSpace("system roles cannot reference a tenant")
		}
		return SystemScope(), nil
	case SpaceTenant:
		if tenantID == nil {
			return Scope{}, invalidSpace("tenant roles require a tenant")
		}
		return TenantScope(*tenantID)
	default:
		return Scope{}, invalidSpace(fmt.Sprintf("unknown space %q", space))
	}
}

// Valid reports whether the scope was built by one of the constructors.
func (s Scope) Valid() bool {
	switch s.space {
	case SpaceSystem:
		return s.tenantID == ""
	case SpaceTenant:
		return s.tenantID != ""
	}
	return false
}

// Space returns the tier of the scope.
func (s Scope) Space() Space { return s.space }

// IsSystem reports whether the scope is the system space.
func (s Scope) IsSystem() bool { return s.space == SpaceSystem }

// TenantID returns the owning tenant of a tenant scope.
func (s Scope) TenantID() (string, bool) {
	if s.space != SpaceTenant {
		return "", false
	}
	return s.tenantID, true
}

// TenantRef returns the nullable tenant reference used by storage.
func (s Scope) TenantRef() *string {
	if s.space != SpaceTenant {
		return nil
	}
	t := s.tenantID
	return &t
}

func (s Scope) String() string {
	if s.space == SpaceTenant {
		return "tenant:" + s.tenantID
	}
	return string(s.space)
}

// Principal is the already-authenticated caller of an operation.
// A nil TenantID means the caller acts in the system space.
type Principal struct {
	UserID   string
	TenantID *string
}

// SystemPrincipal returns a system-space principal.
func SystemPrincipal(userID string) Principal {
	return Principal{UserID: userID}
}

// TenantPrincipal returns a principal scoped to tenantID.
func TenantPrincipal(userID, tenantID string) Principal {
	return Principal{UserID: userID, TenantID: &tenantID}
}

// Space derives the principal's space from its tenant reference.
func (p Principal) Space() Space {
	if p.TenantID == nil {
		return SpaceSystem
	}
	return SpaceTenant
}

// Tenant returns the principal's tenant, if any.
func (p Principal) Tenant() string {
	if p.TenantID == nil {
		return ""
	}
	return *p.TenantID
}
