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

package identity

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrUserNotFound = errors.New("user not found")
)

// Status is the lifecycle state of a user.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// User is a principal known to the access control core.
//
// TenantID is nil for system-space users. The user's space is always derived
// from it and never stored separately.
type User struct {
	ID        string
	TenantID  *string
	Email     string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsSystem reports whether the user acts in the system space.
func (u *User) IsSystem() bool {
	return u.TenantID == nil
}

// Tenant returns the user's tenant, or "" for system users.
func (u *User) Tenant() string {
	if u.TenantID == nil {
		return ""
	}
	return *u.TenantID
}

// IsActive reports whether the user may exercise permissions.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// UserRepository reads users. Account creation, credentials and MFA are owned
// by the identity service and are not part of this interface.
type UserRepository interface {
	// GetByID retrieves a user by ID, including suspended and deleted users
	GetByID(ctx context.Context, id string) (*User, error)
}
