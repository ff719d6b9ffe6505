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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lendcore/lendcore/internal/identity"
	"github.com/lendcore/lendcore/internal/tenant"
)

// TenantRepository implements tenant.Manager
type TenantRepository struct {
	q querier
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{q: db.pool}
}

// Create inserts a tenant
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO tenants (id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.Name, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.q.QueryRow(ctx, `
		SELECT id, name, status, created_at, updated_at FROM tenants WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// SetStatus suspends or reactivates a tenant
func (r *TenantRepository) SetStatus(ctx context.Context, id, status string) error {
	result, err := r.q.Exec(ctx, `
		UPDATE tenants SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// UserRepository implements identity.UserRepository
type UserRepository struct {
	q querier
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{q: db.pool}
}

// Create inserts a user
func (r *UserRepository) Create(ctx context.Context, u *identity.User) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO users (id, tenant_id, email, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.TenantID, u.Email, string(u.Status), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID, including suspended and deleted users
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	var u identity.User
	var status string
	err := r.q.QueryRow(ctx, `
		SELECT id, tenant_id, email, status, created_at, updated_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.TenantID, &u.Email, &status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Status = identity.Status(status)
	return &u, nil
}

// SetStatus changes a user's lifecycle state
func (r *UserRepository) SetStatus(ctx context.Context, id string, status identity.Status) error {
	result, err := r.q.Exec(ctx, `
		UPDATE users SET status = $2, updated_at = now() WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}
