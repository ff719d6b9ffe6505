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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lendcore/lendcore/internal/authz"
)

// RoleRepository implements authz.RoleRepository
type RoleRepository struct {
	q querier
}

const roleColumns = `id, name, description, space, tenant_id, status, constraints, created_by, created_at, updated_at`

// Create creates a new role
func (r *RoleRepository) Create(ctx context.Context, role *authz.Role) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO authz_roles (`+roleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		role.ID, role.Name, role.Description, string(role.Space()), role.Scope.TenantRef(),
		string(role.Status), jsonb(role.Constraints), role.CreatedBy,
		role.CreatedAt, role.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*authz.Role, error) {
	return r.get(ctx, `SELECT `+roleColumns+` FROM authz_roles WHERE id = $1`, id)
}

// GetForUpdate retrieves a role and locks its row
func (r *RoleRepository) GetForUpdate(ctx context.Context, id string) (*authz.Role, error) {
	return r.get(ctx, `SELECT `+roleColumns+` FROM authz_roles WHERE id = $1 FOR UPDATE`, id)
}

func (r *RoleRepository) get(ctx context.Context, query, id string) (*authz.Role, error) {
	role, err := scanRole(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// Update updates mutable role attributes
func (r *RoleRepository) Update(ctx context.Context, role *authz.Role) error {
	result, err := r.q.Exec(ctx, `
		UPDATE authz_roles SET
			name = $2,
			description = $3,
			status = $4,
			constraints = $5,
			updated_at = $6
		WHERE id = $1
	`,
		role.ID, role.Name, role.Description, string(role.Status),
		jsonb(role.Constraints), role.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return authz.ErrRoleNotFound
	}
	return nil
}

// List retrieves non-deleted roles with pagination
func (r *RoleRepository) List(ctx context.Context, filter authz.RoleFilter, page authz.PageParams) ([]*authz.Role, int, error) {
	var total int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM authz_roles
		WHERE status <> 'deleted'
		  AND ($1::text IS NULL OR tenant_id IS NULL OR tenant_id = $1)
	`, filter.VisibleToTenant).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count roles: %w", err)
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+roleColumns+` FROM authz_roles
		WHERE status <> 'deleted'
		  AND ($1::text IS NULL OR tenant_id IS NULL OR tenant_id = $1)
		ORDER BY status, space, name, id
		LIMIT $2 OFFSET $3
	`, filter.VisibleToTenant, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*authz.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, total, nil
}

func scanRole(row pgx.Row) (*authz.Role, error) {
	var (
		role        authz.Role
		space       string
		tenantID    *string
		status      string
		constraints []byte
	)
	if err := row.Scan(
		&role.ID, &role.Name, &role.Description, &space, &tenantID, &status,
		&constraints, &role.CreatedBy, &role.CreatedAt, &role.UpdatedAt,
	); err != nil {
		return nil, err
	}

	scope, err := authz.ScopeFor(authz.Space(space), tenantID)
	if err != nil {
		return nil, fmt.Errorf("role %s: %w", role.ID, err)
	}
	role.Scope = scope
	role.Status = authz.RoleStatus(status)
	if len(constraints) > 0 {
		role.Constraints = json.RawMessage(constraints)
	}
	return &role, nil
}

// jsonb maps an empty payload to NULL.
func jsonb(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
