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
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lendcore/lendcore/internal/authz"
)

// GrantRepository implements authz.GrantRepository
type GrantRepository struct {
	q querier
}

// Add links a permission to a role. The composite foreign keys reject a link
// whose role or permission lives outside space.
func (r *GrantRepository) Add(ctx context.Context, roleID, permissionID string, space authz.Space) (bool, error) {
	result, err := r.q.Exec(ctx, `
		INSERT INTO authz_role_permissions (role_id, permission_id, space)
		VALUES ($1, $2, $3)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`, roleID, permissionID, string(space))
	if err != nil {
		return false, fmt.Errorf("failed to grant permission: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Remove unlinks a permission from a role
func (r *GrantRepository) Remove(ctx context.Context, roleID, permissionID string) (bool, error) {
	result, err := r.q.Exec(ctx, `
		DELETE FROM authz_role_permissions WHERE role_id = $1 AND permission_id = $2
	`, roleID, permissionID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke permission: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// RemoveAll unlinks every permission of a role
func (r *GrantRepository) RemoveAll(ctx context.Context, roleID string) (int64, error) {
	result, err := r.q.Exec(ctx, `DELETE FROM authz_role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear role permissions: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListKeys returns the sorted permission keys of a role
func (r *GrantRepository) ListKeys(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT p.key
		FROM authz_role_permissions rp
		JOIN authz_permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.key
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan role permissions: %w", err)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}
