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

	"github.com/lendcore/lendcore/internal/authz"
)

// PermissionRepository implements authz.PermissionRepository
type PermissionRepository struct {
	q querier
}

const permissionColumns = `id, key, resource, action, description, space, menu_override, created_at`

// List retrieves permissions ordered by key
func (r *PermissionRepository) List(ctx context.Context, space *authz.Space) ([]*authz.Permission, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+permissionColumns+` FROM authz_permissions
		WHERE ($1::text IS NULL OR space = $1)
		ORDER BY key
	`, spaceArg(space))
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []*authz.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetByKey retrieves a permission by its resource:action key
func (r *PermissionRepository) GetByKey(ctx context.Context, key string) (*authz.Permission, error) {
	p, err := scanPermission(r.q.QueryRow(ctx, `
		SELECT `+permissionColumns+` FROM authz_permissions WHERE key = $1
	`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return p, nil
}

// Upsert inserts a permission or refreshes its description and menu. The
// space is never updated.
func (r *PermissionRepository) Upsert(ctx context.Context, perm *authz.Permission) error {
	var space string
	err := r.q.QueryRow(ctx, `
		INSERT INTO authz_permissions (id, key, resource, action, description, space, menu_override)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			description = EXCLUDED.description,
			menu_override = EXCLUDED.menu_override
		RETURNING id, space, created_at
	`,
		perm.ID, perm.Key, perm.Resource, perm.Action, perm.Description,
		string(perm.Space), perm.MenuOverride,
	).Scan(&perm.ID, &space, &perm.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert permission: %w", err)
	}
	if authz.Space(space) != perm.Space {
		return authz.ErrPermissionSpaceImmutable
	}
	return nil
}

// ListModules retrieves modules
func (r *PermissionRepository) ListModules(ctx context.Context, space *authz.Space) ([]*authz.Module, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+moduleColumns+` FROM authz_modules
		WHERE ($1::text IS NULL OR space = $1)
		ORDER BY sort_order, menu_key
	`, spaceArg(space))
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	var modules []*authz.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// GetModule retrieves a module by menu key
func (r *PermissionRepository) GetModule(ctx context.Context, menuKey string) (*authz.Module, error) {
	m, err := scanModule(r.q.QueryRow(ctx, `
		SELECT `+moduleColumns+` FROM authz_modules WHERE menu_key = $1
	`, menuKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrModuleNotFound
		}
		return nil, fmt.Errorf("failed to get module: %w", err)
	}
	return m, nil
}

// UpsertModule inserts a module or refreshes its display metadata
func (r *PermissionRepository) UpsertModule(ctx context.Context, module *authz.Module) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO authz_modules (id, menu_key, name, path, icon, space, allowed_actions, sort_order, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (menu_key) DO UPDATE SET
			name = EXCLUDED.name,
			path = EXCLUDED.path,
			icon = EXCLUDED.icon,
			allowed_actions = EXCLUDED.allowed_actions,
			sort_order = EXCLUDED.sort_order,
			status = EXCLUDED.status
		RETURNING id
	`,
		module.ID, module.MenuKey, module.Name, module.Path, module.Icon,
		string(module.Space), module.AllowedActions, module.SortOrder, string(module.Status),
	).Scan(&module.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert module: %w", err)
	}
	return nil
}

const moduleColumns = `id, menu_key, name, path, icon, space, allowed_actions, sort_order, status`

func scanPermission(row pgx.Row) (*authz.Permission, error) {
	var p authz.Permission
	var space string
	if err := row.Scan(
		&p.ID, &p.Key, &p.Resource, &p.Action, &p.Description,
		&space, &p.MenuOverride, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	p.Space = authz.Space(space)
	return &p, nil
}

func scanModule(row pgx.Row) (*authz.Module, error) {
	var m authz.Module
	var space, status string
	if err := row.Scan(
		&m.ID, &m.MenuKey, &m.Name, &m.Path, &m.Icon,
		&space, &m.AllowedActions, &m.SortOrder, &status,
	); err != nil {
		return nil, err
	}
	m.Space = authz.Space(space)
	m.Status = authz.ModuleStatus(status)
	return &m, nil
}

func spaceArg(space *authz.Space) *string {
	if space == nil {
		return nil
	}
	s := string(*space)
	return &s
}
