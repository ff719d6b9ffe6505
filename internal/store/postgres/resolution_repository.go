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
	"time"

	"github.com/lendcore/lendcore/internal/authz"
)

// ResolutionRepository implements authz.ResolutionRepository
type ResolutionRepository struct {
	q querier
}

// resolveGrantsQuery collects every permission reachable by one active user.
// Roles come from unexpired links and from live delegations whose delegator
// is active and still holds the role; a delegated grant ends with the earlier
// of the two expiries. Roles outside the user's tenant (or space), inactive
// roles and permissions of another space are dropped. A disabled module only
// marks its grants menu_disabled.
const resolveGrantsQuery = `
	WITH u AS (
		SELECT id, tenant_id FROM users WHERE id = $1 AND status = 'active'
	), held AS (
		SELECT ur.role_id, ur.expires_at, 'assignment' AS source
		FROM authz_user_roles ur
		JOIN u ON ur.user_id = u.id
		WHERE ur.expires_at IS NULL OR ur.expires_at > $2
		UNION ALL
		SELECT d.role_id, LEAST(d.expires_at, src.expires_at), 'delegation'
		FROM authz_delegations d
		JOIN u ON d.to_user_id = u.id
		JOIN users fu ON fu.id = d.from_user_id AND fu.status = 'active'
		JOIN authz_user_roles src ON src.user_id = d.from_user_id AND src.role_id = d.role_id
		WHERE d.revoked_at IS NULL
		  AND d.expires_at > $2
		  AND (src.expires_at IS NULL OR src.expires_at > $2)
	)
	SELECT r.id, r.name, r.space, p.key,
	       COALESCE(NULLIF(p.menu_override, ''), p.resource) AS menu_key,
	       p.action, r.constraints, h.expires_at, h.source,
	       COALESCE(m.status <> 'active', false) AS menu_disabled
	FROM held h
	CROSS JOIN u
	JOIN authz_roles r ON r.id = h.role_id
	                  AND r.status = 'active'
	                  AND r.tenant_id IS NOT DISTINCT FROM u.tenant_id
	JOIN authz_role_permissions rp ON rp.role_id = r.id
	JOIN authz_permissions p ON p.id = rp.permission_id AND p.space = r.space
	LEFT JOIN authz_modules m ON m.menu_key = COALESCE(NULLIF(p.menu_override, ''), p.resource)
	ORDER BY p.key, r.id
`

// ResolveGrants runs the resolution query for userID at t
func (r *ResolutionRepository) ResolveGrants(ctx context.Context, userID string, at time.Time) ([]authz.Grant, error) {
	rows, err := r.q.Query(ctx, resolveGrantsQuery, userID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve grants: %w", err)
	}
	defer rows.Close()

	var grants []authz.Grant
	for rows.Next() {
		var (
			g           authz.Grant
			space       string
			source      string
			constraints []byte
		)
		if err := rows.Scan(
			&g.RoleID, &g.RoleName, &space, &g.Key, &g.MenuKey, &g.ActionKey,
			&constraints, &g.ExpiresAt, &source, &g.MenuDisabled,
		); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		g.Space = authz.Space(space)
		g.Source = authz.GrantSource(source)
		if len(constraints) > 0 {
			g.Constraints = constraints
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to resolve grants: %w", err)
	}
	return grants, nil
}
