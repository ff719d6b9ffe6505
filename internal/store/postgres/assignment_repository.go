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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lendcore/lendcore/internal/authz"
)

// AssignmentRepository implements authz.AssignmentRepository
type AssignmentRepository struct {
	q querier
}

// Assign creates the link, renewing it only when the stored one has expired
func (r *AssignmentRepository) Assign(ctx context.Context, a *authz.Assignment) (bool, error) {
	result, err := r.q.Exec(ctx, `
		INSERT INTO authz_user_roles (user_id, role_id, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, role_id) DO UPDATE SET
			granted_by = EXCLUDED.granted_by,
			granted_at = EXCLUDED.granted_at,
			expires_at = EXCLUDED.expires_at
		WHERE authz_user_roles.expires_at IS NOT NULL
		  AND authz_user_roles.expires_at <= EXCLUDED.granted_at
	`, a.UserID, a.RoleID, a.GrantedBy, a.GrantedAt, a.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to assign role: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Unassign deletes the link
func (r *AssignmentRepository) Unassign(ctx context.Context, userID, roleID string) (bool, error) {
	result, err := r.q.Exec(ctx, `
		DELETE FROM authz_user_roles WHERE user_id = $1 AND role_id = $2
	`, userID, roleID)
	if err != nil {
		return false, fmt.Errorf("failed to unassign role: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

const assignmentColumns = `user_id, role_id, granted_by, granted_at, expires_at`

// Get retrieves a single link
func (r *AssignmentRepository) Get(ctx context.Context, userID, roleID string) (*authz.Assignment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+assignmentColumns+` FROM authz_user_roles WHERE user_id = $1 AND role_id = $2
	`, userID, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[authz.Assignment])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// ListForUser returns every link of a user
func (r *AssignmentRepository) ListForUser(ctx context.Context, userID string) ([]*authz.Assignment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+assignmentColumns+` FROM authz_user_roles WHERE user_id = $1 ORDER BY role_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	links, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[authz.Assignment])
	if err != nil {
		return nil, fmt.Errorf("failed to scan assignments: %w", err)
	}
	return links, nil
}

// HasActiveHolder reports whether any user holds the role unexpired at t
func (r *AssignmentRepository) HasActiveHolder(ctx context.Context, roleID string, at time.Time) (bool, error) {
	var held bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM authz_user_roles
			WHERE role_id = $1 AND (expires_at IS NULL OR expires_at > $2)
		)
	`, roleID, at).Scan(&held)
	if err != nil {
		return false, fmt.Errorf("failed to check role holders: %w", err)
	}
	return held, nil
}

// PurgeExpired deletes links that expired before the cutoff
func (r *AssignmentRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.q.Exec(ctx, `
		DELETE FROM authz_user_roles WHERE expires_at IS NOT NULL AND expires_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired assignments: %w", err)
	}
	return result.RowsAffected(), nil
}
