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

// DelegationRepository implements authz.DelegationRepository
type DelegationRepository struct {
	q querier
}

const delegationColumns = `id, from_user_id, to_user_id, role_id, expires_at, revoked_at, created_by, created_at`

// Create stores a new delegation
func (r *DelegationRepository) Create(ctx context.Context, d *authz.Delegation) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO authz_delegations (`+delegationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		d.ID, d.FromUserID, d.ToUserID, d.RoleID,
		d.ExpiresAt, d.RevokedAt, d.CreatedBy, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create delegation: %w", err)
	}
	return nil
}

// GetByID retrieves a delegation by ID
func (r *DelegationRepository) GetByID(ctx context.Context, id string) (*authz.Delegation, error) {
	rows, err := r.q.Query(ctx, `SELECT `+delegationColumns+` FROM authz_delegations WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get delegation: %w", err)
	}
	d, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[authz.Delegation])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrDelegationNotFound
		}
		return nil, fmt.Errorf("failed to get delegation: %w", err)
	}
	return d, nil
}

// Revoke marks a delegation revoked
func (r *DelegationRepository) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	var revoked bool
	err := r.q.QueryRow(ctx, `
		WITH target AS (
			SELECT id, revoked_at FROM authz_delegations WHERE id = $1
		), updated AS (
			UPDATE authz_delegations d SET revoked_at = $2
			FROM target t
			WHERE d.id = t.id AND t.revoked_at IS NULL
			RETURNING d.id
		)
		SELECT EXISTS (SELECT 1 FROM updated) FROM target
	`, id, at).Scan(&revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, authz.ErrDelegationNotFound
		}
		return false, fmt.Errorf("failed to revoke delegation: %w", err)
	}
	return revoked, nil
}

// ListForUser returns delegations given or received by a user
func (r *DelegationRepository) ListForUser(ctx context.Context, userID string) ([]*authz.Delegation, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+delegationColumns+` FROM authz_delegations
		WHERE from_user_id = $1 OR to_user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delegations: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[authz.Delegation])
	if err != nil {
		return nil, fmt.Errorf("failed to scan delegations: %w", err)
	}
	return out, nil
}

// PurgeExpired deletes delegations that ended before the cutoff
func (r *DelegationRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.q.Exec(ctx, `
		DELETE FROM authz_delegations
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
	`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge delegations: %w", err)
	}
	return result.RowsAffected(), nil
}
