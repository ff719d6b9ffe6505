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

	"github.com/jackc/pgx/v5"

	"github.com/lendcore/lendcore/internal/authz"
	"github.com/lendcore/lendcore/internal/identity"
	"github.com/lendcore/lendcore/internal/tenant"
)

// Store implements authz.Store on PostgreSQL.
type Store struct {
	db *DB
	q  querier
	tx pgx.Tx
}

// NewStore creates a store on top of the connection pool.
func NewStore(db *DB) *Store {
	return &Store{db: db, q: db.pool}
}

func (s *Store) Roles() authz.RoleRepository             { return &RoleRepository{q: s.q} }
func (s *Store) Permissions() authz.PermissionRepository { return &PermissionRepository{q: s.q} }
func (s *Store) Grants() authz.GrantRepository           { return &GrantRepository{q: s.q} }
func (s *Store) Assignments() authz.AssignmentRepository { return &AssignmentRepository{q: s.q} }
func (s *Store) Delegations() authz.DelegationRepository { return &DelegationRepository{q: s.q} }
func (s *Store) Resolution() authz.ResolutionRepository  { return &ResolutionRepository{q: s.q} }
func (s *Store) Tenants() tenant.Repository              { return &TenantRepository{q: s.q} }
func (s *Store) Users() identity.UserRepository          { return &UserRepository{q: s.q} }

// InTx runs fn in a read committed transaction. Writers serialise on the
// role row they lock with GetForUpdate. A nested call opens a savepoint.
func (s *Store) InTx(ctx context.Context, fn func(tx authz.Store) error) error {
	run := func(tx pgx.Tx) error {
		return fn(&Store{db: s.db, q: tx, tx: tx})
	}
	if s.tx != nil {
		return pgx.BeginFunc(ctx, s.tx, run)
	}
	return pgx.BeginTxFunc(ctx, s.db.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, run)
}
