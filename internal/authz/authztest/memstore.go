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

// Package authztest provides an in-memory authz.Store for tests.
package authztest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lendcore/lendcore/internal/authz"
	"github.com/lendcore/lendcore/internal/identity"
	"github.com/lendcore/lendcore/internal/tenant"
)

type linkKey struct {
	userID string
	roleID string
}

type state struct {
	tenants     map[string]tenant.Tenant
	users       map[string]identity.User
	roles       map[string]authz.Role
	perms       map[string]authz.Permission
	modules     map[string]authz.Module
	grants      map[string]map[string]struct{}
	assignments map[linkKey]authz.Assignment
	delegations map[string]authz.Delegation
}

func newState() *state {
	return &state{
		tenants:     map[string]tenant.Tenant{},
		users:       map[string]identity.User{},
		roles:       map[string]authz.Role{},
		perms:       map[string]authz.Permission{},
		modules:     map[string]authz.Module{},
		grants:      map[string]map[string]struct{}{},
		assignments: map[linkKey]authz.Assignment{},
		delegations: map[string]authz.Delegation{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.tenants {
		c.tenants[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.roles {
		c.roles[k] = v
	}
	for k, v := range s.perms {
		c.perms[k] = v
	}
	for k, v := range s.modules {
		c.modules[k] = v
	}
	for k, set := range s.grants {
		cs := make(map[string]struct{}, len(set))
		for p := range set {
			cs[p] = struct{}{}
		}
		c.grants[k] = cs
	}
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	for k, v := range s.delegations {
		c.delegations[k] = v
	}
	return c
}

// Store is a transactional in-memory authz.Store. Transactions run one at a
// time against a private copy that replaces the committed state on success.
type Store struct {
	mu       sync.Mutex
	data     *state
	failures map[string]error
	txCount  int
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newState(), failures: map[string]error{}}
}

// Fail makes every later call of op return err until cleared with a nil err.
// Ops are named like "Grants.Add" or "Resolution.ResolveGrants".
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Transactions returns the number of committed or rolled back transactions.
func (s *Store) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

// AddTenant, AddUser, AddRole, AddPermission and AddModule seed fixtures
// without going through the services.
func (s *Store) AddTenant(t tenant.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.tenants[t.ID] = t
}

func (s *Store) AddUser(u identity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.users[u.ID] = u
}

func (s *Store) AddRole(r authz.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.roles[r.ID] = r
}

func (s *Store) AddPermission(p authz.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.perms[p.ID] = p
}

func (s *Store) AddModule(m authz.Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.modules[m.MenuKey] = m
}

// AssignmentCount counts stored links for (userID, roleID), expired ones included.
func (s *Store) AssignmentCount(userID, roleID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.assignments[linkKey{userID, roleID}]; ok {
		return 1
	}
	return 0
}

func (s *Store) root() *view {
	return &view{owner: s, lock: true}
}

func (s *Store) Roles() authz.RoleRepository             { return roleRepo{s.root()} }
func (s *Store) Permissions() authz.PermissionRepository { return permissionRepo{s.root()} }
func (s *Store) Grants() authz.GrantRepository           { return grantRepo{s.root()} }
func (s *Store) Assignments() authz.AssignmentRepository { return assignmentRepo{s.root()} }
func (s *Store) Delegations() authz.DelegationRepository { return delegationRepo{s.root()} }
func (s *Store) Resolution() authz.ResolutionRepository  { return resolutionRepo{s.root()} }
func (s *Store) Tenants() tenant.Repository              { return tenantRepo{s.root()} }
func (s *Store) Users() identity.UserRepository          { return userRepo{s.root()} }

// TenantManager exposes the tenant write side used by provisioning.
func (s *Store) TenantManager() tenant.Manager { return tenantRepo{s.root()} }

// InTx runs fn against a private copy of the state.
func (s *Store) InTx(ctx context.Context, fn func(tx authz.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	tx := &txStore{owner: s, data: s.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

// txStore is the store seen inside a transaction.
type txStore struct {
	owner *Store
	data  *state
}

func (t *txStore) v() *view { return &view{owner: t.owner, tx: t} }

func (t *txStore) Roles() authz.RoleRepository             { return roleRepo{t.v()} }
func (t *txStore) Permissions() authz.PermissionRepository { return permissionRepo{t.v()} }
func (t *txStore) Grants() authz.GrantRepository           { return grantRepo{t.v()} }
func (t *txStore) Assignments() authz.AssignmentRepository { return assignmentRepo{t.v()} }
func (t *txStore) Delegations() authz.DelegationRepository { return delegationRepo{t.v()} }
func (t *txStore) Resolution() authz.ResolutionRepository  { return resolutionRepo{t.v()} }
func (t *txStore) Tenants() tenant.Repository              { return tenantRepo{t.v()} }
func (t *txStore) Users() identity.UserRepository          { return userRepo{t.v()} }

// InTx inside a transaction behaves like a savepoint.
func (t *txStore) InTx(ctx context.Context, fn func(tx authz.Store) error) error {
	inner := &txStore{owner: t.owner, data: t.data.clone()}
	if err := fn(inner); err != nil {
		return err
	}
	t.data = inner.data
	return nil
}

// view implements every repository over either the committed state (taking
// the store lock per call) or a transaction's copy.
type view struct {
	owner *Store
	tx    *txStore
	lock  bool
}

// with runs fn against the right state after checking injected failures.
func (v *view) with(op string, fn func(d *state) error) error {
	if v.lock {
		v.owner.mu.Lock()
		defer v.owner.mu.Unlock()
	}
	if err := v.owner.failures[op]; err != nil {
		return err
	}
	if v.tx != nil {
		return fn(v.tx.data)
	}
	return fn(v.owner.data)
}

type tenantRepo struct{ *view }

func (r tenantRepo) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	var out *tenant.Tenant
	err := r.with("Tenants.GetByID", func(d *state) error {
		t, ok := d.tenants[id]
		if !ok {
			return tenant.ErrTenantNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (r tenantRepo) Create(ctx context.Context, t *tenant.Tenant) error {
	return r.with("Tenants.Create", func(d *state) error {
		if _, ok := d.tenants[t.ID]; ok {
			return fmt.Errorf("tenant %s: duplicate key", t.ID)
		}
		d.tenants[t.ID] = *t
		return nil
	})
}

func (r tenantRepo) SetStatus(ctx context.Context, id, status string) error {
	return r.with("Tenants.SetStatus", func(d *state) error {
		t, ok := d.tenants[id]
		if !ok {
			return tenant.ErrTenantNotFound
		}
		t.Status = status
		d.tenants[id] = t
		return nil
	})
}

type userRepo struct{ *view }

func (r userRepo) GetByID(ctx context.Context, id string) (*identity.User, error) {
	var out *identity.User
	err := r.with("Users.GetByID", func(d *state) error {
		u, ok := d.users[id]
		if !ok {
			return identity.ErrUserNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

type roleRepo struct{ *view }

func (r roleRepo) Create(ctx context.Context, role *authz.Role) error {
	return r.with("Roles.Create", func(d *state) error {
		if _, ok := d.roles[role.ID]; ok {
			return fmt.Errorf("duplicate role id %s", role.ID)
		}
		if !role.Scope.Valid() {
			return fmt.Errorf("role %s violates the space check constraint", role.ID)
		}
		d.roles[role.ID] = *role
		return nil
	})
}

func (r roleRepo) get(op, id string) (*authz.Role, error) {
	var out *authz.Role
	err := r.with(op, func(d *state) error {
		role, ok := d.roles[id]
		if !ok {
			return authz.ErrRoleNotFound
		}
		out = &role
		return nil
	})
	return out, err
}

func (r roleRepo) GetByID(ctx context.Context, id string) (*authz.Role, error) {
	return r.get("Roles.GetByID", id)
}

func (r roleRepo) GetForUpdate(ctx context.Context, id string) (*authz.Role, error) {
	return r.get("Roles.GetForUpdate", id)
}

func (r roleRepo) Update(ctx context.Context, role *authz.Role) error {
	return r.with("Roles.Update", func(d *state) error {
		old, ok := d.roles[role.ID]
		if !ok {
			return authz.ErrRoleNotFound
		}
		if old.Scope != role.Scope {
			return fmt.Errorf("role %s scope is immutable", role.ID)
		}
		d.roles[role.ID] = *role
		return nil
	})
}

func (r roleRepo) List(ctx context.Context, filter authz.RoleFilter, page authz.PageParams) ([]*authz.Role, int, error) {
	var out []*authz.Role
	var total int
	err := r.with("Roles.List", func(d *state) error {
		var all []*authz.Role
		for _, role := range d.roles {
			if role.Status == authz.RoleStatusDeleted {
				continue
			}
			if filter.VisibleToTenant != nil {
				if tid, ok := role.Scope.TenantID(); ok && tid != *filter.VisibleToTenant {
					continue
				}
			}
			role := role
			all = append(all, &role)
		}
		sort.Slice(all, func(i, j int) bool {
			a, b := all[i], all[j]
			if a.Status != b.Status {
				return a.Status < b.Status
			}
			if a.Space() != b.Space() {
				return a.Space() < b.Space()
			}
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		})
		total = len(all)
		start := min(page.Offset(), total)
		end := min(start+page.PerPage, total)
		out = all[start:end]
		return nil
	})
	return out, total, err
}

type permissionRepo struct{ *view }

func (r permissionRepo) List(ctx context.Context, space *authz.Space) ([]*authz.Permission, error) {
	var out []*authz.Permission
	err := r.with("Permissions.List", func(d *state) error {
		for _, p := range d.perms {
			if space != nil && p.Space != *space {
				continue
			}
			p := p
			out = append(out, &p)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
		return nil
	})
	return out, err
}

func (r permissionRepo) GetByKey(ctx context.Context, key string) (*authz.Permission, error) {
	var out *authz.Permission
	err := r.with("Permissions.GetByKey", func(d *state) error {
		for _, p := range d.perms {
			if p.Key == key {
				p := p
				out = &p
				return nil
			}
		}
		return authz.ErrPermissionNotFound
	})
	return out, err
}

func (r permissionRepo) Upsert(ctx context.Context, perm *authz.Permission) error {
	return r.with("Permissions.Upsert", func(d *state) error {
		for id, p := range d.perms {
			if p.Key == perm.Key && id != perm.ID {
				return fmt.Errorf("duplicate permission key %s", perm.Key)
			}
		}
		if old, ok := d.perms[perm.ID]; ok && old.Space != perm.Space {
			return fmt.Errorf("permission %s space is immutable", perm.Key)
		}
		d.perms[perm.ID] = *perm
		return nil
	})
}

func (r permissionRepo) ListModules(ctx context.Context, space *authz.Space) ([]*authz.Module, error) {
	var out []*authz.Module
	err := r.with("Permissions.ListModules", func(d *state) error {
		for _, m := range d.modules {
			if space != nil && m.Space != *space {
				continue
			}
			m := m
			out = append(out, &m)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].MenuKey < out[j].MenuKey })
		return nil
	})
	return out, err
}

func (r permissionRepo) GetModule(ctx context.Context, menuKey string) (*authz.Module, error) {
	var out *authz.Module
	err := r.with("Permissions.GetModule", func(d *state) error {
		m, ok := d.modules[menuKey]
		if !ok {
			return authz.ErrModuleNotFound
		}
		out = &m
		return nil
	})
	return out, err
}

func (r permissionRepo) UpsertModule(ctx context.Context, module *authz.Module) error {
	return r.with("Permissions.UpsertModule", func(d *state) error {
		d.modules[module.MenuKey] = *module
		return nil
	})
}

type grantRepo struct{ *view }

// Add mirrors the composite foreign keys of the SQL schema: the role and the
// permission must both live in space.
func (r grantRepo) Add(ctx context.Context, roleID, permissionID string, space authz.Space) (bool, error) {
	var added bool
	err := r.with("Grants.Add", func(d *state) error {
		role, ok := d.roles[roleID]
		if !ok || role.Space() != space {
			return fmt.Errorf("foreign key violation: role %s in space %s", roleID, space)
		}
		p, ok := d.perms[permissionID]
		if !ok || p.Space != space {
			return fmt.Errorf("foreign key violation: permission %s in space %s", permissionID, space)
		}
		if d.grants[roleID] == nil {
			d.grants[roleID] = map[string]struct{}{}
		}
		if _, held := d.grants[roleID][permissionID]; held {
			return nil
		}
		d.grants[roleID][permissionID] = struct{}{}
		added = true
		return nil
	})
	return added, err
}

func (r grantRepo) Remove(ctx context.Context, roleID, permissionID string) (bool, error) {
	var removed bool
	err := r.with("Grants.Remove", func(d *state) error {
		if _, held := d.grants[roleID][permissionID]; held {
			delete(d.grants[roleID], permissionID)
			removed = true
		}
		return nil
	})
	return removed, err
}

func (r grantRepo) RemoveAll(ctx context.Context, roleID string) (int64, error) {
	var n int64
	err := r.with("Grants.RemoveAll", func(d *state) error {
		n = int64(len(d.grants[roleID]))
		delete(d.grants, roleID)
		return nil
	})
	return n, err
}

func (r grantRepo) ListKeys(ctx context.Context, roleID string) ([]string, error) {
	keys := []string{}
	err := r.with("Grants.ListKeys", func(d *state) error {
		for pid := range d.grants[roleID] {
			keys = append(keys, d.perms[pid].Key)
		}
		sort.Strings(keys)
		return nil
	})
	return keys, err
}

type assignmentRepo struct{ *view }

func (r assignmentRepo) Assign(ctx context.Context, a *authz.Assignment) (bool, error) {
	var changed bool
	err := r.with("Assignments.Assign", func(d *state) error {
		k := linkKey{a.UserID, a.RoleID}
		if old, ok := d.assignments[k]; ok && old.ActiveAt(a.GrantedAt) {
			return nil
		}
		d.assignments[k] = *a
		changed = true
		return nil
	})
	return changed, err
}

func (r assignmentRepo) Unassign(ctx context.Context, userID, roleID string) (bool, error) {
	var removed bool
	err := r.with("Assignments.Unassign", func(d *state) error {
		k := linkKey{userID, roleID}
		if _, ok := d.assignments[k]; ok {
			delete(d.assignments, k)
			removed = true
		}
		return nil
	})
	return removed, err
}

func (r assignmentRepo) Get(ctx context.Context, userID, roleID string) (*authz.Assignment, error) {
	var out *authz.Assignment
	err := r.with("Assignments.Get", func(d *state) error {
		a, ok := d.assignments[linkKey{userID, roleID}]
		if !ok {
			return authz.ErrAssignmentNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r assignmentRepo) ListForUser(ctx context.Context, userID string) ([]*authz.Assignment, error) {
	var out []*authz.Assignment
	err := r.with("Assignments.ListForUser", func(d *state) error {
		for k, a := range d.assignments {
			if k.userID == userID {
				a := a
				out = append(out, &a)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].RoleID < out[j].RoleID })
		return nil
	})
	return out, err
}

func (r assignmentRepo) HasActiveHolder(ctx context.Context, roleID string, at time.Time) (bool, error) {
	var found bool
	err := r.with("Assignments.HasActiveHolder", func(d *state) error {
		for k, a := range d.assignments {
			if k.roleID == roleID && a.ActiveAt(at) {
				found = true
			}
		}
		return nil
	})
	return found, err
}

func (r assignmentRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.with("Assignments.PurgeExpired", func(d *state) error {
		for k, a := range d.assignments {
			if a.ExpiresAt != nil && a.ExpiresAt.Before(before) {
				delete(d.assignments, k)
				n++
			}
		}
		return nil
	})
	return n, err
}

type delegationRepo struct{ *view }

func (r delegationRepo) Create(ctx context.Context, del *authz.Delegation) error {
	return r.with("Delegations.Create", func(d *state) error {
		d.delegations[del.ID] = *del
		return nil
	})
}

func (r delegationRepo) GetByID(ctx context.Context, id string) (*authz.Delegation, error) {
	var out *authz.Delegation
	err := r.with("Delegations.GetByID", func(d *state) error {
		del, ok := d.delegations[id]
		if !ok {
			return authz.ErrDelegationNotFound
		}
		out = &del
		return nil
	})
	return out, err
}

func (r delegationRepo) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	var revoked bool
	err := r.with("Delegations.Revoke", func(d *state) error {
		del, ok := d.delegations[id]
		if !ok {
			return authz.ErrDelegationNotFound
		}
		if del.RevokedAt != nil {
			return nil
		}
		del.RevokedAt = &at
		d.delegations[id] = del
		revoked = true
		return nil
	})
	return revoked, err
}

func (r delegationRepo) ListForUser(ctx context.Context, userID string) ([]*authz.Delegation, error) {
	var out []*authz.Delegation
	err := r.with("Delegations.ListForUser", func(d *state) error {
		for _, del := range d.delegations {
			if del.FromUserID == userID || del.ToUserID == userID {
				del := del
				out = append(out, &del)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r delegationRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.with("Delegations.PurgeExpired", func(d *state) error {
		for id, del := range d.delegations {
			if del.ExpiresAt.Before(before) || (del.RevokedAt != nil && del.RevokedAt.Before(before)) {
				delete(d.delegations, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

type resolutionRepo struct{ *view }

type heldRole struct {
	roleID    string
	expiresAt *time.Time
	source    authz.GrantSource
}

// ResolveGrants applies the same filters as the SQL resolution query.
func (r resolutionRepo) ResolveGrants(ctx context.Context, userID string, at time.Time) ([]authz.Grant, error) {
	var out []authz.Grant
	err := r.with("Resolution.ResolveGrants", func(d *state) error {
		user, ok := d.users[userID]
		if !ok || !user.IsActive() {
			return nil
		}

		var held []heldRole
		for k, a := range d.assignments {
			if k.userID == userID && a.ActiveAt(at) {
				held = append(held, heldRole{k.roleID, a.ExpiresAt, authz.SourceAssignment})
			}
		}
		for _, del := range d.delegations {
			if del.ToUserID != userID || !del.ActiveAt(at) {
				continue
			}
			if from, ok := d.users[del.FromUserID]; !ok || !from.IsActive() {
				continue
			}
			src, ok := d.assignments[linkKey{del.FromUserID, del.RoleID}]
			if !ok || !src.ActiveAt(at) {
				continue
			}
			exp := del.ExpiresAt
			if src.ExpiresAt != nil && src.ExpiresAt.Before(exp) {
				exp = *src.ExpiresAt
			}
			held = append(held, heldRole{del.RoleID, &exp, authz.SourceDelegation})
		}

		for _, h := range held {
			role, ok := d.roles[h.roleID]
			if !ok || !role.IsActive() {
				continue
			}
			tid, _ := role.Scope.TenantID()
			if role.Scope.IsSystem() != user.IsSystem() || tid != user.Tenant() {
				continue
			}
			for pid := range d.grants[role.ID] {
				p := d.perms[pid]
				if p.Space != role.Space() {
					continue
				}
				m, hasModule := d.modules[p.MenuKey()]
				out = append(out, authz.Grant{
					RoleID:       role.ID,
					RoleName:     role.Name,
					Space:        role.Space(),
					Key:          p.Key,
					MenuKey:      p.MenuKey(),
					ActionKey:    p.ActionKey(),
					Constraints:  role.Constraints,
					ExpiresAt:    h.expiresAt,
					Source:       h.source,
					MenuDisabled: hasModule && m.Status != authz.ModuleStatusActive,
				})
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Key != out[j].Key {
				return out[i].Key < out[j].Key
			}
			return out[i].RoleID < out[j].RoleID
		})
		return nil
	})
	return out, err
}

type cacheKey struct {
	generation int64
	userID     string
}

// Cache is an in-memory authz.PermissionCache that records its traffic.
type Cache struct {
	mu          sync.Mutex
	generation  int64
	entries     map[cacheKey][]authz.Grant
	TTLs        map[string]time.Duration
	Hits        int
	Sets        int
	Invalidated int
	Err         error
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: map[cacheKey][]authz.Grant{}, TTLs: map[string]time.Duration{}}
}

func (c *Cache) Generation(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, c.Err
}

func (c *Cache) Get(ctx context.Context, generation int64, userID string) ([]authz.Grant, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, false, c.Err
	}
	g, ok := c.entries[cacheKey{generation, userID}]
	if ok {
		c.Hits++
	}
	return g, ok, nil
}

func (c *Cache) Set(ctx context.Context, generation int64, userID string, grants []authz.Grant, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.entries[cacheKey{generation, userID}] = grants
	c.TTLs[userID] = ttl
	c.Sets++
	return nil
}

func (c *Cache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.generation++
	c.Invalidated++
	return nil
}
