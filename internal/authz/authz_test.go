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

package authz_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lendcore/lendcore/internal/audit"
	"github.com/lendcore/lendcore/internal/authz"
	"github.com/lendcore/lendcore/internal/authz/authztest"
	"github.com/lendcore/lendcore/internal/identity"
	"github.com/lendcore/lendcore/internal/tenant"
)

const (
	tenant1        = "tenant-1"
	tenant2        = "tenant-2"
	tenantInactive = "tenant-inactive"

	sysUser     = "user-sys"
	sysUser2    = "user-sys-2"
	u1          = "user-t1"
	u1b         = "user-t1-b"
	u2          = "user-t2"
	deletedUser = "user-deleted"
	suspended   = "user-suspended"
)

// recordingAudit implements audit.Logger for testing
type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(ctx context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) ofType(t string) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx   context.Context
	store *authztest.Store
	cache *authztest.Cache
	audit *recordingAudit
	clock *clock
	svc   *authz.Service

	sys authz.Principal
	t1  authz.Principal
	t2  authz.Principal
}

func strPtr(s string) *string { return &s }

// newFixture builds a service over a seeded in-memory store: the built-in
// catalog, two active tenants, one inactive tenant and users in each space.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := authztest.New()
	f := &fixture{
		ctx:   ctx,
		store: store,
		cache: authztest.NewCache(),
		audit: &recordingAudit{},
		clock: &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
		sys:   authz.SystemPrincipal(sysUser),
		t1:    authz.TenantPrincipal(u1, tenant1),
		t2:    authz.TenantPrincipal(u2, tenant2),
	}

	for _, tn := range []tenant.Tenant{
		{ID: tenant1, Name: "Acme Lending", Status: tenant.StatusActive},
		{ID: tenant2, Name: "Globex Credit", Status: tenant.StatusActive},
		{ID: tenantInactive, Name: "Dormant", Status: tenant.StatusInactive},
	} {
		store.AddTenant(tn)
	}
	for _, u := range []identity.User{
		{ID: sysUser, Status: identity.StatusActive},
		{ID: sysUser2, Status: identity.StatusActive},
		{ID: u1, TenantID: strPtr(tenant1), Status: identity.StatusActive},
		{ID: u1b, TenantID: strPtr(tenant1), Status: identity.StatusActive},
		{ID: u2, TenantID: strPtr(tenant2), Status: identity.StatusActive},
		{ID: deletedUser, TenantID: strPtr(tenant1), Status: identity.StatusDeleted},
		{ID: suspended, TenantID: strPtr(tenant1), Status: identity.StatusSuspended},
	} {
		store.AddUser(u)
	}

	opts := authz.Options{Cache: f.cache, CacheTTL: 5 * time.Minute, MaxDelegation: 7 * 24 * time.Hour, Clock: f.clock.Now}
	require.NoError(t, authz.NewSeeder(store, f.audit, opts).SeedCatalog(ctx))
	f.svc = authz.NewService(store, f.audit, opts)
	return f
}

// newRole creates an active role directly in the store.
func (f *fixture) newRole(t *testing.T, id, name string, scope authz.Scope) *authz.Role {
	t.Helper()
	r := authz.Role{ID: id, Name: name, Scope: scope, Status: authz.RoleStatusActive, CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now()}
	f.store.AddRole(r)
	return &r
}

func (f *fixture) tenantScope(t *testing.T, tenantID string) authz.Scope {
	t.Helper()
	s, err := authz.TenantScope(tenantID)
	require.NoError(t, err)
	return s
}

// keys lists the permission keys linked to a role.
func (f *fixture) keys(t *testing.T, roleID string) []string {
	t.Helper()
	keys, err := f.store.Grants().ListKeys(f.ctx, roleID)
	require.NoError(t, err)
	return keys
}
