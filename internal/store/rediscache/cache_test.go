package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendcore/lendcore/internal/audit"
	"github.com/lendcore/lendcore/internal/authz"
	"github.com/lendcore/lendcore/internal/authz/authztest"
	"github.com/lendcore/lendcore/internal/identity"
	"github.com/lendcore/lendcore/internal/tenant"
)

// newSeededStore holds one tenant whose clerk role grants loans:read.
func newSeededStore(t *testing.T) *authztest.Store {
	t.Helper()
	ctx := context.Background()
	store := authztest.New()
	t1 := "t1"
	store.AddTenant(tenant.Tenant{ID: t1, Name: "Acme", Status: tenant.StatusActive})
	store.AddUser(identity.User{ID: "admin", TenantID: &t1, Status: identity.StatusActive})
	store.AddUser(identity.User{ID: "clerk", TenantID: &t1, Status: identity.StatusActive})
	store.AddPermission(authz.Permission{ID: "p-read", Key: "loans:read", Resource: "loans", Action: "read", Space: authz.SpaceTenant})
	store.AddPermission(authz.Permission{ID: "p-approve", Key: "loans:approve", Resource: "loans", Action: "approve", Space: authz.SpaceTenant})

	scope, err := authz.TenantScope(t1)
	require.NoError(t, err)
	store.AddRole(authz.Role{ID: "role-clerk", Name: "Clerk", Scope: scope, Status: authz.RoleStatusActive})

	_, err = store.Grants().Add(ctx, "role-clerk", "p-read", authz.SpaceTenant)
	require.NoError(t, err)
	_, err = store.Assignments().Assign(ctx, &authz.Assignment{UserID: "clerk", RoleID: "role-clerk", GrantedAt: time.Now()})
	require.NoError(t, err)
	return store
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "test:authz"), mr
}

// TestPurpose: Validates that cached grants round-trip and respect their TTL.
// Scope: Unit Test
// Expected: A stored entry is served until its TTL passes, then it is a miss.
// Test Case ID: RDS-01
func TestCache_SetGetTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	exp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	grants := []authz.Grant{{
		RoleID: "r1", RoleName: "Clerk", Space: authz.SpaceTenant,
		Key: "loans:read", MenuKey: "loans", ActionKey: "read",
		ExpiresAt: &exp, Source: authz.SourceDelegation,
	}}
	require.NoError(t, c.Set(ctx, gen, "u1", grants, time.Minute))

	got, ok, err := c.Get(ctx, gen, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "loans:read", got[0].Key)
	assert.Equal(t, authz.SourceDelegation, got[0].Source)
	assert.True(t, exp.Equal(*got[0].ExpiresAt))

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, gen, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, gen, "u2", nil, 0))
	assert.False(t, mr.Exists(c.entryKey(gen, "u2")))
}

// TestPurpose: Validates generation based invalidation.
// Scope: Unit Test
// Security: Revocations take effect immediately
// Expected: After Invalidate every entry of the previous generation is unreachable.
// Test Case ID: RDS-02
func TestCache_Invalidate(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 0, "u1", []authz.Grant{}, time.Minute))
	_, ok, err := c.Get(ctx, 0, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Invalidate(ctx))
	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	_, ok, err = c.Get(ctx, gen, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.Set(c.entryKey(gen, "u1"), "{not json")
	_, ok, err = c.Get(ctx, gen, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestPurpose: Validates the evaluator end to end with the Redis cache.
// Scope: Integration Test
// Expected: The second check is served from Redis; a grant change is visible at once.
// Test Case ID: RDS-03
func TestCache_WithEvaluator(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	store := newSeededStore(t)
	opts := authz.Options{Cache: c, CacheTTL: time.Minute}
	svc := authz.NewService(store, nil, opts)
	p := authz.TenantPrincipal("admin", "t1")

	assert.True(t, svc.Evaluator.HasPermission(ctx, "clerk", "loans", "read"))
	assert.True(t, mr.Exists(c.entryKey(0, "clerk")))
	assert.False(t, svc.Evaluator.HasPermission(ctx, "clerk", "loans", "approve"))

	require.NoError(t, svc.Engine.GrantPermission(ctx, "role-clerk", "loans:approve", p))
	assert.True(t, svc.Evaluator.HasPermission(ctx, "clerk", "loans", "approve"))

	mr.SetError("connection lost")
	assert.True(t, svc.Evaluator.HasPermission(ctx, "clerk", "loans", "read"))
}

// TestPurpose: Validates that a mutation made by a separate process reaches servers sharing the cache.
// Scope: Unit Test
// Security: No stale decisions after administrative commands
// Expected: A bootstrap run through its own connection bumps the generation, so a warmed deny is not served again.
// Test Case ID: RDS-04
func TestCache_SharedGenerationAcrossProcesses(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store := authztest.New()
	store.AddUser(identity.User{ID: "root", Status: identity.StatusActive})
	require.NoError(t, authz.NewSeeder(store, audit.Nop{}, authz.Options{}).SeedCatalog(ctx))

	server, err := Dial(ctx, Options{Addr: mr.Addr(), Prefix: "test:authz"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	evaluator := authz.NewEvaluator(store, authz.Options{Cache: server, CacheTTL: time.Hour})
	require.False(t, evaluator.HasPermission(ctx, "root", "tenants", "read"))

	command, err := Dial(ctx, Options{Addr: mr.Addr(), Prefix: "test:authz"})
	require.NoError(t, err)
	assigned, err := authz.NewBootstrapper(store, audit.Nop{}, authz.Options{Cache: command}).Bootstrap(ctx, "root")
	require.NoError(t, err)
	require.True(t, assigned)
	require.NoError(t, command.Close())

	assert.True(t, evaluator.HasPermission(ctx, "root", "tenants", "read"))

	_, err = Dial(ctx, Options{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
