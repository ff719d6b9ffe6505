package authz_test

import (
	"encoding/json"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendcore/lendcore/internal/authz"
	"github.com/lendcore/lendcore/internal/identity"
)

// TestPurpose: Validates that a tenant user's permissions come only from its own tenant's role.
// Scope: Unit Test
// Security: Tenant isolation in access evaluation
// Expected: users:create follows the Tenant Administrator role of tenant 1, not the one of tenant 2.
// Test Case ID: EVL-01
func TestAuthz_Evaluator_TenantRolesDoNotLeak(t *testing.T) {
	f := newFixture(t)
	seeder := authz.NewSeeder(f.store, f.audit, authz.Options{Clock: f.clock.Now})
	t1Roles, err := seeder.SeedTenantRoles(f.ctx, tenant1)
	require.NoError(t, err)
	t2Roles, err := seeder.SeedTenantRoles(f.ctx, tenant2)
	require.NoError(t, err)
	adminT1, adminT2 := t1Roles[0], t2Roles[0]
	require.Equal(t, authz.RoleTenantAdmin, adminT1.Name)
	require.NotEqual(t, adminT1.ID, adminT2.ID)

	require.NoError(t, f.svc.Engine.AssignRole(f.ctx, u1, adminT1.ID, f.t1, authz.AssignOptions{}))
	require.NoError(t, f.svc.Engine.AssignRole(f.ctx, u2, adminT2.ID, f.t2, authz.AssignOptions{}))
	assert.True(t, f.svc.Evaluator.HasPermission(f.ctx, u1, "users", "create"))

	require.NoError(t, f.svc.Engine.RevokePermission(f.ctx, adminT1.ID, authz.PermUsersCreate, f.t1))
	assert.False(t, f.svc.Evaluator.HasPermission(f.ctx, u1, "users", "create"))
	assert.True(t, f.svc.Evaluator.HasPermission(f.ctx, u2, "users", "create"))
}

// TestPurpose: Validates that expired and removed links are excluded from every evaluator answer without deletion.
// Scope: Unit Test
// Expected: Single checks and listings agree before expiry, after expiry and after removal.
// Test Case ID: EVL-02
func TestAuthz_Evaluator_ExpiryFiltering(t *testing.T) {
	f := newFixture(t)
	role := f.newRole(t, "role-t1", "Clerk", f.tenantScope(t, tenant1))
	require.NoError(t, f.svc.Engine.GrantPermission(f.ctx, role.ID, authz.PermLoansRead, f.t1))
	exp := f.clock.Now().Add(30 * time.Minute)
	require.NoError(t, f.svc.Engine.AssignRole(f.ctx, u1b, role.ID, f.t1, authz.AssignOptions{ExpiresAt: &exp}))

	perms, err := f.svc.Evaluator.GetUserPermissions(f.ctx, u1b)
	require.NoError(t, err)
	assert.Equal(t, []string{authz.PermLoansRead}, perms.Keys)
	assert.Equal(t, map[string][]string{"loans": {"read"}}, perms.Menus)
	assert.True(t, f.svc.Evaluator.HasPermission(f.ctx, u1b, "loans", "read"))

	f.clock.Advance(31 * time.Minute)
	assert.False(t, f.svc.Evaluator.HasPermission(f.ctx, u1b, "loans", "read"))
	assert.False(t, f.svc.Evaluator.HasAction(f.ctx, u1b, "loans", "read"))
	perms, err = f.svc.Evaluator.GetUserPermissions(f.ctx, u1b)
	require.NoError(t, err)
	assert.Empty(t, perms.Keys)
	assert.Empty(t, perms.Menus)
	assert.Equal(t, 1, f.store.AssignmentCount(u1b, role.ID))

	require.NoError(t, f.svc.Engine.UnassignRole(f.ctx, u1b, role.ID, f.t1))
	assert.False(t, f.svc.Evaluator.HasPermission(f.ctx, u1b, "loans", "read"))
}

// TestPurpose: Validates the filters of grant resolution: inactive users and non-active roles grant nothing; a disabled module only hides its menu.
// Scope: Unit Test
// Expected: Access disappears for each excluded entity.
// Test Case ID: EVL-03
func TestAuthz_Evaluator_ResolutionFilters(t *testing.T) {
	f := newFixture(t)
	role := f.newRole(t, "role-t1", "Clerk", f.tenantScope(t, tenant1))
	_, err := f.svc.Engine.BulkReplacePermissions(f.ctx, role.ID, []string{authz.PermLoansRead, authz.PermReportsRead}, f.t1)
	require.NoError(t, err)
	require.NoError(t, f.svc.Engine.AssignRole(f.ctx, u1b, role.ID, f.t1, authz.AssignOptions{}))

	t.Run("disabled module hides its menu", func(t *testing.T) {
		mod, err := f.store.Permissions().GetModule(f.ctx, "reports")
		require.NoError(t, err)
		mod.Status = authz.ModuleStatusDisabled
		f.store.AddModule(*mod)
		require.NoError(t, f.cache.Invalidate(f.ctx))

		assert.False(t, f.svc.Evaluator.HasMenuAccess(f.ctx, u1b, "reports"))
		assert.False(t, f.svc.Evaluator.HasAction(f.ctx, u1b, "reports", "read"))
		assert.False(t, f.svc.Evaluator.CheckWithConstraints(f.ctx, u1b, "reports", "read", authz.CheckContext{}).Allowed)
		assert.True(t, f.svc.Evaluator.HasMenuAccess(f.ctx, u1b, "loans"))

		// The flat key does not depend on navigation.
		assert.True(t, f.svc.Evaluator.HasPermission(f.ctx, u1b, "reports", "read"))
		perms, err := f.svc.Evaluator.GetUserPermissions(f.ctx, u1b)
		require.NoError(t, err)
		assert.Contains(t, perms.Keys, authz.PermReportsRead)
		assert.NotContains(t, perms.Menus, "reports")
		assert.Contains(t, perms.Menus, "loans")

		mod.Status = authz.ModuleStatusActive
		f.store.AddModule(*mod)
		require.NoError(t, f.cache.Invalidate(f.ctx))
		assert.True(t, f.svc.Evaluator.HasMenuAccess(f.ctx, u1b, "reports"))
	})

	t.Run("suspended user has nothing", func(t *testing.T) {
		f.store.AddUser(identity.User{ID: suspended, TenantID: strPtr(tenant1), Status: identity.StatusActive})
		require.NoError(t, f.svc.Engine.AssignRole(f.ctx, suspended, role.ID, f.t1, authz.AssignOptions{}))
		require.True(t, f.svc.Evaluator.HasPermission(f.ctx, suspended, "loans", "read"))

		f.store.AddUser(identity.User{ID: suspended, TenantID: strPtr(tenant1), Status: identity.StatusSuspended})
		require.NoError(t, f.cache.Invalidate(f.ctx))
		assert.False(t, f.svc.Evaluator.HasPermission(f.ctx, suspended, "loans", "read"))
	})

	t.Run("disabled role grants nothing", func(t *testing.T) {
		disabled := authz.RoleStatusDisabled
		_, err := f.svc.Registry.UpdateRole(f.ctx, role.ID, authz.RolePatch{Status: &disabled}, f.t1)
		require.NoError(t, err)
		assert.False(t, f.svc.Evaluator.HasPermission(f.ctx, u1b, "loans", "read"))
	})

	t.Run("deleted role grants nothing", func(t *testing.T) {
		active := authz.RoleStatusActive
		_, err := f.svc.Registry.UpdateRole(f.ctx, role.ID, authz.RolePatch{Status: &active}, f.t1)
		require.NoError(t, err)
		require.True(t, f.svc.Evaluator.HasPermission(f.ctx, u1b, "loans", "read"))

		require.NoError(t, f.svc.Registry.DeleteRole(f.ctx, role.ID, f.t1))
		assert.False(t, f.svc.Evaluator.HasPermission(f.ctx, u1b, "loans", "read"))
	})
}

// TestPurpose: Validates that the menu view is derived from the canonical permission, including menu overrides.
// Scope: Unit Test
// Expected: platform-settings permissions surface under the settings menu.
// Test Case ID: EVL-04
func TestAuthz_Evaluator_MenuView(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Engine.AssignRole(f.ctx, sysUser, authz.RoleIDSystemAdmin, f.sys, authz.AssignOptions{}))

	assert.True(t, f.svc.Evaluator.HasAction(f.ctx, sysUser, "settings", "update"))
	assert.True(t, f.svc.Evaluator.HasPermission(f.ctx, sysUser, "platform-settings", "update"))
	assert.False(t, f.svc.Evaluator.HasMenuAccess(f.ctx, sysUser, "platform-settings"))
	assert.False(t, f.svc.Evaluator.HasMenuAccess(f.ctx, sysUser, "loans"))

	perms, err := f.svc.Evaluator.GetUserPermissions(f.ctx, sysUser)
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "update"}, perms.Menus["settings"])
	assert.Len(t, perms.Keys, len(authz.SystemAdminPermissions()))
}

// TestPurpose: Validates that storage failures during evaluation deny access instead of erroring.
// Scope: Unit Test
// Security: Fail-closed authorization
// Expected: false from every check; a typed error from the listing.
// Test Case ID: EVL-05
func TestAuthz_Evaluator_FailsClosed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Engine.AssignRole(f.ctx, sysUser, authz.RoleIDSystemAdmin, f.sys, authz.AssignOptions{}))
	evaluator := authz.NewEvaluator(f.store, authz.Options{Clock: f.clock.Now})
	require.True(t, evaluator.HasPermission(f.ctx, sysUser, "tenants", "read"))

	f.store.Fail("Resolution.ResolveGrants", errors.New("database is down"))
	defer f.store.Fail("Resolution.ResolveGrants", nil)

	assert.False(t, evaluator.HasPermission(f.ctx, sysUser, "tenants", "read"))
	assert.False(t, evaluator.HasMenuAccess(f.ctx, sysUser, "tenants"))
	assert.False(t, evaluator.HasAction(f.ctx, sysUser, "tenants", "read"))
	assert.False(t, evaluator.CheckWithConstraints(f.ctx, sysUser, "tenants", "read", authz.CheckContext{}).Allowed)
	_, err := evaluator.GetUserPermissions(f.ctx, sysUser)
	assert.ErrorIs(t, err, authz.ErrStorageFailure)
}

// TestPurpose: Validates caching of resolved grants and the TTL bound by the earliest link expiry.
// Scope: Unit Test
// Expected: Second check is served from the cache; TTL is capped by the expiry; mutations force re-resolution.
// Test Case ID: EVL-06
func TestAuthz_Evaluator_Cache(t *testing.T) {
	f := newFixture(t)
	role := f.newRole(t, "role-t1", "Clerk", f.tenantScope(t, tenant1))
	require.NoError(t, f.svc.Engine.GrantPermission(f.ctx, role.ID, authz.PermLoansRead, f.t1))
	exp := f.clock.Now().Add(90 * time.Second)
	require.NoError(t, f.svc.Engine.AssignRole(f.ctx, u1b, role.ID, f.t1, authz.AssignOptions{ExpiresAt: &exp}))

	sets, hits := f.cache.Sets, f.cache.Hits
	assert.True(t, f.svc.Evaluator.HasPermission(f.ctx, u1b, "loans", "read"))
	assert.True(t, f.svc.Evaluator.HasPermission(f.ctx, u1b, "loans", "read"))
	assert.Equal(t, sets+1, f.cache.Sets)
	assert.Equal(t, hits+1, f.cache.Hits)
	assert.Equal(t, 90*time.Second, f.cache.TTLs[u1b])

	require.NoError(t, f.svc.Engine.RevokePermission(f.ctx, role.ID, authz.PermLoansRead, f.t1))
	assert.False(t, f.svc.Evaluator.HasPermission(f.ctx, u1b, "loans", "read"))
}

// TestPurpose: Validates that cache outages fall through to storage.
// Scope: Unit Test
// Expected: Decisions are still correct while the cache errors.
// Test Case ID: EVL-07
func TestAuthz_Evaluator_CacheErrorsFallThrough(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Engine.AssignRole(f.ctx, sysUser, authz.RoleIDSystemAdmin, f.sys, authz.AssignOptions{}))

	f.cache.Err = errors.New("redis: connection refused")
	assert.True(t, f.svc.Evaluator.HasPermission(f.ctx, sysUser, "audit", "read"))
	assert.False(t, f.svc.Evaluator.HasPermission(f.ctx, sysUser, "loans", "read"))
}

// TestPurpose: Validates that concurrent checks for one user resolve consistently.
// Scope: Unit Test
// Expected: Every goroutine sees the same decision.
// Test Case ID: EVL-08
func TestAuthz_Evaluator_ConcurrentChecks(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Engine.AssignRole(f.ctx, sysUser, authz.RoleIDSystemAdmin, f.sys, authz.AssignOptions{}))

	var wg sync.WaitGroup
	results := make([]bool, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.svc.Evaluator.HasPermission(f.ctx, sysUser, "tenants", "create")
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.True(t, r)
	}
}

// TestPurpose: Validates constrained decisions: constraints only restrict, any satisfied granting role allows, malformed payloads deny that role.
// Scope: Unit Test
// Security: Network and time based restrictions
// Expected: Decisions and reasons per scenario.
// Test Case ID: EVL-09
func TestAuthz_Evaluator_CheckWithConstraints(t *testing.T) {
	f := newFixture(t)
	office := f.newRole(t, "role-office", "Office Approver", f.tenantScope(t, tenant1))
	require.NoError(t, f.svc.Engine.GrantPermission(f.ctx, office.ID, authz.PermLoansApprove, f.t1))
	constraints := json.RawMessage(`{"allowed_cidrs":["10.0.0.0/8"],"allowed_hours":{"start":"09:00","end":"18:00","timezone":"UTC"},"max_records":100}`)
	_, err := f.svc.Registry.UpdateRole(f.ctx, office.ID, authz.RolePatch{Constraints: &constraints}, f.t1)
	require.NoError(t, err)
	require.NoError(t, f.svc.Engine.AssignRole(f.ctx, u1b, office.ID, f.t1, authz.AssignOptions{}))

	inside := netip.MustParseAddr("10.1.2.3")
	outside := netip.MustParseAddr("203.0.113.9")
	at := f.clock.Now()

	d := f.svc.Evaluator.CheckWithConstraints(f.ctx, u1b, "loans", "approve", authz.CheckContext{IP: inside, At: at, RecordCount: 10})
	assert.True(t, d.Allowed)

	d = f.svc.Evaluator.CheckWithConstraints(f.ctx, u1b, "loans", "approve", authz.CheckContext{IP: outside, At: at})
	assert.False(t, d.Allowed)
	assert.Equal(t, "source address not allowed", d.Reason)

	d = f.svc.Evaluator.CheckWithConstraints(f.ctx, u1b, "loans", "approve", authz.CheckContext{IP: inside, At: at.Add(10 * time.Hour)})
	assert.False(t, d.Allowed)
	assert.Equal(t, "outside allowed hours", d.Reason)

	d = f.svc.Evaluator.CheckWithConstraints(f.ctx, u1b, "loans", "approve", authz.CheckContext{IP: inside, At: at, RecordCount: 101})
	assert.False(t, d.Allowed)

	d = f.svc.Evaluator.CheckWithConstraints(f.ctx, u1b, "billing", "approve", authz.CheckContext{IP: inside, At: at})
	assert.False(t, d.Allowed)
	assert.Equal(t, "no role grants billing:approve", d.Reason)

	// A second, unconstrained role granting the same action allows from anywhere.
	open := f.newRole(t, "role-open", "Remote Approver", f.tenantScope(t, tenant1))
	require.NoError(t, f.svc.Engine.GrantPermission(f.ctx, open.ID, authz.PermLoansApprove, f.t1))
	require.NoError(t, f.svc.Engine.AssignRole(f.ctx, u1b, open.ID, f.t1, authz.AssignOptions{}))
	d = f.svc.Evaluator.CheckWithConstraints(f.ctx, u1b, "loans", "approve", authz.CheckContext{IP: outside, At: at})
	assert.True(t, d.Allowed)

	// Malformed constraints stored out of band deny that role's contribution.
	broken := f.newRole(t, "role-broken", "Broken", f.tenantScope(t, tenant1))
	broken.Constraints = json.RawMessage(`{"allowed_cidrs":"everyone"}`)
	f.store.AddRole(*broken)
	require.NoError(t, f.svc.Engine.GrantPermission(f.ctx, broken.ID, authz.PermBillingApprove, f.t1))
	require.NoError(t, f.svc.Engine.AssignRole(f.ctx, u1b, broken.ID, f.t1, authz.AssignOptions{}))
	d = f.svc.Evaluator.CheckWithConstraints(f.ctx, u1b, "billing", "approve", authz.CheckContext{IP: inside, At: at})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "malformed constraints")
	assert.True(t, f.svc.Evaluator.HasAction(f.ctx, u1b, "billing", "approve"))
}
