package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendcore/lendcore/internal/audit"
	"github.com/lendcore/lendcore/internal/authz"
)

// TestPurpose: Validates that bootstrap hands the system administrator role to the first operator only once.
// Scope: Unit Test
// Security: Initial privileged access
// Expected: First call assigns; later calls do nothing because a holder exists.
// Test Case ID: BST-01
func TestAuthz_Bootstrap_AssignsFirstAdmin(t *testing.T) {
	f := newFixture(t)
	b := authz.NewBootstrapper(f.store, f.audit, authz.Options{Cache: f.cache, Clock: f.clock.Now})

	ok, err := b.Bootstrap(f.ctx, sysUser)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.svc.Evaluator.HasPermission(f.ctx, sysUser, "system-roles", "grant"))

	ok, err = b.Bootstrap(f.ctx, sysUser2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, f.svc.Evaluator.HasPermission(f.ctx, sysUser2, "system-roles", "grant"))

	events := f.audit.ofType(audit.TypeSystemAdminBootstrap)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActorSystemBootstrap, events[0].ActorID)
}

// TestPurpose: Validates bootstrap guards: nothing configured does nothing, tenant users cannot become system administrators.
// Scope: Unit Test
// Expected: No-op for empty id; SecurityViolation for a tenant user; NotFound for unknown users.
// Test Case ID: BST-02
func TestAuthz_Bootstrap_Guards(t *testing.T) {
	f := newFixture(t)
	b := authz.NewBootstrapper(f.store, f.audit, authz.Options{Clock: f.clock.Now})

	ok, err := b.Bootstrap(f.ctx, "")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = b.Bootstrap(f.ctx, u1)
	assert.ErrorIs(t, err, authz.ErrSecurityViolation)

	_, err = b.Bootstrap(f.ctx, "nobody")
	assert.ErrorIs(t, err, authz.ErrNotFound)
}
