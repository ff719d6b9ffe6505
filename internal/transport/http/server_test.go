package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendcore/lendcore/internal/audit"
	"github.com/lendcore/lendcore/internal/authz"
	"github.com/lendcore/lendcore/internal/authz/authztest"
	"github.com/lendcore/lendcore/internal/id"
	"github.com/lendcore/lendcore/internal/identity"
	"github.com/lendcore/lendcore/internal/tenant"
)

const (
	testSecret = "test-signing-secret"
	testIssuer = "lendcore-test"
)

type testServer struct {
	t      *testing.T
	store  *authztest.Store
	router http.Handler
}

// newTestServer seeds the built-in catalog, two tenants with their default
// roles and one system administrator.
//
//	root     system   System Administrator
//	admin1   t1       Tenant Administrator
//	member1  t1       Member
//	admin2   t2       Tenant Administrator
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store := authztest.New()

	t1, t2 := "t1", "t2"
	store.AddTenant(tenant.Tenant{ID: t1, Name: "Acme Lending", Status: tenant.StatusActive})
	store.AddTenant(tenant.Tenant{ID: t2, Name: "Globex Credit", Status: tenant.StatusActive})
	store.AddUser(identity.User{ID: "root", Email: "root@lendcore.test", Status: identity.StatusActive})
	store.AddUser(identity.User{ID: "admin1", TenantID: &t1, Email: "admin@acme.test", Status: identity.StatusActive})
	store.AddUser(identity.User{ID: "member1", TenantID: &t1, Email: "member@acme.test", Status: identity.StatusActive})
	store.AddUser(identity.User{ID: "admin2", TenantID: &t2, Email: "admin@globex.test", Status: identity.StatusActive})

	seeder := authz.NewSeeder(store, audit.Nop{}, authz.Options{})
	require.NoError(t, seeder.SeedCatalog(ctx))
	_, err := seeder.SeedTenantRoles(ctx, t1)
	require.NoError(t, err)
	_, err = seeder.SeedTenantRoles(ctx, t2)
	require.NoError(t, err)

	assigned, err := authz.NewBootstrapper(store, audit.Nop{}, authz.Options{}).Bootstrap(ctx, "root")
	require.NoError(t, err)
	require.True(t, assigned)

	for userID, roleID := range map[string]string{
		"admin1":  id.Derive(t1, authz.RoleTenantAdmin),
		"member1": id.Derive(t1, authz.RoleTenantMember),
		"admin2":  id.Derive(t2, authz.RoleTenantAdmin),
	} {
		_, err := store.Assignments().Assign(ctx, &authz.Assignment{UserID: userID, RoleID: roleID, GrantedBy: "root", GrantedAt: time.Now()})
		require.NoError(t, err)
	}

	svc := authz.NewService(store, audit.Nop{}, authz.Options{})
	limiter := NewRateLimiter(1000, 1000)
	t.Cleanup(limiter.Stop)
	tenants := tenant.NewService(store.TenantManager(), seeder, audit.Nop{})
	h := NewHandler(svc, tenants, NewTokenVerifier(testSecret, testIssuer, ""), nil, nil)

	return &testServer{t: t, store: store, router: NewRouter(h, limiter, RouterOptions{})}
}

func signToken(t *testing.T, secret, userID string, tenantID *string, expiresIn time.Duration) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, PrincipalClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    testIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func tenantToken(t *testing.T, userID, tenantID string) string {
	return signToken(t, testSecret, userID, &tenantID, time.Hour)
}

func systemToken(t *testing.T, userID string) string {
	return signToken(t, testSecret, userID, nil, time.Hour)
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.doWith(method, path, token, body, nil)
}

// doWith is do with a hook to adjust the request before it is served.
func (s *testServer) doWith(method, path, token string, body any, adjust func(*http.Request)) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		reader = &buf
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if adjust != nil {
		adjust(req)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// TestPurpose: Validates that only verified bearer tokens reach the API.
// Scope: Integration Test (HTTP)
// Security: Authentication, tenant header spoofing
// Expected: Missing, forged and expired tokens get 401; an X-Tenant-ID header gets 400; /health is public.
// Test Case ID: HTTP-01
func TestHTTP_Authentication(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", nil).Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/me/permissions", "", nil).Code)

	t1 := "t1"
	forged := signToken(t, "another-secret", "member1", &t1, time.Hour)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/me/permissions", forged, nil).Code)

	expired := signToken(t, testSecret, "member1", &t1, -time.Minute)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/me/permissions", expired, nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/permissions", nil)
	req.Header.Set("Authorization", "Bearer "+tenantToken(t, "member1", "t1"))
	req.Header.Set("X-Tenant-ID", "t2")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestPurpose: Validates that a caller sees its effective permissions in both representations.
// Scope: Integration Test (HTTP)
// Expected: The member gets its three read keys and the matching menu map.
// Test Case ID: HTTP-02
func TestHTTP_MyPermissions(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/v1/me/permissions", tenantToken(t, "member1", "t1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	perms := decode[authz.UserPermissions](t, rec)
	assert.Equal(t, []string{"billing:read", "loans:read", "reports:read"}, perms.Keys)
	assert.Equal(t, []string{"read"}, perms.Menus["loans"])
	assert.NotContains(t, perms.Menus, "roles")
}

// TestPurpose: Validates the full role lifecycle through the API.
// Scope: Integration Test (HTTP)
// Expected: Create, grant, bulk replace, rename, delete; space changes are rejected with 422.
// Test Case ID: HTTP-03
func TestHTTP_RoleLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := tenantToken(t, "admin1", "t1")

	rec := s.do(http.MethodPost, "/api/v1/roles", token, CreateRoleRequest{Name: "Loan Officer", Description: "Originates loans"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	role := decode[RoleResponse](t, rec)
	assert.Equal(t, authz.SpaceTenant, role.Space)
	require.NotNil(t, role.TenantID)
	assert.Equal(t, "t1", *role.TenantID)

	base := "/api/v1/roles/" + role.ID
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, base+"/permissions/loans:read", token, nil).Code)

	rec = s.do(http.MethodPut, base+"/permissions", token, ReplacePermissionsRequest{Keys: []string{"loans:read", "loans:create", "loans:nonexistent"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[authz.BulkResult](t, rec)
	assert.Equal(t, 2, result.GrantedCount)
	assert.Equal(t, []string{"loans:nonexistent"}, result.NotFoundKeys)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, base+"/permissions/loans:create", token, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, base+"/permissions/loans:create", token, nil).Code, "revoking an unheld permission is a no-op")
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, base+"/permissions/loans:nonexistent", token, nil).Code)

	rec = s.do(http.MethodPatch, base, token, map[string]any{"name": "Senior Loan Officer"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Senior Loan Officer", decode[RoleResponse](t, rec).Name)

	rec = s.do(http.MethodPatch, base, token, map[string]any{"space": "system"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/roles?per_page=50", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[RoleListResponse](t, rec)
	assert.Equal(t, 50, list.PerPage)
	var names []string
	for _, r := range list.Items {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "Senior Loan Officer")

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, base, token, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, base, token, nil).Code)
}

// TestPurpose: Validates route guards and cross-tenant isolation.
// Scope: Integration Test (HTTP)
// Security: Privilege escalation and tenant isolation
// Expected: Members cannot write roles; other tenants see 404 on reads and 403 on writes; tenant admins cannot create system roles.
// Test Case ID: HTTP-04
func TestHTTP_GuardsAndIsolation(t *testing.T) {
	s := newTestServer(t)
	adminRole := "/api/v1/roles/" + id.Derive("t1", authz.RoleTenantAdmin)

	rec := s.do(http.MethodPost, "/api/v1/roles", tenantToken(t, "member1", "t1"), CreateRoleRequest{Name: "Sneaky"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	other := tenantToken(t, "admin2", "t2")
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, adminRole, other, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch, adminRole, other, map[string]any{"name": "Mine"}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, adminRole+"/permissions/loans:read", other, nil).Code)

	rec = s.do(http.MethodPost, "/api/v1/roles", tenantToken(t, "admin1", "t1"), CreateRoleRequest{Name: "Platform", Space: "system"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A system principal cannot reach into a tenant role either.
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch, adminRole, systemToken(t, "root"), map[string]any{"name": "Mine"}).Code)

	// Granting a system permission to a tenant role is a security violation.
	rec = s.do(http.MethodPost, adminRole+"/permissions/tenants:create", tenantToken(t, "admin1", "t1"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// TestPurpose: Validates role assignment through the API and its immediate effect.
// Scope: Integration Test (HTTP)
// Security: Cross-tenant assignment prevention
// Expected: The assigned role shows up in the member's permissions; assigning to another tenant's user is refused.
// Test Case ID: HTTP-05
func TestHTTP_AssignRole(t *testing.T) {
	s := newTestServer(t)
	token := tenantToken(t, "admin1", "t1")

	rec := s.do(http.MethodPost, "/api/v1/roles", token, CreateRoleRequest{Name: "Approver"})
	require.Equal(t, http.StatusCreated, rec.Code)
	role := decode[RoleResponse](t, rec)
	require.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/api/v1/roles/"+role.ID+"/permissions/loans:approve", token, nil).Code)

	expires := time.Now().Add(24 * time.Hour)
	rec = s.do(http.MethodPut, "/api/v1/users/member1/roles/"+role.ID, token, AssignRoleRequest{ExpiresAt: &expires})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	perms := decode[authz.UserPermissions](t, s.do(http.MethodGet, "/api/v1/me/permissions", tenantToken(t, "member1", "t1"), nil))
	assert.Contains(t, perms.Keys, "loans:approve")

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPut, "/api/v1/users/admin2/roles/"+role.ID, token, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPut, "/api/v1/users/ghost/roles/"+role.ID, token, nil).Code)

	past := time.Now().Add(-time.Hour)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/v1/users/member1/roles/"+role.ID, token, AssignRoleRequest{ExpiresAt: &past}).Code)

	require.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/users/member1/roles/"+role.ID, token, nil).Code)
	perms = decode[authz.UserPermissions](t, s.do(http.MethodGet, "/api/v1/me/permissions", tenantToken(t, "member1", "t1"), nil))
	assert.NotContains(t, perms.Keys, "loans:approve")
}

// TestPurpose: Validates delegation create, list and revoke through the API.
// Scope: Integration Test (HTTP)
// Expected: The delegatee gains the delegated permissions until the delegation is revoked.
// Test Case ID: HTTP-06
func TestHTTP_Delegation(t *testing.T) {
	s := newTestServer(t)
	token := tenantToken(t, "admin1", "t1")
	memberToken := tenantToken(t, "member1", "t1")

	rec := s.do(http.MethodPost, "/api/v1/delegations", token, CreateDelegationRequest{
		FromUserID: "admin1",
		ToUserID:   "member1",
		RoleID:     id.Derive("t1", authz.RoleTenantAdmin),
		ExpiresAt:  time.Now().Add(2 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	d := decode[DelegationResponse](t, rec)
	assert.Equal(t, "admin1", d.CreatedBy)

	perms := decode[authz.UserPermissions](t, s.do(http.MethodGet, "/api/v1/me/permissions", memberToken, nil))
	assert.Contains(t, perms.Keys, authz.PermRolesWrite)

	rec = s.do(http.MethodGet, "/api/v1/users/member1/delegations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]DelegationResponse](t, rec), 1)

	require.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/delegations/"+d.ID, token, nil).Code)
	perms = decode[authz.UserPermissions](t, s.do(http.MethodGet, "/api/v1/me/permissions", memberToken, nil))
	assert.NotContains(t, perms.Keys, authz.PermRolesWrite)

	rec = s.do(http.MethodPost, "/api/v1/delegations", token, CreateDelegationRequest{
		FromUserID: "admin1",
		ToUserID:   "admin1",
		RoleID:     id.Derive("t1", authz.RoleTenantAdmin),
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestPurpose: Validates constrained access checks.
// Scope: Integration Test (HTTP)
// Expected: Held actions are allowed, others denied with a reason; a record limit on the only granting role denies large batches.
// Test Case ID: HTTP-07
func TestHTTP_CheckAccess(t *testing.T) {
	s := newTestServer(t)
	memberToken := tenantToken(t, "member1", "t1")

	rec := s.do(http.MethodPost, "/api/v1/access/check", memberToken, CheckAccessRequest{MenuKey: "loans", ActionKey: "read"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[authz.Decision](t, rec).Allowed)

	rec = s.do(http.MethodPost, "/api/v1/access/check", memberToken, CheckAccessRequest{MenuKey: "loans", ActionKey: "approve"})
	require.Equal(t, http.StatusOK, rec.Code)
	denied := decode[authz.Decision](t, rec)
	assert.False(t, denied.Allowed)
	assert.NotEmpty(t, denied.Reason)

	admin := tenantToken(t, "admin1", "t1")
	rec = s.do(http.MethodPost, "/api/v1/roles", admin, map[string]any{
		"name":        "Small Batch Approver",
		"constraints": map[string]any{"max_records": 10},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	role := decode[RoleResponse](t, rec)
	require.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/api/v1/roles/"+role.ID+"/permissions/loans:approve", admin, nil).Code)
	require.Equal(t, http.StatusNoContent, s.do(http.MethodPut, "/api/v1/users/member1/roles/"+role.ID, admin, nil).Code)

	rec = s.do(http.MethodPost, "/api/v1/access/check", memberToken, CheckAccessRequest{MenuKey: "loans", ActionKey: "approve", RecordCount: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[authz.Decision](t, rec).Allowed)

	rec = s.do(http.MethodPost, "/api/v1/access/check", memberToken, CheckAccessRequest{MenuKey: "loans", ActionKey: "approve", RecordCount: 500})
	require.Equal(t, http.StatusOK, rec.Code)
	limited := decode[authz.Decision](t, rec)
	assert.False(t, limited.Allowed)
	assert.NotEmpty(t, limited.Reason)

	rec = s.do(http.MethodPost, "/api/v1/roles", admin, map[string]any{
		"name":        "Branch Network Approver",
		"constraints": map[string]any{"allowed_cidrs": []string{"10.0.0.0/8"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	branch := decode[RoleResponse](t, rec)
	require.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/api/v1/roles/"+branch.ID+"/permissions/billing:approve", admin, nil).Code)
	require.Equal(t, http.StatusNoContent, s.do(http.MethodPut, "/api/v1/users/member1/roles/"+branch.ID, admin, nil).Code)

	billing := CheckAccessRequest{MenuKey: "billing", ActionKey: "approve"}
	fromBranch := func(r *http.Request) { r.RemoteAddr = "10.1.1.1:5555" }
	rec = s.doWith(http.MethodPost, "/api/v1/access/check", memberToken, billing, fromBranch)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[authz.Decision](t, rec).Allowed)

	outside := func(r *http.Request) { r.RemoteAddr = "203.0.113.9:5555" }
	rec = s.doWith(http.MethodPost, "/api/v1/access/check", memberToken, billing, outside)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[authz.Decision](t, rec).Allowed)

	spoofed := func(r *http.Request) {
		r.RemoteAddr = "203.0.113.9:5555"
		r.Header.Set("X-Forwarded-For", "10.1.1.1")
		r.Header.Set("X-Real-IP", "10.1.1.1")
	}
	rec = s.doWith(http.MethodPost, "/api/v1/access/check", memberToken, billing, spoofed)
	require.Equal(t, http.StatusOK, rec.Code)
	decision := decode[authz.Decision](t, rec)
	assert.False(t, decision.Allowed, "forwarding headers from an untrusted peer must not satisfy a network constraint")
	assert.NotEmpty(t, decision.Reason)

	rec = s.do(http.MethodPost, "/api/v1/access/check", memberToken, map[string]any{"menu_key": "loans"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestPurpose: Validates request body validation.
// Scope: Integration Test (HTTP)
// Expected: Missing fields, unknown fields and malformed JSON are 400s.
// Test Case ID: HTTP-08
func TestHTTP_Validation(t *testing.T) {
	s := newTestServer(t)
	token := tenantToken(t, "admin1", "t1")

	rec := s.do(http.MethodPost, "/api/v1/roles", token, map[string]any{"description": "nameless"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "validation failed", body["error"])
	assert.Contains(t, body["fields"], "Name")

	rec = s.do(http.MethodPost, "/api/v1/roles", token, map[string]any{"name": "X", "owner": "me"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/roles", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	out := httptest.NewRecorder()
	s.router.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)

	rec = s.do(http.MethodPost, "/api/v1/roles", token, map[string]any{"name": "Bad Window", "constraints": map[string]any{"nope": true}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestPurpose: Validates catalog listings are confined to the caller's space.
// Scope: Integration Test (HTTP)
// Security: Tenant principals never see the system catalog
// Expected: Tenant callers get tenant entries even when asking for system ones; unknown spaces are 422.
// Test Case ID: HTTP-09
func TestHTTP_Catalog(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/v1/permissions?space=system", tenantToken(t, "member1", "t1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	perms := decode[[]PermissionResponse](t, rec)
	require.NotEmpty(t, perms)
	for _, p := range perms {
		assert.Equal(t, authz.SpaceTenant, p.Space, p.Key)
	}

	rec = s.do(http.MethodGet, "/api/v1/modules?space=system", systemToken(t, "root"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, m := range decode[[]ModuleResponse](t, rec) {
		assert.Equal(t, authz.SpaceSystem, m.Space, m.MenuKey)
	}

	assert.Equal(t, http.StatusUnprocessableEntity, s.do(http.MethodGet, "/api/v1/permissions?space=galaxy", systemToken(t, "root"), nil).Code)
}

// TestPurpose: Validates per-client rate limiting and hardening headers.
// Scope: Unit Test
// Security: Abuse prevention, response hardening
// Expected: The second request within the burst window gets 429; responses carry frame and sniffing protections.
// Test Case ID: HTTP-10
func TestHTTP_RateLimitAndHeaders(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	t.Cleanup(limiter.Stop)
	router := NewRouter(NewHandler(nil, nil, NewTokenVerifier(testSecret, "", ""), nil, nil), limiter, RouterOptions{})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "DENY", first.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", first.Header().Get("X-Content-Type-Options"))

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

// TestPurpose: Validates client address resolution behind proxies.
// Scope: Unit Test
// Security: Forwarding headers are client controlled unless a trusted proxy set them
// Expected: Headers are ignored from untrusted peers; behind trusted proxies the rightmost untrusted hop wins.
// Test Case ID: HTTP-11
func TestHTTP_ClientIP(t *testing.T) {
	trusting, err := NewClientIPResolver([]string{"10.0.0.0/8", " 192.168.1.1 ", ""})
	require.NoError(t, err)

	tests := []struct {
		name     string
		resolver *ClientIPResolver
		headers  map[string]string
		remote   string
		want     string
	}{
		{"nil resolver ignores forwarded", nil, map[string]string{"X-Forwarded-For": "10.1.1.1"}, "203.0.113.9:5555", "203.0.113.9"},
		{"untrusted peer ignores real ip", trusting, map[string]string{"X-Real-IP": "10.1.1.1"}, "203.0.113.9:5555", "203.0.113.9"},
		{"trusted peer, spoofed leftmost hop", trusting, map[string]string{"X-Forwarded-For": "10.9.9.9, 198.51.100.4, 10.0.0.1"}, "10.0.0.2:5555", "198.51.100.4"},
		{"trusted single address", trusting, map[string]string{"X-Forwarded-For": "198.51.100.7"}, "192.168.1.1:443", "198.51.100.7"},
		{"trusted peer, all hops trusted", trusting, map[string]string{"X-Forwarded-For": "10.3.3.3, 10.0.0.1"}, "10.0.0.2:5555", "10.3.3.3"},
		{"trusted peer, real ip", trusting, map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:5555", "198.51.100.4"},
		{"trusted peer, no headers", trusting, nil, "10.0.0.2:5555", "10.0.0.2"},
		{"trusted peer, garbage hop", trusting, map[string]string{"X-Forwarded-For": "not-an-ip"}, "10.0.0.2:5555", "invalid IP"},
		{"remote without port", nil, nil, "192.0.2.11", "192.0.2.11"},
		{"mapped v4", nil, nil, "[::ffff:192.0.2.12]:80", "192.0.2.12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, tt.resolver.ClientIP(req).String())
		})
	}

	_, err = NewClientIPResolver([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = NewClientIPResolver([]string{"proxy.internal"})
	assert.Error(t, err)
}

// TestPurpose: Validates domain error kinds map to stable HTTP statuses.
// Scope: Unit Test
// Expected: Storage failures hide their cause behind a 500.
// Test Case ID: HTTP-12
func TestHTTP_WriteAuthzError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{authz.ErrRoleNotFound, http.StatusNotFound},
		{&authz.Error{Kind: authz.ErrInvalidRoleSpace, Message: "x"}, http.StatusUnprocessableEntity},
		{&authz.Error{Kind: authz.ErrPermissionDenied, Message: "x"}, http.StatusForbidden},
		{&authz.Error{Kind: authz.ErrSecurityViolation, Message: "x"}, http.StatusForbidden},
		{&authz.Error{Kind: authz.ErrInvalidArgument, Message: "x"}, http.StatusBadRequest},
		{&authz.Error{Kind: authz.ErrStorageFailure, Message: "list roles", Err: assert.AnError}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeAuthzError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
		assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	}
}

// TestPurpose: Validates tenant provisioning and suspension through the API.
// Scope: Integration Test (HTTP)
// Security: Only system principals manage tenants
// Expected: The new tenant gets its default roles; tenant admins are refused; suspended tenants reject new roles.
// Test Case ID: HTTP-15
func TestHTTP_Tenants(t *testing.T) {
	s := newTestServer(t)
	root := systemToken(t, "root")

	rec := s.do(http.MethodPost, "/api/v1/tenants", tenantToken(t, "admin1", "t1"), CreateTenantRequest{ID: "initech", Name: "Initech"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/tenants", root, CreateTenantRequest{ID: "initech", Name: "Initech"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, tenant.StatusActive, decode[tenant.Tenant](t, rec).Status)

	role, err := s.store.Roles().GetByID(context.Background(), id.Derive("initech", authz.RoleTenantAdmin))
	require.NoError(t, err)
	tid, _ := role.Scope.TenantID()
	assert.Equal(t, "initech", tid)

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/v1/tenants", root, CreateTenantRequest{ID: "initech", Name: "Other"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/tenants", root, CreateTenantRequest{ID: "Bad ID", Name: "x"}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/tenants/ghost", root, nil).Code)

	rec = s.do(http.MethodPut, "/api/v1/tenants/t1/status", root, SetTenantStatusRequest{Status: tenant.StatusInactive})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/v1/roles", tenantToken(t, "admin1", "t1"), CreateRoleRequest{Name: "Late Role"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// TestPurpose: Validates that the health endpoint reflects database reachability.
// Scope: Unit Test
// Expected: 200 while the database answers, 503 once it does not.
// Test Case ID: HTTP-16
func TestHTTP_HealthCheck(t *testing.T) {
	var down bool
	db := pingerFunc(func(context.Context) error {
		if down {
			return assert.AnError
		}
		return nil
	})
	h := NewHandler(nil, nil, NewTokenVerifier(testSecret, "", ""), db, nil)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down = true
	rec = httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
