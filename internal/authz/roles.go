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

package authz

// -----------------------------------------------------------------------------
// Built-in Roles
// Stable identifiers referenced by migrations and bootstrap.
// DO NOT modify these values without a corresponding data migration.
// -----------------------------------------------------------------------------

const (
	// RoleIDSystemAdmin is the platform-wide administrator role.
	// Scope: system
	// Permissions: every system-space permission
	RoleIDSystemAdmin = "20000000-0000-0000-0000-000000000001"

	RoleSystemAdmin  = "System Administrator"
	RoleTenantAdmin  = "Tenant Administrator"
	RoleTenantMember = "Member"
)

// -----------------------------------------------------------------------------
// Permission Keys
// -----------------------------------------------------------------------------

// System space
const (
	PermTenantsRead          = "tenants:read"
	PermTenantsCreate        = "tenants:create"
	PermTenantsUpdate        = "tenants:update"
	PermTenantsSuspend       = "tenants:suspend"
	PermSystemRolesRead      = "system-roles:read"
	PermSystemRolesWrite     = "system-roles:write"
	PermSystemRolesGrant     = "system-roles:grant"
	PermSystemUsersRead      = "system-users:read"
	PermSystemUsersCreate    = "system-users:create"
	PermSystemUsersUpdate    = "system-users:update"
	PermAuditRead            = "audit:read"
	PermPlatformSettingsRead = "platform-settings:read"
	PermPlatformSettingsEdit = "platform-settings:update"
)

// Tenant space
const (
	PermUsersRead      = "users:read"
	PermUsersCreate    = "users:create"
	PermUsersUpdate    = "users:update"
	PermUsersDelete    = "users:delete"
	PermRolesRead      = "roles:read"
	PermRolesWrite     = "roles:write"
	PermRolesGrant     = "roles:grant"
	PermLoansRead      = "loans:read"
	PermLoansCreate    = "loans:create"
	PermLoansUpdate    = "loans:update"
	PermLoansApprove   = "loans:approve"
	PermBillingRead    = "billing:read"
	PermBillingCreate  = "billing:create"
	PermBillingApprove = "billing:approve"
	PermReportsRead    = "reports:read"
)

// -----------------------------------------------------------------------------
// Catalog Definitions
// Used for seeding.
// -----------------------------------------------------------------------------

type permissionDef struct {
	key         string
	description string
	menu        string
}

var systemPermissions = []permissionDef{
	{PermTenantsRead, "View tenants", ""},
	{PermTenantsCreate, "Create tenants", ""},
	{PermTenantsUpdate, "Edit tenants", ""},
	{PermTenantsSuspend, "Suspend or reactivate tenants", ""},
	{PermSystemRolesRead, "View system roles", ""},
	{PermSystemRolesWrite, "Create, edit and delete system roles", ""},
	{PermSystemRolesGrant, "Assign system roles and change their permissions", ""},
	{PermSystemUsersRead, "View platform operators", ""},
	{PermSystemUsersCreate, "Invite platform operators", ""},
	{PermSystemUsersUpdate, "Edit platform operators", ""},
	{PermAuditRead, "Read the audit trail", ""},
	{PermPlatformSettingsRead, "View platform settings", "settings"},
	{PermPlatformSettingsEdit, "Edit platform settings", "settings"},
}

var tenantPermissions = []permissionDef{
	{PermUsersRead, "View users", ""},
	{PermUsersCreate, "Create users", ""},
	{PermUsersUpdate, "Edit users", ""},
	{PermUsersDelete, "Delete users", ""},
	{PermRolesRead, "View roles", ""},
	{PermRolesWrite, "Create, edit and delete roles", ""},
	{PermRolesGrant, "Assign roles and change their permissions", ""},
	{PermLoansRead, "View loans", ""},
	{PermLoansCreate, "Originate loans", ""},
	{PermLoansUpdate, "Edit loans", ""},
	{PermLoansApprove, "Approve loans", ""},
	{PermBillingRead, "View invoices", ""},
	{PermBillingCreate, "Issue invoices", ""},
	{PermBillingApprove, "Approve invoices", ""},
	{PermReportsRead, "View reports", ""},
}

// BuiltinPermissions returns the seeded permission catalog.
func BuiltinPermissions() []*Permission {
	out := make([]*Permission, 0, len(systemPermissions)+len(tenantPermissions))
	for _, set := range []struct {
		space Space
		defs  []permissionDef
	}{{SpaceSystem, systemPermissions}, {SpaceTenant, tenantPermissions}} {
		for _, d := range set.defs {
			resource, action, _ := ParsePermissionKey(d.key)
			out = append(out, &Permission{
				Key:          d.key,
				Resource:     resource,
				Action:       action,
				Description:  d.description,
				Space:        set.space,
				MenuOverride: d.menu,
			})
		}
	}
	return out
}

// BuiltinModules returns the seeded navigation modules. Their action keys
// cover the actions of the permissions filed under each menu.
func BuiltinModules() []*Module {
	return []*Module{
		{MenuKey: "tenants", Name: "Tenants", Path: "/admin/tenants", Icon: "building", Space: SpaceSystem, AllowedActions: []string{"read", "create", "update", "suspend"}, SortOrder: 10},
		{MenuKey: "system-roles", Name: "Roles", Path: "/admin/roles", Icon: "shield", Space: SpaceSystem, AllowedActions: []string{"read", "write", "grant"}, SortOrder: 20},
		{MenuKey: "system-users", Name: "Operators", Path: "/admin/users", Icon: "users", Space: SpaceSystem, AllowedActions: []string{"read", "create", "update"}, SortOrder: 30},
		{MenuKey: "audit", Name: "Audit Trail", Path: "/admin/audit", Icon: "history", Space: SpaceSystem, AllowedActions: []string{"read"}, SortOrder: 40},
		{MenuKey: "settings", Name: "Settings", Path: "/admin/settings", Icon: "settings", Space: SpaceSystem, AllowedActions: []string{"read", "update"}, SortOrder: 50},
		{MenuKey: "users", Name: "Users", Path: "/users", Icon: "users", Space: SpaceTenant, AllowedActions: []string{"read", "create", "update", "delete"}, SortOrder: 10},
		{MenuKey: "roles", Name: "Roles", Path: "/roles", Icon: "shield", Space: SpaceTenant, AllowedActions: []string{"read", "write", "grant"}, SortOrder: 20},
		{MenuKey: "loans", Name: "Loans", Path: "/loans", Icon: "wallet", Space: SpaceTenant, AllowedActions: []string{"read", "create", "update", "approve"}, SortOrder: 30},
		{MenuKey: "billing", Name: "Billing", Path: "/billing", Icon: "receipt", Space: SpaceTenant, AllowedActions: []string{"read", "create", "approve"}, SortOrder: 40},
		{MenuKey: "reports", Name: "Reports", Path: "/reports", Icon: "chart", Space: SpaceTenant, AllowedActions: []string{"read"}, SortOrder: 50},
	}
}

// TenantAdminPermissions defines permissions for the built-in tenant administrator.
var TenantAdminPermissions = []string{
	PermUsersRead, PermUsersCreate, PermUsersUpdate, PermUsersDelete,
	PermRolesRead, PermRolesWrite, PermRolesGrant,
	PermLoansRead, PermLoansCreate, PermLoansUpdate, PermLoansApprove,
	PermBillingRead, PermBillingCreate, PermBillingApprove,
	PermReportsRead,
}

// TenantMemberPermissions defines permissions for the built-in member role.
var TenantMemberPermissions = []string{
	PermLoansRead, PermBillingRead, PermReportsRead,
}

// SystemAdminPermissions defines permissions for the system administrator.
func SystemAdminPermissions() []string {
	keys := make([]string, 0, len(systemPermissions))
	for _, d := range systemPermissions {
		keys = append(keys, d.key)
	}
	return keys
}
