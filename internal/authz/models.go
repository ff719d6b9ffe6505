package authz

import (
	"encoding/json"
	"strings"
	"time"
)

// RoleStatus is the lifecycle state of a role.
type RoleStatus string

const (
	RoleStatusActive   RoleStatus = "active"
	RoleStatusDisabled RoleStatus = "disabled"
	RoleStatusDeleted  RoleStatus = "deleted"
)

// Valid reports whether the status is known.
func (s RoleStatus) Valid() bool {
	return s == RoleStatusActive || s == RoleStatusDisabled || s == RoleStatusDeleted
}

// Role is a named bundle of permissions bound to one scope for its whole life.
type Role struct {
	ID          string
	Name        string
	Description string
	Scope       Scope
	Status      RoleStatus
	Constraints json.RawMessage // optional, see Constraints
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Space returns the role's space.
func (r *Role) Space() Space { return r.Scope.Space() }

// IsActive reports whether the role takes part in authorization decisions.
func (r *Role) IsActive() bool { return r.Status == RoleStatusActive }

// Permission is a single grantable capability.
//
// The flat key (resource:action) is canonical. The module/menu view is derived
// from it: the menu key is the resource unless MenuOverride names another menu,
// and the action key is always the action.
type Permission struct {
	ID           string
	Key          string
	Resource     string
	Action       string
	Description  string
	Space        Space
	MenuOverride string
	CreatedAt    time.Time
}

// MenuKey returns the menu this permission belongs to.
func (p *Permission) MenuKey() string {
	if p.MenuOverride != "" {
		return p.MenuOverride
	}
	return p.Resource
}

// ActionKey returns the menu action this permission unlocks.
func (p *Permission) ActionKey() string { return p.Action }

// PermissionKey builds the canonical resource:action key.
func PermissionKey(resource, action string) string {
	return resource + ":" + action
}

// ParsePermissionKey splits and validates a resource:action key.
func ParsePermissionKey(key string) (resource, action string, err error) {
	resource, action, ok := strings.Cut(key, ":")
	if !ok || resource == "" || action == "" || strings.Contains(action, ":") {
		return "", "", invalidArgument("malformed permission key %q", key)
	}
	if strings.TrimSpace(resource) != resource || strings.TrimSpace(action) != action {
		return "", "", invalidArgument("malformed permission key %q", key)
	}
	return resource, action, nil
}

// ModuleStatus is the lifecycle state of a module.
type ModuleStatus string

const (
	ModuleStatusActive   ModuleStatus = "active"
	ModuleStatusDisabled ModuleStatus = "disabled"
)

// Module is a navigable menu entry and the actions it supports.
type Module struct {
	ID             string
	MenuKey        string
	Name           string
	Path           string
	Icon           string
	Space          Space
	AllowedActions []string
	SortOrder      int
	Status         ModuleStatus
}

// AllowsAction reports whether action is one of the module's action keys.
func (m *Module) AllowsAction(action string) bool {
	for _, a := range m.AllowedActions {
		if a == action {
			return true
		}
	}
	return false
}

// Assignment is a user-role link. A link past ExpiresAt no longer grants
// anything but stays stored until it is unassigned or purged.
type Assignment struct {
	UserID    string
	RoleID    string
	GrantedBy string
	GrantedAt time.Time
	ExpiresAt *time.Time
}

// ActiveAt reports whether the link grants its role at t.
func (a *Assignment) ActiveAt(t time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(t)
}

// Delegation is a time-boxed, revocable hand-over of a role's permissions
// from one user to another.
type Delegation struct {
	ID         string
	FromUserID string
	ToUserID   string
	RoleID     string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	CreatedBy  string
	CreatedAt  time.Time
}

// ActiveAt reports whether the delegation grants its role at t.
func (d *Delegation) ActiveAt(t time.Time) bool {
	return d.RevokedAt == nil && d.ExpiresAt.After(t)
}

// GrantSource tells where a resolved grant came from.
type GrantSource string

const (
	SourceAssignment GrantSource = "assignment"
	SourceDelegation GrantSource = "delegation"
)

// Grant is one permission reachable by a user through one role. It is the unit
// every evaluator decision is computed from. MenuDisabled hides the grant from
// the menu view only; the flat key still applies.
type Grant struct {
	RoleID       string          `json:"role_id"`
	RoleName     string          `json:"role_name"`
	Space        Space           `json:"space"`
	Key          string          `json:"key"`
	MenuKey      string          `json:"menu_key"`
	ActionKey    string          `json:"action_key"`
	Constraints  json.RawMessage `json:"constraints,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	Source       GrantSource     `json:"source"`
	MenuDisabled bool            `json:"menu_disabled,omitempty"`
}

// UserPermissions is what a user may do, in both representations.
type UserPermissions struct {
	Keys  []string            `json:"keys"`
	Menus map[string][]string `json:"menus"`
}

// PageParams selects a page of a listing.
type PageParams struct {
	Page    int
	PerPage int
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func (p PageParams) normalize() PageParams {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = defaultPerPage
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

// Offset returns the number of rows to skip.
func (p PageParams) Offset() int {
	p = p.normalize()
	return (p.Page - 1) * p.PerPage
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

func newPage[T any](items []T, params PageParams, total int) Page[T] {
	params = params.normalize()
	pages := 0
	if total > 0 {
		pages = (total + params.PerPage - 1) / params.PerPage
	}
	return Page[T]{Items: items, Page: params.Page, PerPage: params.PerPage, Total: total, TotalPages: pages}
}

// RoleInput describes a role to create.
type RoleInput struct {
	Name        string
	Description string
	Space       Space
	TenantID    *string
	Constraints json.RawMessage
}

// RolePatch changes mutable role attributes. Nil fields are left untouched.
// Space is accepted only so that attempts to move a role can be rejected.
type RolePatch struct {
	Name        *string
	Description *string
	Status      *RoleStatus
	Constraints *json.RawMessage
	Space       *Space
}

// BulkResult reports the outcome of a bulk permission replace.
type BulkResult struct {
	GrantedCount int      `json:"granted_count"`
	NotFoundKeys []string `json:"not_found_keys"`
}

// AssignOptions tunes a role assignment.
type AssignOptions struct {
	ExpiresAt *time.Time
}

// DelegationInput describes a delegation to create.
type DelegationInput struct {
	FromUserID string
	ToUserID   string
	RoleID     string
	ExpiresAt  time.Time
}
