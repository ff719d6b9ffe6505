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

package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lendcore/lendcore/internal/authz"
)

// RoleResponse is the wire form of a role.
type RoleResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Space       authz.Space     `json:"space" example:"tenant"`
	TenantID    *string         `json:"tenant_id,omitempty"`
	Status      string          `json:"status" example:"active"`
	Constraints json.RawMessage `json:"constraints,omitempty" swaggertype:"object"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toRoleResponse(role *authz.Role) RoleResponse {
	return RoleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		Space:       role.Space(),
		TenantID:    role.Scope.TenantRef(),
		Status:      string(role.Status),
		Constraints: role.Constraints,
		CreatedBy:   role.CreatedBy,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

// RoleListResponse is one page of roles.
type RoleListResponse struct {
	Items      []RoleResponse `json:"items"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// CreateRoleRequest creates a role in the caller's space. Space defaults to
// the caller's own.
type CreateRoleRequest struct {
	Name        string          `json:"name" validate:"required,max=100" example:"Loan Officer"`
	Description string          `json:"description" validate:"max=500" example:"Originates and edits loans"`
	Space       string          `json:"space" validate:"omitempty,oneof=system tenant" example:"tenant"`
	Constraints json.RawMessage `json:"constraints,omitempty" swaggertype:"object"`
}

// UpdateRoleRequest patches a role. Omitted fields are left untouched.
type UpdateRoleRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string          `json:"description" validate:"omitempty,max=500"`
	Status      *string          `json:"status" validate:"omitempty,oneof=active disabled"`
	Space       *string          `json:"space"`
	Constraints *json.RawMessage `json:"constraints" swaggertype:"object"`
}

// ReplacePermissionsRequest is the full set of keys a role should hold.
type ReplacePermissionsRequest struct {
	Keys []string `json:"keys" validate:"required,dive,required" example:"loans:read,loans:create"`
}

// ListRoles handles listing the roles visible to the caller
// @Summary List Roles
// @Description Page through system roles and the caller's tenant roles
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param per_page query int false "Page size (max 100)"
// @Success 200 {object} RoleListResponse
// @Failure 403 {object} map[string]string
// @Router /roles [get]
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	page, err := h.svc.Registry.ListRoles(r.Context(), p, pageParams(r))
	if err != nil {
		writeAuthzError(w, r, err)
		return
	}

	items := make([]RoleResponse, 0, len(page.Items))
	for _, role := range page.Items {
		items = append(items, toRoleResponse(role))
	}
	respondJSON(w, http.StatusOK, RoleListResponse{
		Items:      items,
		Page:       page.Page,
		PerPage:    page.PerPage,
		Total:      page.Total,
		TotalPages: page.TotalPages,
	})
}

// CreateRole handles role creation
// @Summary Create Role
// @Description Create a role in the caller's space
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRoleRequest true "Role"
// @Success 201 {object} RoleResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /roles [post]
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CreateRoleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	space := p.Space()
	if req.Space != "" {
		space = authz.Space(req.Space)
	}
	var tenantID *string
	if space == authz.SpaceTenant {
		tenantID = p.TenantID
	}

	role, err := h.svc.Registry.CreateRole(r.Context(), p, authz.RoleInput{
		Name:        req.Name,
		Description: req.Description,
		Space:       space,
		TenantID:    tenantID,
		Constraints: req.Constraints,
	})
	if err != nil {
		writeAuthzError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, toRoleResponse(role))
}

// GetRole handles fetching one role
// @Summary Get Role
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param roleID path string true "Role ID"
// @Success 200 {object} RoleResponse
// @Failure 404 {object} map[string]string
// @Router /roles/{roleID} [get]
func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	role, err := h.svc.Registry.GetRole(r.Context(), chi.URLParam(r, "roleID"), p)
	if err != nil {
		writeAuthzError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toRoleResponse(role))
}

// UpdateRole handles role updates
// @Summary Update Role
// @Description Rename, describe, disable or re-constrain a role. The space is immutable.
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param roleID path string true "Role ID"
// @Param request body UpdateRoleRequest true "Changes"
// @Success 200 {object} RoleResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /roles/{roleID} [patch]
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	patch := authz.RolePatch{
		Name:        req.Name,
		Description: req.Description,
		Constraints: req.Constraints,
	}
	if req.Status != nil {
		status := authz.RoleStatus(*req.Status)
		patch.Status = &status
	}
	if req.Space != nil {
		space := authz.Space(*req.Space)
		patch.Space = &space
	}

	role, err := h.svc.Registry.UpdateRole(r.Context(), chi.URLParam(r, "roleID"), patch, p)
	if err != nil {
		writeAuthzError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toRoleResponse(role))
}

// DeleteRole handles role deletion
// @Summary Delete Role
// @Description Soft-delete a role. Its grants stop taking effect immediately.
// @Tags Roles
// @Security BearerAuth
// @Param roleID path string true "Role ID"
// @Success 204
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /roles/{roleID} [delete]
func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.svc.Registry.DeleteRole(r.Context(), chi.URLParam(r, "roleID"), p); err != nil {
		writeAuthzError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReplaceRolePermissions handles the bulk permission replace
// @Summary Replace Role Permissions
// @Description Atomically replace every permission of a role. Unknown keys are reported, not granted.
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param roleID path string true "Role ID"
// @Param request body ReplacePermissionsRequest true "Keys"
// @Success 200 {object} authz.BulkResult
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /roles/{roleID}/permissions [put]
func (h *Handler) ReplaceRolePermissions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req ReplacePermissionsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.svc.Engine.BulkReplacePermissions(r.Context(), chi.URLParam(r, "roleID"), req.Keys, p)
	if err != nil {
		writeAuthzError(w, r, err)
		return
	}
	if result.NotFoundKeys == nil {
		result.NotFoundKeys = []string{}
	}

	respondJSON(w, http.StatusOK, result)
}

// GrantRolePermission handles granting one permission
// @Summary Grant Permission
// @Tags Roles
// @Security BearerAuth
// @Param roleID path string true "Role ID"
// @Param key path string true "Permission key (resource:action)"
// @Success 204
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /roles/{roleID}/permissions/{key} [post]
func (h *Handler) GrantRolePermission(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	err := h.svc.Engine.GrantPermission(r.Context(), chi.URLParam(r, "roleID"), chi.URLParam(r, "key"), p)
	if err != nil {
		writeAuthzError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeRolePermission handles revoking one permission
// @Summary Revoke Permission
// @Tags Roles
// @Security BearerAuth
// @Param roleID path string true "Role ID"
// @Param key path string true "Permission key (resource:action)"
// @Success 204
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /roles/{roleID}/permissions/{key} [delete]
func (h *Handler) RevokeRolePermission(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	err := h.svc.Engine.RevokePermission(r.Context(), chi.URLParam(r, "roleID"), chi.URLParam(r, "key"), p)
	if err != nil {
		writeAuthzError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
