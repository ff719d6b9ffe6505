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
	"net/http"

	"github.com/lendcore/lendcore/internal/authz"
)

// CheckAccessRequest asks whether the caller may use one menu action. The
// request's client address and RecordCount feed role constraints.
type CheckAccessRequest struct {
	MenuKey     string `json:"menu_key" validate:"required" example:"loans"`
	ActionKey   string `json:"action_key" validate:"required" example:"approve"`
	RecordCount int    `json:"record_count" validate:"gte=0"`
}

// PermissionResponse is the wire form of a catalog entry.
type PermissionResponse struct {
	Key         string      `json:"key" example:"loans:read"`
	Description string      `json:"description,omitempty"`
	Space       authz.Space `json:"space"`
	MenuKey     string      `json:"menu_key"`
	ActionKey   string      `json:"action_key"`
}

// ModuleResponse is the wire form of a navigable module.
type ModuleResponse struct {
	MenuKey        string      `json:"menu_key"`
	Name           string      `json:"name"`
	Path           string      `json:"path,omitempty"`
	Icon           string      `json:"icon,omitempty"`
	Space          authz.Space `json:"space"`
	AllowedActions []string    `json:"allowed_actions"`
	SortOrder      int         `json:"sort_order"`
	Status         string      `json:"status"`
}

// GetMyPermissions handles listing the caller's effective permissions
// @Summary My Permissions
// @Description Effective permission keys and the menu to actions map of the caller
// @Tags Access
// @Produce json
// @Security BearerAuth
// @Success 200 {object} authz.UserPermissions
// @Failure 500 {object} map[string]string
// @Router /me/permissions [get]
func (h *Handler) GetMyPermissions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	perms, err := h.svc.Evaluator.GetUserPermissions(r.Context(), p.UserID)
	if err != nil {
		writeAuthzError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, perms)
}

// CheckAccess handles a constrained access check for the caller
// @Summary Check Access
// @Description Evaluate one menu action, including time window, network and record limits
// @Tags Access
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CheckAccessRequest true "Check"
// @Success 200 {object} authz.Decision
// @Failure 400 {object} map[string]string
// @Router /access/check [post]
func (h *Handler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CheckAccessRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	// An unresolvable address stays invalid and fails any network constraint.
	decision := h.svc.Evaluator.CheckWithConstraints(r.Context(), p.UserID, req.MenuKey, req.ActionKey, authz.CheckContext{
		IP:          h.clientIPs.ClientIP(r),
		RecordCount: req.RecordCount,
	})

	respondJSON(w, http.StatusOK, decision)
}

// ListPermissions handles listing the permission catalog
// @Summary List Permissions
// @Description Catalog entries of the caller's space. System callers may pass ?space=.
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Param space query string false "system or tenant"
// @Success 200 {array} PermissionResponse
// @Failure 422 {object} map[string]string
// @Router /permissions [get]
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	perms, err := h.svc.Catalog.ListPermissions(r.Context(), catalogSpace(r, p))
	if err != nil {
		writeAuthzError(w, r, err)
		return
	}

	out := make([]PermissionResponse, 0, len(perms))
	for _, perm := range perms {
		out = append(out, PermissionResponse{
			Key:         perm.Key,
			Description: perm.Description,
			Space:       perm.Space,
			MenuKey:     perm.MenuKey(),
			ActionKey:   perm.ActionKey(),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// ListModules handles listing navigable modules
// @Summary List Modules
// @Description Modules of the caller's space in menu order. System callers may pass ?space=.
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Param space query string false "system or tenant"
// @Success 200 {array} ModuleResponse
// @Failure 422 {object} map[string]string
// @Router /modules [get]
func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	modules, err := h.svc.Catalog.ListModules(r.Context(), catalogSpace(r, p))
	if err != nil {
		writeAuthzError(w, r, err)
		return
	}

	out := make([]ModuleResponse, 0, len(modules))
	for _, m := range modules {
		out = append(out, ModuleResponse{
			MenuKey:        m.MenuKey,
			Name:           m.Name,
			Path:           m.Path,
			Icon:           m.Icon,
			Space:          m.Space,
			AllowedActions: m.AllowedActions,
			SortOrder:      m.SortOrder,
			Status:         string(m.Status),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// catalogSpace picks the listing filter. Tenant principals only ever see the
// tenant catalog.
func catalogSpace(r *http.Request, p authz.Principal) *authz.Space {
	space := p.Space()
	if space == authz.SpaceSystem {
		if q := r.URL.Query().Get("space"); q != "" {
			space = authz.Space(q)
		}
	}
	return &space
}
