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
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lendcore/lendcore/internal/authz"
)

// AssignRoleRequest optionally bounds an assignment in time.
type AssignRoleRequest struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateDelegationRequest hands a held role to another user for a while.
type CreateDelegationRequest struct {
	FromUserID string    `json:"from_user_id" validate:"required"`
	ToUserID   string    `json:"to_user_id" validate:"required,nefield=FromUserID"`
	RoleID     string    `json:"role_id" validate:"required"`
	ExpiresAt  time.Time `json:"expires_at" validate:"required"`
}

// DelegationResponse is the wire form of a delegation.
type DelegationResponse struct {
	ID         string     `json:"id"`
	FromUserID string     `json:"from_user_id"`
	ToUserID   string     `json:"to_user_id"`
	RoleID     string     `json:"role_id"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toDelegationResponse(d *authz.Delegation) DelegationResponse {
	return DelegationResponse{
		ID:         d.ID,
		FromUserID: d.FromUserID,
		ToUserID:   d.ToUserID,
		RoleID:     d.RoleID,
		ExpiresAt:  d.ExpiresAt,
		RevokedAt:  d.RevokedAt,
		CreatedBy:  d.CreatedBy,
		CreatedAt:  d.CreatedAt,
	}
}

// AssignRole handles assigning a role to a user
// @Summary Assign Role
// @Description Link a user to a role of the same space and tenant. Re-assigning refreshes an expired link.
// @Tags Assignments
// @Accept json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Param roleID path string true "Role ID"
// @Param request body AssignRoleRequest false "Expiry"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /users/{userID}/roles/{roleID} [put]
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	// The body is optional.
	var req AssignRoleRequest
	if r.ContentLength != 0 {
		if !h.decodeAndValidate(w, r, &req) {
			return
		}
	}

	err := h.svc.Engine.AssignRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID"), p,
		authz.AssignOptions{ExpiresAt: req.ExpiresAt})
	if err != nil {
		writeAuthzError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnassignRole handles removing a role from a user
// @Summary Unassign Role
// @Tags Assignments
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Param roleID path string true "Role ID"
// @Success 204
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /users/{userID}/roles/{roleID} [delete]
func (h *Handler) UnassignRole(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.svc.Engine.UnassignRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID"), p); err != nil {
		writeAuthzError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateDelegation handles delegating a role
// @Summary Delegate Role
// @Description Temporarily hand a role held through an assignment to another user
// @Tags Delegations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateDelegationRequest true "Delegation"
// @Success 201 {object} DelegationResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /delegations [post]
func (h *Handler) CreateDelegation(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CreateDelegationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	d, err := h.svc.Delegations.Delegate(r.Context(), p, authz.DelegationInput{
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		RoleID:     req.RoleID,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		writeAuthzError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, toDelegationResponse(d))
}

// RevokeDelegation handles ending a delegation early
// @Summary Revoke Delegation
// @Tags Delegations
// @Security BearerAuth
// @Param delegationID path string true "Delegation ID"
// @Success 204
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /delegations/{delegationID} [delete]
func (h *Handler) RevokeDelegation(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delegations.RevokeDelegation(r.Context(), p, chi.URLParam(r, "delegationID")); err != nil {
		writeAuthzError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListDelegations handles listing a user's delegations
// @Summary List Delegations
// @Description Delegations given or received by a user
// @Tags Delegations
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Success 200 {array} DelegationResponse
// @Failure 404 {object} map[string]string
// @Router /users/{userID}/delegations [get]
func (h *Handler) ListDelegations(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	delegations, err := h.svc.Delegations.ListDelegations(r.Context(), p, chi.URLParam(r, "userID"))
	if err != nil {
		writeAuthzError(w, r, err)
		return
	}

	out := make([]DelegationResponse, 0, len(delegations))
	for _, d := range delegations {
		out = append(out, toDelegationResponse(d))
	}
	respondJSON(w, http.StatusOK, out)
}

