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
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lendcore/lendcore/internal/observability/logger"
	"github.com/lendcore/lendcore/internal/tenant"
)

// CreateTenantRequest provisions a tenant
type CreateTenantRequest struct {
	ID   string `json:"id" validate:"required,max=63" example:"acme"`
	Name string `json:"name" validate:"required,max=200" example:"Acme Lending"`
}

// SetTenantStatusRequest suspends or reactivates a tenant
type SetTenantStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive" example:"inactive"`
}

// CreateTenant handles tenant provisioning
// @Summary Create Tenant
// @Description Create a tenant and its default roles (system principals only)
// @Tags Tenants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateTenantRequest true "Tenant"
// @Success 201 {object} tenant.Tenant
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /tenants [post]
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CreateTenantRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	t, err := h.tenants.Provision(r.Context(), req.ID, req.Name, p.UserID)
	if err != nil {
		writeTenantError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, t)
}

// GetTenant handles fetching a tenant
// @Summary Get Tenant
// @Tags Tenants
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} tenant.Tenant
// @Failure 404 {object} map[string]string
// @Router /tenants/{tenantID} [get]
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.GetTenant(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeTenantError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, t)
}

// SetTenantStatus handles suspending and reactivating a tenant
// @Summary Set Tenant Status
// @Tags Tenants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Tenant ID"
// @Param request body SetTenantStatusRequest true "Status"
// @Success 200 {object} tenant.Tenant
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /tenants/{tenantID}/status [put]
func (h *Handler) SetTenantStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req SetTenantStatusRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	t, err := h.tenants.SetStatus(r.Context(), chi.URLParam(r, "tenantID"), req.Status, p.UserID)
	if err != nil {
		writeTenantError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, t)
}

func writeTenantError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		respondError(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, tenant.ErrTenantExists):
		respondError(w, http.StatusConflict, "tenant already exists")
	case errors.Is(err, tenant.ErrInvalidTenant):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "tenant request failed", logger.Path(r.URL.Path), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
