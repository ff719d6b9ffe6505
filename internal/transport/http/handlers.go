// @title LendCore Access Control API
// @version 1.0.0
// @description Multi-tenant role and permission management for the LendCore platform

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/swaggo/swag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lendcore/lendcore/internal/authz"
	"github.com/lendcore/lendcore/internal/observability/logger"
	"github.com/lendcore/lendcore/internal/tenant"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	svc       *authz.Service
	tenants   *tenant.Service
	verifier  *TokenVerifier
	validate  *validator.Validate
	health    Pinger
	clientIPs *ClientIPResolver
}

// NewHandler creates a new HTTP handler. health may be nil; a nil clientIPs
// trusts no forwarding proxy.
func NewHandler(svc *authz.Service, tenants *tenant.Service, verifier *TokenVerifier, health Pinger, clientIPs *ClientIPResolver) *Handler {
	return &Handler{
		svc:       svc,
		tenants:   tenants,
		verifier:  verifier,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		health:    health,
		clientIPs: clientIPs,
	}
}

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	Production     bool
	RequestTimeout time.Duration
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, opts RouterOptions) *chi.Mux {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter, h.clientIPs))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(SecurityHeaders(opts.Production))

	r.Get("/health", h.HealthCheck)
	r.Get("/swagger/doc.json", h.SwaggerDoc)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		// Self-service
		r.Get("/me/permissions", h.GetMyPermissions)
		r.Post("/access/check", h.CheckAccess)

		// Catalog
		r.Get("/permissions", h.ListPermissions)
		r.Get("/modules", h.ListModules)

		// Roles
		r.Route("/roles", func(r chi.Router) {
			r.With(h.RequireSpacePermission(authz.PermSystemRolesRead, authz.PermRolesRead)).Get("/", h.ListRoles)
			r.With(h.RequireSpacePermission(authz.PermSystemRolesWrite, authz.PermRolesWrite)).Post("/", h.CreateRole)

			r.Route("/{roleID}", func(r chi.Router) {
				r.With(h.RequireSpacePermission(authz.PermSystemRolesRead, authz.PermRolesRead)).Get("/", h.GetRole)

				r.Group(func(r chi.Router) {
					r.Use(h.RequireSpacePermission(authz.PermSystemRolesWrite, authz.PermRolesWrite))
					r.Patch("/", h.UpdateRole)
					r.Delete("/", h.DeleteRole)
				})

				r.Group(func(r chi.Router) {
					r.Use(h.RequireSpacePermission(authz.PermSystemRolesGrant, authz.PermRolesGrant))
					r.Put("/permissions", h.ReplaceRolePermissions)
					r.Post("/permissions/{key}", h.GrantRolePermission)
					r.Delete("/permissions/{key}", h.RevokeRolePermission)
				})
			})
		})

		// Tenants (system principals only)
		r.Route("/tenants", func(r chi.Router) {
			r.With(h.RequireSpacePermission(authz.PermTenantsCreate, "")).Post("/", h.CreateTenant)
			r.With(h.RequireSpacePermission(authz.PermTenantsRead, "")).Get("/{tenantID}", h.GetTenant)
			r.With(h.RequireSpacePermission(authz.PermTenantsSuspend, "")).Put("/{tenantID}/status", h.SetTenantStatus)
		})

		// Assignments and delegations
		r.Group(func(r chi.Router) {
			r.Use(h.RequireSpacePermission(authz.PermSystemRolesGrant, authz.PermRolesGrant))
			r.Put("/users/{userID}/roles/{roleID}", h.AssignRole)
			r.Delete("/users/{userID}/roles/{roleID}", h.UnassignRole)
			r.Get("/users/{userID}/delegations", h.ListDelegations)
			r.Post("/delegations", h.CreateDelegation)
			r.Delete("/delegations/{delegationID}", h.RevokeDelegation)
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service and its database are reachable
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			slog.ErrorContext(r.Context(), "health check failed", logger.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "lendcore",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "lendcore",
	})
}

// SwaggerDoc serves the registered OpenAPI document.
func (h *Handler) SwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		respondError(w, http.StatusNotFound, "api documentation is not registered")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// principal returns the caller or writes a 401.
func principal(w http.ResponseWriter, r *http.Request) (authz.Principal, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "not authenticated")
	}
	return p, ok
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make(map[string]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields[fe.Field()] = fe.Tag()
			}
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": fields,
			})
			return false
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// pageParams reads ?page= and ?per_page=. Bad values fall back to defaults.
func pageParams(r *http.Request) authz.PageParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return authz.PageParams{Page: page, PerPage: perPage}
}

// writeAuthzError maps a domain error kind to an HTTP status.
func writeAuthzError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch authz.KindOf(err) {
	case authz.ErrNotFound:
		status = http.StatusNotFound
	case authz.ErrInvalidRoleSpace:
		status = http.StatusUnprocessableEntity
	case authz.ErrPermissionDenied, authz.ErrSecurityViolation:
		status = http.StatusForbidden
	case authz.ErrInvalidArgument:
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "authorization request failed",
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, errorMessage(err))
}

func errorMessage(err error) string {
	var typed *authz.Error
	if errors.As(err, &typed) {
		return typed.Message
	}
	return err.Error()
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
