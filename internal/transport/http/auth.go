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
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lendcore/lendcore/internal/authz"
	"github.com/lendcore/lendcore/internal/observability/logger"
)

// PrincipalClaims are the bearer token claims this service reads. A missing
// or null tenant_id makes the caller a system principal.
type PrincipalClaims struct {
	TenantID *string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 bearer tokens minted by the identity provider.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier creates a verifier. Empty issuer or audience are not checked.
func NewTokenVerifier(secret, issuer, audience string) *TokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &TokenVerifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// Verify parses raw and returns the principal it names.
func (v *TokenVerifier) Verify(raw string) (authz.Principal, error) {
	var claims PrincipalClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return authz.Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return authz.Principal{}, errors.New("invalid token: missing subject")
	}
	if claims.TenantID != nil && *claims.TenantID == "" {
		return authz.Principal{}, errors.New("invalid token: empty tenant_id")
	}
	return authz.Principal{UserID: claims.Subject, TenantID: claims.TenantID}, nil
}

// AuthMiddleware validates the bearer token and adds the principal to context
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Tenant context MUST be derived exclusively from the verified token.
		if r.Header.Get("X-Tenant-ID") != "" {
			slog.WarnContext(r.Context(), "tenant header spoofing attempt detected on authenticated route",
				logger.RemoteAddr(r.RemoteAddr),
				logger.Path(r.URL.Path),
			)
			respondError(w, http.StatusBadRequest, "X-Tenant-ID header is not allowed; tenant is derived from the access token")
			return
		}

		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		p, err := h.verifier.Verify(raw)
		if err != nil {
			slog.InfoContext(r.Context(), "rejected bearer token", logger.Error(err))
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}
