// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/custodia/internal/authz"
	"github.com/tomtom215/custodia/internal/config"
	"github.com/tomtom215/custodia/internal/logging"
	"github.com/tomtom215/custodia/internal/models"
)

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	Username string
	Role     string
}

type identityKey struct{}

// IdentityFrom extracts the caller identity from the request context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Authenticator resolves request credentials into an Identity and gates
// endpoints on role permissions. Three credential paths:
//
//   - AUTH_MODE=none: every request is an anonymous admin (single-operator
//     deployments behind a private network)
//   - X-Admin-Key header matching ADMIN_API_KEY: admin (the runner binary
//     and scripting use this)
//   - Authorization: Bearer <jwt>: role comes from the token claims
type Authenticator struct {
	mode     string
	jwt      *JWTManager
	adminKey string
	enforcer *authz.Enforcer
}

// NewAuthenticator wires the authenticator from security configuration.
// In jwt mode the JWT manager is required; the admin key path works in
// every mode when ADMIN_API_KEY is set.
func NewAuthenticator(cfg *config.SecurityConfig, enforcer *authz.Enforcer) (*Authenticator, error) {
	a := &Authenticator{
		mode:     strings.ToLower(cfg.AuthMode),
		adminKey: cfg.AdminAPIKey,
		enforcer: enforcer,
	}
	if a.mode == "" {
		a.mode = "none"
	}
	if a.mode == "jwt" {
		manager, err := NewJWTManager(cfg)
		if err != nil {
			return nil, err
		}
		a.jwt = manager
	}
	return a, nil
}

// Authenticate resolves the caller identity or rejects with 401. It runs on
// every /automation route; per-endpoint permissions are layered on with
// Require.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := a.resolve(r)
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "missing or invalid credentials")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) resolve(r *http.Request) (Identity, bool) {
	// The admin key always wins when configured, regardless of mode.
	if key := r.Header.Get("X-Admin-Key"); key != "" && a.adminKey != "" {
		if subtle.ConstantTimeCompare([]byte(key), []byte(a.adminKey)) == 1 {
			return Identity{Username: "admin-key", Role: authz.RoleAdmin}, true
		}
		logging.Warn().Str("remote", r.RemoteAddr).Msg("Rejected request with wrong admin key")
		return Identity{}, false
	}

	if a.mode == "none" {
		return Identity{Username: "anonymous", Role: authz.RoleAdmin}, true
	}

	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return Identity{}, false
	}
	claims, err := a.jwt.ValidateToken(token)
	if err != nil {
		logging.Debug().Err(err).Msg("Bearer token rejected")
		return Identity{}, false
	}
	role := claims.Role
	if !authz.ValidRole(role) {
		role = authz.RoleViewer
	}
	return Identity{Username: claims.Username, Role: role}, true
}

// Require gates an endpoint on one permission. It must run after
// Authenticate; a missing identity is a programming error and is treated as
// unauthorized.
func (a *Authenticator) Require(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFrom(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "missing or invalid credentials")
				return
			}
			allowed, err := a.enforcer.Enforce(identity.Role, object, action)
			if err != nil {
				writeAuthError(w, http.StatusInternalServerError, "AUTHORIZATION_ERROR", "authorization check failed")
				return
			}
			if !allowed {
				writeAuthError(w, http.StatusForbidden, "AUTHORIZATION_ERROR", "role "+identity.Role+" may not "+action+" "+object)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIResponse{ //nolint:errcheck // Client gone
		Status: "error",
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}
