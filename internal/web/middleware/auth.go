package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jefferyharrell/tagline-roster/internal/config"
	"github.com/jefferyharrell/tagline-roster/internal/roster"
)

// SessionClaims are the JWT claims issued by the main application's
// magic-link sign-in. This service only verifies them.
type SessionClaims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// IsAdministrator reports whether the session holds the protected role.
func (c *SessionClaims) IsAdministrator() bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, roster.AdministratorRole) {
			return true
		}
	}
	return false
}

type claimsKey struct{}

// ClaimsFromContext returns the verified session claims, or nil when auth
// is disabled or the request was never authenticated.
func ClaimsFromContext(ctx context.Context) *SessionClaims {
	claims, _ := ctx.Value(claimsKey{}).(*SessionClaims)
	return claims
}

// ActorFromContext returns the authenticated email for audit records, or
// "anonymous" when auth is disabled.
func ActorFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil && claims.Email != "" {
		return claims.Email
	}
	return "anonymous"
}

// AdminAuth returns middleware that validates the Authorization bearer
// token and requires the administrator role. If cfg.Required is false,
// all requests pass through unauthenticated.
func AdminAuth(cfg *config.AuthConfig) func(http.Handler) http.Handler {
	secret := []byte(cfg.JWTSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip validation if auth is disabled
			if !cfg.Required {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				slog.Warn("auth: missing bearer token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				denyJSON(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifyToken(token, secret)
			if err != nil {
				slog.Warn("auth: invalid token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				denyJSON(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if !claims.IsAdministrator() {
				slog.Warn("auth: administrator role required",
					"path", r.URL.Path,
					"email", claims.Email,
				)
				denyJSON(w, http.StatusForbidden, "administrator role required")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// denyJSON rejects the request with the same {"detail": ...} shape the API
// uses for every other error.
func denyJSON(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// IssueToken creates a signed session token. Exists mainly for tests and
// local tooling; production tokens come from the main application.
func IssueToken(secret []byte, email string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		Email: email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "tagline",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

func verifyToken(tokenString string, secret []byte) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}
	return claims, nil
}
