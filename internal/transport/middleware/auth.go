package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	internal "github.com/pulseawards/vote-payments/internal"
)

type permissionsKey struct{}

// AdminClaims is the token shape issued by the awards platform's identity
// service. This subsystem only verifies; it never issues tokens.
type AdminClaims struct {
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// PermissionsFromContext returns the permissions the auth middleware
// extracted from the admin token.
func PermissionsFromContext(ctx context.Context) []string {
	if perms, ok := ctx.Value(permissionsKey{}).([]string); ok {
		return perms
	}
	return nil
}

// AdminAuth verifies the Bearer token with the shared HMAC secret and puts
// the subject and permissions into the request context.
func AdminAuth(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			claims := &AdminClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				logger.Warn("admin token rejected", "error", err, "remote_addr", r.RemoteAddr)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := internal.ContextWithSubject(r.Context(), claims.Subject)
			ctx = context.WithValue(ctx, permissionsKey{}, claims.Permissions)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermissions allows the request through when the token carries any of
// the named permissions. Must run after AdminAuth.
func RequirePermissions(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			granted := PermissionsFromContext(r.Context())
			if len(granted) == 0 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			hasPermission := false
			for _, requiredPerm := range permissions {
				for _, userPerm := range granted {
					if userPerm == requiredPerm {
						hasPermission = true
						break
					}
				}
				if hasPermission {
					break
				}
			}

			if !hasPermission {
				slog.Warn("access denied: token lacks required permissions",
					"subject", internal.SubjectFromContext(r.Context()),
					"required_permissions", permissions,
					"granted_permissions", granted)
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
