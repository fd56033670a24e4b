package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/vitalpath/pulseboard/internal/auth"
)

// adminRoleKey is the context key for the authenticated admin's role.
type adminRoleKey struct{}

// SetAdminRole stores the authenticated admin's role in the context.
func SetAdminRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, adminRoleKey{}, role)
}

// GetAdminRole retrieves the admin role from context. Returns empty string if not present.
func GetAdminRole(ctx context.Context) string {
	if role, ok := ctx.Value(adminRoleKey{}).(string); ok {
		return role
	}
	return ""
}

// TokenValidator validates a bearer token and returns its claims.
// *auth.JWTService satisfies this interface.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// Auth is a middleware that requires a valid bearer access token.
// On success the admin ID and role are stored in the request context.
// Refresh tokens are rejected; they are only valid on the token refresh flow.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeAuthError(w, r, "missing_token", "Authorization header with bearer token is required")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				code := "invalid_token"
				if errors.Is(err, auth.ErrExpiredToken) {
					code = "token_expired"
				}
				writeAuthError(w, r, code, "Invalid or expired token")
				return
			}

			if claims.Type != auth.TokenTypeAccess {
				writeAuthError(w, r, "invalid_token_type", "Access token required")
				return
			}

			ctx := SetAdminID(r.Context(), claims.Subject)
			ctx = SetAdminRole(ctx, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthError writes a 401 response and records the error code for the
// logging middleware.
func writeAuthError(w http.ResponseWriter, r *http.Request, code, message string) {
	ctx := SetErrorCode(r.Context(), code)
	*r = *r.WithContext(ctx)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	io.WriteString(w, `{"statusCode":401,"message":"`+message+`"}`)
}
