package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"flashdeck/pkg/models"
)

// AuthManager interface for authentication operations
type AuthManager interface {
	IsAuthenticated(r *http.Request) *models.User
}

type userKey struct{}

// WithUser returns ctx carrying the authenticated user.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the user RequireAuth or RequireAuthAPI let through.
func UserFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey{}).(*models.User)
	return u
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// RequireAuth creates a middleware that requires authentication
func RequireAuth(authManager AuthManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := authManager.IsAuthenticated(r)
			if user == nil {
				if r.Header.Get("Content-Type") == "application/json" ||
					strings.HasPrefix(r.URL.Path, "/api/") {
					writeUnauthorized(w)
					return
				}
				http.Redirect(w, r, "/auth?error="+url.QueryEscape("Please sign in to continue"), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireAuthAPI creates middleware for API routes that require authentication
func RequireAuthAPI(authManager AuthManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := authManager.IsAuthenticated(r)
			if user == nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    "NOT_AUTHENTICATED",
		"message": "Please sign in to continue",
	})
}
