package middleware

import (
	"context"
	"net/http"

	"github.com/postocalmo/backend/internal/domain/entities"
)

type contextKey string

const identityContextKey contextKey = "identity"

// IdentityMiddleware resolves the caller identity from the X-User-Id and
// X-User-Role headers, populated by the edge gateway after token
// verification. Requests without the headers proceed anonymously; the
// access policy decides per operation whether that is acceptable.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		role := entities.Role(r.Header.Get("X-User-Role"))
		if role == "" {
			role = entities.RoleUser
		}

		identity := &entities.Identity{
			UserID: userID,
			Role:   role,
		}
		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the caller identity, or nil for anonymous
// requests.
func IdentityFromContext(ctx context.Context) *entities.Identity {
	identity, _ := ctx.Value(identityContextKey).(*entities.Identity)
	return identity
}
