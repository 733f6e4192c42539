package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cursorqr/backend/internal/auth"
	"github.com/cursorqr/backend/internal/models"
)

type contextKey string

const ctxIdentityKey contextKey = "identity"

// TokenVerifier validates a session token and returns the identity it asserts.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// SessionAuth authenticates requests by verifying the Bearer session token
// and sets the resulting identity into the request context. It does no
// database work; handlers decide when to touch the ledger.
func SessionAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			ident, err := verifier.Verify(raw)
			if err != nil {
				http.Error(w, `{"error":"invalid session token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), &ident)))
		})
	}
}

// IdentityFromCtx returns the authenticated identity or nil.
func IdentityFromCtx(ctx context.Context) *auth.Identity {
	ident, _ := ctx.Value(ctxIdentityKey).(*auth.Identity)
	return ident
}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, ident *auth.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey, ident)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// AdminLookup resolves the ledger record for an identity.
type AdminLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// AdminOnly gates a handler on the account's is_admin flag. The flag is set
// only by out-of-band provisioning; this middleware just reads it.
func AdminOnly(users AdminLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := IdentityFromCtx(r.Context())
			if ident == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			u, err := users.GetByID(r.Context(), ident.Subject)
			if err != nil || !u.IsAdmin {
				http.Error(w, `{"error":"admin access required"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
