package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cronos-live/attendance-system/models"
	"github.com/cronos-live/attendance-system/services"
	"github.com/cronos-live/attendance-system/store"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Auth validates bearer tokens and puts the acting identity into the
// request context, both for handlers and for the store's write guard.
type Auth struct {
	identities *services.IdentityService
}

func NewAuth(identities *services.IdentityService) *Auth {
	return &Auth{identities: identities}
}

// Optional attaches the identity when a valid token is present and lets the
// request through otherwise. Reservation uses it: a first-time caller has no
// session yet and gets an anonymous one minted inside the flow.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity := a.identityFromRequest(r); identity != nil {
			r = r.WithContext(withIdentity(r.Context(), identity))
		}
		next.ServeHTTP(w, r)
	})
}

// Require rejects requests without a valid bearer token.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := a.identityFromRequest(r)
		if identity == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

func (a *Auth) identityFromRequest(r *http.Request) *models.Identity {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil
	}
	identity, err := a.identities.ParseToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return nil
	}
	return identity
}

func withIdentity(ctx context.Context, identity *models.Identity) context.Context {
	ctx = context.WithValue(ctx, identityContextKey, identity)
	return store.WithActor(ctx, identity.SubjectID)
}

// IdentityFromContext returns the acting identity, if the request carried a
// valid token.
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*models.Identity)
	return identity, ok
}
