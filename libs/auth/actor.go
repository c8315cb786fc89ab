package auth

import (
	"context"
	"net/http"
	"strings"
)

// Roles known to the clinic platform.
const (
	RolePatient         = "patient"
	RolePhysiotherapist = "physiotherapist"
	RoleAdmin           = "admin"
)

// Actor is the pre-validated identity a request acts as.
type Actor struct {
	ID   string
	Role string
}

type actorCtxKey struct{}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorCtxKey{}).(Actor)
	return a, ok
}

func ContextWithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, a)
}

// RequireActor rejects requests without a valid bearer token and puts the
// verified Actor into the request context.
func RequireActor(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(raw, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := ParseAndVerifyHS256(strings.TrimPrefix(raw, "Bearer "), secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.Sub == "" || claims.Role == "" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := ContextWithActor(r.Context(), Actor{ID: claims.Sub, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
