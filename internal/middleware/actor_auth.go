package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zoevanderzee/interlincRender-sub005/internal/guard"
)

type contextKey string

const ctxActorKey contextKey = "actor"

// TokenValidator resolves a bearer token to the actor it represents.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (guard.Actor, error)
}

// ActorAuth authenticates requests by validating the Bearer token and
// putting the resolved actor into request context. It only establishes
// identity; per-resource authorization happens in the guard, inside each
// mutation.
func ActorAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			actor, err := validator.ValidateToken(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxActorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromCtx returns the authenticated actor and whether one is present.
func ActorFromCtx(ctx context.Context) (guard.Actor, bool) {
	actor, ok := ctx.Value(ctxActorKey).(guard.Actor)
	return actor, ok
}

// WithActor returns a context carrying the given actor, for tests.
func WithActor(ctx context.Context, actor guard.Actor) context.Context {
	return context.WithValue(ctx, ctxActorKey, actor)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
