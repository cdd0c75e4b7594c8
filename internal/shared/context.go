package shared

import (
	"context"
	"net/http"
	"strings"
)

// ActorHeader carries the identity of the clerk issuing a request. Identity is
// established upstream; this service only records it.
const ActorHeader = "X-Actor"

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}

// ActorMiddleware copies the actor header into the request context.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor != "" {
			r = r.WithContext(ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
