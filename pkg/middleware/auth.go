package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agrocoop/billing-api/internal/types"
)

type actorKey struct{}

// NewAuthMiddleware validates the Bearer token and stores the caller's actor
// identity on the context for audit attribution.
func NewAuthMiddleware(secret []byte, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := actorFromRequest(r, secret)
			if err != nil {
				logger.WarnContext(r.Context(), "rejected unauthenticated request",
					"path", r.URL.Path, slog.Any("error", err))
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
		})
	}
}

func actorFromRequest(r *http.Request, secret []byte) (types.Actor, error) {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return types.Actor{}, types.ErrUnauthenticated
	}
	if len(secret) == 0 {
		return types.Actor{}, types.ErrUnauthenticated
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return types.Actor{}, err
	}

	actor := types.Actor{}
	if sub, err := claims.GetSubject(); err == nil {
		actor.ID = sub
	}
	if name, ok := claims["name"].(string); ok {
		actor.Name = name
	}
	if actor.ID == "" {
		return types.Actor{}, types.ErrUnauthenticated
	}
	return actor, nil
}

// ContextWithActor attaches an actor identity to the context.
func ContextWithActor(ctx context.Context, actor types.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (types.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(types.Actor)
	return actor, ok
}
