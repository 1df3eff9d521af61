package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go-clinic-appointment/internal/domain/entity"
	"go-clinic-appointment/internal/usecase"
	"go-clinic-appointment/pkg/response"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	ActorKey   contextKey = "actor"
	TokenIDKey contextKey = "token_id"
)

// Authenticator resolves a bearer token into the calling actor
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*entity.Actor, string, error)
}

type AuthMiddleware struct {
	log           *logrus.Logger
	authenticator Authenticator
}

func NewAuthMiddleware(log *logrus.Logger, authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{
		log:           log,
		authenticator: authenticator,
	}
}

func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.Unauthorized(w, "Authorization header is required")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(w, "Invalid authorization header format")
			return
		}

		actor, tokenID, err := m.authenticator.Authenticate(r.Context(), parts[1])
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrTokenExpired):
				response.Unauthorized(w, "Token expired, please re-authenticate")
			case errors.Is(err, usecase.ErrTokenRevoked):
				response.Unauthorized(w, "Token has been revoked")
			case errors.Is(err, usecase.ErrInvalidToken):
				response.Unauthorized(w, "Invalid token")
			default:
				m.log.Warnf("Failed to validate token: %+v", err)
				response.InternalServerError(w, "Failed to validate token")
			}
			return
		}

		ctx := context.WithValue(r.Context(), ActorKey, *actor)
		ctx = context.WithValue(ctx, TokenIDKey, tokenID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetActorFromContext extracts the authenticated actor from context
func GetActorFromContext(ctx context.Context) (entity.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(entity.Actor)
	return actor, ok
}

// GetUserIDFromContext extracts user ID from context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	actor, ok := GetActorFromContext(ctx)
	return actor.ID, ok
}

// GetTokenIDFromContext extracts token ID from context
func GetTokenIDFromContext(ctx context.Context) (string, bool) {
	tokenID, ok := ctx.Value(TokenIDKey).(string)
	return tokenID, ok
}

// WithActor stores an actor the way Authenticate does
func WithActor(ctx context.Context, actor entity.Actor, tokenID string) context.Context {
	ctx = context.WithValue(ctx, ActorKey, actor)
	return context.WithValue(ctx, TokenIDKey, tokenID)
}
