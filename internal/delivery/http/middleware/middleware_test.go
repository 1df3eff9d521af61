package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-clinic-appointment/internal/domain/entity"
	"go-clinic-appointment/internal/usecase"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	actor *entity.Actor
	err   error
}

func (f fakeAuthenticator) Authenticate(ctx context.Context, accessToken string) (*entity.Actor, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.actor, "token-" + accessToken, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestAuthMiddleware(t *testing.T) {
	doctor := &entity.Actor{ID: uuid.New(), Role: entity.RoleDoctor, ExpiresAt: time.Now().Add(time.Hour)}

	tests := []struct {
		name   string
		header string
		auth   fakeAuthenticator
		status int
	}{
		{"missing header", "", fakeAuthenticator{actor: doctor}, http.StatusUnauthorized},
		{"not bearer", "Basic abc", fakeAuthenticator{actor: doctor}, http.StatusUnauthorized},
		{"expired", "Bearer abc", fakeAuthenticator{err: usecase.ErrTokenExpired}, http.StatusUnauthorized},
		{"revoked", "Bearer abc", fakeAuthenticator{err: usecase.ErrTokenRevoked}, http.StatusUnauthorized},
		{"invalid", "Bearer abc", fakeAuthenticator{err: usecase.ErrInvalidToken}, http.StatusUnauthorized},
		{"store down", "Bearer abc", fakeAuthenticator{err: errors.New("redis: connection refused")}, http.StatusInternalServerError},
		{"valid", "Bearer abc", fakeAuthenticator{actor: doctor}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen entity.Actor
			var seenToken string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = GetActorFromContext(r.Context())
				seenToken, _ = GetTokenIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			NewAuthMiddleware(quietLogger(), tt.auth).Authenticate(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, doctor.ID, seen.ID)
				assert.Equal(t, "token-abc", seenToken)
			}
		})
	}
}

func TestAuthMiddleware_ExpiredMessage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()

	NewAuthMiddleware(quietLogger(), fakeAuthenticator{err: usecase.ErrTokenExpired}).
		Authenticate(http.NotFoundHandler()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "re-authenticate")
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	serve := func(h http.Handler, actor *entity.Actor) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if actor != nil {
			req = req.WithContext(WithActor(req.Context(), *actor, "t"))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	admin := &entity.Actor{ID: uuid.New(), Role: entity.RoleAdmin}
	patient := &entity.Actor{ID: uuid.New(), Role: entity.RolePatient}

	assert.Equal(t, http.StatusNoContent, serve(RequireAdmin(ok), admin))
	assert.Equal(t, http.StatusForbidden, serve(RequireAdmin(ok), patient))
	assert.Equal(t, http.StatusUnauthorized, serve(RequireAdmin(ok), nil))
	assert.Equal(t, http.StatusNoContent, serve(RequireRole(entity.RoleDoctor, entity.RolePatient)(ok), patient))
	assert.Equal(t, http.StatusForbidden, serve(RequireDoctor(ok), patient))
	assert.Equal(t, http.StatusNoContent, serve(RequirePatient(ok), patient))
}
