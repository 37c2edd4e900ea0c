package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrocoop/billing-api/internal/types"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func authTestHandler(t *testing.T) (http.Handler, *types.Actor) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seen types.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		require.True(t, ok)
		seen = actor
		w.WriteHeader(http.StatusNoContent)
	})
	return NewAuthMiddleware(testSecret, logger)(next), &seen
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("valid token stamps the actor", func(t *testing.T) {
		handler, seen := authTestHandler(t)
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub":  "admin-1",
			"name": "Achieng Odhiambo",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "admin-1", seen.ID)
		assert.Equal(t, "Achieng Odhiambo", seen.Name)
	})

	t.Run("missing header", func(t *testing.T) {
		handler, _ := authTestHandler(t)
		req := httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		handler, _ := authTestHandler(t)
		token := signToken(t, []byte("other-secret"), jwt.MapClaims{
			"sub": "admin-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		handler, _ := authTestHandler(t)
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub": "admin-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		req := httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token without subject", func(t *testing.T) {
		handler, _ := authTestHandler(t)
		token := signToken(t, testSecret, jwt.MapClaims{
			"name": "Nobody",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
