package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preventa/preventa/internal/auth"
	"github.com/preventa/preventa/internal/shared"
)

func newTokenStore(t *testing.T, ttl time.Duration) (*auth.TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return auth.NewTokenStore(client, ttl), mr
}

func TestTokenRoundtrip(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)

	token, err := store.Issue(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, token, 64)

	userID, err := store.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestTokenRevoke(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)

	token, err := store.Issue(context.Background(), 42)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(context.Background(), token))

	_, err = store.Resolve(context.Background(), token)
	require.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenExpiry(t *testing.T) {
	store, mr := newTokenStore(t, time.Minute)

	token, err := store.Issue(context.Background(), 42)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Resolve(context.Background(), token)
	require.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestUnknownTokenRejected(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)
	_, err := store.Resolve(context.Background(), "deadbeef")
	require.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestRequireAuthMiddleware(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)
	token, err := store.Issue(context.Background(), 7)
	require.NoError(t, err)

	var gotUser int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := shared.UserIDFromContext(r.Context())
		require.True(t, ok)
		gotUser = userID
		w.WriteHeader(http.StatusOK)
	})
	handler := auth.RequireAuth(store)(next)

	req := httptest.NewRequest(http.MethodGet, "/budgets", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, int64(7), gotUser)

	// Missing and malformed tokens are rejected before the handler runs.
	for _, header := range []string{"", "Bearer nope", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/budgets", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	}
}
