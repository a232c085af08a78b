package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckroyale/sixking/internal/domains/entities"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "p1",
		"exp": exp.Unix(),
	})
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestBalanceAndProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer opaque-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/wallet/balance":
			json.NewEncoder(w).Encode(map[string]int{"balance": 750})
		case "/players/me":
			json.NewEncoder(w).Encode(entities.Player{Id: "p1", Name: "Asha"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "opaque-token")

	balance, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 750, balance)

	player, err := client.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entities.Player{Id: "p1", Name: "Asha"}, player)
}

func TestIsPrivileged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/admin/privilege", r.URL.Path)
		privileged := r.URL.Query().Get("playerId") == "admin-1"
		json.NewEncoder(w).Encode(map[string]bool{"privileged": privileged})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "opaque-token")
	assert.True(t, client.IsPrivileged(context.Background(), "admin-1"))
	assert.False(t, client.IsPrivileged(context.Background(), "p2"))

	// Unreachable collaborator means no privilege, not an error.
	down := NewClient("http://127.0.0.1:1", "opaque-token")
	assert.False(t, down.IsPrivileged(context.Background(), "admin-1"))
}

func TestSubmitIntent(t *testing.T) {
	var got entities.WalletIntent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/wallet/intents", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "opaque-token")
	intent := entities.WalletIntent{
		Id:        "i1",
		SessionId: "ABCD12",
		Kind:      entities.IntentCredit,
		Amount:    200,
	}
	require.NoError(t, client.Submit(context.Background(), intent))
	assert.Equal(t, intent, got)
}

func TestExpiredTokenFailsFast(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]int{"balance": 0})
	}))
	defer srv.Close()

	expired := NewClient(srv.URL, signedToken(t, time.Now().Add(-time.Hour)))
	_, err := expired.Balance(context.Background())
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Zero(t, calls, "expired token must not reach the server")

	valid := NewClient(srv.URL, signedToken(t, time.Now().Add(time.Hour)))
	_, err = valid.Balance(context.Background())
	assert.NoError(t, err)
}

func TestNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "opaque-token")
	_, err := client.Balance(context.Background())
	assert.ErrorContains(t, err, "403")
}
