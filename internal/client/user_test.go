package client

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/promotion-service/pkg/errors"
	"github.com/utafrali/promotion-service/pkg/httpclient"
)

func newTestUserClient(serverURL string) *UserClient {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewUserClient(httpclient.New(httpclient.DefaultConfig()), serverURL, logger)
}

func TestGetUserContext_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users/user-1/context", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"user-1","type":"vip","group_ids":["beta","wholesale"]}}`))
	}))
	defer server.Close()

	user, err := newTestUserClient(server.URL).GetUserContext(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "vip", user.Type)
	assert.Equal(t, []string{"beta", "wholesale"}, user.GroupIDs)
}

func TestGetUserContext_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"user not found"}}`))
	}))
	defer server.Close()

	user, err := newTestUserClient(server.URL).GetUserContext(context.Background(), "missing")

	assert.Nil(t, user)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetUserContext_EmptyID(t *testing.T) {
	user, err := newTestUserClient("http://localhost:0").GetUserContext(context.Background(), "")

	assert.Nil(t, user)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCircuitOpenFallback(t *testing.T) {
	resp, err := CircuitOpenFallback(context.Background(), nil)

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}
