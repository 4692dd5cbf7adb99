package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/utafrali/promotion-service/internal/domain"
	apperrors "github.com/utafrali/promotion-service/pkg/errors"
	"github.com/utafrali/promotion-service/pkg/httpclient"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CircuitOpenFallback translates an open circuit into a structured error with
// a retry hint instead of letting the raw ErrCircuitOpen propagate.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("user service is temporarily unavailable, please retry after 30 seconds")
}

// UserClient resolves user segment data from the user service. Discount
// requests may arrive with only a user id; audience targeting needs the
// user's type and group memberships.
type UserClient struct {
	httpClient HTTPDoer
	baseURL    string
	logger     *slog.Logger
}

// NewUserClient creates a client for the user service.
func NewUserClient(httpClient HTTPDoer, baseURL string, logger *slog.Logger) *UserClient {
	return &UserClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		logger:     logger,
	}
}

type userContextResponse struct {
	Data struct {
		ID       string   `json:"id"`
		Type     string   `json:"type"`
		GroupIDs []string `json:"group_ids"`
	} `json:"data"`
}

// GetUserContext fetches the segment context for the given user.
func (c *UserClient) GetUserContext(ctx context.Context, userID string) (*domain.UserContext, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/users/"+userID+"/context", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create user context request: %w", err)
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call user service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "user")
	}

	var body userContextResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode user context response: %w", err)
	}

	return &domain.UserContext{
		ID:       body.Data.ID,
		Type:     body.Data.Type,
		GroupIDs: body.Data.GroupIDs,
	}, nil
}
