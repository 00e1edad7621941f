// Package identity talks to the external identity provider that issues the
// one-time session identifiers exchanged at login.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vinaeu/insights/backend/internal/model/auth"
)

// ErrRejected is returned when the provider does not accept the identifier.
var ErrRejected = errors.New("identity provider rejected session id")

// Client verifies external session identifiers over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient returns a Client for endpoint; timeout bounds every Verify call.
func NewClient(endpoint string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{endpoint: endpoint, httpClient: httpClient, timeout: timeout}
}

type sessionData struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Verify resolves externalID to the principal's profile.
func (c *Client) Verify(ctx context.Context, externalID string) (auth.Profile, error) {
	ctx, span := otel.Tracer("insights/identity").Start(ctx, "identity_provider_verify")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return auth.Profile{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Session-ID", externalID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return auth.Profile{}, fmt.Errorf("failed to reach identity provider: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return auth.Profile{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return auth.Profile{}, fmt.Errorf("%w: %s", ErrRejected, resp.Status)
	}

	var data sessionData
	if err := json.Unmarshal(body, &data); err != nil {
		return auth.Profile{}, fmt.Errorf("failed to decode session data: %w", err)
	}
	if strings.TrimSpace(data.ID) == "" {
		return auth.Profile{}, fmt.Errorf("%w: missing principal id", ErrRejected)
	}

	return auth.Profile{
		PrincipalID: data.ID,
		Name:        data.Name,
		Email:       data.Email,
		Picture:     data.Picture,
	}, nil
}
