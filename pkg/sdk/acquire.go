package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/terraconstructs/svcgate/pkg/sdk/telemetry"
	"golang.org/x/oauth2"
)

// ErrNoBearerToken is returned when an acquisition is attempted without the
// externally supplied bearer token.
var ErrNoBearerToken = errors.New("no bearer token provided")

// AcquisitionError reports a non-2xx response from the credential endpoint.
// The response body is kept for diagnostics.
type AcquisitionError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("credential endpoint returned %s: %s", e.Status, e.Body)
}

// acquisitionResponse is the credential endpoint's response body.
type acquisitionResponse struct {
	JWT            string `json:"jwt"`
	IsNieUser      bool   `json:"isNieUser"`
	IsLdapEnabled  bool   `json:"isLdapEnabled"`
	HasGroupAccess bool   `json:"hasGroupAccess"`
	Key            string `json:"key"`
}

// Acquirer exchanges a bearer token and fingerprint for a fresh credential.
type Acquirer interface {
	Acquire(ctx context.Context, bearerToken string, source FingerprintSource) (*CachedCredential, error)
}

// AcquisitionClient posts a SystemFingerprint to the credential endpoint.
type AcquisitionClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *telemetry.Metrics
}

// Ensure AcquisitionClient implements Acquirer at compile time.
var _ Acquirer = (*AcquisitionClient)(nil)

// AcquisitionOption mutates an AcquisitionClient.
type AcquisitionOption func(*AcquisitionClient)

// WithAcquisitionHTTPClient overrides the base HTTP client. Its transport is
// wrapped with bearer authentication for each call.
func WithAcquisitionHTTPClient(client *http.Client) AcquisitionOption {
	return func(c *AcquisitionClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAcquisitionLogger sets the logger.
func WithAcquisitionLogger(logger *slog.Logger) AcquisitionOption {
	return func(c *AcquisitionClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAcquisitionMetrics records acquisition outcomes on m.
func WithAcquisitionMetrics(m *telemetry.Metrics) AcquisitionOption {
	return func(c *AcquisitionClient) {
		c.metrics = m
	}
}

// NewAcquisitionClient creates a client for the credential endpoint.
func NewAcquisitionClient(endpoint string, opts ...AcquisitionOption) *AcquisitionClient {
	c := &AcquisitionClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     discardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire builds a fingerprint and exchanges it for a credential. A non-2xx
// response is returned as *AcquisitionError and is never retried here. The
// returned record has no CachedAt/ExpiresAt; the gate derives those.
func (c *AcquisitionClient) Acquire(ctx context.Context, bearerToken string, source FingerprintSource) (*CachedCredential, error) {
	if bearerToken == "" {
		return nil, ErrNoBearerToken
	}

	fingerprint, err := source.Fingerprint(ctx)
	if err != nil {
		c.metrics.RecordAcquisition(ctx, "fingerprint_error")
		return nil, fmt.Errorf("build fingerprint: %w", err)
	}
	body, err := json.Marshal(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("marshal fingerprint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build credential request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.bearerClient(ctx, bearerToken).Do(req)
	if err != nil {
		c.metrics.RecordAcquisition(ctx, "transport_error")
		return nil, fmt.Errorf("credential request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.metrics.RecordAcquisition(ctx, "transport_error")
		return nil, fmt.Errorf("read credential response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RecordAcquisition(ctx, "rejected")
		c.logger.Error("credential request rejected",
			"endpoint", c.endpoint,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return nil, &AcquisitionError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(respBody)}
	}

	var payload acquisitionResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		c.metrics.RecordAcquisition(ctx, "decode_error")
		return nil, fmt.Errorf("decode credential response: %w", err)
	}

	token := payload.JWT
	if token == "" {
		token = bearerToken
	}
	c.metrics.RecordAcquisition(ctx, "success")
	c.logger.Debug("credential acquired", "endpoint", c.endpoint, "token_in_response", payload.JWT != "")

	return &CachedCredential{
		Token:          token,
		IsNieUser:      payload.IsNieUser,
		IsLdapEnabled:  payload.IsLdapEnabled,
		HasGroupAccess: payload.HasGroupAccess,
		Key:            payload.Key,
	}, nil
}

// bearerClient wraps the base client's transport with a static bearer token.
func (c *AcquisitionClient) bearerClient(ctx context.Context, bearerToken string) *http.Client {
	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: bearerToken,
		TokenType:   "Bearer",
	})
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), source)
	client.Timeout = c.httpClient.Timeout
	return client
}
