package scasdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Service is the first path segment naming the business object kind.
type Service string

const (
	ServiceConsents           Service = "consents"
	ServicePayments           Service = "payments"
	ServiceCancellations      Service = "cancellations"
	ServiceFundsConfirmations Service = "funds-confirmations"
)

// SDKClient is a client for the scagate API.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// AccessToken, when set, is sent as a Bearer token. Only needed for the
	// OAUTH approach.
	AccessToken string
}

// NewSDKClient creates a new client for the service at baseURL.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithAccessToken returns a copy of the client that authenticates with token.
func (c *SDKClient) WithAccessToken(token string) *SDKClient {
	cp := *c
	cp.AccessToken = token
	return &cp
}

// ErrNotReady is returned by GetReadiness when /readyz answers 503. The
// decoded body still comes back so the caller can see which check failed.
var ErrNotReady = errors.New("scasdk: service not ready")

// GetLiveness checks that the process is up.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/livez", nil)
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}

// GetReadiness checks the store and cache behind the service.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/readyz", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusServiceUnavailable:
	default:
		return nil, parseErrorResponse(resp, body)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		return &health, fmt.Errorf("%w: %s", ErrNotReady, strings.Join(health.Failing(), ", "))
	}
	return &health, nil
}

// Failing lists the checks that did not report "ok", sorted by name.
func (h HealthResponse) Failing() []string {
	var out []string
	for name, result := range h.Checks {
		if result != "ok" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
