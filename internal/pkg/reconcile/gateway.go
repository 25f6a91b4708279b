package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/schoolpay/schoolpay/app/models"
	"github.com/schoolpay/schoolpay/internal/pkg/env"
)

// GatewayClient fetches live payment status from the provider. It is an
// external collaborator of the query service; reconciliation never calls it.
type GatewayClient interface {
	FetchStatus(ctx context.Context, order *models.Order) (*PaymentEvent, error)
}

// HTTPGatewayClient talks to the payment provider's collect-request API.
// The timeout is not optional: an unbounded status call in the query
// fallback is a resource-exhaustion hole under gateway latency.
type HTTPGatewayClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewGatewayClientFromEnv builds the client from environment configuration.
// Returns nil when no base URL is configured; the query service treats a nil
// client as "local state only".
func NewGatewayClientFromEnv() *HTTPGatewayClient {
	base := strings.TrimRight(env.GetEnv("GATEWAY_BASE_URL", ""), "/")
	if base == "" {
		return nil
	}
	return &HTTPGatewayClient{
		BaseURL: base,
		APIKey:  strings.TrimSpace(env.GetEnv("GATEWAY_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchStatus queries the provider for the order's collect request and
// normalizes the response into a PaymentEvent.
func (c *HTTPGatewayClient) FetchStatus(ctx context.Context, order *models.Order) (*PaymentEvent, error) {
	ref := order.Metadata()[models.MetaCollectRequestID]
	if ref == "" {
		ref = order.CustomOrderID
	}

	u, err := url.Parse(c.BaseURL + "/collect-request/" + url.PathEscape(ref))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("school_id", order.SchoolID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway status request for %s: %w", ref, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway status request for %s failed: status=%d body=%s", ref, resp.StatusCode, string(body))
	}

	var out struct {
		Status      string          `json:"status"`
		Amount      json.Number     `json:"amount"`
		Details     json.RawMessage `json:"details"`
		PaymentMode string          `json:"payment_mode"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Status) == "" {
		return nil, errors.New("gateway status response missing status")
	}

	amount, _ := out.Amount.Float64()
	return &PaymentEvent{
		ExternalRef: ref,
		RawStatus:   out.Status,
		OrderAmount: amount,
		PaymentMode: out.PaymentMode,
		Gateway:     order.Gateway,
		RawJSON:     string(body),
	}, nil
}
