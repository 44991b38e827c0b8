// Package payments talks to the upstream payment gateway. The escrow service
// only ever sees the Gateway interface; the HTTP client here is the real
// implementation and tests substitute their own.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Gateway order statuses as reported upstream.
const (
	OrderStatusCreated   = "created"
	OrderStatusPaid      = "paid"
	OrderStatusAttempted = "attempted"
)

// ErrGatewayUnavailable wraps transport failures; callers retry with backoff.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Order is a gateway-side order created before checkout.
type Order struct {
	ID     string
	Amount int64
	Status string
}

// Gateway is the upstream payment provider.
type Gateway interface {
	// CreateOrder registers an order for the given amount and returns the
	// gateway order id the client-side checkout uses.
	CreateOrder(ctx context.Context, amount int64, receipt string) (*Order, error)
	// FetchOrder returns the authoritative status for an order id.
	FetchOrder(ctx context.Context, orderID string) (*Order, error)
}

// HTTPGateway is a Razorpay-style orders API client using basic auth.
type HTTPGateway struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

func NewHTTPGateway(baseURL, keyID, keySecret string) *HTTPGateway {
	return &HTTPGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

var _ Gateway = (*HTTPGateway)(nil)

type orderPayload struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

func (g *HTTPGateway) CreateOrder(ctx context.Context, amount int64, receipt string) (*Order, error) {
	body := fmt.Sprintf(`{"amount":%d,"currency":"INR","receipt":%q}`, amount, receipt)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)
	return g.do(req)
}

func (g *HTTPGateway) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	return g.do(req)
}

func (g *HTTPGateway) do(req *http.Request) (*Order, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	var p orderPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: invalid response body", ErrGatewayUnavailable)
	}
	return &Order{ID: p.ID, Amount: p.Amount, Status: p.Status}, nil
}
