package ap2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sumup/ap2/signature"
)

// MerchantClient reaches a remote [MerchantHandler]. It implements
// [MerchantGateway].
type MerchantClient struct {
	baseURL *url.URL
	client  *http.Client
	signer  signature.Signer
	apiKey  string
	agentID string
	clock   func() time.Time
}

// MerchantClientOption customizes a [MerchantClient].
type MerchantClientOption func(*MerchantClient)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) MerchantClientOption {
	return func(mc *MerchantClient) {
		if c != nil {
			mc.client = c
		}
	}
}

// WithRequestSigner signs every request body.
func WithRequestSigner(s signature.Signer) MerchantClientOption {
	return func(mc *MerchantClient) {
		mc.signer = s
	}
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) MerchantClientOption {
	return func(mc *MerchantClient) {
		mc.apiKey = key
	}
}

// WithClientAgentID sets the AP2-Agent-Id header.
func WithClientAgentID(id string) MerchantClientOption {
	return func(mc *MerchantClient) {
		mc.agentID = id
	}
}

// NewMerchantClient builds a client for the merchant served at baseURL.
func NewMerchantClient(baseURL string, opts ...MerchantClientOption) (*MerchantClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ap2: parse merchant url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ap2: merchant url %q must be absolute", baseURL)
	}
	mc := &MerchantClient{
		baseURL: u,
		client:  http.DefaultClient,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(mc)
	}
	return mc, nil
}

// Extension fetches the merchant's advertised AP2 extension.
func (c *MerchantClient) Extension(ctx context.Context) (Extension, error) {
	var ext Extension
	err := c.do(ctx, http.MethodGet, "/.well-known/ap2-extension", nil, &ext)
	return ext, err
}

// SearchFlights implements [MerchantGateway].
func (c *MerchantClient) SearchFlights(ctx context.Context, query FlightQuery) (*SearchFlightsResult, error) {
	var out SearchFlightsResult
	if err := c.do(ctx, http.MethodPost, "/flights/search", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBookingMandate implements [MerchantGateway].
func (c *MerchantClient) CreateBookingMandate(ctx context.Context, req CreateBookingMandateRequest) (*CreateBookingMandateResult, error) {
	var out CreateBookingMandateResult
	if err := c.do(ctx, http.MethodPost, "/mandates", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthorizeMandate implements [MerchantGateway].
func (c *MerchantClient) AuthorizeMandate(ctx context.Context, mandateID, token string) (*AuthorizeMandateResult, error) {
	var out AuthorizeMandateResult
	path := "/mandates/" + url.PathEscape(mandateID) + "/authorize"
	if err := c.do(ctx, http.MethodPost, path, AuthorizationTokenRequest{AuthorizationToken: token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessAuthorizedPayment implements [MerchantGateway].
func (c *MerchantClient) ProcessAuthorizedPayment(ctx context.Context, mandateID, token string) (*ProcessPaymentResult, error) {
	var out ProcessPaymentResult
	path := "/mandates/" + url.PathEscape(mandateID) + "/payment"
	if err := c.do(ctx, http.MethodPost, path, AuthorizationTokenRequest{AuthorizationToken: token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *MerchantClient) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ap2: marshal request: %w", err)
		}
		body = raw
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ap2: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderVersion, ProtocolVersion)
	req.Header.Set("Request-Id", uuid.NewString())
	if c.agentID != "" {
		req.Header.Set(HeaderAgentID, c.agentID)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.signer != nil && body != nil {
		if err := signature.SignRequest(req, c.signer, c.clock(), body); err != nil {
			return fmt.Errorf("ap2: sign request: %w", err)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ap2: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("ap2: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeErrorResponse(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("ap2: decode response: %w", err)
	}
	return nil
}

// decodeErrorResponse rebuilds the merchant's *Error so callers can match on
// its type as if the merchant were in-process.
func decodeErrorResponse(status int, raw []byte) error {
	var payload Error
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Type == "" {
		return NewProcessingError(fmt.Sprintf("merchant returned %d: %s", status, strings.TrimSpace(string(raw))), WithStatusCode(status))
	}
	payload.status = status
	return &payload
}

var (
	_ MerchantGateway  = (*MerchantClient)(nil)
	_ MerchantGateway  = (*Merchant)(nil)
	_ MerchantProvider = (*Merchant)(nil)
	_ ShopperProvider  = (*Shopper)(nil)
)
