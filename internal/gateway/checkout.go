package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/pkg/config"
)

// Session statuses reported by the hosted checkout provider.
const (
	SessionStatusPending = "pending"
	SessionStatusPaid    = "paid"
	SessionStatusExpired = "expired"
)

// Session is the provider's view of one hosted checkout.
type Session struct {
	ID          string  `json:"id"`
	CheckoutURL string  `json:"checkout_url"`
	Status      string  `json:"status"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

// CreateSessionRequest opens a hosted checkout session for one purchase.
type CreateSessionRequest struct {
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	ReferenceID string            `json:"reference_id"`
	SuccessURL  string            `json:"success_url"`
	CancelURL   string            `json:"cancel_url"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type providerError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// CheckoutClient talks to the hosted payment provider's REST API.
type CheckoutClient struct {
	http   *resty.Client
	cfg    config.CheckoutConfig
	logger *zap.Logger
}

// NewCheckoutClient builds the provider client from config.
func NewCheckoutClient(cfg config.CheckoutConfig, logger *zap.Logger) *CheckoutClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2)

	return &CheckoutClient{http: client, cfg: cfg, logger: logger}
}

// CreateSession opens a checkout session and returns the redirect URL.
func (c *CheckoutClient) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	if req.SuccessURL == "" {
		req.SuccessURL = c.cfg.SuccessURL
	}
	if req.CancelURL == "" {
		req.CancelURL = c.cfg.CancelURL
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/v1/checkout/sessions")
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if resp.IsError() {
		return nil, c.providerFailure("create checkout session", resp)
	}

	var session Session
	if err := json.Unmarshal(resp.Body(), &session); err != nil {
		return nil, fmt.Errorf("parse checkout session: %w", err)
	}
	c.logger.Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.String("reference_id", req.ReferenceID))
	return &session, nil
}

// GetSession fetches the provider-side state of a session. Used to
// reconcile a transaction when a webhook is in doubt.
func (c *CheckoutClient) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/v1/checkout/sessions/" + sessionID)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	if resp.IsError() {
		return nil, c.providerFailure("get checkout session", resp)
	}

	var session Session
	if err := json.Unmarshal(resp.Body(), &session); err != nil {
		return nil, fmt.Errorf("parse checkout session: %w", err)
	}
	return &session, nil
}

// Refund asks the provider to return the full charge for a session.
func (c *CheckoutClient) Refund(ctx context.Context, sessionID string, amount float64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"session_id": sessionID,
			"amount":     amount,
		}).
		Post("/v1/refunds")
	if err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	if resp.IsError() {
		return c.providerFailure("create refund", resp)
	}
	c.logger.Info("refund requested", zap.String("session_id", sessionID))
	return nil
}

func (c *CheckoutClient) providerFailure(op string, resp *resty.Response) error {
	var pe providerError
	if err := json.Unmarshal(resp.Body(), &pe); err == nil && pe.Message != "" {
		c.logger.Warn("payment provider rejected request",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode()),
			zap.String("code", pe.Code),
			zap.String("message", pe.Message))
		return fmt.Errorf("%s: provider returned %d: %s", op, resp.StatusCode(), pe.Message)
	}
	c.logger.Warn("payment provider rejected request",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode()))
	return fmt.Errorf("%s: provider returned %d", op, resp.StatusCode())
}
