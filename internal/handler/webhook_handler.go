package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/gateway"
	"github.com/skillforge/skillforge-api/internal/service"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
	"github.com/skillforge/skillforge-api/pkg/response"
)

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "X-Checkout-Signature"

// webhookEvent is the provider's delivery payload.
type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		SessionID string `json:"session_id"`
	} `json:"data"`
}

// WebhookHandler receives payment provider callbacks.
type WebhookHandler struct {
	payments      *service.PaymentService
	metrics       *service.MetricsService
	webhookSecret string
	logger        *zap.Logger
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(payments *service.PaymentService, metrics *service.MetricsService, webhookSecret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{payments: payments, metrics: metrics, webhookSecret: webhookSecret, logger: logger}
}

// HandleCheckout godoc
// @Summary Payment provider webhook
// @Tags Payments
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /webhooks/checkout [post]
func (h *WebhookHandler) HandleCheckout(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable body"))
		return
	}

	if err := gateway.VerifySignature(h.webhookSecret, c.GetHeader(SignatureHeader), body, time.Now()); err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		response.Error(c, appErrors.ErrInvalidSignature)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "malformed event"))
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		txn, err := h.payments.ConfirmPayment(c.Request.Context(), event.Data.SessionID)
		if err != nil {
			response.Error(c, err)
			return
		}
		h.metrics.RecordPayment("completed")
		response.JSON(c, http.StatusOK, txn, nil)
	default:
		// Unknown events are acknowledged so the provider stops retrying.
		h.logger.Info("ignoring webhook event", zap.String("type", event.Type))
		response.JSON(c, http.StatusOK, gin.H{"received": true}, nil)
	}
}
