package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-api/internal/models"
	"github.com/skillforge/skillforge-api/internal/service"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
	"github.com/skillforge/skillforge-api/pkg/response"
)

// CheckoutHandler exposes the purchase ledger: checkout sessions, the
// transaction list and refunds.
type CheckoutHandler struct {
	payments *service.PaymentService
	metrics  *service.MetricsService
}

// NewCheckoutHandler constructs CheckoutHandler.
func NewCheckoutHandler(payments *service.PaymentService, metrics *service.MetricsService) *CheckoutHandler {
	return &CheckoutHandler{payments: payments, metrics: metrics}
}

// Create godoc
// @Summary Open a checkout session for a course
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.CreateCheckoutRequest true "Checkout payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /checkout [post]
func (h *CheckoutHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.payments.CreateCheckout(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List own transactions
// @Tags Payments
// @Produce json
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /transactions [get]
func (h *CheckoutHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	filter := models.TransactionFilter{
		UserID:   claims.UserID,
		Status:   models.TransactionStatus(c.Query("status")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "limit", 20),
	}
	txns, total, err := h.payments.ListByUser(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, txns, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Refund godoc
// @Summary Refund a completed transaction
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param payload body service.RefundRequest true "Refund payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /transactions/{id}/refund [post]
func (h *CheckoutHandler) Refund(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	txn, err := h.payments.Refund(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordPayment("refunded")
	response.JSON(c, http.StatusOK, txn, nil)
}
