package service

import (
	"context"
	"database/sql"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/gateway"
	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

type transactionRepo interface {
	Create(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Transaction, error)
	SetSessionID(ctx context.Context, id, sessionID string) error
	ExistsCompleted(ctx context.Context, userID, courseID string) (bool, error)
	MarkCompleted(ctx context.Context, id string) (bool, error)
	MarkFailed(ctx context.Context, id string) (bool, error)
	MarkRefunded(ctx context.Context, id, reason string, refundedAt time.Time) (bool, error)
	List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, int, error)
}

type checkoutGateway interface {
	CreateSession(ctx context.Context, req gateway.CreateSessionRequest) (*gateway.Session, error)
	GetSession(ctx context.Context, sessionID string) (*gateway.Session, error)
	Refund(ctx context.Context, sessionID string, amount float64) error
}

type enroller interface {
	Enroll(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
}

type enrollmentFinder interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
}

// round2 is the monetary and percentage rounding used across the package.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(round2(v), 'f', 2, 64)
}

// CreateCheckoutRequest opens a purchase.
type CreateCheckoutRequest struct {
	CourseID   string `json:"course_id" validate:"required"`
	SuccessURL string `json:"success_url" validate:"omitempty,url"`
	CancelURL  string `json:"cancel_url" validate:"omitempty,url"`
}

// CheckoutResult is what the buyer needs to continue paying.
type CheckoutResult struct {
	Transaction *models.Transaction `json:"transaction"`
	CheckoutURL string              `json:"checkout_url"`
}

// RefundRequest asks for a full refund of a completed transaction.
type RefundRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// PaymentService owns the purchase ledger: checkout session creation,
// webhook-driven settlement and refunds. Every monetary split is frozen at
// pending-transaction creation and never recomputed.
type PaymentService struct {
	transactions transactionRepo
	courses      courseReader
	users        userReader
	enrollments  enrollmentFinder
	enroller     enroller
	provider     checkoutGateway
	notifier     notifier
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(transactions transactionRepo, courses courseReader, users userReader, enrollments enrollmentFinder, enroll enroller, provider checkoutGateway, notify notifier, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		transactions: transactions,
		courses:      courses,
		users:        users,
		enrollments:  enrollments,
		enroller:     enroll,
		provider:     provider,
		notifier:     notify,
		validator:    validate,
		logger:       logger,
	}
}

// CreateCheckout freezes the fee split, records a pending transaction and
// opens a hosted checkout session for it.
func (s *PaymentService) CreateCheckout(ctx context.Context, userID string, req CreateCheckoutRequest) (*CheckoutResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checkout payload")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.IsPublished() {
		return nil, appErrors.ErrCourseNotPublished
	}
	if course.IsFree() {
		return nil, appErrors.ErrFreeCourse
	}

	purchased, err := s.transactions.ExistsCompleted(ctx, userID, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check purchase")
	}
	if purchased {
		return nil, appErrors.ErrDuplicatePurchase
	}
	if _, err := s.enrollments.FindByUserAndCourse(ctx, userID, course.ID); err == nil {
		return nil, appErrors.ErrDuplicatePurchase
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}

	fee := round2(course.Price * models.PlatformFeeRate)
	txn := &models.Transaction{
		UserID:            userID,
		CourseID:          course.ID,
		Amount:            course.Price,
		Currency:          course.Currency,
		PlatformFee:       fee,
		InstructorRevenue: round2(course.Price - fee),
		PaymentMethod:     "checkout",
		Status:            models.TransactionStatusPending,
	}
	if err := s.transactions.Create(ctx, txn); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record transaction")
	}

	session, err := s.provider.CreateSession(ctx, gateway.CreateSessionRequest{
		Amount:      txn.Amount,
		Currency:    txn.Currency,
		Description: course.Title,
		ReferenceID: txn.ID,
		SuccessURL:  appendSessionPlaceholder(req.SuccessURL),
		CancelURL:   req.CancelURL,
		Metadata: map[string]string{
			"transaction_id": txn.ID,
			"course_id":      course.ID,
			"user_id":        userID,
		},
	})
	if err != nil {
		s.logger.Error("checkout session creation failed",
			zap.String("transaction_id", txn.ID),
			zap.Error(err))
		if _, ferr := s.transactions.MarkFailed(ctx, txn.ID); ferr != nil {
			s.logger.Error("failed to mark transaction failed", zap.String("transaction_id", txn.ID), zap.Error(ferr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPaymentProvider.Code, appErrors.ErrPaymentProvider.Status, appErrors.ErrPaymentProvider.Message)
	}

	if err := s.transactions.SetSessionID(ctx, txn.ID, session.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach checkout session")
	}
	txn.PaymentSessionID = &session.ID

	return &CheckoutResult{Transaction: txn, CheckoutURL: session.CheckoutURL}, nil
}

// appendSessionPlaceholder lets the provider substitute the session ID into
// the redirect so the success page can poll the transaction.
func appendSessionPlaceholder(url string) string {
	if url == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "session_id={CHECKOUT_SESSION_ID}"
}

// ConfirmPayment settles the transaction a provider session refers to.
// Safe under duplicate webhook delivery: replays observe the completed row
// and return it unchanged.
func (s *PaymentService) ConfirmPayment(ctx context.Context, sessionID string) (*models.Transaction, error) {
	txn, err := s.transactions.FindBySessionID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "transaction not found for session")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transaction")
	}
	if txn.IsCompleted() {
		return txn, nil
	}
	if txn.Status != models.TransactionStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "transaction is not pending")
	}

	session, err := s.provider.GetSession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPaymentProvider.Code, appErrors.ErrPaymentProvider.Status, appErrors.ErrPaymentProvider.Message)
	}
	if session.Status != gateway.SessionStatusPaid {
		return nil, appErrors.ErrPaymentNotSettled
	}

	won, err := s.transactions.MarkCompleted(ctx, txn.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete transaction")
	}
	if !won {
		// A concurrent delivery settled it first; re-read the winner's row.
		return s.transactions.FindByID(ctx, txn.ID)
	}

	s.logger.Info("payment confirmed",
		zap.String("transaction_id", txn.ID),
		zap.String("session_id", sessionID),
		zap.Float64("amount", txn.Amount))

	if _, err := s.enroller.Enroll(ctx, txn.UserID, txn.CourseID); err != nil {
		// Settlement stands; the student can retry enrolling explicitly.
		s.logger.Error("post-payment enrollment failed",
			zap.String("transaction_id", txn.ID),
			zap.Error(err))
	}
	s.sendReceipt(ctx, txn)

	return s.transactions.FindByID(ctx, txn.ID)
}

func (s *PaymentService) sendReceipt(ctx context.Context, txn *models.Transaction) {
	if s.notifier == nil {
		return
	}
	user, err := s.users.FindByID(ctx, txn.UserID)
	if err != nil {
		s.logger.Warn("receipt email skipped", zap.String("transaction_id", txn.ID), zap.Error(err))
		return
	}
	title := txn.CourseID
	if course, err := s.courses.FindByID(ctx, txn.CourseID); err == nil {
		title = course.Title
	}
	s.notifier.Send(EventPaymentReceipt, Recipient{Email: user.Email, Name: user.Name}, map[string]string{
		"course_title":   title,
		"amount":         formatAmount(txn.Amount),
		"currency":       txn.Currency,
		"transaction_id": txn.ID,
	})
}

// Refund returns the full charge when the policy allows it: the transaction
// must be completed, unrefunded, at most 30 days old, and the linked
// enrollment under 30% progress.
func (s *PaymentService) Refund(ctx context.Context, transactionID, userID string, req RefundRequest) (*models.Transaction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refund payload")
	}

	txn, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "transaction not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transaction")
	}
	if txn.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "transaction belongs to another user")
	}
	if txn.IsRefunded() {
		return nil, appErrors.Clone(appErrors.ErrRefundNotEligible, "transaction already refunded")
	}
	if !txn.IsCompleted() {
		return nil, appErrors.Clone(appErrors.ErrRefundNotEligible, "only completed transactions can be refunded")
	}
	if time.Since(txn.CreatedAt) > models.RefundWindowDays*24*time.Hour {
		return nil, appErrors.Clone(appErrors.ErrRefundNotEligible, "refund window has closed")
	}
	if enrollment, err := s.enrollments.FindByUserAndCourse(ctx, txn.UserID, txn.CourseID); err == nil {
		if enrollment.ProgressPercentage >= models.RefundProgressLimit {
			return nil, appErrors.Clone(appErrors.ErrRefundNotEligible, "too much of the course has been completed")
		}
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if txn.PaymentSessionID == nil {
		return nil, appErrors.Clone(appErrors.ErrRefundNotEligible, "transaction has no provider session")
	}
	if err := s.provider.Refund(ctx, *txn.PaymentSessionID, txn.Amount); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPaymentProvider.Code, appErrors.ErrPaymentProvider.Status, appErrors.ErrPaymentProvider.Message)
	}

	won, err := s.transactions.MarkRefunded(ctx, txn.ID, req.Reason, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record refund")
	}
	if !won {
		return nil, appErrors.Clone(appErrors.ErrRefundNotEligible, "transaction already refunded")
	}

	s.logger.Info("refund processed",
		zap.String("transaction_id", txn.ID),
		zap.Float64("amount", txn.Amount))
	s.sendRefundNotice(ctx, txn)

	return s.transactions.FindByID(ctx, txn.ID)
}

func (s *PaymentService) sendRefundNotice(ctx context.Context, txn *models.Transaction) {
	if s.notifier == nil {
		return
	}
	user, err := s.users.FindByID(ctx, txn.UserID)
	if err != nil {
		s.logger.Warn("refund email skipped", zap.String("transaction_id", txn.ID), zap.Error(err))
		return
	}
	title := txn.CourseID
	if course, err := s.courses.FindByID(ctx, txn.CourseID); err == nil {
		title = course.Title
	}
	s.notifier.Send(EventRefundProcessed, Recipient{Email: user.Email, Name: user.Name}, map[string]string{
		"course_title": title,
		"amount":       formatAmount(txn.Amount),
		"currency":     txn.Currency,
	})
}

// ListByUser pages through the caller's ledger.
func (s *PaymentService) ListByUser(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, int, error) {
	txns, total, err := s.transactions.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list transactions")
	}
	return txns, total, nil
}
