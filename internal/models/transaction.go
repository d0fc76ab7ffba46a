package models

import "time"

// TransactionStatus represents the ledger lifecycle of a purchase.
// Transitions are forward-only: pending -> completed -> refunded, with
// pending -> failed for provider errors at session creation.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// PlatformFeeRate is the fixed platform share of every sale. The split is
// computed once at pending-transaction creation and never recomputed.
const PlatformFeeRate = 0.30

// RefundWindowDays bounds how long after purchase a refund may be requested.
const RefundWindowDays = 30

// RefundProgressLimit is the enrollment progress percentage at or above
// which a refund is no longer permitted.
const RefundProgressLimit = 30.0

// Transaction is a ledger entry for one purchase attempt.
type Transaction struct {
	ID                string            `db:"id" json:"id"`
	UserID            string            `db:"user_id" json:"user_id"`
	CourseID          string            `db:"course_id" json:"course_id"`
	Amount            float64           `db:"amount" json:"amount"`
	Currency          string            `db:"currency" json:"currency"`
	PlatformFee       float64           `db:"platform_fee" json:"platform_fee"`
	InstructorRevenue float64           `db:"instructor_revenue" json:"instructor_revenue"`
	PaymentMethod     string            `db:"payment_method" json:"payment_method"`
	PaymentSessionID  *string           `db:"payment_session_id" json:"payment_session_id,omitempty"`
	Status            TransactionStatus `db:"status" json:"status"`
	RefundedAt        *time.Time        `db:"refunded_at" json:"refunded_at,omitempty"`
	RefundReason      *string           `db:"refund_reason" json:"refund_reason,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// IsCompleted reports whether payment has been confirmed.
func (t *Transaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// IsRefunded reports whether the transaction has been refunded.
func (t *Transaction) IsRefunded() bool {
	return t.Status == TransactionStatusRefunded
}

// TransactionFilter lists a user's transactions.
type TransactionFilter struct {
	UserID   string
	Status   TransactionStatus
	Page     int
	PageSize int
}
