package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillforge/skillforge-api/internal/models"
)

// TransactionRepository handles purchase transactions.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository constructs the repository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, user_id, course_id, amount, currency, platform_fee, instructor_revenue, payment_method, payment_session_id, status, refunded_at, refund_reason, created_at, updated_at`

// Create inserts a pending transaction with the fee split already frozen.
func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	txn.CreatedAt = now
	txn.UpdatedAt = now

	const query = `INSERT INTO transactions (id, user_id, course_id, amount, currency, platform_fee, instructor_revenue, payment_method, payment_session_id, status, created_at, updated_at)
        VALUES (:id, :user_id, :course_id, :amount, :currency, :platform_fee, :instructor_revenue, :payment_method, :payment_session_id, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, txn); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// FindByID returns a transaction by ID.
func (r *TransactionRepository) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1`, transactionColumns)
	var txn models.Transaction
	if err := r.db.GetContext(ctx, &txn, query, id); err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindBySessionID resolves the transaction a provider webhook refers to.
func (r *TransactionRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE payment_session_id = $1`, transactionColumns)
	var txn models.Transaction
	if err := r.db.GetContext(ctx, &txn, query, sessionID); err != nil {
		return nil, err
	}
	return &txn, nil
}

// SetSessionID attaches the provider session to a freshly created
// transaction once the session exists.
func (r *TransactionRepository) SetSessionID(ctx context.Context, id, sessionID string) error {
	const query = `UPDATE transactions SET payment_session_id = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, sessionID); err != nil {
		return fmt.Errorf("set transaction session: %w", err)
	}
	return nil
}

// ExistsCompleted reports whether the student already paid for the course.
func (r *TransactionRepository) ExistsCompleted(ctx context.Context, userID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM transactions WHERE user_id = $1 AND course_id = $2 AND status = 'completed' LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check completed transaction: %w", err)
	}
	return true, nil
}

// MarkCompleted settles a pending transaction. The status guard makes a
// replayed webhook a no-op: only the first delivery flips the row.
func (r *TransactionRepository) MarkCompleted(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE transactions SET status = 'completed', updated_at = NOW()
        WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("complete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete transaction: %w", err)
	}
	return affected > 0, nil
}

// MarkFailed abandons a pending transaction.
func (r *TransactionRepository) MarkFailed(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE transactions SET status = 'failed', updated_at = NOW()
        WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("fail transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail transaction: %w", err)
	}
	return affected > 0, nil
}

// MarkRefunded moves a completed transaction to refunded, once.
func (r *TransactionRepository) MarkRefunded(ctx context.Context, id, reason string, refundedAt time.Time) (bool, error) {
	const query = `UPDATE transactions SET status = 'refunded', refunded_at = $2, refund_reason = $3, updated_at = NOW()
        WHERE id = $1 AND status = 'completed'`
	res, err := r.db.ExecContext(ctx, query, id, refundedAt, reason)
	if err != nil {
		return false, fmt.Errorf("refund transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("refund transaction: %w", err)
	}
	return affected > 0, nil
}

// List returns a user's transactions newest first.
func (r *TransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, int, error) {
	conditions := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM transactions%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		transactionColumns, clause, size, offset)

	var txns []models.Transaction
	if err := r.db.SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM transactions" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	return txns, total, nil
}
