package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTransactionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTransactionRepository(db)

	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(sqlmock.AnyArg(), "u1", "c1", 49.99, "USD", 15.0, 34.99, "checkout", "", models.TransactionStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	txn := &models.Transaction{
		UserID:            "u1",
		CourseID:          "c1",
		Amount:            49.99,
		Currency:          "USD",
		PlatformFee:       15.0,
		InstructorRevenue: 34.99,
		PaymentMethod:     "checkout",
		Status:            models.TransactionStatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), txn))
	assert.NotEmpty(t, txn.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepositoryFindBySessionID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTransactionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "course_id", "amount", "currency", "platform_fee", "instructor_revenue", "payment_method", "payment_session_id", "status", "refunded_at", "refund_reason", "created_at", "updated_at"}).
		AddRow("t1", "u1", "c1", 49.99, "USD", 15.0, 34.99, "checkout", "cs_123", "pending", nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM transactions WHERE payment_session_id = $1")).
		WithArgs("cs_123").
		WillReturnRows(rows)

	txn, err := repo.FindBySessionID(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.Equal(t, "t1", txn.ID)
	assert.Equal(t, models.TransactionStatusPending, txn.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepositoryExistsCompleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTransactionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM transactions WHERE user_id = $1 AND course_id = $2 AND status = 'completed' LIMIT 1")).
		WithArgs("u1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.ExistsCompleted(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM transactions WHERE user_id = $1 AND course_id = $2 AND status = 'completed' LIMIT 1")).
		WithArgs("u2", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	exists, err = repo.ExistsCompleted(context.Background(), "u2", "c1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepositoryMarkCompletedOnlyOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTransactionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE transactions SET status = 'completed', updated_at = NOW()")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	flipped, err := repo.MarkCompleted(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, flipped)

	// A replayed webhook finds the status guard closed.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE transactions SET status = 'completed', updated_at = NOW()")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	flipped, err = repo.MarkCompleted(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepositoryMarkRefunded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTransactionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE transactions SET status = 'refunded', refunded_at = $2, refund_reason = $3, updated_at = NOW()")).
		WithArgs("t1", sqlmock.AnyArg(), "not what I expected").
		WillReturnResult(sqlmock.NewResult(0, 1))

	flipped, err := repo.MarkRefunded(context.Background(), "t1", "not what I expected", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, flipped)

	// Pending and already-refunded rows never match the guard.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE transactions SET status = 'refunded', refunded_at = $2, refund_reason = $3, updated_at = NOW()")).
		WithArgs("t2", sqlmock.AnyArg(), "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	flipped, err = repo.MarkRefunded(context.Background(), "t2", "nope", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepositoryListFiltersByStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTransactionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "course_id", "amount", "currency", "platform_fee", "instructor_revenue", "payment_method", "payment_session_id", "status", "refunded_at", "refund_reason", "created_at", "updated_at"}).
		AddRow("t1", "u1", "c1", 49.99, "USD", 15.0, 34.99, "checkout", "cs_123", "completed", nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("u1", models.TransactionStatusCompleted).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND status = $2")).
		WithArgs("u1", models.TransactionStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	txns, total, err := repo.List(context.Background(), models.TransactionFilter{UserID: "u1", Status: models.TransactionStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
