package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-api/internal/models"
)

func TestEnrollmentRepositoryCreateWinner(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "u1", "c1", sqlmock.AnyArg(), sqlmock.AnyArg(), 0.0, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET total_enrollments = total_enrollments + 1, updated_at = NOW() WHERE id = $1")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{UserID: "u1", CourseID: "c1"}
	created, err := repo.Create(context.Background(), enrollment)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, enrollment.ID)
	assert.False(t, enrollment.EnrolledAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateLoserSkipsCounter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// ON CONFLICT DO NOTHING hit an existing row: no counter bump, tx rolls back.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "u1", "c1", sqlmock.AnyArg(), sqlmock.AnyArg(), 0.0, false).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	created, err := repo.Create(context.Background(), &models.Enrollment{UserID: "u1", CourseID: "c1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2 LIMIT 1")).
		WithArgs("u1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	exists, err := repo.Exists(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkCompletedOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND is_completed = FALSE")).
		WithArgs("e1", 100.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	flipped, err := repo.MarkCompleted(context.Background(), "e1", 100, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, flipped)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND is_completed = FALSE")).
		WithArgs("e1", 100.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	flipped, err = repo.MarkCompleted(context.Background(), "e1", 100, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListFiltersCompleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "course_id", "enrolled_at", "last_accessed_at", "progress_percentage", "is_completed", "completed_at", "course_title", "course_price", "instructor_name"}).
		AddRow("e1", "u1", "c1", now, now, 100.0, true, now, "Go From Scratch", 49.99, "Ben")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.user_id = $1 AND e.is_completed = $2 ORDER BY e.enrolled_at DESC LIMIT 12 OFFSET 0")).
		WithArgs("u1", true).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("u1", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	completed := true
	list, total, err := repo.List(context.Background(), models.EnrollmentFilter{UserID: "u1", IsCompleted: &completed})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Go From Scratch", list[0].CourseTitle)
	assert.NoError(t, mock.ExpectationsWereMet())
}
