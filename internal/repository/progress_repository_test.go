package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func progressRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "enrollment_id", "lesson_id", "is_completed", "video_position", "completed_at", "updated_at"})
}

func TestProgressRepositoryUpsertPosition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProgressRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SET video_position = GREATEST(lesson_progress.video_position, EXCLUDED.video_position)")).
		WithArgs(sqlmock.AnyArg(), "e1", "l1", 300, sqlmock.AnyArg()).
		WillReturnRows(progressRows().AddRow("p1", "e1", "l1", false, 300, nil, time.Now()))

	progress, err := repo.UpsertPosition(context.Background(), "e1", "l1", 300)
	require.NoError(t, err)
	assert.Equal(t, 300, progress.VideoPosition)
	assert.False(t, progress.IsCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressRepositoryMarkCompleteInsertsFreshRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProgressRepository(db)

	mock.ExpectExec("INSERT INTO lesson_progress").
		WithArgs(sqlmock.AnyArg(), "e1", "l1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	flipped, err := repo.MarkComplete(context.Background(), "e1", "l1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressRepositoryMarkCompleteUpdatesExistingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProgressRepository(db)

	mock.ExpectExec("INSERT INTO lesson_progress").
		WithArgs(sqlmock.AnyArg(), "e1", "l1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("WHERE enrollment_id = $1 AND lesson_id = $2 AND is_completed = FALSE")).
		WithArgs("e1", "l1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	flipped, err := repo.MarkComplete(context.Background(), "e1", "l1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressRepositoryMarkCompleteAlreadyCompleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProgressRepository(db)

	mock.ExpectExec("INSERT INTO lesson_progress").
		WithArgs(sqlmock.AnyArg(), "e1", "l1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("WHERE enrollment_id = $1 AND lesson_id = $2 AND is_completed = FALSE")).
		WithArgs("e1", "l1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	flipped, err := repo.MarkComplete(context.Background(), "e1", "l1", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressRepositoryCountCompleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProgressRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lesson_progress WHERE enrollment_id = $1 AND is_completed = TRUE")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountCompleted(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
