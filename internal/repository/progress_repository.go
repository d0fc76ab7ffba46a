package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillforge/skillforge-api/internal/models"
)

// ProgressRepository handles per-lesson progress rows.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

const progressColumns = `id, enrollment_id, lesson_id, is_completed, video_position, completed_at, updated_at`

// FindByEnrollmentAndLesson returns the progress row for a lesson within an
// enrollment, or sql.ErrNoRows when the lesson has never been touched.
func (r *ProgressRepository) FindByEnrollmentAndLesson(ctx context.Context, enrollmentID, lessonID string) (*models.LessonProgress, error) {
	query := fmt.Sprintf(`SELECT %s FROM lesson_progress WHERE enrollment_id = $1 AND lesson_id = $2`, progressColumns)
	var progress models.LessonProgress
	if err := r.db.GetContext(ctx, &progress, query, enrollmentID, lessonID); err != nil {
		return nil, err
	}
	return &progress, nil
}

// ListByEnrollment returns every progress row for the enrollment.
func (r *ProgressRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.LessonProgress, error) {
	query := fmt.Sprintf(`SELECT %s FROM lesson_progress WHERE enrollment_id = $1 ORDER BY updated_at DESC`, progressColumns)
	var rows []models.LessonProgress
	if err := r.db.SelectContext(ctx, &rows, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list lesson progress: %w", err)
	}
	return rows, nil
}

// UpsertPosition records the furthest playback position for a lesson. The
// GREATEST keeps the position monotonic when updates arrive out of order,
// and a completed row never loses its flag.
func (r *ProgressRepository) UpsertPosition(ctx context.Context, enrollmentID, lessonID string, position int) (*models.LessonProgress, error) {
	query := fmt.Sprintf(`INSERT INTO lesson_progress (id, enrollment_id, lesson_id, is_completed, video_position, updated_at)
        VALUES ($1, $2, $3, FALSE, $4, $5)
        ON CONFLICT (enrollment_id, lesson_id) DO UPDATE
        SET video_position = GREATEST(lesson_progress.video_position, EXCLUDED.video_position),
            updated_at = EXCLUDED.updated_at
        RETURNING %s`, progressColumns)
	var progress models.LessonProgress
	if err := r.db.GetContext(ctx, &progress, query, uuid.NewString(), enrollmentID, lessonID, position, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("upsert lesson position: %w", err)
	}
	return &progress, nil
}

// MarkComplete flips the lesson to completed. The insert path covers lessons
// that were never watched (text lessons, passed quizzes); the conditional
// update makes the transition fire at most once, so the caller can trust the
// returned flag when deciding whether to recount.
func (r *ProgressRepository) MarkComplete(ctx context.Context, enrollmentID, lessonID string, completedAt time.Time) (bool, error) {
	const insert = `INSERT INTO lesson_progress (id, enrollment_id, lesson_id, is_completed, video_position, completed_at, updated_at)
        VALUES ($1, $2, $3, TRUE, 0, $4, $4)
        ON CONFLICT (enrollment_id, lesson_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, insert, uuid.NewString(), enrollmentID, lessonID, completedAt)
	if err != nil {
		return false, fmt.Errorf("mark lesson complete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark lesson complete: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	const update = `UPDATE lesson_progress
        SET is_completed = TRUE, completed_at = COALESCE(completed_at, $3), updated_at = $3
        WHERE enrollment_id = $1 AND lesson_id = $2 AND is_completed = FALSE`
	res, err = r.db.ExecContext(ctx, update, enrollmentID, lessonID, completedAt)
	if err != nil {
		return false, fmt.Errorf("mark lesson complete: %w", err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark lesson complete: %w", err)
	}
	return affected > 0, nil
}

// CountCompleted returns how many lessons the enrollment has completed.
func (r *ProgressRepository) CountCompleted(ctx context.Context, enrollmentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM lesson_progress WHERE enrollment_id = $1 AND is_completed = TRUE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, enrollmentID); err != nil {
		return 0, fmt.Errorf("count completed lessons: %w", err)
	}
	return count, nil
}
