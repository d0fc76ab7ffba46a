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

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, user_id, course_id, enrolled_at, last_accessed_at, progress_percentage, is_completed, completed_at
        FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByUserAndCourse returns the enrollment for a (student, course) pair.
func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	const query = `SELECT id, user_id, course_id, enrolled_at, last_accessed_at, progress_percentage, is_completed, completed_at
        FROM enrollments WHERE user_id = $1 AND course_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, userID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Exists checks whether the pair is already enrolled.
func (r *EnrollmentRepository) Exists(ctx context.Context, userID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Create inserts the enrollment and bumps the course enrollment counter in
// one transaction. The unique (user_id, course_id) constraint makes the
// insert race-safe: the loser sees created = false and re-reads the winner's
// row, and the counter moves only for the winner.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) (bool, error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	if enrollment.LastAccessedAt.IsZero() {
		enrollment.LastAccessedAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO enrollments (id, user_id, course_id, enrolled_at, last_accessed_at, progress_percentage, is_completed)
        VALUES (:id, :user_id, :course_id, :enrolled_at, :last_accessed_at, :progress_percentage, :is_completed)
        ON CONFLICT (user_id, course_id) DO NOTHING`
	res, err := tx.NamedExecContext(ctx, insert, enrollment)
	if err != nil {
		return false, fmt.Errorf("create enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create enrollment: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	const bump = `UPDATE courses SET total_enrollments = total_enrollments + 1, updated_at = NOW() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, bump, enrollment.CourseID); err != nil {
		return false, fmt.Errorf("increment enrollment counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit enrollment tx: %w", err)
	}
	return true, nil
}

// List returns a student's enrollments with course info.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        LEFT JOIN users u ON u.id = c.instructor_id`
	conditions := []string{"e.user_id = $1"}
	args := []interface{}{filter.UserID}

	if filter.IsCompleted != nil {
		conditions = append(conditions, fmt.Sprintf("e.is_completed = $%d", len(args)+1))
		args = append(args, *filter.IsCompleted)
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 12
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.user_id, e.course_id, e.enrolled_at, e.last_accessed_at,
        e.progress_percentage, e.is_completed, e.completed_at,
        c.title AS course_title, c.price AS course_price, u.name AS instructor_name
        %s ORDER BY e.enrolled_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// TouchLastAccessed records learning activity on the enrollment.
func (r *EnrollmentRepository) TouchLastAccessed(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE enrollments SET last_accessed_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("touch enrollment: %w", err)
	}
	return nil
}

// UpdateProgress writes a recalculated percentage without touching the
// completion transition. completed_at is never modified here.
func (r *EnrollmentRepository) UpdateProgress(ctx context.Context, id string, percentage float64, isCompleted bool) error {
	const query = `UPDATE enrollments SET progress_percentage = $2, is_completed = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, percentage, isCompleted); err != nil {
		return fmt.Errorf("update enrollment progress: %w", err)
	}
	return nil
}

// MarkCompleted performs the one-shot completion transition. The guard on
// is_completed = FALSE means exactly one concurrent caller observes the
// flip; completed_at is preserved once set.
func (r *EnrollmentRepository) MarkCompleted(ctx context.Context, id string, percentage float64, completedAt time.Time) (bool, error) {
	const query = `UPDATE enrollments
        SET progress_percentage = $2, is_completed = TRUE, completed_at = COALESCE(completed_at, $3)
        WHERE id = $1 AND is_completed = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, percentage, completedAt)
	if err != nil {
		return false, fmt.Errorf("mark enrollment completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark enrollment completed: %w", err)
	}
	return affected > 0, nil
}
