package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillforge/skillforge-api/internal/models"
)

// QuizRepository handles quizzes, their questions and graded attempts.
type QuizRepository struct {
	db *sqlx.DB
}

// NewQuizRepository constructs the repository.
func NewQuizRepository(db *sqlx.DB) *QuizRepository {
	return &QuizRepository{db: db}
}

// CreateQuiz inserts a quiz with its questions in one transaction.
func (r *QuizRepository) CreateQuiz(ctx context.Context, quiz *models.Quiz, questions []models.Question) error {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	quiz.CreatedAt = now
	quiz.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin quiz tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO quizzes (id, lesson_id, title, passing_score, allow_retake, created_at, updated_at)
        VALUES (:id, :lesson_id, :title, :passing_score, :allow_retake, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, quiz); err != nil {
		return fmt.Errorf("create quiz: %w", err)
	}
	if err := insertQuestions(ctx, tx, quiz.ID, questions); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit quiz tx: %w", err)
	}
	return nil
}

// UpdateQuiz rewrites the quiz metadata and, when questions are given,
// replaces the whole question set. Past attempts keep their recorded scores.
func (r *QuizRepository) UpdateQuiz(ctx context.Context, quiz *models.Quiz, questions []models.Question) error {
	quiz.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin quiz tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const update = `UPDATE quizzes SET title = :title, passing_score = :passing_score, allow_retake = :allow_retake, updated_at = :updated_at
        WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, update, quiz); err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	if questions != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM quiz_questions WHERE quiz_id = $1`, quiz.ID); err != nil {
			return fmt.Errorf("clear quiz questions: %w", err)
		}
		if err := insertQuestions(ctx, tx, quiz.ID, questions); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit quiz tx: %w", err)
	}
	return nil
}

func insertQuestions(ctx context.Context, tx *sqlx.Tx, quizID string, questions []models.Question) error {
	const insert = `INSERT INTO quiz_questions (id, quiz_id, question_text, question_type, options, correct_answer, explanation, position)
        VALUES (:id, :quiz_id, :question_text, :question_type, :options, :correct_answer, :explanation, :position)`
	for i := range questions {
		q := &questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		q.QuizID = quizID
		q.Position = i + 1
		if _, err := tx.NamedExecContext(ctx, insert, q); err != nil {
			return fmt.Errorf("insert quiz question: %w", err)
		}
	}
	return nil
}

// FindByID returns a quiz by ID.
func (r *QuizRepository) FindByID(ctx context.Context, id string) (*models.Quiz, error) {
	const query = `SELECT id, lesson_id, title, passing_score, allow_retake, created_at, updated_at
        FROM quizzes WHERE id = $1`
	var quiz models.Quiz
	if err := r.db.GetContext(ctx, &quiz, query, id); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// FindByLessonID returns the quiz attached to a lesson.
func (r *QuizRepository) FindByLessonID(ctx context.Context, lessonID string) (*models.Quiz, error) {
	const query = `SELECT id, lesson_id, title, passing_score, allow_retake, created_at, updated_at
        FROM quizzes WHERE lesson_id = $1`
	var quiz models.Quiz
	if err := r.db.GetContext(ctx, &quiz, query, lessonID); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// ListQuestions returns the quiz's questions in display order, including the
// correct answers. Callers decide what the student gets to see.
func (r *QuizRepository) ListQuestions(ctx context.Context, quizID string) ([]models.Question, error) {
	const query = `SELECT id, quiz_id, question_text, question_type, options, correct_answer, explanation, position
        FROM quiz_questions WHERE quiz_id = $1 ORDER BY position ASC`
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, quizID); err != nil {
		return nil, fmt.Errorf("list quiz questions: %w", err)
	}
	return questions, nil
}

// CountAttempts returns how many attempts the enrollment has made on the quiz.
func (r *QuizRepository) CountAttempts(ctx context.Context, enrollmentID, quizID string) (int, error) {
	const query = `SELECT COUNT(*) FROM quiz_attempts WHERE enrollment_id = $1 AND quiz_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, enrollmentID, quizID); err != nil {
		return 0, fmt.Errorf("count quiz attempts: %w", err)
	}
	return count, nil
}

// CreateAttempt records a graded attempt.
func (r *QuizRepository) CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.SubmittedAt.IsZero() {
		attempt.SubmittedAt = time.Now().UTC()
	}

	const query = `INSERT INTO quiz_attempts (id, enrollment_id, quiz_id, attempt_number, answers, score, is_passed, submitted_at)
        VALUES (:id, :enrollment_id, :quiz_id, :attempt_number, :answers, :score, :is_passed, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("create quiz attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the enrollment's attempts on a quiz, oldest first.
func (r *QuizRepository) ListAttempts(ctx context.Context, enrollmentID, quizID string) ([]models.QuizAttempt, error) {
	const query = `SELECT id, enrollment_id, quiz_id, attempt_number, answers, score, is_passed, submitted_at
        FROM quiz_attempts WHERE enrollment_id = $1 AND quiz_id = $2 ORDER BY attempt_number ASC`
	var attempts []models.QuizAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, enrollmentID, quizID); err != nil {
		return nil, fmt.Errorf("list quiz attempts: %w", err)
	}
	return attempts, nil
}
