package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// QuestionType enumerates supported question formats.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
)

// Quiz is attached to exactly one lesson.
type Quiz struct {
	ID           string    `db:"id" json:"id"`
	LessonID     string    `db:"lesson_id" json:"lesson_id"`
	Title        string    `db:"title" json:"title"`
	PassingScore float64   `db:"passing_score" json:"passing_score"`
	AllowRetake  bool      `db:"allow_retake" json:"allow_retake"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// QuestionOptions is the JSONB-backed list of answer options.
type QuestionOptions []string

// Value marshals options to JSON for persistence.
func (o QuestionOptions) Value() (driver.Value, error) {
	if o == nil {
		o = QuestionOptions{}
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal question options: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the options slice.
func (o *QuestionOptions) Scan(value interface{}) error {
	if value == nil {
		*o = QuestionOptions{}
		return nil
	}
	data, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("question options: %w", err)
	}
	if len(data) == 0 {
		*o = QuestionOptions{}
		return nil
	}
	if err := json.Unmarshal(data, o); err != nil {
		return fmt.Errorf("unmarshal question options: %w", err)
	}
	return nil
}

// Question holds one prompt with its options and correct answer key.
// Answer matching is exact string equality, case sensitive.
type Question struct {
	ID            string          `db:"id" json:"id"`
	QuizID        string          `db:"quiz_id" json:"quiz_id"`
	QuestionText  string          `db:"question_text" json:"question_text"`
	QuestionType  QuestionType    `db:"question_type" json:"question_type"`
	Options       QuestionOptions `db:"options" json:"options"`
	CorrectAnswer string          `db:"correct_answer" json:"correct_answer,omitempty"`
	Explanation   *string         `db:"explanation" json:"explanation,omitempty"`
	Position      int             `db:"position" json:"position"`
}

// IsCorrect checks a submitted answer against the answer key.
func (q *Question) IsCorrect(answer string) bool {
	return q.CorrectAnswer == answer
}

// AnswerMap records submitted answers keyed by question ID.
type AnswerMap map[string]string

// Value marshals the answer map to JSON for persistence.
func (a AnswerMap) Value() (driver.Value, error) {
	if a == nil {
		a = AnswerMap{}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the answer map.
func (a *AnswerMap) Scan(value interface{}) error {
	if value == nil {
		*a = AnswerMap{}
		return nil
	}
	data, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("answers: %w", err)
	}
	if len(data) == 0 {
		*a = AnswerMap{}
		return nil
	}
	if err := json.Unmarshal(data, a); err != nil {
		return fmt.Errorf("unmarshal answers: %w", err)
	}
	return nil
}

// QuizAttempt is one scored submission, kept verbatim as an audit trail.
type QuizAttempt struct {
	ID            string    `db:"id" json:"id"`
	EnrollmentID  string    `db:"enrollment_id" json:"enrollment_id"`
	QuizID        string    `db:"quiz_id" json:"quiz_id"`
	AttemptNumber int       `db:"attempt_number" json:"attempt_number"`
	Answers       AnswerMap `db:"answers" json:"answers"`
	Score         float64   `db:"score" json:"score"`
	IsPassed      bool      `db:"is_passed" json:"is_passed"`
	SubmittedAt   time.Time `db:"submitted_at" json:"submitted_at"`
}

// QuizEvaluation is the outcome of scoring one answer set.
type QuizEvaluation struct {
	Score        float64 `json:"score"`
	CorrectCount int     `json:"correct_count"`
	TotalCount   int     `json:"total_count"`
	Passed       bool    `json:"passed"`
}

// QuestionResult is the per-question breakdown of a reviewed attempt.
type QuestionResult struct {
	QuestionID    string          `json:"question_id"`
	QuestionText  string          `json:"question_text"`
	QuestionType  QuestionType    `json:"question_type"`
	Options       QuestionOptions `json:"options"`
	StudentAnswer string          `json:"student_answer"`
	CorrectAnswer string          `json:"correct_answer"`
	IsCorrect     bool            `json:"is_correct"`
	Explanation   *string         `json:"explanation,omitempty"`
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}
