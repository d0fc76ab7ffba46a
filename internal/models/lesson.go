package models

import "time"

// LessonType distinguishes playable from assessed lessons.
type LessonType string

const (
	LessonTypeVideo LessonType = "video"
	LessonTypeText  LessonType = "text"
	LessonTypeQuiz  LessonType = "quiz"
)

// Section groups lessons inside a course.
type Section struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Title     string    `db:"title" json:"title"`
	Position  int       `db:"position" json:"position"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Lesson is a single unit of learning content within a section.
// Duration is in seconds and may be zero when unknown (text lessons, quizzes).
type Lesson struct {
	ID        string     `db:"id" json:"id"`
	SectionID string     `db:"section_id" json:"section_id"`
	Title     string     `db:"title" json:"title"`
	Type      LessonType `db:"type" json:"type"`
	Duration  int        `db:"duration" json:"duration"`
	Position  int        `db:"position" json:"position"`
	IsPreview bool       `db:"is_preview" json:"is_preview"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// SectionDetail bundles a section with its ordered lessons.
type SectionDetail struct {
	Section
	Lessons []Lesson `json:"lessons"`
}
