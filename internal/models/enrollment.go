package models

import "time"

// Enrollment grants a student access to a course and tracks aggregate
// completion. At most one row exists per (user, course) pair; enrolling
// twice returns the original row.
type Enrollment struct {
	ID                 string     `db:"id" json:"id"`
	UserID             string     `db:"user_id" json:"user_id"`
	CourseID           string     `db:"course_id" json:"course_id"`
	EnrolledAt         time.Time  `db:"enrolled_at" json:"enrolled_at"`
	LastAccessedAt     time.Time  `db:"last_accessed_at" json:"last_accessed_at"`
	ProgressPercentage float64    `db:"progress_percentage" json:"progress_percentage"`
	IsCompleted        bool       `db:"is_completed" json:"is_completed"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with course info for listings.
type EnrollmentDetail struct {
	Enrollment
	CourseTitle    string  `db:"course_title" json:"course_title"`
	CoursePrice    float64 `db:"course_price" json:"course_price"`
	InstructorName string  `db:"instructor_name" json:"instructor_name"`
}

// EnrollmentFilter provides filters for listing a student's enrollments.
type EnrollmentFilter struct {
	UserID      string
	IsCompleted *bool
	Page        int
	PageSize    int
}

// LessonProgress is the per-lesson completion and playback state within an
// enrollment. is_completed transitions false->true exactly once.
type LessonProgress struct {
	ID            string     `db:"id" json:"id"`
	EnrollmentID  string     `db:"enrollment_id" json:"enrollment_id"`
	LessonID      string     `db:"lesson_id" json:"lesson_id"`
	IsCompleted   bool       `db:"is_completed" json:"is_completed"`
	VideoPosition int        `db:"video_position" json:"video_position"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// ProgressSummary aggregates an enrollment's lesson progress for the UI.
type ProgressSummary struct {
	EnrollmentID       string           `json:"enrollment_id"`
	ProgressPercentage float64          `json:"progress_percentage"`
	IsCompleted        bool             `json:"is_completed"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	TotalLessons       int              `json:"total_lessons"`
	CompletedLessons   int              `json:"completed_lessons"`
	Lessons            []LessonProgress `json:"lessons"`
}
