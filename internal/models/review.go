package models

import "time"

// Review is a student's rating of a course. One per (user, course) pair,
// enforced by a unique constraint.
type Review struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ReviewDetail enriches Review with the reviewer's name.
type ReviewDetail struct {
	Review
	StudentName string `db:"student_name" json:"student_name"`
}
