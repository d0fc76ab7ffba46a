package models

import "time"

// Certificate records a completed enrollment. One per enrollment; immutable
// after creation except for certificate_url, which the artifact worker fills
// in asynchronously.
type Certificate struct {
	ID               string    `db:"id" json:"id"`
	EnrollmentID     string    `db:"enrollment_id" json:"enrollment_id"`
	UserID           string    `db:"user_id" json:"user_id"`
	CourseID         string    `db:"course_id" json:"course_id"`
	VerificationCode string    `db:"verification_code" json:"verification_code"`
	CertificateURL   *string   `db:"certificate_url" json:"certificate_url,omitempty"`
	IssuedAt         time.Time `db:"issued_at" json:"issued_at"`
}

// CertificateDetail enriches Certificate with names for display and for the
// public verification endpoint.
type CertificateDetail struct {
	Certificate
	StudentName    string `db:"student_name" json:"student_name"`
	CourseTitle    string `db:"course_title" json:"course_title"`
	InstructorName string `db:"instructor_name" json:"instructor_name"`
}
