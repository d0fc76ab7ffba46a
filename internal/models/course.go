package models

import "time"

// CourseStatus represents the publication lifecycle of a course.
type CourseStatus string

// Possible course statuses.
const (
	CourseStatusDraft       CourseStatus = "draft"
	CourseStatusPublished   CourseStatus = "published"
	CourseStatusUnpublished CourseStatus = "unpublished"
)

// Course is a sellable unit of content owned by an instructor.
// Price is frozen for historical purchases: transactions snapshot the amount
// at checkout time and are never re-priced.
type Course struct {
	ID               string       `db:"id" json:"id"`
	InstructorID     string       `db:"instructor_id" json:"instructor_id"`
	Title            string       `db:"title" json:"title"`
	Subtitle         *string      `db:"subtitle" json:"subtitle,omitempty"`
	Description      string       `db:"description" json:"description"`
	Price            float64      `db:"price" json:"price"`
	Currency         string       `db:"currency" json:"currency"`
	Status           CourseStatus `db:"status" json:"status"`
	TotalEnrollments int          `db:"total_enrollments" json:"total_enrollments"`
	AverageRating    float64      `db:"average_rating" json:"average_rating"`
	TotalReviews     int          `db:"total_reviews" json:"total_reviews"`
	PublishedAt      *time.Time   `db:"published_at" json:"published_at,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// IsPublished reports whether the course is visible and purchasable.
func (c *Course) IsPublished() bool {
	return c.Status == CourseStatusPublished
}

// IsFree reports whether the course requires no payment.
func (c *Course) IsFree() bool {
	return c.Price == 0
}

// CourseDetail enriches Course with instructor info.
type CourseDetail struct {
	Course
	InstructorName string `db:"instructor_name" json:"instructor_name"`
}

// CourseFilter provides filters for browsing the catalog.
type CourseFilter struct {
	Search       string
	InstructorID string
	Status       CourseStatus
	MaxPrice     *float64
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
