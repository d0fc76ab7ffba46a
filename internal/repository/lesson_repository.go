package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/skillforge/skillforge-api/internal/models"
)

// LessonRepository provides read access to course content structure.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// FindByID returns a lesson by its ID.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	const query = `SELECT id, section_id, title, type, duration, position, is_preview, created_at
        FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// CourseIDForLesson resolves the owning course of a lesson.
func (r *LessonRepository) CourseIDForLesson(ctx context.Context, lessonID string) (string, error) {
	const query = `SELECT s.course_id FROM lessons l
        JOIN sections s ON s.id = l.section_id
        WHERE l.id = $1`
	var courseID string
	if err := r.db.GetContext(ctx, &courseID, query, lessonID); err != nil {
		return "", err
	}
	return courseID, nil
}

// ListSections returns a course's sections with their lessons in order.
func (r *LessonRepository) ListSections(ctx context.Context, courseID string) ([]models.SectionDetail, error) {
	const sectionQuery = `SELECT id, course_id, title, position, created_at
        FROM sections WHERE course_id = $1 ORDER BY position ASC`
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, sectionQuery, courseID); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	if len(sections) == 0 {
		return []models.SectionDetail{}, nil
	}

	const lessonQuery = `SELECT l.id, l.section_id, l.title, l.type, l.duration, l.position, l.is_preview, l.created_at
        FROM lessons l
        JOIN sections s ON s.id = l.section_id
        WHERE s.course_id = $1
        ORDER BY s.position ASC, l.position ASC`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, lessonQuery, courseID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}

	bySection := make(map[string][]models.Lesson, len(sections))
	for _, lesson := range lessons {
		bySection[lesson.SectionID] = append(bySection[lesson.SectionID], lesson)
	}

	details := make([]models.SectionDetail, 0, len(sections))
	for _, section := range sections {
		details = append(details, models.SectionDetail{Section: section, Lessons: bySection[section.ID]})
	}
	return details, nil
}
