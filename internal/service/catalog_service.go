package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

type catalogRepo interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	UpdateStatus(ctx context.Context, id string, status models.CourseStatus, publishedAt *time.Time) error
	CountLessons(ctx context.Context, courseID string) (int, error)
}

type sectionLister interface {
	ListSections(ctx context.Context, courseID string) ([]models.SectionDetail, error)
}

// CourseContent is the public detail view: course plus curriculum.
type CourseContent struct {
	Course   models.CourseDetail    `json:"course"`
	Sections []models.SectionDetail `json:"sections"`
}

// catalogPage is the cached representation of one browse page.
type catalogPage struct {
	Courses []models.CourseDetail `json:"courses"`
	Total   int                   `json:"total"`
}

// CatalogService serves the published-course storefront and the instructor
// publish lifecycle. Reads are cached; any status flip invalidates the
// course's cached entries.
type CatalogService struct {
	courses  catalogRepo
	lessons  sectionLister
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(courses catalogRepo, lessons sectionLister, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		courses:  courses,
		lessons:  lessons,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Browse lists published courses matching the filter.
func (s *CatalogService) Browse(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	filter.Status = models.CourseStatusPublished

	key := fmt.Sprintf("catalog:list:%s:%s:%v:%d:%d:%s:%s",
		filter.Search, filter.InstructorID, filter.MaxPrice, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
	if s.cache != nil {
		var cached catalogPage
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached.Courses, cached.Total, nil
		}
	}

	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, catalogPage{Courses: courses, Total: total}, s.cacheTTL)
	}
	return courses, total, nil
}

// GetContent returns a published course with its curriculum.
func (s *CatalogService) GetContent(ctx context.Context, courseID string) (*CourseContent, error) {
	key := "catalog:course:" + courseID
	if s.cache != nil {
		var cached CourseContent
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	course, err := s.courses.FindDetailByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.IsPublished() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	sections, err := s.lessons.ListSections(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum")
	}

	content := &CourseContent{Course: *course, Sections: sections}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, content, s.cacheTTL)
	}
	return content, nil
}

// Publish makes an instructor's course purchasable. A course without
// lessons cannot go live.
func (s *CatalogService) Publish(ctx context.Context, instructorID, courseID string) (*models.Course, error) {
	course, err := s.ownedCourse(ctx, instructorID, courseID)
	if err != nil {
		return nil, err
	}
	if course.IsPublished() {
		return course, nil
	}
	lessons, err := s.courses.CountLessons(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lessons")
	}
	if lessons == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course needs at least one lesson before publishing")
	}

	now := time.Now().UTC()
	publishedAt := course.PublishedAt
	if publishedAt == nil {
		publishedAt = &now
	}
	if err := s.courses.UpdateStatus(ctx, courseID, models.CourseStatusPublished, publishedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish course")
	}
	s.invalidate(ctx, courseID)
	s.logger.Info("course published", zap.String("course_id", courseID))

	course.Status = models.CourseStatusPublished
	course.PublishedAt = publishedAt
	return course, nil
}

// Unpublish takes a course off the storefront. Existing enrollments keep
// their access.
func (s *CatalogService) Unpublish(ctx context.Context, instructorID, courseID string) (*models.Course, error) {
	course, err := s.ownedCourse(ctx, instructorID, courseID)
	if err != nil {
		return nil, err
	}
	if course.Status == models.CourseStatusUnpublished {
		return course, nil
	}
	if err := s.courses.UpdateStatus(ctx, courseID, models.CourseStatusUnpublished, course.PublishedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unpublish course")
	}
	s.invalidate(ctx, courseID)
	s.logger.Info("course unpublished", zap.String("course_id", courseID))

	course.Status = models.CourseStatusUnpublished
	return course, nil
}

func (s *CatalogService) ownedCourse(ctx context.Context, instructorID, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.InstructorID != instructorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another instructor")
	}
	return course, nil
}

func (s *CatalogService) invalidate(ctx context.Context, courseID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, "catalog:course:"+courseID)
	_ = s.cache.Invalidate(ctx, "catalog:list:*")
}
