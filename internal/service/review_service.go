package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

type reviewRepo interface {
	Create(ctx context.Context, review *models.Review) error
	FindByID(ctx context.Context, id string) (*models.Review, error)
	Update(ctx context.Context, review *models.Review) error
	Delete(ctx context.Context, id string) error
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Review, error)
	ListByCourse(ctx context.Context, courseID string, page, pageSize int) ([]models.ReviewDetail, int, error)
}

type ratingRefresher interface {
	RefreshRatingAggregates(ctx context.Context, courseID string) error
}

// ReviewRequest is the create/update payload for a course review.
type ReviewRequest struct {
	Rating  int     `json:"rating" validate:"required,gte=1,lte=5"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

// ReviewService lets enrolled students rate courses. The course's
// average_rating and total_reviews are recomputed from the reviews table on
// every write, never incrementally adjusted.
type ReviewService struct {
	reviews     reviewRepo
	enrollments enrollmentFinder
	courses     ratingRefresher
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewReviewService constructs ReviewService.
func NewReviewService(reviews reviewRepo, enrollments enrollmentFinder, courses ratingRefresher, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ReviewService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{
		reviews:     reviews,
		enrollments: enrollments,
		courses:     courses,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// Create records a review by an enrolled student. One review per course per
// student.
func (s *ReviewService) Create(ctx context.Context, userID, courseID string, req ReviewRequest) (*models.Review, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	if _, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrNotEnrolled
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if _, err := s.reviews.FindByUserAndCourse(ctx, userID, courseID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course already reviewed")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check review")
	}

	review := &models.Review{
		UserID:   userID,
		CourseID: courseID,
		Rating:   req.Rating,
		Comment:  req.Comment,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create review")
	}
	s.refreshAggregates(ctx, courseID)
	return review, nil
}

// Update rewrites the caller's review.
func (s *ReviewService) Update(ctx context.Context, reviewID, userID string, req ReviewRequest) (*models.Review, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	review, err := s.ownedReview(ctx, reviewID, userID)
	if err != nil {
		return nil, err
	}

	review.Rating = req.Rating
	review.Comment = req.Comment
	if err := s.reviews.Update(ctx, review); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update review")
	}
	s.refreshAggregates(ctx, review.CourseID)
	return review, nil
}

// Delete removes the caller's review.
func (s *ReviewService) Delete(ctx context.Context, reviewID, userID string) error {
	review, err := s.ownedReview(ctx, reviewID, userID)
	if err != nil {
		return err
	}
	if err := s.reviews.Delete(ctx, review.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete review")
	}
	s.refreshAggregates(ctx, review.CourseID)
	return nil
}

// ListByCourse pages through a course's reviews.
func (s *ReviewService) ListByCourse(ctx context.Context, courseID string, page, pageSize int) ([]models.ReviewDetail, int, error) {
	reviews, total, err := s.reviews.ListByCourse(ctx, courseID, page, pageSize)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviews")
	}
	return reviews, total, nil
}

func (s *ReviewService) ownedReview(ctx context.Context, reviewID, userID string) (*models.Review, error) {
	review, err := s.findByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "review belongs to another student")
	}
	return review, nil
}

func (s *ReviewService) findByID(ctx context.Context, reviewID string) (*models.Review, error) {
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "review not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review")
	}
	return review, nil
}

// refreshAggregates recomputes the course's rating columns and drops its
// cached catalog entry. Best effort on the cache.
func (s *ReviewService) refreshAggregates(ctx context.Context, courseID string) {
	if err := s.courses.RefreshRatingAggregates(ctx, courseID); err != nil {
		s.logger.Error("failed to refresh rating aggregates", zap.String("course_id", courseID), zap.Error(err))
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, "catalog:course:"+courseID)
		_ = s.cache.Invalidate(ctx, "catalog:list:*")
	}
}
