package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

// videoCompletionRatio is the watched share of a lesson's duration at which
// the lesson counts as finished without an explicit complete call.
const videoCompletionRatio = 0.95

type progressRepo interface {
	FindByEnrollmentAndLesson(ctx context.Context, enrollmentID, lessonID string) (*models.LessonProgress, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.LessonProgress, error)
	UpsertPosition(ctx context.Context, enrollmentID, lessonID string, position int) (*models.LessonProgress, error)
	MarkComplete(ctx context.Context, enrollmentID, lessonID string, completedAt time.Time) (bool, error)
	CountCompleted(ctx context.Context, enrollmentID string) (int, error)
}

type enrollmentProgressWriter interface {
	UpdateProgress(ctx context.Context, id string, percentage float64, isCompleted bool) error
	MarkCompleted(ctx context.Context, id string, percentage float64, completedAt time.Time) (bool, error)
}

type lessonReader interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	CourseIDForLesson(ctx context.Context, lessonID string) (string, error)
}

type lessonCounter interface {
	CountLessons(ctx context.Context, courseID string) (int, error)
}

type certificateIssuer interface {
	Issue(ctx context.Context, enrollment *models.Enrollment) (*models.Certificate, error)
}

// ProgressService tracks per-lesson progress and keeps the enrollment
// aggregate in step. The enrollment completion transition fires exactly once
// regardless of how many updates race over the threshold, and it is the
// single trigger for certificate issuance.
type ProgressService struct {
	progress     progressRepo
	enrollments  enrollmentProgressWriter
	lessons      lessonReader
	courses      lessonCounter
	certificates certificateIssuer
	logger       *zap.Logger
}

// NewProgressService constructs ProgressService.
func NewProgressService(progress progressRepo, enrollments enrollmentProgressWriter, lessons lessonReader, courses lessonCounter, certificates certificateIssuer, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		progress:     progress,
		enrollments:  enrollments,
		lessons:      lessons,
		courses:      courses,
		certificates: certificates,
		logger:       logger,
	}
}

// lessonInCourse loads the lesson and checks it belongs to the enrollment's
// course.
func (s *ProgressService) lessonInCourse(ctx context.Context, enrollment *models.Enrollment, lessonID string) (*models.Lesson, error) {
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	courseID, err := s.lessons.CourseIDForLesson(ctx, lessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lesson course")
	}
	if courseID != enrollment.CourseID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson does not belong to this course")
	}
	return lesson, nil
}

// UpdatePosition records a playback position, clamped to the lesson's
// duration. Crossing the completion ratio of a known duration marks the
// lesson complete in the same call.
func (s *ProgressService) UpdatePosition(ctx context.Context, enrollment *models.Enrollment, lessonID string, position int) (*models.LessonProgress, error) {
	lesson, err := s.lessonInCourse(ctx, enrollment, lessonID)
	if err != nil {
		return nil, err
	}

	if position < 0 {
		position = 0
	}
	if lesson.Duration > 0 && position > lesson.Duration {
		position = lesson.Duration
	}

	progress, err := s.progress.UpsertPosition(ctx, enrollment.ID, lessonID, position)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record position")
	}

	if lesson.Duration > 0 && float64(progress.VideoPosition) >= videoCompletionRatio*float64(lesson.Duration) && !progress.IsCompleted {
		if err := s.completeLesson(ctx, enrollment, lessonID); err != nil {
			return nil, err
		}
		refreshed, err := s.progress.FindByEnrollmentAndLesson(ctx, enrollment.ID, lessonID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress")
		}
		return refreshed, nil
	}
	return progress, nil
}

// MarkComplete explicitly completes a lesson for the enrollment.
func (s *ProgressService) MarkComplete(ctx context.Context, enrollment *models.Enrollment, lessonID string) (*models.LessonProgress, error) {
	if _, err := s.lessonInCourse(ctx, enrollment, lessonID); err != nil {
		return nil, err
	}
	if err := s.completeLesson(ctx, enrollment, lessonID); err != nil {
		return nil, err
	}
	progress, err := s.progress.FindByEnrollmentAndLesson(ctx, enrollment.ID, lessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress")
	}
	return progress, nil
}

// completeLesson flips the lesson row and, when this caller wins the
// transition, recalculates the enrollment aggregate. Losing the race means
// another update already recalculated.
func (s *ProgressService) completeLesson(ctx context.Context, enrollment *models.Enrollment, lessonID string) error {
	won, err := s.progress.MarkComplete(ctx, enrollment.ID, lessonID, time.Now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete lesson")
	}
	if !won {
		return nil
	}
	s.logger.Debug("lesson completed",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("lesson_id", lessonID))
	_, err = s.Recalculate(ctx, enrollment)
	return err
}

// Recalculate rebuilds the enrollment's aggregate from the lesson rows.
// A course with no lessons stays at zero percent, incomplete. The
// completion transition is guarded so completed_at is written once and the
// certificate issued by exactly one caller.
func (s *ProgressService) Recalculate(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error) {
	total, err := s.courses.CountLessons(ctx, enrollment.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lessons")
	}
	if total == 0 {
		if err := s.enrollments.UpdateProgress(ctx, enrollment.ID, 0, false); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update progress")
		}
		enrollment.ProgressPercentage = 0
		enrollment.IsCompleted = false
		return enrollment, nil
	}

	completed, err := s.progress.CountCompleted(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count completed lessons")
	}
	percentage := round2(100 * float64(completed) / float64(total))

	if completed >= total {
		now := time.Now().UTC()
		won, err := s.enrollments.MarkCompleted(ctx, enrollment.ID, percentage, now)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete enrollment")
		}
		enrollment.ProgressPercentage = percentage
		enrollment.IsCompleted = true
		if enrollment.CompletedAt == nil {
			enrollment.CompletedAt = &now
		}
		if won {
			s.logger.Info("course completed",
				zap.String("enrollment_id", enrollment.ID),
				zap.String("course_id", enrollment.CourseID))
			if s.certificates != nil {
				if _, err := s.certificates.Issue(ctx, enrollment); err != nil {
					// Issue is idempotent; a later retry can repair this.
					s.logger.Error("certificate issuance failed",
						zap.String("enrollment_id", enrollment.ID),
						zap.Error(err))
				}
			}
		}
		return enrollment, nil
	}

	if err := s.enrollments.UpdateProgress(ctx, enrollment.ID, percentage, false); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update progress")
	}
	enrollment.ProgressPercentage = percentage
	enrollment.IsCompleted = false
	return enrollment, nil
}

// Summary assembles the per-lesson rows and the aggregate for one
// enrollment.
func (s *ProgressService) Summary(ctx context.Context, enrollment *models.Enrollment) (*models.ProgressSummary, error) {
	rows, err := s.progress.ListByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list progress")
	}
	total, err := s.courses.CountLessons(ctx, enrollment.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lessons")
	}
	completed := 0
	for _, row := range rows {
		if row.IsCompleted {
			completed++
		}
	}
	return &models.ProgressSummary{
		EnrollmentID:       enrollment.ID,
		ProgressPercentage: enrollment.ProgressPercentage,
		IsCompleted:        enrollment.IsCompleted,
		CompletedAt:        enrollment.CompletedAt,
		TotalLessons:       total,
		CompletedLessons:   completed,
		Lessons:            rows,
	}, nil
}
