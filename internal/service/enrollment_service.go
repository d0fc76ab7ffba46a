package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

type enrollmentRepo interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) (bool, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	TouchLastAccessed(ctx context.Context, id string, ts time.Time) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type paymentChecker interface {
	ExistsCompleted(ctx context.Context, userID, courseID string) (bool, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// notifier is the outbound email surface services depend on.
type notifier interface {
	Send(event NotificationEvent, to Recipient, data map[string]string)
}

// EnrollmentService grants and reads course access.
type EnrollmentService struct {
	enrollments  enrollmentRepo
	courses      courseReader
	transactions paymentChecker
	users        userReader
	notifier     notifier
	logger       *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(enrollments enrollmentRepo, courses courseReader, transactions paymentChecker, users userReader, notify notifier, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments:  enrollments,
		courses:      courses,
		transactions: transactions,
		users:        users,
		notifier:     notify,
		logger:       logger,
	}
}

// Enroll grants the student access to a course. Enrolling twice is a no-op
// that returns the existing row. Paid courses require a completed
// transaction first.
func (s *EnrollmentService) Enroll(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	if existing, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID); err == nil {
		return existing, nil
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.IsPublished() {
		return nil, appErrors.ErrCourseNotPublished
	}
	if !course.IsFree() {
		paid, err := s.transactions.ExistsCompleted(ctx, userID, courseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check purchase")
		}
		if !paid {
			return nil, appErrors.ErrPaymentRequired
		}
	}

	enrollment := &models.Enrollment{UserID: userID, CourseID: courseID}
	created, err := s.enrollments.Create(ctx, enrollment)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if !created {
		// Lost the race to a concurrent enroll; the winner's row is ours too.
		existing, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		return existing, nil
	}

	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("user_id", userID),
		zap.String("course_id", courseID))
	s.notifyEnrolled(ctx, userID, course)
	return enrollment, nil
}

func (s *EnrollmentService) notifyEnrolled(ctx context.Context, userID string, course *models.Course) {
	if s.notifier == nil {
		return
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Warn("enrollment email skipped", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.notifier.Send(EventStudentEnrolled, Recipient{Email: user.Email, Name: user.Name}, map[string]string{
		"course_title": course.Title,
	})
}

// Get returns an enrollment owned by the caller.
func (s *EnrollmentService) Get(ctx context.Context, enrollmentID, userID string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}
	return enrollment, nil
}

// CheckAccess reports whether the user may consume course content.
func (s *EnrollmentService) CheckAccess(ctx context.Context, userID string, course *models.Course) (bool, error) {
	if !course.IsPublished() {
		return false, nil
	}
	if course.IsFree() {
		return true, nil
	}
	if _, err := s.enrollments.FindByUserAndCourse(ctx, userID, course.ID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check access")
	}
	return true, nil
}

// ListByStudent pages through the caller's enrollments.
func (s *EnrollmentService) ListByStudent(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, total, nil
}

// TouchLastAccessed records learning activity. Best effort.
func (s *EnrollmentService) TouchLastAccessed(ctx context.Context, enrollmentID string) {
	if err := s.enrollments.TouchLastAccessed(ctx, enrollmentID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to touch enrollment", zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
}
