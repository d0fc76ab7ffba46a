package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	rows       map[string]*models.Enrollment // keyed by ID
	loseCreate bool
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.rows[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	for _, e := range m.rows {
		if e.UserID == userID && e.CourseID == courseID {
			return e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) (bool, error) {
	if m.rows == nil {
		m.rows = make(map[string]*models.Enrollment)
	}
	if m.loseCreate {
		// simulate a concurrent winner
		winner := &models.Enrollment{ID: "winner", UserID: enrollment.UserID, CourseID: enrollment.CourseID, EnrolledAt: time.Now().UTC()}
		m.rows[winner.ID] = winner
		return false, nil
	}
	enrollment.ID = fmt.Sprintf("en%d", len(m.rows)+1)
	enrollment.EnrolledAt = time.Now().UTC()
	m.rows[enrollment.ID] = enrollment
	return true, nil
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var list []models.EnrollmentDetail
	for _, e := range m.rows {
		if e.UserID == filter.UserID {
			list = append(list, models.EnrollmentDetail{Enrollment: *e})
		}
	}
	return list, len(list), nil
}

func (m *mockEnrollmentRepo) TouchLastAccessed(ctx context.Context, id string, ts time.Time) error {
	if e, ok := m.rows[id]; ok {
		e.LastAccessedAt = ts
		return nil
	}
	return sql.ErrNoRows
}

func newEnrollmentFixture(price float64, status models.CourseStatus) (*EnrollmentService, *mockEnrollmentRepo, *mockTxnRepo, *recordingNotifier) {
	repo := &mockEnrollmentRepo{}
	courses := &mockPayCourses{courses: map[string]*models.Course{
		"course1": {ID: "course1", InstructorID: "inst1", Title: "Go from Scratch", Price: price, Currency: "USD", Status: status},
	}}
	txns := &mockTxnRepo{}
	users := &mockPayUsers{users: map[string]*models.User{
		"user1": {ID: "user1", Name: "Ana", Email: "ana@example.com"},
	}}
	notify := &recordingNotifier{}
	svc := NewEnrollmentService(repo, courses, txns, users, notify, zap.NewNop())
	return svc, repo, txns, notify
}

func TestEnrollFreeCourse(t *testing.T) {
	svc, repo, _, notify := newEnrollmentFixture(0, models.CourseStatusPublished)

	enrollment, err := svc.Enroll(context.Background(), "user1", "course1")
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.ID)
	assert.Len(t, repo.rows, 1)
	assert.Contains(t, notify.events, EventStudentEnrolled)
}

func TestEnrollPaidCourseRequiresPayment(t *testing.T) {
	svc, repo, txns, _ := newEnrollmentFixture(49.99, models.CourseStatusPublished)

	_, err := svc.Enroll(context.Background(), "user1", "course1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPaymentRequired.Code, errCode(t, err))
	assert.Empty(t, repo.rows)

	txns.txns = map[string]*models.Transaction{
		"txn1": {ID: "txn1", UserID: "user1", CourseID: "course1", Status: models.TransactionStatusCompleted},
	}
	enrollment, err := svc.Enroll(context.Background(), "user1", "course1")
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.ID)
}

func TestEnrollTwiceReturnsExistingRow(t *testing.T) {
	svc, _, _, notify := newEnrollmentFixture(0, models.CourseStatusPublished)

	first, err := svc.Enroll(context.Background(), "user1", "course1")
	require.NoError(t, err)
	second, err := svc.Enroll(context.Background(), "user1", "course1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, notify.events, 1)
}

func TestEnrollLostRaceReturnsWinnerRow(t *testing.T) {
	svc, repo, _, notify := newEnrollmentFixture(0, models.CourseStatusPublished)
	repo.loseCreate = true

	enrollment, err := svc.Enroll(context.Background(), "user1", "course1")
	require.NoError(t, err)
	assert.Equal(t, "winner", enrollment.ID)
	assert.Empty(t, notify.events)
}

func TestEnrollUnpublishedCourse(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture(0, models.CourseStatusDraft)

	_, err := svc.Enroll(context.Background(), "user1", "course1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseNotPublished.Code, errCode(t, err))
}

func TestGetEnforcesOwnership(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(0, models.CourseStatusPublished)
	repo.rows = map[string]*models.Enrollment{
		"en1": {ID: "en1", UserID: "user1", CourseID: "course1"},
	}

	enrollment, err := svc.Get(context.Background(), "en1", "user1")
	require.NoError(t, err)
	assert.Equal(t, "en1", enrollment.ID)

	_, err = svc.Get(context.Background(), "en1", "user2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(t, err))
}

func TestCheckAccess(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(0, models.CourseStatusPublished)

	free := &models.Course{ID: "course1", Price: 0, Status: models.CourseStatusPublished}
	paid := &models.Course{ID: "course2", Price: 30, Status: models.CourseStatusPublished}
	draft := &models.Course{ID: "course3", Price: 0, Status: models.CourseStatusDraft}

	ok, err := svc.CheckAccess(context.Background(), "user1", free)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CheckAccess(context.Background(), "user1", paid)
	require.NoError(t, err)
	assert.False(t, ok)

	repo.rows = map[string]*models.Enrollment{
		"en1": {ID: "en1", UserID: "user1", CourseID: "course2"},
	}
	ok, err = svc.CheckAccess(context.Background(), "user1", paid)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CheckAccess(context.Background(), "user1", draft)
	require.NoError(t, err)
	assert.False(t, ok)
}
