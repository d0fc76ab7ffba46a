package service

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/models"
	"github.com/skillforge/skillforge-api/pkg/config"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
	"github.com/skillforge/skillforge-api/pkg/jobs"
	"github.com/skillforge/skillforge-api/pkg/pdfgen"
)

type mockCertRepo struct {
	certs          map[string]*models.Certificate // keyed by ID
	loseCreate     bool
	existingWinner *models.Certificate
}

func (m *mockCertRepo) Create(ctx context.Context, cert *models.Certificate) (bool, error) {
	if m.certs == nil {
		m.certs = make(map[string]*models.Certificate)
	}
	if m.loseCreate {
		if m.existingWinner != nil {
			m.certs[m.existingWinner.ID] = m.existingWinner
		}
		return false, nil
	}
	for _, c := range m.certs {
		if c.EnrollmentID == cert.EnrollmentID {
			return false, nil
		}
	}
	cert.ID = fmt.Sprintf("cert%d", len(m.certs)+1)
	cert.IssuedAt = time.Now().UTC()
	m.certs[cert.ID] = cert
	return true, nil
}

func (m *mockCertRepo) FindByEnrollmentID(ctx context.Context, enrollmentID string) (*models.Certificate, error) {
	for _, c := range m.certs {
		if c.EnrollmentID == enrollmentID {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertRepo) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	if c, ok := m.certs[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertRepo) FindByCode(ctx context.Context, code string) (*models.CertificateDetail, error) {
	for _, c := range m.certs {
		if c.VerificationCode == code {
			return &models.CertificateDetail{Certificate: *c, StudentName: "Ana", CourseTitle: "Go from Scratch"}, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	for _, c := range m.certs {
		if c.VerificationCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCertRepo) UpdateURL(ctx context.Context, id, url string) error {
	if c, ok := m.certs[id]; ok {
		c.CertificateURL = &url
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockCertRepo) ListByUser(ctx context.Context, userID string) ([]models.CertificateDetail, error) {
	var list []models.CertificateDetail
	for _, c := range m.certs {
		if c.UserID == userID {
			list = append(list, models.CertificateDetail{Certificate: *c})
		}
	}
	return list, nil
}

type mockRenderer struct {
	rendered []pdfgen.CertificateData
}

func (m *mockRenderer) Render(data pdfgen.CertificateData) ([]byte, error) {
	m.rendered = append(m.rendered, data)
	return []byte("%PDF-1.4"), nil
}

type mockStore struct {
	saved map[string][]byte
}

func (m *mockStore) Save(filename string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[filename] = data
	return "/tmp/" + filename, nil
}

func newCertificateFixture() (*CertificateService, *mockCertRepo, *mockRenderer, *mockStore, *recordingNotifier) {
	repo := &mockCertRepo{}
	courses := &mockPayCourses{courses: map[string]*models.Course{
		"course1": {ID: "course1", InstructorID: "inst1", Title: "Go from Scratch", Status: models.CourseStatusPublished},
	}}
	users := &mockPayUsers{users: map[string]*models.User{
		"user1": {ID: "user1", Name: "Ana", Email: "ana@example.com"},
		"inst1": {ID: "inst1", Name: "Ben", Email: "ben@example.com"},
	}}
	renderer := &mockRenderer{}
	store := &mockStore{}
	notify := &recordingNotifier{}
	cfg := config.CertificatesConfig{StorageDir: "/tmp", PublicBaseURL: "https://skillforge.dev", WorkerConcurrency: 1, WorkerRetries: 0}
	svc := NewCertificateService(repo, courses, users, renderer, store, notify, cfg, zap.NewNop())
	return svc, repo, renderer, store, notify
}

func jobFor(certificateID string) jobs.Job {
	return jobs.Job{Type: "generate", Payload: certificateID}
}

func completedEnrollment() *models.Enrollment {
	now := time.Now().UTC()
	return &models.Enrollment{ID: "en1", UserID: "user1", CourseID: "course1", ProgressPercentage: 100, IsCompleted: true, CompletedAt: &now}
}

func TestIssueRejectsIncompleteEnrollment(t *testing.T) {
	svc, repo, _, _, _ := newCertificateFixture()

	_, err := svc.Issue(context.Background(), &models.Enrollment{ID: "en1", IsCompleted: false})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))
	assert.Empty(t, repo.certs)
}

func TestIssueGeneratesUniqueCode(t *testing.T) {
	svc, _, _, _, notify := newCertificateFixture()

	cert, err := svc.Issue(context.Background(), completedEnrollment())
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), cert.VerificationCode)
	assert.Equal(t, "en1", cert.EnrollmentID)
	assert.Contains(t, notify.events, EventCertificateIssued)
}

func TestIssueIsIdempotent(t *testing.T) {
	svc, repo, _, _, notify := newCertificateFixture()

	first, err := svc.Issue(context.Background(), completedEnrollment())
	require.NoError(t, err)
	second, err := svc.Issue(context.Background(), completedEnrollment())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.VerificationCode, second.VerificationCode)
	assert.Len(t, repo.certs, 1)
	assert.Len(t, notify.events, 1)
}

func TestIssueLostRaceReturnsWinner(t *testing.T) {
	svc, repo, _, _, notify := newCertificateFixture()
	repo.loseCreate = true
	repo.existingWinner = &models.Certificate{ID: "cert-winner", EnrollmentID: "en1", UserID: "user1", CourseID: "course1", VerificationCode: "deadbeefdeadbeefdeadbeefdeadbeef"}

	cert, err := svc.Issue(context.Background(), completedEnrollment())
	require.NoError(t, err)
	assert.Equal(t, "cert-winner", cert.ID)
	assert.Empty(t, notify.events)
}

func TestArtifactJobStoresPDFAndURL(t *testing.T) {
	svc, repo, renderer, store, _ := newCertificateFixture()

	cert, err := svc.Issue(context.Background(), completedEnrollment())
	require.NoError(t, err)

	err = svc.handleGenerateJob(context.Background(), jobFor(cert.ID))
	require.NoError(t, err)

	require.Len(t, renderer.rendered, 1)
	assert.Equal(t, "Ana", renderer.rendered[0].StudentName)
	assert.Equal(t, "Go from Scratch", renderer.rendered[0].CourseTitle)
	assert.Equal(t, "Ben", renderer.rendered[0].InstructorName)

	filename := cert.VerificationCode + ".pdf"
	assert.Contains(t, store.saved, filename)

	stored := repo.certs[cert.ID]
	require.NotNil(t, stored.CertificateURL)
	assert.Equal(t, "https://skillforge.dev/certificates/"+filename, *stored.CertificateURL)
}

func TestVerifyByCode(t *testing.T) {
	svc, _, _, _, _ := newCertificateFixture()

	cert, err := svc.Issue(context.Background(), completedEnrollment())
	require.NoError(t, err)

	detail, err := svc.Verify(context.Background(), cert.VerificationCode)
	require.NoError(t, err)
	assert.Equal(t, cert.ID, detail.ID)
	assert.Equal(t, "Ana", detail.StudentName)

	_, err = svc.Verify(context.Background(), "unknown-code")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(t, err))
}
