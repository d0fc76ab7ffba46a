package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/models"
	"github.com/skillforge/skillforge-api/pkg/config"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
	"github.com/skillforge/skillforge-api/pkg/jobs"
	"github.com/skillforge/skillforge-api/pkg/pdfgen"
)

const verificationCodeBytes = 16 // 32 hex characters

type certificateRepo interface {
	Create(ctx context.Context, cert *models.Certificate) (bool, error)
	FindByEnrollmentID(ctx context.Context, enrollmentID string) (*models.Certificate, error)
	FindByID(ctx context.Context, id string) (*models.Certificate, error)
	FindByCode(ctx context.Context, code string) (*models.CertificateDetail, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	UpdateURL(ctx context.Context, id, url string) error
	ListByUser(ctx context.Context, userID string) ([]models.CertificateDetail, error)
}

type certificateRenderer interface {
	Render(data pdfgen.CertificateData) ([]byte, error)
}

type artifactStore interface {
	Save(filename string, data []byte) (string, error)
}

// CertificateService issues completion certificates and renders their PDF
// artifacts asynchronously. Issuance is idempotent per enrollment.
type CertificateService struct {
	certificates certificateRepo
	courses      courseReader
	users        userReader
	renderer     certificateRenderer
	store        artifactStore
	notifier     notifier
	queue        *jobs.Queue
	cfg          config.CertificatesConfig
	logger       *zap.Logger
}

// NewCertificateService constructs CertificateService and its artifact
// worker queue.
func NewCertificateService(certificates certificateRepo, courses courseReader, users userReader, renderer certificateRenderer, store artifactStore, notify notifier, cfg config.CertificatesConfig, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CertificateService{
		certificates: certificates,
		courses:      courses,
		users:        users,
		renderer:     renderer,
		store:        store,
		notifier:     notify,
		cfg:          cfg,
		logger:       logger,
	}
	s.queue = jobs.NewQueue("certificate-artifacts", s.handleGenerateJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the artifact workers.
func (s *CertificateService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the artifact workers.
func (s *CertificateService) Stop() {
	s.queue.Stop()
}

// Issue creates the certificate for a completed enrollment. Calling it again
// returns the existing certificate; a concurrent duplicate resolves through
// the unique enrollment constraint.
func (s *CertificateService) Issue(ctx context.Context, enrollment *models.Enrollment) (*models.Certificate, error) {
	if !enrollment.IsCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is not completed")
	}

	if existing, err := s.certificates.FindByEnrollmentID(ctx, enrollment.ID); err == nil {
		return existing, nil
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}

	code, err := s.generateCode(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification code")
	}

	cert := &models.Certificate{
		EnrollmentID:     enrollment.ID,
		UserID:           enrollment.UserID,
		CourseID:         enrollment.CourseID,
		VerificationCode: code,
	}
	created, err := s.certificates.Create(ctx, cert)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create certificate")
	}
	if !created {
		existing, err := s.certificates.FindByEnrollmentID(ctx, enrollment.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
		}
		return existing, nil
	}

	s.logger.Info("certificate issued",
		zap.String("certificate_id", cert.ID),
		zap.String("enrollment_id", enrollment.ID))

	if err := s.queue.Enqueue(jobs.Job{Type: "generate", Payload: cert.ID}); err != nil {
		// The row exists without its artifact; a re-issue request re-enqueues.
		s.logger.Error("failed to enqueue certificate artifact", zap.String("certificate_id", cert.ID), zap.Error(err))
	}
	s.notifyIssued(ctx, cert)
	return cert, nil
}

func (s *CertificateService) notifyIssued(ctx context.Context, cert *models.Certificate) {
	if s.notifier == nil {
		return
	}
	user, err := s.users.FindByID(ctx, cert.UserID)
	if err != nil {
		s.logger.Warn("certificate email skipped", zap.String("certificate_id", cert.ID), zap.Error(err))
		return
	}
	title := cert.CourseID
	if course, err := s.courses.FindByID(ctx, cert.CourseID); err == nil {
		title = course.Title
	}
	s.notifier.Send(EventCertificateIssued, Recipient{Email: user.Email, Name: user.Name}, map[string]string{
		"course_title":      title,
		"verification_code": cert.VerificationCode,
	})
}

// generateCode draws a 32-hex-char code, retrying on the vanishingly rare
// collision.
func (s *CertificateService) generateCode(ctx context.Context) (string, error) {
	for {
		buf := make([]byte, verificationCodeBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		code := hex.EncodeToString(buf)
		taken, err := s.certificates.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
}

// handleGenerateJob renders and stores the PDF artifact, then records its
// URL. Re-running overwrites the same file and URL, so retries are safe.
func (s *CertificateService) handleGenerateJob(ctx context.Context, job jobs.Job) error {
	certificateID, ok := job.Payload.(string)
	if !ok {
		s.logger.Error("artifact job carries unexpected payload", zap.String("type", job.Type))
		return nil
	}

	cert, err := s.certificates.FindByID(ctx, certificateID)
	if err != nil {
		return fmt.Errorf("load certificate %s: %w", certificateID, err)
	}

	studentName := cert.UserID
	if user, err := s.users.FindByID(ctx, cert.UserID); err == nil {
		studentName = user.Name
	}
	courseTitle := cert.CourseID
	var instructorName string
	if course, err := s.courses.FindByID(ctx, cert.CourseID); err == nil {
		courseTitle = course.Title
		if instructor, err := s.users.FindByID(ctx, course.InstructorID); err == nil {
			instructorName = instructor.Name
		}
	}

	pdf, err := s.renderer.Render(pdfgen.CertificateData{
		StudentName:      studentName,
		CourseTitle:      courseTitle,
		InstructorName:   instructorName,
		IssuedAt:         cert.IssuedAt,
		VerificationCode: cert.VerificationCode,
		VerifyBaseURL:    s.cfg.PublicBaseURL,
	})
	if err != nil {
		return fmt.Errorf("render certificate %s: %w", certificateID, err)
	}

	filename := cert.VerificationCode + ".pdf"
	if _, err := s.store.Save(filename, pdf); err != nil {
		return fmt.Errorf("store certificate %s: %w", certificateID, err)
	}

	url := strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/certificates/" + filename
	if err := s.certificates.UpdateURL(ctx, cert.ID, url); err != nil {
		return fmt.Errorf("record certificate url %s: %w", certificateID, err)
	}
	s.logger.Info("certificate artifact stored", zap.String("certificate_id", cert.ID))
	return nil
}

// Verify resolves a public verification code.
func (s *CertificateService) Verify(ctx context.Context, code string) (*models.CertificateDetail, error) {
	detail, err := s.certificates.FindByCode(ctx, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify certificate")
	}
	return detail, nil
}

// ListByStudent returns the caller's certificates.
func (s *CertificateService) ListByStudent(ctx context.Context, userID string) ([]models.CertificateDetail, error) {
	certs, err := s.certificates.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}
	return certs, nil
}
