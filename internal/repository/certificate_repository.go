package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillforge/skillforge-api/internal/models"
)

// CertificateRepository handles issued certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create inserts the certificate. The unique enrollment_id constraint makes
// a concurrent duplicate issue a no-op: the loser sees created = false and
// must re-read the winner's row.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) (bool, error) {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = time.Now().UTC()
	}

	const query = `INSERT INTO certificates (id, enrollment_id, user_id, course_id, verification_code, certificate_url, issued_at)
        VALUES (:id, :enrollment_id, :user_id, :course_id, :verification_code, :certificate_url, :issued_at)
        ON CONFLICT (enrollment_id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, cert)
	if err != nil {
		return false, fmt.Errorf("create certificate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create certificate: %w", err)
	}
	return affected > 0, nil
}

// FindByID returns a certificate by ID.
func (r *CertificateRepository) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	const query = `SELECT id, enrollment_id, user_id, course_id, verification_code, certificate_url, issued_at
        FROM certificates WHERE id = $1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, id); err != nil {
		return nil, err
	}
	return &cert, nil
}

// FindByEnrollmentID returns the certificate for an enrollment.
func (r *CertificateRepository) FindByEnrollmentID(ctx context.Context, enrollmentID string) (*models.Certificate, error) {
	const query = `SELECT id, enrollment_id, user_id, course_id, verification_code, certificate_url, issued_at
        FROM certificates WHERE enrollment_id = $1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, enrollmentID); err != nil {
		return nil, err
	}
	return &cert, nil
}

// FindByCode resolves a verification code for the public verify endpoint.
func (r *CertificateRepository) FindByCode(ctx context.Context, code string) (*models.CertificateDetail, error) {
	const query = `SELECT ct.id, ct.enrollment_id, ct.user_id, ct.course_id, ct.verification_code, ct.certificate_url, ct.issued_at,
        u.name AS student_name, c.title AS course_title, COALESCE(i.name, '') AS instructor_name
        FROM certificates ct
        JOIN users u ON u.id = ct.user_id
        JOIN courses c ON c.id = ct.course_id
        LEFT JOIN users i ON i.id = c.instructor_id
        WHERE ct.verification_code = $1`
	var detail models.CertificateDetail
	if err := r.db.GetContext(ctx, &detail, query, code); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CodeExists reports whether a verification code is already taken.
func (r *CertificateRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT 1 FROM certificates WHERE verification_code = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, code); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check verification code: %w", err)
	}
	return true, nil
}

// UpdateURL records the rendered artifact location.
func (r *CertificateRepository) UpdateURL(ctx context.Context, id, url string) error {
	const query = `UPDATE certificates SET certificate_url = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, url); err != nil {
		return fmt.Errorf("update certificate url: %w", err)
	}
	return nil
}

// ListByUser returns a student's certificates newest first.
func (r *CertificateRepository) ListByUser(ctx context.Context, userID string) ([]models.CertificateDetail, error) {
	const query = `SELECT ct.id, ct.enrollment_id, ct.user_id, ct.course_id, ct.verification_code, ct.certificate_url, ct.issued_at,
        u.name AS student_name, c.title AS course_title, COALESCE(i.name, '') AS instructor_name
        FROM certificates ct
        JOIN users u ON u.id = ct.user_id
        JOIN courses c ON c.id = ct.course_id
        LEFT JOIN users i ON i.id = c.instructor_id
        WHERE ct.user_id = $1 ORDER BY ct.issued_at DESC`
	var certs []models.CertificateDetail
	if err := r.db.SelectContext(ctx, &certs, query, userID); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certs, nil
}
