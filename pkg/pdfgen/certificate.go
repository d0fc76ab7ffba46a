package pdfgen

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData carries the fields printed on a completion certificate.
type CertificateData struct {
	StudentName      string
	CourseTitle      string
	InstructorName   string
	IssuedAt         time.Time
	VerificationCode string
	VerifyBaseURL    string
}

// CertificateRenderer renders completion certificates as landscape A4 PDFs.
type CertificateRenderer struct{}

// NewCertificateRenderer constructs a renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{}
}

// Render produces the PDF bytes for a certificate.
func (r *CertificateRenderer) Render(data CertificateData) ([]byte, error) {
	if data.StudentName == "" || data.CourseTitle == "" {
		return nil, fmt.Errorf("certificate requires student and course names")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	// Double border frame.
	pageW, pageH := pdf.GetPageSize()
	pdf.SetLineWidth(1.2)
	pdf.SetDrawColor(26, 54, 93)
	pdf.Rect(8, 8, pageW-16, pageH-16, "D")
	pdf.SetLineWidth(0.3)
	pdf.Rect(11, 11, pageW-22, pageH-22, "D")

	pdf.SetY(35)
	pdf.SetFont("Times", "B", 34)
	pdf.SetTextColor(26, 54, 93)
	pdf.CellFormat(0, 14, "CERTIFICATE OF COMPLETION", "", 1, "C", false, 0, "")

	pdf.Ln(6)
	pdf.SetFont("Times", "", 14)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 8, "This is to certify that", "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Times", "B", 26)
	pdf.SetTextColor(26, 54, 93)
	pdf.CellFormat(0, 12, data.StudentName, "", 1, "C", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Times", "", 14)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 8, "has successfully completed the course", "", 1, "C", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Times", "I", 20)
	pdf.SetTextColor(45, 55, 72)
	pdf.CellFormat(0, 10, data.CourseTitle, "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Times", "", 13)
	pdf.SetTextColor(90, 90, 90)
	line := fmt.Sprintf("on %s", data.IssuedAt.Format("January 2, 2006"))
	if data.InstructorName != "" {
		line = fmt.Sprintf("taught by %s, on %s", data.InstructorName, data.IssuedAt.Format("January 2, 2006"))
	}
	pdf.CellFormat(0, 8, line, "", 1, "C", false, 0, "")

	pdf.SetY(pageH - 45)
	pdf.SetFont("Courier", "B", 11)
	pdf.SetTextColor(26, 54, 93)
	pdf.CellFormat(0, 6, fmt.Sprintf("Verification code: %s", data.VerificationCode), "", 1, "C", false, 0, "")
	if data.VerifyBaseURL != "" {
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(113, 128, 150)
		pdf.CellFormat(0, 5, fmt.Sprintf("Verify at %s/%s", data.VerifyBaseURL, data.VerificationCode), "", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
