package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/pkg/config"
	"github.com/skillforge/skillforge-api/pkg/jobs"
	"github.com/skillforge/skillforge-api/pkg/mailer"
)

// NotificationEvent identifies an outbound email template.
type NotificationEvent string

const (
	EventStudentEnrolled   NotificationEvent = "student_enrolled"
	EventPaymentReceipt    NotificationEvent = "payment_receipt"
	EventCertificateIssued NotificationEvent = "certificate_issued"
	EventRefundProcessed   NotificationEvent = "refund_processed"
)

// Recipient addresses one notification.
type Recipient struct {
	Email string
	Name  string
}

// NotificationService builds emails and dispatches them through a background
// queue. Send never fails the calling flow: a full queue or a mailer error is
// logged and the notification dropped.
type NotificationService struct {
	mailer  mailer.Mailer
	queue   *jobs.Queue
	enabled bool
	logger  *zap.Logger
}

// NewNotificationService constructs NotificationService and its worker queue.
func NewNotificationService(m mailer.Mailer, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		mailer:  m,
		enabled: cfg.Enabled && m != nil,
		logger:  logger,
	}
	s.queue = jobs.NewQueue("notifications", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: 2,
		Logger:     logger,
	})
	return s
}

// Start launches the mail workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the mail workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Send enqueues the email for an event. Fire and forget.
func (s *NotificationService) Send(event NotificationEvent, to Recipient, data map[string]string) {
	if !s.enabled {
		return
	}
	msg, err := buildMessage(event, to, data)
	if err != nil {
		s.logger.Warn("skipping notification", zap.String("event", string(event)), zap.Error(err))
		return
	}
	job := jobs.Job{Type: string(event), Payload: msg}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("notification queue full, dropping email",
			zap.String("event", string(event)),
			zap.String("to", to.Email))
	}
}

func (s *NotificationService) handleJob(_ context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		s.logger.Error("notification job carries unexpected payload", zap.String("type", job.Type))
		return nil
	}
	if err := s.mailer.Send(msg); err != nil {
		return fmt.Errorf("send %s email: %w", job.Type, err)
	}
	return nil
}

func buildMessage(event NotificationEvent, to Recipient, data map[string]string) (mailer.Message, error) {
	msg := mailer.Message{ToEmail: to.Email, ToName: to.Name}
	switch event {
	case EventStudentEnrolled:
		msg.Subject = fmt.Sprintf("You're enrolled in %s", data["course_title"])
		msg.PlainTextBody = fmt.Sprintf("Hi %s,\n\nYour enrollment in %s is confirmed. Head to your dashboard to start learning.\n", to.Name, data["course_title"])
	case EventPaymentReceipt:
		msg.Subject = fmt.Sprintf("Receipt for %s", data["course_title"])
		msg.PlainTextBody = fmt.Sprintf("Hi %s,\n\nWe received your payment of %s %s for %s.\nTransaction: %s\n", to.Name, data["amount"], data["currency"], data["course_title"], data["transaction_id"])
	case EventCertificateIssued:
		msg.Subject = fmt.Sprintf("Your certificate for %s", data["course_title"])
		msg.PlainTextBody = fmt.Sprintf("Hi %s,\n\nCongratulations on completing %s! Your certificate code is %s.\n", to.Name, data["course_title"], data["verification_code"])
	case EventRefundProcessed:
		msg.Subject = fmt.Sprintf("Refund processed for %s", data["course_title"])
		msg.PlainTextBody = fmt.Sprintf("Hi %s,\n\nYour refund of %s %s for %s has been processed. Funds should arrive within a few business days.\n", to.Name, data["amount"], data["currency"], data["course_title"])
	default:
		return mailer.Message{}, fmt.Errorf("unknown notification event %q", event)
	}
	msg.HTMLBody = "<p>" + msg.PlainTextBody + "</p>"
	return msg, nil
}
