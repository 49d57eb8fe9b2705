package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/academia-platform/academia-api/internal/models"
	"github.com/academia-platform/academia-api/internal/notifier"
	appErrors "github.com/academia-platform/academia-api/pkg/errors"
	"github.com/academia-platform/academia-api/pkg/jobs"
)

// MessageSender delivers a text message to a phone number. Implemented by the
// WhatsApp gateway client; tests substitute their own.
type MessageSender interface {
	Send(ctx context.Context, phone, message string) (*notifier.Result, error)
}

// SessionManager controls the gateway messaging session lifecycle.
type SessionManager interface {
	InitSession(ctx context.Context) (*notifier.Session, error)
	SessionStatus(ctx context.Context) (*notifier.Session, error)
	CloseSession(ctx context.Context) error
}

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByStudent(ctx context.Context, studentID string) ([]models.Notification, error)
}

// NotificationService dispatches parent notifications through a worker queue.
// Delivery is fire-and-forget: the owning transaction never waits on, or
// fails because of, the gateway.
type NotificationService struct {
	sender  MessageSender
	session SessionManager
	repo    notificationRepository
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

type notificationJob struct {
	StudentID string
	Phone     string
	Message   string
	Type      models.NotificationType
}

// NewNotificationService constructs the service and its dispatch queue. Call
// Start before use and Stop on shutdown.
func NewNotificationService(sender MessageSender, session SessionManager, repo notificationRepository, metrics *MetricsService, workers int, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		sender:  sender,
		session: session,
		repo:    repo,
		metrics: metrics,
		logger:  logger,
	}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers: workers,
		Logger:  logger,
	})
	return s
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyParent enqueues a message to a student's parent. Errors are logged,
// never returned: a dropped notification must not fail the caller's
// transaction.
func (s *NotificationService) NotifyParent(studentID, phone, message string, kind models.NotificationType) {
	if phone == "" {
		s.logger.Warn("notification skipped, no parent phone", zap.String("student_id", studentID))
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(kind),
		Payload: notificationJob{StudentID: studentID, Phone: phone, Message: message, Type: kind},
	})
	if err != nil {
		s.logger.Error("failed to enqueue notification", zap.String("student_id", studentID), zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordNotification("dropped")
		}
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationJob)
	if !ok {
		s.logger.Error("invalid notification payload", zap.String("job_id", job.ID))
		return nil
	}

	record := &models.Notification{
		StudentID: payload.StudentID,
		Phone:     payload.Phone,
		Message:   payload.Message,
		Type:      payload.Type,
		Status:    models.NotificationSent,
		CreatedAt: time.Now().UTC(),
	}

	result, err := s.sender.Send(ctx, payload.Phone, payload.Message)
	if err != nil {
		detail := err.Error()
		record.Status = models.NotificationFailed
		record.Detail = &detail
		s.logger.Warn("notification delivery failed",
			zap.String("student_id", payload.StudentID),
			zap.String("type", string(payload.Type)),
			zap.Error(err))
	} else if result != nil && result.Status != "success" {
		record.Status = models.NotificationFailed
		if result.Detail != "" {
			record.Detail = &result.Detail
		}
	}

	if s.metrics != nil {
		s.metrics.RecordNotification(string(record.Status))
	}
	if repoErr := s.repo.Create(ctx, record); repoErr != nil {
		s.logger.Error("failed to record notification", zap.Error(repoErr))
	}
	// Delivery is best-effort; returning nil avoids queue retries for
	// gateway-side rejections already recorded above.
	return nil
}

// History returns the delivery attempts recorded for a student.
func (s *NotificationService) History(ctx context.Context, studentID string) ([]models.Notification, error) {
	rows, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return rows, nil
}

// InitSession starts the gateway session.
func (s *NotificationService) InitSession(ctx context.Context) (*models.SessionStatus, error) {
	session, err := s.session.InitSession(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to init messaging session")
	}
	return &models.SessionStatus{Status: session.Status, LoggedIn: session.LoggedIn, QR: session.QR}, nil
}

// SessionStatus reports the gateway session state.
func (s *NotificationService) SessionStatus(ctx context.Context) (*models.SessionStatus, error) {
	session, err := s.session.SessionStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query messaging session")
	}
	return &models.SessionStatus{Status: session.Status, LoggedIn: session.LoggedIn, QR: session.QR}, nil
}

// CloseSession tears the gateway session down.
func (s *NotificationService) CloseSession(ctx context.Context) error {
	if err := s.session.CloseSession(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close messaging session")
	}
	return nil
}

// SendTest delivers a test message synchronously so admins can verify the
// session.
func (s *NotificationService) SendTest(ctx context.Context, phone string) (*notifier.Result, error) {
	result, err := s.sender.Send(ctx, phone, "Mensaje de prueba desde Academia")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send test message")
	}
	return result, nil
}
