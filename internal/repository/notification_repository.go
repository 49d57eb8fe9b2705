package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/academia-platform/academia-api/internal/models"
)

// NotificationRepository persists the audit trail of delivery attempts.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create records one delivery attempt.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, student_id, phone, message, type, status, detail, created_at)
        VALUES (:id, :student_id, :phone, :message, :type, :status, :detail, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByStudent returns delivery attempts for a student, newest first.
func (r *NotificationRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Notification, error) {
	const query = `SELECT id, student_id, phone, message, type, status, detail, created_at
        FROM notifications WHERE student_id = $1 ORDER BY created_at DESC`
	var rows []models.Notification
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return rows, nil
}
