package models

import "time"

// NotificationType classifies outbound parent notifications.
type NotificationType string

// Known notification types.
const (
	NotificationAbsences NotificationType = "absences_3"
	NotificationPayment  NotificationType = "payment"
	NotificationOther    NotificationType = "other"
)

// NotificationStatus records the delivery outcome.
type NotificationStatus string

// Delivery outcomes.
const (
	NotificationSent   NotificationStatus = "sent"
	NotificationFailed NotificationStatus = "failed"
)

// Notification is the audit row persisted for every delivery attempt.
// Delivery itself is fire-and-forget: a failed send is telemetry, never an
// engine failure.
type Notification struct {
	ID        string             `db:"id" json:"id"`
	StudentID string             `db:"student_id" json:"student_id"`
	Phone     string             `db:"phone" json:"phone"`
	Message   string             `db:"message" json:"message"`
	Type      NotificationType   `db:"type" json:"type"`
	Status    NotificationStatus `db:"status" json:"status"`
	Detail    *string            `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}

// SessionStatus describes the messaging gateway session.
type SessionStatus struct {
	Status   string `json:"status"`
	LoggedIn bool   `json:"logged_in"`
	QR       string `json:"qr,omitempty"`
}
