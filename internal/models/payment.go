package models

import "time"

// InstallmentStatus is the raw stored status of an installment. Rejection is
// not a stored installment status: it lives on the owning enrollment and is
// surfaced through DisplayStatus.
type InstallmentStatus string

// Possible installment statuses.
const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPaid    InstallmentStatus = "paid"
	InstallmentStatusOverdue InstallmentStatus = "overdue"
)

// InstallmentFilterRejected is accepted by listing endpoints and maps to the
// owning enrollment being rechazado rather than to a stored status.
const InstallmentFilterRejected = "rejected"

// PaymentPlan holds the amount owed for one enrollment.
type PaymentPlan struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	TotalAmount  float64   `db:"total_amount" json:"total_amount"`
	Installments int       `db:"installments" json:"installments"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Installment is one scheduled payment unit of a plan.
type Installment struct {
	ID              string            `db:"id" json:"id"`
	PaymentPlanID   string            `db:"payment_plan_id" json:"payment_plan_id"`
	Number          int               `db:"installment_number" json:"installment_number"`
	DueDate         time.Time         `db:"due_date" json:"due_date"`
	Amount          float64           `db:"amount" json:"amount"`
	Status          InstallmentStatus `db:"status" json:"status"`
	VoucherURL      *string           `db:"voucher_url" json:"voucher_url,omitempty"`
	RejectionReason *string           `db:"rejection_reason" json:"rejection_reason,omitempty"`
	PaidAt          *time.Time        `db:"paid_at" json:"paid_at,omitempty"`
}

// InstallmentPatch enumerates the optional fields a ledger mutation may set.
// Pointer fields are applied when non-nil; Clear flags null out a column.
type InstallmentPatch struct {
	Status               *InstallmentStatus
	VoucherURL           *string
	ClearVoucherURL      bool
	RejectionReason      *string
	ClearRejectionReason bool
	PaidAt               *time.Time
}

// InstallmentDetail joins an installment with its enrollment and student for
// the admin ledger view. StatusUI is the read-time display projection.
type InstallmentDetail struct {
	Installment
	EnrollmentID     string           `db:"enrollment_id" json:"enrollment_id"`
	EnrollmentType   OfferingType     `db:"enrollment_type" json:"enrollment_type"`
	EnrollmentStatus EnrollmentStatus `db:"enrollment_status" json:"enrollment_status"`
	StudentID        string           `db:"student_id" json:"student_id"`
	FirstName        *string          `db:"first_name" json:"first_name,omitempty"`
	LastName         *string          `db:"last_name" json:"last_name,omitempty"`
	DNI              *string          `db:"dni" json:"dni,omitempty"`
	ItemName         *string          `db:"item_name" json:"item_name,omitempty"`
	StatusUI         string           `db:"-" json:"status_ui"`
}

// DisplayStatus projects the UI-facing status from the raw installment status
// and the owning enrollment: a rejected enrollment shows its installments as
// rejected even after their stored status reverted to pending or overdue.
func DisplayStatus(installmentStatus InstallmentStatus, enrollmentStatus EnrollmentStatus) string {
	if enrollmentStatus == EnrollmentStatusRechazado {
		return InstallmentFilterRejected
	}
	return string(installmentStatus)
}

// PaymentPlanDetail adds the owning student for permission checks.
type PaymentPlanDetail struct {
	PaymentPlan
	StudentID string `db:"student_id" json:"student_id"`
}

// PaymentApproval is the result of approving an installment. Cycle dates are
// present only when the approval completed the plan and the enrollment was
// accepted.
type PaymentApproval struct {
	InstallmentID  string     `json:"installment_id"`
	Accepted       bool       `json:"accepted"`
	CycleStartDate *time.Time `json:"cycle_start_date,omitempty"`
	CycleEndDate   *time.Time `json:"cycle_end_date,omitempty"`
}
