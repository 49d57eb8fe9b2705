package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment. Values are kept
// in Spanish to match the stored data and the messages shown to users.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPendiente EnrollmentStatus = "pendiente"
	EnrollmentStatusAceptado  EnrollmentStatus = "aceptado"
	EnrollmentStatusRechazado EnrollmentStatus = "rechazado"
	EnrollmentStatusCancelado EnrollmentStatus = "cancelado"
)

// Valid reports whether the status is one of the known values.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPendiente, EnrollmentStatusAceptado, EnrollmentStatusRechazado, EnrollmentStatusCancelado:
		return true
	}
	return false
}

// Enrollment captures a student's claim on exactly one course or package
// offering. Course enrollments created by a package acceptance carry the
// PackageOfferingID grouping tag in addition to their CourseOfferingID.
type Enrollment struct {
	ID                string           `db:"id" json:"id"`
	StudentID         string           `db:"student_id" json:"student_id"`
	CourseOfferingID  *string          `db:"course_offering_id" json:"course_offering_id,omitempty"`
	PackageOfferingID *string          `db:"package_offering_id" json:"package_offering_id,omitempty"`
	Type              OfferingType     `db:"enrollment_type" json:"enrollment_type"`
	Status            EnrollmentStatus `db:"status" json:"status"`
	RegisteredAt      time.Time        `db:"registered_at" json:"registered_at"`
	AcceptedAt        *time.Time       `db:"accepted_at" json:"accepted_at,omitempty"`
}

// OfferingID returns the offering the enrollment targets, course or package.
func (e Enrollment) OfferingID() string {
	if e.Type == OfferingTypePackage && e.PackageOfferingID != nil {
		return *e.PackageOfferingID
	}
	if e.CourseOfferingID != nil {
		return *e.CourseOfferingID
	}
	return ""
}

// EnrollmentItem is one entry of a batch enrollment request.
type EnrollmentItem struct {
	Type       OfferingType `json:"type" validate:"required"`
	OfferingID string       `json:"offering_id" validate:"required"`
}

// CreatedEnrollment reports the rows persisted for one batch item.
type CreatedEnrollment struct {
	EnrollmentID  string `json:"enrollment_id"`
	PaymentPlanID string `json:"payment_plan_id"`
	InstallmentID string `json:"installment_id"`
}

// EnrollmentDetail enriches Enrollment with catalog and payment context for
// student and admin listings.
type EnrollmentDetail struct {
	Enrollment
	ItemName              string        `db:"item_name" json:"item_name"`
	ItemPrice             *float64      `db:"item_price" json:"item_price,omitempty"`
	GroupLabel            *string       `db:"group_label" json:"group_label,omitempty"`
	CycleName             *string       `db:"cycle_name" json:"cycle_name,omitempty"`
	CycleStartDate        *time.Time    `db:"cycle_start_date" json:"cycle_start_date,omitempty"`
	CycleEndDate          *time.Time    `db:"cycle_end_date" json:"cycle_end_date,omitempty"`
	PaymentPlanID         *string       `db:"payment_plan_id" json:"payment_plan_id,omitempty"`
	TotalAmount           *float64      `db:"total_amount" json:"total_amount,omitempty"`
	TotalInstallments     *int          `db:"total_installments" json:"total_installments,omitempty"`
	PackageCoursesSummary *string       `db:"package_courses_summary" json:"package_courses_summary,omitempty"`
	Installments          []Installment `db:"-" json:"installments"`
}

// AdminEnrollmentRow is the admin listing projection.
type AdminEnrollmentRow struct {
	Enrollment
	FirstName  string  `db:"first_name" json:"first_name"`
	LastName   string  `db:"last_name" json:"last_name"`
	DNI        string  `db:"dni" json:"dni"`
	ItemName   string  `db:"item_name" json:"item_name"`
	GroupLabel *string `db:"group_label" json:"group_label,omitempty"`
	CycleName  *string `db:"cycle_name" json:"cycle_name,omitempty"`
}

// CourseViaPackageConflict names a course offering that is reachable through
// an active package enrollment, for conflict messages.
type CourseViaPackageConflict struct {
	CourseName  string  `db:"course_name" json:"course_name"`
	PackageName string  `db:"package_name" json:"package_name"`
	GroupLabel  *string `db:"group_label" json:"group_label,omitempty"`
}

// CourseDisplay renders the conflicting course with its group label.
func (c CourseViaPackageConflict) CourseDisplay() string {
	if c.GroupLabel != nil && *c.GroupLabel != "" {
		return c.CourseName + " (Grupo " + *c.GroupLabel + ")"
	}
	return c.CourseName
}

// OfferingEnrollmentRow groups enrollments of one offering by student.
type OfferingEnrollmentRow struct {
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	Type         OfferingType     `db:"enrollment_type" json:"enrollment_type"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	StudentID    string           `db:"student_id" json:"student_id"`
	FirstName    string           `db:"first_name" json:"first_name"`
	LastName     string           `db:"last_name" json:"last_name"`
	DNI          string           `db:"dni" json:"dni"`
	ItemName     string           `db:"item_name" json:"item_name"`
}
