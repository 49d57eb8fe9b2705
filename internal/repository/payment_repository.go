package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/academia-platform/academia-api/internal/models"
)

// PaymentRepository handles persistence of payment plans and installments.
// Partial updates go through models.InstallmentPatch so the engine never
// assembles SQL from request fields.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// ext returns the transaction carried by ctx, or the pool.
func (r *PaymentRepository) ext(ctx context.Context) sqlx.ExtContext {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return r.db
}

// CreatePlan persists a payment plan for an enrollment.
func (r *PaymentRepository) CreatePlan(ctx context.Context, plan *models.PaymentPlan) error {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO payment_plans (id, enrollment_id, total_amount, installments, created_at)
        VALUES (:id, :enrollment_id, :total_amount, :installments, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, plan); err != nil {
		return fmt.Errorf("create payment plan: %w", err)
	}
	return nil
}

// CreateInstallment persists one installment of a plan.
func (r *PaymentRepository) CreateInstallment(ctx context.Context, installment *models.Installment) error {
	if installment.ID == "" {
		installment.ID = uuid.NewString()
	}
	if installment.Status == "" {
		installment.Status = models.InstallmentStatusPending
	}
	const query = `INSERT INTO installments (id, payment_plan_id, installment_number, due_date, amount, status, voucher_url, rejection_reason, paid_at)
        VALUES (:id, :payment_plan_id, :installment_number, :due_date, :amount, :status, :voucher_url, :rejection_reason, :paid_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, installment); err != nil {
		return fmt.Errorf("create installment: %w", err)
	}
	return nil
}

// FindInstallmentDetail joins an installment through to its enrollment and
// student, confirming the installment exists.
func (r *PaymentRepository) FindInstallmentDetail(ctx context.Context, installmentID string) (*models.InstallmentDetail, error) {
	const query = `SELECT i.id, i.payment_plan_id, i.installment_number, i.due_date, i.amount, i.status, i.voucher_url, i.rejection_reason, i.paid_at,
            pp.enrollment_id, e.enrollment_type, e.status AS enrollment_status, e.student_id,
            s.first_name, s.last_name, s.dni,
            COALESCE(c.name, p.name) AS item_name
        FROM installments i
        JOIN payment_plans pp ON i.payment_plan_id = pp.id
        JOIN enrollments e ON pp.enrollment_id = e.id
        LEFT JOIN students s ON e.student_id = s.id
        LEFT JOIN course_offerings co ON e.course_offering_id = co.id
        LEFT JOIN courses c ON co.course_id = c.id
        LEFT JOIN package_offerings po ON e.package_offering_id = po.id
        LEFT JOIN packages p ON po.package_id = p.id
        WHERE i.id = $1`
	var detail models.InstallmentDetail
	if err := sqlx.GetContext(ctx, r.ext(ctx), &detail, query, installmentID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ApplyPatch updates the optional installment fields present in the patch.
func (r *PaymentRepository) ApplyPatch(ctx context.Context, installmentID string, patch models.InstallmentPatch) error {
	var sets []string
	var args []interface{}

	add := func(expr string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if patch.Status != nil {
		add("status = $%d", *patch.Status)
	}
	if patch.ClearVoucherURL {
		sets = append(sets, "voucher_url = NULL")
	} else if patch.VoucherURL != nil {
		add("voucher_url = $%d", *patch.VoucherURL)
	}
	if patch.ClearRejectionReason {
		sets = append(sets, "rejection_reason = NULL")
	} else if patch.RejectionReason != nil {
		add("rejection_reason = $%d", *patch.RejectionReason)
	}
	if patch.PaidAt != nil {
		add("paid_at = $%d", *patch.PaidAt)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, installmentID)
	query := fmt.Sprintf("UPDATE installments SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	if _, err := r.ext(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("patch installment: %w", err)
	}
	return nil
}

// CountUnpaid returns how many installments of a plan are not yet paid.
func (r *PaymentRepository) CountUnpaid(ctx context.Context, paymentPlanID string) (int, error) {
	const query = `SELECT COUNT(*) FROM installments WHERE payment_plan_id = $1 AND status <> $2`
	var count int
	if err := sqlx.GetContext(ctx, r.ext(ctx), &count, query, paymentPlanID, models.InstallmentStatusPaid); err != nil {
		return 0, fmt.Errorf("count unpaid installments: %w", err)
	}
	return count, nil
}

// PaidTotal returns the plan total and the sum already paid.
func (r *PaymentRepository) PaidTotal(ctx context.Context, enrollmentID string) (total, paid float64, err error) {
	const query = `SELECT pp.total_amount,
            COALESCE(SUM(CASE WHEN i.status = 'paid' THEN i.amount ELSE 0 END), 0) AS total_paid
        FROM payment_plans pp
        LEFT JOIN installments i ON i.payment_plan_id = pp.id
        WHERE pp.enrollment_id = $1
        GROUP BY pp.id, pp.total_amount`
	row := struct {
		TotalAmount float64 `db:"total_amount"`
		TotalPaid   float64 `db:"total_paid"`
	}{}
	if err := sqlx.GetContext(ctx, r.ext(ctx), &row, query, enrollmentID); err != nil {
		return 0, 0, err
	}
	return row.TotalAmount, row.TotalPaid, nil
}

// HasPaidOrVoucher reports whether any installment of the enrollment's plan
// is paid or carries a voucher reference.
func (r *PaymentRepository) HasPaidOrVoucher(ctx context.Context, enrollmentID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM installments i
        JOIN payment_plans pp ON i.payment_plan_id = pp.id
        WHERE pp.enrollment_id = $1 AND (i.status = $2 OR i.voucher_url IS NOT NULL)`
	var count int
	if err := sqlx.GetContext(ctx, r.ext(ctx), &count, query, enrollmentID, models.InstallmentStatusPaid); err != nil {
		return false, fmt.Errorf("check enrollment payments: %w", err)
	}
	return count > 0, nil
}

// MarkOverdue flips past-due pending installments to overdue. This is the
// lazy sweep performed inline on ledger reads.
func (r *PaymentRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE installments SET status = $1 WHERE status = $2 AND due_date < $3`
	result, err := r.ext(ctx).ExecContext(ctx, query, models.InstallmentStatusOverdue, models.InstallmentStatusPending, now)
	if err != nil {
		return 0, fmt.Errorf("mark overdue installments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark overdue installments: %w", err)
	}
	return affected, nil
}

// ListInstallments returns the admin ledger. A "rejected" filter selects by
// owning enrollment status; any other value filters the stored status.
func (r *PaymentRepository) ListInstallments(ctx context.Context, statusFilter string) ([]models.InstallmentDetail, error) {
	query := `SELECT i.id, i.payment_plan_id, i.installment_number, i.due_date, i.amount, i.status, i.voucher_url, i.rejection_reason, i.paid_at,
            pp.enrollment_id, e.enrollment_type, e.status AS enrollment_status, e.student_id,
            s.first_name, s.last_name, s.dni,
            COALESCE(c.name, p.name) AS item_name
        FROM installments i
        JOIN payment_plans pp ON i.payment_plan_id = pp.id
        JOIN enrollments e ON pp.enrollment_id = e.id
        LEFT JOIN students s ON e.student_id = s.id
        LEFT JOIN course_offerings co ON e.course_offering_id = co.id
        LEFT JOIN courses c ON co.course_id = c.id
        LEFT JOIN package_offerings po ON e.package_offering_id = po.id
        LEFT JOIN packages p ON po.package_id = p.id`
	var args []interface{}
	if statusFilter != "" {
		if statusFilter == models.InstallmentFilterRejected {
			query += " WHERE e.status = '" + string(models.EnrollmentStatusRechazado) + "'"
		} else {
			query += " WHERE i.status = $1"
			args = append(args, statusFilter)
		}
	}
	query += " ORDER BY i.due_date DESC, i.id"

	var rows []models.InstallmentDetail
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	return rows, nil
}

// ListPendingReview returns installments with an uploaded voucher awaiting
// approval.
func (r *PaymentRepository) ListPendingReview(ctx context.Context) ([]models.InstallmentDetail, error) {
	const query = `SELECT i.id, i.payment_plan_id, i.installment_number, i.due_date, i.amount, i.status, i.voucher_url, i.rejection_reason, i.paid_at,
            pp.enrollment_id, e.enrollment_type, e.status AS enrollment_status, e.student_id,
            s.first_name, s.last_name, s.dni,
            COALESCE(c.name, p.name) AS item_name
        FROM installments i
        JOIN payment_plans pp ON i.payment_plan_id = pp.id
        JOIN enrollments e ON pp.enrollment_id = e.id
        JOIN students s ON e.student_id = s.id
        LEFT JOIN course_offerings co ON e.course_offering_id = co.id
        LEFT JOIN courses c ON co.course_id = c.id
        LEFT JOIN package_offerings po ON e.package_offering_id = po.id
        LEFT JOIN packages p ON po.package_id = p.id
        WHERE i.voucher_url IS NOT NULL AND i.status = $1
        ORDER BY i.due_date`
	var rows []models.InstallmentDetail
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &rows, query, models.InstallmentStatusPending); err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	return rows, nil
}

// PlanByEnrollment returns the plan of an enrollment with the owning student.
func (r *PaymentRepository) PlanByEnrollment(ctx context.Context, enrollmentID string) (*models.PaymentPlanDetail, error) {
	const query = `SELECT pp.id, pp.enrollment_id, pp.total_amount, pp.installments, pp.created_at, e.student_id
        FROM payment_plans pp
        JOIN enrollments e ON pp.enrollment_id = e.id
        WHERE pp.enrollment_id = $1`
	var plan models.PaymentPlanDetail
	if err := sqlx.GetContext(ctx, r.ext(ctx), &plan, query, enrollmentID); err != nil {
		return nil, err
	}
	return &plan, nil
}

// InstallmentsByPlan returns the installments of a plan in schedule order.
func (r *PaymentRepository) InstallmentsByPlan(ctx context.Context, paymentPlanID string) ([]models.Installment, error) {
	const query = `SELECT id, payment_plan_id, installment_number, due_date, amount, status, voucher_url, rejection_reason, paid_at
        FROM installments WHERE payment_plan_id = $1 ORDER BY installment_number`
	var installments []models.Installment
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &installments, query, paymentPlanID); err != nil {
		return nil, fmt.Errorf("list plan installments: %w", err)
	}
	return installments, nil
}

// InstallmentsByEnrollments fetches installments for a set of enrollments,
// keyed by enrollment ID, for student-facing listings.
func (r *PaymentRepository) InstallmentsByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string][]models.Installment, error) {
	result := make(map[string][]models.Installment, len(enrollmentIDs))
	if len(enrollmentIDs) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(enrollmentIDs))
	args := make([]interface{}, len(enrollmentIDs))
	for i, id := range enrollmentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT i.id, i.payment_plan_id, i.installment_number, i.due_date, i.amount, i.status, i.voucher_url, i.rejection_reason, i.paid_at,
            pp.enrollment_id
        FROM installments i
        JOIN payment_plans pp ON i.payment_plan_id = pp.id
        WHERE pp.enrollment_id IN (%s)
        ORDER BY i.installment_number`, strings.Join(placeholders, ","))

	rows, err := r.ext(ctx).QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrollment installments: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var row struct {
			models.Installment
			EnrollmentID string `db:"enrollment_id"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		result[row.EnrollmentID] = append(result[row.EnrollmentID], row.Installment)
	}
	return result, rows.Err()
}
