package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/academia-platform/academia-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments. Conflict lookups
// treat every non-cancelado enrollment as active; the uniqueness of active
// (student, offering) pairs is additionally backed by partial unique indexes
// in the schema so concurrent submissions cannot slip past the checks.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ext returns the transaction carried by ctx, or the pool.
func (r *EnrollmentRepository) ext(ctx context.Context) sqlx.ExtContext {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return r.db
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_offering_id, package_offering_id, enrollment_type, status, registered_at, accepted_at
        FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.ext(ctx), &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ActiveCourseEnrollment returns the offering info of an active enrollment
// targeting the exact course offering, or sql.ErrNoRows.
func (r *EnrollmentRepository) ActiveCourseEnrollment(ctx context.Context, studentID, courseOfferingID string) (*models.OfferingInfo, error) {
	const query = `SELECT co.id, c.name, co.group_label, COALESCE(co.price_override, c.base_price) AS price
        FROM enrollments e
        JOIN course_offerings co ON e.course_offering_id = co.id
        JOIN courses c ON co.course_id = c.id
        WHERE e.student_id = $1 AND e.course_offering_id = $2 AND e.status <> $3
        LIMIT 1`
	var info models.OfferingInfo
	if err := sqlx.GetContext(ctx, r.ext(ctx), &info, query, studentID, courseOfferingID, models.EnrollmentStatusCancelado); err != nil {
		return nil, err
	}
	return &info, nil
}

// CourseViaActivePackage returns the course and package names when the course
// offering is reachable through an active package enrollment of the student.
func (r *EnrollmentRepository) CourseViaActivePackage(ctx context.Context, studentID, courseOfferingID string) (*models.CourseViaPackageConflict, error) {
	const query = `SELECT c.name AS course_name, p.name AS package_name, co.group_label
        FROM enrollments e
        JOIN package_offerings po ON e.package_offering_id = po.id
        JOIN packages p ON po.package_id = p.id
        JOIN package_offering_courses poc ON poc.package_offering_id = po.id
        JOIN course_offerings co ON poc.course_offering_id = co.id
        JOIN courses c ON co.course_id = c.id
        WHERE e.student_id = $1 AND e.status <> $2 AND co.id = $3
        LIMIT 1`
	var conflict models.CourseViaPackageConflict
	if err := sqlx.GetContext(ctx, r.ext(ctx), &conflict, query, studentID, models.EnrollmentStatusCancelado, courseOfferingID); err != nil {
		return nil, err
	}
	return &conflict, nil
}

// ActivePackageEnrollment returns the offering info of an active enrollment
// targeting the exact package offering, or sql.ErrNoRows.
func (r *EnrollmentRepository) ActivePackageEnrollment(ctx context.Context, studentID, packageOfferingID string) (*models.OfferingInfo, error) {
	const query = `SELECT po.id, p.name, po.group_label, COALESCE(po.price_override, p.base_price) AS price
        FROM enrollments e
        JOIN package_offerings po ON e.package_offering_id = po.id
        JOIN packages p ON po.package_id = p.id
        WHERE e.student_id = $1 AND e.package_offering_id = $2 AND e.status <> $3
        LIMIT 1`
	var info models.OfferingInfo
	if err := sqlx.GetContext(ctx, r.ext(ctx), &info, query, studentID, packageOfferingID, models.EnrollmentStatusCancelado); err != nil {
		return nil, err
	}
	return &info, nil
}

// ActiveCourseInPackage returns a course offering of the package the student
// is already individually and actively enrolled in, or sql.ErrNoRows.
func (r *EnrollmentRepository) ActiveCourseInPackage(ctx context.Context, studentID, packageOfferingID string) (*models.OfferingInfo, error) {
	const query = `SELECT co.id, c.name, co.group_label, COALESCE(co.price_override, c.base_price) AS price
        FROM package_offering_courses poc
        JOIN course_offerings co ON poc.course_offering_id = co.id
        JOIN courses c ON co.course_id = c.id
        JOIN enrollments e ON e.course_offering_id = co.id
        WHERE poc.package_offering_id = $1 AND e.student_id = $2 AND e.status <> $3
        LIMIT 1`
	var info models.OfferingInfo
	if err := sqlx.GetContext(ctx, r.ext(ctx), &info, query, packageOfferingID, studentID, models.EnrollmentStatusCancelado); err != nil {
		return nil, err
	}
	return &info, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.RegisteredAt.IsZero() {
		enrollment.RegisteredAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPendiente
	}
	const query = `INSERT INTO enrollments (id, student_id, course_offering_id, package_offering_id, enrollment_type, status, registered_at, accepted_at)
        VALUES (:id, :student_id, :course_offering_id, :package_offering_id, :enrollment_type, :status, :registered_at, :accepted_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus updates status and accepted_at for an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, acceptedAt *time.Time) error {
	const query = `UPDATE enrollments SET status = $2, accepted_at = COALESCE($3, accepted_at) WHERE id = $1`
	if _, err := r.ext(ctx).ExecContext(ctx, query, id, status, acceptedAt); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// AcceptPackageCourses flips the course enrollments created for a package
// acceptance to aceptado in one statement.
func (r *EnrollmentRepository) AcceptPackageCourses(ctx context.Context, studentID, packageOfferingID string, acceptedAt time.Time) error {
	const query = `UPDATE enrollments SET status = $1, accepted_at = $2
        WHERE student_id = $3 AND enrollment_type = $4 AND package_offering_id = $5`
	if _, err := r.ext(ctx).ExecContext(ctx, query, models.EnrollmentStatusAceptado, acceptedAt, studentID, models.OfferingTypeCourse, packageOfferingID); err != nil {
		return fmt.Errorf("accept package courses: %w", err)
	}
	return nil
}

// Delete removes an enrollment row. The schema's FK cascade removes its
// payment plan and installments.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.ext(ctx).ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

// FindCascade returns the cascade-created course enrollment for the given
// (student, course offering, package offering tag) triple, or sql.ErrNoRows.
func (r *EnrollmentRepository) FindCascade(ctx context.Context, studentID, courseOfferingID, packageOfferingID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_offering_id, package_offering_id, enrollment_type, status, registered_at, accepted_at
        FROM enrollments
        WHERE student_id = $1 AND course_offering_id = $2 AND package_offering_id = $3`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.ext(ctx), &enrollment, query, studentID, courseOfferingID, packageOfferingID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByStudent returns the student's enrollments with catalog, cycle and
// payment plan context, newest first. Installments are attached separately.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_offering_id, e.package_offering_id, e.enrollment_type, e.status, e.registered_at, e.accepted_at,
            COALESCE(c.name, p.name) AS item_name,
            COALESCE(COALESCE(co.price_override, c.base_price), COALESCE(po.price_override, p.base_price)) AS item_price,
            COALESCE(co.group_label, po.group_label) AS group_label,
            cyc.name AS cycle_name,
            cyc.start_date AS cycle_start_date,
            cyc.end_date AS cycle_end_date,
            pp.id AS payment_plan_id,
            pp.total_amount,
            pp.installments AS total_installments,
            (
              SELECT STRING_AGG(
                       c2.name ||
                       CASE
                         WHEN co2.group_label IS NOT NULL AND co2.group_label <> ''
                           THEN ' (Grupo ' || co2.group_label || ')'
                         ELSE ''
                       END,
                       ', '
                     )
              FROM enrollments e2
              JOIN course_offerings co2 ON e2.course_offering_id = co2.id
              JOIN courses c2 ON co2.course_id = c2.id
              WHERE e2.student_id = e.student_id
                AND e2.enrollment_type = 'course'
                AND e2.status <> 'cancelado'
                AND e2.package_offering_id = e.package_offering_id
            ) AS package_courses_summary
        FROM enrollments e
        LEFT JOIN course_offerings co ON e.course_offering_id = co.id
        LEFT JOIN courses c ON co.course_id = c.id
        LEFT JOIN package_offerings po ON e.package_offering_id = po.id
        LEFT JOIN packages p ON po.package_id = p.id
        LEFT JOIN cycles cyc ON cyc.id = COALESCE(co.cycle_id, po.cycle_id)
        LEFT JOIN payment_plans pp ON pp.enrollment_id = e.id
        WHERE e.student_id = $1
        ORDER BY e.registered_at DESC`
	var details []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &details, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return details, nil
}

// ListAdmin returns every enrollment with student and catalog context.
func (r *EnrollmentRepository) ListAdmin(ctx context.Context) ([]models.AdminEnrollmentRow, error) {
	const query = `SELECT e.id, e.student_id, e.course_offering_id, e.package_offering_id, e.enrollment_type, e.status, e.registered_at, e.accepted_at,
            s.first_name, s.last_name, s.dni,
            COALESCE(c.name, p.name) AS item_name,
            COALESCE(co.group_label, po.group_label) AS group_label,
            cyc.name AS cycle_name
        FROM enrollments e
        JOIN students s ON e.student_id = s.id
        LEFT JOIN course_offerings co ON e.course_offering_id = co.id
        LEFT JOIN courses c ON co.course_id = c.id
        LEFT JOIN package_offerings po ON e.package_offering_id = po.id
        LEFT JOIN packages p ON po.package_id = p.id
        LEFT JOIN cycles cyc ON cyc.id = COALESCE(co.cycle_id, po.cycle_id)
        ORDER BY e.registered_at DESC`
	var rows []models.AdminEnrollmentRow
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &rows, query); err != nil {
		return nil, fmt.Errorf("list admin enrollments: %w", err)
	}
	return rows, nil
}

// ListByOffering groups enrollments of one offering by student.
func (r *EnrollmentRepository) ListByOffering(ctx context.Context, offeringType models.OfferingType, offeringID string, status models.EnrollmentStatus) ([]models.OfferingEnrollmentRow, error) {
	column := "e.course_offering_id"
	if offeringType == models.OfferingTypePackage {
		column = "e.package_offering_id"
	}
	query := fmt.Sprintf(`SELECT
            MIN(e.id) AS enrollment_id,
            e.enrollment_type,
            MIN(e.status) AS status,
            s.id AS student_id, s.first_name, s.last_name, s.dni,
            COALESCE(c.name, p.name) AS item_name
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        LEFT JOIN course_offerings co ON e.course_offering_id = co.id
        LEFT JOIN courses c ON co.course_id = c.id
        LEFT JOIN package_offerings po ON e.package_offering_id = po.id
        LEFT JOIN packages p ON po.package_id = p.id
        WHERE e.enrollment_type = $1 AND e.status = $2 AND %s = $3
        GROUP BY e.enrollment_type, s.id, s.first_name, s.last_name, s.dni, item_name
        ORDER BY s.last_name, s.first_name`, column)
	var rows []models.OfferingEnrollmentRow
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &rows, query, offeringType, status, offeringID); err != nil {
		return nil, fmt.Errorf("list offering enrollments: %w", err)
	}
	return rows, nil
}
