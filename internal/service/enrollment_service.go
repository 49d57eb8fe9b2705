package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/academia-platform/academia-api/internal/models"
	appErrors "github.com/academia-platform/academia-api/pkg/errors"
)

// installmentDueDays is how far in the future the single installment of a new
// enrollment is due.
const installmentDueDays = 7

type enrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ActiveCourseEnrollment(ctx context.Context, studentID, courseOfferingID string) (*models.OfferingInfo, error)
	CourseViaActivePackage(ctx context.Context, studentID, courseOfferingID string) (*models.CourseViaPackageConflict, error)
	ActivePackageEnrollment(ctx context.Context, studentID, packageOfferingID string) (*models.OfferingInfo, error)
	ActiveCourseInPackage(ctx context.Context, studentID, packageOfferingID string) (*models.OfferingInfo, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, acceptedAt *time.Time) error
	AcceptPackageCourses(ctx context.Context, studentID, packageOfferingID string, acceptedAt time.Time) error
	Delete(ctx context.Context, id string) error
	FindCascade(ctx context.Context, studentID, courseOfferingID, packageOfferingID string) (*models.Enrollment, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	ListAdmin(ctx context.Context) ([]models.AdminEnrollmentRow, error)
	ListByOffering(ctx context.Context, offeringType models.OfferingType, offeringID string, status models.EnrollmentStatus) ([]models.OfferingEnrollmentRow, error)
}

type enrollmentPaymentRepository interface {
	CreatePlan(ctx context.Context, plan *models.PaymentPlan) error
	CreateInstallment(ctx context.Context, installment *models.Installment) error
	HasPaidOrVoucher(ctx context.Context, enrollmentID string) (bool, error)
	PaidTotal(ctx context.Context, enrollmentID string) (total, paid float64, err error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	InstallmentsByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string][]models.Installment, error)
}

// txRunner scopes a function to one database transaction; repository calls
// made with the context it passes down join it.
type txRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type enrollmentCatalog interface {
	EffectivePrice(ctx context.Context, offeringType models.OfferingType, offeringID string) (float64, error)
	PackageCourseOfferings(ctx context.Context, packageOfferingID string) ([]string, error)
	CycleDates(ctx context.Context, offeringType models.OfferingType, offeringID string) (*models.CycleDates, error)
}

// EnrollmentService drives the enrollment lifecycle: batch creation with
// conflict checks, student cancellation, admin decisions and the package
// acceptance cascade.
type EnrollmentService struct {
	repo     enrollmentRepository
	payments enrollmentPaymentRepository
	catalog  enrollmentCatalog
	tx       txRunner
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(repo enrollmentRepository, payments enrollmentPaymentRepository, catalog enrollmentCatalog, tx txRunner, metrics *MetricsService, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:     repo,
		payments: payments,
		catalog:  catalog,
		tx:       tx,
		metrics:  metrics,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateBatch validates every requested item against the student's active
// enrollments and, only if the whole batch is clean, creates one pendiente
// enrollment per item with its single-installment payment plan. The first
// conflict aborts the batch before anything is written.
func (s *EnrollmentService) CreateBatch(ctx context.Context, studentID string, items []models.EnrollmentItem) ([]models.CreatedEnrollment, error) {
	if len(items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "debe seleccionar al menos un curso o paquete")
	}
	for _, item := range items {
		if err := s.validate.Struct(item); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment item")
		}
		if !item.Type.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("tipo de matrícula inválido: %s", item.Type))
		}
	}

	for _, item := range items {
		if err := s.checkConflicts(ctx, studentID, item); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	dueDate := now.AddDate(0, 0, installmentDueDays)
	created := make([]models.CreatedEnrollment, 0, len(items))

	// One transaction for the whole batch: a failed item must not leave
	// earlier items, or its own plan-less enrollment row, behind.
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, item := range items {
			price, err := s.catalog.EffectivePrice(ctx, item.Type, item.OfferingID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve offering price")
			}

			enrollment := &models.Enrollment{
				StudentID:    studentID,
				Type:         item.Type,
				Status:       models.EnrollmentStatusPendiente,
				RegisteredAt: now,
			}
			offeringID := item.OfferingID
			if item.Type == models.OfferingTypeCourse {
				enrollment.CourseOfferingID = &offeringID
			} else {
				enrollment.PackageOfferingID = &offeringID
			}
			if err := s.repo.Create(ctx, enrollment); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
			}

			plan := &models.PaymentPlan{
				EnrollmentID: enrollment.ID,
				TotalAmount:  price,
				Installments: 1,
				CreatedAt:    now,
			}
			if err := s.payments.CreatePlan(ctx, plan); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment plan")
			}

			installment := &models.Installment{
				PaymentPlanID: plan.ID,
				Number:        1,
				DueDate:       dueDate,
				Amount:        price,
				Status:        models.InstallmentStatusPending,
			}
			if err := s.payments.CreateInstallment(ctx, installment); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create installment")
			}

			created = append(created, models.CreatedEnrollment{
				EnrollmentID:  enrollment.ID,
				PaymentPlanID: plan.ID,
				InstallmentID: installment.ID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("enrollments created",
		zap.String("student_id", studentID),
		zap.Int("count", len(created)))
	return created, nil
}

func (s *EnrollmentService) checkConflicts(ctx context.Context, studentID string, item models.EnrollmentItem) error {
	if item.Type == models.OfferingTypeCourse {
		existing, err := s.repo.ActiveCourseEnrollment(ctx, studentID, item.OfferingID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment conflicts")
		}
		if existing != nil {
			return appErrors.Clone(appErrors.ErrConflict,
				fmt.Sprintf("Usted ya está matriculado en uno de los cursos seleccionados: %s. Por favor, verifique nuevamente.", existing.Display()))
		}

		viaPackage, err := s.repo.CourseViaActivePackage(ctx, studentID, item.OfferingID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment conflicts")
		}
		if viaPackage != nil {
			return appErrors.Clone(appErrors.ErrConflict,
				fmt.Sprintf("Usted ya está matriculado en uno de los cursos seleccionados: %s (incluido en el paquete '%s'). Por favor, verifique nuevamente.",
					viaPackage.CourseDisplay(), viaPackage.PackageName))
		}
		return nil
	}

	existing, err := s.repo.ActivePackageEnrollment(ctx, studentID, item.OfferingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment conflicts")
	}
	if existing != nil {
		return appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("Usted ya está matriculado en el paquete seleccionado: %s. Por favor, verifique nuevamente.", existing.Display()))
	}

	courseConflict, err := s.repo.ActiveCourseInPackage(ctx, studentID, item.OfferingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment conflicts")
	}
	if courseConflict != nil {
		return appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("Usted ya está matriculado en uno de los cursos del paquete seleccionado: %s. Por favor, verifique nuevamente.", courseConflict.Display()))
	}
	return nil
}

// Cancel removes a pendiente enrollment of the student. Enrollments with a
// paid installment or an uploaded voucher cannot be cancelled; the delete
// cascades to the plan and its installments.
func (s *EnrollmentService) Cancel(ctx context.Context, studentID, enrollmentID string) error {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "matrícula no encontrada")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.StudentID != studentID {
		// Ownership failures read as not-found so students cannot enumerate
		// other students' enrollment IDs.
		return appErrors.Clone(appErrors.ErrNotFound, "matrícula no encontrada")
	}
	if enrollment.Status != models.EnrollmentStatusPendiente {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "solo se pueden cancelar matrículas pendientes")
	}

	hasPayments, err := s.payments.HasPaidOrVoucher(ctx, enrollmentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment payments")
	}
	if hasPayments {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "no se puede cancelar una matrícula con pagos o vouchers registrados")
	}

	if err := s.repo.Delete(ctx, enrollmentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
	}
	s.metrics.RecordEnrollmentDecision(string(models.EnrollmentStatusCancelado))
	s.logger.Info("enrollment cancelled", zap.String("enrollment_id", enrollmentID), zap.String("student_id", studentID))
	return nil
}

// SetStatus applies an admin decision. Accepting requires the payment plan to
// be fully paid and, for package enrollments, creates the missing cascaded
// course enrollments. Returns how many course enrollments the cascade created.
func (s *EnrollmentService) SetStatus(ctx context.Context, enrollmentID string, status models.EnrollmentStatus) (int, error) {
	if !status.Valid() {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("estado de matrícula inválido: %s", status))
	}

	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "matrícula no encontrada")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	var acceptedAt *time.Time
	if status == models.EnrollmentStatusAceptado {
		total, paid, err := s.payments.PaidTotal(ctx, enrollmentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check payment status")
		}
		if errors.Is(err, sql.ErrNoRows) || paid < total {
			return 0, appErrors.Clone(appErrors.ErrPreconditionFailed, "no se puede aceptar: pago no aprobado completamente")
		}
		now := time.Now().UTC()
		acceptedAt = &now
	}

	// Status flip and cascade commit or roll back together: an aceptado
	// package with no course rows must not survive a mid-cascade failure.
	coursesEnrolled := 0
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdateStatus(ctx, enrollmentID, status, acceptedAt); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
		}
		if status == models.EnrollmentStatusAceptado && enrollment.Type == models.OfferingTypePackage && enrollment.PackageOfferingID != nil {
			coursesEnrolled, err = s.cascadePackageCourses(ctx, enrollment, *acceptedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.metrics.RecordEnrollmentDecision(string(status))

	s.logger.Info("enrollment status updated",
		zap.String("enrollment_id", enrollmentID),
		zap.String("status", string(status)),
		zap.Int("courses_enrolled", coursesEnrolled))
	return coursesEnrolled, nil
}

// cascadePackageCourses creates one aceptado course enrollment per course in
// the package offering, tagged with the package offering so listings can group
// them. Already-existing cascade rows are skipped, so re-acceptance is
// idempotent. Cascaded rows carry no payment plan: the package plan covers
// them.
func (s *EnrollmentService) cascadePackageCourses(ctx context.Context, enrollment *models.Enrollment, acceptedAt time.Time) (int, error) {
	courseOfferings, err := s.catalog.PackageCourseOfferings(ctx, *enrollment.PackageOfferingID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve package courses")
	}

	created := 0
	for _, courseOfferingID := range courseOfferings {
		_, err := s.repo.FindCascade(ctx, enrollment.StudentID, courseOfferingID, *enrollment.PackageOfferingID)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check cascaded enrollment")
		}

		courseID := courseOfferingID
		packageID := *enrollment.PackageOfferingID
		accepted := acceptedAt
		cascade := &models.Enrollment{
			StudentID:         enrollment.StudentID,
			CourseOfferingID:  &courseID,
			PackageOfferingID: &packageID,
			Type:              models.OfferingTypeCourse,
			Status:            models.EnrollmentStatusAceptado,
			RegisteredAt:      acceptedAt,
			AcceptedAt:        &accepted,
		}
		if err := s.repo.Create(ctx, cascade); err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create cascaded enrollment")
		}
		created++
	}
	return created, nil
}

// AcceptOnFullPayment marks an enrollment aceptado after its last installment
// was approved, accepts its cascaded course enrollments when it is a package,
// and returns the cycle dates of the offering when they can be resolved.
func (s *EnrollmentService) AcceptOnFullPayment(ctx context.Context, enrollmentID string) (*models.CycleDates, error) {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "matrícula no encontrada")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	now := time.Now().UTC()
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdateStatus(ctx, enrollmentID, models.EnrollmentStatusAceptado, &now); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept enrollment")
		}
		if enrollment.Type == models.OfferingTypePackage && enrollment.PackageOfferingID != nil {
			if err := s.repo.AcceptPackageCourses(ctx, enrollment.StudentID, *enrollment.PackageOfferingID, now); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept package courses")
			}
			if _, err := s.cascadePackageCourses(ctx, enrollment, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordEnrollmentDecision(string(models.EnrollmentStatusAceptado))

	dates, err := s.catalog.CycleDates(ctx, enrollment.Type, enrollment.OfferingID())
	if err != nil {
		// Cycle dates only enrich the approval response.
		s.logger.Warn("failed to resolve cycle dates", zap.String("enrollment_id", enrollmentID), zap.Error(err))
		return nil, nil
	}
	return dates, nil
}

// Reject flips an enrollment to rechazado. Called when a payment voucher is
// rejected; the raw installment statuses keep counting due dates underneath.
func (s *EnrollmentService) Reject(ctx context.Context, enrollmentID string) error {
	if err := s.repo.UpdateStatus(ctx, enrollmentID, models.EnrollmentStatusRechazado, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject enrollment")
	}
	s.metrics.RecordEnrollmentDecision(string(models.EnrollmentStatusRechazado))
	return nil
}

// ListByStudent returns the student's enrollments with their installments
// attached. Past-due pending installments are swept to overdue first so the
// listing never shows a stale pending.
func (s *EnrollmentService) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	s.sweepOverdue(ctx)

	details, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	ids := make([]string, len(details))
	for i := range details {
		ids[i] = details[i].ID
	}
	installments, err := s.payments.InstallmentsByEnrollments(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list installments")
	}
	for i := range details {
		list := installments[details[i].ID]
		if list == nil {
			list = []models.Installment{}
		}
		details[i].Installments = list
	}
	return details, nil
}

// ListAdmin returns every enrollment with student and catalog context.
func (s *EnrollmentService) ListAdmin(ctx context.Context) ([]models.AdminEnrollmentRow, error) {
	rows, err := s.repo.ListAdmin(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return rows, nil
}

// ListByOffering groups an offering's enrollments by student.
func (s *EnrollmentService) ListByOffering(ctx context.Context, offeringType models.OfferingType, offeringID string, status models.EnrollmentStatus) ([]models.OfferingEnrollmentRow, error) {
	if !offeringType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("tipo de oferta inválido: %s", offeringType))
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("estado de matrícula inválido: %s", status))
	}
	rows, err := s.repo.ListByOffering(ctx, offeringType, offeringID, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list offering enrollments")
	}
	return rows, nil
}

// Delete removes an enrollment unconditionally. Admin only; the FK cascade
// takes the plan and installments with it.
func (s *EnrollmentService) Delete(ctx context.Context, enrollmentID string) error {
	if err := s.repo.Delete(ctx, enrollmentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	return nil
}

func (s *EnrollmentService) sweepOverdue(ctx context.Context) {
	swept, err := s.payments.MarkOverdue(ctx, time.Now().UTC())
	if err != nil {
		// The sweep is opportunistic; listings still serve on failure.
		s.logger.Warn("overdue sweep failed", zap.Error(err))
		return
	}
	s.metrics.RecordOverdueSwept(swept)
}
