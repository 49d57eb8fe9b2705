package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/academia-platform/academia-api/internal/models"
	appErrors "github.com/academia-platform/academia-api/pkg/errors"
)

type paymentRepository interface {
	FindInstallmentDetail(ctx context.Context, installmentID string) (*models.InstallmentDetail, error)
	ApplyPatch(ctx context.Context, installmentID string, patch models.InstallmentPatch) error
	CountUnpaid(ctx context.Context, paymentPlanID string) (int, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	ListInstallments(ctx context.Context, statusFilter string) ([]models.InstallmentDetail, error)
	ListPendingReview(ctx context.Context) ([]models.InstallmentDetail, error)
	PlanByEnrollment(ctx context.Context, enrollmentID string) (*models.PaymentPlanDetail, error)
	InstallmentsByPlan(ctx context.Context, paymentPlanID string) ([]models.Installment, error)
}

// enrollmentDecider is the slice of the enrollment engine the ledger drives:
// full payment accepts, voucher rejection rejects.
type enrollmentDecider interface {
	AcceptOnFullPayment(ctx context.Context, enrollmentID string) (*models.CycleDates, error)
	Reject(ctx context.Context, enrollmentID string) error
}

type voucherStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type voucherSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (resourceID, relPath string, expiresAt time.Time, err error)
}

type studentDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// parentNotifier is the fire-and-forget side of the notification service.
type parentNotifier interface {
	NotifyParent(studentID, phone, message string, kind models.NotificationType)
}

// VoucherPolicy bounds what the upload endpoint accepts.
type VoucherPolicy struct {
	MaxSizeBytes int64
	AllowedMIMEs []string
}

// PaymentService owns the installment ledger: voucher uploads, admin
// approve/reject decisions and the listings that feed both dashboards.
type PaymentService struct {
	repo        paymentRepository
	enrollments enrollmentDecider
	storage     voucherStorage
	signer      voucherSigner
	students    studentDirectory
	notifier    parentNotifier
	tx          txRunner
	policy      VoucherPolicy
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewPaymentService constructs the service.
func NewPaymentService(repo paymentRepository, enrollments enrollmentDecider, storage voucherStorage, signer voucherSigner, students studentDirectory, notifier parentNotifier, tx txRunner, policy VoucherPolicy, metrics *MetricsService, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		repo:        repo,
		enrollments: enrollments,
		storage:     storage,
		signer:      signer,
		students:    students,
		notifier:    notifier,
		tx:          tx,
		policy:      policy,
		metrics:     metrics,
		logger:      logger,
	}
}

// UploadVoucher stores a payment proof against an installment. The upload
// resets the installment to pending and clears any previous rejection reason,
// so a rejected payment can be retried with a new voucher. When studentID is
// set the installment must belong to that student.
func (s *PaymentService) UploadVoucher(ctx context.Context, studentID, installmentID, filename, contentType string, data []byte) (string, error) {
	detail, err := s.findInstallment(ctx, installmentID)
	if err != nil {
		return "", err
	}
	if studentID != "" && detail.StudentID != studentID {
		return "", appErrors.Clone(appErrors.ErrNotFound, "installment no encontrado")
	}

	if s.policy.MaxSizeBytes > 0 && int64(len(data)) > s.policy.MaxSizeBytes {
		return "", appErrors.Clone(appErrors.ErrValidation, "el archivo excede el tamaño máximo permitido")
	}
	if len(s.policy.AllowedMIMEs) > 0 && !s.mimeAllowed(contentType) {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("tipo de archivo no permitido: %s", contentType))
	}

	relPath := fmt.Sprintf("vouchers/%s-%s%s", installmentID, uuid.NewString(), strings.ToLower(path.Ext(filename)))
	if _, err := s.storage.Save(relPath, data); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store voucher")
	}
	voucherURL := "/uploads/" + relPath

	pending := models.InstallmentStatusPending
	patch := models.InstallmentPatch{
		Status:               &pending,
		VoucherURL:           &voucherURL,
		ClearRejectionReason: true,
	}
	if err := s.repo.ApplyPatch(ctx, installmentID, patch); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update installment")
	}

	s.logger.Info("voucher uploaded",
		zap.String("installment_id", installmentID),
		zap.String("student_id", detail.StudentID))
	return voucherURL, nil
}

func (s *PaymentService) mimeAllowed(contentType string) bool {
	for _, allowed := range s.policy.AllowedMIMEs {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}

// Approve marks an installment paid. When it was the last unpaid installment
// of its plan the enrollment is accepted, package courses cascade, and the
// offering's cycle dates come back in the result. The parent is notified on
// every approval; delivery failures never fail the approval.
func (s *PaymentService) Approve(ctx context.Context, installmentID string) (*models.PaymentApproval, error) {
	detail, err := s.findInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	approval := &models.PaymentApproval{InstallmentID: installmentID}

	// Paid flip and any resulting acceptance commit or roll back together.
	// The parent notification stays outside: it must not hold the
	// transaction open, and a rollback must not have notified anyone.
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		paid := models.InstallmentStatusPaid
		patch := models.InstallmentPatch{Status: &paid, PaidAt: &now}
		if err := s.repo.ApplyPatch(ctx, installmentID, patch); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve installment")
		}

		unpaid, err := s.repo.CountUnpaid(ctx, detail.PaymentPlanID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check plan status")
		}
		if unpaid == 0 {
			dates, err := s.enrollments.AcceptOnFullPayment(ctx, detail.EnrollmentID)
			if err != nil {
				return err
			}
			approval.Accepted = true
			if dates != nil {
				approval.CycleStartDate = &dates.StartDate
				approval.CycleEndDate = &dates.EndDate
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyPaymentReceived(ctx, detail)

	s.logger.Info("installment approved",
		zap.String("installment_id", installmentID),
		zap.String("enrollment_id", detail.EnrollmentID),
		zap.Bool("enrollment_accepted", approval.Accepted))
	return approval, nil
}

func (s *PaymentService) notifyPaymentReceived(ctx context.Context, detail *models.InstallmentDetail) {
	student, err := s.students.FindByID(ctx, detail.StudentID)
	if err != nil {
		s.logger.Warn("failed to load student for payment notification",
			zap.String("student_id", detail.StudentID), zap.Error(err))
		return
	}
	message := fmt.Sprintf("Pago recibido para la matrícula %s", detail.EnrollmentID)
	s.notifier.NotifyParent(student.ID, student.ParentPhone, message, models.NotificationOther)
}

// Reject refuses a voucher. The installment reverts to pending, or straight to
// overdue when already past due, and its voucher is dropped so the student can
// upload a new one. The owning enrollment flips to rechazado regardless of the
// installment outcome; the rejected look on the ledger comes from that
// enrollment status, not from the stored installment status.
func (s *PaymentService) Reject(ctx context.Context, installmentID, reason string) error {
	detail, err := s.findInstallment(ctx, installmentID)
	if err != nil {
		return err
	}

	status := models.InstallmentStatusPending
	if detail.DueDate.Before(time.Now().UTC()) {
		status = models.InstallmentStatusOverdue
	}
	patch := models.InstallmentPatch{
		Status:          &status,
		ClearVoucherURL: true,
	}
	if reason != "" {
		patch.RejectionReason = &reason
	} else {
		patch.ClearRejectionReason = true
	}
	// Installment revert and enrollment rechazado land atomically.
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.ApplyPatch(ctx, installmentID, patch); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject installment")
		}
		return s.enrollments.Reject(ctx, detail.EnrollmentID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("installment rejected",
		zap.String("installment_id", installmentID),
		zap.String("enrollment_id", detail.EnrollmentID),
		zap.String("reason", reason))
	return nil
}

// ListInstallments returns the admin ledger. Past-due pending installments are
// swept to overdue first. The "rejected" filter selects by enrollment status;
// pending, paid and overdue filter the stored installment status.
func (s *PaymentService) ListInstallments(ctx context.Context, statusFilter string) ([]models.InstallmentDetail, error) {
	switch statusFilter {
	case "", string(models.InstallmentStatusPending), string(models.InstallmentStatusPaid), string(models.InstallmentStatusOverdue), models.InstallmentFilterRejected:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("filtro de estado inválido: %s", statusFilter))
	}

	s.sweepOverdue(ctx)

	rows, err := s.repo.ListInstallments(ctx, statusFilter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list installments")
	}
	for i := range rows {
		rows[i].StatusUI = models.DisplayStatus(rows[i].Status, rows[i].EnrollmentStatus)
	}
	return rows, nil
}

// ListPendingReview returns installments whose uploaded voucher awaits an
// admin decision.
func (s *PaymentService) ListPendingReview(ctx context.Context) ([]models.InstallmentDetail, error) {
	rows, err := s.repo.ListPendingReview(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending payments")
	}
	for i := range rows {
		rows[i].StatusUI = models.DisplayStatus(rows[i].Status, rows[i].EnrollmentStatus)
	}
	return rows, nil
}

// PlanByEnrollment returns the payment plan of an enrollment with its
// installments. When studentID is set the plan must belong to that student.
func (s *PaymentService) PlanByEnrollment(ctx context.Context, studentID, enrollmentID string) (*models.PaymentPlanDetail, []models.Installment, error) {
	plan, err := s.repo.PlanByEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "plan de pago no encontrado")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment plan")
	}
	if studentID != "" && plan.StudentID != studentID {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "plan de pago no encontrado")
	}

	installments, err := s.repo.InstallmentsByPlan(ctx, plan.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list installments")
	}
	return plan, installments, nil
}

// SignedVoucherURL returns a time-limited download path for an installment's
// voucher.
func (s *PaymentService) SignedVoucherURL(ctx context.Context, installmentID string) (string, time.Time, error) {
	detail, err := s.findInstallment(ctx, installmentID)
	if err != nil {
		return "", time.Time{}, err
	}
	if detail.VoucherURL == nil || *detail.VoucherURL == "" {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "la cuota no tiene voucher")
	}

	relPath := strings.TrimPrefix(*detail.VoucherURL, "/uploads/")
	token, expiresAt, err := s.signer.Generate(installmentID, relPath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign voucher url")
	}
	return "/vouchers/" + token, expiresAt, nil
}

// OpenVoucher validates a signed token and opens the referenced file.
func (s *PaymentService) OpenVoucher(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enlace de descarga inválido o expirado")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "voucher no encontrado")
	}
	return file, nil
}

func (s *PaymentService) findInstallment(ctx context.Context, installmentID string) (*models.InstallmentDetail, error) {
	detail, err := s.repo.FindInstallmentDetail(ctx, installmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "installment no encontrado")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load installment")
	}
	return detail, nil
}

func (s *PaymentService) sweepOverdue(ctx context.Context) {
	swept, err := s.repo.MarkOverdue(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Warn("overdue sweep failed", zap.Error(err))
		return
	}
	s.metrics.RecordOverdueSwept(swept)
}
