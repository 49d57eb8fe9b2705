package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academia-platform/academia-api/internal/models"
)

func TestPaymentRepositoryApplyPatchUpload(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	status := models.InstallmentStatusPending
	url := "/uploads/vouchers/inst-1.jpg"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE installments SET status = $1, voucher_url = $2, rejection_reason = NULL WHERE id = $3")).
		WithArgs(status, url, "inst-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	patch := models.InstallmentPatch{Status: &status, VoucherURL: &url, ClearRejectionReason: true}
	require.NoError(t, repo.ApplyPatch(context.Background(), "inst-1", patch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryApplyPatchRejection(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	status := models.InstallmentStatusOverdue
	reason := "Monto no coincide"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE installments SET status = $1, voucher_url = NULL, rejection_reason = $2 WHERE id = $3")).
		WithArgs(status, reason, "inst-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	patch := models.InstallmentPatch{Status: &status, ClearVoucherURL: true, RejectionReason: &reason}
	require.NoError(t, repo.ApplyPatch(context.Background(), "inst-1", patch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryApplyPatchApproval(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	status := models.InstallmentStatusPaid
	paidAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE installments SET status = $1, paid_at = $2 WHERE id = $3")).
		WithArgs(status, paidAt, "inst-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	patch := models.InstallmentPatch{Status: &status, PaidAt: &paidAt}
	require.NoError(t, repo.ApplyPatch(context.Background(), "inst-1", patch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryApplyPatchEmptyIsNoop(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	require.NoError(t, repo.ApplyPatch(context.Background(), "inst-1", models.InstallmentPatch{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCountUnpaid(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("plan-1", models.InstallmentStatusPaid).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountUnpaid(context.Background(), "plan-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryPaidTotal(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	rows := sqlmock.NewRows([]string{"total_amount", "total_paid"}).AddRow(650.0, 530.0)
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(CASE WHEN i.status = 'paid' THEN i.amount ELSE 0 END), 0)")).
		WithArgs("enr-1").
		WillReturnRows(rows)

	total, paid, err := repo.PaidTotal(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, 650.0, total)
	assert.Equal(t, 530.0, paid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryHasPaidOrVoucher(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("i.voucher_url IS NOT NULL")).
		WithArgs("enr-1", models.InstallmentStatusPaid).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	has, err := repo.HasPaidOrVoucher(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.True(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryMarkOverdue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE installments SET status = $1 WHERE status = $2 AND due_date < $3")).
		WithArgs(models.InstallmentStatusOverdue, models.InstallmentStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := repo.MarkOverdue(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryMarkOverdueRowsAffectedError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE installments SET status = $1 WHERE status = $2 AND due_date < $3")).
		WithArgs(models.InstallmentStatusOverdue, models.InstallmentStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver does not report rows")))

	_, err := repo.MarkOverdue(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark overdue installments")
}

func TestPaymentRepositoryListInstallmentsRejectedFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	rows := installmentDetailRows().
		AddRow("inst-1", "plan-1", 1, time.Now(), 120.0, "pending", nil, nil, nil,
			"enr-1", "course", "rechazado", "st-1", "Ana", "Quispe", "12345678", "Álgebra")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.status = 'rechazado'")).
		WillReturnRows(rows)

	list, err := repo.ListInstallments(context.Background(), models.InstallmentFilterRejected)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.EnrollmentStatusRechazado, list[0].EnrollmentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryListInstallmentsStatusFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	rows := installmentDetailRows().
		AddRow("inst-1", "plan-1", 1, time.Now(), 120.0, "pending", nil, nil, nil,
			"enr-1", "course", "pendiente", "st-1", "Ana", "Quispe", "12345678", "Álgebra")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE i.status = $1")).
		WithArgs("pending").
		WillReturnRows(rows)

	list, err := repo.ListInstallments(context.Background(), "pending")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryInstallmentsByEnrollments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "payment_plan_id", "installment_number", "due_date", "amount", "status", "voucher_url", "rejection_reason", "paid_at", "enrollment_id"}).
		AddRow("inst-1", "plan-1", 1, time.Now(), 120.0, "pending", nil, nil, nil, "enr-1").
		AddRow("inst-2", "plan-2", 1, time.Now(), 650.0, "paid", nil, nil, time.Now(), "enr-2")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE pp.enrollment_id IN ($1,$2)")).
		WithArgs("enr-1", "enr-2").
		WillReturnRows(rows)

	grouped, err := repo.InstallmentsByEnrollments(context.Background(), []string{"enr-1", "enr-2"})
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	assert.Equal(t, "inst-1", grouped["enr-1"][0].ID)
	assert.Equal(t, models.InstallmentStatusPaid, grouped["enr-2"][0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryInstallmentsByEnrollmentsEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	grouped, err := repo.InstallmentsByEnrollments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, grouped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func installmentDetailRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "payment_plan_id", "installment_number", "due_date", "amount", "status",
		"voucher_url", "rejection_reason", "paid_at",
		"enrollment_id", "enrollment_type", "enrollment_status", "student_id",
		"first_name", "last_name", "dni", "item_name",
	})
}
