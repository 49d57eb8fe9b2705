package repository

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academia-platform/academia-api/internal/models"
)

func TestTxRunnerRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	enrollments := NewEnrollmentRepository(db)
	payments := NewPaymentRepository(db)
	runner := NewTxRunner(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO payment_plans").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	courseID := "co-1"
	err := runner.InTx(context.Background(), func(ctx context.Context) error {
		enrollment := &models.Enrollment{
			StudentID:        "st-1",
			CourseOfferingID: &courseID,
			Type:             models.OfferingTypeCourse,
		}
		if err := enrollments.Create(ctx, enrollment); err != nil {
			return err
		}
		return payments.CreatePlan(ctx, &models.PaymentPlan{
			EnrollmentID: enrollment.ID,
			TotalAmount:  120,
			Installments: 1,
		})
	})
	require.Error(t, err)
	// The enrollment insert must not survive the failed plan insert.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxRunnerCommitsOnSuccess(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	enrollments := NewEnrollmentRepository(db)
	payments := NewPaymentRepository(db)
	runner := NewTxRunner(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO payment_plans").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	courseID := "co-1"
	err := runner.InTx(context.Background(), func(ctx context.Context) error {
		enrollment := &models.Enrollment{
			StudentID:        "st-1",
			CourseOfferingID: &courseID,
			Type:             models.OfferingTypeCourse,
		}
		if err := enrollments.Create(ctx, enrollment); err != nil {
			return err
		}
		return payments.CreatePlan(ctx, &models.PaymentPlan{
			EnrollmentID: enrollment.ID,
			TotalAmount:  120,
			Installments: 1,
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxRunnerNestedCallJoinsTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	enrollments := NewEnrollmentRepository(db)
	runner := NewTxRunner(db)

	// One Begin and one Commit even though InTx is entered twice.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	courseID := "co-1"
	err := runner.InTx(context.Background(), func(ctx context.Context) error {
		return runner.InTx(ctx, func(ctx context.Context) error {
			return enrollments.Create(ctx, &models.Enrollment{
				StudentID:        "st-1",
				CourseOfferingID: &courseID,
				Type:             models.OfferingTypeCourse,
			})
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoriesAutocommitWithoutRunner(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	enrollments := NewEnrollmentRepository(db)

	// No Begin expected: a bare context hits the pool directly.
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	courseID := "co-1"
	err := enrollments.Create(context.Background(), &models.Enrollment{
		StudentID:        "st-1",
		CourseOfferingID: &courseID,
		Type:             models.OfferingTypeCourse,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
