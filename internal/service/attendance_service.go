package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/academia-platform/academia-api/internal/models"
	appErrors "github.com/academia-platform/academia-api/pkg/errors"
)

type attendanceRepository interface {
	ScheduleTeacher(ctx context.Context, scheduleID string) (string, error)
	HasAcceptedEnrollment(ctx context.Context, studentID, scheduleID string) (bool, error)
	Upsert(ctx context.Context, record *models.Attendance) error
	CountAbsences(ctx context.Context, studentID, scheduleID string) (int, error)
	ListForSchedule(ctx context.Context, scheduleID string, date string) ([]models.AttendanceRow, error)
}

// AttendanceService records attendance for schedule slots and raises parent
// alerts when a student's absences in one slot cross the threshold.
type AttendanceService struct {
	repo             attendanceRepository
	students         studentDirectory
	notifier         parentNotifier
	absenceThreshold int
	logger           *zap.Logger
}

// NewAttendanceService constructs the service.
func NewAttendanceService(repo attendanceRepository, students studentDirectory, notifier parentNotifier, absenceThreshold int, logger *zap.Logger) *AttendanceService {
	if absenceThreshold <= 0 {
		absenceThreshold = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:             repo,
		students:         students,
		notifier:         notifier,
		absenceThreshold: absenceThreshold,
		logger:           logger,
	}
}

// Mark records a student's status for one schedule slot and date. The caller
// must be the teacher assigned to the slot's course offering, and the student
// must hold an aceptado enrollment covering the offering, directly or through
// a package. Re-marking the same (student, slot, date) overwrites the status.
func (s *AttendanceService) Mark(ctx context.Context, teacherID string, record *models.Attendance) error {
	if !record.Status.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("estado de asistencia inválido: %s", record.Status))
	}

	if err := s.checkScheduleOwner(ctx, teacherID, record.ScheduleID, "No tienes permiso para marcar asistencia en este curso"); err != nil {
		return err
	}

	enrolled, err := s.repo.HasAcceptedEnrollment(ctx, record.StudentID, record.ScheduleID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "El estudiante no tiene una matrícula aceptada en este curso")
	}

	if err := s.repo.Upsert(ctx, record); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	if record.Status == models.AttendanceAusente {
		s.checkAbsenceThreshold(ctx, record.StudentID, record.ScheduleID)
	}
	return nil
}

// checkAbsenceThreshold notifies the parent once the absences in this slot
// reach the threshold. Counting or delivery failures are logged and swallowed;
// the attendance record already stands.
func (s *AttendanceService) checkAbsenceThreshold(ctx context.Context, studentID, scheduleID string) {
	absences, err := s.repo.CountAbsences(ctx, studentID, scheduleID)
	if err != nil {
		s.logger.Warn("failed to count absences", zap.String("student_id", studentID), zap.Error(err))
		return
	}
	if absences < s.absenceThreshold {
		return
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		s.logger.Warn("failed to load student for absence alert", zap.String("student_id", studentID), zap.Error(err))
		return
	}
	message := fmt.Sprintf("Su hijo/a %s %s ha acumulado %d faltas en este horario",
		student.FirstName, student.LastName, absences)
	s.notifier.NotifyParent(student.ID, student.ParentPhone, message, models.NotificationAbsences)
}

// ListForSchedule returns the roster statuses of one schedule slot and date.
// The caller must be the teacher assigned to the slot.
func (s *AttendanceService) ListForSchedule(ctx context.Context, teacherID, scheduleID string, date time.Time) ([]models.AttendanceRow, error) {
	if err := s.checkScheduleOwner(ctx, teacherID, scheduleID, "No tienes permiso para ver asistencia de este curso"); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListForSchedule(ctx, scheduleID, date.Format("2006-01-02"))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return rows, nil
}

func (s *AttendanceService) checkScheduleOwner(ctx context.Context, teacherID, scheduleID, denied string) error {
	owner, err := s.repo.ScheduleTeacher(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "horario no encontrado")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	if owner == "" || owner != teacherID {
		return appErrors.Clone(appErrors.ErrForbidden, denied)
	}
	return nil
}
