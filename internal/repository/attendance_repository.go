package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/academia-platform/academia-api/internal/models"
)

// AttendanceRepository handles attendance rows and the schedule lookups the
// attendance workflow needs.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// ScheduleTeacher returns the teacher owning a schedule's course offering.
func (r *AttendanceRepository) ScheduleTeacher(ctx context.Context, scheduleID string) (string, error) {
	const query = `SELECT co.teacher_id FROM schedules s
        JOIN course_offerings co ON s.course_offering_id = co.id
        WHERE s.id = $1`
	var teacherID sql.NullString
	if err := r.db.GetContext(ctx, &teacherID, query, scheduleID); err != nil {
		return "", err
	}
	if !teacherID.Valid {
		return "", nil
	}
	return teacherID.String, nil
}

// HasAcceptedEnrollment reports whether the student holds an aceptado
// enrollment covering the schedule's course offering, directly or through a
// package.
func (r *AttendanceRepository) HasAcceptedEnrollment(ctx context.Context, studentID, scheduleID string) (bool, error) {
	const query = `SELECT e.id
        FROM enrollments e
        LEFT JOIN schedules s ON s.course_offering_id = e.course_offering_id
        LEFT JOIN package_offering_courses poc ON e.package_offering_id = poc.package_offering_id
        LEFT JOIN course_offerings co ON poc.course_offering_id = co.id
        LEFT JOIN schedules s2 ON co.id = s2.course_offering_id
        WHERE (s.id = $1 OR s2.id = $1)
          AND e.student_id = $2
          AND e.status = $3
        LIMIT 1`
	var id string
	if err := r.db.GetContext(ctx, &id, query, scheduleID, studentID, models.EnrollmentStatusAceptado); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check accepted enrollment: %w", err)
	}
	return true, nil
}

// Upsert records attendance for (student, schedule, date), overwriting the
// status when a row already exists.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.Attendance) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	const query = `INSERT INTO attendance (id, student_id, schedule_id, date, status)
        VALUES (:id, :student_id, :schedule_id, :date, :status)
        ON CONFLICT (student_id, schedule_id, date) DO UPDATE SET status = EXCLUDED.status`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// CountAbsences returns how many ausente rows exist for the pair.
func (r *AttendanceRepository) CountAbsences(ctx context.Context, studentID, scheduleID string) (int, error) {
	const query = `SELECT COUNT(*) FROM attendance
        WHERE student_id = $1 AND status = $2 AND schedule_id = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, models.AttendanceAusente, scheduleID); err != nil {
		return 0, fmt.Errorf("count absences: %w", err)
	}
	return count, nil
}

// ListForSchedule returns the roster statuses for one schedule and date.
func (r *AttendanceRepository) ListForSchedule(ctx context.Context, scheduleID string, date string) ([]models.AttendanceRow, error) {
	const query = `SELECT student_id, status FROM attendance WHERE schedule_id = $1 AND date = $2`
	var rows []models.AttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, scheduleID, date); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return rows, nil
}
