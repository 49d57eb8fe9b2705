package models

import "time"

// AttendanceStatus marks a student's presence in one session.
type AttendanceStatus string

// Possible attendance statuses.
const (
	AttendancePresente    AttendanceStatus = "presente"
	AttendanceAusente     AttendanceStatus = "ausente"
	AttendanceTardanza    AttendanceStatus = "tardanza"
	AttendanceJustificado AttendanceStatus = "justificado"
)

// Valid reports whether the status is one of the known values.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresente, AttendanceAusente, AttendanceTardanza, AttendanceJustificado:
		return true
	}
	return false
}

// Attendance records a student's status for a schedule slot on a date.
type Attendance struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	ScheduleID string           `db:"schedule_id" json:"schedule_id"`
	Date       time.Time        `db:"date" json:"date"`
	Status     AttendanceStatus `db:"status" json:"status"`
}

// AttendanceRow is the roster projection for one schedule and date.
type AttendanceRow struct {
	StudentID string           `db:"student_id" json:"student_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
}
