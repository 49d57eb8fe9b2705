package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/academia-platform/academia-api/internal/models"
	"github.com/academia-platform/academia-api/internal/service"
	appErrors "github.com/academia-platform/academia-api/pkg/errors"
	"github.com/academia-platform/academia-api/pkg/response"
)

// AttendanceHandler exposes teacher attendance endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

type markAttendanceRequest struct {
	StudentID  string                  `json:"student_id" binding:"required"`
	ScheduleID string                  `json:"schedule_id" binding:"required"`
	Date       string                  `json:"date" binding:"required"`
	Status     models.AttendanceStatus `json:"status" binding:"required"`
}

// Mark godoc
// @Summary Record a student's attendance for a schedule slot
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body markAttendanceRequest true "Attendance record"
// @Success 200 {object} response.Envelope
// @Router /teacher/attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	teacherID := teacherIDFromContext(c)
	if teacherID == "" {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	var req markAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "fecha inválida, se espera YYYY-MM-DD"))
		return
	}

	record := &models.Attendance{
		StudentID:  req.StudentID,
		ScheduleID: req.ScheduleID,
		Date:       date,
		Status:     req.Status,
	}
	if err := h.attendance.Mark(c.Request.Context(), teacherID, record); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "Asistencia marcada correctamente"}, nil)
}

// List godoc
// @Summary List attendance for a schedule slot and date
// @Tags Attendance
// @Produce json
// @Param schedule_id query string true "Schedule ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /teacher/attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	teacherID := teacherIDFromContext(c)
	if teacherID == "" {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "fecha inválida, se espera YYYY-MM-DD"))
		return
	}
	rows, err := h.attendance.ListForSchedule(c.Request.Context(), teacherID, c.Query("schedule_id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
