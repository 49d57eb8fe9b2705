package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/academia-platform/academia-api/internal/models"
	"github.com/academia-platform/academia-api/internal/service"
	appErrors "github.com/academia-platform/academia-api/pkg/errors"
	"github.com/academia-platform/academia-api/pkg/response"
)

// EnrollmentHandler exposes enrollment lifecycle endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

type createEnrollmentRequest struct {
	Items []models.EnrollmentItem `json:"items"`
}

type enrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" binding:"required"`
}

// Create godoc
// @Summary Enroll the authenticated student in courses and packages
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body createEnrollmentRequest true "Batch items"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	studentID := studentIDFromContext(c)
	if studentID == "" {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	var req createEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	created, err := h.enrollments.CreateBatch(c.Request.Context(), studentID, req.Items)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{
		"message": "Matrículas creadas correctamente",
		"created": created,
	})
}

// ListMine godoc
// @Summary List the authenticated student's enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	studentID := studentIDFromContext(c)
	if studentID == "" {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	details, err := h.enrollments.ListByStudent(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// Cancel godoc
// @Summary Cancel a pendiente enrollment of the authenticated student
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	studentID := studentIDFromContext(c)
	if studentID == "" {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	if err := h.enrollments.Cancel(c.Request.Context(), studentID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "Matrícula cancelada correctamente"}, nil)
}

// ListAdmin godoc
// @Summary List all enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/enrollments [get]
func (h *EnrollmentHandler) ListAdmin(c *gin.Context) {
	rows, err := h.enrollments.ListAdmin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// SetStatus godoc
// @Summary Apply an admin decision to an enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body enrollmentStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Router /admin/enrollments/{id}/status [put]
func (h *EnrollmentHandler) SetStatus(c *gin.Context) {
	var req enrollmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	coursesEnrolled, err := h.enrollments.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	message := "Matrícula " + string(req.Status)
	if coursesEnrolled > 0 {
		response.JSON(c, http.StatusOK, gin.H{
			"message":          message,
			"courses_enrolled": coursesEnrolled,
		}, nil)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": message}, nil)
}

// ListByOffering godoc
// @Summary List enrollments of one offering grouped by student
// @Tags Enrollments
// @Produce json
// @Param type query string true "Offering type (course|package)"
// @Param id query string true "Offering ID"
// @Param status query string false "Enrollment status"
// @Success 200 {object} response.Envelope
// @Router /admin/enrollments/by-offering [get]
func (h *EnrollmentHandler) ListByOffering(c *gin.Context) {
	offeringType := models.OfferingType(c.Query("type"))
	status := models.EnrollmentStatus(c.DefaultQuery("status", string(models.EnrollmentStatusAceptado)))
	rows, err := h.enrollments.ListByOffering(c.Request.Context(), offeringType, c.Query("id"), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Delete godoc
// @Summary Delete an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /admin/enrollments/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	if err := h.enrollments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "Matrícula eliminada correctamente"}, nil)
}
