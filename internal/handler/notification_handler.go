package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/academia-platform/academia-api/internal/service"
	appErrors "github.com/academia-platform/academia-api/pkg/errors"
	"github.com/academia-platform/academia-api/pkg/response"
)

// NotificationHandler exposes the messaging gateway admin endpoints.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

type testMessageRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// InitSession godoc
// @Summary Start the messaging gateway session
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/notifications/session [post]
func (h *NotificationHandler) InitSession(c *gin.Context) {
	session, err := h.notifications.InitSession(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// SessionStatus godoc
// @Summary Report the messaging gateway session state
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/notifications/session [get]
func (h *NotificationHandler) SessionStatus(c *gin.Context) {
	session, err := h.notifications.SessionStatus(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// CloseSession godoc
// @Summary Close the messaging gateway session
// @Tags Notifications
// @Produce json
// @Success 204
// @Router /admin/notifications/session [delete]
func (h *NotificationHandler) CloseSession(c *gin.Context) {
	if err := h.notifications.CloseSession(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SendTest godoc
// @Summary Send a test message to verify the session
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body testMessageRequest true "Target phone"
// @Success 200 {object} response.Envelope
// @Router /admin/notifications/test [post]
func (h *NotificationHandler) SendTest(c *gin.Context) {
	var req testMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.notifications.SendTest(c.Request.Context(), req.Phone)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// History godoc
// @Summary List notification attempts recorded for a student
// @Tags Notifications
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /admin/notifications/students/{id} [get]
func (h *NotificationHandler) History(c *gin.Context) {
	rows, err := h.notifications.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
