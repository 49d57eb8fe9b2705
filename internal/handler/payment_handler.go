package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/academia-platform/academia-api/internal/service"
	appErrors "github.com/academia-platform/academia-api/pkg/errors"
	"github.com/academia-platform/academia-api/pkg/response"
)

// PaymentHandler exposes the installment ledger endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
	exports  *service.ExportService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService, exports *service.ExportService) *PaymentHandler {
	return &PaymentHandler{payments: payments, exports: exports}
}

type rejectInstallmentRequest struct {
	Reason string `json:"reason"`
}

// UploadVoucher godoc
// @Summary Upload a payment voucher for an installment
// @Tags Payments
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Installment ID"
// @Param voucher formData file true "Voucher file"
// @Success 200 {object} response.Envelope
// @Router /installments/{id}/voucher [post]
func (h *PaymentHandler) UploadVoucher(c *gin.Context) {
	studentID := studentIDFromContext(c)
	if studentID == "" {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	fileHeader, err := c.FormFile("voucher")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "falta el archivo voucher"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read voucher"))
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read voucher"))
		return
	}

	voucherURL, err := h.payments.UploadVoucher(c.Request.Context(), studentID, c.Param("id"),
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"message":    "Voucher subido con éxito",
		"voucherUrl": voucherURL,
	}, nil)
}

// Approve godoc
// @Summary Approve an installment payment
// @Tags Payments
// @Produce json
// @Param id path string true "Installment ID"
// @Success 200 {object} response.Envelope
// @Router /admin/installments/{id}/approve [put]
func (h *PaymentHandler) Approve(c *gin.Context) {
	approval, err := h.payments.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// Reject godoc
// @Summary Reject an installment payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Installment ID"
// @Param payload body rejectInstallmentRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /admin/installments/{id}/reject [put]
func (h *PaymentHandler) Reject(c *gin.Context) {
	var req rejectInstallmentRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.payments.Reject(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "Pago rechazado y matrícula actualizada"}, nil)
}

// List godoc
// @Summary List the installment ledger
// @Tags Payments
// @Produce json
// @Param status query string false "Filter: pending|paid|overdue|rejected"
// @Success 200 {object} response.Envelope
// @Router /admin/installments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	rows, err := h.payments.ListInstallments(c.Request.Context(), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// PendingReview godoc
// @Summary List installments whose voucher awaits review
// @Tags Payments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/installments/pending [get]
func (h *PaymentHandler) PendingReview(c *gin.Context) {
	rows, err := h.payments.ListPendingReview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Plan godoc
// @Summary Get the payment plan of an enrollment with its installments
// @Tags Payments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/payment-plan [get]
func (h *PaymentHandler) Plan(c *gin.Context) {
	// Admins see any plan; students only their own.
	studentID := studentIDFromContext(c)
	plan, installments, err := h.payments.PlanByEnrollment(c.Request.Context(), studentID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"plan":         plan,
		"installments": installments,
	}, nil)
}

// VoucherLink godoc
// @Summary Issue a signed download link for an installment's voucher
// @Tags Payments
// @Produce json
// @Param id path string true "Installment ID"
// @Success 200 {object} response.Envelope
// @Router /admin/installments/{id}/voucher-link [get]
func (h *PaymentHandler) VoucherLink(c *gin.Context) {
	url, expiresAt, err := h.payments.SignedVoucherURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"url":        url,
		"expires_at": expiresAt,
	}, nil)
}

// DownloadVoucher godoc
// @Summary Download a voucher through a signed token
// @Tags Payments
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200
// @Router /vouchers/{token} [get]
func (h *PaymentHandler) DownloadVoucher(c *gin.Context) {
	file, err := h.payments.OpenVoucher(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", "attachment")
	c.Header("Content-Type", "application/octet-stream")
	if _, err := io.Copy(c.Writer, file); err != nil {
		_ = c.Error(err)
	}
}

// Export godoc
// @Summary Export the installment ledger
// @Tags Payments
// @Produce octet-stream
// @Param format query string true "csv|pdf"
// @Param status query string false "Filter: pending|paid|overdue|rejected"
// @Success 200
// @Router /admin/installments/export [get]
func (h *PaymentHandler) Export(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatCSV)))
	result, err := h.exports.InstallmentLedger(c.Request.Context(), format, c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
