package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/academia-platform/academia-api/internal/models"
	appErrors "github.com/academia-platform/academia-api/pkg/errors"
	"github.com/academia-platform/academia-api/pkg/export"
)

// ExportFormat enumerates the supported ledger export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// installmentLister is the slice of the payment service the exporter reads.
type installmentLister interface {
	ListInstallments(ctx context.Context, statusFilter string) ([]models.InstallmentDetail, error)
}

// ExportService renders the installment ledger as downloadable CSV or PDF.
type ExportService struct {
	payments installmentLister
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(payments installmentLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		payments: payments,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// ExportResult carries the rendered bytes and download metadata.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// InstallmentLedger renders the admin ledger, honoring the same status filter
// as the listing endpoint.
func (s *ExportService) InstallmentLedger(ctx context.Context, format ExportFormat, statusFilter string) (*ExportResult, error) {
	rows, err := s.payments.ListInstallments(ctx, statusFilter)
	if err != nil {
		return nil, err
	}

	dataset := ledgerDataset(rows)
	stamp := time.Now().UTC().Format("20060102-150405")

	switch format {
	case ExportFormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("cuotas-%s.csv", stamp),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	case ExportFormatPDF:
		data, err := s.pdf.Render(dataset, "Registro de cuotas")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("cuotas-%s.pdf", stamp),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("formato de exportación inválido: %s", format))
	}
}

func ledgerDataset(rows []models.InstallmentDetail) export.Dataset {
	headers := []string{"Estudiante", "DNI", "Item", "Cuota", "Vencimiento", "Monto", "Estado", "Pagado", "Motivo de rechazo"}
	dataset := export.Dataset{Headers: headers, Rows: make([]map[string]string, 0, len(rows))}

	for _, row := range rows {
		name := strings.TrimSpace(deref(row.FirstName) + " " + deref(row.LastName))
		paidAt := ""
		if row.PaidAt != nil {
			paidAt = row.PaidAt.Format("2006-01-02")
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Estudiante":        name,
			"DNI":               deref(row.DNI),
			"Item":              deref(row.ItemName),
			"Cuota":             fmt.Sprintf("%d", row.Number),
			"Vencimiento":       row.DueDate.Format("2006-01-02"),
			"Monto":             fmt.Sprintf("%.2f", row.Amount),
			"Estado":            row.StatusUI,
			"Pagado":            paidAt,
			"Motivo de rechazo": deref(row.RejectionReason),
		})
	}
	return dataset
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
