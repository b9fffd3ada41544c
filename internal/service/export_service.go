package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/patient-progress-api/internal/dto"
	"github.com/noah-isme/patient-progress-api/internal/models"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
	"github.com/noah-isme/patient-progress-api/pkg/export"
	"github.com/noah-isme/patient-progress-api/pkg/storage"
)

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type comparer interface {
	Compare(ctx context.Context, req dto.CompareRequest) (*models.DiffReport, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
}

// ExportService renders comparisons to files and hands out signed links.
type ExportService struct {
	comparisons comparer
	storage     fileStorage
	csv         csvRenderer
	pdf         pdfRenderer
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
	cfg         ExportConfig
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the default exporters.
func NewExportService(comparisons comparer, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		comparisons: comparisons,
		storage:     files,
		csv:         csv,
		pdf:         pdf,
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
	}
}

// Export compares the requested periods and stores the rendered report.
func (s *ExportService) Export(ctx context.Context, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if req.Format != dto.ExportFormatCSV && req.Format != dto.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported export format %q", req.Format))
	}
	report, err := s.comparisons.Compare(ctx, req.CompareRequest)
	if err != nil {
		return nil, err
	}

	dataset := ReportDataset(report)
	var payload []byte
	switch req.Format {
	case dto.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case dto.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Progress comparison")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	fileName := exportFileName(report, req.Format)
	stored, err := s.storage.Save(exportID+"/"+fileName, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, ticket, err := s.signer.Sign(exportID, stored)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("comparison exported",
		zap.String("export_id", exportID),
		zap.String("format", string(req.Format)),
		zap.String("patient_id", report.PatientID),
	)
	return &dto.ExportResponse{
		Token:     token,
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		FileName:  fileName,
		Format:    req.Format,
		ExpiresAt: ticket.ExpiresAt,
	}, nil
}

// Open verifies a download token and opens the file it points at. The caller
// closes the file.
func (s *ExportService) Open(token string) (*os.File, string, error) {
	ticket, err := s.signer.Verify(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrExportTokenRejected, "export link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrExportTokenRejected, "export link is invalid")
	}
	file, err := s.storage.Open(ticket.File)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrExportTokenRejected, "export file no longer exists")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	name := ticket.File
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return file, name, nil
}

// Cleanup removes exports older than the link lifetime.
func (s *ExportService) Cleanup() (int, error) {
	deleted, err := s.storage.CleanupOlderThan(s.signer.TTL())
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
	}
	return len(deleted), nil
}

// ReportDataset flattens a report into the tabular export shape.
func ReportDataset(report *models.DiffReport) export.Dataset {
	headers := []string{"Item", "Baseline", "Follow-up", "Delta", "Classification"}
	rows := make([]map[string]string, 0, len(report.Entries))
	for _, e := range report.Entries {
		rows = append(rows, map[string]string{
			"Item":           e.Label,
			"Baseline":       e.BaselineValue.String(),
			"Follow-up":      e.FollowUpValue.String(),
			"Delta":          e.Delta.String(),
			"Classification": e.Classification,
		})
	}
	meta := []export.MetaLine{
		{Label: "Patient", Value: fmt.Sprintf("%s (%s)", report.PatientName, report.PatientID)},
		{Label: "Baseline", Value: report.BaselinePeriod},
		{Label: "Follow-up", Value: report.FollowUpPeriod},
		{Label: "Catalog", Value: report.CatalogVersion},
		{Label: "Summary", Value: fmt.Sprintf("%d improved, %d unchanged, %d regressed, %d not evaluated",
			report.Summary.Improved, report.Summary.Unchanged, report.Summary.Regressed, report.Summary.NotEvaluated)},
	}
	return export.Dataset{Headers: headers, Rows: rows, Meta: meta, Widths: []float64{3, 1, 1, 1, 6}}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func exportFileName(report *models.DiffReport, format dto.ExportFormat) string {
	parts := []string{report.PatientID, report.BaselinePeriod, report.FollowUpPeriod}
	for i, p := range parts {
		parts[i] = strings.Trim(unsafeFileChars.ReplaceAllString(p, "-"), "-")
	}
	return fmt.Sprintf("comparison_%s.%s", strings.Join(parts, "_"), format)
}
