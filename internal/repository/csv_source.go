package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/patient-progress-api/internal/models"
)

// CSVSource reads a sheet export saved as CSV. Name cells may hold the raw
// HYPERLINK formula when the export kept formulas.
type CSVSource struct {
	path     string
	layout   Layout
	catalogs CatalogProvider
	logger   *zap.Logger
}

// NewCSVSource constructs a CSV-backed source.
func NewCSVSource(path string, layout Layout, catalogs CatalogProvider, logger *zap.Logger) *CSVSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSource{path: path, layout: layout, catalogs: catalogs, logger: logger}
}

// Name identifies the source in logs and metrics.
func (s *CSVSource) Name() string { return "csv" }

// Load reads every row of the file.
func (s *CSVSource) Load(ctx context.Context) ([]models.AssessmentRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", s.path, err)
	}
	defer f.Close()
	return s.read(ctx, f)
}

func (s *CSVSource) read(ctx context.Context, r io.Reader) ([]models.AssessmentRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("dataset %s is empty", s.path)
		}
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	if len(header) > 0 {
		// Spreadsheet exports often start with a UTF-8 BOM.
		header[0] = trimBOM(header[0])
	}
	decoder, err := newRowDecoder(header, s.layout, s.catalogs.Get(), s.logger)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", s.path, err)
	}

	records := make([]models.AssessmentRecord, 0)
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset line %d: %w", line, err)
		}
		if rec, ok := decoder.decode(row, ""); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
