package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/noah-isme/patient-progress-api/internal/models"
	"github.com/noah-isme/patient-progress-api/pkg/config"
)

const (
	renderFormula     = "FORMULA"
	renderUnformatted = "UNFORMATTED_VALUE"
)

// SheetsSource reads the assessment spreadsheet through the Sheets API.
type SheetsSource struct {
	service       *sheets.Service
	spreadsheetID string
	readRange     string
	timeout       time.Duration
	layout        Layout
	catalogs      CatalogProvider
	logger        *zap.Logger
}

// SheetsClientOptions builds credentials from config. Inline JSON wins over a
// credentials file; with neither, application default credentials apply.
func SheetsClientOptions(cfg config.SheetsConfig) []option.ClientOption {
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsReadonlyScope)}
	if creds := strings.TrimSpace(cfg.CredentialsJSON); creds != "" {
		return append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		return append(opts, option.WithCredentialsFile(path))
	}
	return opts
}

// NewSheetsSource creates the Sheets client. Extra options are appended after
// the credential options.
func NewSheetsSource(ctx context.Context, cfg config.SheetsConfig, layout Layout, catalogs CatalogProvider, logger *zap.Logger, extra ...option.ClientOption) (*SheetsSource, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, fmt.Errorf("sheets source requires a spreadsheet id")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := extra
	if len(opts) == 0 {
		opts = SheetsClientOptions(cfg)
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &SheetsSource{
		service:       svc,
		spreadsheetID: cfg.SpreadsheetID,
		readRange:     cfg.Range,
		timeout:       cfg.Timeout,
		layout:        layout,
		catalogs:      catalogs,
		logger:        logger,
	}, nil
}

// Name identifies the source in logs and metrics.
func (s *SheetsSource) Name() string { return "sheets" }

// Load fetches the range twice in parallel: formulas for the hyperlinked name
// column and unformatted values for everything else.
func (s *SheetsSource) Load(ctx context.Context) ([]models.AssessmentRecord, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var values, formulas [][]interface{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.fetch(gctx, renderUnformatted)
		values = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.fetch(gctx, renderFormula)
		formulas = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("spreadsheet range %s is empty", s.readRange)
	}

	decoder, err := newRowDecoder(stringRow(values[0]), s.layout, s.catalogs.Get(), s.logger)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet %s: %w", s.spreadsheetID, err)
	}

	records := make([]models.AssessmentRecord, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		nameCell := ""
		if i < len(formulas) {
			nameCell = cell(stringRow(formulas[i]), decoder.nameCol)
		}
		if rec, ok := decoder.decode(stringRow(values[i]), nameCell); ok {
			records = append(records, rec)
		}
	}
	s.logger.Debug("spreadsheet loaded", zap.String("spreadsheet", s.spreadsheetID), zap.Int("rows", len(values)-1), zap.Int("records", len(records)))
	return records, nil
}

func (s *SheetsSource) fetch(ctx context.Context, render string) ([][]interface{}, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).
		ValueRenderOption(render).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("fetch %s render of %s: %w", strings.ToLower(render), s.readRange, err)
	}
	return resp.Values, nil
}

func stringRow(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		switch val := v.(type) {
		case nil:
		case string:
			out[i] = val
		case float64:
			out[i] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[i] = strconv.FormatBool(val)
		default:
			out[i] = fmt.Sprint(val)
		}
	}
	return out
}
