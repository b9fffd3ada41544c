package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/patient-progress-api/internal/catalog"
	"github.com/noah-isme/patient-progress-api/internal/models"
	"github.com/noah-isme/patient-progress-api/pkg/config"
	"github.com/noah-isme/patient-progress-api/pkg/hyperlink"
)

// RecordSource loads every assessment record of a dataset.
type RecordSource interface {
	Name() string
	Load(ctx context.Context) ([]models.AssessmentRecord, error)
}

// CatalogProvider returns the catalog active at the time of a load.
type CatalogProvider interface {
	Get() *catalog.Catalog
}

// Layout names the metadata columns of a sheet export. Every column from
// index MetadataColumns onward holds an item score.
type Layout struct {
	MetadataColumns int
	IDColumn        string
	NameColumn      string
	PeriodColumn    string
}

// LayoutFromConfig maps dataset settings to a Layout.
func LayoutFromConfig(cfg config.DatasetConfig) Layout {
	return Layout{
		MetadataColumns: cfg.MetadataColumns,
		IDColumn:        cfg.IDColumn,
		NameColumn:      cfg.NameColumn,
		PeriodColumn:    cfg.PeriodColumn,
	}
}

// ParseScore normalizes a sheet cell. Blank cells and the N/A markers are not
// evaluated; numbers are rounded per the catalog; anything else is invalid.
func ParseScore(raw string, cat *catalog.Catalog) models.Score {
	value := strings.TrimSpace(raw)
	switch strings.ToUpper(value) {
	case "", "N/A", "NA", "-":
		return models.NotEvaluated()
	}
	f, err := strconv.ParseFloat(strings.Replace(value, ",", ".", 1), 64)
	if err != nil {
		return models.Invalid(value)
	}
	return numericScore(f, value, cat)
}

func numericScore(f float64, raw string, cat *catalog.Catalog) models.Score {
	v, ok := cat.Normalize(f)
	if !ok {
		return models.Invalid(raw)
	}
	return models.Evaluated(v)
}

type rowDecoder struct {
	layout  Layout
	catalog *catalog.Catalog
	logger  *zap.Logger

	idCol, nameCol, periodCol int
	scoreCols                 map[int]string
}

func newRowDecoder(header []string, layout Layout, cat *catalog.Catalog, logger *zap.Logger) (*rowDecoder, error) {
	d := &rowDecoder{
		layout:    layout,
		catalog:   cat,
		logger:    logger,
		idCol:     -1,
		nameCol:   -1,
		periodCol: -1,
		scoreCols: make(map[int]string),
	}
	for i, h := range header {
		name := strings.TrimSpace(h)
		switch {
		case strings.EqualFold(name, layout.IDColumn):
			d.idCol = i
		case strings.EqualFold(name, layout.NameColumn):
			d.nameCol = i
		case strings.EqualFold(name, layout.PeriodColumn):
			d.periodCol = i
		}
		if i < layout.MetadataColumns || name == "" {
			continue
		}
		if _, ok := cat.Position(name); !ok {
			logger.Debug("ignoring column outside the vocabulary", zap.String("column", name))
			continue
		}
		d.scoreCols[i] = name
	}

	var missing []string
	if d.idCol < 0 {
		missing = append(missing, layout.IDColumn)
	}
	if d.nameCol < 0 {
		missing = append(missing, layout.NameColumn)
	}
	if d.periodCol < 0 {
		missing = append(missing, layout.PeriodColumn)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("header is missing columns %s", strings.Join(missing, ", "))
	}
	return d, nil
}

// decode turns one row into a record. nameCell overrides the name column when
// the source renders formulas separately. Rows without an id are skipped.
func (d *rowDecoder) decode(row []string, nameCell string) (models.AssessmentRecord, bool) {
	id := strings.TrimSpace(cell(row, d.idCol))
	if id == "" {
		return models.AssessmentRecord{}, false
	}
	if nameCell == "" {
		nameCell = cell(row, d.nameCol)
	}
	name, url := hyperlink.ParseLinkCell(nameCell)

	rec := models.AssessmentRecord{
		PatientID:   id,
		PatientName: name,
		Period:      strings.TrimSpace(cell(row, d.periodCol)),
		Scores:      make(map[string]models.Score, len(d.scoreCols)),
	}
	if url != "" && url != hyperlink.FallbackURL {
		rec.SourceURL = &url
	}
	for col, label := range d.scoreCols {
		rec.Scores[label] = ParseScore(cell(row, col), d.catalog)
	}
	return rec, true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
