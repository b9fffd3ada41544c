package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/patient-progress-api/pkg/config"
)

// OpenSource builds the record source named by cfg.Dataset.Source. db is only
// required for the postgres source.
func OpenSource(ctx context.Context, cfg *config.Config, db *sqlx.DB, catalogs CatalogProvider, logger *zap.Logger) (RecordSource, error) {
	layout := LayoutFromConfig(cfg.Dataset)
	switch cfg.Dataset.Source {
	case config.SourceCSV, "":
		return NewCSVSource(cfg.Dataset.CSVPath, layout, catalogs, logger), nil
	case config.SourceSheets:
		src, err := NewSheetsSource(ctx, cfg.Sheets, layout, catalogs, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourcePostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres source needs a database connection")
		}
		return NewPostgresSource(db, catalogs, logger), nil
	default:
		return nil, fmt.Errorf("unknown dataset source %q", cfg.Dataset.Source)
	}
}
