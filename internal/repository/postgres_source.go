package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/patient-progress-api/internal/models"
)

type recordRow struct {
	ID          int64          `db:"id"`
	PatientID   string         `db:"patient_id"`
	PatientName string         `db:"patient_name"`
	Period      string         `db:"period"`
	SourceURL   sql.NullString `db:"source_url"`
}

type scoreRow struct {
	RecordID int64           `db:"record_id"`
	Label    string          `db:"label"`
	Value    sql.NullFloat64 `db:"value"`
	Raw      sql.NullString  `db:"raw"`
}

// PostgresSource reads records mirrored into the assessment_records and
// assessment_scores tables.
type PostgresSource struct {
	db       *sqlx.DB
	catalogs CatalogProvider
	logger   *zap.Logger
}

// NewPostgresSource constructs a database-backed source.
func NewPostgresSource(db *sqlx.DB, catalogs CatalogProvider, logger *zap.Logger) *PostgresSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresSource{db: db, catalogs: catalogs, logger: logger}
}

// Name identifies the source in logs and metrics.
func (s *PostgresSource) Name() string { return "postgres" }

// Load reads every record with its scores in insertion order.
func (s *PostgresSource) Load(ctx context.Context) ([]models.AssessmentRecord, error) {
	const recordsQuery = `SELECT id, patient_id, patient_name, period, source_url FROM assessment_records ORDER BY id`
	const scoresQuery = `SELECT record_id, label, value, raw FROM assessment_scores ORDER BY record_id`

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, recordsQuery); err != nil {
		return nil, fmt.Errorf("list assessment records: %w", err)
	}
	var scores []scoreRow
	if err := s.db.SelectContext(ctx, &scores, scoresQuery); err != nil {
		return nil, fmt.Errorf("list assessment scores: %w", err)
	}

	cat := s.catalogs.Get()
	records := make([]models.AssessmentRecord, 0, len(rows))
	index := make(map[int64]int, len(rows))
	for _, row := range rows {
		rec := models.AssessmentRecord{
			PatientID:   row.PatientID,
			PatientName: row.PatientName,
			Period:      row.Period,
			Scores:      make(map[string]models.Score),
		}
		if row.SourceURL.Valid && row.SourceURL.String != "" {
			url := row.SourceURL.String
			rec.SourceURL = &url
		}
		index[row.ID] = len(records)
		records = append(records, rec)
	}

	for _, sc := range scores {
		i, ok := index[sc.RecordID]
		if !ok {
			continue
		}
		if _, known := cat.Position(sc.Label); !known {
			s.logger.Debug("ignoring score outside the vocabulary", zap.String("label", sc.Label))
			continue
		}
		switch {
		case sc.Value.Valid:
			raw := sc.Raw.String
			if !sc.Raw.Valid || raw == "" {
				raw = strconv.FormatFloat(sc.Value.Float64, 'g', -1, 64)
			}
			records[i].Scores[sc.Label] = numericScore(sc.Value.Float64, raw, cat)
		case sc.Raw.Valid && sc.Raw.String != "":
			records[i].Scores[sc.Label] = ParseScore(sc.Raw.String, cat)
		default:
			records[i].Scores[sc.Label] = models.NotEvaluated()
		}
	}
	return records, nil
}
