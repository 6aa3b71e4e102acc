package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"cropcast/internal/loader"
	"cropcast/internal/models"
	"cropcast/pkg/database"
	"cropcast/pkg/logging"
	"cropcast/pkg/metrics"
)

// Table names of the survey store
const (
	TableCountryYear     = "country_year_yields"
	TableClimateZoneYear = "climate_zone_year_yields"
	TableClimateZones    = "climate_zones"
	TableIngestionRuns   = "ingestion_runs"
)

// SurveyWriter writes one survey import. Every call made through the same
// writer shares one transaction.
type SurveyWriter interface {
	Truncate(ctx context.Context) error
	InsertYieldsBatch(ctx context.Context, table string, columns []models.Column, rows []models.Row) error
	UpsertClimateZones(ctx context.Context, zones *models.Dataset) error
	RecordIngestionRun(ctx context.Context, run *IngestionRun) error
}

// YieldRepository provides data access for the survey tables
type YieldRepository interface {
	// ReplaceSurvey runs fn in a single transaction. Nothing fn writes is
	// visible, and the previous survey stays in place, unless fn returns nil.
	ReplaceSurvey(ctx context.Context, fn func(w SurveyWriter) error) error

	// Read operations
	LoadCatalog(ctx context.Context) (*models.Catalog, error)
	LatestIngestionRun(ctx context.Context) (*IngestionRun, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// IngestionRun summarises one workbook import
type IngestionRun struct {
	ID              int64     `db:"id"`
	Source          string    `db:"source"`
	CountryYearRows int       `db:"country_year_rows"`
	ZoneYearRows    int       `db:"zone_year_rows"`
	ZoneRows        int       `db:"zone_rows"`
	SkippedRows     int       `db:"skipped_rows"`
	StartedAt       time.Time `db:"started_at"`
	FinishedAt      time.Time `db:"finished_at"`
}

// yieldRecord is one row of either yield table; Dimension holds the country
// or the climate zone
type yieldRecord struct {
	Dimension   sql.NullString  `db:"dimension"`
	Crop        string          `db:"crop"`
	HarvestYear int64           `db:"harvest_year"`
	YP          sql.NullFloat64 `db:"yp"`
	YA          sql.NullFloat64 `db:"ya"`
	YW          sql.NullFloat64 `db:"yw"`
	WPP         sql.NullFloat64 `db:"wpp"`
	WPA         sql.NullFloat64 `db:"wpa"`
	Attributes  []byte          `db:"attributes"`
}

type zoneRecord struct {
	ClimateZone string `db:"climate_zone"`
	Attributes  []byte `db:"attributes"`
}

// yieldRepository implements YieldRepository
type yieldRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewYieldRepository creates a new yield repository
func NewYieldRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) YieldRepository {
	return &yieldRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// surveyTx implements SurveyWriter on an open transaction
type surveyTx struct {
	tx      *sqlx.Tx
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// ReplaceSurvey runs a whole import in one transaction
func (r *yieldRepository) ReplaceSurvey(ctx context.Context, fn func(w SurveyWriter) error) error {
	err := r.db.WithTransaction(ctx, "replace_survey", func(tx *sqlx.Tx) error {
		return fn(&surveyTx{tx: tx, logger: r.logger, metrics: r.metrics})
	})
	if err != nil {
		return fmt.Errorf("survey import rolled back: %w", err)
	}
	return nil
}

// dimensionColumn maps a yield table to its grouping column
func dimensionColumn(table string) (sqlColumn, datasetColumn string, err error) {
	switch table {
	case TableCountryYear:
		return "country", models.ColumnCountry, nil
	case TableClimateZoneYear:
		return "climate_zone", models.ColumnClimateZone, nil
	default:
		return "", "", fmt.Errorf("unknown yield table %q", table)
	}
}

// Truncate removes every survey row ahead of a fresh import
func (w *surveyTx) Truncate(ctx context.Context) error {
	query := fmt.Sprintf("TRUNCATE %s, %s, %s RESTART IDENTITY", TableCountryYear, TableClimateZoneYear, TableClimateZones)
	if _, err := w.tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to truncate survey tables: %w", err)
	}
	return nil
}

// InsertYieldsBatch inserts rows of a sheet with the given columns into a
// yield table
func (w *surveyTx) InsertYieldsBatch(ctx context.Context, table string, columns []models.Column, rows []models.Row) error {
	if len(rows) == 0 {
		return nil
	}
	sqlCol, dsCol, err := dimensionColumn(table)
	if err != nil {
		return err
	}
	extra := extraColumns(columns, dsCol)

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		w.metrics.IngestionBatchSize.Observe(float64(len(rows)))
		w.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
			"table":       table,
			"count":       len(rows),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, crop, harvest_year, yp, ya, yw, wpp, wpa, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, table, sqlCol)

	stmt, err := w.tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		args, err := yieldArgs(row, dsCol, extra)
		if err != nil {
			return fmt.Errorf("failed to insert into %s: row %d: %w", table, i, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: row %d: %w", table, i, err)
		}
	}
	return nil
}

// UpsertClimateZones stores the zone metadata sheet; every column other than
// CLIMATEZONE is kept as a JSONB attribute
func (w *surveyTx) UpsertClimateZones(ctx context.Context, zones *models.Dataset) error {
	if zones.Len() == 0 {
		return nil
	}
	if _, ok := zones.Column(models.ColumnClimateZone); !ok {
		return &models.ValidationError{Field: models.ColumnClimateZone, Value: zones.Name, Message: "zone sheet has no CLIMATEZONE column"}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (climate_zone, attributes)
		VALUES ($1, $2)
		ON CONFLICT (climate_zone) DO UPDATE SET attributes = EXCLUDED.attributes
	`, TableClimateZones)

	stmt, err := w.tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range zones.Rows {
		zone, attrs, ok := zoneAttributes(zones, row)
		if !ok {
			continue
		}
		if _, err := stmt.ExecContext(ctx, zone, string(attrs)); err != nil {
			return fmt.Errorf("failed to store climate zones: zone %s: %w", zone, err)
		}
	}
	return nil
}

// RecordIngestionRun appends an import summary
func (w *surveyTx) RecordIngestionRun(ctx context.Context, run *IngestionRun) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (source, country_year_rows, zone_year_rows, zone_rows, skipped_rows, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, TableIngestionRuns)

	err := w.tx.GetContext(ctx, &run.ID, query,
		run.Source,
		run.CountryYearRows,
		run.ZoneYearRows,
		run.ZoneRows,
		run.SkippedRows,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record ingestion run: %w", err)
	}
	return nil
}

// LatestIngestionRun returns the most recent import summary
func (r *yieldRepository) LatestIngestionRun(ctx context.Context) (*IngestionRun, error) {
	query := fmt.Sprintf(`
		SELECT id, source, country_year_rows, zone_year_rows, zone_rows, skipped_rows, started_at, finished_at
		FROM %s
		ORDER BY finished_at DESC, id DESC
		LIMIT 1
	`, TableIngestionRuns)

	var run IngestionRun
	err := r.db.GetContext(ctx, "latest_ingestion_run", &run, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "ingestion_run", ID: "latest"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion run: %w", err)
	}
	return &run, nil
}

// LoadCatalog reads the three survey tables back into typed datasets
func (r *yieldRepository) LoadCatalog(ctx context.Context) (*models.Catalog, error) {
	timer := time.Now()

	countryYear, err := r.loadYields(ctx, TableCountryYear, models.DatasetCountryYear)
	if err != nil {
		return nil, err
	}
	if countryYear.Len() == 0 {
		return nil, &NotFoundError{Resource: "survey_table", ID: TableCountryYear}
	}
	zoneYear, err := r.loadYields(ctx, TableClimateZoneYear, models.DatasetClimateZoneYear)
	if err != nil {
		return nil, err
	}

	var zones []zoneRecord
	query := fmt.Sprintf("SELECT climate_zone, attributes FROM %s ORDER BY climate_zone", TableClimateZones)
	if err := r.db.SelectContext(ctx, "load_climate_zones", &zones, query); err != nil {
		return nil, fmt.Errorf("failed to load climate zones: %w", err)
	}
	zoneDS, err := zonesToDataset(zones)
	if err != nil {
		return nil, err
	}

	catalog := &models.Catalog{CountryYear: countryYear, ClimateZoneYear: zoneYear, ClimateZone: zoneDS}
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("stored survey is incomplete: %w", err)
	}

	r.logger.Info(ctx, "[REPO_LOAD_CATALOG] Survey loaded from database", logging.Fields{
		"country_year_rows": countryYear.Len(),
		"zone_year_rows":    zoneYear.Len(),
		"zone_rows":         zoneDS.Len(),
		"duration_ms":       time.Since(timer).Milliseconds(),
	})
	return catalog, nil
}

func (r *yieldRepository) loadYields(ctx context.Context, table, name string) (*models.Dataset, error) {
	sqlCol, dsCol, err := dimensionColumn(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s AS dimension, crop, harvest_year, yp, ya, yw, wpp, wpa, attributes
		FROM %s
		ORDER BY id
	`, sqlCol, table)

	var recs []yieldRecord
	if err := r.db.SelectContext(ctx, "load_"+table, &recs, query); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}
	return yieldsToDataset(name, dsCol, recs)
}

// HealthCheck performs a repository health check
func (r *yieldRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// yieldMetrics are the measurements stored in their own SQL columns
var yieldMetrics = []string{models.ColumnYP, models.ColumnYA, models.ColumnYW, models.ColumnWPP, models.ColumnWPA}

// extraColumns lists the sheet columns kept in the attributes object
func extraColumns(columns []models.Column, dimension string) []string {
	fixed := map[string]bool{dimension: true, models.ColumnCrop: true, models.ColumnHarvestYear: true}
	for _, m := range yieldMetrics {
		fixed[m] = true
	}
	var extra []string
	for _, c := range columns {
		if !fixed[c.Name] {
			extra = append(extra, c.Name)
		}
	}
	return extra
}

// yieldArgs orders a row's values as the insert statement expects. Extra
// columns go into a JSON object; a missing cell is kept as null so the column
// survives even when it is empty.
func yieldArgs(row models.Row, dimension string, extra []string) ([]interface{}, error) {
	crop, ok := row.Get(models.ColumnCrop).Text()
	if !ok {
		return nil, &models.ValidationError{Field: models.ColumnCrop, Message: "crop is required"}
	}
	year, ok := row.Get(models.ColumnHarvestYear).Int()
	if !ok {
		return nil, &models.ValidationError{Field: models.ColumnHarvestYear, Message: "harvest year is required"}
	}

	var dim sql.NullString
	if s, ok := row.Get(dimension).Text(); ok {
		dim = sql.NullString{String: s, Valid: true}
	}

	args := []interface{}{dim, crop, year}
	for _, col := range yieldMetrics {
		var nf sql.NullFloat64
		if f, ok := row.Get(col).Number(); ok {
			nf = sql.NullFloat64{Float64: f, Valid: true}
		}
		args = append(args, nf)
	}

	attrs := make(map[string]*string, len(extra))
	for _, name := range extra {
		v := row.Get(name)
		if v.IsMissing() {
			attrs[name] = nil
			continue
		}
		text := v.String()
		attrs[name] = &text
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	return append(args, string(b)), nil
}

// zoneAttributes splits a zone row into its key and JSON attribute object
func zoneAttributes(ds *models.Dataset, row models.Row) (string, []byte, bool) {
	zone, ok := row.Get(models.ColumnClimateZone).Text()
	if !ok {
		return "", nil, false
	}
	attrs := make(map[string]string, len(ds.Columns)-1)
	for _, c := range ds.Columns {
		if c.Name == models.ColumnClimateZone {
			continue
		}
		v := row.Get(c.Name)
		if v.IsMissing() {
			continue
		}
		attrs[c.Name] = v.String()
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", nil, false
	}
	return zone, b, true
}

func nullFloatText(nf sql.NullFloat64) string {
	if !nf.Valid {
		return ""
	}
	return strconv.FormatFloat(nf.Float64, 'g', -1, 64)
}

// yieldsToDataset rebuilds a yield dataset. Records pass through the workbook
// typing rules, and extra columns come back from the attributes object in
// name order after the fixed survey columns.
func yieldsToDataset(name, dimension string, recs []yieldRecord) (*models.Dataset, error) {
	attrs := make([]map[string]*string, len(recs))
	keys := map[string]struct{}{}
	for i, rec := range recs {
		m := map[string]*string{}
		if len(rec.Attributes) > 0 {
			if err := json.Unmarshal(rec.Attributes, &m); err != nil {
				return nil, fmt.Errorf("%s record %d: decode attributes: %w", name, i+1, err)
			}
		}
		attrs[i] = m
		for k := range m {
			keys[k] = struct{}{}
		}
	}
	extra := make([]string, 0, len(keys))
	for k := range keys {
		extra = append(extra, k)
	}
	sort.Strings(extra)

	header := append([]string{dimension, models.ColumnCrop, models.ColumnHarvestYear}, yieldMetrics...)
	header = append(header, extra...)

	records := make([][]string, len(recs))
	for i, rec := range recs {
		line := []string{
			rec.Dimension.String,
			rec.Crop,
			strconv.FormatInt(rec.HarvestYear, 10),
			nullFloatText(rec.YP),
			nullFloatText(rec.YA),
			nullFloatText(rec.YW),
			nullFloatText(rec.WPP),
			nullFloatText(rec.WPA),
		}
		for _, k := range extra {
			var text string
			if v := attrs[i][k]; v != nil {
				text = *v
			}
			line = append(line, text)
		}
		records[i] = line
	}
	return loader.BuildDataset(name, header, records)
}

// zonesToDataset rebuilds the zone metadata sheet from JSONB attributes
func zonesToDataset(recs []zoneRecord) (*models.Dataset, error) {
	attrs := make([]map[string]string, len(recs))
	keys := map[string]struct{}{}
	for i, rec := range recs {
		m := map[string]string{}
		if len(rec.Attributes) > 0 {
			if err := json.Unmarshal(rec.Attributes, &m); err != nil {
				return nil, fmt.Errorf("zone %s: decode attributes: %w", rec.ClimateZone, err)
			}
		}
		attrs[i] = m
		for k := range m {
			keys[k] = struct{}{}
		}
	}

	header := []string{models.ColumnClimateZone}
	extra := make([]string, 0, len(keys))
	for k := range keys {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	header = append(header, extra...)

	records := make([][]string, len(recs))
	for i, rec := range recs {
		line := make([]string, len(header))
		line[0] = rec.ClimateZone
		for j, k := range extra {
			line[j+1] = attrs[i][k]
		}
		records[i] = line
	}
	return loader.BuildDataset(models.DatasetClimateZone, header, records)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// IsTransient returns false as missing resources do not appear on retry
func (e *NotFoundError) IsTransient() bool {
	return false
}
