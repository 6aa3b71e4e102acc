package services

import (
	"context"
	"fmt"
	"time"

	"cropcast/internal/models"
	"cropcast/internal/repository"
	"cropcast/pkg/logging"
	"cropcast/pkg/metrics"
)

// DefaultBatchSize is used when the caller passes a non-positive batch size
const DefaultBatchSize = 500

// WorkbookLoader reads a survey workbook from disk
type WorkbookLoader interface {
	LoadFile(ctx context.Context, path string) (*models.Catalog, error)
}

// IngestionService copies a survey workbook into the relational store
type IngestionService struct {
	repo    repository.YieldRepository
	loader  WorkbookLoader
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	Source          string
	CountryYearRows int
	ZoneYearRows    int
	ZoneRows        int
	SkippedRows     int
	Duration        time.Duration
	Errors          []string
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.YieldRepository, wl WorkbookLoader, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		repo:    repo,
		loader:  wl,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// IngestWorkbook replaces the stored survey with the contents of the workbook
// at path in one transaction; on any store error the previous survey is kept.
// Rows without a crop, a harvest year or (for the zone table) a climate zone
// are skipped and counted.
func (s *IngestionService) IngestWorkbook(ctx context.Context, path string, batchSize int) (*IngestionResult, error) {
	startTime := time.Now()
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	s.logger.Info(ctx, "[INGEST_START] Starting workbook ingestion", logging.Fields{
		"path":       path,
		"batch_size": batchSize,
		"stage":      "INITIALIZATION",
	})

	catalog, err := s.loader.LoadFile(ctx, path)
	if err != nil {
		s.metrics.RecordIngestionError("workbook_error")
		return nil, fmt.Errorf("failed to load workbook: %w", err)
	}

	result := &IngestionResult{Source: path, Errors: make([]string, 0)}
	var run *repository.IngestionRun

	err = s.repo.ReplaceSurvey(ctx, func(w repository.SurveyWriter) error {
		if err := w.Truncate(ctx); err != nil {
			return err
		}

		tables := []struct {
			table     string
			ds        *models.Dataset
			dimension string
			required  bool
			count     *int
		}{
			{repository.TableCountryYear, catalog.CountryYear, models.ColumnCountry, false, &result.CountryYearRows},
			{repository.TableClimateZoneYear, catalog.ClimateZoneYear, models.ColumnClimateZone, true, &result.ZoneYearRows},
		}

		for _, t := range tables {
			inserted, skipped, err := s.ingestDataset(ctx, w, t.table, t.ds, t.dimension, t.required, batchSize, result)
			if err != nil {
				return err
			}
			*t.count = inserted
			result.SkippedRows += skipped

			s.logger.Info(ctx, "[INGEST_TABLE_STAGED] Table staged", logging.Fields{
				"table":   t.table,
				"rows":    inserted,
				"skipped": skipped,
				"stage":   "TABLE_COMPLETE",
			})
		}

		if catalog.ClimateZone != nil {
			if err := w.UpsertClimateZones(ctx, catalog.ClimateZone); err != nil {
				return err
			}
			result.ZoneRows = catalog.ClimateZone.Len()
		}

		result.Duration = time.Since(startTime)
		run = &repository.IngestionRun{
			Source:          path,
			CountryYearRows: result.CountryYearRows,
			ZoneYearRows:    result.ZoneYearRows,
			ZoneRows:        result.ZoneRows,
			SkippedRows:     result.SkippedRows,
			StartedAt:       startTime.UTC(),
			FinishedAt:      time.Now().UTC(),
		}
		return w.RecordIngestionRun(ctx, run)
	})
	if err != nil {
		s.metrics.RecordIngestionError("store_error")
		s.logger.Error(ctx, "[INGEST_ROLLBACK] Ingestion aborted, stored survey unchanged", logging.Fields{
			"path":  path,
			"stage": "ROLLBACK",
		}, err)
		return nil, err
	}

	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())
	s.metrics.IngestionRecordsTotal.Add(float64(result.CountryYearRows + result.ZoneYearRows))

	s.logger.Info(ctx, "[INGEST_COMPLETE] Workbook ingestion completed", logging.Fields{
		"run_id":            run.ID,
		"country_year_rows": result.CountryYearRows,
		"zone_year_rows":    result.ZoneYearRows,
		"zone_rows":         result.ZoneRows,
		"skipped_rows":      result.SkippedRows,
		"duration_seconds":  result.Duration.Seconds(),
		"stage":             "COMPLETE",
	})

	return result, nil
}

func (s *IngestionService) ingestDataset(ctx context.Context, w repository.SurveyWriter, table string, ds *models.Dataset, dimension string, dimensionRequired bool, batchSize int, result *IngestionResult) (inserted, skipped int, err error) {
	batch := make([]models.Row, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.InsertYieldsBatch(ctx, table, ds.Columns, batch); err != nil {
			return fmt.Errorf("failed to insert batch into %s: %w", table, err)
		}
		inserted += len(batch)
		batch = batch[:0]
		return nil
	}

	for i, row := range ds.Rows {
		if err := ctx.Err(); err != nil {
			return inserted, skipped, err
		}
		if reason := rowProblem(row, dimension, dimensionRequired); reason != "" {
			skipped++
			s.metrics.RecordIngestionError("validation_error")
			result.Errors = append(result.Errors, fmt.Sprintf("%s record %d: %s", ds.Name, i+1, reason))
			continue
		}
		batch = append(batch, row)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return inserted, skipped, err
			}
		}
	}
	if err := flush(); err != nil {
		return inserted, skipped, err
	}
	return inserted, skipped, nil
}

// rowProblem describes why a row cannot be stored, or returns ""
func rowProblem(row models.Row, dimension string, dimensionRequired bool) string {
	if _, ok := row.Get(models.ColumnCrop).Text(); !ok {
		return "missing " + models.ColumnCrop
	}
	if _, ok := row.Get(models.ColumnHarvestYear).Int(); !ok {
		return "missing " + models.ColumnHarvestYear
	}
	if dimensionRequired {
		if _, ok := row.Get(dimension).Text(); !ok {
			return "missing " + dimension
		}
	}
	return ""
}
