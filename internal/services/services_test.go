package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcast/internal/config"
	"cropcast/internal/models"
	"cropcast/internal/repository"
	"cropcast/pkg/logging"
	"cropcast/pkg/metrics"
)

func quietLogger() *logging.StructuredLogger {
	l := logging.NewStructuredLogger("services-test", "test", logging.ErrorLevel)
	l.SetOutput(io.Discard)
	return l
}

func testMetrics() *metrics.Collector {
	return metrics.NewCollector("cropcast_test", prometheus.NewRegistry())
}

var yieldColumns = []models.Column{
	{Name: models.ColumnCountry, Type: models.TypeCategorical},
	{Name: models.ColumnCrop, Type: models.TypeCategorical},
	{Name: models.ColumnHarvestYear, Type: models.TypeInteger},
	{Name: models.ColumnYP, Type: models.TypeFloat},
	{Name: models.ColumnYA, Type: models.TypeFloat},
	{Name: models.ColumnYW, Type: models.TypeFloat},
}

var zoneColumns = []models.Column{
	{Name: models.ColumnClimateZone, Type: models.TypeCategorical},
	{Name: models.ColumnCrop, Type: models.TypeCategorical},
	{Name: models.ColumnHarvestYear, Type: models.TypeInteger},
	{Name: models.ColumnYP, Type: models.TypeFloat},
	{Name: models.ColumnYA, Type: models.TypeFloat},
	{Name: models.ColumnYW, Type: models.TypeFloat},
}

func yieldRow(dim, dimValue, crop string, year int, yp float64) models.Row {
	r := models.Row{
		models.ColumnCrop:        models.Categorical(crop),
		models.ColumnHarvestYear: models.Integer(int64(year)),
		models.ColumnYP:          models.Float(yp),
		models.ColumnYA:          models.Float(yp / 2),
		models.ColumnYW:          models.Float(yp - 1),
	}
	if dimValue != "" {
		r[dim] = models.Categorical(dimValue)
	}
	return r
}

// testCatalog holds Wheat 2010-2014 with YP rising by 1 a year and a short
// Barley series
func testCatalog(t *testing.T) *models.Catalog {
	t.Helper()
	var cy, zy []models.Row
	for i, year := range []int{2010, 2011, 2012, 2013, 2014} {
		cy = append(cy, yieldRow(models.ColumnCountry, "Australia", "Wheat", year, float64(5+i)))
		zy = append(zy, yieldRow(models.ColumnClimateZone, "5101", "Wheat", year, float64(6+i)))
	}
	cy = append(cy, yieldRow(models.ColumnCountry, "Australia", "Barley", 2012, 4))
	zy = append(zy, yieldRow(models.ColumnClimateZone, "6001", "Barley", 2012, 3))

	countryYear, err := models.NewDataset(models.DatasetCountryYear, yieldColumns, cy)
	require.NoError(t, err)
	zoneYear, err := models.NewDataset(models.DatasetClimateZoneYear, zoneColumns, zy)
	require.NoError(t, err)
	return &models.Catalog{CountryYear: countryYear, ClimateZoneYear: zoneYear}
}

type stubSource struct {
	mu      sync.Mutex
	catalog *models.Catalog
	err     error
	calls   int
}

func (s *stubSource) LoadCatalog(ctx context.Context) (*models.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.catalog, s.err
}

func analyticsConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		CacheSize:      2,
		DefaultHorizon: 3,
		DefaultWindow:  2,
		DefaultDelta:   2.0,
		DefaultMetric:  models.ColumnYP,
	}
}

func newAnalyticsService(t *testing.T, m *metrics.Collector) *AnalyticsService {
	t.Helper()
	svc, err := NewAnalyticsService(context.Background(), &stubSource{catalog: testCatalog(t)}, analyticsConfig(), quietLogger(), m)
	require.NoError(t, err)
	return svc
}

func TestAnalyticsService_Defaults(t *testing.T) {
	svc := newAnalyticsService(t, testMetrics())

	p := svc.Defaults()
	assert.Equal(t, models.Parameters{
		Crop:             "Barley",
		YearMin:          2010,
		YearMax:          2014,
		YieldMetric:      models.ColumnYP,
		TemperatureDelta: 2.0,
		MAWindow:         2,
		Horizon:          3,
	}, p)

	b := svc.Bounds()
	assert.Equal(t, []string{"Barley", "Wheat"}, b.Crops)
}

func TestAnalyticsService_AnalyzeCaches(t *testing.T) {
	m := testMetrics()
	svc := newAnalyticsService(t, m)
	ctx := context.Background()

	p := svc.Defaults()
	p.Crop = "Wheat"

	first, err := svc.Analyze(ctx, p)
	require.NoError(t, err)
	require.NotNil(t, first.Forecast)
	assert.Equal(t, 2015, first.Forecast.Points[0].Year)
	assert.InDelta(t, 10.0, first.Forecast.Points[0].Value, 1e-9)

	second, err := svc.Analyze(ctx, p)
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsTotal.WithLabelValues("ok")))
}

func TestAnalyticsService_CacheEviction(t *testing.T) {
	m := testMetrics()
	svc := newAnalyticsService(t, m)
	ctx := context.Background()

	base := svc.Defaults()
	base.Crop = "Wheat"
	var reports []interface{}
	for _, delta := range []float64{1, 2, 3} {
		p := base
		p.TemperatureDelta = delta
		r, err := svc.Analyze(ctx, p)
		require.NoError(t, err)
		reports = append(reports, r)
	}
	assert.Equal(t, 2, svc.cache.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheEntries))

	// delta=1 was inserted first and has been evicted
	p := base
	p.TemperatureDelta = 1
	again, err := svc.Analyze(ctx, p)
	require.NoError(t, err)
	assert.NotSame(t, reports[0], again)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestAnalyticsService_InvalidParameters(t *testing.T) {
	m := testMetrics()
	svc := newAnalyticsService(t, m)

	p := svc.Defaults()
	p.Crop = "Rice"
	_, err := svc.Analyze(context.Background(), p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsTotal.WithLabelValues("invalid")))
	assert.Equal(t, 0, svc.cache.Len())
}

func TestAnalyticsService_IssuesAreCounted(t *testing.T) {
	m := testMetrics()
	svc := newAnalyticsService(t, m)

	p := svc.Defaults()
	p.Crop = "Barley"
	report, err := svc.Analyze(context.Background(), p)
	require.NoError(t, err)

	_, ok := report.Issue("forecast")
	assert.True(t, ok, "one Barley year cannot be forecast")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ComponentIssues.WithLabelValues("forecast")))
}

func TestAnalyticsService_CancelledContext(t *testing.T) {
	svc := newAnalyticsService(t, testMetrics())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Analyze(ctx, svc.Defaults())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyticsService_ConcurrentIdenticalRequests(t *testing.T) {
	svc := newAnalyticsService(t, testMetrics())
	p := svc.Defaults()
	p.Crop = "Wheat"

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := svc.Analyze(context.Background(), p)
			if err != nil || r.Forecast == nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(0), failures.Load())
	assert.Equal(t, 1, svc.cache.Len())
}

func TestAnalyticsService_Reload(t *testing.T) {
	src := &stubSource{catalog: testCatalog(t)}
	svc, err := NewAnalyticsService(context.Background(), src, analyticsConfig(), quietLogger(), testMetrics())
	require.NoError(t, err)

	p := svc.Defaults()
	p.Crop = "Wheat"
	first, err := svc.Analyze(context.Background(), p)
	require.NoError(t, err)

	require.NoError(t, svc.Reload(context.Background()))
	assert.Equal(t, 0, svc.cache.Len())

	second, err := svc.Analyze(context.Background(), p)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, src.calls)

	src.err = errors.New("disk gone")
	assert.Error(t, svc.Reload(context.Background()))
	// the previous engine keeps serving
	_, err = svc.Analyze(context.Background(), p)
	assert.NoError(t, err)
}

func TestNewAnalyticsService_BadCatalog(t *testing.T) {
	_, err := NewAnalyticsService(context.Background(), &stubSource{catalog: &models.Catalog{}}, analyticsConfig(), quietLogger(), testMetrics())
	assert.Error(t, err)
}

func TestReportCache_FIFO(t *testing.T) {
	c := newReportCache(2)
	c.Put("a", nil)
	c.Put("b", nil)
	c.Put("a", nil) // refresh does not reorder
	c.Put("c", nil)

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

// fakeRepo keeps a committed survey and applies an import only when the
// whole ReplaceSurvey callback succeeds
type fakeRepo struct {
	survey    *fakeSurvey
	runs      []*repository.IngestionRun
	failTable string
}

// fakeSurvey is the state one import writes
type fakeSurvey struct {
	truncated bool
	rows      map[string][]models.Row
	columns   map[string][]models.Column
	zones     *models.Dataset
	runs      []*repository.IngestionRun
	batches   []int
	failTable string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{survey: &fakeSurvey{rows: map[string][]models.Row{}, columns: map[string][]models.Column{}}}
}

func (f *fakeRepo) ReplaceSurvey(ctx context.Context, fn func(w repository.SurveyWriter) error) error {
	staged := &fakeSurvey{
		rows:      map[string][]models.Row{},
		columns:   map[string][]models.Column{},
		failTable: f.failTable,
	}
	for table, rows := range f.survey.rows {
		staged.rows[table] = append([]models.Row(nil), rows...)
	}
	staged.zones = f.survey.zones
	if err := fn(staged); err != nil {
		return fmt.Errorf("survey import rolled back: %w", err)
	}
	f.survey = staged
	f.runs = append(f.runs, staged.runs...)
	return nil
}

func (s *fakeSurvey) Truncate(ctx context.Context) error {
	s.truncated = true
	s.rows = map[string][]models.Row{}
	s.zones = nil
	return nil
}

func (s *fakeSurvey) InsertYieldsBatch(ctx context.Context, table string, columns []models.Column, rows []models.Row) error {
	if table == s.failTable {
		return errors.New("insert failed")
	}
	s.batches = append(s.batches, len(rows))
	s.columns[table] = columns
	s.rows[table] = append(s.rows[table], append([]models.Row(nil), rows...)...)
	return nil
}

func (s *fakeSurvey) UpsertClimateZones(ctx context.Context, zones *models.Dataset) error {
	s.zones = zones
	return nil
}

func (s *fakeSurvey) RecordIngestionRun(ctx context.Context, run *repository.IngestionRun) error {
	run.ID = 1
	s.runs = append(s.runs, run)
	return nil
}

func (f *fakeRepo) LoadCatalog(ctx context.Context) (*models.Catalog, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRepo) LatestIngestionRun(ctx context.Context) (*repository.IngestionRun, error) {
	if len(f.runs) == 0 {
		return nil, &repository.NotFoundError{Resource: "ingestion_run", ID: "latest"}
	}
	return f.runs[len(f.runs)-1], nil
}

func (f *fakeRepo) HealthCheck(ctx context.Context) error { return nil }

type stubLoader struct {
	catalog *models.Catalog
	err     error
}

func (s *stubLoader) LoadFile(ctx context.Context, path string) (*models.Catalog, error) {
	return s.catalog, s.err
}

func TestIngestionService_IngestWorkbook(t *testing.T) {
	catalog := testCatalog(t)
	// append rows the store cannot take
	bad := []models.Row{
		{models.ColumnCrop: models.Categorical("Wheat"), models.ColumnYP: models.Float(math.NaN())},
		{models.ColumnCrop: models.Categorical("Wheat"), models.ColumnHarvestYear: models.Integer(2015)},
	}
	zoneRows := append(append([]models.Row(nil), catalog.ClimateZoneYear.Rows...), bad[1])
	zy, err := models.NewDataset(models.DatasetClimateZoneYear, zoneColumns, zoneRows)
	require.NoError(t, err)
	cyRows := append(append([]models.Row(nil), catalog.CountryYear.Rows...), bad[0], bad[1])
	cy, err := models.NewDataset(models.DatasetCountryYear, yieldColumns, cyRows)
	require.NoError(t, err)

	zones, err := models.NewDataset(models.DatasetClimateZone,
		[]models.Column{{Name: models.ColumnClimateZone, Type: models.TypeCategorical}},
		[]models.Row{{models.ColumnClimateZone: models.Categorical("5101")}})
	require.NoError(t, err)

	repo := newFakeRepo()
	m := testMetrics()
	svc := NewIngestionService(repo, &stubLoader{catalog: &models.Catalog{CountryYear: cy, ClimateZoneYear: zy, ClimateZone: zones}}, quietLogger(), m)

	result, err := svc.IngestWorkbook(context.Background(), "survey.xlsx", 4)
	require.NoError(t, err)

	assert.True(t, repo.survey.truncated)
	// country rows without a country are fine; the one without a year is not
	assert.Equal(t, 7, result.CountryYearRows)
	// the zone row without CLIMATEZONE is skipped
	assert.Equal(t, 6, result.ZoneYearRows)
	assert.Equal(t, 1, result.ZoneRows)
	assert.Equal(t, 2, result.SkippedRows)
	assert.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], models.ColumnHarvestYear)

	assert.Len(t, repo.survey.rows[repository.TableCountryYear], 7)
	assert.Len(t, repo.survey.rows[repository.TableClimateZoneYear], 6)
	assert.Equal(t, []int{4, 3, 4, 2}, repo.survey.batches)
	assert.Equal(t, yieldColumns, repo.survey.columns[repository.TableCountryYear])
	assert.Same(t, zones, repo.survey.zones)

	require.Len(t, repo.runs, 1)
	assert.Equal(t, "survey.xlsx", repo.runs[0].Source)
	assert.Equal(t, 2, repo.runs[0].SkippedRows)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestionErrorsTotal.WithLabelValues("validation_error")))
	assert.Equal(t, 13.0, testutil.ToFloat64(m.IngestionRecordsTotal))
}

func TestIngestionService_Errors(t *testing.T) {
	t.Run("workbook", func(t *testing.T) {
		m := testMetrics()
		svc := NewIngestionService(newFakeRepo(), &stubLoader{err: errors.New("bad zip")}, quietLogger(), m)
		_, err := svc.IngestWorkbook(context.Background(), "x.xlsx", 0)
		require.Error(t, err)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestionErrorsTotal.WithLabelValues("workbook_error")))
	})

	t.Run("insert", func(t *testing.T) {
		previousZones, err := models.NewDataset(models.DatasetClimateZone,
			[]models.Column{{Name: models.ColumnClimateZone, Type: models.TypeCategorical}},
			[]models.Row{{models.ColumnClimateZone: models.Categorical("5101")}})
		require.NoError(t, err)

		repo := newFakeRepo()
		repo.survey.rows[repository.TableCountryYear] = testCatalog(t).CountryYear.Rows[:2]
		repo.survey.zones = previousZones

		next := testCatalog(t)
		repo.failTable = repository.TableClimateZoneYear
		m := testMetrics()
		svc := NewIngestionService(repo, &stubLoader{catalog: next}, quietLogger(), m)
		_, err = svc.IngestWorkbook(context.Background(), "x.xlsx", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), repository.TableClimateZoneYear)

		// the country rows and the truncate of the failed import are not kept
		assert.False(t, repo.survey.truncated)
		assert.Len(t, repo.survey.rows[repository.TableCountryYear], 2)
		assert.Empty(t, repo.survey.rows[repository.TableClimateZoneYear])
		assert.Same(t, previousZones, repo.survey.zones)
		assert.Empty(t, repo.survey.batches)
		assert.Empty(t, repo.runs)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestionErrorsTotal.WithLabelValues("store_error")))
		assert.Equal(t, 0.0, testutil.ToFloat64(m.IngestionRecordsTotal))
	})
}
