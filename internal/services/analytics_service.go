package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cropcast/internal/analytics"
	"cropcast/internal/config"
	"cropcast/internal/loader"
	"cropcast/internal/models"
	"cropcast/pkg/logging"
	"cropcast/pkg/metrics"
)

// CatalogSource supplies the survey datasets the engine runs over
type CatalogSource interface {
	LoadCatalog(ctx context.Context) (*models.Catalog, error)
}

// WorkbookSource reads the catalog from an xlsx workbook on disk
type WorkbookSource struct {
	Loader *loader.Loader
	Path   string
}

// LoadCatalog implements CatalogSource
func (w *WorkbookSource) LoadCatalog(ctx context.Context) (*models.Catalog, error) {
	return w.Loader.LoadFile(ctx, w.Path)
}

// AnalyticsService serves analytics reports over the current catalog with a
// bounded report cache
type AnalyticsService struct {
	source   CatalogSource
	defaults config.AnalyticsConfig
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector

	mu         sync.RWMutex
	engine     *analytics.Engine
	generation uint64

	cache *reportCache
	group singleflight.Group
}

// NewAnalyticsService loads the catalog from source and prepares the engine
func NewAnalyticsService(ctx context.Context, source CatalogSource, cfg config.AnalyticsConfig, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*AnalyticsService, error) {
	s := &AnalyticsService{
		source:   source,
		defaults: cfg,
		logger:   logger,
		metrics:  metricsCollector,
		cache:    newReportCache(cfg.CacheSize),
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the catalog and swaps in a fresh engine. Cached reports are
// discarded; in-flight requests finish against the old engine.
func (s *AnalyticsService) Reload(ctx context.Context) error {
	start := time.Now()

	catalog, err := s.source.LoadCatalog(ctx)
	if err != nil {
		s.logger.Error(ctx, "[ANALYTICS_RELOAD_ERROR] Failed to load catalog", nil, err)
		return fmt.Errorf("load catalog: %w", err)
	}
	engine, err := analytics.NewEngine(catalog, analytics.WithObserver(s.metrics.ObserveComponent))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.engine = engine
	s.generation++
	s.mu.Unlock()
	s.cache.Clear()
	s.metrics.CacheEntries.Set(0)

	s.metrics.SetDatasetRows(models.DatasetCountryYear, catalog.CountryYear.Len())
	s.metrics.SetDatasetRows(models.DatasetClimateZoneYear, catalog.ClimateZoneYear.Len())
	s.metrics.SetDatasetRows(models.DatasetClimateZone, catalog.ClimateZone.Len())

	bounds := engine.Bounds()
	s.logger.Info(ctx, "[ANALYTICS_RELOAD] Catalog loaded", logging.Fields{
		"country_year_rows": catalog.CountryYear.Len(),
		"zone_year_rows":    catalog.ClimateZoneYear.Len(),
		"crops":             len(bounds.Crops),
		"min_year":          bounds.MinYear,
		"max_year":          bounds.MaxYear,
		"duration_ms":       time.Since(start).Milliseconds(),
	})
	return nil
}

func (s *AnalyticsService) current() (*analytics.Engine, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine, s.generation
}

// Bounds returns the selectable parameter space of the loaded catalog
func (s *AnalyticsService) Bounds() analytics.Bounds {
	engine, _ := s.current()
	return engine.Bounds()
}

// Catalog returns the datasets currently served
func (s *AnalyticsService) Catalog() *models.Catalog {
	engine, _ := s.current()
	return engine.Catalog()
}

// Defaults returns the parameters used when a caller leaves a selection unset:
// the first crop, the full year span and the configured metric, delta, window
// and horizon
func (s *AnalyticsService) Defaults() models.Parameters {
	b := s.Bounds()
	p := models.Parameters{
		YearMin:          b.MinYear,
		YearMax:          b.MaxYear,
		YieldMetric:      s.defaults.DefaultMetric,
		TemperatureDelta: s.defaults.DefaultDelta,
		MAWindow:         s.defaults.DefaultWindow,
		Horizon:          s.defaults.DefaultHorizon,
	}
	if len(b.Crops) > 0 {
		p.Crop = b.Crops[0]
	}
	return p
}

// Analyze returns the report for p, from cache when an identical selection was
// computed against the current catalog. Concurrent identical requests share
// one computation.
func (s *AnalyticsService) Analyze(ctx context.Context, p models.Parameters) (*analytics.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	engine, gen := s.current()
	key := fmt.Sprintf("%d|%s", gen, p.Key())

	if report, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheHit()
		s.logger.Debug(ctx, "[ANALYTICS_CACHE_HIT] Report served from cache", logging.Fields{
			"key": key,
		})
		return report, nil
	}
	s.metrics.RecordCacheMiss()

	start := time.Now()
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		// a caller hanging up must not fail the callers sharing this computation
		report, err := engine.Analyze(context.WithoutCancel(ctx), p)
		if err != nil {
			return nil, err
		}
		s.cache.Put(key, report)
		s.metrics.CacheEntries.Set(float64(s.cache.Len()))
		s.metrics.FilteredRows.Observe(float64(report.Filtered.Len()))
		for _, is := range report.Issues {
			s.metrics.RecordComponentIssue(is.Component)
		}
		return report, nil
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, models.ErrInvalidParameter) {
			outcome = "invalid"
		}
		s.metrics.RecordReport(outcome)
		s.logger.Warn(ctx, "[ANALYTICS_FAILED] Report not produced", logging.Fields{
			"crop":     p.Crop,
			"year_min": p.YearMin,
			"year_max": p.YearMax,
			"metric":   p.YieldMetric,
			"error":    err.Error(),
		})
		return nil, err
	}

	report := v.(*analytics.Report)
	s.metrics.RecordReport("ok")
	s.metrics.ObserveProcessing("analyze", time.Since(start))
	s.logger.Info(ctx, "[ANALYTICS_REPORT] Report computed", logging.Fields{
		"crop":          p.Crop,
		"year_min":      p.YearMin,
		"year_max":      p.YearMax,
		"metric":        p.YieldMetric,
		"filtered_rows": report.Filtered.Len(),
		"issues":        len(report.Issues),
		"shared":        shared,
		"duration_ms":   time.Since(start).Milliseconds(),
	})
	return report, nil
}

// reportCache is a bounded map evicting the oldest insertion first
type reportCache struct {
	mu      sync.Mutex
	limit   int
	entries map[string]*analytics.Report
	order   []string
}

func newReportCache(limit int) *reportCache {
	if limit < 1 {
		limit = 1
	}
	return &reportCache{
		limit:   limit,
		entries: make(map[string]*analytics.Report, limit),
	}
}

func (c *reportCache) Get(key string) (*analytics.Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r, ok
}

func (c *reportCache) Put(key string, r *analytics.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = r
		return
	}
	for len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = r
	c.order = append(c.order, key)
}

func (c *reportCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *reportCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*analytics.Report, c.limit)
	c.order = nil
}
