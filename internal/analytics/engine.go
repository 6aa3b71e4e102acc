package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cropcast/internal/models"
)

// Component names used in reports, issues and metrics labels
const (
	ComponentFilter            = "filter"
	ComponentYieldTrends       = "yield_trends"
	ComponentCorrelation       = "correlation"
	ComponentPivot             = "pivot"
	ComponentImpact            = "impact"
	ComponentZoneTrends        = "zone_trends"
	ComponentForecast          = "forecast"
	ComponentMovingAverage     = "moving_average"
	ComponentRecommendation    = "recommendation"
	ComponentWaterProductivity = "water_productivity"
)

// ImpactBaseline is the yield column the temperature simulator degrades
const ImpactBaseline = models.ColumnYP

// Observer receives the wall time of every component run
type Observer func(component string, elapsed time.Duration)

// Issue records a component that could not produce output for this selection.
// Only InsufficientData and window-length errors become issues.
type Issue struct {
	Component string
	Err       error
}

// Report bundles every derived dataset for one parameter selection
type Report struct {
	Parameters        models.Parameters
	Filtered          *models.Dataset
	YieldTrends       []models.Series
	Correlation       *models.Matrix
	Pivot             *models.Matrix
	Impact            models.Series
	ZoneTrends        []models.Series
	History           models.Series
	Forecast          *models.Forecast
	MovingAverage     models.Series
	Recommendation    models.Recommendation
	WaterProductivity []models.WaterProductivityPoint
	Issues            []Issue
}

// Issue returns the recorded issue for a component, if any
func (r *Report) Issue(component string) (Issue, bool) {
	for _, is := range r.Issues {
		if is.Component == component {
			return is, true
		}
	}
	return Issue{}, false
}

// Bounds describes the selectable parameter space of a catalog
type Bounds struct {
	Crops   []string
	MinYear int
	MaxYear int
	Metrics []string
}

// Engine runs the analytics components over a fixed catalog
type Engine struct {
	catalog  *models.Catalog
	observer Observer
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithObserver installs a timing observer
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// NewEngine creates an engine over a validated catalog
func NewEngine(catalog *models.Catalog, opts ...EngineOption) (*Engine, error) {
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	e := &Engine{catalog: catalog}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Catalog returns the datasets the engine reads
func (e *Engine) Catalog() *models.Catalog {
	return e.catalog
}

// Bounds returns the crop domain and harvest-year span of the country-year dataset
func (e *Engine) Bounds() Bounds {
	b := Bounds{Metrics: append([]string(nil), models.YieldMetrics...)}
	if col, ok := e.catalog.CountryYear.Column(models.ColumnCrop); ok {
		b.Crops = append([]string(nil), col.Levels...)
	}
	b.MinYear, b.MaxYear, _ = e.catalog.CountryYear.YearRange()
	return b
}

// Analyze validates p, filters the country-year dataset and runs every other
// component concurrently over the result. Invalid parameters fail the call;
// per-component data shortfalls are reported in Report.Issues.
func (e *Engine) Analyze(ctx context.Context, p models.Parameters) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.Validate(e.catalog.CountryYear); err != nil {
		return nil, err
	}

	report := &Report{Parameters: p}

	var err error
	e.timed(ComponentFilter, func() {
		report.Filtered, err = Filter(e.catalog.CountryYear, p.Crop, p.YearMin, p.YearMax)
	})
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	filtered := report.Filtered
	report.History = YearSeries(filtered, p.YieldMetric)

	var (
		mu     sync.Mutex
		issues []Issue
	)
	soft := func(component string, err error) error {
		if errors.Is(err, models.ErrInsufficientData) || (component == ComponentMovingAverage && errors.Is(err, models.ErrInvalidParameter)) {
			mu.Lock()
			issues = append(issues, Issue{Component: component, Err: err})
			mu.Unlock()
			return nil
		}
		return fmt.Errorf("%s: %w", component, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	run := func(component string, fn func() error) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var err error
			e.timed(component, func() { err = fn() })
			if err != nil {
				return soft(component, err)
			}
			return nil
		})
	}

	run(ComponentYieldTrends, func() error {
		report.YieldTrends = YieldTrends(filtered)
		return nil
	})
	run(ComponentCorrelation, func() error {
		report.Correlation = Correlate(filtered)
		return nil
	})
	run(ComponentPivot, func() error {
		m, err := Pivot(e.catalog.ClimateZoneYear, p.YieldMetric, models.ColumnCrop, models.ColumnClimateZone)
		report.Pivot = m
		return err
	})
	run(ComponentImpact, func() error {
		s, err := Simulate(filtered, ImpactBaseline, p.TemperatureDelta)
		report.Impact = s
		return err
	})
	run(ComponentZoneTrends, func() error {
		if !e.catalog.ClimateZoneYear.HasLevel(models.ColumnCrop, p.Crop) {
			report.ZoneTrends = []models.Series{}
			return nil
		}
		zs, err := ZoneTrends(e.catalog.ClimateZoneYear, p.Crop)
		report.ZoneTrends = zs
		return err
	})
	run(ComponentForecast, func() error {
		fc, err := TrendForecastFrom(report.History.Points, p.Horizon, p.YearMax)
		report.Forecast = fc
		return err
	})
	run(ComponentMovingAverage, func() error {
		s, err := MovingAverage(report.History, p.MAWindow)
		report.MovingAverage = s
		return err
	})
	run(ComponentRecommendation, func() error {
		report.Recommendation = Recommend(p.TemperatureDelta)
		return nil
	})
	run(ComponentWaterProductivity, func() error {
		report.WaterProductivity = WaterProductivity(filtered)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(issues, func(i, j int) bool { return issues[i].Component < issues[j].Component })
	report.Issues = issues
	return report, nil
}

func (e *Engine) timed(component string, fn func()) {
	start := time.Now()
	fn()
	if e.observer != nil {
		e.observer(component, time.Since(start))
	}
}
