// Package views converts analytics results into transport shapes. Undefined
// numeric cells (NaN, ±Inf) become null in JSON and YAML.
package views

import (
	"math"

	"cropcast/internal/analytics"
	"cropcast/internal/models"
)

// Number returns nil for undefined values
func Number(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Point is a (year, value) pair
type Point struct {
	Year  int      `json:"year" yaml:"year"`
	Value *float64 `json:"value" yaml:"value"`
}

// Series is a named point sequence
type Series struct {
	Name   string  `json:"name" yaml:"name"`
	Points []Point `json:"points" yaml:"points"`
}

// Matrix is a labelled table
type Matrix struct {
	Rows    []string     `json:"rows" yaml:"rows"`
	Columns []string     `json:"columns" yaml:"columns"`
	Values  [][]*float64 `json:"values" yaml:"values"`
}

// Forecast carries the projected points and fit diagnostics
type Forecast struct {
	Points      []Point  `json:"points" yaml:"points"`
	Slope       *float64 `json:"slope" yaml:"slope"`
	Intercept   *float64 `json:"intercept" yaml:"intercept"`
	TrainSize   int      `json:"train_size" yaml:"train_size"`
	HeldOutSize int      `json:"held_out_size" yaml:"held_out_size"`
	HeldOutRMSE *float64 `json:"held_out_rmse" yaml:"held_out_rmse"`
	Constant    bool     `json:"constant" yaml:"constant"`
}

// Recommendation is the risk advisory
type Recommendation struct {
	Level   string  `json:"level" yaml:"level"`
	Delta   float64 `json:"delta" yaml:"delta"`
	Message string  `json:"message" yaml:"message"`
}

// WaterProductivityPoint is one scatter point of the water productivity view
type WaterProductivityPoint struct {
	Crop    string   `json:"crop" yaml:"crop"`
	Country string   `json:"country,omitempty" yaml:"country,omitempty"`
	Year    int      `json:"year" yaml:"year"`
	WPP     *float64 `json:"wpp" yaml:"wpp"`
	YA      *float64 `json:"ya" yaml:"ya"`
	WPA     *float64 `json:"wpa" yaml:"wpa"`
}

// Column describes a dataset column
type Column struct {
	Name   string   `json:"name" yaml:"name"`
	Type   string   `json:"type" yaml:"type"`
	Levels []string `json:"levels,omitempty" yaml:"levels,omitempty"`
}

// Dataset is a tabular dataset with missing cells rendered as null
type Dataset struct {
	Name    string                   `json:"name" yaml:"name"`
	Columns []Column                 `json:"columns" yaml:"columns"`
	Rows    []map[string]interface{} `json:"rows" yaml:"rows"`
}

// Issue reports a component that produced no output for the selection
type Issue struct {
	Component string `json:"component" yaml:"component"`
	Kind      string `json:"kind" yaml:"kind"`
	Message   string `json:"message" yaml:"message"`
}

// Parameters mirrors models.Parameters with query-parameter names
type Parameters struct {
	Crop    string  `json:"crop" yaml:"crop"`
	YearMin int     `json:"year_min" yaml:"year_min"`
	YearMax int     `json:"year_max" yaml:"year_max"`
	Metric  string  `json:"metric" yaml:"metric"`
	Delta   float64 `json:"delta" yaml:"delta"`
	Window  int     `json:"window" yaml:"window"`
	Horizon int     `json:"horizon" yaml:"horizon"`
}

// Bounds is the selectable parameter space plus the defaults applied to
// unset parameters
type Bounds struct {
	Crops    []string   `json:"crops" yaml:"crops"`
	MinYear  int        `json:"min_year" yaml:"min_year"`
	MaxYear  int        `json:"max_year" yaml:"max_year"`
	Metrics  []string   `json:"metrics" yaml:"metrics"`
	Defaults Parameters `json:"defaults" yaml:"defaults"`
}

// Report is the full analytics response
type Report struct {
	Parameters        Parameters               `json:"parameters" yaml:"parameters"`
	FilteredRows      int                      `json:"filtered_rows" yaml:"filtered_rows"`
	YieldTrends       []Series                 `json:"yield_trends" yaml:"yield_trends"`
	Correlation       *Matrix                  `json:"correlation" yaml:"correlation"`
	Pivot             *Matrix                  `json:"pivot" yaml:"pivot"`
	Impact            Series                   `json:"impact" yaml:"impact"`
	ZoneTrends        []Series                 `json:"zone_trends" yaml:"zone_trends"`
	History           Series                   `json:"history" yaml:"history"`
	Forecast          *Forecast                `json:"forecast" yaml:"forecast"`
	MovingAverage     Series                   `json:"moving_average" yaml:"moving_average"`
	Recommendation    Recommendation           `json:"recommendation" yaml:"recommendation"`
	WaterProductivity []WaterProductivityPoint `json:"water_productivity" yaml:"water_productivity"`
	Issues            []Issue                  `json:"issues" yaml:"issues"`
}

// NewParameters converts model parameters
func NewParameters(p models.Parameters) Parameters {
	return Parameters{
		Crop:    p.Crop,
		YearMin: p.YearMin,
		YearMax: p.YearMax,
		Metric:  p.YieldMetric,
		Delta:   p.TemperatureDelta,
		Window:  p.MAWindow,
		Horizon: p.Horizon,
	}
}

// NewBounds converts the engine bounds and the default selection
func NewBounds(b analytics.Bounds, defaults models.Parameters) Bounds {
	crops := b.Crops
	if crops == nil {
		crops = []string{}
	}
	return Bounds{
		Crops:    crops,
		MinYear:  b.MinYear,
		MaxYear:  b.MaxYear,
		Metrics:  b.Metrics,
		Defaults: NewParameters(defaults),
	}
}

// NewPoints converts points
func NewPoints(points []models.Point) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{Year: p.Year, Value: Number(p.Value)}
	}
	return out
}

// NewSeries converts a series
func NewSeries(s models.Series) Series {
	return Series{Name: s.Name, Points: NewPoints(s.Points)}
}

// NewSeriesList converts a list of series; nil becomes empty
func NewSeriesList(list []models.Series) []Series {
	out := make([]Series, len(list))
	for i, s := range list {
		out[i] = NewSeries(s)
	}
	return out
}

// NewMatrix converts a matrix; a nil matrix stays nil
func NewMatrix(m *models.Matrix) *Matrix {
	if m == nil {
		return nil
	}
	values := make([][]*float64, len(m.Values))
	for i, row := range m.Values {
		values[i] = make([]*float64, len(row))
		for j, v := range row {
			values[i][j] = Number(v)
		}
	}
	return &Matrix{Rows: m.RowLabels, Columns: m.ColLabels, Values: values}
}

// NewForecast converts a forecast; a nil forecast stays nil
func NewForecast(f *models.Forecast) *Forecast {
	if f == nil {
		return nil
	}
	return &Forecast{
		Points:      NewPoints(f.Points),
		Slope:       Number(f.Slope),
		Intercept:   Number(f.Intercept),
		TrainSize:   f.TrainSize,
		HeldOutSize: f.HeldOutSize,
		HeldOutRMSE: Number(f.HeldOutRMSE),
		Constant:    f.Constant,
	}
}

// NewRecommendation converts a recommendation
func NewRecommendation(r models.Recommendation) Recommendation {
	return Recommendation{Level: string(r.Level), Delta: r.Delta, Message: r.Message}
}

// NewWaterProductivity converts water productivity points
func NewWaterProductivity(points []models.WaterProductivityPoint) []WaterProductivityPoint {
	out := make([]WaterProductivityPoint, len(points))
	for i, p := range points {
		out[i] = WaterProductivityPoint{
			Crop:    p.Crop,
			Country: p.Country,
			Year:    p.Year,
			WPP:     Number(p.WPP),
			YA:      Number(p.YA),
			WPA:     Number(p.WPA),
		}
	}
	return out
}

// NewDataset converts a dataset; cells keep their kind (string, integer or
// float) and missing cells are null
func NewDataset(ds *models.Dataset) *Dataset {
	if ds == nil {
		return nil
	}
	cols := make([]Column, len(ds.Columns))
	for i, c := range ds.Columns {
		cols[i] = Column{Name: c.Name, Type: c.Type.String(), Levels: c.Levels}
	}
	rows := make([]map[string]interface{}, len(ds.Rows))
	for i, row := range ds.Rows {
		m := make(map[string]interface{}, len(ds.Columns))
		for _, c := range ds.Columns {
			m[c.Name] = cell(row.Get(c.Name))
		}
		rows[i] = m
	}
	return &Dataset{Name: ds.Name, Columns: cols, Rows: rows}
}

func cell(v models.Value) interface{} {
	switch v.Kind() {
	case models.KindCategorical:
		s, _ := v.Text()
		return s
	case models.KindInteger:
		i, _ := v.Int()
		return i
	case models.KindFloat:
		f, _ := v.Number()
		return Number(f)
	default:
		return nil
	}
}

// NewIssues converts report issues
func NewIssues(issues []analytics.Issue) []Issue {
	out := make([]Issue, len(issues))
	for i, is := range issues {
		out[i] = Issue{Component: is.Component, Kind: ErrorKind(is.Err), Message: is.Err.Error()}
	}
	return out
}

// NewReport converts a full analytics report
func NewReport(r *analytics.Report) *Report {
	return &Report{
		Parameters:        NewParameters(r.Parameters),
		FilteredRows:      r.Filtered.Len(),
		YieldTrends:       NewSeriesList(r.YieldTrends),
		Correlation:       NewMatrix(r.Correlation),
		Pivot:             NewMatrix(r.Pivot),
		Impact:            NewSeries(r.Impact),
		ZoneTrends:        NewSeriesList(r.ZoneTrends),
		History:           NewSeries(r.History),
		Forecast:          NewForecast(r.Forecast),
		MovingAverage:     NewSeries(r.MovingAverage),
		Recommendation:    NewRecommendation(r.Recommendation),
		WaterProductivity: NewWaterProductivity(r.WaterProductivity),
		Issues:            NewIssues(r.Issues),
	}
}
