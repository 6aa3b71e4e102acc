package models

import (
	"fmt"
	"math"
	"strconv"
)

// DefaultHorizon is the number of future years the dashboard forecasts
const DefaultHorizon = 5

// YieldMetrics lists the selectable yield columns
var YieldMetrics = []string{ColumnYP, ColumnYA, ColumnYW}

// Parameters is the immutable set of user selections passed into every
// analytics call. No component reads ambient state.
type Parameters struct {
	Crop             string
	YearMin          int
	YearMax          int
	YieldMetric      string
	TemperatureDelta float64
	MAWindow         int
	Horizon          int
}

// Key returns a stable cache key for the parameter tuple
func (p Parameters) Key() string {
	return fmt.Sprintf("%s|%d|%d|%s|%s|%d|%d",
		p.Crop, p.YearMin, p.YearMax, p.YieldMetric,
		strconv.FormatFloat(p.TemperatureDelta, 'g', -1, 64), p.MAWindow, p.Horizon)
}

// ValidYieldMetric reports whether metric is one of YP, YA, YW
func ValidYieldMetric(metric string) bool {
	for _, m := range YieldMetrics {
		if m == metric {
			return true
		}
	}
	return false
}

// Validate checks every parameter against the country-year dataset.
// It fails rather than clamping.
func (p Parameters) Validate(ds *Dataset) error {
	if ds == nil || !ds.HasLevel(ColumnCrop, p.Crop) {
		return &InvalidParameterError{Parameter: "crop", Value: p.Crop, Message: "crop is not present in the CROP column"}
	}
	if p.YearMin > p.YearMax {
		return &InvalidParameterError{
			Parameter: "year_range",
			Value:     fmt.Sprintf("%d-%d", p.YearMin, p.YearMax),
			Message:   "year_min must not exceed year_max",
		}
	}
	if !ValidYieldMetric(p.YieldMetric) {
		return &InvalidParameterError{Parameter: "yield_metric", Value: p.YieldMetric, Message: "expected one of YP, YA, YW"}
	}
	if math.IsNaN(p.TemperatureDelta) || math.IsInf(p.TemperatureDelta, 0) || p.TemperatureDelta < 0 {
		return &InvalidParameterError{
			Parameter: "temperature_delta",
			Value:     strconv.FormatFloat(p.TemperatureDelta, 'g', -1, 64),
			Message:   "temperature delta must be a finite value >= 0",
		}
	}
	if p.MAWindow < 1 {
		return &InvalidParameterError{Parameter: "ma_window", Value: strconv.Itoa(p.MAWindow), Message: "window must be >= 1"}
	}
	if p.Horizon < 1 {
		return &InvalidParameterError{Parameter: "horizon", Value: strconv.Itoa(p.Horizon), Message: "horizon must be >= 1"}
	}
	return nil
}
