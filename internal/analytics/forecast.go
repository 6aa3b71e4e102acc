package analytics

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"cropcast/internal/models"
)

// HoldOutFraction is the share of usable observations held out from the fit
const HoldOutFraction = 0.2

// MinForecastPoints is the fewest usable observations a trend fit accepts
const MinForecastPoints = 2

// Partition splits usable observations into training and held-out subsets.
//
// The split is chronological and deterministic: observations are ordered by
// year (ties keep input order) and the latest floor(n*0.2) are held out, so
// the training subset is the earliest ceil(n*0.8). With n >= 2 the training
// subset always has at least two observations.
func Partition(points []models.Point) (train, heldOut []models.Point) {
	ordered := make([]models.Point, len(points))
	copy(ordered, points)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Year < ordered[j].Year })

	nHeld := int(math.Floor(float64(len(ordered)) * HoldOutFraction))
	cut := len(ordered) - nHeld
	return ordered[:cut], ordered[cut:]
}

// TrendForecast fits value = slope*year + intercept by ordinary least squares
// on the training partition and extrapolates horizon consecutive years
// starting at the latest input year + 1. Years whose value is missing still
// count towards the latest year.
//
// Points with a NaN or infinite value are dropped first; fewer than two
// remaining points is an InsufficientDataError. When every training year is
// identical the fit is the constant training mean.
func TrendForecast(points []models.Point, horizon int) (*models.Forecast, error) {
	lastYear := 0
	for i, p := range points {
		if i == 0 || p.Year > lastYear {
			lastYear = p.Year
		}
	}
	return TrendForecastFrom(points, horizon, lastYear)
}

// TrendForecastFrom is TrendForecast with the extrapolation anchored at
// lastYear + 1, usually the end of the selected year range.
func TrendForecastFrom(points []models.Point, horizon, lastYear int) (*models.Forecast, error) {
	if horizon < 1 {
		return nil, &models.InvalidParameterError{Parameter: "horizon", Value: strconv.Itoa(horizon), Message: "horizon must be >= 1"}
	}

	usable := make([]models.Point, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		usable = append(usable, p)
	}
	if len(usable) < MinForecastPoints {
		return nil, &models.InsufficientDataError{Operation: "forecast", Required: MinForecastPoints, Got: len(usable)}
	}

	train, heldOut := Partition(usable)
	xs := make([]float64, len(train))
	ys := make([]float64, len(train))
	for i, p := range train {
		xs[i] = float64(p.Year)
		ys[i] = p.Value
	}

	fc := &models.Forecast{
		TrainSize:   len(train),
		HeldOutSize: len(heldOut),
		HeldOutRMSE: math.NaN(),
	}
	if _, vx := stat.MeanVariance(xs, nil); vx == 0 {
		fc.Constant = true
		fc.Intercept = stat.Mean(ys, nil)
	} else {
		fc.Intercept, fc.Slope = stat.LinearRegression(xs, ys, nil, false)
	}

	predict := func(year int) float64 {
		return fc.Slope*float64(year) + fc.Intercept
	}

	if len(heldOut) > 0 {
		var sse float64
		for _, p := range heldOut {
			d := predict(p.Year) - p.Value
			sse += d * d
		}
		fc.HeldOutRMSE = math.Sqrt(sse / float64(len(heldOut)))
	}

	fc.Points = make([]models.Point, horizon)
	for i := 0; i < horizon; i++ {
		year := lastYear + 1 + i
		fc.Points[i] = models.Point{Year: year, Value: predict(year)}
	}
	return fc, nil
}
