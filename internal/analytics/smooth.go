package analytics

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"cropcast/internal/models"
)

// MovingAverage computes the trailing mean over window points of a series
// already in year order. Output i averages inputs [i-window+1, i]; the first
// window-1 outputs are NaN, as is any output whose window holds a NaN.
//
// window must satisfy 1 <= window <= len(points). An empty input yields an
// empty series for any window >= 1. window == 1 returns the input values.
func MovingAverage(series models.Series, window int) (models.Series, error) {
	if window < 1 {
		return models.Series{}, &models.InvalidParameterError{Parameter: "ma_window", Value: strconv.Itoa(window), Message: "window must be >= 1"}
	}
	n := len(series.Points)
	out := models.Series{Name: series.Name, Points: make([]models.Point, n)}
	if n == 0 {
		return out, nil
	}
	if window > n {
		return models.Series{}, &models.InvalidParameterError{
			Parameter: "ma_window",
			Value:     strconv.Itoa(window),
			Message:   "window must not exceed the series length " + strconv.Itoa(n),
		}
	}

	values := series.Values()
	for i, p := range series.Points {
		out.Points[i] = models.Point{Year: p.Year, Value: math.NaN()}
		if i < window-1 {
			continue
		}
		win := values[i-window+1 : i+1]
		if hasNaN(win) {
			continue
		}
		out.Points[i].Value = stat.Mean(win, nil)
	}
	return out, nil
}

func hasNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
