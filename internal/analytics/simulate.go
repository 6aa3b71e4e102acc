package analytics

import (
	"math"
	"strconv"

	"cropcast/internal/models"
)

// YieldLossPerDegree is the share of baseline yield lost per degree of warming
const YieldLossPerDegree = 0.1

// Simulate applies the linear temperature degradation model to yieldColumn:
// out = yield * (1 - 0.1*delta). There is no floor; deltas above 10 produce
// negative yields. Points follow dataset row order; missing yields stay NaN
// and rows without a harvest year are skipped.
func Simulate(ds *models.Dataset, yieldColumn string, delta float64) (models.Series, error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) || delta < 0 {
		return models.Series{}, &models.InvalidParameterError{
			Parameter: "temperature_delta",
			Value:     strconv.FormatFloat(delta, 'g', -1, 64),
			Message:   "temperature delta must be a finite value >= 0",
		}
	}
	if col, ok := ds.Column(yieldColumn); !ok || !col.Type.IsNumeric() {
		return models.Series{}, &models.InvalidParameterError{Parameter: "yield_column", Value: yieldColumn, Message: "yield column must be a numeric column of the dataset"}
	}

	factor := 1 - YieldLossPerDegree*delta
	series := models.Series{Name: yieldColumn, Points: make([]models.Point, 0, ds.Len())}
	for _, row := range ds.Rows {
		y, ok := row.Get(models.ColumnHarvestYear).Int()
		if !ok {
			continue
		}
		v, ok := row.Get(yieldColumn).Number()
		if !ok {
			series.Points = append(series.Points, models.Point{Year: int(y), Value: math.NaN()})
			continue
		}
		series.Points = append(series.Points, models.Point{Year: int(y), Value: v * factor})
	}
	return series, nil
}
