package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"cropcast/internal/models"
)

// Correlate computes the Pearson correlation matrix over every numeric column
// of ds using pairwise complete observations: a row missing either value of a
// pair is dropped from that pair only.
//
// The diagonal is 1.0. A pair with fewer than two complete observations, or
// where either side has zero variance, is NaN.
func Correlate(ds *models.Dataset) *models.Matrix {
	cols := ds.NumericColumns()
	m := models.NewMatrix(cols, cols)

	for i := range cols {
		m.Values[i][i] = 1.0
		for j := 0; j < i; j++ {
			r := pairwisePearson(ds, cols[i], cols[j])
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}
	return m
}

func pairwisePearson(ds *models.Dataset, a, b string) float64 {
	n := ds.Len()
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for _, row := range ds.Rows {
		x, okx := row.Get(a).Number()
		y, oky := row.Get(b).Number()
		if !okx || !oky || math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	if _, vx := stat.MeanVariance(xs, nil); vx == 0 {
		return math.NaN()
	}
	if _, vy := stat.MeanVariance(ys, nil); vy == 0 {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}
