package analytics

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcast/internal/models"
)

func TestCorrelate(t *testing.T) {
	ds := countryYear(t)
	wheat, err := Filter(ds, "Wheat", 2010, 2015)
	require.NoError(t, err)

	m := Correlate(wheat)
	assert.Equal(t, []string{models.ColumnHarvestYear, models.ColumnYP, models.ColumnYA, models.ColumnYW, models.ColumnWPP, models.ColumnWPA}, m.RowLabels)

	for i := range m.RowLabels {
		assert.Equal(t, 1.0, m.Values[i][i], "diagonal %s", m.RowLabels[i])
		for j := range m.ColLabels {
			a, b := m.Values[i][j], m.Values[j][i]
			if math.IsNaN(a) {
				assert.True(t, math.IsNaN(b))
				continue
			}
			assert.Equal(t, a, b)
			assert.LessOrEqual(t, math.Abs(a), 1.0+1e-12)
		}
	}

	// YP rises by exactly 0.5 per year, so it is perfectly correlated with the year
	r, ok := m.At(models.ColumnHarvestYear, models.ColumnYP)
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-9)

	// WPP = 2*YP
	r, _ = m.At(models.ColumnYP, models.ColumnWPP)
	assert.InDelta(t, 1.0, r, 1e-9)
}

func TestCorrelate_PairwiseComplete(t *testing.T) {
	cols := []models.Column{
		{Name: "A", Type: models.TypeFloat},
		{Name: "B", Type: models.TypeFloat},
		{Name: "C", Type: models.TypeFloat},
	}
	rows := []models.Row{
		{"A": models.Float(1), "B": models.Float(2), "C": models.Float(9)},
		{"A": models.Float(2), "B": models.Float(4), "C": models.Missing()},
		{"A": models.Float(3), "B": models.Float(6), "C": models.Float(1)},
		// a gap in B only removes this row from pairs involving B
		{"A": models.Float(4), "B": models.Missing(), "C": models.Float(-7)},
	}
	ds, err := models.NewDataset("pairs", cols, rows)
	require.NoError(t, err)

	m := Correlate(ds)
	ab, _ := m.At("A", "B")
	assert.InDelta(t, 1.0, ab, 1e-12)

	// A vs C uses rows 1, 3, 4: (1,9) (3,1) (4,-7)
	ac, _ := m.At("A", "C")
	assert.InDelta(t, -0.9819805060619659, ac, 1e-9)
}

func TestCorrelate_ZeroVarianceIsNaN(t *testing.T) {
	cols := []models.Column{
		{Name: "A", Type: models.TypeFloat},
		{Name: "K", Type: models.TypeFloat},
		{Name: "S", Type: models.TypeFloat},
	}
	rows := []models.Row{
		{"A": models.Float(1), "K": models.Float(5), "S": models.Float(3)},
		{"A": models.Float(2), "K": models.Float(5)},
		{"A": models.Float(3), "K": models.Float(5)},
	}
	ds, err := models.NewDataset("flat", cols, rows)
	require.NoError(t, err)

	m := Correlate(ds)
	ak, _ := m.At("A", "K")
	assert.True(t, math.IsNaN(ak), "constant column")
	as, _ := m.At("A", "S")
	assert.True(t, math.IsNaN(as), "single observation")
	kk, _ := m.At("K", "K")
	assert.Equal(t, 1.0, kk)
}

func TestCorrelate_EmptyDataset(t *testing.T) {
	ds := countryYear(t)
	empty, err := Filter(ds, "Wheat", 1900, 1901)
	require.NoError(t, err)

	m := Correlate(empty)
	require.NotEmpty(t, m.RowLabels)
	ya, _ := m.At(models.ColumnYA, models.ColumnYP)
	assert.True(t, math.IsNaN(ya))
}

func TestPivot(t *testing.T) {
	ds := climateZoneYear(t)

	m, err := Pivot(ds, models.ColumnYP, models.ColumnCrop, models.ColumnClimateZone)
	require.NoError(t, err)
	assert.Equal(t, []string{"Barley", "Wheat"}, m.RowLabels)
	assert.Equal(t, []string{"5101", "6001"}, m.ColLabels)

	v, ok := m.At("Wheat", "5101")
	require.True(t, ok)
	assert.InDelta(t, 7.0, v, 1e-12) // mean of 6, 8, 7

	v, _ = m.At("Wheat", "6001")
	assert.Equal(t, 4.0, v)

	v, _ = m.At("Barley", "5101")
	assert.True(t, math.IsNaN(v), "pair with no rows must be undefined, not zero")
}

func TestPivot_InvalidColumns(t *testing.T) {
	ds := climateZoneYear(t)

	_, err := Pivot(ds, "NOPE", models.ColumnCrop, models.ColumnClimateZone)
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))

	_, err = Pivot(ds, models.ColumnYP, models.ColumnHarvestYear, models.ColumnClimateZone)
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))

	_, err = Pivot(ds, models.ColumnCrop, models.ColumnCrop, models.ColumnClimateZone)
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))
}

func TestSimulate(t *testing.T) {
	ds := countryYear(t)
	wheat, err := Filter(ds, "Wheat", 2010, 2015)
	require.NoError(t, err)

	base, err := Simulate(wheat, models.ColumnYP, 0)
	require.NoError(t, err)
	require.Len(t, base.Points, wheat.Len())
	for i, row := range wheat.Rows {
		yp, _ := row.Get(models.ColumnYP).Number()
		assert.Equal(t, yp, base.Points[i].Value, "delta 0 is the identity")
	}

	two, err := Simulate(wheat, models.ColumnYP, 2)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, two.Points[0].Value, 1e-12) // 5.0 * 0.8

	prev := base
	for _, delta := range []float64{0.5, 1, 2.5, 4, 7} {
		cur, err := Simulate(wheat, models.ColumnYP, delta)
		require.NoError(t, err)
		for i := range cur.Points {
			assert.Less(t, cur.Points[i].Value, prev.Points[i].Value)
		}
		prev = cur
	}

	neg, err := Simulate(wheat, models.ColumnYP, 12)
	require.NoError(t, err)
	assert.Less(t, neg.Points[0].Value, 0.0, "no floor above 10 degrees")
}

func TestSimulate_MissingAndInvalid(t *testing.T) {
	ds := countryYear(t)
	wheat, err := Filter(ds, "Wheat", 2013, 2013)
	require.NoError(t, err)

	s, err := Simulate(wheat, models.ColumnYA, 1)
	require.NoError(t, err)
	require.Len(t, s.Points, 1)
	assert.True(t, math.IsNaN(s.Points[0].Value))

	_, err = Simulate(wheat, models.ColumnYP, -1)
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))

	_, err = Simulate(wheat, models.ColumnCrop, 1)
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))
}
