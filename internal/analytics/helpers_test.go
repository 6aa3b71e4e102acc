package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"cropcast/internal/models"
)

var yieldColumns = []models.Column{
	{Name: models.ColumnCrop, Type: models.TypeCategorical},
	{Name: models.ColumnCountry, Type: models.TypeCategorical},
	{Name: models.ColumnHarvestYear, Type: models.TypeInteger},
	{Name: models.ColumnYP, Type: models.TypeFloat},
	{Name: models.ColumnYA, Type: models.TypeFloat},
	{Name: models.ColumnYW, Type: models.TypeFloat},
	{Name: models.ColumnWPP, Type: models.TypeFloat},
	{Name: models.ColumnWPA, Type: models.TypeFloat},
}

func yieldRow(crop string, year int, yp, ya, yw float64) models.Row {
	return models.Row{
		models.ColumnCrop:        models.Categorical(crop),
		models.ColumnCountry:     models.Categorical("Australia"),
		models.ColumnHarvestYear: models.Integer(int64(year)),
		models.ColumnYP:          models.Float(yp),
		models.ColumnYA:          models.Float(ya),
		models.ColumnYW:          models.Float(yw),
		models.ColumnWPP:         models.Float(yp * 2),
		models.ColumnWPA:         models.Float(ya * 2),
	}
}

// countryYear builds a small survey table: Wheat 2010-2015, Barley 2010-2012,
// with a missing YA in Wheat 2013.
func countryYear(t *testing.T) *models.Dataset {
	t.Helper()
	rows := []models.Row{
		yieldRow("Wheat", 2010, 5.0, 2.0, 4.0),
		yieldRow("Wheat", 2011, 5.5, 2.2, 4.1),
		yieldRow("Barley", 2010, 4.0, 1.8, 3.0),
		yieldRow("Wheat", 2012, 6.0, 2.6, 4.5),
		yieldRow("Barley", 2011, 4.2, 1.9, 3.2),
		yieldRow("Wheat", 2013, 6.5, math.NaN(), 4.9),
		yieldRow("Barley", 2012, 4.4, 2.1, 3.3),
		yieldRow("Wheat", 2014, 7.0, 3.0, 5.2),
		yieldRow("Wheat", 2015, 7.5, 3.1, 5.6),
	}
	ds, err := models.NewDataset(models.DatasetCountryYear, yieldColumns, rows)
	require.NoError(t, err)
	return ds
}

func zoneRow(crop, zone string, year int, yp, ya float64) models.Row {
	return models.Row{
		models.ColumnCrop:        models.Categorical(crop),
		models.ColumnClimateZone: models.Categorical(zone),
		models.ColumnHarvestYear: models.Integer(int64(year)),
		models.ColumnYP:          models.Float(yp),
		models.ColumnYA:          models.Float(ya),
		models.ColumnYW:          models.Float(ya + 1),
	}
}

func climateZoneYear(t *testing.T) *models.Dataset {
	t.Helper()
	cols := []models.Column{
		{Name: models.ColumnCrop, Type: models.TypeCategorical},
		{Name: models.ColumnClimateZone, Type: models.TypeCategorical},
		{Name: models.ColumnHarvestYear, Type: models.TypeInteger},
		{Name: models.ColumnYP, Type: models.TypeFloat},
		{Name: models.ColumnYA, Type: models.TypeFloat},
		{Name: models.ColumnYW, Type: models.TypeFloat},
	}
	rows := []models.Row{
		zoneRow("Wheat", "5101", 2010, 6.0, 2.0),
		zoneRow("Wheat", "5101", 2010, 8.0, 3.0),
		zoneRow("Wheat", "5101", 2011, 7.0, 2.5),
		zoneRow("Wheat", "6001", 2010, 4.0, 1.0),
		zoneRow("Barley", "6001", 2010, 3.0, 1.5),
		// Barley never appears in zone 5101
	}
	ds, err := models.NewDataset(models.DatasetClimateZoneYear, cols, rows)
	require.NoError(t, err)
	return ds
}

func points(pairs ...float64) []models.Point {
	out := make([]models.Point, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.Point{Year: int(pairs[i]), Value: pairs[i+1]})
	}
	return out
}
