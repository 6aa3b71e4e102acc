// Package analytics holds the pure transformations behind the dashboard:
// filtering, correlation, cross-tabulation, temperature impact, trend
// forecasting, moving averages and risk recommendations.
//
// Every function reads its inputs without mutating them and returns freshly
// allocated results, so independent calls may run concurrently.
package analytics

import (
	"fmt"
	"sort"

	"cropcast/internal/models"
)

// Filter selects rows whose CROP equals crop (exact, case-sensitive) and whose
// HARVESTYEAR lies in [yearMin, yearMax]. A crop outside the CROP domain is an
// InvalidParameterError; a valid selection that matches nothing is an empty dataset.
func Filter(ds *models.Dataset, crop string, yearMin, yearMax int) (*models.Dataset, error) {
	if ds == nil {
		return nil, &models.InvalidParameterError{Parameter: "dataset", Value: "<nil>", Message: "dataset is required"}
	}
	if !ds.HasLevel(models.ColumnCrop, crop) {
		return nil, &models.InvalidParameterError{Parameter: "crop", Value: crop, Message: "crop is not present in the CROP column"}
	}
	if yearMin > yearMax {
		return nil, &models.InvalidParameterError{
			Parameter: "year_range",
			Value:     fmt.Sprintf("%d-%d", yearMin, yearMax),
			Message:   "year_min must not exceed year_max",
		}
	}

	rows := make([]models.Row, 0)
	for _, row := range ds.Rows {
		c, ok := row.Get(models.ColumnCrop).Text()
		if !ok || c != crop {
			continue
		}
		y, ok := row.Get(models.ColumnHarvestYear).Int()
		if !ok || int(y) < yearMin || int(y) > yearMax {
			continue
		}
		rows = append(rows, row)
	}

	return ds.Derive(rows), nil
}

// YearSeries projects a dataset onto (HARVESTYEAR, column) pairs in ascending
// year order. Rows sharing a year keep their dataset order. Missing values
// become NaN points; rows without a harvest year are skipped.
func YearSeries(ds *models.Dataset, column string) models.Series {
	series := models.Series{Name: column, Points: make([]models.Point, 0, ds.Len())}
	if ds == nil {
		return series
	}
	for _, row := range ds.Rows {
		y, ok := row.Get(models.ColumnHarvestYear).Int()
		if !ok {
			continue
		}
		v, _ := row.Get(column).Number()
		series.Points = append(series.Points, models.Point{Year: int(y), Value: v})
	}
	sort.SliceStable(series.Points, func(i, j int) bool {
		return series.Points[i].Year < series.Points[j].Year
	})
	return series
}
