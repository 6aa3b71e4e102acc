package analytics

import (
	"math"
	"sort"

	"cropcast/internal/models"
)

// YieldTrends returns one series per yield metric (YA, YW, YP) holding the
// mean value per harvest year, ascending. Metrics absent from the schema are skipped.
func YieldTrends(ds *models.Dataset) []models.Series {
	out := make([]models.Series, 0, 3)
	for _, metric := range []string{models.ColumnYA, models.ColumnYW, models.ColumnYP} {
		if _, ok := ds.Column(metric); !ok {
			continue
		}
		out = append(out, yearlyMeans(ds.Rows, metric))
	}
	return out
}

// ZoneTrends returns, for the given crop, one series of mean YP per harvest
// year for each climate zone that has observations. Zones are sorted.
func ZoneTrends(ds *models.Dataset, crop string) ([]models.Series, error) {
	if ds == nil || !ds.HasLevel(models.ColumnCrop, crop) {
		return nil, &models.InvalidParameterError{Parameter: "crop", Value: crop, Message: "crop is not present in the CROP column"}
	}
	if _, ok := ds.Column(models.ColumnClimateZone); !ok {
		return nil, &models.InvalidParameterError{Parameter: "dataset", Value: ds.Name, Message: "dataset has no CLIMATEZONE column"}
	}

	byZone := make(map[string][]models.Row)
	for _, row := range ds.Rows {
		c, ok := row.Get(models.ColumnCrop).Text()
		if !ok || c != crop {
			continue
		}
		zone, ok := row.Get(models.ColumnClimateZone).Text()
		if !ok {
			continue
		}
		byZone[zone] = append(byZone[zone], row)
	}

	zones := make([]string, 0, len(byZone))
	for z := range byZone {
		zones = append(zones, z)
	}
	sort.Strings(zones)

	out := make([]models.Series, 0, len(zones))
	for _, z := range zones {
		s := yearlyMeans(byZone[z], models.ColumnYP)
		s.Name = z
		out = append(out, s)
	}
	return out, nil
}

// WaterProductivity projects rows with both WPP and YA present into scatter points
func WaterProductivity(ds *models.Dataset) []models.WaterProductivityPoint {
	out := make([]models.WaterProductivityPoint, 0, ds.Len())
	if ds == nil {
		return out
	}
	for _, row := range ds.Rows {
		wpp, ok := row.Get(models.ColumnWPP).Number()
		if !ok {
			continue
		}
		ya, ok := row.Get(models.ColumnYA).Number()
		if !ok {
			continue
		}
		wpa, _ := row.Get(models.ColumnWPA).Number()
		crop, _ := row.Get(models.ColumnCrop).Text()
		country, _ := row.Get(models.ColumnCountry).Text()
		year, _ := row.Get(models.ColumnHarvestYear).Int()
		out = append(out, models.WaterProductivityPoint{
			Crop:    crop,
			Country: country,
			Year:    int(year),
			WPP:     wpp,
			YA:      ya,
			WPA:     wpa,
		})
	}
	return out
}

// yearlyMeans averages column per harvest year, skipping missing values.
// A year whose values are all missing yields NaN.
func yearlyMeans(rows []models.Row, column string) models.Series {
	type acc struct {
		sum float64
		n   int
	}
	byYear := make(map[int]*acc)
	for _, row := range rows {
		y, ok := row.Get(models.ColumnHarvestYear).Int()
		if !ok {
			continue
		}
		a := byYear[int(y)]
		if a == nil {
			a = &acc{}
			byYear[int(y)] = a
		}
		if v, ok := row.Get(column).Number(); ok {
			a.sum += v
			a.n++
		}
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	s := models.Series{Name: column, Points: make([]models.Point, len(years))}
	for i, y := range years {
		a := byYear[y]
		v := math.NaN()
		if a.n > 0 {
			v = a.sum / float64(a.n)
		}
		s.Points[i] = models.Point{Year: y, Value: v}
	}
	return s
}
