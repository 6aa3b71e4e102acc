package views

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"cropcast/internal/analytics"
	"cropcast/internal/models"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		name    string
		in      float64
		wantNil bool
	}{
		{"finite", 1.5, false},
		{"zero", 0, false},
		{"nan", math.NaN(), true},
		{"inf", math.Inf(1), true},
		{"neg inf", math.Inf(-1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Number(tt.in)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.in, *got)
		})
	}
}

func TestNewMatrix_NaNIsNull(t *testing.T) {
	m := models.NewMatrix([]string{"Wheat"}, []string{"5101", "6001"})
	m.Values[0][0] = 4.5

	b, err := json.Marshal(NewMatrix(m))
	require.NoError(t, err)
	assert.JSONEq(t, `{"rows":["Wheat"],"columns":["5101","6001"],"values":[[4.5,null]]}`, string(b))

	assert.Nil(t, NewMatrix(nil))
}

func TestNewWaterProductivity_UndefinedIsNull(t *testing.T) {
	points := NewWaterProductivity([]models.WaterProductivityPoint{
		{Crop: "Wheat", Country: "Australia", Year: 2010, WPP: 12.5, YA: 2.1, WPA: 8},
		{Crop: "Wheat", Country: "Australia", Year: 2011, WPP: math.Inf(1), YA: math.Inf(-1), WPA: math.NaN()},
	})
	require.Len(t, points, 2)
	require.NotNil(t, points[0].WPP)
	assert.Equal(t, 12.5, *points[0].WPP)
	assert.Nil(t, points[1].WPP)
	assert.Nil(t, points[1].YA)

	b, err := json.Marshal(points)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"crop":"Wheat","country":"Australia","year":2010,"wpp":12.5,"ya":2.1,"wpa":8},
		{"crop":"Wheat","country":"Australia","year":2011,"wpp":null,"ya":null,"wpa":null}
	]`, string(b))

	y, err := yaml.Marshal(points[1])
	require.NoError(t, err)
	assert.Contains(t, string(y), "wpp: null")
}

func TestNewForecast(t *testing.T) {
	f := &models.Forecast{
		Points:      []models.Point{{Year: 2016, Value: 8}},
		Slope:       0.5,
		Intercept:   -997,
		TrainSize:   2,
		HeldOutRMSE: math.NaN(),
	}
	b, err := json.Marshal(NewForecast(f))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"points":[{"year":2016,"value":8}],
		"slope":0.5,
		"intercept":-997,
		"train_size":2,
		"held_out_size":0,
		"held_out_rmse":null,
		"constant":false
	}`, string(b))

	assert.Nil(t, NewForecast(nil))
}

func TestNewDataset(t *testing.T) {
	ds, err := models.NewDataset("t",
		[]models.Column{
			{Name: models.ColumnCrop, Type: models.TypeCategorical},
			{Name: models.ColumnHarvestYear, Type: models.TypeInteger},
			{Name: models.ColumnYA, Type: models.TypeFloat},
		},
		[]models.Row{
			{models.ColumnCrop: models.Categorical("Wheat"), models.ColumnHarvestYear: models.Integer(2010), models.ColumnYA: models.Float(2.5)},
			{models.ColumnCrop: models.Categorical("Wheat"), models.ColumnHarvestYear: models.Integer(2011)},
		})
	require.NoError(t, err)

	b, err := json.Marshal(NewDataset(ds))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name":"t",
		"columns":[
			{"name":"CROP","type":"categorical","levels":["Wheat"]},
			{"name":"HARVESTYEAR","type":"integer"},
			{"name":"YA","type":"float"}
		],
		"rows":[
			{"CROP":"Wheat","HARVESTYEAR":2010,"YA":2.5},
			{"CROP":"Wheat","HARVESTYEAR":2011,"YA":null}
		]
	}`, string(b))
}

func TestNewIssues(t *testing.T) {
	issues := NewIssues([]analytics.Issue{
		{Component: analytics.ComponentForecast, Err: &models.InsufficientDataError{Operation: "forecast", Required: 2, Got: 1}},
		{Component: analytics.ComponentMovingAverage, Err: &models.InvalidParameterError{Parameter: "ma_window", Value: "5", Message: "window longer than series"}},
		{Component: "other", Err: fmt.Errorf("boom")},
	})
	require.Len(t, issues, 3)
	assert.Equal(t, KindInsufficientData, issues[0].Kind)
	assert.Equal(t, KindInvalidParameter, issues[1].Kind)
	assert.Equal(t, KindError, issues[2].Kind)
	assert.Contains(t, issues[0].Message, "at least 2")
}

func TestErrorKind_Wrapped(t *testing.T) {
	err := fmt.Errorf("forecast: %w", &models.InsufficientDataError{Operation: "forecast", Required: 2})
	assert.Equal(t, KindInsufficientData, ErrorKind(err))
}

func TestNewReport_YAML(t *testing.T) {
	r := &analytics.Report{
		Parameters: models.Parameters{Crop: "Wheat", YearMin: 2010, YearMax: 2012, YieldMetric: "YP", TemperatureDelta: 2, MAWindow: 3, Horizon: 5},
		History:    models.Series{Name: "YP", Points: []models.Point{{Year: 2010, Value: math.NaN()}}},
		Recommendation: models.Recommendation{
			Level:   models.RiskManageable,
			Delta:   2,
			Message: "Risk manageable",
		},
	}
	view := NewReport(r)
	assert.Equal(t, 0, view.FilteredRows)
	assert.NotNil(t, view.Issues)
	assert.NotNil(t, view.YieldTrends)

	b, err := yaml.Marshal(view)
	require.NoError(t, err)
	var back map[string]interface{}
	require.NoError(t, yaml.Unmarshal(b, &back))

	params := back["parameters"].(map[string]interface{})
	assert.Equal(t, "Wheat", params["crop"])
	assert.Equal(t, "MANAGEABLE", back["recommendation"].(map[string]interface{})["level"])

	history := back["history"].(map[string]interface{})
	points := history["points"].([]interface{})
	assert.Nil(t, points[0].(map[string]interface{})["value"])
}
