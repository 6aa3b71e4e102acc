package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"cropcast/internal/models"
	"cropcast/internal/views"
)

// writeSurvey builds a small survey workbook and returns its path
func writeSurvey(t *testing.T) string {
	t.Helper()
	sheets := map[string][][]interface{}{
		"Country Year": {
			{"COUNTRY", "CROP", "HARVESTYEAR", "YP", "YA", "YW", "WPP", "WPA"},
			{"Australia", "Rainfed wheat", 2010, 5.0, 2.0, 4.0, 10.0, 8.0},
			{"Australia", "Rainfed wheat", 2011, 6.0, 2.2, 4.2, 10.5, 8.2},
			{"Australia", "Rainfed wheat", 2012, 7.0, 2.4, 4.4, 11.0, 8.4},
			{"Australia", "Rainfed wheat", 2013, 8.0, 2.6, 4.6, 11.5, 8.6},
			{"Australia", "Rainfed wheat", 2014, 9.0, 2.8, 4.8, 12.0, 8.8},
			{"Australia", "Rainfed barley", 2012, 4.1, 1.9, 3.5, 9.0, 7.0},
		},
		"Climate Zone Year": {
			{"CLIMATEZONE", "CROP", "HARVESTYEAR", "YP", "YA", "YW"},
			{5101, "Rainfed wheat", 2010, 6.2, 2.4, 4.8},
			{5101, "Rainfed wheat", 2011, 6.4, 2.5, 4.9},
			{6001, "Rainfed barley", 2012, 3.9, 1.5, 3.1},
		},
		"Climate zone": {
			{"CLIMATEZONE", "GDD", "AI"},
			{5101, 5100, 0.4},
			{6001, 6000, 0.55},
		},
	}

	f := excelize.NewFile()
	defer f.Close()
	for name, rows := range sheets {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			r := row
			require.NoError(t, f.SetSheetRow(name, cell, &r))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))

	path := filepath.Join(t.TempDir(), "survey.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

// run executes the CLI with args and returns stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestParametersCommand(t *testing.T) {
	path := writeSurvey(t)

	out, err := run(t, "parameters", "--workbook", path, "-o", "json")
	require.NoError(t, err)

	var bounds views.Bounds
	require.NoError(t, json.Unmarshal([]byte(out), &bounds))
	assert.Equal(t, []string{"Rainfed barley", "Rainfed wheat"}, bounds.Crops)
	assert.Equal(t, 2010, bounds.MinYear)
	assert.Equal(t, 2014, bounds.MaxYear)
	assert.Equal(t, "Rainfed barley", bounds.Defaults.Crop)
	assert.Equal(t, models.ColumnYP, bounds.Defaults.Metric)
}

func TestParametersCommand_YAML(t *testing.T) {
	path := writeSurvey(t)

	out, err := run(t, "parameters", "-w", path)
	require.NoError(t, err)

	var bounds views.Bounds
	require.NoError(t, yaml.Unmarshal([]byte(out), &bounds))
	assert.Len(t, bounds.Crops, 2)
	assert.Equal(t, 2014, bounds.MaxYear)
}

func TestAnalyzeCommand(t *testing.T) {
	path := writeSurvey(t)

	out, err := run(t, "analyze", "-w", path, "-o", "json",
		"--crop", "Rainfed wheat", "--delta", "3.5", "--window", "2", "--horizon", "2")
	require.NoError(t, err)

	var report views.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "Rainfed wheat", report.Parameters.Crop)
	assert.Equal(t, 2010, report.Parameters.YearMin)
	assert.Equal(t, 2014, report.Parameters.YearMax)
	assert.Equal(t, 5, report.FilteredRows)
	assert.Equal(t, "HIGH", report.Recommendation.Level)
	require.NotNil(t, report.Forecast)
	require.Len(t, report.Forecast.Points, 2)
	assert.Equal(t, 2015, report.Forecast.Points[0].Year)
	require.Len(t, report.MovingAverage.Points, 5)
	assert.Nil(t, report.MovingAverage.Points[0].Value)
	require.NotNil(t, report.MovingAverage.Points[1].Value)
	assert.InDelta(t, 5.5, *report.MovingAverage.Points[1].Value, 1e-9)
}

func TestAnalyzeCommand_Component(t *testing.T) {
	path := writeSurvey(t)

	out, err := run(t, "analyze", "-w", path, "-o", "json",
		"--crop", "Rainfed wheat", "--horizon", "3", "--component", "forecast")
	require.NoError(t, err)

	var fc views.Forecast
	require.NoError(t, json.Unmarshal([]byte(out), &fc))
	require.Len(t, fc.Points, 3)
	assert.Equal(t, 2017, fc.Points[2].Year)
	assert.Equal(t, 4, fc.TrainSize)
	assert.Equal(t, 1, fc.HeldOutSize)
}

func TestAnalyzeCommand_Errors(t *testing.T) {
	path := writeSurvey(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown component", []string{"analyze", "-w", path, "--component", "bogus"}},
		{"unknown format", []string{"parameters", "-w", path, "-o", "xml"}},
		{"unknown crop", []string{"analyze", "-w", path, "--crop", "Irrigated rice"}},
		{"insufficient forecast data", []string{"analyze", "-w", path, "--crop", "Rainfed barley", "--component", "forecast"}},
		{"missing workbook", []string{"parameters", "-w", filepath.Join(t.TempDir(), "missing.xlsx")}},
		{"export without destination", []string{"export", "-w", path}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestExportCommand(t *testing.T) {
	path := writeSurvey(t)
	dest := filepath.Join(t.TempDir(), "wheat.xlsx")

	out, err := run(t, "export", "-w", path, "--crop", "Rainfed wheat",
		"--year-min", "2011", "--year-max", "2013", "--out", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 3 rows")

	f, err := excelize.OpenFile(dest)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Filtered")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Contains(t, rows[0], models.ColumnCrop)
}

func TestSelectionResolve(t *testing.T) {
	defaults := models.Parameters{
		Crop: "Rainfed wheat", YearMin: 2000, YearMax: 2020,
		YieldMetric: models.ColumnYP, TemperatureDelta: 2, MAWindow: 3, Horizon: 5,
	}

	cmd := &cobra.Command{Use: "analyze"}
	s := &selection{}
	addSelectionFlags(cmd, s)
	require.NoError(t, cmd.ParseFlags([]string{"--year-min", "2010", "--metric", "YW", "--delta", "0"}))

	got := s.resolve(cmd, defaults)
	assert.Equal(t, "Rainfed wheat", got.Crop)
	assert.Equal(t, 2010, got.YearMin)
	assert.Equal(t, 2020, got.YearMax)
	assert.Equal(t, "YW", got.YieldMetric)
	assert.Equal(t, 0.0, got.TemperatureDelta)
	assert.Equal(t, 3, got.MAWindow)
	assert.Equal(t, 5, got.Horizon)
}
