// Package loader reads the survey workbook into typed datasets.
package loader

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"cropcast/internal/models"
	"cropcast/pkg/logging"
)

// SheetNames maps each dataset to its worksheet
type SheetNames struct {
	CountryYear     string
	ClimateZoneYear string
	// ClimateZone may be empty when the workbook carries no zone metadata
	ClimateZone string
}

// DefaultSheetNames returns the worksheet names of the GYGA country workbook
func DefaultSheetNames() SheetNames {
	return SheetNames{
		CountryYear:     "Country Year",
		ClimateZoneYear: "Climate Zone Year",
		ClimateZone:     "Climate zone",
	}
}

// knownTypes pins the type of the survey columns regardless of cell content
var knownTypes = map[string]models.ColumnType{
	models.ColumnCrop:        models.TypeCategorical,
	models.ColumnCountry:     models.TypeCategorical,
	models.ColumnClimateZone: models.TypeCategorical,
	models.ColumnHarvestYear: models.TypeInteger,
	models.ColumnYP:          models.TypeFloat,
	models.ColumnYA:          models.TypeFloat,
	models.ColumnYW:          models.TypeFloat,
	models.ColumnWPP:         models.TypeFloat,
	models.ColumnWPA:         models.TypeFloat,
}

var missingTokens = map[string]bool{
	"": true, "NA": true, "N/A": true, "#N/A": true, "NaN": true, "nan": true, "NULL": true, "null": true,
}

// Loader reads workbooks into a models.Catalog
type Loader struct {
	sheets SheetNames
	logger *logging.StructuredLogger
}

// New creates a loader for the given sheet layout
func New(sheets SheetNames, logger *logging.StructuredLogger) *Loader {
	return &Loader{sheets: sheets, logger: logger}
}

// LoadFile opens the workbook at path and reads every configured sheet
func (l *Loader) LoadFile(ctx context.Context, path string) (*models.Catalog, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()
	return l.load(ctx, f, path)
}

// Load reads a workbook from r
func (l *Loader) Load(ctx context.Context, r io.Reader) (*models.Catalog, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return l.load(ctx, f, "stream")
}

func (l *Loader) load(ctx context.Context, f *excelize.File, source string) (*models.Catalog, error) {
	start := time.Now()
	catalog := &models.Catalog{}

	targets := []struct {
		dataset string
		sheet   string
		dest    **models.Dataset
	}{
		{models.DatasetCountryYear, l.sheets.CountryYear, &catalog.CountryYear},
		{models.DatasetClimateZoneYear, l.sheets.ClimateZoneYear, &catalog.ClimateZoneYear},
		{models.DatasetClimateZone, l.sheets.ClimateZone, &catalog.ClimateZone},
	}

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t.sheet == "" {
			if t.dataset == models.DatasetClimateZone {
				continue
			}
			return nil, fmt.Errorf("no sheet configured for dataset %s", t.dataset)
		}
		ds, err := ReadSheet(f, t.sheet, t.dataset)
		if err != nil {
			l.logger.Error(ctx, "[LOADER] Failed to read sheet", logging.Fields{
				"source": source,
				"sheet":  t.sheet,
			}, err)
			return nil, err
		}
		*t.dest = ds

		l.logger.Debug(ctx, "[LOADER] Sheet read", logging.Fields{
			"sheet":   t.sheet,
			"dataset": t.dataset,
			"rows":    ds.Len(),
			"columns": len(ds.Columns),
		})
	}

	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("workbook %s: %w", source, err)
	}

	l.logger.Info(ctx, "[LOADER] Workbook loaded", logging.Fields{
		"source":            source,
		"country_year_rows": catalog.CountryYear.Len(),
		"zone_year_rows":    catalog.ClimateZoneYear.Len(),
		"zone_rows":         catalog.ClimateZone.Len(),
		"duration_ms":       time.Since(start).Milliseconds(),
	})
	return catalog, nil
}

// ReadSheet reads one worksheet into a dataset named name.
// The first row is the header.
func ReadSheet(f *excelize.File, sheet, name string) (*models.Dataset, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx == -1 {
		return nil, fmt.Errorf("sheet %q not found; available sheets: %s", sheet, strings.Join(f.GetSheetList(), ", "))
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, &models.ValidationError{Field: "header", Value: sheet, Message: fmt.Sprintf("sheet %q has no header row", sheet)}
	}
	ds, err := BuildDataset(name, rows[0], rows[1:])
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}
	return ds, nil
}

// BuildDataset types raw string records under header.
//
// Survey columns have fixed types. Any other column is Integer when every
// present cell parses as an integer, Float when every present cell parses as
// a number, and Categorical otherwise; a column with no present cells is
// Float. Blank records are skipped and cells beyond the end of a short record
// are missing.
func BuildDataset(name string, header []string, records [][]string) (*models.Dataset, error) {
	type slot struct {
		index int
		name  string
	}
	slots := make([]slot, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		slots = append(slots, slot{index: i, name: h})
	}
	if len(slots) == 0 {
		return nil, &models.ValidationError{Field: "header", Value: name, Message: "header row has no column names"}
	}

	cell := func(rec []string, i int) string {
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	type record struct {
		line   int
		fields []string
	}
	data := make([]record, 0, len(records))
	for i, rec := range records {
		blank := true
		for _, s := range slots {
			if cell(rec, s.index) != "" {
				blank = false
				break
			}
		}
		if !blank {
			// line 1 is the header
			data = append(data, record{line: i + 2, fields: rec})
		}
	}

	columns := make([]models.Column, len(slots))
	for j, s := range slots {
		typ, ok := knownTypes[s.name]
		if !ok {
			raw := make([]string, len(data))
			for r, rec := range data {
				raw[r] = cell(rec.fields, s.index)
			}
			typ = inferType(raw)
		}
		columns[j] = models.Column{Name: s.name, Type: typ}
	}

	rows := make([]models.Row, len(data))
	for r, rec := range data {
		row := make(models.Row, len(slots))
		for j, s := range slots {
			raw := cell(rec.fields, s.index)
			v, err := parseCell(raw, columns[j].Type)
			if err != nil {
				return nil, &models.ValidationError{
					Field:   s.name,
					Value:   raw,
					Message: fmt.Sprintf("row %d column %s: %v", rec.line, s.name, err),
				}
			}
			row[s.name] = v
		}
		rows[r] = row
	}

	return models.NewDataset(name, columns, rows)
}

func inferType(raw []string) models.ColumnType {
	allInt, allNum := true, true
	present := 0
	for _, s := range raw {
		if missingTokens[s] {
			continue
		}
		present++
		if _, ok := parseInteger(s); !ok {
			allInt = false
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			allNum = false
			break
		}
	}
	switch {
	case present == 0:
		return models.TypeFloat
	case allNum && allInt:
		return models.TypeInteger
	case allNum:
		return models.TypeFloat
	default:
		return models.TypeCategorical
	}
}

func parseCell(s string, typ models.ColumnType) (models.Value, error) {
	if missingTokens[s] {
		return models.Missing(), nil
	}
	switch typ {
	case models.TypeInteger:
		i, ok := parseInteger(s)
		if !ok {
			return models.Missing(), fmt.Errorf("%q is not an integer", s)
		}
		return models.Integer(i), nil
	case models.TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Missing(), fmt.Errorf("%q is not a number", s)
		}
		return models.Float(f), nil
	default:
		return models.Categorical(s), nil
	}
}

// parseInteger accepts "2010" as well as the float rendering "2010.0"
func parseInteger(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}
