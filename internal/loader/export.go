package loader

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"cropcast/internal/models"
)

// WriteSheet writes ds to sheet with a header row, creating the sheet if needed.
// Missing values are left as empty cells.
func WriteSheet(f *excelize.File, sheet string, ds *models.Dataset) error {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %q: %w", sheet, err)
		}
	}

	header := make([]interface{}, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c.Name
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for r, row := range ds.Rows {
		values := make([]interface{}, len(ds.Columns))
		for i, c := range ds.Columns {
			v := row.Get(c.Name)
			switch v.Kind() {
			case models.KindCategorical:
				values[i], _ = v.Text()
			case models.KindInteger:
				values[i], _ = v.Int()
			case models.KindFloat:
				values[i], _ = v.Number()
			default:
				values[i] = nil
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", r+2, err)
		}
	}
	return nil
}

// SaveCatalog writes every dataset of the catalog to a new workbook at path
func SaveCatalog(path string, catalog *models.Catalog, sheets SheetNames) error {
	f := excelize.NewFile()
	defer f.Close()

	targets := []struct {
		sheet string
		ds    *models.Dataset
	}{
		{sheets.CountryYear, catalog.CountryYear},
		{sheets.ClimateZoneYear, catalog.ClimateZoneYear},
		{sheets.ClimateZone, catalog.ClimateZone},
	}
	written := 0
	for _, t := range targets {
		if t.sheet == "" || t.ds == nil {
			continue
		}
		if err := WriteSheet(f, t.sheet, t.ds); err != nil {
			return fmt.Errorf("sheet %q: %w", t.sheet, err)
		}
		written++
	}
	if written == 0 {
		return fmt.Errorf("catalog has no datasets to write")
	}

	// drop the default sheet unless a dataset was written to it
	if !hasTarget(sheets, "Sheet1") {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// SaveDataset writes a single dataset to a new workbook
func SaveDataset(path, sheet string, ds *models.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := WriteSheet(f, sheet, ds); err != nil {
		return err
	}
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func hasTarget(sheets SheetNames, name string) bool {
	return sheets.CountryYear == name || sheets.ClimateZoneYear == name || sheets.ClimateZone == name
}
