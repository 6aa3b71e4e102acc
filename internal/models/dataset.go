package models

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Column names shared by the country-year and climate-zone-year survey tables
const (
	ColumnCrop        = "CROP"
	ColumnHarvestYear = "HARVESTYEAR"
	ColumnCountry     = "COUNTRY"
	ColumnClimateZone = "CLIMATEZONE"
	ColumnYP          = "YP"
	ColumnYA          = "YA"
	ColumnYW          = "YW"
	ColumnWPP         = "WPP"
	ColumnWPA         = "WPA"
)

// Dataset names as they appear in the source workbook
const (
	DatasetCountryYear     = "Country Year"
	DatasetClimateZoneYear = "Climate Zone Year"
	DatasetClimateZone     = "Climate zone"
)

// ValueKind tags the variant held by a Value
type ValueKind int

const (
	KindMissing ValueKind = iota
	KindCategorical
	KindInteger
	KindFloat
)

// String returns string representation of a value kind
func (k ValueKind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindCategorical:
		return "categorical"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Value is a single cell of a tabular dataset.
// The zero Value is Missing, so absent map entries and explicit gaps read the same.
type Value struct {
	kind ValueKind
	str  string
	i    int64
	f    float64
}

// Missing returns the explicit missing-value sentinel
func Missing() Value { return Value{} }

// Categorical wraps a categorical string value
func Categorical(s string) Value { return Value{kind: KindCategorical, str: s} }

// Integer wraps an integer value such as a harvest year
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Float wraps a measurement. NaN is normalised to Missing.
func Float(f float64) Value {
	if math.IsNaN(f) {
		return Missing()
	}
	return Value{kind: KindFloat, f: f}
}

// Kind reports which variant the value holds
func (v Value) Kind() ValueKind { return v.kind }

// IsMissing reports whether the value is the missing sentinel
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Text returns the categorical string, if any
func (v Value) Text() (string, bool) {
	if v.kind != KindCategorical {
		return "", false
	}
	return v.str, true
}

// Int returns the integer value, if any
func (v Value) Int() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.i, true
}

// Number returns the value as float64 for integer and float kinds
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return math.NaN(), false
	}
}

// String renders the value for diagnostics
func (v Value) String() string {
	switch v.kind {
	case KindCategorical:
		return v.str
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return ""
	}
}

// ColumnType is the declared type of a dataset column
type ColumnType int

const (
	TypeCategorical ColumnType = iota
	TypeInteger
	TypeFloat
)

// String returns string representation of a column type
func (t ColumnType) String() string {
	switch t {
	case TypeCategorical:
		return "categorical"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether the column participates in numeric statistics
func (t ColumnType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// Column describes a named, typed column.
// Levels holds the sorted domain of a categorical column and is inherited by
// every dataset derived from the one that computed it.
type Column struct {
	Name   string     `json:"name"`
	Type   ColumnType `json:"type"`
	Levels []string   `json:"levels,omitempty"`
}

// Row maps column name to value. Columns absent from the map are Missing.
type Row map[string]Value

// Get returns the value of a column, Missing when absent
func (r Row) Get(column string) Value {
	return r[column]
}

// Dataset is an ordered, immutable collection of rows with a typed schema
type Dataset struct {
	Name    string
	Columns []Column
	Rows    []Row
}

// NewDataset builds a dataset and computes the level set of every categorical column.
// Values whose kind does not match the declared column type are rejected.
func NewDataset(name string, columns []Column, rows []Row) (*Dataset, error) {
	seen := make(map[string]int, len(columns))
	cols := make([]Column, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, &ValidationError{Field: "column", Value: strconv.Itoa(i), Message: "column name must not be empty"}
		}
		if _, dup := seen[c.Name]; dup {
			return nil, &ValidationError{Field: "column", Value: c.Name, Message: fmt.Sprintf("duplicate column %q", c.Name)}
		}
		seen[c.Name] = i
		cols[i] = Column{Name: c.Name, Type: c.Type}
	}

	levels := make(map[string]map[string]struct{})
	for ri, row := range rows {
		for name, v := range row {
			idx, ok := seen[name]
			if !ok {
				return nil, &ValidationError{Field: name, Value: v.String(), Message: fmt.Sprintf("row %d: unknown column %q", ri, name)}
			}
			if v.IsMissing() {
				continue
			}
			if !kindMatches(cols[idx].Type, v.Kind()) {
				return nil, &ValidationError{
					Field:   name,
					Value:   v.String(),
					Message: fmt.Sprintf("row %d: column %q is %s, got %s value", ri, name, cols[idx].Type, v.Kind()),
				}
			}
			if cols[idx].Type == TypeCategorical {
				if levels[name] == nil {
					levels[name] = make(map[string]struct{})
				}
				levels[name][v.str] = struct{}{}
			}
		}
	}

	for i := range cols {
		if cols[i].Type != TypeCategorical {
			continue
		}
		set := levels[cols[i].Name]
		lv := make([]string, 0, len(set))
		for s := range set {
			lv = append(lv, s)
		}
		sort.Strings(lv)
		cols[i].Levels = lv
	}

	return &Dataset{Name: name, Columns: cols, Rows: rows}, nil
}

func kindMatches(t ColumnType, k ValueKind) bool {
	switch t {
	case TypeCategorical:
		return k == KindCategorical
	case TypeInteger:
		return k == KindInteger
	case TypeFloat:
		return k == KindFloat || k == KindInteger
	}
	return false
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Column looks up a column by name
func (d *Dataset) Column(name string) (Column, bool) {
	if d == nil {
		return Column{}, false
	}
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasLevel reports whether a categorical column's domain contains value
func (d *Dataset) HasLevel(column, value string) bool {
	c, ok := d.Column(column)
	if !ok {
		return false
	}
	i := sort.SearchStrings(c.Levels, value)
	return i < len(c.Levels) && c.Levels[i] == value
}

// NumericColumns returns the names of integer and float columns in schema order
func (d *Dataset) NumericColumns() []string {
	var names []string
	if d == nil {
		return names
	}
	for _, c := range d.Columns {
		if c.Type.IsNumeric() {
			names = append(names, c.Name)
		}
	}
	return names
}

// Derive returns a dataset sharing this schema (levels included) with a new row set
func (d *Dataset) Derive(rows []Row) *Dataset {
	return &Dataset{Name: d.Name, Columns: d.Columns, Rows: rows}
}

// YearRange returns the minimum and maximum harvest year present
func (d *Dataset) YearRange() (int, int, bool) {
	minYear, maxYear := 0, 0
	found := false
	for _, row := range d.Rows {
		y, ok := row.Get(ColumnHarvestYear).Int()
		if !ok {
			continue
		}
		if !found || int(y) < minYear {
			minYear = int(y)
		}
		if !found || int(y) > maxYear {
			maxYear = int(y)
		}
		found = true
	}
	return minYear, maxYear, found
}

// Catalog holds the three named datasets handed in by the data source loader
type Catalog struct {
	CountryYear     *Dataset
	ClimateZoneYear *Dataset
	ClimateZone     *Dataset
}

// Validate checks that the datasets the engine reads are present and well-formed
func (c *Catalog) Validate() error {
	if c == nil || c.CountryYear == nil {
		return &ValidationError{Field: "catalog", Value: DatasetCountryYear, Message: "country-year dataset is required"}
	}
	if c.ClimateZoneYear == nil {
		return &ValidationError{Field: "catalog", Value: DatasetClimateZoneYear, Message: "climate-zone-year dataset is required"}
	}
	required := map[string]ColumnType{
		ColumnCrop:        TypeCategorical,
		ColumnHarvestYear: TypeInteger,
	}
	for _, ds := range []*Dataset{c.CountryYear, c.ClimateZoneYear} {
		for name, typ := range required {
			col, ok := ds.Column(name)
			if !ok {
				return &ValidationError{Field: name, Value: ds.Name, Message: fmt.Sprintf("dataset %q is missing column %s", ds.Name, name)}
			}
			if col.Type != typ {
				return &ValidationError{Field: name, Value: col.Type.String(), Message: fmt.Sprintf("dataset %q column %s must be %s", ds.Name, name, typ)}
			}
		}
	}
	if col, ok := c.ClimateZoneYear.Column(ColumnClimateZone); !ok || col.Type != TypeCategorical {
		return &ValidationError{Field: ColumnClimateZone, Value: c.ClimateZoneYear.Name, Message: "climate-zone-year dataset needs a categorical CLIMATEZONE column"}
	}
	return nil
}
