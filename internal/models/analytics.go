package models

import "math"

// Point is a single (year, value) observation. Value is NaN when undefined.
type Point struct {
	Year  int
	Value float64
}

// Series is an ordered sequence of points
type Series struct {
	Name   string
	Points []Point
}

// Len returns the number of points
func (s Series) Len() int { return len(s.Points) }

// Values returns the point values in order
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Matrix is a labelled two-dimensional table of float cells.
// Undefined cells hold NaN and must not be read as zero.
type Matrix struct {
	RowLabels []string
	ColLabels []string
	Values    [][]float64
}

// NewMatrix allocates a matrix with every cell undefined
func NewMatrix(rows, cols []string) *Matrix {
	values := make([][]float64, len(rows))
	for i := range values {
		values[i] = make([]float64, len(cols))
		for j := range values[i] {
			values[i][j] = math.NaN()
		}
	}
	return &Matrix{RowLabels: rows, ColLabels: cols, Values: values}
}

// At returns the cell at the given labels and whether both labels exist
func (m *Matrix) At(row, col string) (float64, bool) {
	ri, ci := -1, -1
	for i, l := range m.RowLabels {
		if l == row {
			ri = i
			break
		}
	}
	for j, l := range m.ColLabels {
		if l == col {
			ci = j
			break
		}
	}
	if ri < 0 || ci < 0 {
		return math.NaN(), false
	}
	return m.Values[ri][ci], true
}

// Forecast is the output of the trend forecaster together with fit diagnostics
type Forecast struct {
	Points      []Point
	Slope       float64
	Intercept   float64
	TrainSize   int
	HeldOutSize int
	// HeldOutRMSE is NaN when the partition holds nothing out
	HeldOutRMSE float64
	// Constant is set when every training year was identical and the fit
	// degenerated to the training mean
	Constant bool
}

// RiskLevel is the categorical outcome of the risk recommendation engine
type RiskLevel string

const (
	RiskHigh       RiskLevel = "HIGH"
	RiskManageable RiskLevel = "MANAGEABLE"
)

// Recommendation pairs a risk level with its advisory message
type Recommendation struct {
	Level   RiskLevel
	Delta   float64
	Message string
}

// WaterProductivityPoint is one observation of water productivity against actual yield
type WaterProductivityPoint struct {
	Crop    string
	Country string
	Year    int
	WPP     float64
	YA      float64
	// WPA is NaN when absent
	WPA float64
}
