package analytics

import (
	"gonum.org/v1/gonum/stat"

	"cropcast/internal/models"
)

// Pivot cross-tabulates valueColumn by two categorical dimensions, taking the
// arithmetic mean of every (rowDim, colDim) cell. Labels are the sorted level
// sets of the two dimensions. A cell with no contributing values stays NaN.
func Pivot(ds *models.Dataset, valueColumn, rowDim, colDim string) (*models.Matrix, error) {
	if ds == nil {
		return nil, &models.InvalidParameterError{Parameter: "dataset", Value: "<nil>", Message: "dataset is required"}
	}
	vc, ok := ds.Column(valueColumn)
	if !ok || !vc.Type.IsNumeric() {
		return nil, &models.InvalidParameterError{Parameter: "value_column", Value: valueColumn, Message: "value column must be a numeric column of the dataset"}
	}
	rc, ok := ds.Column(rowDim)
	if !ok || rc.Type != models.TypeCategorical {
		return nil, &models.InvalidParameterError{Parameter: "row_dim", Value: rowDim, Message: "row dimension must be a categorical column"}
	}
	cc, ok := ds.Column(colDim)
	if !ok || cc.Type != models.TypeCategorical {
		return nil, &models.InvalidParameterError{Parameter: "col_dim", Value: colDim, Message: "column dimension must be a categorical column"}
	}

	rowIdx := indexOf(rc.Levels)
	colIdx := indexOf(cc.Levels)
	cells := make([][][]float64, len(rc.Levels))
	for i := range cells {
		cells[i] = make([][]float64, len(cc.Levels))
	}

	for _, row := range ds.Rows {
		r, ok := row.Get(rowDim).Text()
		if !ok {
			continue
		}
		c, ok := row.Get(colDim).Text()
		if !ok {
			continue
		}
		v, ok := row.Get(valueColumn).Number()
		if !ok {
			continue
		}
		i, j := rowIdx[r], colIdx[c]
		cells[i][j] = append(cells[i][j], v)
	}

	m := models.NewMatrix(rc.Levels, cc.Levels)
	for i := range cells {
		for j, vals := range cells[i] {
			if len(vals) == 0 {
				continue
			}
			m.Values[i][j] = stat.Mean(vals, nil)
		}
	}
	return m, nil
}

func indexOf(labels []string) map[string]int {
	idx := make(map[string]int, len(labels))
	for i, l := range labels {
		idx[l] = i
	}
	return idx
}
