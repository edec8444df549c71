package worker

import (
	"fmt"

	"github.com/hedisam/matpipe/matrix"
)

// ResultTable is the append-only accumulation of every product a worker has computed. It grows by exactly one batch
// of Dims.Rows rows per multiplication, in the order the inputs were received.
type ResultTable struct {
	dims    matrix.Dims
	rows    [][]int
	batches int
}

// NewResultTable returns an empty table for batches of shape d.
func NewResultTable(d matrix.Dims) *ResultTable {
	return &ResultTable{dims: d}
}

// Append copies batch at the end of the table. Batches with the wrong shape are rejected and the table stays intact.
func (t *ResultTable) Append(batch matrix.Matrix) error {
	err := batch.Conforms(t.dims)
	if err != nil {
		return fmt.Errorf("ResultTable: Append: %w", err)
	}

	for i := range batch {
		t.rows = append(t.rows, batch.Row(i))
	}
	t.batches++
	return nil
}

// Len returns the number of rows in the table; always a multiple of Dims.Rows.
func (t *ResultTable) Len() int {
	return len(t.rows)
}

// Batches returns the number of products appended so far.
func (t *ResultTable) Batches() int {
	return t.batches
}

// Batch returns a copy of the i-th batch.
func (t *ResultTable) Batch(i int) matrix.Matrix {
	start := i * t.dims.Rows
	return matrix.Matrix(t.rows[start : start+t.dims.Rows]).Clone()
}

// Matrix returns a copy of every row of the table.
func (t *ResultTable) Matrix() matrix.Matrix {
	return matrix.Matrix(t.rows).Clone()
}
