package matrix

import "fmt"

// Dims is the fixed shape shared by every participant of a run. It is decided once, at configuration time, and every
// matrix loaded or computed during the run has exactly these dimensions.
type Dims struct {
	// Rows is the number of rows, and the size of the shared inner dimension of a product.
	Rows int
	// Cols is the number of columns.
	Cols int
}

// Validate reports whether d can be used for row-parallel products. The inner dimension of A x W is Rows, so A needs
// at least Rows columns; we only support square shapes.
func (d Dims) Validate() error {
	if d.Rows <= 0 || d.Cols <= 0 {
		return fmt.Errorf("matrix: Dims: dimensions must be positive, got %dx%d", d.Rows, d.Cols)
	}
	if d.Rows != d.Cols {
		return fmt.Errorf("matrix: Dims: matrices must be square, got %dx%d", d.Rows, d.Cols)
	}

	return nil
}

// Matrix is a grid of integers indexed by [row][col].
type Matrix [][]int

// New returns a zeroed matrix of the given dimensions.
func New(d Dims) Matrix {
	m := make(Matrix, d.Rows)
	for i := range m {
		m[i] = make([]int, d.Cols)
	}
	return m
}

// Dims returns the shape of m.
func (m Matrix) Dims() Dims {
	if len(m) == 0 {
		return Dims{}
	}
	return Dims{Rows: len(m), Cols: len(m[0])}
}

// Row returns a copy of the i-th row.
func (m Matrix) Row(i int) []int {
	row := make([]int, len(m[i]))
	copy(row, m[i])
	return row
}

// Clone returns a deep copy of m.
func (m Matrix) Clone() Matrix {
	c := make(Matrix, len(m))
	for i := range m {
		c[i] = m.Row(i)
	}
	return c
}

// Equal reports whether m and o hold the same values.
func (m Matrix) Equal(o Matrix) bool {
	if len(m) != len(o) {
		return false
	}
	for i := range m {
		if len(m[i]) != len(o[i]) {
			return false
		}
		for j := range m[i] {
			if m[i][j] != o[i][j] {
				return false
			}
		}
	}
	return true
}

// Conforms checks that m has exactly the shape d.
func (m Matrix) Conforms(d Dims) error {
	if len(m) != d.Rows {
		return fmt.Errorf("matrix: Conforms: expected %d rows, got %d", d.Rows, len(m))
	}
	for i, row := range m {
		if len(row) != d.Cols {
			return fmt.Errorf("matrix: Conforms: row %d: expected %d columns, got %d", i, d.Cols, len(row))
		}
	}

	return nil
}
