package rowcompute

import "github.com/hedisam/matpipe/matrix"

// RowTask is the input of a single RowComputer: one row of A and the whole of W.
type RowTask struct {
	// Index of the row in A, and of the resulting row in the product.
	Index int
	// Row is a private copy of A[Index].
	Row []int
	// W is shared read-only by every task of the same multiplication.
	W matrix.Matrix
}

// RowResult is the output of a single RowComputer.
type RowResult struct {
	// Index of the computed row.
	Index int
	// Values of the computed row.
	Values []int
}

// ComputeRow returns row task.Index of A x W, i.e. result[j] = sum over k of Row[k] * W[k][j].
func ComputeRow(task RowTask) RowResult {
	var cols int
	if len(task.W) > 0 {
		cols = len(task.W[0])
	}

	values := make([]int, cols)
	for j := 0; j < cols; j++ {
		sum := 0
		for k := range task.W {
			sum += task.Row[k] * task.W[k][j]
		}
		values[j] = sum
	}

	return RowResult{Index: task.Index, Values: values}
}
