package rowcompute

import (
	"context"
	"errors"
	"fmt"

	"github.com/hedisam/matpipe/matrix"
	"golang.org/x/sync/errgroup"
)

// ErrCollect is returned when the result of a RowComputer cannot be retrieved.
var ErrCollect = errors.New("row result could not be collected")

// Multiplier computes matrix products by running one RowComputer per row of A concurrently.
type Multiplier struct {
	// limit caps the number of RowComputers running at once. Zero means one goroutine per row, all at once.
	limit int
	// compute is the RowComputer.
	compute func(RowTask) RowResult
}

// Option configures a Multiplier.
type Option func(*Multiplier)

// WithRowLimit caps the number of rows computed simultaneously. n <= 0 removes the cap.
func WithRowLimit(n int) Option {
	return func(m *Multiplier) {
		m.limit = n
	}
}

// New returns a row-parallel Multiplier.
func New(opts ...Option) *Multiplier {
	m := &Multiplier{compute: ComputeRow}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Multiply returns A x W. Rows are computed concurrently and complete in any order; the result is assembled by row
// index. If any RowComputer fails the whole multiplication fails and nothing is retried.
func (m *Multiplier) Multiply(ctx context.Context, a, w matrix.Matrix) (matrix.Matrix, error) {
	err := validate(a, w)
	if err != nil {
		return nil, fmt.Errorf("Multiplier: Multiply: %w", err)
	}

	rows := len(a)
	results := make(chan RowResult, rows)
	g, gctx := errgroup.WithContext(ctx)
	if m.limit > 0 {
		g.SetLimit(m.limit)
	}

	for i := 0; i < rows; i++ {
		task := RowTask{Index: i, Row: a.Row(i), W: w}
		g.Go(func() error {
			return m.run(gctx, task, results)
		})
	}

	err = g.Wait()
	close(results)
	if err != nil {
		return nil, fmt.Errorf("Multiplier: Multiply: %w", err)
	}

	product, err := collect(results, rows)
	if err != nil {
		return nil, fmt.Errorf("Multiplier: Multiply: %w", err)
	}
	return product, nil
}

// run executes a single RowComputer and hands its result over to the collector.
func (m *Multiplier) run(ctx context.Context, task RowTask, results chan<- RowResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: row %d crashed: %v", ErrCollect, task.Index, r)
		}
	}()

	err = ctx.Err()
	if err != nil {
		return err
	}

	// results is buffered with one slot per row, this never blocks
	results <- m.compute(task)
	return nil
}

// collect places every result at its row index, whatever the order they arrived in.
func collect(results <-chan RowResult, rows int) (matrix.Matrix, error) {
	product := make(matrix.Matrix, rows)
	received := 0
	for res := range results {
		if res.Index < 0 || res.Index >= rows {
			return nil, fmt.Errorf("%w: row index %d out of range", ErrCollect, res.Index)
		}
		if product[res.Index] != nil {
			return nil, fmt.Errorf("%w: row %d reported twice", ErrCollect, res.Index)
		}
		product[res.Index] = res.Values
		received++
	}

	if received != rows {
		return nil, fmt.Errorf("%w: expected %d rows, got %d", ErrCollect, rows, received)
	}
	return product, nil
}

func validate(a, w matrix.Matrix) error {
	if len(a) == 0 || len(w) == 0 {
		return errors.New("empty operand")
	}
	for i, row := range a {
		if len(row) < len(w) {
			return fmt.Errorf("row %d of A has %d columns, W has %d rows", i, len(row), len(w))
		}
	}
	cols := len(w[0])
	for k, row := range w {
		if len(row) != cols {
			return fmt.Errorf("row %d of W has %d columns, expected %d", k, len(row), cols)
		}
	}

	return nil
}
