package matrix

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotFound is returned when a matrix resource cannot be opened.
var ErrNotFound = errors.New("matrix resource not found")

// Store loads matrices from named resources.
type Store interface {
	// Load reads the named matrix into a fresh, zeroed grid.
	Load(path string) (Matrix, error)
}

// FileStore is a Store backed by plain text files on the local file system.
type FileStore struct {
	dims Dims
}

// NewFileStore returns a Store which reads matrices of the shape d from text files.
func NewFileStore(d Dims) *FileStore {
	return &FileStore{dims: d}
}

// Load implements Store. The returned error wraps ErrNotFound if the file cannot be opened.
func (s *FileStore) Load(path string) (Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("FileStore: Load: %w: %s: %v", ErrNotFound, path, err)
	}
	defer f.Close()

	m := New(s.dims)
	err = Parse(f, m)
	if err != nil {
		return nil, fmt.Errorf("FileStore: Load: failed to parse %s: %w", path, err)
	}

	return m, nil
}

// Parse reads line-oriented numeric text into dst. Any run of non-digit characters separates two numbers; signs are
// not recognised. It stops after len(dst) lines, and ignores numbers beyond the width of a row. A line with fewer
// numbers than the row width leaves the remaining cells of dst untouched, so callers wanting a clean result must pass
// a zeroed matrix.
func Parse(r io.Reader, dst Matrix) error {
	br := bufio.NewReader(r)
	for row := 0; row < len(dst); row++ {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			parseLine(line, dst[row])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("Parse: read failed at line %d: %w", row+1, err)
		}
	}

	return nil
}

// parseLine fills row with the numbers found in line, from left to right.
func parseLine(line string, row []int) {
	col := 0
	num, inNum := 0, false
	for i := 0; i < len(line) && col < len(row); i++ {
		c := line[i]
		if c >= '0' && c <= '9' {
			num = num*10 + int(c-'0')
			inNum = true
			continue
		}
		if inNum {
			row[col] = num
			col++
			num, inNum = 0, false
		}
	}

	// the line ended on a digit
	if inNum && col < len(row) {
		row[col] = num
	}
}
