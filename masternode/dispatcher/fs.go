package dispatcher

import (
	"fmt"
	"os"
	"path/filepath"
)

// openSinks creates (or appends to) the two output files of a worker: {id}.out and {id}.err in dir.
func openSinks(dir, id string) (out *os.File, errOut *os.File, err error) {
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, nil, fmt.Errorf("openSinks: failed to create the output directory: %w", err)
	}

	out, err = openAppend(filepath.Join(dir, id+".out"))
	if err != nil {
		return nil, nil, err
	}
	errOut, err = openAppend(filepath.Join(dir, id+".err"))
	if err != nil {
		out.Close()
		return nil, nil, err
	}

	return out, errOut, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("openAppend: failed to open %s: %w", path, err)
	}
	return f, nil
}

// pathExists reports whether path can be opened for reading. msg explains a negative answer.
func pathExists(path string) (bool, string) {
	f, err := os.Open(path)
	if err != nil {
		return false, err.Error()
	}
	f.Close()

	return true, ""
}
