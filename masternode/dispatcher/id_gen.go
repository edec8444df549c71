package dispatcher

import (
	"fmt"
	"time"

	"github.com/teris-io/shortid"
)

// UniqueIdGenerator abstracts the id generating process used for workers.
type UniqueIdGenerator interface {
	// Id returns a unique id.
	Id() (string, error)
}

// workerIdGen implements UniqueIdGenerator.
type workerIdGen struct {
	shId *shortid.Shortid
}

func newWorkerIdGen() (*workerIdGen, error) {
	shId, err := shortid.New(1, shortid.DefaultABC, uint64(time.Now().UnixNano()))
	if err != nil {
		return nil, fmt.Errorf("newWorkerIdGen: failed to instantiate a shortid generator: %w", err)
	}

	return &workerIdGen{shId: shId}, nil
}

// Id implements UniqueIdGenerator.
func (w *workerIdGen) Id() (string, error) {
	id, err := w.shId.Generate()
	if err != nil {
		return "", fmt.Errorf("workerIdGen: Id: failed to generate a unique id: %w", err)
	}

	return id, nil
}
