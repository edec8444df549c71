package dispatcher

import (
	"fmt"
	"os"

	"github.com/hedisam/matpipe/masternode/stream"
	"github.com/hedisam/matpipe/models"
	"github.com/hedisam/matpipe/workernode/worker"
)

// WorkerHandle is the dispatcher's record of one spawned worker.
type WorkerHandle struct {
	// id is the unique identity of the worker.
	id string
	// index of the worker's weight matrix in the argument list, starting at 1.
	index int
	// weightPath is the path of the worker's weight matrix.
	weightPath string
	// stream is the dispatcher's private send-end of the worker's filename stream.
	stream *stream.Stream
	// out and errOut are the worker's output sinks; owned by the dispatcher which closes them once the worker is done.
	out    *os.File
	errOut *os.File
	// running is false if the worker failed before it could be started.
	running bool
}

// ID implements models.WorkerInfo.
func (h *WorkerHandle) ID() string {
	return h.id
}

// Index implements models.WorkerInfo.
func (h *WorkerHandle) Index() int {
	return h.index
}

// send delivers msg to the worker, if it is still listening.
func (h *WorkerHandle) send(msg models.Message) error {
	if !h.running {
		return nil
	}
	err := h.stream.Send(msg)
	if err != nil {
		return fmt.Errorf("WorkerHandle %s: send: %w", h.id, err)
	}
	return nil
}

// closeSinks closes both output files of the worker.
func (h *WorkerHandle) closeSinks() error {
	errOut := h.out.Close()
	errErr := h.errOut.Close()
	if errOut != nil {
		return fmt.Errorf("WorkerHandle %s: failed to close the output sink: %w", h.id, errOut)
	}
	if errErr != nil {
		return fmt.Errorf("WorkerHandle %s: failed to close the error sink: %w", h.id, errErr)
	}
	return nil
}

// completion is what a worker's goroutine hands back to the dispatcher when the worker has terminated.
type completion struct {
	handle *WorkerHandle
	status worker.Status
}
