package models

// WorkerInfo identifies a worker.
type WorkerInfo interface {
	// ID is the unique identity of the worker; its output sinks are named after it.
	ID() string
	// Index is the 1-based position of the worker in the dispatcher's argument list.
	Index() int
}

// Batch describes one completed multiplication appended to a worker's result table.
type Batch struct {
	// JobID of the filename that produced this batch; empty for the initial multiplication.
	JobID string
	// Path of the A matrix used.
	Path string
	// TableRows is the total row count of the result table after appending the batch.
	TableRows int
}

// Observer is notified of worker lifecycle events. Implementations must be safe for concurrent use since every worker
// runs on its own goroutine.
type Observer interface {
	// WorkerStarted is called once the worker has set up and is about to run its first multiplication.
	WorkerStarted(worker WorkerInfo)
	// BatchDone is called after each batch has been appended to the worker's result table.
	BatchDone(worker WorkerInfo, batch Batch)
	// WorkerExited is called once the worker has terminated with the given exit code.
	WorkerExited(worker WorkerInfo, code int, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) WorkerStarted(WorkerInfo)            {}
func (NopObserver) BatchDone(WorkerInfo, Batch)         {}
func (NopObserver) WorkerExited(WorkerInfo, int, error) {}
