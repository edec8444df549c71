package worker

// State of a worker.
type State int32

const (
	// Idle describes a worker waiting for the next filename.
	Idle State = iota
	// Processing describes a worker loading and multiplying a received matrix.
	Processing
	// Draining describes a worker that has seen the end of its stream and is rendering its result table.
	Draining
	// Terminated describes a worker that has exited, successfully or not.
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}
