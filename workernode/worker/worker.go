package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/hedisam/matpipe/matrix"
	"github.com/hedisam/matpipe/models"
	"github.com/sirupsen/logrus"
)

var (
	// ErrLoad is returned when a streamed matrix cannot be loaded.
	ErrLoad = errors.New("failed to load matrix")
	// ErrStream is returned when the filename stream is closed without an end-of-stream message.
	ErrStream = errors.New("filename stream closed unexpectedly")
)

// Inbox is the receiving end of a worker's filename stream.
type Inbox interface {
	// Recv blocks until the next message. It returns false if the stream has been closed and drained.
	Recv() (models.Message, bool)
}

// Multiplier computes A x W.
type Multiplier interface {
	Multiply(ctx context.Context, a, w matrix.Matrix) (matrix.Matrix, error)
}

// Config holds everything a worker needs. The matrices are owned by the worker once passed in.
type Config struct {
	// ID is the unique identity of the worker.
	ID string
	// Index is the 1-based position of the worker's weight matrix on the command line.
	Index int
	// Dispatcher identifies the dispatcher which spawned the worker; only used in the start banner.
	Dispatcher string
	// Dims is the shape of every matrix of the run.
	Dims matrix.Dims
	// A is the initial A matrix, loaded from APath.
	A     matrix.Matrix
	APath string
	// W is the fixed weight matrix, loaded from WPath.
	W     matrix.Matrix
	WPath string
	// Store loads the streamed A matrices.
	Store      matrix.Store
	Multiplier Multiplier
	Renderer   matrix.Renderer
	Inbox      Inbox
	// Out receives the start banner, the input matrices and the rendered result table.
	Out io.Writer
	// Err receives the worker's diagnostics.
	Err      io.Writer
	LogLevel logrus.Level
	Observer models.Observer
}

// Status is the exit status of a worker.
type Status struct {
	// Code is 0 on success and 1 on failure.
	Code int
	// Err is the failure, if any.
	Err error
}

// Worker owns one weight matrix and multiplies every A it receives against it.
type Worker struct {
	cfg   Config
	a     matrix.Matrix
	table *ResultTable
	state atomic.Int32
	log   *logrus.Entry
}

// New validates cfg and returns a worker ready to Run.
func New(cfg Config) (*Worker, error) {
	err := cfg.Dims.Validate()
	if err != nil {
		return nil, fmt.Errorf("worker: New: %w", err)
	}
	if err = cfg.A.Conforms(cfg.Dims); err != nil {
		return nil, fmt.Errorf("worker: New: initial A: %w", err)
	}
	if err = cfg.W.Conforms(cfg.Dims); err != nil {
		return nil, fmt.Errorf("worker: New: W: %w", err)
	}
	if cfg.Store == nil || cfg.Multiplier == nil || cfg.Renderer == nil || cfg.Inbox == nil {
		return nil, errors.New("worker: New: store, multiplier, renderer and inbox are required")
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Err == nil {
		cfg.Err = io.Discard
	}
	if cfg.Observer == nil {
		cfg.Observer = models.NopObserver{}
	}

	return &Worker{
		cfg:   cfg,
		a:     cfg.A,
		table: NewResultTable(cfg.Dims),
		log:   NewLogger(cfg.Err, cfg.LogLevel, cfg.ID, cfg.Index),
	}, nil
}

// NewLogger returns the diagnostics logger of the worker id, writing to out. Errors are always logged, whatever the
// level.
func NewLogger(out io.Writer, level logrus.Level, id string, index int) *logrus.Entry {
	if level < logrus.ErrorLevel {
		level = logrus.ErrorLevel
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
	return logger.WithFields(logrus.Fields{"worker_id": id, "index": index})
}

// ID implements models.WorkerInfo.
func (w *Worker) ID() string {
	return w.cfg.ID
}

// Index implements models.WorkerInfo.
func (w *Worker) Index() int {
	return w.cfg.Index
}

// State returns the current state of the worker.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Table returns the worker's result table. It must not be read while the worker is running.
func (w *Worker) Table() *ResultTable {
	return w.table
}

// Run multiplies the initial A, then every streamed A, against W until the end of the stream, and renders the whole
// result table to the worker's output. It blocks until the worker terminates.
func (w *Worker) Run(ctx context.Context) (status Status) {
	defer func() {
		w.setState(Terminated)
		w.cfg.Observer.WorkerExited(w, status.Code, status.Err)
	}()

	fmt.Fprintf(w.cfg.Out, "Starting command %d: worker %s of dispatcher %s\n", w.cfg.Index, w.cfg.ID,
		w.cfg.Dispatcher)
	err := w.cfg.Renderer.Render(w.cfg.Out, w.cfg.APath, w.a)
	if err == nil {
		err = w.cfg.Renderer.Render(w.cfg.Out, w.cfg.WPath, w.cfg.W)
	}
	if err != nil {
		return w.fail(fmt.Errorf("Worker %s: Run: failed to render the input matrices: %w", w.cfg.ID, err))
	}
	w.cfg.Observer.WorkerStarted(w)

	w.setState(Processing)
	err = w.process(ctx, models.Batch{Path: w.cfg.APath})
	if err != nil {
		return w.fail(err)
	}

	for {
		w.setState(Idle)
		msg, ok := w.cfg.Inbox.Recv()
		if !ok {
			return w.fail(fmt.Errorf("Worker %s: Run: %w", w.cfg.ID, ErrStream))
		}
		if msg.Kind == models.EndOfStream {
			break
		}

		w.setState(Processing)
		w.log.WithFields(logrus.Fields{"job_id": msg.JobID, "path": msg.Path}).Debug("received a filename")
		err = w.load(msg.Path)
		if err != nil {
			return w.fail(err)
		}
		err = w.process(ctx, models.Batch{JobID: msg.JobID, Path: msg.Path})
		if err != nil {
			return w.fail(err)
		}
	}

	w.setState(Draining)
	err = w.render()
	if err != nil {
		w.log.WithError(err).Error("worker failed")
		return Status{Code: 1, Err: err}
	}

	w.log.WithField("rows", w.table.Len()).Debug("stream ended, result table rendered")
	return Status{Code: 0}
}

// load replaces the current A with the named matrix.
func (w *Worker) load(path string) error {
	a, err := w.cfg.Store.Load(path)
	if err != nil {
		return fmt.Errorf("Worker %s: %w: %w", w.cfg.ID, ErrLoad, err)
	}

	w.a = a
	return nil
}

// process multiplies the current A by W and appends the product to the result table.
func (w *Worker) process(ctx context.Context, batch models.Batch) error {
	product, err := w.cfg.Multiplier.Multiply(ctx, w.a, w.cfg.W)
	if err != nil {
		return fmt.Errorf("Worker %s: multiplication of %s failed: %w", w.cfg.ID, batch.Path, err)
	}

	err = w.table.Append(product)
	if err != nil {
		return fmt.Errorf("Worker %s: %w", w.cfg.ID, err)
	}

	batch.TableRows = w.table.Len()
	w.cfg.Observer.BatchDone(w, batch)
	return nil
}

// render writes the complete result table to the worker's output.
func (w *Worker) render() error {
	err := w.cfg.Renderer.RenderTable(w.cfg.Out, "R", w.table.Matrix())
	if err != nil {
		return fmt.Errorf("Worker %s: failed to render the result table: %w", w.cfg.ID, err)
	}
	return nil
}

// fail records err in the worker's diagnostics and returns a failure status. The batches committed so far are still
// rendered so they are not lost.
func (w *Worker) fail(err error) Status {
	w.log.WithError(err).Error("worker failed")
	if w.table.Batches() > 0 {
		rerr := w.render()
		if rerr != nil {
			w.log.WithError(rerr).Error("failed to render the committed batches")
		}
	}

	return Status{Code: 1, Err: err}
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}
