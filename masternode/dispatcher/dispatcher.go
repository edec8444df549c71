package dispatcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hedisam/matpipe/masternode/stream"
	"github.com/hedisam/matpipe/matrix"
	"github.com/hedisam/matpipe/models"
	"github.com/hedisam/matpipe/workernode/rowcompute"
	"github.com/hedisam/matpipe/workernode/worker"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUsage is returned when the dispatcher is given the wrong number of arguments.
	ErrUsage = errors.New("usage: dispatcher <initialA-path> <weight-path>...")
	// ErrSpawn is returned when a worker or one of its resources cannot be created.
	ErrSpawn = errors.New("failed to spawn a worker")
)

// Config configures a Dispatcher.
type Config struct {
	// Dims is the shape of every matrix of the run.
	Dims matrix.Dims
	// OutputDir is where the workers' {id}.out and {id}.err files are created.
	OutputDir string
	// MaxFilenameLen truncates filenames read from the console.
	MaxFilenameLen int
	// RowLimit caps concurrent RowComputers per multiplication; zero means one per row.
	RowLimit int
	// StrictExit makes Run exit with 1 if any worker failed.
	StrictExit bool
	// Store loads matrices; defaults to a matrix.FileStore.
	Store matrix.Store
	// Renderer formats matrices in the workers' output; defaults to matrix.TextRenderer.
	Renderer matrix.Renderer
	// Stdout receives the completion lines and the timing report.
	Stdout io.Writer
	// Logger is the dispatcher's diagnostic stream.
	Logger *logrus.Logger
	// IdGen names the workers; defaults to a shortid generator.
	IdGen UniqueIdGenerator
}

// WorkerReport is the outcome of one worker.
type WorkerReport struct {
	ID         string
	Index      int
	WeightPath string
	Code       int
	Err        error
}

// Report is the outcome of a run.
type Report struct {
	// Code is the dispatcher's exit code.
	Code int
	// Workers in the order their termination was observed.
	Workers []WorkerReport
	// Broadcast holds every filename sent to the workers, in order.
	Broadcast []string
	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
}

// Dispatcher spawns one worker per weight matrix and streams console filenames to all of them.
type Dispatcher struct {
	cfg  Config
	name string
	log  *logrus.Logger
}

// New returns a Dispatcher configured by cfg.
func New(cfg Config) (*Dispatcher, error) {
	err := cfg.Dims.Validate()
	if err != nil {
		return nil, fmt.Errorf("dispatcher: New: %w", err)
	}
	if cfg.MaxFilenameLen <= 0 {
		return nil, fmt.Errorf("dispatcher: New: max filename length must be positive, got %d", cfg.MaxFilenameLen)
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.Store == nil {
		cfg.Store = matrix.NewFileStore(cfg.Dims)
	}
	if cfg.Renderer == nil {
		cfg.Renderer = matrix.TextRenderer{}
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.IdGen == nil {
		cfg.IdGen, err = newWorkerIdGen()
		if err != nil {
			return nil, fmt.Errorf("dispatcher: New: %w", err)
		}
	}

	return &Dispatcher{
		cfg:  cfg,
		name: strconv.Itoa(os.Getpid()),
		log:  cfg.Logger,
	}, nil
}

// Run multiplies initialA against every weight matrix, then streams the filenames read from console to every worker
// until the console ends or a filename is found not to exist. It waits for every worker and reports their exit codes.
// A non-nil error means the run was aborted (usage or spawn failure); worker failures only show in the report.
func (d *Dispatcher) Run(ctx context.Context, initialA string, weights []string, console io.Reader) (Report, error) {
	start := time.Now()
	if initialA == "" || len(weights) == 0 {
		d.log.Error("error: must have at least 2 parameters")
		return Report{Code: 1}, fmt.Errorf("Dispatcher: Run: %w", ErrUsage)
	}

	done := make(chan completion, len(weights))
	handles := make([]*WorkerHandle, 0, len(weights))
	for i, weightPath := range weights {
		h, err := d.spawn(ctx, i+1, initialA, weightPath, done)
		if err != nil {
			d.log.WithError(err).Error("aborting the run")
			d.shutdown(handles, done)
			return Report{Code: 1, Elapsed: time.Since(start)}, fmt.Errorf("Dispatcher: Run: %w", err)
		}
		handles = append(handles, h)
	}

	report := Report{}
	report.Broadcast = d.broadcast(ctx, handles, console)

	for _, h := range handles {
		err := h.send(models.NewEndOfStream())
		if err != nil {
			d.log.WithError(err).Warn("failed to end the stream")
		}
		h.stream.Close()
	}

	failed := false
	for range handles {
		c := <-done
		d.reportExit(c)
		if c.status.Code != 0 {
			failed = true
		}
		report.Workers = append(report.Workers, WorkerReport{
			ID:         c.handle.id,
			Index:      c.handle.index,
			WeightPath: c.handle.weightPath,
			Code:       c.status.Code,
			Err:        c.status.Err,
		})
	}

	report.Elapsed = time.Since(start)
	fmt.Fprintf(d.cfg.Stdout, "Program completed in: %.2f milliseconds\n",
		float64(report.Elapsed.Microseconds())/1000)

	if failed && d.cfg.StrictExit {
		report.Code = 1
	}
	return report, nil
}

// spawn creates the sinks and the stream of a worker, loads its matrices and starts it on its own goroutine. The
// worker reports its termination on done. A load failure is the worker's own: it is recorded in its error sink and
// reported on done straight away. Only a failure to create the worker's resources is returned.
func (d *Dispatcher) spawn(ctx context.Context, index int, initialA, weightPath string,
	done chan<- completion) (*WorkerHandle, error) {
	id, err := d.cfg.IdGen.Id()
	if err != nil {
		return nil, fmt.Errorf("spawn: %w: %w", ErrSpawn, err)
	}
	out, errOut, err := openSinks(d.cfg.OutputDir, id)
	if err != nil {
		return nil, fmt.Errorf("spawn: %w: %w", ErrSpawn, err)
	}

	h := &WorkerHandle{
		id:         id,
		index:      index,
		weightPath: weightPath,
		stream:     stream.New(),
		out:        out,
		errOut:     errOut,
	}
	log := d.log.WithFields(logrus.Fields{"worker_id": id, "index": index, "weight": weightPath})

	wk, err := d.newWorker(h, initialA)
	if err != nil {
		worker.NewLogger(errOut, d.log.GetLevel(), id, index).WithError(err).Error("worker failed")
		log.WithError(err).Warn("worker could not be started")
		done <- completion{handle: h, status: worker.Status{Code: 1, Err: err}}
		return h, nil
	}

	h.running = true
	go func() {
		done <- completion{handle: h, status: wk.Run(ctx)}
	}()

	log.Debug("worker spawned")
	return h, nil
}

// newWorker loads the matrices of a worker and builds it around the handle's stream and sinks.
func (d *Dispatcher) newWorker(h *WorkerHandle, initialA string) (*worker.Worker, error) {
	w, err := d.cfg.Store.Load(h.weightPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", worker.ErrLoad, err)
	}
	a, err := d.cfg.Store.Load(initialA)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", worker.ErrLoad, err)
	}

	return worker.New(worker.Config{
		ID:         h.id,
		Index:      h.index,
		Dispatcher: d.name,
		Dims:       d.cfg.Dims,
		A:          a,
		APath:      initialA,
		W:          w,
		WPath:      h.weightPath,
		Store:      d.cfg.Store,
		Multiplier: rowcompute.New(rowcompute.WithRowLimit(d.cfg.RowLimit)),
		Renderer:   d.cfg.Renderer,
		Inbox:      h.stream,
		Out:        h.out,
		Err:        h.errOut,
		LogLevel:   d.log.GetLevel(),
		Observer:   logObserver{log: d.log},
	})
}

// consoleLine is one line read from the console, or the error that ended the reading.
type consoleLine struct {
	text string
	err  error
}

// readLines reads console on its own goroutine so a blocked read never holds up cancellation. It stops at the first
// read error, which is delivered as the last line, or when stop is closed.
func readLines(console io.Reader, stop <-chan struct{}) <-chan consoleLine {
	lines := make(chan consoleLine)
	go func() {
		defer close(lines)
		r := bufio.NewReader(console)
		for {
			text, err := r.ReadString('\n')
			select {
			case lines <- consoleLine{text: text, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

// broadcast reads filenames from console, one per line, and sends each of them to every worker in creation order. It
// stops at the end of the console, right after sending a filename that does not exist, or as soon as ctx is done,
// even while waiting on the console. It returns the filenames sent.
func (d *Dispatcher) broadcast(ctx context.Context, handles []*WorkerHandle, console io.Reader) []string {
	var sent []string
	stop := make(chan struct{})
	defer close(stop)

	lines := readLines(console, stop)
	for {
		var line consoleLine
		select {
		case <-ctx.Done():
			d.log.WithError(ctx.Err()).Warn("run cancelled, no more input is read")
			return sent
		case l, ok := <-lines:
			if !ok {
				return sent
			}
			line = l
		}

		name := d.filename(line.text)
		if name != "" {
			jobID := uuid.NewString()
			for _, h := range handles {
				serr := h.send(models.NewFilename(jobID, name))
				if serr != nil {
					d.log.WithError(serr).Warn("failed to send a filename")
				}
			}
			sent = append(sent, name)
			d.log.WithFields(logrus.Fields{"job_id": jobID, "path": name}).Debug("filename broadcast")

			ok, msg := pathExists(name)
			if !ok {
				d.log.WithFields(logrus.Fields{"path": name, "reason": msg}).
					Warn("file cannot be opened, no more input is read")
				return sent
			}
		}

		if line.err == io.EOF {
			return sent
		}
		if line.err != nil {
			d.log.WithError(line.err).Error("failed to read the console")
			return sent
		}
	}
}

// filename strips the line terminator and truncates the line to the maximum filename length.
func (d *Dispatcher) filename(line string) string {
	line = strings.TrimRight(line, "\r\n")
	if len(line) > d.cfg.MaxFilenameLen {
		line = line[:d.cfg.MaxFilenameLen]
	}
	return line
}

// reportExit prints the completion lines of a worker to the dispatcher's stdout and appends them to the worker's
// output file, then releases the worker's sinks.
func (d *Dispatcher) reportExit(c completion) {
	h := c.handle
	lines := fmt.Sprintf("Finished command %d: worker %s of dispatcher %s\nExited with exitcode = %d\n",
		h.index, h.id, d.name, c.status.Code)

	fmt.Fprint(d.cfg.Stdout, lines)
	_, err := io.WriteString(h.out, lines)
	if err != nil {
		d.log.WithError(err).WithField("worker_id", h.id).Warn("failed to write to the worker's output")
	}

	err = h.closeSinks()
	if err != nil {
		d.log.WithError(err).Warn("failed to close the worker's sinks")
	}
}

// shutdown ends the streams of the workers spawned so far and waits for them, without reporting.
func (d *Dispatcher) shutdown(handles []*WorkerHandle, done <-chan completion) {
	for _, h := range handles {
		err := h.send(models.NewEndOfStream())
		if err != nil {
			d.log.WithError(err).Warn("failed to end the stream")
		}
		h.stream.Close()
	}
	for range handles {
		c := <-done
		err := c.handle.closeSinks()
		if err != nil {
			d.log.WithError(err).Warn("failed to close the worker's sinks")
		}
	}
}
