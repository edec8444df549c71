package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hedisam/matpipe/masternode/stream"
	"github.com/hedisam/matpipe/matrix"
	"github.com/hedisam/matpipe/workernode/worker"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// seqIdGen hands out w1, w2, ...
type seqIdGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIdGen) Id() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("w%d", g.n), nil
}

type brokenIdGen struct{}

func (brokenIdGen) Id() (string, error) {
	return "", errors.New("out of ids")
}

// fixture writes matrices into a temp dir and returns their paths by name.
func fixture(t *testing.T, files map[string]string) (string, map[string]string) {
	t.Helper()
	dir := t.TempDir()
	paths := make(map[string]string, len(files))
	for name, content := range files {
		p := filepath.Join(dir, name)
		err := os.WriteFile(p, []byte(content), 0644)
		if err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
		paths[name] = p
	}
	return dir, paths
}

func newTestDispatcher(t *testing.T, outDir string, stdout io.Writer, strict bool) *Dispatcher {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	d, err := New(Config{
		Dims:           matrix.Dims{Rows: 2, Cols: 2},
		OutputDir:      outDir,
		MaxFilenameLen: 4096,
		StrictExit:     strict,
		Stdout:         stdout,
		Logger:         logger,
		IdGen:          &seqIdGen{},
	})
	if err != nil {
		t.Fatalf("failed to create the dispatcher: %v", err)
	}
	return d
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(b)
}

func TestRunScenario(t *testing.T) {
	dir, p := fixture(t, map[string]string{
		"A.txt":  "1 2\n3 4\n",
		"W1.txt": "5 6\n7 8\n",
		"I.txt":  "1 0\n0 1\n",
	})
	outDir := filepath.Join(dir, "out")

	var stdout bytes.Buffer
	d := newTestDispatcher(t, outDir, &stdout, false)
	report, err := d.Run(context.Background(), p["A.txt"], []string{p["W1.txt"]}, strings.NewReader(p["I.txt"]+"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Code != 0 || len(report.Workers) != 1 || report.Workers[0].Code != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	out := readFile(t, filepath.Join(outDir, "w1.out"))
	wantTable := "R = [ \n 19  22 \n 43  50 \n 5  6 \n 7  8 \n]\n"
	if !strings.Contains(out, wantTable) {
		t.Errorf("expected the result table in the worker output, got:\n%s", out)
	}
	if !strings.Contains(out, "Finished command 1: worker w1") || !strings.HasSuffix(out, "Exited with exitcode = 0\n") {
		t.Errorf("expected the completion lines in the worker output, got:\n%s", out)
	}
	if errOut := readFile(t, filepath.Join(outDir, "w1.err")); errOut != "" {
		t.Errorf("expected an empty error sink, got: %s", errOut)
	}

	if !strings.Contains(stdout.String(), "Exited with exitcode = 0") ||
		!strings.Contains(stdout.String(), "Program completed in:") {
		t.Errorf("unexpected dispatcher stdout:\n%s", stdout.String())
	}
}

func TestRunMissingStreamedFile(t *testing.T) {
	dir, p := fixture(t, map[string]string{
		"A.txt":  "1 2\n3 4\n",
		"W1.txt": "5 6\n7 8\n",
		"W2.txt": "1 0\n0 1\n",
		"I.txt":  "1 0\n0 1\n",
	})
	missing := filepath.Join(dir, "missing.txt")
	console := strings.NewReader(missing + "\n" + p["I.txt"] + "\n")

	for _, strict := range []bool{false, true} {
		t.Run(fmt.Sprintf("strict=%v", strict), func(t *testing.T) {
			outDir := t.TempDir()
			var stdout bytes.Buffer
			d := newTestDispatcher(t, outDir, &stdout, strict)

			console.Seek(0, io.SeekStart)
			report, err := d.Run(context.Background(), p["A.txt"], []string{p["W1.txt"], p["W2.txt"]}, console)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			// the missing file is still broadcast, nothing after it is read
			if len(report.Broadcast) != 1 || report.Broadcast[0] != missing {
				t.Errorf("expected only %s to be broadcast, got: %v", missing, report.Broadcast)
			}

			if len(report.Workers) != 2 {
				t.Fatalf("expected 2 worker reports, got: %d", len(report.Workers))
			}
			for _, w := range report.Workers {
				if w.Code != 1 || !errors.Is(w.Err, worker.ErrLoad) {
					t.Errorf("worker %s: expected a load failure, got code %d, err: %v", w.ID, w.Code, w.Err)
				}
				errOut := readFile(t, filepath.Join(outDir, w.ID+".err"))
				if !strings.Contains(errOut, "missing.txt") {
					t.Errorf("worker %s: expected the failure in its error sink, got: %s", w.ID, errOut)
				}
				// the first batch is intact
				out := readFile(t, filepath.Join(outDir, w.ID+".out"))
				if !strings.Contains(out, "R = [ \n") || !strings.Contains(out, "Exited with exitcode = 1") {
					t.Errorf("worker %s: unexpected output:\n%s", w.ID, out)
				}
			}

			if strings.Count(stdout.String(), "Exited with exitcode = 1") != 2 {
				t.Errorf("expected two failed completion lines, got:\n%s", stdout.String())
			}

			wantCode := 0
			if strict {
				wantCode = 1
			}
			if report.Code != wantCode {
				t.Errorf("expected dispatcher exit code %d, got: %d", wantCode, report.Code)
			}
		})
	}
}

func TestRunBroadcastFidelity(t *testing.T) {
	dir, p := fixture(t, map[string]string{
		"A.txt":  "1 2\n3 4\n",
		"B.txt":  "5 6\n7 8\n",
		"C.txt":  "9 10\n11 12\n",
		"D.txt":  "13 14\n15 16\n",
		"I1.txt": "1 0\n0 1\n",
		"I2.txt": "1 0\n0 1\n",
		"I3.txt": "1 0\n0 1\n",
	})
	outDir := filepath.Join(dir, "out")
	console := strings.NewReader(p["B.txt"] + "\n\n" + p["C.txt"] + "\r\n" + p["D.txt"])

	var stdout bytes.Buffer
	d := newTestDispatcher(t, outDir, &stdout, false)
	report, err := d.Run(context.Background(), p["A.txt"], []string{p["I1.txt"], p["I2.txt"], p["I3.txt"]}, console)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{p["B.txt"], p["C.txt"], p["D.txt"]}
	if strings.Join(report.Broadcast, ",") != strings.Join(want, ",") {
		t.Errorf("expected broadcast %v, got: %v", want, report.Broadcast)
	}

	// against the identity every worker's table is the sequence of the A matrices it received
	var table bytes.Buffer
	matrix.TextRenderer{}.RenderTable(&table, "R", matrix.Matrix{{1, 2}, {3, 4}, {5, 6}, {7, 8}, {9, 10}, {11, 12},
		{13, 14}, {15, 16}})
	for _, w := range report.Workers {
		if w.Code != 0 {
			t.Errorf("worker %s failed: %v", w.ID, w.Err)
		}
		out := readFile(t, filepath.Join(outDir, w.ID+".out"))
		if !strings.Contains(out, table.String()) {
			t.Errorf("worker %s: expected table\n%s\ngot:\n%s", w.ID, table.String(), out)
		}
	}
	if len(report.Workers) != 3 {
		t.Errorf("expected 3 worker reports, got: %d", len(report.Workers))
	}
}

func TestRunUsageError(t *testing.T) {
	outDir := t.TempDir()
	var stdout bytes.Buffer
	d := newTestDispatcher(t, outDir, &stdout, false)

	report, err := d.Run(context.Background(), "A.txt", nil, strings.NewReader(""))
	if !errors.Is(err, ErrUsage) {
		t.Errorf("expected ErrUsage, got: %v", err)
	}
	if report.Code != 1 {
		t.Errorf("expected exit code 1, got: %d", report.Code)
	}

	entries, _ := os.ReadDir(outDir)
	if len(entries) != 0 {
		t.Errorf("nothing should be spawned on a usage error, found %d files", len(entries))
	}
}

func TestRunSpawnError(t *testing.T) {
	_, p := fixture(t, map[string]string{"A.txt": "1 2\n3 4\n"})
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	d, err := New(Config{
		Dims:           matrix.Dims{Rows: 2, Cols: 2},
		OutputDir:      t.TempDir(),
		MaxFilenameLen: 127,
		Stdout:         io.Discard,
		Logger:         logger,
		IdGen:          brokenIdGen{},
	})
	if err != nil {
		t.Fatalf("failed to create the dispatcher: %v", err)
	}

	report, err := d.Run(context.Background(), p["A.txt"], []string{p["A.txt"]}, strings.NewReader(""))
	if !errors.Is(err, ErrSpawn) {
		t.Errorf("expected ErrSpawn, got: %v", err)
	}
	if report.Code != 1 {
		t.Errorf("expected exit code 1, got: %d", report.Code)
	}
}

func TestRunMissingWeight(t *testing.T) {
	dir, p := fixture(t, map[string]string{
		"A.txt":  "1 2\n3 4\n",
		"W1.txt": "5 6\n7 8\n",
	})
	outDir := filepath.Join(dir, "out")

	var stdout bytes.Buffer
	d := newTestDispatcher(t, outDir, &stdout, false)
	report, err := d.Run(context.Background(), p["A.txt"], []string{filepath.Join(dir, "nope.txt"), p["W1.txt"]},
		strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	codes := map[string]int{}
	for _, w := range report.Workers {
		codes[w.ID] = w.Code
	}
	if codes["w1"] != 1 || codes["w2"] != 0 {
		t.Errorf("expected only the worker without a weight matrix to fail, got: %v", codes)
	}
	if report.Code != 0 {
		t.Errorf("expected dispatcher exit code 0, got: %d", report.Code)
	}
	errOut := readFile(t, filepath.Join(outDir, "w1.err"))
	for _, want := range []string{"nope.txt", "level=error", "worker_id=w1", "index=1"} {
		if !strings.Contains(errOut, want) {
			t.Errorf("expected %q in the error sink of w1, got: %s", want, errOut)
		}
	}
}

func TestRunCancelWhileReadingConsole(t *testing.T) {
	dir, p := fixture(t, map[string]string{
		"A.txt":  "1 2\n3 4\n",
		"W1.txt": "5 6\n7 8\n",
	})
	outDir := filepath.Join(dir, "out")

	// nothing is ever written to the console
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	type result struct {
		report Report
		err    error
	}
	res := make(chan result, 1)
	d := newTestDispatcher(t, outDir, io.Discard, false)
	go func() {
		report, err := d.Run(ctx, p["A.txt"], []string{p["W1.txt"]}, pr)
		res <- result{report, err}
	}()

	select {
	case r := <-res:
		if r.err != nil {
			t.Fatalf("unexpected error: %v", r.err)
		}
		if len(r.report.Broadcast) != 0 {
			t.Errorf("expected nothing to be broadcast, got: %v", r.report.Broadcast)
		}
		if len(r.report.Workers) != 1 {
			t.Errorf("expected the worker to be waited for, got: %+v", r.report.Workers)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation while the console was idle")
	}
}

func TestShutdownLogsErrors(t *testing.T) {
	out, errOut, err := openSinks(t.TempDir(), "w1")
	if err != nil {
		t.Fatalf("failed to open the sinks: %v", err)
	}
	// both failures below are only reported, never returned
	out.Close()
	errOut.Close()
	h := &WorkerHandle{id: "w1", index: 1, stream: stream.New(), out: out, errOut: errOut, running: true}
	h.stream.Close()

	logger, hook := logtest.NewNullLogger()
	d := &Dispatcher{log: logger}
	done := make(chan completion, 1)
	done <- completion{handle: h}
	d.shutdown([]*WorkerHandle{h}, done)

	var msgs []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			msgs = append(msgs, e.Message)
		}
	}
	want := []string{"failed to end the stream", "failed to close the worker's sinks"}
	if strings.Join(msgs, ",") != strings.Join(want, ",") {
		t.Errorf("expected warnings %v, got: %v", want, msgs)
	}
}

func TestFilenameTruncation(t *testing.T) {
	d := &Dispatcher{cfg: Config{MaxFilenameLen: 5}}
	tests := map[string]string{
		"abc\n":      "abc",
		"abcdefgh\n": "abcde",
		"ab\r\n":     "ab",
		"\n":         "",
		"no-newline": "no-ne",
	}
	for in, want := range tests {
		if got := d.filename(in); got != want {
			t.Errorf("filename(%q): expected %q, got: %q", in, want, got)
		}
	}
}

func TestWorkerIdGen(t *testing.T) {
	g, err := newWorkerIdGen()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := g.Id()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
