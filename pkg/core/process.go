package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"hfa/pkg/archerr"
	"hfa/pkg/container"
	"hfa/pkg/progress"
)

// ProcessConfig configures a ProcessBackend.
type ProcessConfig struct {
	Workers int
	// Command is the program and leading arguments of a worker. Empty
	// means this executable followed by "worker".
	Command  []string
	StageDir string
	Progress *progress.Tracker
}

// ProcessBackend runs every job in its own child process. At most Workers
// children run at once: Dispatch blocks on the completion of any child
// before spawning the next. Children share nothing with the parent but
// their arguments, stdin and a private staging part.
type ProcessBackend struct {
	cfg     ProcessConfig
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	results []JobResult
}

// NewProcessBackend returns a backend for one run.
func NewProcessBackend(cfg ProcessConfig) *ProcessBackend {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &ProcessBackend{cfg: cfg, sem: semaphore.NewWeighted(int64(cfg.Workers))}
}

func (b *ProcessBackend) command() ([]string, error) {
	if len(b.cfg.Command) > 0 {
		return b.cfg.Command, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate worker executable: %w", err)
	}
	return []string{exe, "worker"}, nil
}

// Dispatch spawns one child per job in order, waiting for a free slot
// before each spawn.
func (b *ProcessBackend) Dispatch(jobs []Job) error {
	base, err := b.command()
	if err != nil {
		return err
	}
	b.results = make([]JobResult, len(jobs))
	ctx := context.Background()
	for i := range jobs {
		job := jobs[i]
		slot := &b.results[i]
		slot.Job = job
		if err := b.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("admit job %d: %w", job.Index, err)
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer b.sem.Release(1)
			slot.staged, slot.Err = b.run(base, job)
			if slot.Err == nil {
				b.cfg.Progress.Add(job.Size)
			}
		}()
	}
	return nil
}

// Wait blocks until every child has exited.
func (b *ProcessBackend) Wait() []JobResult {
	b.wg.Wait()
	return b.results
}

func (b *ProcessBackend) run(base []string, job Job) (staged, error) {
	args := append([]string(nil), base[1:]...)
	var stdin bytes.Buffer
	var part partFile

	switch job.Op {
	case OpCompress:
		part = partFile{path: partPath(b.cfg.StageDir)}
		args = append(args, "compress", job.Path, job.Name, part.path)
	case OpDecompress:
		if job.Meta == nil {
			return nil, fmt.Errorf("restore: missing entry metadata")
		}
		if err := container.WriteMeta(&stdin, job.Meta); err != nil {
			return nil, err
		}
		args = append(args, "decompress", job.Path, job.OutDir)
	default:
		return nil, fmt.Errorf("unknown op %d", job.Op)
	}

	cmd := exec.Command(base[0], args...)
	var stderr bytes.Buffer
	cmd.Stdin = &stdin
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if part.path != "" {
			part.release()
		}
		return nil, childError(err, stderr.String())
	}
	if job.Op == OpCompress {
		return part, nil
	}
	return nil, nil
}

// childError turns a failed child run into an error. Exit statuses that
// name an error kind are mapped back onto the matching sentinel.
func childError(err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	var exit *exec.ExitError
	if !errors.As(err, &exit) {
		return fmt.Errorf("%w: start worker: %w", archerr.ErrWorkerFailure, err)
	}
	code := exit.ExitCode()
	kind := kindForStatus(code)
	if kind == nil {
		kind = archerr.ErrWorkerFailure
	}
	if msg == "" {
		return fmt.Errorf("%w: worker exited with status %d", kind, code)
	}
	return fmt.Errorf("%w: worker exited with status %d: %s", kind, code, msg)
}

// Worker exit statuses.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// statusKinds maps the error kinds a worker reports onto exit statuses.
var statusKinds = []struct {
	status int
	kind   error
}{
	{3, archerr.ErrIO},
	{4, archerr.ErrMalformedContainer},
	{5, archerr.ErrCorruptTree},
	{6, archerr.ErrCorruptStream},
	{7, archerr.ErrCapacity},
}

func statusFor(err error) int {
	for _, sk := range statusKinds {
		if errors.Is(err, sk.kind) {
			return sk.status
		}
	}
	return exitFailure
}

func kindForStatus(status int) error {
	for _, sk := range statusKinds {
		if sk.status == status {
			return sk.kind
		}
	}
	return nil
}

// WorkerUsage describes the worker command line.
const WorkerUsage = `worker compress <input> <entry-name> <part-path>
worker decompress <archive> <out-dir>   (entry metadata on stdin)`

// WorkerMain runs one process backend job described by args and returns
// the process exit status. Errors are written to stderr.
//
//	compress <input> <entry-name> <part-path>
//	decompress <archive> <out-dir>
func WorkerMain(args []string, stdin io.Reader, stderr io.Writer) int {
	err := runWorker(args, stdin)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errWorkerUsage):
		fmt.Fprintf(stderr, "%v\nusage:\n%s\n", err, WorkerUsage)
		return exitUsage
	default:
		fmt.Fprintln(stderr, err)
		return statusFor(err)
	}
}

var errWorkerUsage = errors.New("bad worker arguments")

func runWorker(args []string, stdin io.Reader) error {
	if len(args) == 0 {
		return errWorkerUsage
	}
	switch args[0] {
	case "compress":
		if len(args) != 4 {
			return fmt.Errorf("%w: compress takes 3 arguments, got %d", errWorkerUsage, len(args)-1)
		}
		e, err := compressFile(args[1], args[2])
		if err != nil {
			return err
		}
		return writePart(args[3], e)
	case "decompress":
		if len(args) != 3 {
			return fmt.Errorf("%w: decompress takes 2 arguments, got %d", errWorkerUsage, len(args)-1)
		}
		m, err := container.ReadMeta(stdin)
		if err != nil {
			return err
		}
		return restoreEntry(args[1], m, args[2], nil)
	}
	return fmt.Errorf("%w: unknown command %s", errWorkerUsage, strconv.Quote(args[0]))
}
