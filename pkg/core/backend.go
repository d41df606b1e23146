package core

import (
	"fmt"
	"os"

	"hfa/pkg/archerr"
	"hfa/pkg/container"
	"hfa/pkg/pool"
	"hfa/pkg/progress"
)

// Backend executes the jobs of one run. Dispatch admits every job, blocking
// only as long as admission control requires; Wait blocks until all
// admitted jobs have terminated and returns their results indexed by
// Job.Index. A Backend is used for a single run.
type Backend interface {
	Dispatch(jobs []Job) error
	Wait() []JobResult
}

// staged is a compressed entry waiting to be merged into a container.
type staged interface {
	merge(w *container.Writer) error
	release() error
}

type memEntry struct{ e *container.Entry }

func (m memEntry) merge(w *container.Writer) error { return w.WriteEntry(m.e) }

func (memEntry) release() error { return nil }

// ThreadBackend runs jobs on a fixed pool of goroutines. Each job owns the
// result slot at its index; slots are read only after the pool is idle.
type ThreadBackend struct {
	workers int
	tracker *progress.Tracker
	pool    *pool.Pool
	results []JobResult
}

// NewThreadBackend returns a backend running at most workers jobs at once.
func NewThreadBackend(workers int, tr *progress.Tracker) *ThreadBackend {
	return &ThreadBackend{workers: workers, tracker: tr}
}

// Dispatch submits every job to the pool.
func (b *ThreadBackend) Dispatch(jobs []Job) error {
	b.pool = pool.New(b.workers)
	b.results = make([]JobResult, len(jobs))
	for i := range jobs {
		job := jobs[i]
		slot := &b.results[i]
		slot.Job = job
		err := b.pool.Submit(func() {
			slot.staged, slot.Err = runJob(job, b.tracker)
		})
		if err != nil {
			return fmt.Errorf("submit job %d: %w", job.Index, err)
		}
	}
	return nil
}

// Wait blocks until the pool is idle and shuts it down.
func (b *ThreadBackend) Wait() []JobResult {
	if b.pool == nil {
		return nil
	}
	b.pool.WaitIdle()
	b.pool.Close()
	return b.results
}

// Peak returns how many jobs ran at the same time at most.
func (b *ThreadBackend) Peak() int {
	if b.pool == nil {
		return 0
	}
	return b.pool.Peak()
}

func runJob(job Job, tr *progress.Tracker) (staged, error) {
	switch job.Op {
	case OpCompress:
		e, err := compressFile(job.Path, job.Name)
		if err != nil {
			return nil, err
		}
		tr.Add(e.OriginalLen)
		return memEntry{e}, nil
	case OpDecompress:
		return nil, restoreEntry(job.Path, job.Meta, job.OutDir, tr)
	}
	return nil, fmt.Errorf("unknown op %d", job.Op)
}

// compressFile reads path and codes it as the entry name.
func compressFile(path, name string) (*container.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", archerr.ErrIO, path, err)
	}
	return container.NewEntry(name, data)
}

// restoreEntry decodes m from the container at archive on its own file
// handle and writes it into outDir.
func restoreEntry(archive string, m *container.EntryMeta, outDir string, tr *progress.Tracker) error {
	if m == nil {
		return fmt.Errorf("restore: missing entry metadata")
	}
	out, err := container.OutputPath(outDir, m.Name)
	if err != nil {
		return err
	}
	data, err := container.Restore(archive, m)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", archerr.ErrIO, out, err)
	}
	pw := &progress.Writer{W: f, T: tr}
	_, werr := pw.Write(data)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("%w: write %s: %w", archerr.ErrIO, out, werr)
	}
	if cerr != nil {
		return fmt.Errorf("%w: close %s: %w", archerr.ErrIO, out, cerr)
	}
	return nil
}
