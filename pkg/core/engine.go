// Package core runs compression and extraction jobs over a bounded pool of
// workers and merges their results into one container.
package core

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"hfa/pkg/archerr"
	"hfa/pkg/container"
	"hfa/pkg/progress"
)

// ErrBusy is returned when a run is started while another is in progress.
var ErrBusy = errors.New("engine: run in progress")

// State is a step of an engine run.
type State int

const (
	Idle State = iota
	Dispatching
	AwaitingWorkers
	Merging
	Done
	Failed
)

var stateNames = [...]string{"idle", "dispatching", "awaiting-workers", "merging", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	Idle:            {Dispatching, Failed},
	Dispatching:     {AwaitingWorkers, Failed},
	AwaitingWorkers: {Merging, Done, Failed},
	Merging:         {Done, Failed},
	Done:            {Idle},
	Failed:          {Idle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// running reports whether s belongs to a run that has not finished.
func (s State) running() bool {
	return s == Dispatching || s == AwaitingWorkers || s == Merging
}

// Op is the kind of work a job does.
type Op int

const (
	OpCompress Op = iota
	OpDecompress
)

func (op Op) String() string {
	if op == OpDecompress {
		return "decompress"
	}
	return "compress"
}

// Job is one independent unit of work. A compression job reads Path and
// produces the entry Name; an extraction job restores Meta from the
// container at Path into OutDir.
type Job struct {
	Index  int
	Op     Op
	Name   string
	Path   string
	Size   uint64 // input bytes, used for progress
	OutDir string
	Meta   *container.EntryMeta
}

// JobResult is the outcome of one job. Successful compression jobs carry a
// staged entry waiting to be merged.
type JobResult struct {
	Job    Job
	Err    error
	staged staged
}

// JobError records the failure of one job. It matches
// archerr.ErrWorkerFailure as well as the error it wraps.
type JobError struct {
	Index int
	Name  string
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

func (e *JobError) Is(target error) bool { return target == archerr.ErrWorkerFailure }

// Report summarizes a finished run.
type Report struct {
	Op        Op
	State     State
	Output    string // container written or directory restored into
	Jobs      int
	Succeeded int
	Bytes     uint64 // input bytes of the successful jobs
	Failures  []*JobError
	Elapsed   time.Duration
}

// Failed returns the number of failed jobs.
func (r *Report) Failed() int { return len(r.Failures) }

// Engine runs one operation at a time and exposes its current state.
type Engine struct {
	opts Options
	log  *zap.SugaredLogger

	mu    sync.Mutex
	state State
}

// NewEngine validates opts and returns an idle engine.
func NewEngine(opts Options) (*Engine, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	return &Engine{opts: opts, log: opts.Logger}, nil
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Options returns the normalized options.
func (e *Engine) Options() Options { return e.opts }

// begin resets a finished engine to Idle and claims it for a new run.
func (e *Engine) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.running() {
		return ErrBusy
	}
	if e.state != Idle {
		e.state = Idle
	}
	return nil
}

func (e *Engine) transition(to State) {
	e.mu.Lock()
	from := e.state
	if !canTransition(from, to) {
		e.mu.Unlock()
		panic(fmt.Sprintf("core: invalid transition %s -> %s", from, to))
	}
	e.state = to
	e.mu.Unlock()
	e.log.Debugf("state %s -> %s", from, to)
}

// fail moves the engine to Failed and stamps the report.
func (e *Engine) fail(r *Report, start time.Time, err error) (*Report, error) {
	e.transition(Failed)
	r.State = Failed
	r.Elapsed = time.Since(start)
	return r, err
}

// finish settles the run as Done or Failed from the job outcomes and builds
// the aggregate error.
func (e *Engine) finish(r *Report, start time.Time, extra error) (*Report, error) {
	r.Elapsed = time.Since(start)
	var err error
	for _, je := range r.Failures {
		err = multierr.Append(err, je)
	}
	if err != nil {
		err = fmt.Errorf("%d of %d jobs failed: %w", len(r.Failures), r.Jobs, err)
	}
	err = multierr.Append(err, extra)
	if err != nil {
		e.transition(Failed)
		r.State = Failed
		return r, err
	}
	e.transition(Done)
	r.State = Done
	return r, nil
}

// collect fills r from results and logs each failure.
func (e *Engine) collect(r *Report, results []JobResult) {
	for _, res := range results {
		if res.Err != nil {
			je := &JobError{Index: res.Job.Index, Name: res.Job.Name, Err: res.Err}
			r.Failures = append(r.Failures, je)
			e.log.Warnf("%s %s failed: %v", res.Job.Op, res.Job.Name, res.Err)
			continue
		}
		r.Succeeded++
		r.Bytes += res.Job.Size
	}
}

// backend builds a fresh backend for one run.
func (e *Engine) backend(stageDir string, tr *progress.Tracker) Backend {
	if e.opts.Backend == BackendProcess {
		return NewProcessBackend(ProcessConfig{
			Workers:  e.opts.Workers,
			Command:  e.opts.WorkerCommand,
			StageDir: stageDir,
			Progress: tr,
		})
	}
	return NewThreadBackend(e.opts.Workers, tr)
}
