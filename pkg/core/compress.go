package core

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/multierr"

	"hfa/pkg/archerr"
	"hfa/pkg/container"
	"hfa/pkg/progress"
)

// Input is one file selected for compression.
type Input struct {
	Name string // base name, used as the entry name
	Path string
	Size uint64 // 0 when the file could not be inspected
}

// ListInputs returns the non-directory entries of dir whose names end in
// suffix, sorted by name. Staging parts and the file at exclude are left
// out. Entries are not opened, so unreadable files are reported later by
// their jobs.
func ListInputs(dir, suffix, exclude string) ([]Input, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", archerr.ErrIO, dir, err)
	}
	var skip string
	if exclude != "" {
		if abs, err := filepath.Abs(exclude); err == nil {
			skip = abs
		}
	}

	var inputs []Input
	for _, ent := range ents {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		if strings.HasPrefix(name, container.StagePrefix) && strings.HasSuffix(name, container.StageSuffix) {
			continue
		}
		path := filepath.Join(dir, name)
		if skip != "" {
			if abs, err := filepath.Abs(path); err == nil && abs == skip {
				continue
			}
		}
		in := Input{Name: name, Path: path}
		if info, err := ent.Info(); err == nil && info.Mode().IsRegular() {
			in.Size = uint64(info.Size())
		}
		inputs = append(inputs, in)
	}
	slices.SortFunc(inputs, func(a, b Input) int { return strings.Compare(a.Name, b.Name) })
	return inputs, nil
}

// Compress codes every input of dir into one container at output, merging
// entries in sorted-name order whatever order the jobs finish in. An empty
// output means dir/archive.hfa. Failed jobs are left out of the container
// and reported through the returned error; the container of the remaining
// entries is still written.
func (e *Engine) Compress(dir, output string) (*Report, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	start := time.Now()
	if output == "" {
		output = filepath.Join(dir, container.DefaultName)
	}
	r := &Report{Op: OpCompress, Output: output}

	inputs, err := ListInputs(dir, e.opts.Suffix, output)
	if err != nil {
		return e.fail(r, start, err)
	}
	jobs := make([]Job, len(inputs))
	var total uint64
	for i, in := range inputs {
		jobs[i] = Job{Index: i, Op: OpCompress, Name: in.Name, Path: in.Path, Size: in.Size}
		total += in.Size
	}
	r.Jobs = len(jobs)
	e.log.Debugf("compressing %d files from %s with %d %s workers", len(jobs), dir, e.opts.Workers, e.opts.Backend)

	stageDir := e.opts.StageDir
	if stageDir == "" {
		stageDir = filepath.Dir(output)
	}
	tr := e.tracker(total)
	tr.Start()
	defer tr.Stop()

	results, err := e.dispatch(jobs, stageDir, tr)
	if err != nil {
		release(results)
		return e.fail(r, start, err)
	}
	e.collect(r, results)

	e.transition(Merging)
	merr := merge(output, results)
	if rerr := release(results); rerr != nil {
		e.log.Warnf("cleanup: %v", rerr)
	}
	if merr != nil {
		return e.fail(r, start, merr)
	}

	var extra error
	if e.opts.RemoveSources && r.Failed() == 0 {
		for _, in := range inputs {
			if err := os.Remove(in.Path); err != nil {
				extra = multierr.Append(extra, fmt.Errorf("%w: remove source %s: %w", archerr.ErrIO, in.Path, err))
			}
		}
	}

	r, err = e.finish(r, start, extra)
	e.log.Infof("compressed %d of %d files into %s in %d ms", r.Succeeded, r.Jobs, output, r.Elapsed.Milliseconds())
	return r, err
}

// dispatch runs jobs on a fresh backend and waits for all of them.
func (e *Engine) dispatch(jobs []Job, stageDir string, tr *progress.Tracker) ([]JobResult, error) {
	e.transition(Dispatching)
	b := e.backend(stageDir, tr)
	derr := b.Dispatch(jobs)
	e.transition(AwaitingWorkers)
	return b.Wait(), derr
}

func (e *Engine) tracker(total uint64) *progress.Tracker {
	if !e.opts.Progress {
		return nil
	}
	return progress.New(total, e.log)
}

// merge writes the successful results to output in dispatch order.
func merge(output string, results []JobResult) error {
	var ok int
	for _, res := range results {
		if res.Err == nil && res.staged != nil {
			ok++
		}
	}
	w, err := container.Create(output, ok)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Err != nil || res.staged == nil {
			continue
		}
		if err := res.staged.merge(w); err != nil {
			w.Close()
			return fmt.Errorf("merge entry %d (%s): %w", res.Job.Index, res.Job.Name, err)
		}
	}
	return w.Close()
}

// release drops every staged result.
func release(results []JobResult) error {
	var err error
	for _, res := range results {
		if res.staged != nil {
			err = multierr.Append(err, res.staged.release())
		}
	}
	return err
}

// Compress is a one-shot Engine.Compress.
func Compress(dir, output string, opts Options) (*Report, error) {
	e, err := NewEngine(opts)
	if err != nil {
		return nil, err
	}
	return e.Compress(dir, output)
}
