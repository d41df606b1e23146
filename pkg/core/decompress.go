package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hfa/pkg/archerr"
	"hfa/pkg/container"
)

// Decompress indexes the container at archive and restores every entry
// into dir, one job per entry. An empty archive means dir/archive.hfa.
// A container that cannot be indexed fails the whole run; a failed entry
// fails only its own job. Files restored before a failure are kept.
func (e *Engine) Decompress(dir, archive string) (*Report, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	start := time.Now()
	if archive == "" {
		archive = filepath.Join(dir, container.DefaultName)
	}
	r := &Report{Op: OpDecompress, Output: dir}

	metas, err := container.Index(archive)
	if err != nil {
		return e.fail(r, start, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return e.fail(r, start, fmt.Errorf("%w: create %s: %w", archerr.ErrIO, dir, err))
	}

	jobs := make([]Job, len(metas))
	var total uint64
	for i := range metas {
		m := &metas[i]
		jobs[i] = Job{
			Index:  m.Index,
			Op:     OpDecompress,
			Name:   m.Name,
			Path:   archive,
			Size:   m.OriginalLen,
			OutDir: dir,
			Meta:   m,
		}
		total += m.OriginalLen
	}
	r.Jobs = len(jobs)
	e.log.Debugf("restoring %d entries from %s with %d %s workers", len(jobs), archive, e.opts.Workers, e.opts.Backend)

	tr := e.tracker(total)
	tr.Start()
	defer tr.Stop()

	results, err := e.dispatch(jobs, "", tr)
	if err != nil {
		return e.fail(r, start, err)
	}
	e.collect(r, results)

	var extra error
	if e.opts.RemoveArchive && r.Failed() == 0 {
		if err := os.Remove(archive); err != nil {
			extra = fmt.Errorf("%w: remove archive %s: %w", archerr.ErrIO, archive, err)
		}
	}

	r, err = e.finish(r, start, extra)
	e.log.Infof("restored %d of %d entries into %s in %d ms", r.Succeeded, r.Jobs, dir, r.Elapsed.Milliseconds())
	return r, err
}

// Decompress is a one-shot Engine.Decompress.
func Decompress(dir, archive string, opts Options) (*Report, error) {
	e, err := NewEngine(opts)
	if err != nil {
		return nil, err
	}
	return e.Decompress(dir, archive)
}
