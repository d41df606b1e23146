// Package lib provides the archiver as a library for callers that do not
// need the engine's finer controls. It re-exports types from the core and
// container packages.
package lib

import (
	"hfa/pkg/container"
	"hfa/pkg/core"
)

// Constants for the container format re-exported from container
const (
	Magic       = container.Magic       // Tag opening every container
	DefaultName = container.DefaultName // Container name used when none is given
)

// Options re-exported from core
type Options = core.Options

// Report re-exported from core
type Report = core.Report

// JobError re-exported from core
type JobError = core.JobError

// EntryMeta re-exported from container
type EntryMeta = container.EntryMeta

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return core.DefaultOptions()
}

// Compress archives the .txt files of dir into output using workers
// goroutines. workers <= 0 uses every CPU; an empty output means
// dir/archive.hfa.
func Compress(dir string, workers int, output string) (*Report, error) {
	opts := core.DefaultOptions()
	opts.Workers = workers
	return core.Compress(dir, output, opts)
}

// Decompress restores every entry of archive into dir using workers
// goroutines. An empty archive means dir/archive.hfa.
func Decompress(dir, archive string, workers int) (*Report, error) {
	opts := core.DefaultOptions()
	opts.Workers = workers
	return core.Decompress(dir, archive, opts)
}

// Index lists the entries of archive without decoding them.
func Index(archive string) ([]EntryMeta, error) {
	return container.Index(archive)
}
