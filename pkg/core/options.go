package core

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"hfa/pkg/logging"
)

// BackendKind names an execution backend.
type BackendKind string

const (
	BackendThread  BackendKind = "thread"  // goroutine pool in this process
	BackendProcess BackendKind = "process" // one child process per job
)

// DefaultSuffix is the input filter used when Options.Suffix is unset by
// DefaultOptions.
const DefaultSuffix = ".txt"

// Options configures an Engine.
type Options struct {
	// Workers caps the number of jobs running at once. Values <= 0 mean
	// runtime.NumCPU().
	Workers int
	Backend BackendKind
	// Suffix filters compression inputs by file name. Empty accepts every
	// non-directory entry.
	Suffix string
	// RemoveSources deletes the inputs after a compression with no failures.
	RemoveSources bool
	// RemoveArchive deletes the container after an extraction with no
	// failures.
	RemoveArchive bool
	// StageDir holds the process backend's staging parts. Empty means the
	// directory of the output container.
	StageDir string
	// WorkerCommand is the program and leading arguments that start a
	// process backend worker. Empty means this executable with "worker".
	WorkerCommand []string
	Logger        *zap.SugaredLogger
	// Progress enables periodic progress logging.
	Progress bool
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		Workers: runtime.NumCPU(),
		Backend: BackendThread,
		Suffix:  DefaultSuffix,
	}
}

func (o Options) normalize() (Options, error) {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	switch o.Backend {
	case "":
		o.Backend = BackendThread
	case BackendThread, BackendProcess:
	default:
		return o, fmt.Errorf("unknown backend %q", o.Backend)
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	return o, nil
}

// ParseBackend maps a backend name to its kind.
func ParseBackend(s string) (BackendKind, error) {
	switch k := BackendKind(s); k {
	case BackendThread, BackendProcess:
		return k, nil
	}
	return "", fmt.Errorf("unknown backend %q (want %q or %q)", s, BackendThread, BackendProcess)
}
