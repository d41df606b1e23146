package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"text/tabwriter"

	"go.uber.org/zap"

	"hfa/pkg/container"
	"hfa/pkg/core"
	"hfa/pkg/logging"
)

// errUsage marks bad command lines; main prints the usage and exits 2.
var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	operation, args := os.Args[1], os.Args[2:]
	if operation == "worker" {
		os.Exit(core.WorkerMain(args, os.Stdin, os.Stderr))
	}

	var err error
	switch operation {
	case "compress":
		err = handleCompress(args)
	case "decompress":
		err = handleDecompress(args)
	case "index":
		err = handleIndex(args)
	default:
		err = fmt.Errorf("%w: invalid operation %q", errUsage, operation)
	}

	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, "Error:", err)
		printUsage()
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// printUsage prints the command-line usage information
func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  hfa compress [flags] <dir> [workers] [output.hfa]")
	fmt.Fprintln(os.Stderr, "  hfa decompress [flags] <dir> [archive.hfa] [workers]")
	fmt.Fprintln(os.Stderr, "  hfa index <archive.hfa>")
	fmt.Fprintln(os.Stderr, "Flags:")
	fmt.Fprintln(os.Stderr, "  -backend thread|process   execution backend (default thread)")
	fmt.Fprintln(os.Stderr, "  -suffix .txt              compress only names with this suffix; empty for all")
	fmt.Fprintln(os.Stderr, "  -rm                       remove the inputs (compress) or the archive (decompress) on success")
	fmt.Fprintln(os.Stderr, "  -progress                 log progress while running")
	fmt.Fprintln(os.Stderr, "  -v                        debug logging")
}

type commonFlags struct {
	backend  string
	suffix   string
	remove   bool
	progress bool
	verbose  bool
}

func newFlagSet(name string, cf *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {}
	fs.StringVar(&cf.backend, "backend", string(core.BackendThread), "execution backend")
	fs.BoolVar(&cf.remove, "rm", false, "remove sources or archive on success")
	fs.BoolVar(&cf.progress, "progress", false, "log progress")
	fs.BoolVar(&cf.verbose, "v", false, "debug logging")
	return fs
}

// options maps parsed flags and a worker count argument onto engine options.
func (cf *commonFlags) options(workers string) (core.Options, *zap.SugaredLogger, error) {
	opts := core.DefaultOptions()
	if workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil || n < 1 {
			return opts, nil, fmt.Errorf("%w: worker count %q is not a positive integer", errUsage, workers)
		}
		opts.Workers = n
	}
	kind, err := core.ParseBackend(cf.backend)
	if err != nil {
		return opts, nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	opts.Backend = kind
	opts.Suffix = cf.suffix
	opts.Progress = cf.progress

	level := "info"
	if cf.verbose {
		level = "debug"
	}
	log, err := logging.New(level)
	if err != nil {
		return opts, nil, err
	}
	opts.Logger = log
	log.Debugf("available CPU cores: %d", runtime.NumCPU())
	return opts, log, nil
}

// handleCompress handles the compression operation
func handleCompress(args []string) error {
	var cf commonFlags
	fs := newFlagSet("compress", &cf)
	fs.StringVar(&cf.suffix, "suffix", core.DefaultSuffix, "input name suffix")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	pos := fs.Args()
	if len(pos) < 1 || len(pos) > 3 {
		return fmt.Errorf("%w: compress takes <dir> [workers] [output]", errUsage)
	}

	dir, workers, output := pos[0], arg(pos, 1), arg(pos, 2)
	opts, log, err := cf.options(workers)
	if err != nil {
		return err
	}
	defer log.Sync()
	opts.RemoveSources = cf.remove

	r, err := core.Compress(dir, output, opts)
	if r != nil {
		fmt.Printf("Compressed %d of %d files into %s in %d ms\n", r.Succeeded, r.Jobs, r.Output, r.Elapsed.Milliseconds())
		printFailures(r)
	}
	return err
}

// handleDecompress handles the decompression operation
func handleDecompress(args []string) error {
	var cf commonFlags
	fs := newFlagSet("decompress", &cf)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	pos := fs.Args()
	if len(pos) < 1 || len(pos) > 3 {
		return fmt.Errorf("%w: decompress takes <dir> [archive] [workers]", errUsage)
	}

	dir, archive, workers := pos[0], arg(pos, 1), arg(pos, 2)
	opts, log, err := cf.options(workers)
	if err != nil {
		return err
	}
	defer log.Sync()
	opts.RemoveArchive = cf.remove

	r, err := core.Decompress(dir, archive, opts)
	if r != nil {
		fmt.Printf("Restored %d of %d entries into %s in %d ms\n", r.Succeeded, r.Jobs, r.Output, r.Elapsed.Milliseconds())
		printFailures(r)
	}
	return err
}

// handleIndex prints the metadata of every entry of an archive
func handleIndex(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: index takes <archive>", errUsage)
	}
	metas, err := container.Index(args[0])
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tSIZE\tBITS\tBYTES\tOFFSET\tTREE")
	for _, m := range metas {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\n",
			m.Index, m.Name, m.OriginalLen, m.BitCount, m.ByteCount, m.PayloadOffset, len(m.TreeBlob))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d entries\n", len(metas))
	return nil
}

func printFailures(r *core.Report) {
	for _, je := range r.Failures {
		fmt.Fprintf(os.Stderr, "  failed: %s: %v\n", je.Name, je.Err)
	}
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
