/*
dirshuttle is a CLI utility for reconciling the contents of one directory
tree (or a single file) into another, one way, with content-aware rename
and directory-move detection so relocated content is promoted via a rename
rather than re-copied wholesale.

The tool operates over two positional arguments, a source and a
destination, selected by one of two mutually exclusive mode flags:

  - `--dir <src> <dst>`: reconciles an entire directory tree. New source
    entries are created at the destination; renamed or moved files and
    directories are detected by content fingerprint and relocated with a
    rename rather than a copy; existing destination files are compared
    against their source counterpart and only overwritten when the source
    is newer (fast hashing) or their content differs (strong hashing).

  - `--file <src> <dst>`: reconciles a single file pair, without walking a
    tree, building a destination index, or running a mirror pass.

With `--mirror`, destination entries that no longer exist on the source are
deleted after the tree is reconciled, turning the destination into a true
mirror of the source.

# FEATURES

  - Two modes: `--dir` reconciles a tree, `--file` a single file pair.
  - Content-aware: fast (FNV-1a-64, partial) or strong (BLAKE3-256, full)
    fingerprinting; strong mode also enables rename/move detection.
  - Concurrent, bounded copy pipeline with atomic rename-or-copy semantics.
  - Optional mirror-deletion of stale destination entries.
  - Ignore rules: skip specified absolute source paths during a `--dir`
    run; `--file` mode does not consult them.
  - Dry-run support: preview planned operations with `--dry-run`.
  - CLI and YAML config: combine structured config files with runtime flags.
  - Scriptable: JSON output mode and distinct exit codes allow complex
    scripting.

# USAGE

	dirshuttle --dir|--file <src> <dst> [flags]

# ARGUMENTS

	--dir / --file
		Required, mutually exclusive. Selects whether <src>/<dst> name
		directory trees to reconcile or a single pair of files.

	--config string
		Optional. Path to a YAML configuration file with any CLI arguments.
		Direct CLI arguments always override values set via configuration file.

	--ignore string
		Optional. Absolute source path to ignore. Can be repeated.

	--mirror
		Optional. Delete destination entries that no longer exist on the
		source, after the tree has been reconciled.

		Default: false

	--hash [fast|strong]
		Optional. Content fingerprinting scheme. Fast mode never builds a
		destination index and never detects renames or moves; strong mode
		does both, at the cost of a full read of every destination file.

		Default: fast

	--verify
		Optional. Re-read a destination file again after copying it and
		verify against the source fingerprint, ensuring it was written to
		disk without corruption. Requires a full re-read of the file.

		Default: false

	--max-copy-workers int
		Optional. Maximum number of concurrent file copies.

		Default: 4

	--move-threshold float
		Optional. Minimum fingerprint-set overlap ratio for a directory to
		be treated as moved rather than as a set of new/deleted entries.

		Default: 0.85

	--case-insensitive
		Optional. Normalize paths case-insensitively; use on case-folding
		filesystems.

		Default: false

	--slow-mode
		Optional. Throttles the walk after every batch of directory
		creations and file renames (copies and deletions are not
		counted); helps avoid thrashing more sensitive filesystems.

		Default: false

	--dry-run
		Optional. Perform a preview of operations, without filesystem changes.

		Default: false

	--log-level [debug|info|warn|error]
		Optional. Controls verbosity of the operational logs that are emitted.

		Default: info

	--json
		Optional. Outputs in JSON format the operational logs that are emitted.

		Default: false

# YAML CONFIGURATION EXAMPLE

	mode: dir
	src: /data/incoming
	dst: /data/archive
	ignore:
	  - /data/incoming/.staging
	mirror: false
	hash: strong
	verify: false
	max-copy-workers: 4
	move-threshold: 0.85
	case-insensitive: false
	slow-mode: false
	dry-run: false
	log-level: info
	json: false

Invalid configurations (unknown or malformed fields) are rejected at runtime.

# RETURN CODES

  - `0`: Success
  - `1`: Failure
  - `2`: Partial failure (one or more per-entry errors were recorded)
  - `4`: Completed, but one or more overwrite decisions were degraded to an
    unconditional copy for lack of a usable fingerprint
  - `5`: Invalid command-line arguments and/or configuration file provided

# SECURITY, CONTRIBUTIONS AND LICENSING

Please report any issues via the GitHub Issues tracker. Contributions
should be submitted through GitHub and, if possible, should pass the test
suite and comply with the project's linting rules.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/dirshuttle/dirshuttle/internal/reconcile"
)

const (
	exitCodeSuccess        = 0
	exitCodeFailure        = 1
	exitCodePartialFailure = 2
	exitCodeDegraded       = 4
	exitCodeConfigFailure  = 5

	slowModeBatch   = 50
	slowModeDelay   = 1 * time.Second
	defaultLogLevel = slog.LevelInfo

	exitTimeout = 10 * time.Second
)

var (
	// Version is the application's version (filled in during compilation).
	Version string

	errArgConfigMalformed  = errors.New("--config yaml file is malformed")
	errArgConfigMissing    = errors.New("--config yaml file does not exist")
	errArgIgnorePathNotAbs = errors.New("--ignore paths must all be absolute")
	errArgSrcDstNotAbs     = errors.New("<src> and <dst> paths must all be absolute")
	errArgSrcDstSame       = errors.New("<src> and <dst> paths cannot be the same")
	errArgMissingSrcDst    = errors.New("<src> and <dst> positional arguments must both be set")
	errArgModeMismatch     = errors.New("exactly one of --dir or --file must be given")
	errArgInvalidLogLevel  = errors.New("--log-level has a not recognized value")
	errArgInvalidHashMode  = errors.New("--hash has a not recognized value")
)

type program struct {
	fsys   afero.Fs
	stdout io.Writer
	stderr io.Writer

	opts   *programOptions
	ignore ignoreArg

	mode     reconcile.Mode
	hashMode reconcile.HashMode

	log   *slog.Logger
	flags *flag.FlagSet

	provokeTestPanic bool
}

type programOptions struct {
	Mode             string   `yaml:"mode"`
	Src              string   `yaml:"src"`
	Dst              string   `yaml:"dst"`
	Ignore           []string `yaml:"ignore"`
	Mirror           bool     `yaml:"mirror"`
	DryRun           bool     `yaml:"dry-run"`
	HashMode         string   `yaml:"hash"`
	Verify           bool     `yaml:"verify"`
	MaxCopyWorkers   int      `yaml:"max-copy-workers"`
	DirMoveThreshold float64  `yaml:"move-threshold"`
	CaseInsensitive  bool     `yaml:"case-insensitive"`
	SlowMode         bool     `yaml:"slow-mode"`
	LogLevel         string   `yaml:"log-level"`
	JSON             bool     `yaml:"json"`
}

func main() {
	var prog *program
	var exitCode int

	defer func() {
		if prog != nil {
			prog.log.Info("program exited", "code", exitCode)
		}
		os.Exit(exitCode)
	}()

	fmt.Fprintf(os.Stdout, "dirshuttle (v%s) - reconcile one directory tree into another.\n\n", Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	doneChan := make(chan int, 1)

	prog, err := newProgram(os.Args, afero.NewOsFs(), os.Stdout, os.Stderr)
	if prog == nil || err != nil {
		exitCode = exitCodeConfigFailure

		return
	}

	go func() {
		exitCode, _ := prog.run(ctx)
		doneChan <- exitCode
	}()

	select {
	case code := <-doneChan:
		exitCode = code

		return

	case <-sigChan:
		prog.log.Warn("received interrupt signal; shutting down (waiting up to 10s)...", "op", prog.opts.Mode)
		cancel()

		select {
		case code := <-doneChan:
			exitCode = code

			return

		case <-time.After(exitTimeout):
			prog.log.Error("timed out while waiting for program exit; killing...",
				"op", prog.opts.Mode,
				"error-type", "fatal",
			)
			exitCode = exitCodeFailure

			return
		}
	}
}

func newProgram(cliArgs []string, fsys afero.Fs, stdout io.Writer, stderr io.Writer) (*program, error) {
	prog := &program{
		fsys:   fsys,
		stdout: stdout,
		stderr: stderr,
		opts:   &programOptions{},
	}

	if err := prog.parseArgs(cliArgs); err != nil {
		fmt.Fprintf(prog.stderr, "fatal: failed to parse configuration: %v\n\n", err)
		prog.flags.Usage()

		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := prog.validateOpts(); err != nil {
		fmt.Fprintf(prog.stderr, "fatal: failed to validate configuration: %v\n\n", err)
		prog.flags.Usage()

		return nil, fmt.Errorf("failed to validate configuration: %w", err)
	}

	if err := prog.printOpts(); err != nil {
		fmt.Fprintf(prog.stderr, "fatal: failed to print configuration: %v\n\n", err)
		prog.flags.Usage()

		return nil, fmt.Errorf("failed to print configuration: %w", err)
	}

	prog.log = slog.New(prog.logHandler())

	return prog, nil
}

func (prog *program) run(ctx context.Context) (retExitCode int, retError error) {
	defer func() {
		if r := recover(); r != nil {
			prog.log.Error("internal panic recovered",
				"op", prog.opts.Mode,
				"error", r,
				"error-type", "fatal",
			)
			debug.PrintStack()
			retExitCode = exitCodeFailure
		}
	}()

	if prog.opts.DryRun {
		prog.log.Warn("running in dry mode - no changes will be made", "op", prog.opts.Mode)
	}

	prog.log.Info("reconciling source into destination...",
		"op", prog.opts.Mode,
		"src", prog.opts.Src,
		"dst", prog.opts.Dst,
	)

	summary, err := reconcile.Run(ctx, prog.fsys, prog.reconcileConfig(), slogLogger{prog.log})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			prog.log.Error("failed reconciling source into destination",
				"op", prog.opts.Mode,
				"error", err,
				"error-type", "fatal",
			)
		}

		return exitCodeFailure, fmt.Errorf("failed reconciling source into destination: %w", err)
	}

	if prog.provokeTestPanic {
		panic("testing program panic")
	}

	logFields := []any{
		"op", prog.opts.Mode,
		"dirs_created", summary.DirsCreated,
		"files_copied", summary.FilesCopied,
		"files_moved", summary.FilesMoved,
		"dirs_moved", summary.DirsMoved,
		"deleted", summary.Deleted,
	}

	if summary.HasErrors {
		prog.log.Warn("run completed, but with partial failures; exiting...", logFields...)

		return exitCodePartialFailure, nil
	}

	if summary.Degraded > 0 {
		prog.log.Warn("run completed, but with degraded overwrite decisions; exiting...",
			append(logFields, "degraded", summary.Degraded)...,
		)

		return exitCodeDegraded, nil
	}

	prog.log.Info("run completed; exiting...", logFields...)

	return exitCodeSuccess, nil
}
