package main

import (
	"flag"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/yaml.v3"

	"github.com/dirshuttle/dirshuttle/internal/reconcile"
)

func (prog *program) parseArgs(cliArgs []string) error {
	var (
		yamlFile    string
		yamlOpts    programOptions
		isDir       bool
		isFile      bool
		hashModeStr string
	)

	prog.flags = flag.NewFlagSet("dirshuttle", flag.ExitOnError)
	prog.flags.SetOutput(prog.stderr)
	prog.flags.Usage = func() {
		fmt.Fprintf(prog.stderr, "usage: %q --dir|--file <src> <dst> [flags]\n", cliArgs[0])
		fmt.Fprintf(prog.stderr, "\t[--ignore=ABSPATH] [--ignore=ABSPATH] [--mirror] [--dry-run]\n")
		fmt.Fprintf(prog.stderr, "\t[--hash=fast|strong] [--verify] [--max-copy-workers=N] [--slow-mode]\n")
		fmt.Fprintf(prog.stderr, "\t[--log-level=debug|info|warn|error] [--json]\n\n")
		prog.flags.PrintDefaults()
	}

	prog.flags.BoolVar(&isDir, "dir", false, "reconcile an entire directory tree; takes <src> <dst> as positional arguments")
	prog.flags.BoolVar(&isFile, "file", false, "reconcile a single file pair; takes <src> <dst> as positional arguments")
	prog.flags.StringVar(&yamlFile, "config", "", "path to a yaml configuration file; used alongside --dir/--file")
	prog.flags.Var(&prog.ignore, "ignore", "absolute source path to ignore; can be repeated multiple times")
	prog.flags.BoolVar(&prog.opts.Mirror, "mirror", false, "delete destination entries that no longer exist on the source, after reconciling")
	prog.flags.BoolVar(&prog.opts.DryRun, "dry-run", false, "preview only; no changes are written to disk")
	prog.flags.StringVar(&hashModeStr, "hash", "fast", "content fingerprint scheme: 'fast' (FNV-1a-64, partial) or 'strong' (BLAKE3-256, full, enables move detection)")
	prog.flags.BoolVar(&prog.opts.Verify, "verify", false, "re-read and re-hash a destination file after copying it; requires an extra full read")
	prog.flags.IntVar(&prog.opts.MaxCopyWorkers, "max-copy-workers", reconcile.DefaultMaxCopyWorkers, "maximum number of concurrent file copies")
	prog.flags.Float64Var(&prog.opts.DirMoveThreshold, "move-threshold", reconcile.DefaultDirMoveThreshold, "minimum fingerprint-set overlap ratio for a directory to be treated as moved")
	prog.flags.BoolVar(&prog.opts.CaseInsensitive, "case-insensitive", false, "normalize paths case-insensitively; use on case-folding filesystems")
	prog.flags.BoolVar(&prog.opts.SlowMode, "slow-mode", false, "throttle the walk after every batch of directory creations and file renames; avoids thrashing sensitive filesystems")
	prog.flags.StringVar(&prog.opts.LogLevel, "log-level", "info", "decides the verbosity of emitted logs; debug, info, warn, error")
	prog.flags.BoolVar(&prog.opts.JSON, "json", false, "output all emitted logs in the JSON format; results can be read from stderr")

	if err := prog.flags.Parse(cliArgs[1:]); err != nil {
		return fmt.Errorf("failed parsing flags: %w", err)
	}

	setFlags := make(map[string]bool)
	prog.flags.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	if yamlFile != "" {
		f, err := prog.fsys.Open(yamlFile)
		if err != nil {
			return fmt.Errorf("%w: %w", errArgConfigMissing, err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)

		if err := dec.Decode(&yamlOpts); err != nil {
			return fmt.Errorf("%w: %w", errArgConfigMalformed, err)
		}
	}

	switch {
	case setFlags["dir"] && setFlags["file"]:
		return errArgModeMismatch
	case setFlags["dir"]:
		prog.opts.Mode = reconcile.ModeDir.String()
	case setFlags["file"]:
		prog.opts.Mode = reconcile.ModeFile.String()
	default:
		prog.opts.Mode = yamlOpts.Mode
	}

	args := prog.flags.Args()
	if len(args) == 2 {
		prog.opts.Src = args[0]
		prog.opts.Dst = args[1]
	} else {
		prog.opts.Src = yamlOpts.Src
		prog.opts.Dst = yamlOpts.Dst
	}

	if !setFlags["ignore"] {
		for _, p := range yamlOpts.Ignore {
			prog.ignore = append(prog.ignore, filepath.Clean(strings.TrimSpace(p)))
		}
	}
	prog.opts.Ignore = prog.ignore

	if !setFlags["mirror"] {
		prog.opts.Mirror = yamlOpts.Mirror
	}
	if !setFlags["dry-run"] {
		prog.opts.DryRun = yamlOpts.DryRun
	}
	if !setFlags["hash"] && yamlOpts.HashMode != "" {
		hashModeStr = yamlOpts.HashMode
	}
	if !setFlags["verify"] {
		prog.opts.Verify = yamlOpts.Verify
	}
	if !setFlags["max-copy-workers"] && yamlOpts.MaxCopyWorkers != 0 {
		prog.opts.MaxCopyWorkers = yamlOpts.MaxCopyWorkers
	}
	if !setFlags["move-threshold"] && yamlOpts.DirMoveThreshold != 0 {
		prog.opts.DirMoveThreshold = yamlOpts.DirMoveThreshold
	}
	if !setFlags["case-insensitive"] {
		prog.opts.CaseInsensitive = yamlOpts.CaseInsensitive
	}
	if !setFlags["slow-mode"] {
		prog.opts.SlowMode = yamlOpts.SlowMode
	}
	if !setFlags["log-level"] {
		prog.opts.LogLevel = yamlOpts.LogLevel
	}
	if !setFlags["json"] {
		prog.opts.JSON = yamlOpts.JSON
	}

	prog.opts.HashMode = hashModeStr

	return nil
}

func (prog *program) validateOpts() error {
	if prog.opts.Mode != "dir" && prog.opts.Mode != "file" {
		return errArgModeMismatch
	}

	mode, err := reconcile.ParseMode(prog.opts.Mode)
	if err != nil {
		return fmt.Errorf("%w: %q", errArgModeMismatch, prog.opts.Mode)
	}
	prog.mode = mode

	if prog.opts.Src == "" || prog.opts.Dst == "" {
		return errArgMissingSrcDst
	}

	prog.opts.Src = filepath.Clean(strings.TrimSpace(prog.opts.Src))
	prog.opts.Dst = filepath.Clean(strings.TrimSpace(prog.opts.Dst))

	if prog.opts.Src == prog.opts.Dst {
		return errArgSrcDstSame
	}

	if !filepath.IsAbs(prog.opts.Src) || !filepath.IsAbs(prog.opts.Dst) {
		return errArgSrcDstNotAbs
	}

	for _, p := range prog.opts.Ignore {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("%w: %q", errArgIgnorePathNotAbs, p)
		}
	}

	hashMode, err := reconcile.ParseHashMode(prog.opts.HashMode)
	if err != nil {
		return fmt.Errorf("%w: %q", errArgInvalidHashMode, prog.opts.HashMode)
	}
	prog.hashMode = hashMode

	if prog.opts.LogLevel != "" {
		if _, err := parseLogLevel(prog.opts.LogLevel); err != nil {
			return fmt.Errorf("%w: %q", err, prog.opts.LogLevel)
		}
	} else {
		prog.opts.LogLevel = strings.ToLower(defaultLogLevel.String())
	}

	return nil
}

func (prog *program) printOpts() error {
	out, err := yaml.Marshal(prog.opts)
	if err != nil {
		return fmt.Errorf("failed printing configuration: %w", err)
	}

	fmt.Fprintf(prog.stdout, "configuration for '--%s':\n", prog.opts.Mode)

	lines := strings.SplitSeq(string(out), "\n")
	for line := range lines {
		if line != "" {
			fmt.Fprintf(prog.stdout, "\t%s\n", line)
		}
	}

	fmt.Fprintln(prog.stdout)

	return nil
}

func (prog *program) logHandler() slog.Handler {
	var logHandler slog.Handler

	logLevel, _ := parseLogLevel(prog.opts.LogLevel)

	if prog.opts.JSON {
		logHandler = slog.NewJSONHandler(prog.stderr, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		logHandler = tint.NewHandler(prog.stderr,
			&tint.Options{
				Level:      logLevel,
				TimeFormat: time.TimeOnly,
			})
	}

	return logHandler
}

// reconcileConfig builds the reconcile.Config consumed by the engine from
// the validated CLI/YAML options.
func (prog *program) reconcileConfig() *reconcile.Config {
	batch, delay := 0, time.Duration(0)
	if prog.opts.SlowMode {
		batch = slowModeBatch
		delay = slowModeDelay
	}

	return &reconcile.Config{
		Mode:             prog.mode,
		Src:              prog.opts.Src,
		Dst:              prog.opts.Dst,
		Ignore:           prog.opts.Ignore,
		Mirror:           prog.opts.Mirror,
		DryRun:           prog.opts.DryRun,
		HashMode:         prog.hashMode,
		MaxCopyWorkers:   prog.opts.MaxCopyWorkers,
		VerifyAfterCopy:  prog.opts.Verify,
		CaseInsensitive:  prog.opts.CaseInsensitive,
		DirMoveThreshold: prog.opts.DirMoveThreshold,
		SlowModeBatch:    batch,
		SlowModeDelay:    delay,
	}
}
