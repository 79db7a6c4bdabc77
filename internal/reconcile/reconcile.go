// Package reconcile implements the content-aware one-way directory
// reconciliation engine: the fingerprinting scheme, the rename/move
// detector, the concurrent copy pipeline and the mirror-deletion pass.
//
// The package consumes only a Config record, a Logger sink and an
// afero.Fs filesystem abstraction; argument parsing, settings persistence,
// log formatting/sinks, terminal color and OS install helpers are all
// external collaborators left to cmd/dirshuttle.
package reconcile

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
)

// RunSummary reports the outcome of a completed run.
type RunSummary struct {
	DirsCreated  int
	FilesCopied  int
	FilesMoved   int
	DirsMoved    int
	Deleted      int
	Errors       []error
	HasErrors    bool
	PartialFails bool

	// Degraded counts overwrite decisions made without a usable
	// fingerprint: the driver still made progress, by falling back to
	// an unconditional copy, but the decision wasn't content-verified.
	Degraded int
}

// Run reconciles cfg.Dst against cfg.Src and returns a summary of the
// operations performed (or, in dry-run mode, planned).
//
// cfg.Mode selects between the directory-tree walk described below and
// runFile's single-pair fast path.
func Run(ctx context.Context, fsys afero.Fs, cfg *Config, log Logger) (*RunSummary, error) {
	if log == nil {
		log = nopLogger{}
	}

	cfg = cfg.withDefaults()

	if cfg.Mode == ModeFile {
		return runFile(ctx, fsys, cfg, log)
	}

	if ok, err := afero.DirExists(fsys, cfg.Src); err != nil {
		return nil, fmt.Errorf("failed to stat source root: %q (%w)", cfg.Src, err)
	} else if !ok {
		return nil, fmt.Errorf("%w: %q", errSrcNotExist, cfg.Src)
	}

	if ok, err := afero.DirExists(fsys, cfg.Dst); err != nil {
		return nil, fmt.Errorf("failed to stat destination root: %q (%w)", cfg.Dst, err)
	} else if !ok {
		return nil, fmt.Errorf("%w: %q", errDstNotExist, cfg.Dst)
	}

	d := newDriver(fsys, cfg, log)
	d.ctx = ctx

	if cfg.HashMode == HashStrong {
		log.Info("building destination index", "op", "sync", "dst", cfg.Dst)

		if err := d.buildIndex(ctx); err != nil {
			return nil, fmt.Errorf("failed to build destination index: %w", err)
		}
	}

	log.Info("reconciling source into destination", "op", "sync", "src", cfg.Src, "dst", cfg.Dst, "dry-run", cfg.DryRun)

	if err := d.walkSource(ctx); err != nil {
		// No further copies are enqueued; wait for the ones already
		// submitted to finish (or abort on the canceled context).
		_ = d.pool.Wait()

		return nil, fmt.Errorf("failed during source walk: %w", err)
	}

	if err := d.pool.Wait(); err != nil {
		d.recordErr("copy", cfg.Dst, err)
	}

	if cfg.Mirror {
		log.Info("running mirror pass", "op", "mirror", "dst", cfg.Dst, "dry-run", cfg.DryRun)

		if err := d.mirrorPass(ctx); err != nil {
			return nil, fmt.Errorf("failed during mirror pass: %w", err)
		}
	}

	d.summary.HasErrors = len(d.summary.Errors) > 0
	d.summary.PartialFails = d.summary.HasErrors

	return &d.summary, nil
}

// runFile implements the single-file-pair mode: no tree walk, no
// destination index, no mirror pass, since move detection and
// mirror-deletion both require a destination tree to search against. It
// reuses the same decideOverwrite/enqueueCopy decision as the directory
// walk's Case B so a single file is reconciled under identical overwrite
// semantics.
func runFile(ctx context.Context, fsys afero.Fs, cfg *Config, log Logger) (*RunSummary, error) {
	if ok, err := afero.DirExists(fsys, cfg.Src); err != nil {
		return nil, fmt.Errorf("failed to stat source: %q (%w)", cfg.Src, err)
	} else if ok {
		return nil, fmt.Errorf("%w: %q is a directory, not a file", errSrcNotExist, cfg.Src)
	}

	if ok, err := afero.Exists(fsys, cfg.Src); err != nil {
		return nil, fmt.Errorf("failed to stat source: %q (%w)", cfg.Src, err)
	} else if !ok {
		return nil, fmt.Errorf("%w: %q", errSrcNotExist, cfg.Src)
	}

	if ok, err := afero.DirExists(fsys, cfg.Dst); err != nil {
		return nil, fmt.Errorf("failed to stat destination: %q (%w)", cfg.Dst, err)
	} else if ok {
		return nil, fmt.Errorf("%w: %q is a directory, not a file", errDstNotExist, cfg.Dst)
	}

	d := newDriver(fsys, cfg, log)
	d.ctx = ctx

	log.Info("reconciling source file into destination", "op", "sync", "src", cfg.Src, "dst", cfg.Dst, "dry-run", cfg.DryRun)

	exists, err := afero.Exists(fsys, cfg.Dst)
	if err != nil {
		return nil, fmt.Errorf("failed to stat destination: %q (%w)", cfg.Dst, err)
	}

	if !exists {
		d.enqueueCopy(cfg.Src, cfg.Dst)
		d.reserve(cfg.Dst)
	} else {
		needCopy, err := d.decideOverwrite(cfg.Src, cfg.Dst)
		if err != nil {
			d.recordErr("walk", cfg.Dst, err)
		} else if needCopy {
			d.enqueueCopy(cfg.Src, cfg.Dst)
		}
	}

	if err := d.pool.Wait(); err != nil {
		d.recordErr("copy", cfg.Dst, err)
	}

	d.summary.HasErrors = len(d.summary.Errors) > 0
	d.summary.PartialFails = d.summary.HasErrors

	return &d.summary, nil
}
