package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// driver is the reconciliation engine's core: a single-threaded walk over
// the source tree that decides, per entry, between skip, create-directory,
// move-file, move-directory, copy or compare-and-maybe-copy, dispatches
// asynchronous copies, and runs the optional mirror-deletion pass.
//
// The traversal generalizes a fixed mirror-to-target afero.Walk pattern
// into arbitrary source/destination roots with content-based move
// detection.
type driver struct {
	ctx  context.Context //nolint:containedctx // copy workers need per-task cancellation
	fsys afero.Fs
	cfg  *Config
	log  Logger
	norm normalizer

	ignore *ignoreMatcher
	index  *destinationIndex
	pool   *workPool[copyTask]

	// reservedPaths/reservedDirs/movedRoots are owned and mutated only
	// by the driver goroutine; the copy workers observe only immutable
	// (src, dst) pairs per task.
	reservedPaths map[string]bool
	reservedDirs  []string
	movedRoots    []string

	dirFPCache map[string]map[string]struct{}

	batchCount int

	errMu   sync.Mutex
	summary RunSummary
}

func newDriver(fsys afero.Fs, cfg *Config, log Logger) *driver {
	norm := normalizer{caseInsensitive: cfg.CaseInsensitive}

	d := &driver{
		fsys:          fsys,
		cfg:           cfg,
		log:           log,
		norm:          norm,
		ignore:        newIgnoreMatcher(norm, cfg.Ignore),
		index:         newDestinationIndex(),
		reservedPaths: make(map[string]bool),
		dirFPCache:    make(map[string]map[string]struct{}),
	}

	d.pool = newWorkPool(cfg.MaxCopyWorkers, d.runCopyTask)

	return d
}

func (d *driver) recordErr(op, path string, err error) {
	d.errMu.Lock()
	defer d.errMu.Unlock()

	d.summary.Errors = append(d.summary.Errors, &OpError{Op: op, Path: path, Err: err})
	d.log.Error("operation failed", "op", op, "path", path, "error", err, "error-type", "runtime")
}

func (d *driver) reserve(path string) {
	d.reservedPaths[d.norm.normalize(path)] = true
}

func (d *driver) reserveDir(path string) {
	d.reservedDirs = append(d.reservedDirs, d.norm.normalize(path))
}

func (d *driver) isReservedPath(path string) bool {
	return d.reservedPaths[d.norm.normalize(path)]
}

func (d *driver) isReservedDir(path string) bool {
	np := d.norm.normalize(path)
	for _, dir := range d.reservedDirs {
		if np == dir || d.norm.isUnder(dir, np) {
			return true
		}
	}

	return false
}

func (d *driver) isUnderMovedRoot(path string) bool {
	for _, root := range d.movedRoots {
		if d.norm.isUnder(root, path) {
			return true
		}
	}

	return false
}

// throttle implements slow-mode batching. It is called after directory
// creations and file-level renames; copies, directory moves and mirror
// deletions do not count towards a batch.
func (d *driver) throttle(ctx context.Context) {
	if d.cfg.SlowModeBatch <= 0 {
		return
	}

	d.batchCount++
	if d.batchCount < d.cfg.SlowModeBatch {
		return
	}

	d.batchCount = 0

	select {
	case <-ctx.Done():
	case <-time.After(d.cfg.SlowModeDelay):
	}
}

// walkSource performs the pre-order walk over cfg.Src.
func (d *driver) walkSource(ctx context.Context) error {
	return afero.Walk(d.fsys, d.cfg.Src, func(path string, info os.FileInfo, err error) error {
		if cErr := ctx.Err(); cErr != nil {
			return fmt.Errorf("context canceled during walk: %w", cErr)
		}

		if err != nil {
			if os.IsNotExist(err) {
				d.log.Warn("path skipped", "op", "sync", "path", path, "reason", "no_longer_exists")

				return nil
			}

			d.recordErr("walk", path, err)

			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if path == d.cfg.Src {
			return nil
		}

		return d.visit(ctx, path, info)
	})
}

// visit implements the per-entry decision tree.
func (d *driver) visit(ctx context.Context, path string, info os.FileInfo) error {
	// Pre-filters: entries under an already-moved root, or explicitly
	// ignored, are skipped before any fingerprinting happens.
	if d.isUnderMovedRoot(path) {
		if info.IsDir() {
			return filepath.SkipDir
		}

		return nil
	}

	if d.ignore.sourceIgnored(path) {
		d.log.Info("path ignored", "op", "sync", "path", path, "category", "Ignored")

		if info.IsDir() {
			return filepath.SkipDir
		}

		return nil
	}

	rel, err := d.norm.relative(d.cfg.Src, path)
	if err != nil {
		d.recordErr("walk", path, err)

		return nil
	}

	target := join(d.cfg.Dst, rel)

	if info.IsDir() {
		return d.visitDir(ctx, path, target)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return d.visitSymlink(path, target)
	}

	return d.visitFile(ctx, path, target)
}

// visitSymlink treats symlinks as opaque entries: existence checks and
// copy only, never fingerprinted.
func (d *driver) visitSymlink(path, target string) error {
	exists, err := afero.Exists(d.fsys, target)
	if err != nil {
		d.recordErr("walk", target, err)

		return nil
	}

	d.reserve(target)

	if exists {
		return nil
	}

	d.enqueueCopy(path, target)

	return nil
}
