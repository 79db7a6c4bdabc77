package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// visitDir handles a directory entry encountered during the walk: skip if
// it already exists at the destination, otherwise try a directory-level
// move before falling back to a plain mkdir.
func (d *driver) visitDir(ctx context.Context, path, target string) error {
	exists, err := afero.DirExists(d.fsys, target)
	if err != nil {
		d.recordErr("walk", target, err)

		return nil
	}

	if exists {
		return nil
	}

	if d.cfg.HashMode == HashStrong {
		moved, err := d.tryDirectoryMove(ctx, path, target)
		if err != nil {
			d.recordErr("rename", target, err)

			return nil
		}

		if moved {
			return filepath.SkipDir
		}
	}

	if err := d.createDir(target); err != nil {
		d.recordErr("mkdir", target, err)

		return filepath.SkipDir
	}

	d.reserve(target)
	d.throttle(ctx)

	return nil
}

func (d *driver) createDir(target string) error {
	if !d.cfg.DryRun {
		if err := d.fsys.MkdirAll(target, 0o777); err != nil {
			return fmt.Errorf("failed to create: %q (%w)", target, err)
		}
	}

	d.summary.DirsCreated++
	d.log.Info(d.tag("Create Directory"), "op", "sync", "path", target, "dry-run", d.cfg.DryRun)

	return nil
}

// tryDirectoryMove implements directory-level move detection: for each
// immediate subdirectory of target's parent, compute
// its fingerprint set and the source directory's, and rename the best
// match if its overlap ratio clears the configured threshold.
func (d *driver) tryDirectoryMove(ctx context.Context, src, target string) (bool, error) {
	srcFPs, err := d.directoryFingerprints(src, d.ignore.sourceIgnored)
	if err != nil {
		return false, fmt.Errorf("failed computing source directory fingerprints: %q (%w)", src, err)
	}

	if len(srcFPs) == 0 {
		return false, nil
	}

	dstParent := filepath.Dir(target)

	parentExists, err := afero.DirExists(d.fsys, dstParent)
	if err != nil {
		return false, fmt.Errorf("failed to stat: %q (%w)", dstParent, err)
	}

	if !parentExists {
		return false, nil
	}

	entries, err := afero.ReadDir(d.fsys, dstParent)
	if err != nil {
		return false, fmt.Errorf("failed to read dir: %q (%w)", dstParent, err)
	}

	var best string
	var bestRatio float64

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		cand := filepath.Join(dstParent, e.Name())

		if d.isReservedDir(cand) {
			continue
		}

		if d.ignore.destEquivalentIgnored(d.cfg.Dst, cand, d.cfg.Src) {
			continue
		}

		candFPs, err := d.directoryFingerprints(cand, func(p string) bool {
			return d.ignore.destEquivalentIgnored(d.cfg.Dst, p, d.cfg.Src)
		})
		if err != nil || len(candFPs) == 0 {
			continue
		}

		ratio := overlapRatio(srcFPs, candFPs)
		if ratio > bestRatio {
			bestRatio = ratio
			best = cand
		}
	}

	if best == "" || bestRatio < d.cfg.DirMoveThreshold {
		return false, nil
	}

	if err := d.renameOrDeepCopy(ctx, best, target, true); err != nil {
		return false, fmt.Errorf("failed to move directory: %q -> %q (%w)", best, target, err)
	}

	d.reserveDir(best)
	d.reserveDir(target)
	d.movedRoots = append(d.movedRoots, src)
	d.index.removeSubtree(d.norm, best)
	d.summary.DirsMoved++

	d.log.Info(d.tag("Renamed directory"), "op", "sync", "src", best, "dst", target, "ratio", bestRatio, "dry-run", d.cfg.DryRun)

	return true, nil
}

func overlapRatio(src, cand map[string]struct{}) float64 {
	if len(src) == 0 {
		return 0
	}

	hits := 0
	for fp := range src {
		if _, ok := cand[fp]; ok {
			hits++
		}
	}

	return float64(hits) / float64(len(src))
}

// directoryFingerprints computes the set of fingerprints of all
// non-ignored regular-file descendants of dir, memoized per directory
// path.
func (d *driver) directoryFingerprints(dir string, ignored func(string) bool) (map[string]struct{}, error) {
	key := d.norm.normalize(dir)
	if cached, ok := d.dirFPCache[key]; ok {
		return cached, nil
	}

	set := make(map[string]struct{})

	err := afero.Walk(d.fsys, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			return err
		}

		if info.IsDir() {
			if p != dir && ignored(p) {
				return filepath.SkipDir
			}

			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		if ignored(p) {
			return nil
		}

		fp, err := fingerprint(d.fsys, p, HashStrong)
		if err != nil || fp == "" {
			return nil //nolint:nilerr // absent fingerprint just excludes the file from the set
		}

		set[fp] = struct{}{}

		return nil
	})
	if err != nil {
		return nil, err
	}

	d.dirFPCache[key] = set

	return set, nil
}

func (d *driver) tag(category string) string {
	if d.cfg.DryRun {
		return "[DRY-RUN] Would " + category
	}

	return category
}
