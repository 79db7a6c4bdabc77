package reconcile

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
)

// visitFile dispatches a file entry to Case A (no destination) or Case B
// (destination exists) of the per-entry decision tree.
func (d *driver) visitFile(ctx context.Context, path, target string) error {
	exists, err := afero.Exists(d.fsys, target)
	if err != nil {
		d.recordErr("walk", target, err)

		return nil
	}

	if !exists {
		return d.visitFileCaseA(ctx, path, target)
	}

	return d.visitFileCaseB(ctx, path, target)
}

// Case A: target does not exist.
func (d *driver) visitFileCaseA(ctx context.Context, path, target string) error {
	if d.cfg.HashMode == HashStrong {
		fp, err := fingerprint(d.fsys, path, HashStrong)
		if err == nil && fp != "" {
			for _, cand := range d.index.find(fp) {
				if d.ignore.destEquivalentIgnored(d.cfg.Dst, cand, d.cfg.Src) {
					continue
				}

				if d.isReservedPath(cand) {
					continue
				}

				if ok, err := afero.Exists(d.fsys, cand); err != nil || !ok {
					continue
				}

				if err := d.renameOrDeepCopy(ctx, cand, target, false); err != nil {
					d.recordErr("rename", target, err)

					return nil
				}

				d.index.remove(fp, cand)
				d.reserve(cand)
				d.reserve(target)
				d.summary.FilesMoved++
				d.log.Info(d.tag("Renamed file"), "op", "sync", "src", cand, "dst", target, "dry-run", d.cfg.DryRun)
				d.throttle(ctx)

				return nil
			}
		}
	}

	d.enqueueCopy(path, target)
	d.reserve(target)

	return nil
}

// Case B: target exists.
func (d *driver) visitFileCaseB(ctx context.Context, path, target string) error {
	d.reserve(target)

	needCopy, err := d.decideOverwrite(path, target)
	if err != nil {
		d.recordErr("walk", target, err)

		return nil
	}

	if needCopy {
		d.enqueueCopy(path, target)
	}

	return nil
}

// decideOverwrite decides whether an existing destination file needs to
// be overwritten: fast mode compares mtimes, strong mode compares size
// then content fingerprint.
func (d *driver) decideOverwrite(src, dst string) (bool, error) {
	srcInfo, err := d.fsys.Stat(src)
	if err != nil {
		return false, fmt.Errorf("failed to stat: %q (%w)", src, err)
	}

	dstInfo, err := d.fsys.Stat(dst)
	if err != nil {
		return false, fmt.Errorf("failed to stat: %q (%w)", dst, err)
	}

	d.index.insertSize(dstInfo.Size(), dst)
	d.log.Debug("destination size indexed", "op", "sync", "dst", dst, "size", dstInfo.Size(), "same-size", d.index.sizeCount(dstInfo.Size()))

	if d.cfg.HashMode != HashStrong {
		return srcInfo.ModTime().After(dstInfo.ModTime()), nil
	}

	srcSize, dstSize := srcInfo.Size(), dstInfo.Size()

	if srcSize != dstSize {
		return true, nil
	}

	srcFP, err1 := fingerprint(d.fsys, src, HashStrong)
	dstFP, err2 := fingerprint(d.fsys, dst, HashStrong)

	if err1 != nil || err2 != nil || srcFP == "" || dstFP == "" {
		d.errMu.Lock()
		d.summary.Degraded++
		d.errMu.Unlock()

		d.log.Warn("overwrite decision degraded to unconditional copy", "op", "sync", "src", src, "dst", dst, "error", errFingerprintUnavailable)

		return true, nil
	}

	return srcFP != dstFP, nil
}
