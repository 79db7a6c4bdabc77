package reconcile

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// copyTask is the immutable unit of work submitted to the bounded copy
// pipeline. Workers observe only src/dst; all shared mutable state
// (reservations, the index, error accumulation) stays on the driver.
type copyTask struct {
	src string
	dst string
}

// enqueueCopy dispatches a copy to the bounded worker pool, or — in
// dry-run mode — records the planned operation without touching the
// filesystem.
func (d *driver) enqueueCopy(src, dst string) {
	if d.cfg.DryRun {
		d.summary.FilesCopied++
		d.log.Info(d.tag("Copied"), "op", "sync", "src", src, "dst", dst, "dry-run", true)

		return
	}

	d.pool.Submit(copyTask{src: src, dst: dst})
}

func (d *driver) runCopyTask(_ int, t copyTask) error {
	size, err := d.copyFile(d.ctx, t.src, t.dst)
	if err != nil {
		d.recordErr("copy", t.dst, err)

		return nil // per-entry I/O errors are recorded, not fatal
	}

	d.errMu.Lock()
	d.summary.FilesCopied++
	d.errMu.Unlock()

	d.log.Info("file copied", "op", "sync", "src", t.src, "dst", t.dst, "size", humanize.Bytes(uint64(size)))

	return nil
}

// copyFile performs an "ensure parent exists, remove any existing target,
// atomic replace-by-copy" sequence, streaming through a uniquely named
// temp file rather than a fixed suffix, since copies run concurrently
// across many in-flight targets.
func (d *driver) copyFile(ctx context.Context, src, dst string) (int64, error) {
	if err := d.fsys.MkdirAll(filepath.Dir(dst), 0o777); err != nil {
		return 0, fmt.Errorf("failed to create parent: %q (%w)", filepath.Dir(dst), err)
	}

	if exists, err := afero.Exists(d.fsys, dst); err == nil && exists {
		if err := d.fsys.Remove(dst); err != nil {
			return 0, fmt.Errorf("failed to remove existing target: %q (%w)", dst, err)
		}
	}

	tmp := dst + "." + uuid.NewString() + ".part"

	n, srcFP, err := d.streamCopy(ctx, src, tmp)
	if err != nil {
		_ = d.fsys.Remove(tmp)

		return 0, err
	}

	if err := d.fsys.Rename(tmp, dst); err != nil {
		_ = d.fsys.Remove(tmp)

		return 0, fmt.Errorf("failed to rename: %q -> %q (%w)", tmp, dst, err)
	}

	if d.cfg.VerifyAfterCopy {
		if err := d.verifyAfterCopy(dst, srcFP); err != nil {
			return 0, err
		}
	}

	return n, nil
}

// streamCopy copies src to tmp while hashing both the read side and the
// write side (BLAKE3-256) and comparing them once the copy completes:
// an in-memory integrity check that runs unconditionally, independent of
// the run's configured hash mode and of the optional --verify disk
// re-read pass.
func (d *driver) streamCopy(ctx context.Context, src, tmp string) (int64, string, error) {
	in, err := d.fsys.Open(src)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open: %q (%w)", src, err)
	}
	defer in.Close()

	out, err := d.fsys.Create(tmp)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create: %q (%w)", tmp, err)
	}
	defer out.Close()

	srcHasher := blake3.New()
	dstHasher := blake3.New()

	reader := &contextReader{ctx: ctx, reader: io.TeeReader(in, srcHasher)}
	writer := io.MultiWriter(out, dstHasher)

	n, err := io.Copy(writer, reader)
	if err != nil {
		return 0, "", fmt.Errorf("failed during copy: %q -> %q (%w)", src, tmp, err)
	}

	if err := out.Sync(); err != nil {
		return 0, "", fmt.Errorf("failed during sync: %q (%w)", tmp, err)
	}

	if err := out.Close(); err != nil {
		return 0, "", fmt.Errorf("failed to close: %q (%w)", tmp, err)
	}

	if err := in.Close(); err != nil {
		return 0, "", fmt.Errorf("failed to close: %q (%w)", src, err)
	}

	srcHash := hex.EncodeToString(srcHasher.Sum(nil))
	dstHash := hex.EncodeToString(dstHasher.Sum(nil))

	if srcHash != dstHash {
		return 0, "", fmt.Errorf("%w: %q (src) != %q (dst)", errMemoryHashMismatch, srcHash, dstHash)
	}

	return n, srcHash, nil
}

func (d *driver) verifyAfterCopy(dst, wantFP string) error {
	gotFP, err := fingerprintStrong(d.fsys, dst)
	if err != nil {
		return fmt.Errorf("failed to re-read for verify pass: %q (%w)", dst, err)
	}

	if gotFP != wantFP {
		return fmt.Errorf("%w: %q != %q", errVerifyHashMismatch, wantFP, gotFP)
	}

	return nil
}

// renameOrDeepCopy attempts an atomic rename; on any failure (including
// a cross-device rename, which is not itself treated as an error) it
// falls back to copy-then-delete (deep, recursive copy for directories).
func (d *driver) renameOrDeepCopy(ctx context.Context, src, dst string, isDir bool) error {
	if d.cfg.DryRun {
		return nil
	}

	if err := d.fsys.Rename(src, dst); err == nil {
		return nil
	}

	if isDir {
		if err := d.deepCopyDir(ctx, src, dst); err != nil {
			return fmt.Errorf("failed deep copy fallback: %q -> %q (%w)", src, dst, err)
		}

		if err := d.fsys.RemoveAll(src); err != nil {
			return fmt.Errorf("failed to remove source after copy fallback: %q (%w)", src, err)
		}

		return nil
	}

	if _, err := d.copyFile(ctx, src, dst); err != nil {
		return fmt.Errorf("failed copy fallback: %q -> %q (%w)", src, dst, err)
	}

	if err := d.fsys.Remove(src); err != nil {
		return fmt.Errorf("failed to remove source after copy fallback: %q (%w)", src, err)
	}

	return nil
}

// deepCopyDir recursively copies an entire directory subtree, used as the
// cross-device fallback for a directory-level move.
func (d *driver) deepCopyDir(ctx context.Context, src, dst string) error {
	return afero.Walk(d.fsys, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk: %q (%w)", p, err)
		}

		rel, relErr := d.norm.relative(src, p)
		if relErr != nil {
			return relErr
		}

		target := join(dst, rel)

		if info.IsDir() {
			return d.fsys.MkdirAll(target, 0o777)
		}

		if _, _, err := d.streamCopy(ctx, p, target); err != nil {
			return err
		}

		return nil
	})
}
