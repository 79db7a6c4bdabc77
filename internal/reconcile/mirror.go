package reconcile

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/afero"
)

// mirrorPass enumerates the destination and deletes any entry that is
// neither reserved nor covered by the ignore rules projected through the
// path normalizer, in reverse-sorted path order so children are removed
// before their parents.
func (d *driver) mirrorPass(ctx context.Context) error {
	var candidates []string

	err := afero.Walk(d.fsys, d.cfg.Dst, func(path string, info os.FileInfo, err error) error {
		if cErr := ctx.Err(); cErr != nil {
			return fmt.Errorf("context canceled during mirror pass: %w", cErr)
		}

		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			d.recordErr("walk", path, err)

			return nil
		}

		if path == d.cfg.Dst {
			return nil
		}

		if d.isReservedPath(path) || d.isReservedDir(path) {
			return nil
		}

		if d.ignore.destEquivalentIgnored(d.cfg.Dst, path, d.cfg.Src) {
			return nil
		}

		rel, err := d.norm.relative(d.cfg.Dst, path)
		if err != nil {
			d.recordErr("walk", path, err)

			return nil
		}

		srcEquivalent := join(d.cfg.Src, rel)

		exists, err := afero.Exists(d.fsys, srcEquivalent)
		if err != nil {
			d.recordErr("walk", path, err)

			return nil
		}

		if exists {
			return nil
		}

		if d.ignore.sourceIgnored(srcEquivalent) {
			return nil
		}

		candidates = append(candidates, path)

		return nil
	})
	if err != nil {
		return err
	}

	// Reverse-sorted order: children before parents, so directory
	// removal never races ahead of the files still inside it.
	sort.Sort(sort.Reverse(sort.StringSlice(candidates)))

	for _, path := range candidates {
		d.deleteEntry(path)
	}

	return nil
}

func (d *driver) deleteEntry(path string) {
	if d.cfg.DryRun {
		d.summary.Deleted++
		d.log.Info(d.tag("Deleted"), "op", "mirror", "path", path, "dry-run", true)

		return
	}

	// Children are deleted before parents (reverse-sorted walk order), so a
	// directory candidate should already be empty of everything but ignored
	// survivors. Remove, not RemoveAll: a non-empty directory fails instead
	// of taking ignored descendants down with it.
	if err := d.fsys.Remove(path); err != nil {
		d.recordErr("delete", path, err)

		return
	}

	d.summary.Deleted++
	d.log.Info("entry deleted", "op", "mirror", "path", path, "dry-run", false)
}
