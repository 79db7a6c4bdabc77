package reconcile

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// buildIndex walks the destination tree once at run start and populates
// the destination index. It only runs under strong hashing; skips any
// entry whose source-equivalent is ignored.
func (d *driver) buildIndex(ctx context.Context) error {
	return afero.Walk(d.fsys, d.cfg.Dst, func(path string, info os.FileInfo, err error) error {
		if cErr := ctx.Err(); cErr != nil {
			return fmt.Errorf("context canceled while building index: %w", cErr)
		}

		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			d.recordErr("index", path, err)

			return nil
		}

		if path == d.cfg.Dst {
			return nil
		}

		if d.ignore.destEquivalentIgnored(d.cfg.Dst, path, d.cfg.Src) {
			d.log.Debug("path excluded from index", "op", "index", "path", path)

			return nil
		}

		if info.IsDir() || info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		fp, err := fingerprint(d.fsys, path, HashStrong)
		if err != nil {
			d.recordErr("index", path, err)

			return nil
		}

		d.index.insert(fp, path)

		return nil
	})
}
