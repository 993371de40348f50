package local

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// SizeProbe accumulates the recursive byte size of the given host paths,
// short-circuiting once limit is reached.
//
// The returned hitLimit is true when the running total reached or passed the
// limit; total then reflects the sum at the moment the walk stopped, not the
// full tree size. Symlinks are skipped. The paths must already have been
// proven inside the caller's root.
func (a *Adapter) SizeProbe(ctx context.Context, hostPaths []string, limit int64) (total int64, hitLimit bool, err error) {
	for _, hostPath := range hostPaths {
		if err := ctx.Err(); err != nil {
			return total, false, err
		}

		info, err := os.Lstat(hostPath)
		if err != nil {
			return total, false, err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if !info.IsDir() {
			total += info.Size()
			if limit > 0 && total >= limit {
				return total, true, nil
			}
			continue
		}

		walkErr := filepath.WalkDir(hostPath, func(curr string, d fs.DirEntry, werr error) error {
			if werr != nil {
				return werr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.Type()&os.ModeSymlink != 0 || d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return nil
			}
			total += fi.Size()
			if limit > 0 && total >= limit {
				return filepath.SkipAll
			}
			return nil
		})
		if walkErr != nil {
			return total, false, walkErr
		}
		if limit > 0 && total >= limit {
			return total, true, nil
		}
	}
	return total, false, nil
}
