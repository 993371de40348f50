package local

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sesukyothole/bro-file-manager/pkg/fspath"
	"github.com/sesukyothole/bro-file-manager/pkg/store"
)

// SearchHit is one match from a search walk.
type SearchHit struct {
	Path         string          `json:"path"`
	Name         string          `json:"name"`
	Type         store.EntryType `json:"type"`
	Size         int64           `json:"size"`
	MTime        int64           `json:"mtime"`
	NameMatch    bool            `json:"nameMatch"`
	ContentMatch bool            `json:"contentMatch"`
}

// Search walks the subtree under the virtual path and reports entries whose
// name or content contains the query, case-insensitively.
//
// Content scanning is a linear byte scan bounded by maxBytes per file;
// larger files are only matched by name. Binary content is skipped on the
// first NUL byte. Symlinks and the trash subtree are never visited.
func (a *Adapter) Search(ctx context.Context, virtualPath, query string, maxBytes int64) ([]SearchHit, error) {
	resolved, err := fspath.ResolveSafe(virtualPath, a.rootReal)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	if needle == "" {
		return []SearchHit{}, nil
	}

	hits := []SearchHit{}
	walkErr := filepath.WalkDir(resolved.HostPath, func(curr string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if curr == resolved.HostPath {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == fspath.TrashDir && filepath.Dir(curr) == a.rootReal {
			return filepath.SkipDir
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		hit := SearchHit{
			Name:  d.Name(),
			Type:  store.EntryTypeFile,
			Size:  info.Size(),
			MTime: info.ModTime().UnixMilli(),
		}
		if d.IsDir() {
			hit.Type = store.EntryTypeDir
			hit.Size = 0
		}

		rel, err := filepath.Rel(a.rootReal, curr)
		if err != nil {
			return nil
		}
		hit.Path = "/" + filepath.ToSlash(rel)

		hit.NameMatch = strings.Contains(strings.ToLower(d.Name()), needle)
		if !d.IsDir() && info.Size() <= maxBytes {
			hit.ContentMatch = fileContains(curr, needle)
		}

		if hit.NameMatch || hit.ContentMatch {
			hits = append(hits, hit)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return hits, nil
}

func fileContains(hostPath, lowerNeedle string) bool {
	data, err := os.ReadFile(hostPath)
	if err != nil {
		return false
	}
	if bytes.IndexByte(data, 0) >= 0 {
		// NUL byte heuristic: treat as binary, skip content matching.
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), lowerNeedle)
}
