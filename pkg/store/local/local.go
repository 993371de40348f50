// Package local implements the storage adapter over a sandboxed area of the
// host filesystem.
//
// Every host operation is preceded by a resolver call against the owning
// user's rootReal, so no code path below the adapter ever touches a host
// path that has not been proven inside the sandbox. Listings and copies skip
// symbolic links; the resolver follows a link only when its realpath stays
// inside the root and rejects any link whose realpath leaves it.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sesukyothole/bro-file-manager/pkg/fspath"
	"github.com/sesukyothole/bro-file-manager/pkg/store"
)

// Adapter is the filesystem-backed storage adapter for one user scope.
type Adapter struct {
	rootReal string
}

var _ store.Adapter = (*Adapter)(nil)

// New builds an adapter rooted at the user's resolved host root.
func New(rootReal string) *Adapter {
	return &Adapter{rootReal: rootReal}
}

// Root returns the adapter's host root.
func (a *Adapter) Root() string {
	return a.rootReal
}

// List returns one page of directory entries.
//
// Symlinked children and the trash directory are skipped. Entries come back
// directories-first in case-insensitive name order; Total is the count
// before pagination.
func (a *Adapter) List(ctx context.Context, path string, opts store.ListOptions) (*store.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved, err := fspath.ResolveSafe(path, a.rootReal)
	if err != nil {
		return nil, err
	}

	dirents, err := os.ReadDir(resolved.HostPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", resolved.Normalized, store.ErrNotFound)
		}
		return nil, fmt.Errorf("list %s: %w", resolved.Normalized, err)
	}

	entries := make([]store.Entry, 0, len(dirents))
	for _, d := range dirents {
		if d.Type()&os.ModeSymlink != 0 {
			continue
		}
		if resolved.Normalized == "/" && d.Name() == fspath.TrashDir {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, entryFromInfo(d.Name(), info))
	}

	store.SortEntries(entries)
	total := len(entries)

	return &store.ListResult{
		Entries: store.Page(entries, opts),
		Total:   total,
	}, nil
}

// Stat returns the entry at path, or nil when it does not exist.
func (a *Adapter) Stat(ctx context.Context, path string) (*store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved, err := fspath.ResolveSafe(path, a.rootReal)
	if err != nil {
		if errors.Is(err, fspath.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	info, err := os.Stat(resolved.HostPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", resolved.Normalized, err)
	}

	entry := entryFromInfo(filepath.Base(resolved.HostPath), info)
	if resolved.Normalized == "/" {
		entry.Name = "/"
	}
	return &entry, nil
}

// Read returns the full content of a file.
func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved, err := fspath.ResolveSafe(path, a.rootReal)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved.HostPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", resolved.Normalized, store.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", resolved.Normalized, err)
	}
	return data, nil
}

// Write stores data at path, creating missing parent directories.
func (a *Adapter) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved, err := a.resolveWritable(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(resolved.HostPath), 0o755); err != nil {
		return fmt.Errorf("create parents for %s: %w", resolved.Normalized, err)
	}
	if err := os.WriteFile(resolved.HostPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", resolved.Normalized, err)
	}
	return nil
}

// WriteStream stores a reader's content at path without buffering it whole.
// Used by uploads, which must stream multipart bodies straight to disk.
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	resolved, err := a.resolveWritable(path)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(resolved.HostPath), 0o755); err != nil {
		return 0, fmt.Errorf("create parents for %s: %w", resolved.Normalized, err)
	}
	f, err := os.OpenFile(resolved.HostPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", resolved.Normalized, err)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return n, fmt.Errorf("write %s: %w", resolved.Normalized, err)
	}
	return n, f.Close()
}

// OpenReader opens the file at path for streaming reads. The caller closes
// the reader; the returned size feeds Content-Length.
func (a *Adapter) OpenReader(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	resolved, err := fspath.ResolveSafe(path, a.rootReal)
	if err != nil {
		return nil, 0, err
	}

	info, err := os.Stat(resolved.HostPath)
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %w", resolved.Normalized, err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("%s is a directory: %w", resolved.Normalized, store.ErrIsDirectory)
	}

	f, err := os.Open(resolved.HostPath)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", resolved.Normalized, err)
	}
	return f, info.Size(), nil
}

// Delete soft-deletes by moving the entry to trash. See Trash for details.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	_, err := a.Trash(ctx, path)
	return err
}

// Move renames source to dest.
//
// The destination must not exist (ErrConflict), and a directory can never be
// moved into itself or a descendant (ErrIntoItself).
func (a *Adapter) Move(ctx context.Context, source, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, dst, err := a.resolvePair(source, dest)
	if err != nil {
		return err
	}

	if err := os.Rename(src.HostPath, dst.HostPath); err != nil {
		return fmt.Errorf("move %s to %s: %w", src.Normalized, dst.Normalized, err)
	}
	return nil
}

// Copy recursively copies source to dest, skipping symlinks inside the
// source tree. The same guards as Move apply.
func (a *Adapter) Copy(ctx context.Context, source, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, dst, err := a.resolvePair(source, dest)
	if err != nil {
		return err
	}

	info, err := os.Lstat(src.HostPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src.Normalized, err)
	}

	if err := copyTree(ctx, src.HostPath, dst.HostPath, info); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src.Normalized, dst.Normalized, err)
	}
	return nil
}

// Mkdir creates a directory at path. Creating an existing directory is a
// no-op; an existing file at the path is a conflict.
func (a *Adapter) Mkdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved, err := a.resolveWritable(path)
	if err != nil {
		return err
	}

	if info, err := os.Stat(resolved.HostPath); err == nil && !info.IsDir() {
		return fmt.Errorf("%s: %w", resolved.Normalized, store.ErrConflict)
	}
	if err := os.MkdirAll(resolved.HostPath, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", resolved.Normalized, err)
	}
	return nil
}

// Exists reports whether the virtual path resolves to an existing entry.
func (a *Adapter) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := fspath.ResolveSafe(path, a.rootReal)
	if err != nil {
		if errors.Is(err, fspath.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// HostPath resolves a virtual path to its proven host path. Used by the
// archive streamer, which needs host paths for its walk.
func (a *Adapter) HostPath(path string) (string, error) {
	resolved, err := fspath.ResolveSafe(path, a.rootReal)
	if err != nil {
		return "", err
	}
	return resolved.HostPath, nil
}

// resolveWritable resolves a destination path, allowing the target itself to
// be absent as long as its parent resolves inside the root.
func (a *Adapter) resolveWritable(path string) (*fspath.Resolved, error) {
	if resolved, err := fspath.ResolveSafe(path, a.rootReal); err == nil {
		return resolved, nil
	} else if !errors.Is(err, fspath.ErrNotFound) {
		return nil, err
	}
	return fspath.ResolveDestination(path, a.rootReal)
}

// resolvePair resolves a move/copy source and destination and enforces the
// shared guards: the destination must not exist and must not sit inside the
// source tree.
func (a *Adapter) resolvePair(source, dest string) (*fspath.Resolved, *fspath.Resolved, error) {
	src, err := fspath.ResolveSafe(source, a.rootReal)
	if err != nil {
		return nil, nil, err
	}
	if src.Normalized == "/" {
		return nil, nil, fmt.Errorf("cannot move or copy the root: %w", store.ErrInvalidPath)
	}

	dst, err := fspath.ResolveDestination(dest, a.rootReal)
	if err != nil {
		return nil, nil, err
	}

	if _, err := os.Lstat(dst.HostPath); err == nil {
		return nil, nil, fmt.Errorf("%s: %w", dst.Normalized, store.ErrConflict)
	}
	if dst.HostPath == src.HostPath ||
		strings.HasPrefix(dst.HostPath, src.HostPath+string(filepath.Separator)) {
		return nil, nil, fmt.Errorf("%s into %s: %w", src.Normalized, dst.Normalized, store.ErrIntoItself)
	}

	return src, dst, nil
}

func copyTree(ctx context.Context, srcHost, dstHost string, info os.FileInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		// Symlinks inside the source tree are skipped, same as in listings.
		return nil
	}

	if info.IsDir() {
		if err := os.MkdirAll(dstHost, info.Mode().Perm()); err != nil {
			return err
		}
		dirents, err := os.ReadDir(srcHost)
		if err != nil {
			return err
		}
		for _, d := range dirents {
			childInfo, err := d.Info()
			if err != nil {
				continue
			}
			child := filepath.Join(srcHost, d.Name())
			if err := copyTree(ctx, child, filepath.Join(dstHost, d.Name()), childInfo); err != nil {
				return err
			}
		}
		return nil
	}

	return copyFile(srcHost, dstHost, info.Mode().Perm())
}

func copyFile(srcHost, dstHost string, perm os.FileMode) error {
	src, err := os.Open(srcHost)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(dstHost, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func entryFromInfo(name string, info os.FileInfo) store.Entry {
	entry := store.Entry{
		Name:  name,
		Type:  store.EntryTypeFile,
		Size:  info.Size(),
		MTime: info.ModTime().UnixMilli(),
	}
	if info.IsDir() {
		entry.Type = store.EntryTypeDir
		entry.Size = 0
	}
	return entry
}
