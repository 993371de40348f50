// Package fspath resolves caller-supplied virtual paths against a user's
// scoped root on the host filesystem.
//
// Virtual paths are POSIX-style and always absolute; "/" is the user's root,
// not the host's. Resolution is symlink-aware: the host realpath of the
// target must stay inside the (already symlink-resolved) root, so a symlink
// planted inside the root cannot lead an operation outside of it.
package fspath

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidPath indicates the input could not be normalized or names a
	// reserved location such as the trash subtree.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotFound indicates the host entry for the virtual path does not exist.
	ErrNotFound = errors.New("path not found")

	// ErrEscape indicates the resolved real path lies outside the root.
	ErrEscape = errors.New("path escapes root")
)

// TrashDir is the reserved directory name at the root of every user scope.
const TrashDir = ".trash"

// Resolved pairs the normalized virtual path with its host counterpart.
type Resolved struct {
	Normalized string
	HostPath   string
}

// Normalize rewrites a caller-supplied path into canonical virtual form:
// slash-separated, absolute, no "..", ".", or duplicate separators.
//
// Backslashes are treated as separators so Windows-style input normalizes the
// same way. An input that is empty after trimming fails with ErrInvalidPath.
func Normalize(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", fmt.Errorf("empty path: %w", ErrInvalidPath)
	}
	if strings.ContainsRune(trimmed, '\x00') {
		return "", fmt.Errorf("NUL in path: %w", ErrInvalidPath)
	}

	clean := strings.ReplaceAll(trimmed, "\\", "/")
	if !strings.HasPrefix(clean, "/") {
		clean = "/" + clean
	}
	clean = path.Clean(clean)
	if !strings.HasPrefix(clean, "/") {
		return "/", nil
	}
	return clean, nil
}

// IsTrashPath reports whether the normalized virtual path is the trash
// directory or anything nested under it.
func IsTrashPath(normalized string) bool {
	return normalized == "/"+TrashDir || strings.HasPrefix(normalized, "/"+TrashDir+"/")
}

// withinRoot reports whether target equals root or is nested under it. The
// separator is included in the prefix test so /data/foobar never passes a
// check against /data/foo.
func withinRoot(rootReal, target string) bool {
	if target == rootReal {
		return true
	}
	return strings.HasPrefix(target, rootReal+string(filepath.Separator))
}

// ResolveSafe maps a virtual path to an existing host path under rootReal.
//
// The path is normalized, checked against the reserved trash subtree, joined
// with the root, and realpath-resolved. A missing host entry fails with
// ErrNotFound; a realpath outside the root fails with ErrEscape.
func ResolveSafe(virtualPath, rootReal string) (*Resolved, error) {
	normalized, err := Normalize(virtualPath)
	if err != nil {
		return nil, err
	}
	if IsTrashPath(normalized) {
		return nil, fmt.Errorf("reserved path %s: %w", normalized, ErrInvalidPath)
	}

	joined := filepath.Join(rootReal, filepath.FromSlash(normalized))
	real, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", normalized, ErrNotFound)
		}
		return nil, fmt.Errorf("resolve %s: %w", normalized, err)
	}
	if !withinRoot(rootReal, real) {
		return nil, fmt.Errorf("%s: %w", normalized, ErrEscape)
	}

	return &Resolved{Normalized: normalized, HostPath: real}, nil
}

// ResolveDestination maps a virtual path that may not exist yet.
//
// The parent must resolve via ResolveSafe; the leaf is then sanitized and
// joined onto the parent's real path. The virtual root and the trash subtree
// are never valid destinations.
func ResolveDestination(virtualPath, rootReal string) (*Resolved, error) {
	normalized, err := Normalize(virtualPath)
	if err != nil {
		return nil, err
	}
	if normalized == "/" {
		return nil, fmt.Errorf("root is not a destination: %w", ErrInvalidPath)
	}
	if IsTrashPath(normalized) {
		return nil, fmt.Errorf("reserved path %s: %w", normalized, ErrInvalidPath)
	}

	parentVirtual := path.Dir(normalized)
	leaf := path.Base(normalized)
	if err := CheckLeaf(leaf); err != nil {
		return nil, err
	}

	parent, err := ResolveSafe(parentVirtual, rootReal)
	if err != nil {
		return nil, err
	}

	return &Resolved{
		Normalized: normalized,
		HostPath:   filepath.Join(parent.HostPath, leaf),
	}, nil
}

// CheckLeaf validates a single path component: non-empty, no separators, no
// NUL, and not "." or "..".
func CheckLeaf(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("bad name %q: %w", name, ErrInvalidPath)
	}
	if strings.ContainsAny(name, "/\\") || strings.ContainsRune(name, '\x00') {
		return fmt.Errorf("bad name %q: %w", name, ErrInvalidPath)
	}
	return nil
}
