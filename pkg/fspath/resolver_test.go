package fspath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"absolute", "/a/b", "/a/b"},
		{"relative gets rooted", "a/b", "/a/b"},
		{"backslashes", "\\a\\b", "/a/b"},
		{"dotdot collapsed", "/a/../b", "/b"},
		{"dotdot above root", "/../../etc", "/etc"},
		{"duplicate slashes", "//a///b", "/a/b"},
		{"single dot", "/a/./b", "/a/b"},
		{"bare slash", "/", "/"},
		{"trailing slash", "/a/", "/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	_, err := Normalize("")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = Normalize("   ")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = Normalize("/a\x00b")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func newRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return root
}

func TestResolveSafe_Root(t *testing.T) {
	root := newRoot(t)

	res, err := ResolveSafe("/", root)
	require.NoError(t, err)
	assert.Equal(t, "/", res.Normalized)
	assert.Equal(t, root, res.HostPath)
}

func TestResolveSafe_Nested(t *testing.T) {
	root := newRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "sub"), 0o755))

	res, err := ResolveSafe("/docs/sub", root)
	require.NoError(t, err)
	assert.Equal(t, "/docs/sub", res.Normalized)
	assert.Equal(t, filepath.Join(root, "docs", "sub"), res.HostPath)
}

func TestResolveSafe_NotFound(t *testing.T) {
	root := newRoot(t)

	_, err := ResolveSafe("/missing", root)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveSafe_TraversalStaysInRoot(t *testing.T) {
	root := newRoot(t)

	// Normalization clamps the traversal at the virtual root, so /../../etc
	// becomes /etc inside the sandbox rather than the host's /etc.
	res, err := ResolveSafe("/../../etc", root)
	if err == nil {
		assert.Equal(t, filepath.Join(root, "etc"), res.HostPath)
	} else {
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestResolveSafe_TrashRejected(t *testing.T) {
	root := newRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".trash"), 0o755))

	_, err := ResolveSafe("/.trash", root)
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = ResolveSafe("/.trash/item", root)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestResolveSafe_SymlinkEscape(t *testing.T) {
	outside := newRoot(t)
	root := newRoot(t)
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "leak")))

	_, err := ResolveSafe("/leak", root)
	assert.ErrorIs(t, err, ErrEscape)
}

func TestResolveSafe_PrefixConfusion(t *testing.T) {
	parent := newRoot(t)
	root := filepath.Join(parent, "foo")
	sibling := filepath.Join(parent, "foobar")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.MkdirAll(sibling, 0o755))
	require.NoError(t, os.Symlink(sibling, filepath.Join(root, "link")))

	// /data/foobar must not pass a containment check against /data/foo.
	_, err := ResolveSafe("/link", root)
	assert.ErrorIs(t, err, ErrEscape)
}

func TestResolveDestination(t *testing.T) {
	root := newRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))

	res, err := ResolveDestination("/docs/new.txt", root)
	require.NoError(t, err)
	assert.Equal(t, "/docs/new.txt", res.Normalized)
	assert.Equal(t, filepath.Join(root, "docs", "new.txt"), res.HostPath)
}

func TestResolveDestination_Invalid(t *testing.T) {
	root := newRoot(t)

	_, err := ResolveDestination("/", root)
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = ResolveDestination("/.trash/x", root)
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = ResolveDestination("/missing/new.txt", root)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckLeaf(t *testing.T) {
	assert.NoError(t, CheckLeaf("file.txt"))
	assert.ErrorIs(t, CheckLeaf(""), ErrInvalidPath)
	assert.ErrorIs(t, CheckLeaf("."), ErrInvalidPath)
	assert.ErrorIs(t, CheckLeaf(".."), ErrInvalidPath)
	assert.ErrorIs(t, CheckLeaf("a/b"), ErrInvalidPath)
	assert.ErrorIs(t, CheckLeaf("a\\b"), ErrInvalidPath)
	assert.ErrorIs(t, CheckLeaf("a\x00b"), ErrInvalidPath)
}
