package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesukyothole/bro-file-manager/pkg/fspath"
	"github.com/sesukyothole/bro-file-manager/pkg/store"
)

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return New(root)
}

func writeHost(t *testing.T, a *Adapter, rel, content string) {
	t.Helper()
	host := filepath.Join(a.Root(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(host), 0o755))
	require.NoError(t, os.WriteFile(host, []byte(content), 0o644))
}

func TestWriteRead_RoundTrip(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "/docs/notes.txt", []byte("hello")))

	data, err := a.Read(ctx, "/docs/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestList_SortedDirsFirst(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	writeHost(t, a, "zebra.txt", "z")
	writeHost(t, a, "Apple.txt", "a")
	require.NoError(t, os.Mkdir(filepath.Join(a.Root(), "beta"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(a.Root(), "Alpha"), 0o755))

	result, err := a.List(ctx, "/", store.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 4, result.Total)

	names := make([]string, 0, len(result.Entries))
	for _, e := range result.Entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Alpha", "beta", "Apple.txt", "zebra.txt"}, names)
	assert.Equal(t, store.EntryTypeDir, result.Entries[0].Type)
	assert.Equal(t, store.EntryTypeFile, result.Entries[2].Type)
}

func TestList_SkipsSymlinksAndTrash(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	writeHost(t, a, "real.txt", "x")
	require.NoError(t, os.MkdirAll(filepath.Join(a.Root(), ".trash"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(a.Root(), "real.txt"), filepath.Join(a.Root(), "link.txt")))

	result, err := a.List(ctx, "/", store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "real.txt", result.Entries[0].Name)
}

func TestList_Pagination(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		writeHost(t, a, name, "x")
	}

	result, err := a.List(ctx, "/", store.ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "b.txt", result.Entries[0].Name)
	assert.Equal(t, "c.txt", result.Entries[1].Name)
}

func TestStat(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	writeHost(t, a, "f.txt", "hello")

	entry, err := a.Stat(ctx, "/f.txt")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "f.txt", entry.Name)
	assert.Equal(t, store.EntryTypeFile, entry.Type)
	assert.Equal(t, int64(5), entry.Size)
	assert.Positive(t, entry.MTime)

	entry, err = a.Stat(ctx, "/missing.txt")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestMove_RoundTrip(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	writeHost(t, a, "a.txt", "payload")

	require.NoError(t, a.Move(ctx, "/a.txt", "/b.txt"))

	exists, err := a.Exists(ctx, "/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = a.Exists(ctx, "/b.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, a.Move(ctx, "/b.txt", "/a.txt"))
	data, err := a.Read(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestMove_Guards(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Mkdir(ctx, "/dir"))
	writeHost(t, a, "other.txt", "x")

	err := a.Move(ctx, "/dir", "/dir/nested")
	assert.ErrorIs(t, err, store.ErrIntoItself)

	err = a.Move(ctx, "/dir", "/other.txt")
	assert.ErrorIs(t, err, store.ErrConflict)

	err = a.Move(ctx, "/", "/elsewhere")
	assert.ErrorIs(t, err, store.ErrInvalidPath)
}

func TestCopy_Recursive(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	writeHost(t, a, "src/deep/file.txt", "content")
	writeHost(t, a, "src/top.txt", "top")
	require.NoError(t, os.Symlink(filepath.Join(a.Root(), "src", "top.txt"),
		filepath.Join(a.Root(), "src", "skipme")))

	require.NoError(t, a.Copy(ctx, "/src", "/dst"))

	data, err := a.Read(ctx, "/dst/deep/file.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)

	// The symlink is not carried over.
	_, err = os.Lstat(filepath.Join(a.Root(), "dst", "skipme"))
	assert.True(t, os.IsNotExist(err))

	// Source is untouched.
	data, err = a.Read(ctx, "/src/top.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("top"), data)
}

func TestMkdir_Idempotent(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Mkdir(ctx, "/d"))
	require.NoError(t, a.Mkdir(ctx, "/d"))

	writeHost(t, a, "f.txt", "x")
	assert.ErrorIs(t, a.Mkdir(ctx, "/f.txt"), store.ErrConflict)
}

func TestTrash_RoundTrip(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "/notes.txt", []byte("hello")))

	record, err := a.Trash(ctx, "/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", record.Name)
	assert.Equal(t, "/notes.txt", record.OriginalPath)
	assert.Equal(t, store.EntryTypeFile, record.Type)
	assert.Equal(t, int64(5), record.Size)
	assert.NotEmpty(t, record.ID)

	// Physical item and sidecar both exist.
	_, err = os.Stat(filepath.Join(a.Root(), ".trash", record.TrashName))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(a.Root(), ".trash", ".meta", record.ID+".json"))
	require.NoError(t, err)

	listed, err := a.ListTrash(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, record.ID, listed[0].ID)

	restored, err := a.Restore(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "/notes.txt", restored.OriginalPath)

	data, err := a.Read(ctx, "/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	listed, err = a.ListTrash(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestTrash_Rejections(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	_, err := a.Trash(ctx, "/")
	assert.ErrorIs(t, err, store.ErrInvalidPath)

	_, err = a.Trash(ctx, "/.trash")
	assert.ErrorIs(t, err, fspath.ErrInvalidPath)

	_, err = a.Trash(ctx, "/missing.txt")
	assert.ErrorIs(t, err, fspath.ErrNotFound)
}

func TestRestore_Conflict(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "/f.txt", []byte("one")))
	record, err := a.Trash(ctx, "/f.txt")
	require.NoError(t, err)

	require.NoError(t, a.Write(ctx, "/f.txt", []byte("two")))
	_, err = a.Restore(ctx, record.ID)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestRestore_ParentMissing(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "/dir/f.txt", []byte("x")))
	record, err := a.Trash(ctx, "/dir/f.txt")
	require.NoError(t, err)

	_, err = a.Trash(ctx, "/dir")
	require.NoError(t, err)

	_, err = a.Restore(ctx, record.ID)
	assert.ErrorIs(t, err, store.ErrParentMissing)
}

func TestReconcile_DropsDanglingSidecars(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "/keep.txt", []byte("x")))
	require.NoError(t, a.Write(ctx, "/lost.txt", []byte("y")))

	kept, err := a.Trash(ctx, "/keep.txt")
	require.NoError(t, err)
	lost, err := a.Trash(ctx, "/lost.txt")
	require.NoError(t, err)

	// Simulate a crash that wrote the sidecar but lost the physical item.
	require.NoError(t, os.Remove(filepath.Join(a.Root(), ".trash", lost.TrashName)))

	require.NoError(t, a.Reconcile())

	records, err := a.ListTrash(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, kept.ID, records[0].ID)
}

func TestListTrash_SkipsInvalidSidecars(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "/f.txt", []byte("x")))
	_, err := a.Trash(ctx, "/f.txt")
	require.NoError(t, err)

	meta := filepath.Join(a.Root(), ".trash", ".meta")
	require.NoError(t, os.WriteFile(filepath.Join(meta, "junk.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(meta, "empty.json"), []byte(`{"id":""}`), 0o644))

	records, err := a.ListTrash(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSizeProbe(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	writeHost(t, a, "dir/a.bin", "0123456789")
	writeHost(t, a, "dir/sub/b.bin", "0123456789")
	writeHost(t, a, "c.bin", "01234")

	paths := []string{
		filepath.Join(a.Root(), "dir"),
		filepath.Join(a.Root(), "c.bin"),
	}

	total, hit, err := a.SizeProbe(ctx, paths, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	assert.False(t, hit)

	// Exactly at the limit counts as hitting it.
	_, hit, err = a.SizeProbe(ctx, paths, 25)
	require.NoError(t, err)
	assert.True(t, hit)

	_, hit, err = a.SizeProbe(ctx, paths, 10)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestSearch(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	writeHost(t, a, "docs/Report.txt", "quarterly numbers")
	writeHost(t, a, "docs/data.bin", "num\x00bers")
	writeHost(t, a, "readme.md", "nothing to see")
	require.NoError(t, os.MkdirAll(filepath.Join(a.Root(), ".trash"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(a.Root(), ".trash", "numbers.txt"), []byte("numbers"), 0o644))

	hits, err := a.Search(ctx, "/", "report", 200*1024)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/docs/Report.txt", hits[0].Path)
	assert.True(t, hits[0].NameMatch)

	// Content match; the binary file with a NUL byte is skipped, and the
	// trash subtree is never searched.
	hits, err = a.Search(ctx, "/", "numbers", 200*1024)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/docs/Report.txt", hits[0].Path)
	assert.True(t, hits[0].ContentMatch)
}

func TestSearch_MaxBytes(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	writeHost(t, a, "big.txt", "needle in here")

	hits, err := a.Search(ctx, "/", "needle", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
