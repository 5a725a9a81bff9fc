package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/cloudstore/internal/storage"
)

func newTestBackend(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := New(Config{RootPath: filepath.Join(t.TempDir(), "root"), CreateDirs: true})
	require.NoError(t, err)
	return b
}

func keysOf(objs []storage.ObjectInfo) []string {
	keys := make([]string, 0, len(objs))
	for _, o := range objs {
		keys = append(keys, o.Key)
	}
	return keys
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{RootPath: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0644))
	_, err = New(Config{RootPath: f})
	assert.Error(t, err)
}

func TestPutHeadGet(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.PutObject(ctx, "u/docs/a.txt", strings.NewReader("hello"), 5, "text/plain"))

	info, err := b.HeadObject(ctx, "u/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.IsDir())

	rc, err := b.GetObject(ctx, "u/docs/a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = b.HeadObject(ctx, "u/docs/missing.txt")
	assert.True(t, storage.IsNotFound(err))
	_, err = b.GetObject(ctx, "u/docs/missing.txt")
	assert.True(t, storage.IsNotFound(err))
}

func TestDirectoryMarkers(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.PutObject(ctx, "u/", strings.NewReader(""), 0, storage.DirectoryContentType))
	require.NoError(t, b.PutObject(ctx, "u/docs/", strings.NewReader(""), 0, storage.DirectoryContentType))

	info, err := b.HeadObject(ctx, "u/docs/")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, storage.DirectoryContentType, info.ContentType)

	// A directory that exists on disk without a marker is not an object.
	require.NoError(t, b.PutObject(ctx, "u/implicit/f.txt", strings.NewReader("x"), 1, ""))
	_, err = b.HeadObject(ctx, "u/implicit/")
	assert.True(t, storage.IsNotFound(err))
}

func TestListObjects(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, k := range []string{"u/", "u/docs/", "u/docs/sub/"} {
		require.NoError(t, b.PutObject(ctx, k, strings.NewReader(""), 0, storage.DirectoryContentType))
	}
	require.NoError(t, b.PutObject(ctx, "u/docs/a.txt", strings.NewReader("a"), 1, ""))
	require.NoError(t, b.PutObject(ctx, "u/docs/sub/b.txt", strings.NewReader("bb"), 2, ""))
	require.NoError(t, b.PutObject(ctx, "u/top.txt", strings.NewReader("t"), 1, ""))
	require.NoError(t, b.PutObject(ctx, "other/x.txt", strings.NewReader("x"), 1, ""))

	all, err := b.ListObjects(ctx, "u/docs/", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"u/docs/", "u/docs/a.txt", "u/docs/sub/", "u/docs/sub/b.txt"}, keysOf(all))

	children, err := b.ListObjects(ctx, "u/docs/", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"u/docs/", "u/docs/a.txt", "u/docs/sub/"}, keysOf(children))

	root, err := b.ListObjects(ctx, "u/", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"u/", "u/docs/", "u/top.txt"}, keysOf(root))

	none, err := b.ListObjects(ctx, "nothing/", true)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCopyAndDelete(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.PutObject(ctx, "u/a/f.txt", strings.NewReader("data"), 4, ""))
	require.NoError(t, b.CopyObject(ctx, "u/a/f.txt", "u/b/g.txt"))

	info, err := b.HeadObject(ctx, "u/b/g.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size)

	require.NoError(t, b.DeleteObject(ctx, "u/a/f.txt"))
	_, err = b.HeadObject(ctx, "u/a/f.txt")
	assert.True(t, storage.IsNotFound(err))

	// Empty parents are pruned; the root survives.
	_, err = os.Stat(filepath.Join(b.rootPath, "u", "a"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(b.rootPath)
	assert.NoError(t, err)

	assert.NoError(t, b.DeleteObject(ctx, "u/a/f.txt"))
	assert.True(t, storage.IsNotFound(b.CopyObject(ctx, "u/a/f.txt", "u/c.txt")))
}

func TestRejectsUnsafeKeys(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, key := range []string{"", "/abs", "u/../escape", "u/./x", "u//x", `u\x`, "u/.dirmarker", "u/.cloudstore-x"} {
		err := b.PutObject(ctx, key, strings.NewReader("x"), 1, "")
		assert.Error(t, err, "key %q", key)
	}
}
