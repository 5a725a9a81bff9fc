package vfs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/cloudstore/internal/logging"
	"github.com/fruitsalade/cloudstore/internal/storage"
	"github.com/fruitsalade/cloudstore/internal/storage/memory"
)

var errInjected = errors.New("injected failure")

// faultyBackend fails selected primitives for selected keys.
type faultyBackend struct {
	storage.Backend
	failCopy   map[string]bool
	failDelete map[string]bool
	failList   bool
	failHead   bool
}

func (f *faultyBackend) CopyObject(ctx context.Context, src, dst string) error {
	if f.failCopy[src] {
		return errInjected
	}
	return f.Backend.CopyObject(ctx, src, dst)
}

func (f *faultyBackend) DeleteObject(ctx context.Context, key string) error {
	if f.failDelete[key] {
		return errInjected
	}
	return f.Backend.DeleteObject(ctx, key)
}

func (f *faultyBackend) ListObjects(ctx context.Context, prefix string, recursive bool) ([]storage.ObjectInfo, error) {
	if f.failList {
		return nil, errInjected
	}
	return f.Backend.ListObjects(ctx, prefix, recursive)
}

func (f *faultyBackend) HeadObject(ctx context.Context, key string) (storage.ObjectInfo, error) {
	if f.failHead {
		return storage.ObjectInfo{}, errInjected
	}
	return f.Backend.HeadObject(ctx, key)
}

func seed(t *testing.T, b storage.Backend, files map[string]string, dirs ...string) {
	t.Helper()
	ctx := context.Background()
	for _, d := range dirs {
		require.NoError(t, b.PutObject(ctx, d, strings.NewReader(""), 0, storage.DirectoryContentType))
	}
	for k, v := range files {
		require.NoError(t, b.PutObject(ctx, k, strings.NewReader(v), int64(len(v)), ""))
	}
}

func newFS(t *testing.T) (*FS, *memory.Backend) {
	t.Helper()
	logging.InitNop()
	b := memory.New()
	return New(b), b
}

func TestCreateAndList(t *testing.T) {
	fs, b := newFS(t)
	ctx := context.Background()
	seed(t, b, map[string]string{"u/docs/a.txt": "aaa", "u/docs/sub/b.txt": "b"}, "u/", "u/docs/", "u/docs/sub/")

	require.NoError(t, fs.CreateDirectory(ctx, "u/docs/new/"))
	assert.True(t, fs.Exists(ctx, "u/docs/new/"))

	children, err := fs.ListDirectory(ctx, "u/docs/")
	require.NoError(t, err)
	var keys []string
	for _, c := range children {
		keys = append(keys, c.Key)
	}
	assert.Equal(t, []string{"u/docs/a.txt", "u/docs/new/", "u/docs/sub/"}, keys)

	all, err := fs.ListSubtree(ctx, OpList, "u/docs/")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	size, err := fs.ObjectSize(ctx, "u/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
}

func TestObjectSizeMissing(t *testing.T) {
	fs, _ := newFS(t)

	_, err := fs.ObjectSize(context.Background(), "u/missing.txt")
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, OpGetSize, se.Op)
	assert.True(t, storage.IsNotFound(err))
}

func TestExistsTreatsFailureAsAbsent(t *testing.T) {
	logging.InitNop()
	b := memory.New()
	seed(t, b, map[string]string{"u/a.txt": "a"})
	fs := New(&faultyBackend{Backend: b, failHead: true})

	assert.False(t, fs.Exists(context.Background(), "u/a.txt"))
}

func TestMoveFile(t *testing.T) {
	fs, b := newFS(t)
	ctx := context.Background()
	seed(t, b, map[string]string{"u/a.txt": "hello"}, "u/")

	require.NoError(t, fs.MoveFile(ctx, "u/a.txt", "u/b.txt"))
	assert.False(t, fs.Exists(ctx, "u/a.txt"))

	rc, err := fs.OpenFile(ctx, "u/b.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "hello", string(data))
}

func TestMoveFileRemoveFailureLeavesBoth(t *testing.T) {
	logging.InitNop()
	b := memory.New()
	seed(t, b, map[string]string{"u/a.txt": "hello"}, "u/")
	fs := New(&faultyBackend{Backend: b, failDelete: map[string]bool{"u/a.txt": true}})
	ctx := context.Background()

	err := fs.MoveFile(ctx, "u/a.txt", "u/b.txt")
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, OpMove, se.Op)
	assert.ErrorIs(t, err, errInjected)

	assert.True(t, fs.Exists(ctx, "u/a.txt"))
	assert.True(t, fs.Exists(ctx, "u/b.txt"))
}

func TestMoveDirectory(t *testing.T) {
	fs, b := newFS(t)
	ctx := context.Background()
	seed(t, b,
		map[string]string{"u/a/f.txt": "f", "u/a/x/y/g.txt": "gg", "u/a/implicit/h.txt": "h"},
		"u/", "u/a/", "u/a/x/", "u/a/x/y/", "u/a/empty/")

	require.NoError(t, fs.MoveDirectory(ctx, "u/a/", "u/b/"))

	for _, k := range []string{"u/a/", "u/a/f.txt", "u/a/x/", "u/a/x/y/g.txt", "u/a/empty/", "u/a/implicit/h.txt"} {
		assert.False(t, fs.Exists(ctx, k), k)
	}
	for _, k := range []string{"u/b/", "u/b/f.txt", "u/b/x/", "u/b/x/y/", "u/b/x/y/g.txt", "u/b/empty/", "u/b/implicit/", "u/b/implicit/h.txt"} {
		assert.True(t, fs.Exists(ctx, k), k)
	}

	size, err := fs.ObjectSize(ctx, "u/b/x/y/g.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
}

func TestMoveDirectoryPartialFailure(t *testing.T) {
	logging.InitNop()
	b := memory.New()
	seed(t, b, map[string]string{"u/a/1.txt": "1", "u/a/2.txt": "2"}, "u/", "u/a/")
	fs := New(&faultyBackend{Backend: b, failCopy: map[string]bool{"u/a/2.txt": true}})
	ctx := context.Background()

	err := fs.MoveDirectory(ctx, "u/a/", "u/b/")
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, OpMove, se.Op)
	assert.Equal(t, "u/a/2.txt", se.Key)

	// Steps already taken are not rolled back.
	assert.True(t, fs.Exists(ctx, "u/b/1.txt"))
	assert.False(t, fs.Exists(ctx, "u/a/1.txt"))
	assert.True(t, fs.Exists(ctx, "u/a/2.txt"))
	assert.True(t, fs.Exists(ctx, "u/a/"))

	// Retrying once the fault clears converges.
	fs = New(b)
	require.NoError(t, fs.MoveDirectory(ctx, "u/a/", "u/b/"))
	assert.True(t, fs.Exists(ctx, "u/b/2.txt"))
	assert.False(t, fs.Exists(ctx, "u/a/"))
}

func TestDeleteDirectory(t *testing.T) {
	fs, b := newFS(t)
	ctx := context.Background()
	seed(t, b,
		map[string]string{"u/d/a.txt": "a", "u/d/s/b.txt": "b", "u/keep.txt": "k"},
		"u/", "u/d/", "u/d/s/")

	require.NoError(t, fs.DeleteDirectory(ctx, "u/d/"))

	for _, k := range []string{"u/d/", "u/d/a.txt", "u/d/s/", "u/d/s/b.txt"} {
		assert.False(t, fs.Exists(ctx, k), k)
	}
	assert.True(t, fs.Exists(ctx, "u/keep.txt"))
	assert.True(t, fs.Exists(ctx, "u/"))
}

func TestDeleteDirectoryListFailure(t *testing.T) {
	logging.InitNop()
	b := memory.New()
	seed(t, b, map[string]string{"u/d/a.txt": "a"}, "u/d/")
	fs := New(&faultyBackend{Backend: b, failList: true})

	err := fs.DeleteDirectory(context.Background(), "u/d/")
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, OpDelete, se.Op)
	assert.Equal(t, 2, b.Len())
}

func TestCreateIntermediate(t *testing.T) {
	fs, _ := newFS(t)
	ctx := context.Background()

	require.NoError(t, fs.CreateIntermediate(ctx, OpUpload, "u/", "a/b/c.txt"))
	assert.True(t, fs.Exists(ctx, "u/a/"))
	assert.True(t, fs.Exists(ctx, "u/a/b/"))
	assert.False(t, fs.Exists(ctx, "u/a/b/c.txt"))
}
