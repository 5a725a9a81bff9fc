package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/cloudstore/internal/logging"
	"github.com/fruitsalade/cloudstore/internal/resource"
	"github.com/fruitsalade/cloudstore/internal/storage/memory"
	"github.com/fruitsalade/cloudstore/internal/vfs"
)

func upload(name, content string) resource.Upload {
	return resource.Upload{
		Name: name,
		Size: int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func newTestResources(t *testing.T) *resource.Service {
	t.Helper()
	logging.InitNop()
	svc := resource.NewService(vfs.New(memory.New()), vfs.NewResolver("user-%d-files/"), nil)
	ctx := context.Background()
	require.NoError(t, svc.CreateRootDirectory(ctx, 7))
	_, err := svc.WithIdentity(resource.FixedUser(7)).UploadFiles(ctx, "/", []resource.Upload{
		upload("docs/notes.txt", "hello"),
		upload("docs/deep/x.bin", "xyz"),
		upload("top.txt", "t"),
	})
	require.NoError(t, err)
	return svc
}

func TestRunTree(t *testing.T) {
	svc := newTestResources(t)

	var out bytes.Buffer
	require.NoError(t, runTree(context.Background(), &out, svc, 7, "/"))
	assert.Equal(t, strings.Join([]string{
		"docs/",
		"  deep/",
		"    x.bin (3 bytes)",
		"  notes.txt (5 bytes)",
		"top.txt (1 bytes)",
		"",
	}, "\n"), out.String())
}

func TestRunTreeSubdirectory(t *testing.T) {
	svc := newTestResources(t)

	var out bytes.Buffer
	require.NoError(t, runTree(context.Background(), &out, svc, 7, "docs/deep/"))
	assert.Equal(t, "    x.bin (3 bytes)\n", out.String())
}

func TestRunTreeUnknownUser(t *testing.T) {
	svc := newTestResources(t)

	var out bytes.Buffer
	err := runTree(context.Background(), &out, svc, 8, "/")
	assert.ErrorIs(t, err, resource.ErrNotFound)
	assert.Empty(t, out.String())
}

func TestCommandArgs(t *testing.T) {
	assert.Error(t, treeCmd.Args(treeCmd, nil))
	assert.NoError(t, treeCmd.Args(treeCmd, []string{"1", "docs/"}))
	assert.Error(t, treeCmd.Args(treeCmd, []string{"1", "docs/", "extra"}))
	assert.Error(t, userCreateCmd.Args(userCreateCmd, []string{"alice", "a@example.com"}))
}
