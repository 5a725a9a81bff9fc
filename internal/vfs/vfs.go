// Package vfs emulates a hierarchical filesystem on top of a flat object
// store. A directory is a zero-length marker object whose key ends in "/";
// its contents are the keys it prefixes.
//
// Compound operations (MoveDirectory, DeleteDirectory) are sequences of
// single-object primitives with no rollback: a failure part way through
// leaves the steps already taken in place. Every step is idempotent, so
// repeating a failed operation converges.
package vfs

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/fruitsalade/cloudstore/internal/logging"
	"github.com/fruitsalade/cloudstore/internal/storage"
)

// FS implements directory semantics over a Gateway.
type FS struct {
	gw *Gateway
}

// New creates an FS over backend.
func New(backend storage.Backend) *FS {
	return &FS{gw: NewGateway(backend)}
}

// Gateway returns the gateway FS issues primitives through.
func (fs *FS) Gateway() *Gateway {
	return fs.gw
}

// CreateDirectory writes the marker for key.
func (fs *FS) CreateDirectory(ctx context.Context, key string) error {
	return fs.gw.PutMarker(ctx, OpCreate, key)
}

// CreateIntermediate writes a marker for every directory between base and
// the entry rel names, including rel itself when it is a directory.
func (fs *FS) CreateIntermediate(ctx context.Context, op, base, rel string) error {
	for _, dir := range intermediateDirs(base, rel) {
		if err := fs.gw.PutMarker(ctx, op, dir); err != nil {
			return err
		}
	}
	return nil
}

// ListDirectory returns the direct children of key.
func (fs *FS) ListDirectory(ctx context.Context, key string) ([]storage.ObjectInfo, error) {
	return fs.gw.ListChildren(ctx, OpList, key)
}

// ListSubtree returns every descendant of key.
func (fs *FS) ListSubtree(ctx context.Context, op, key string) ([]storage.ObjectInfo, error) {
	return fs.gw.ListAll(ctx, op, key)
}

// PutFile writes file content at key.
func (fs *FS) PutFile(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	return fs.gw.PutBytes(ctx, OpUpload, key, body, size, contentType)
}

// OpenFile opens key for download.
func (fs *FS) OpenFile(ctx context.Context, key string) (io.ReadCloser, error) {
	return fs.gw.Open(ctx, OpDownload, key)
}

// MoveFile copies fromKey to toKey, then removes fromKey. If the removal
// fails the object exists at both keys.
func (fs *FS) MoveFile(ctx context.Context, fromKey, toKey string) error {
	if err := fs.gw.Copy(ctx, OpMove, fromKey, toKey); err != nil {
		return err
	}
	return fs.gw.Remove(ctx, OpMove, fromKey)
}

// MoveDirectory moves every descendant of fromKey under toKey, then removes
// the source marker. Intermediate markers under the destination are
// written as each descendant is visited, in the backend's listing order.
func (fs *FS) MoveDirectory(ctx context.Context, fromKey, toKey string) error {
	if err := fs.gw.PutMarker(ctx, OpMove, toKey); err != nil {
		return err
	}

	entries, err := fs.gw.ListAll(ctx, OpMove, fromKey)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		rel := RelativeTo(fromKey, entry.Key)
		if rel == "" {
			continue
		}
		if err := fs.CreateIntermediate(ctx, OpMove, toKey, rel); err != nil {
			return err
		}
		if !IsDirKey(entry.Key) {
			if err := fs.gw.Copy(ctx, OpMove, entry.Key, toKey+rel); err != nil {
				return err
			}
		}
		if err := fs.gw.Remove(ctx, OpMove, entry.Key); err != nil {
			return err
		}
	}

	if err := fs.gw.Remove(ctx, OpMove, fromKey); err != nil {
		return err
	}
	logging.Debug("directory moved",
		zap.String("from", fromKey),
		zap.String("to", toKey),
		zap.Int("entries", len(entries)))
	return nil
}

// DeleteDirectory removes every descendant of key, then key's marker.
func (fs *FS) DeleteDirectory(ctx context.Context, key string) error {
	entries, err := fs.gw.ListAll(ctx, OpDelete, key)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := fs.gw.Remove(ctx, OpDelete, entry.Key); err != nil {
			return err
		}
	}
	return fs.gw.Remove(ctx, OpDelete, key)
}

// DeleteFile removes a single file.
func (fs *FS) DeleteFile(ctx context.Context, key string) error {
	return fs.gw.Remove(ctx, OpDelete, key)
}

// ObjectSize returns the size of the file at key.
func (fs *FS) ObjectSize(ctx context.Context, key string) (int64, error) {
	return fs.gw.Size(ctx, key)
}

// Exists reports whether key is present.
func (fs *FS) Exists(ctx context.Context, key string) bool {
	return fs.gw.Exists(ctx, key)
}
