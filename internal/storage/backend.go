// Package storage defines the Backend interface for flat object storage.
//
// A Backend knows nothing about directories: keys are opaque strings and the
// only grouping it offers is prefix listing, optionally folded at the next
// "/" the way S3 folds keys into CommonPrefixes. Directory semantics live in
// the vfs package.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// DirectoryContentType tags zero-length directory marker objects.
const DirectoryContentType = "application/x-directory"

// ErrNotFound is returned (wrapped) when an object does not exist.
var ErrNotFound = errors.New("object not found")

// NotFoundError conveys that a specific object key was not found.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found", e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// IsNotFound reports whether err represents a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ObjectInfo describes one key returned by HeadObject or ListObjects.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// IsDir reports whether the key denotes a directory marker or folded prefix.
func (o ObjectInfo) IsDir() bool {
	return strings.HasSuffix(o.Key, "/")
}

// Backend is the interface for flat object storage backends.
type Backend interface {
	// PutObject writes body to key, replacing any existing object.
	// size may be -1 when unknown.
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// HeadObject returns metadata for key, or a *NotFoundError.
	HeadObject(ctx context.Context, key string) (ObjectInfo, error)

	// GetObject opens the content of key for reading.
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	// ListObjects returns every key starting with prefix, sorted by key.
	// When recursive is false, keys are folded at the first "/" after the
	// prefix and each folded group is returned once as a directory entry.
	ListObjects(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error)

	// CopyObject copies srcKey to dstKey server-side.
	CopyObject(ctx context.Context, srcKey, dstKey string) error

	// DeleteObject removes key. Deleting a missing key is not an error.
	DeleteObject(ctx context.Context, key string) error

	// Type returns the backend type identifier ("s3", "local", "memory").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
