// Package resource implements the per-user file and directory use cases on
// top of the vfs package: precondition checks, response records, and lazy
// download bodies.
package resource

import (
	"context"
	"io"

	"github.com/fruitsalade/cloudstore/internal/storage"
	"github.com/fruitsalade/cloudstore/internal/vfs"
)

// Type is the resource variant.
type Type string

const (
	TypeFile      Type = "FILE"
	TypeDirectory Type = "DIRECTORY"
)

// Resource describes one file or directory. Path is the display path of
// the parent directory; Size is set only for files.
type Resource struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Size *int64 `json:"size,omitempty"`
	Type Type   `json:"type"`
}

// IsDir reports whether r is a directory.
func (r Resource) IsDir() bool {
	return r.Type == TypeDirectory
}

// RootName is the display name of a user's root directory.
const RootName = "/"

func directoryResource(key string) Resource {
	if vfs.ParentOf(key) == "" {
		return Resource{Name: RootName, Type: TypeDirectory}
	}
	return Resource{
		Path: vfs.DisplayParent(key),
		Name: vfs.NameOf(key),
		Type: TypeDirectory,
	}
}

func fileResource(key string, size int64) Resource {
	return Resource{
		Path: vfs.DisplayParent(key),
		Name: vfs.NameOf(key),
		Size: &size,
		Type: TypeFile,
	}
}

func fromObject(obj storage.ObjectInfo) Resource {
	if obj.IsDir() {
		return directoryResource(obj.Key)
	}
	return fileResource(obj.Key, obj.Size)
}

// Upload is one file of an upload batch. Name may contain "/" to place the
// file in subdirectories, which are created as needed.
type Upload struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// Download is a named, lazily produced body. Nothing is read from storage
// until Write is called.
type Download struct {
	Filename    string
	ContentType string
	Write       func(w io.Writer) error
}

// Identity resolves the numeric id of the authenticated user.
type Identity interface {
	UserID(ctx context.Context) (int64, error)
}

// IdentityFunc adapts a function to Identity.
type IdentityFunc func(ctx context.Context) (int64, error)

func (f IdentityFunc) UserID(ctx context.Context) (int64, error) {
	return f(ctx)
}

// FixedUser is an Identity that always resolves to the same user.
func FixedUser(userID int64) Identity {
	return IdentityFunc(func(context.Context) (int64, error) { return userID, nil })
}

// displayPath is the user-facing form of key for messages. The root, whose
// display path is empty, renders as "/".
func displayPath(key string) string {
	if p := vfs.DisplayPath(key); p != "" {
		return p
	}
	return RootName
}
