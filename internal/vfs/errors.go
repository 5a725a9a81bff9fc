package vfs

import "fmt"

// Storage operations reported in StorageError.Op. Each names the
// caller-facing operation that was running, not the backend primitive.
const (
	OpCreate   = "create"
	OpUpload   = "upload"
	OpMove     = "move"
	OpList     = "list"
	OpDownload = "download"
	OpGetSize  = "get-size"
	OpDelete   = "delete"
)

// StorageError reports an unexpected backend failure.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
