package resource

import (
	"errors"
	"fmt"

	"github.com/fruitsalade/cloudstore/internal/vfs"
)

// Kind classifies errors returned by Service.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindNotFound
	KindParentNotFound
	KindAlreadyExists
	KindTypeMismatch
	KindEmptyFilename
	KindStorage
)

var kindNames = map[Kind]string{
	KindInternal:       "internal",
	KindInvalidInput:   "invalid_input",
	KindNotFound:       "not_found",
	KindParentNotFound: "parent_not_found",
	KindAlreadyExists:  "already_exists",
	KindTypeMismatch:   "type_mismatch",
	KindEmptyFilename:  "empty_filename",
	KindStorage:        "storage",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Sentinels for errors.Is. A *Error matches the sentinel of its Kind.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotFound       = errors.New("resource not found")
	ErrParentNotFound = errors.New("parent directory not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrTypeMismatch   = errors.New("resource types do not match")
	ErrEmptyFilename  = errors.New("empty filename")
)

var sentinels = map[Kind]error{
	KindInvalidInput:   ErrInvalidInput,
	KindNotFound:       ErrNotFound,
	KindParentNotFound: ErrParentNotFound,
	KindAlreadyExists:  ErrAlreadyExists,
	KindTypeMismatch:   ErrTypeMismatch,
	KindEmptyFilename:  ErrEmptyFilename,
}

// Error is an expected domain failure. Path and Path2 are display paths.
type Error struct {
	Kind   Kind
	Path   string
	Path2  string
	Detail string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("Resource %s not exists", e.Path)
	case KindParentNotFound:
		return fmt.Sprintf("Parent directory %s not found", e.Path)
	case KindAlreadyExists:
		return fmt.Sprintf("Resource %s already exists", e.Path)
	case KindTypeMismatch:
		return fmt.Sprintf("Resource type from - %s and to - %s not match", e.Path, e.Path2)
	case KindEmptyFilename:
		return "Uploading filename must not be empty"
	case KindInvalidInput:
		if e.Detail != "" {
			return e.Detail
		}
		return fmt.Sprintf("Invalid path %s", e.Path)
	}
	return e.Kind.String()
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

func newError(kind Kind, path string) *Error {
	return &Error{Kind: kind, Path: path}
}

func invalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Detail: fmt.Sprintf(format, args...)}
}

// KindOf classifies err. Storage failures are KindStorage, domain failures
// carry their own kind, and anything else is KindInternal.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	var se *vfs.StorageError
	if errors.As(err, &se) {
		return KindStorage
	}
	for kind, s := range sentinels {
		if errors.Is(err, s) {
			return kind
		}
	}
	return KindInternal
}

// IsExpected reports whether err is a domain failure rather than an incident.
func IsExpected(err error) bool {
	switch KindOf(err) {
	case KindStorage, KindInternal:
		return false
	}
	return true
}
