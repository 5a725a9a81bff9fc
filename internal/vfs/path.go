package vfs

import (
	"fmt"
	"strings"
)

// Resolver maps user-relative request paths onto full object keys under a
// per-user root segment built from a fmt template such as "user-%d-files/".
type Resolver struct {
	template string
}

// NewResolver returns a Resolver for the given root template.
func NewResolver(template string) Resolver {
	return Resolver{template: template}
}

// RootPrefix returns the root key of the user's namespace.
func (r Resolver) RootPrefix(userID int64) string {
	return fmt.Sprintf(r.template, userID)
}

// Resolve anchors requestPath under the user's root. A single leading "/"
// is dropped. Existence is not checked.
func (r Resolver) Resolve(userID int64, requestPath string) string {
	return r.RootPrefix(userID) + strings.TrimPrefix(requestPath, "/")
}

// IsDirKey reports whether key denotes a directory marker.
func IsDirKey(key string) bool {
	return strings.HasSuffix(key, "/")
}

// ChildKey joins a directory key and a child name. parentKey must end in "/".
func ChildKey(parentKey, name string) string {
	return parentKey + name
}

// ParentOf returns the key of the directory containing key, up to and
// including the second-to-last "/". The root key has no parent and yields "".
func ParentOf(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	return trimmed[:strings.LastIndex(trimmed, "/")+1]
}

// NameOf returns the last path segment of key without a trailing "/".
func NameOf(key string) string {
	return strings.TrimSuffix(key[len(ParentOf(key)):], "/")
}

// DisplayPath strips the root segment so users never see it.
func DisplayPath(key string) string {
	if i := strings.Index(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// DisplayParent is DisplayPath applied to ParentOf.
func DisplayParent(key string) string {
	return DisplayPath(ParentOf(key))
}

// RelativeTo returns key relative to the directory key base.
func RelativeTo(base, key string) string {
	return strings.TrimPrefix(key, base)
}

// intermediateDirs lists the directory keys that must exist under base for
// rel to be reachable: every segment of rel except the last, or every
// segment when rel itself names a directory.
func intermediateDirs(base, rel string) []string {
	var dirs []string
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' {
			dirs = append(dirs, base+rel[:i+1])
		}
	}
	return dirs
}
