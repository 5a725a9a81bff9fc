package api

import (
	"fmt"
	"strings"

	"github.com/fruitsalade/cloudstore/internal/resource"
)

func invalid(format string, args ...any) error {
	return &resource.Error{Kind: resource.KindInvalidInput, Detail: fmt.Sprintf(format, args...)}
}

// validatePath applies the structural rules every request path must meet.
// Keys are always derived from the caller's identity, so the checks only
// need to keep a path inside its own namespace and well formed.
func validatePath(param, p string) error {
	if strings.TrimSpace(p) == "" {
		return invalid("Parameter %s must not be blank", param)
	}
	if strings.ContainsAny(p, `\[]`) {
		return invalid("Parameter %s contains forbidden characters", param)
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(p, "/"), "/")
	if trimmed == "" {
		return nil
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return invalid("Parameter %s contains an invalid path segment", param)
		}
	}
	return nil
}

// validateDirectoryPath additionally requires a trailing "/".
func validateDirectoryPath(param, p string) error {
	if err := validatePath(param, p); err != nil {
		return err
	}
	if !strings.HasSuffix(p, "/") {
		return invalid("Parameter %s must be a directory path ending in /", param)
	}
	return nil
}

// validateFilename checks an uploaded file name, which may contain "/".
func validateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return &resource.Error{Kind: resource.KindEmptyFilename}
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return invalid("Invalid filename %s", name)
	}
	if err := validatePath("filename", name); err != nil {
		return err
	}
	return nil
}
