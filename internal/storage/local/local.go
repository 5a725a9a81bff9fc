// Package local provides a local filesystem storage backend.
//
// File keys map to regular files under the root. A directory marker key
// ("a/b/") maps to a hidden marker file inside the directory, so a directory
// can exist on disk without the marker and vice versa, just as a prefix can
// exist in S3 without its marker object.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fruitsalade/cloudstore/internal/storage"
)

const (
	markerName = ".dirmarker"
	tempPrefix = ".cloudstore-"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string `json:"root_path"`
	CreateDirs bool   `json:"create_dirs"`
}

// LocalBackend implements storage.Backend using the local filesystem.
type LocalBackend struct {
	rootPath string
}

// New creates a new local filesystem backend.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	return &LocalBackend{rootPath: cfg.RootPath}, nil
}

// NewFromJSON creates a LocalBackend from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*LocalBackend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse local config: %w", err)
	}
	return New(cfg)
}

// checkKey rejects keys that would escape the root or collide with
// the backend's own bookkeeping files.
func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("invalid key %q", key)
	}
	for _, seg := range strings.Split(strings.TrimSuffix(key, "/"), "/") {
		if seg == "" || seg == "." || seg == ".." || seg == markerName || strings.HasPrefix(seg, tempPrefix) {
			return fmt.Errorf("invalid key %q", key)
		}
	}
	return nil
}

// fsPath returns the file holding key's content.
func (b *LocalBackend) fsPath(key string) string {
	if strings.HasSuffix(key, "/") {
		return filepath.Join(b.rootPath, filepath.FromSlash(key), markerName)
	}
	return filepath.Join(b.rootPath, filepath.FromSlash(key))
}

// PutObject writes content atomically through a temp file and rename.
func (b *LocalBackend) PutObject(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	target := b.fsPath(key)
	dir := filepath.Dir(target)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dirs for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", key, err)
	}
	return nil
}

// HeadObject stats the file backing key.
func (b *LocalBackend) HeadObject(_ context.Context, key string) (storage.ObjectInfo, error) {
	if err := checkKey(key); err != nil {
		return storage.ObjectInfo{}, err
	}
	fi, err := os.Stat(b.fsPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.ObjectInfo{}, &storage.NotFoundError{Key: key}
		}
		return storage.ObjectInfo{}, fmt.Errorf("stat %s: %w", key, err)
	}
	if !fi.Mode().IsRegular() {
		return storage.ObjectInfo{}, &storage.NotFoundError{Key: key}
	}
	return objectInfo(key, fi), nil
}

// GetObject opens the file backing key.
func (b *LocalBackend) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(b.fsPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &storage.NotFoundError{Key: key}
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

// ListObjects walks the directory that contains prefix.
func (b *LocalBackend) ListObjects(_ context.Context, prefix string, recursive bool) ([]storage.ObjectInfo, error) {
	start := b.rootPath
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		start = filepath.Join(b.rootPath, filepath.FromSlash(prefix[:i]))
	}

	var out []storage.ObjectInfo
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == start {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(b.rootPath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if d.Name() == markerName {
			key = path.Dir(key) + "/"
		}
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, objectInfo(key, fi))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	if !recursive {
		return storage.FoldByDelimiter(prefix, out), nil
	}
	storage.SortByKey(out)
	return out, nil
}

// CopyObject copies a file on the local filesystem.
func (b *LocalBackend) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	src, err := b.GetObject(ctx, srcKey)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := b.PutObject(ctx, dstKey, src, -1, ""); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}

// DeleteObject removes the file backing key and prunes directories left empty.
func (b *LocalBackend) DeleteObject(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	target := b.fsPath(key)
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	b.pruneEmptyDirs(filepath.Dir(target))
	return nil
}

func (b *LocalBackend) pruneEmptyDirs(dir string) {
	root := filepath.Clean(b.rootPath)
	for dir != root && strings.HasPrefix(dir, root) {
		// os.Remove refuses non-empty directories, which ends the walk.
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *LocalBackend) Close() error { return nil }

func objectInfo(key string, fi fs.FileInfo) storage.ObjectInfo {
	info := storage.ObjectInfo{
		Key:          key,
		Size:         fi.Size(),
		LastModified: fi.ModTime(),
	}
	if strings.HasSuffix(key, "/") {
		info.ContentType = storage.DirectoryContentType
	}
	return info
}
