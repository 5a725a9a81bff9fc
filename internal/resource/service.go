package resource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/fruitsalade/cloudstore/internal/logging"
	"github.com/fruitsalade/cloudstore/internal/metrics"
	"github.com/fruitsalade/cloudstore/internal/vfs"
)

// Service coordinates resource use cases for the authenticated user.
// Every key it touches is derived from the user id Identity returns, so a
// request can never address another user's namespace.
type Service struct {
	fs       *vfs.FS
	resolver vfs.Resolver
	identity Identity
}

// NewService creates a Service.
func NewService(fs *vfs.FS, resolver vfs.Resolver, identity Identity) *Service {
	return &Service{fs: fs, resolver: resolver, identity: identity}
}

// WithIdentity returns a copy of s that resolves users through identity.
func (s *Service) WithIdentity(identity Identity) *Service {
	return &Service{fs: s.fs, resolver: s.resolver, identity: identity}
}

type scope struct {
	resolver vfs.Resolver
	userID   int64
	root     string
}

func (s *Service) scope(ctx context.Context) (scope, error) {
	id, err := s.identity.UserID(ctx)
	if err != nil {
		return scope{}, fmt.Errorf("resolve user: %w", err)
	}
	return scope{resolver: s.resolver, userID: id, root: s.resolver.RootPrefix(id)}, nil
}

func (sc scope) key(p string) string {
	return sc.resolver.Resolve(sc.userID, p)
}

func record(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	metrics.RecordResourceOperation(op, outcome)
}

// CreateRootDirectory writes the marker for a user's root namespace.
func (s *Service) CreateRootDirectory(ctx context.Context, userID int64) error {
	root := s.resolver.RootPrefix(userID)
	if err := s.fs.CreateDirectory(ctx, root); err != nil {
		return err
	}
	logging.Info("root directory created", zap.Int64("user_id", userID))
	return nil
}

// CreateDirectory creates an empty directory. The parent must exist.
func (s *Service) CreateDirectory(ctx context.Context, path string) (res Resource, err error) {
	defer func() { record("create_directory", err) }()

	sc, err := s.scope(ctx)
	if err != nil {
		return Resource{}, err
	}
	key := sc.key(path)
	if key == sc.root {
		return Resource{}, newError(KindAlreadyExists, displayPath(key))
	}

	if parent := vfs.ParentOf(key); !s.fs.Exists(ctx, parent) {
		return Resource{}, newError(KindParentNotFound, displayPath(parent))
	}
	if s.fs.Exists(ctx, key) {
		return Resource{}, newError(KindAlreadyExists, displayPath(key))
	}
	if err := s.fs.CreateDirectory(ctx, key); err != nil {
		return Resource{}, err
	}

	logging.Info("directory created",
		zap.Int64("user_id", sc.userID),
		zap.String("path", vfs.DisplayPath(key)))
	return directoryResource(key), nil
}

// UploadFiles writes files into the directory at path. The batch stops at
// the first failure; files written before it stay written.
func (s *Service) UploadFiles(ctx context.Context, path string, files []Upload) (out []Resource, err error) {
	defer func() { record("upload", err) }()

	sc, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	parent := sc.key(path)
	if !s.fs.Exists(ctx, parent) {
		return nil, newError(KindParentNotFound, displayPath(parent))
	}

	out = make([]Resource, 0, len(files))
	for _, f := range files {
		if strings.TrimSpace(f.Name) == "" {
			return out, &Error{Kind: KindEmptyFilename}
		}
		if vfs.IsDirKey(f.Name) || strings.HasPrefix(f.Name, "/") {
			return out, invalidInput("Invalid filename %s", f.Name)
		}

		key := vfs.ChildKey(parent, f.Name)
		if s.fs.Exists(ctx, key) {
			return out, newError(KindAlreadyExists, displayPath(key))
		}
		if strings.Contains(f.Name, "/") {
			if err := s.fs.CreateIntermediate(ctx, vfs.OpUpload, parent, f.Name); err != nil {
				return out, err
			}
		}
		if err := s.putUpload(ctx, key, f); err != nil {
			return out, err
		}

		metrics.RecordUpload(f.Size)
		out = append(out, fileResource(key, f.Size))
	}

	logging.Info("files uploaded",
		zap.Int64("user_id", sc.userID),
		zap.String("path", vfs.DisplayPath(parent)),
		zap.Int("count", len(out)))
	return out, nil
}

func (s *Service) putUpload(ctx context.Context, key string, f Upload) error {
	body, err := f.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", f.Name, err)
	}
	defer body.Close()
	return s.fs.PutFile(ctx, key, body, f.Size, f.ContentType)
}

// ListDirectory returns the direct children of the directory at path.
func (s *Service) ListDirectory(ctx context.Context, path string) (out []Resource, err error) {
	defer func() { record("list_directory", err) }()

	sc, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	key := sc.key(path)
	if !s.fs.Exists(ctx, key) {
		return nil, newError(KindNotFound, displayPath(key))
	}

	children, err := s.fs.ListDirectory(ctx, key)
	if err != nil {
		return nil, err
	}
	out = make([]Resource, 0, len(children))
	for _, c := range children {
		out = append(out, fromObject(c))
	}
	return out, nil
}

// Search scans the user's whole namespace for resources whose name
// contains query, ignoring case.
func (s *Service) Search(ctx context.Context, query string) (out []Resource, err error) {
	defer func() { record("search", err) }()

	sc, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.fs.ListSubtree(ctx, vfs.OpList, sc.root)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	out = []Resource{}
	for _, e := range entries {
		if strings.Contains(strings.ToLower(vfs.NameOf(e.Key)), needle) {
			out = append(out, fromObject(e))
		}
	}
	return out, nil
}

// Tree returns every resource under the directory at path, depth first in
// key order.
func (s *Service) Tree(ctx context.Context, path string) (out []Resource, err error) {
	sc, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	key := sc.key(path)
	if !s.fs.Exists(ctx, key) {
		return nil, newError(KindNotFound, displayPath(key))
	}
	entries, err := s.fs.ListSubtree(ctx, vfs.OpList, key)
	if err != nil {
		return nil, err
	}
	out = make([]Resource, 0, len(entries))
	for _, e := range entries {
		out = append(out, fromObject(e))
	}
	return out, nil
}

// Move renames or relocates the resource at from to to. Both paths must
// denote the same type of resource.
func (s *Service) Move(ctx context.Context, from, to string) (res Resource, err error) {
	defer func() { record("move", err) }()

	sc, err := s.scope(ctx)
	if err != nil {
		return Resource{}, err
	}
	fromKey, toKey := sc.key(from), sc.key(to)

	if fromKey == sc.root || toKey == sc.root {
		return Resource{}, invalidInput("Root directory cannot be moved")
	}
	if !s.fs.Exists(ctx, fromKey) {
		return Resource{}, newError(KindNotFound, displayPath(fromKey))
	}
	if parent := vfs.ParentOf(toKey); !s.fs.Exists(ctx, parent) {
		return Resource{}, newError(KindParentNotFound, displayPath(parent))
	}
	if s.fs.Exists(ctx, toKey) {
		return Resource{}, newError(KindAlreadyExists, displayPath(toKey))
	}
	if vfs.IsDirKey(fromKey) != vfs.IsDirKey(toKey) {
		return Resource{}, &Error{Kind: KindTypeMismatch, Path: displayPath(fromKey), Path2: displayPath(toKey)}
	}

	if vfs.IsDirKey(fromKey) {
		if strings.HasPrefix(toKey, fromKey) {
			return Resource{}, invalidInput("Cannot move %s into itself", vfs.DisplayPath(fromKey))
		}
		if err := s.fs.MoveDirectory(ctx, fromKey, toKey); err != nil {
			return Resource{}, err
		}
		res = directoryResource(toKey)
	} else {
		// Sized before the copy so a completed move is never reported as failed.
		size, err := s.fs.ObjectSize(ctx, fromKey)
		if err != nil {
			return Resource{}, err
		}
		if err := s.fs.MoveFile(ctx, fromKey, toKey); err != nil {
			return Resource{}, err
		}
		res = fileResource(toKey, size)
	}

	logging.Info("resource moved",
		zap.Int64("user_id", sc.userID),
		zap.String("from", vfs.DisplayPath(fromKey)),
		zap.String("to", vfs.DisplayPath(toKey)))
	return res, nil
}

// Download returns a lazy body for the resource at path: the raw bytes of
// a file, or a zip archive of a directory's files named relative to it.
func (s *Service) Download(ctx context.Context, path string) (d *Download, err error) {
	defer func() { record("download", err) }()

	sc, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	key := sc.key(path)
	if !s.fs.Exists(ctx, key) {
		return nil, newError(KindNotFound, displayPath(key))
	}

	if !vfs.IsDirKey(key) {
		return &Download{
			Filename:    vfs.NameOf(key),
			ContentType: "application/octet-stream",
			Write: func(w io.Writer) error {
				return s.copyFile(ctx, w, key)
			},
		}, nil
	}

	name := vfs.NameOf(key)
	if key == sc.root {
		name = "files"
	}
	return &Download{
		Filename:    name + ".zip",
		ContentType: "application/zip",
		Write: func(w io.Writer) error {
			return s.writeZip(ctx, w, key)
		},
	}, nil
}

func (s *Service) copyFile(ctx context.Context, w io.Writer, key string) error {
	rc, err := s.fs.OpenFile(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	n, err := io.Copy(w, rc)
	metrics.RecordDownload(n)
	if err != nil {
		return &vfs.StorageError{Op: vfs.OpDownload, Key: key, Err: err}
	}
	return nil
}

// writeZip streams one entry per file under dirKey. Entries are fetched
// one at a time so the archive is never held in memory.
func (s *Service) writeZip(ctx context.Context, w io.Writer, dirKey string) error {
	entries, err := s.fs.ListSubtree(ctx, vfs.OpDownload, dirKey)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     vfs.RelativeTo(dirKey, e.Key),
			Method:   zip.Deflate,
			Modified: e.LastModified,
		})
		if err != nil {
			return &vfs.StorageError{Op: vfs.OpDownload, Key: e.Key, Err: err}
		}
		if err := s.copyFile(ctx, fw, e.Key); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return &vfs.StorageError{Op: vfs.OpDownload, Key: dirKey, Err: err}
	}
	return nil
}

// Delete removes the resource at path, recursively for directories.
func (s *Service) Delete(ctx context.Context, path string) (err error) {
	defer func() { record("delete", err) }()

	sc, err := s.scope(ctx)
	if err != nil {
		return err
	}
	key := sc.key(path)
	if key == sc.root {
		return invalidInput("Root directory cannot be deleted")
	}
	if !s.fs.Exists(ctx, key) {
		return newError(KindNotFound, displayPath(key))
	}

	if vfs.IsDirKey(key) {
		err = s.fs.DeleteDirectory(ctx, key)
	} else {
		err = s.fs.DeleteFile(ctx, key)
	}
	if err != nil {
		return err
	}

	logging.Info("resource deleted",
		zap.Int64("user_id", sc.userID),
		zap.String("path", vfs.DisplayPath(key)))
	return nil
}

// GetInfo describes the resource at path.
func (s *Service) GetInfo(ctx context.Context, path string) (res Resource, err error) {
	defer func() { record("get_info", err) }()

	sc, err := s.scope(ctx)
	if err != nil {
		return Resource{}, err
	}
	key := sc.key(path)
	if !s.fs.Exists(ctx, key) {
		return Resource{}, newError(KindNotFound, displayPath(key))
	}
	if vfs.IsDirKey(key) {
		return directoryResource(key), nil
	}
	size, err := s.fs.ObjectSize(ctx, key)
	if err != nil {
		return Resource{}, err
	}
	return fileResource(key, size), nil
}
