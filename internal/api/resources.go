package api

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/cloudstore/internal/logging"
	"github.com/fruitsalade/cloudstore/internal/resource"
)

// multipartMemory is how much of an upload form is held in memory before
// file parts spill to disk.
const multipartMemory = 32 << 20

func (s *Server) handleListDirectory(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := validateDirectoryPath("path", path); err != nil {
		s.sendResourceError(w, r, err)
		return
	}

	list, err := s.resources.ListDirectory(r.Context(), path)
	if err != nil {
		s.sendResourceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateDirectory(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := validateDirectoryPath("path", path); err != nil {
		s.sendResourceError(w, r, err)
		return
	}

	res, err := s.resources.CreateDirectory(r.Context(), path)
	if err != nil {
		s.sendResourceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := validatePath("path", path); err != nil {
		s.sendResourceError(w, r, err)
		return
	}

	res, err := s.resources.GetInfo(r.Context(), path)
	if err != nil {
		s.sendResourceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, res)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := validatePath("path", path); err != nil {
		s.sendResourceError(w, r, err)
		return
	}

	if err := s.resources.Delete(r.Context(), path); err != nil {
		s.sendResourceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if err := validatePath("from", from); err != nil {
		s.sendResourceError(w, r, err)
		return
	}
	if err := validatePath("to", to); err != nil {
		s.sendResourceError(w, r, err)
		return
	}

	res, err := s.resources.Move(r.Context(), from, to)
	if err != nil {
		s.sendResourceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		s.sendResourceError(w, r, invalid("Parameter query must not be blank"))
		return
	}

	found, err := s.resources.Search(r.Context(), query)
	if err != nil {
		s.sendResourceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, found)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := validatePath("path", path); err != nil {
		s.sendResourceError(w, r, err)
		return
	}

	d, err := s.resources.Download(r.Context(), path)
	if err != nil {
		s.sendResourceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Filename}))
	w.WriteHeader(http.StatusOK)

	// The status line is already sent; a failure here can only be logged
	// and surfaces to the client as a truncated body.
	if err := d.Write(w); err != nil {
		logging.WithContext(r.Context()).Error("download aborted",
			zap.String("path", path),
			zap.Error(err))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := validateDirectoryPath("path", path); err != nil {
		s.sendResourceError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, r, http.StatusRequestEntityTooLarge, "Upload exceeds the maximum allowed size")
			return
		}
		s.sendError(w, r, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	uploads, err := collectUploads(r.MultipartForm)
	if err != nil {
		s.sendResourceError(w, r, err)
		return
	}

	out, err := s.resources.UploadFiles(r.Context(), path, uploads)
	if err != nil {
		s.sendResourceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, out)
}

// collectUploads turns every file part of form into an Upload, ordered by
// field name and then by position within the field.
func collectUploads(form *multipart.Form) ([]resource.Upload, error) {
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var uploads []resource.Upload
	for _, field := range fields {
		for _, fh := range form.File[field] {
			name := rawFilename(fh)
			if err := validateFilename(name); err != nil {
				return nil, err
			}
			uploads = append(uploads, resource.Upload{
				Name:        name,
				Size:        fh.Size,
				ContentType: fh.Header.Get("Content-Type"),
				Open:        func() (io.ReadCloser, error) { return fh.Open() },
			})
		}
	}
	if len(uploads) == 0 {
		return nil, invalid("No files to upload")
	}
	return uploads, nil
}

// rawFilename returns the filename parameter as the client sent it.
// multipart.FileHeader.Filename keeps only the base name, which would drop
// the subdirectories a client may encode in the name.
func rawFilename(fh *multipart.FileHeader) string {
	_, params, err := mime.ParseMediaType(fh.Header.Get("Content-Disposition"))
	if err == nil {
		if name, ok := params["filename"]; ok {
			return name
		}
	}
	return fh.Filename
}
