package httpserver

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatspace/internal/domain"
)

// uploadStore keeps attachments on local disk under dir with random names.
type uploadStore struct {
	dir     string
	maxSize int64
	log     *zap.Logger
}

func newUploadStore(dir string, maxSize int64, log *zap.Logger) *uploadStore {
	if dir == "" {
		dir = "uploads"
	}
	return &uploadStore{dir: dir, maxSize: maxSize, log: log}
}

// upload accepts a multipart form with a "file" field and returns the
// attachment descriptor a client embeds in message content.
func (s *uploadStore) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxSize + (1 << 20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "File too large"})
			return
		}
		writeError(w, s.log, domain.Errorf(domain.ErrInvalidInput, "failed to parse multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, s.log, domain.Errorf(domain.ErrInvalidInput, "missing file"))
		return
	}
	defer file.Close()

	if header.Size > s.maxSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "File too large"})
		return
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		writeError(w, s.log, err)
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	filename := uuid.NewString() + ext
	destPath := filepath.Join(s.dir, filename)

	out, err := os.Create(destPath)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	defer out.Close()

	size, err := io.Copy(out, file)
	if err != nil {
		_ = os.Remove(destPath)
		writeError(w, s.log, err)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(ext)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	s.log.Info("attachment stored", zap.String("file", filename), zap.Int64("size", size))
	writeJSON(w, http.StatusCreated, domain.Attachment{
		Type:     domain.AttachmentType,
		URL:      "/api/uploads/" + filename,
		Name:     filepath.Base(header.Filename),
		Size:     size,
		MimeType: mimeType,
	})
}

// serve returns a stored attachment by name.
func (s *uploadStore) serve(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" {
		writeError(w, s.log, domain.Errorf(domain.ErrInvalidInput, "missing filename"))
		return
	}
	// Prevent path traversal by not allowing separators.
	if filepath.Base(filename) != filename || strings.HasPrefix(filename, ".") {
		writeError(w, s.log, domain.Errorf(domain.ErrInvalidInput, "invalid filename"))
		return
	}
	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); err != nil {
		writeError(w, s.log, domain.Errorf(domain.ErrNotFound, "file not found"))
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, path)
}
