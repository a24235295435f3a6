package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dvloznov/finance-admin/internal/api/middleware"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/dvloznov/finance-admin/internal/logger"
	"github.com/rs/zerolog"
)

// UploadField is the multipart field carrying the archive.
const UploadField = "zipFile"

// multipartOverhead is allowed on top of the archive limit for boundaries and
// part headers.
const multipartOverhead = 1 << 20

// formMemory is kept in memory while parsing; larger files spill to disk.
const formMemory = 8 << 20

var zipContentTypes = map[string]bool{
	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/x-zip":            true,
}

// Importer runs the archive import pipeline.
type Importer interface {
	Import(ctx context.Context, r io.ReaderAt, size int64, source string) (*domain.UploadResult, error)
}

// UploadHandler handles archive uploads.
type UploadHandler struct {
	importer Importer
	maxBytes int64
	log      zerolog.Logger
}

// NewUploadHandler creates a new upload handler accepting archives up to
// maxArchiveBytes.
func NewUploadHandler(importer Importer, maxArchiveBytes int64, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		importer: importer,
		maxBytes: maxArchiveBytes,
		log:      log,
	}
}

// Upload handles POST /api/upload
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "multipart/form-data" {
		middleware.WriteError(w, http.StatusBadRequest, "Content-Type must be multipart/form-data")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	total := 0
	for _, files := range r.MultipartForm.File {
		total += len(files)
	}
	if total != 1 {
		middleware.WriteError(w, http.StatusBadRequest, "exactly one file must be uploaded")
		return
	}

	headers := r.MultipartForm.File[UploadField]
	if len(headers) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, UploadField+" is required")
		return
	}
	fh := headers[0]

	if !isZip(fh.Filename, fh.Header.Get("Content-Type")) {
		middleware.WriteError(w, http.StatusBadRequest, "only ZIP archives are accepted")
		return
	}
	if fh.Size > h.maxBytes {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "archive too large")
		return
	}

	file, err := fh.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to open uploaded file")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read upload")
		return
	}
	defer file.Close()

	log := logger.FromContext(ctx)
	log.Info().
		Str("filename", fh.Filename).
		Int64("bytes", fh.Size).
		Msg("Archive received")

	result, err := h.importer.Import(ctx, file, fh.Size, filepath.Base(fh.Filename))
	if err != nil {
		writeDomainError(w, log, err, "Import failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

func isZip(filename, contentType string) bool {
	if strings.HasSuffix(strings.ToLower(filename), ".zip") {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && zipContentTypes[mt]
}
