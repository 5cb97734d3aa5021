package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/maneesh/lecturebox/internal/apperr"
	"github.com/maneesh/lecturebox/internal/logger"
	"github.com/maneesh/lecturebox/internal/models"
	"github.com/maneesh/lecturebox/internal/naming"
	"github.com/maneesh/lecturebox/internal/upload"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("lecturebox-handlers")

const (
	// form field carrying the files
	filesField = "files"
	// in-memory part of a parsed multipart form, the rest spills to disk
	multipartMemory = 32 << 20
	// allowance for the non-file form fields and multipart framing
	formOverhead = 1 << 20
)

// MaterialLister lists materials newest first
type MaterialLister interface {
	ListMaterials(ctx context.Context) ([]models.MaterialListing, error)
}

// Uploader ingests a batch of files
type Uploader interface {
	Upload(ctx context.Context, files []upload.File, meta upload.Metadata) (*upload.Result, error)
}

// MaterialHandler handles material listing and uploads
type MaterialHandler struct {
	store       MaterialLister
	uploader    Uploader
	cache       LectureCache
	maxFileSize int64
	maxFiles    int
	logger      *logger.Logger
}

// NewMaterialHandler creates a new material handler. cache may be nil.
func NewMaterialHandler(
	store MaterialLister,
	uploader Uploader,
	cache LectureCache,
	maxFileSize int64,
	maxFiles int,
	log *logger.Logger,
) *MaterialHandler {
	return &MaterialHandler{
		store:       store,
		uploader:    uploader,
		cache:       cache,
		maxFileSize: maxFileSize,
		maxFiles:    maxFiles,
		logger:      log,
	}
}

// ListResponse is the body of GET /api/materials
type ListResponse struct {
	Data  []models.MaterialListing `json:"data"`
	Total int                      `json:"total"`
}

// UploadResponse is the body of a successful upload
type UploadResponse struct {
	Data    *upload.Result `json:"data"`
	Message string         `json:"message"`
}

// List handles GET /api/materials
func (mh *MaterialHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "list_materials",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	materials, err := mh.store.ListMaterials(ctx)
	if err != nil {
		span.RecordError(err)
		mh.logger.Error("failed to list materials", "error", err)
		apperr.Write(w, err, "failed to load material data")
		return
	}

	apperr.WriteJSON(w, http.StatusOK, ListResponse{Data: materials, Total: len(materials)})
}

// Upload handles POST /api/materials/upload
func (mh *MaterialHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "upload_materials",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, mh.maxFileSize*int64(mh.maxFiles)+formOverhead)

	files, meta, err := mh.readForm(r)
	if err != nil {
		apperr.Write(w, err, "")
		return
	}
	span.SetAttributes(attribute.Int("file_count", len(files)))

	result, err := mh.uploader.Upload(ctx, files, meta)
	if err != nil {
		if result != nil {
			mh.logger.Error("every file in the upload failed", "failed_files", result.FailedFiles)
		}
		apperr.Write(w, err, "failed to upload files")
		return
	}

	mh.invalidateLectures(ctx, result.UploadedFiles)

	apperr.WriteJSON(w, http.StatusCreated, UploadResponse{
		Data:    result,
		Message: fmt.Sprintf("%d file(s) uploaded successfully", result.TotalUploaded),
	})
}

// readForm parses the multipart body into files and metadata. A request
// that is not multipart simply carries no files.
func (mh *MaterialHandler) readForm(r *http.Request) ([]upload.File, upload.Metadata, error) {
	var meta upload.Metadata

	err := r.ParseMultipartForm(multipartMemory)
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return nil, meta, apperr.Validation(apperr.CodeFileTooLarge,
			fmt.Sprintf("file is too large: the maximum upload size is %s", naming.FormatSize(mh.maxFileSize)))
	case errors.Is(err, http.ErrNotMultipart):
		return nil, meta, nil
	case err != nil:
		return nil, meta, apperr.Validation(apperr.CodeValidation, "malformed multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	meta = upload.Metadata{
		Title:       r.FormValue("title"),
		Content:     r.FormValue("content"),
		LectureID:   r.FormValue("lectureId"),
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
	}

	headers := r.MultipartForm.File[filesField]
	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, meta, apperr.Validation(apperr.CodeValidation, "could not read uploaded file")
		}
		files = append(files, upload.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, meta, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (mh *MaterialHandler) invalidateLectures(ctx context.Context, uploaded []models.Material) {
	if mh.cache == nil {
		return
	}
	seen := make(map[int64]struct{})
	for _, m := range uploaded {
		if m.LectureID == nil {
			continue
		}
		if _, ok := seen[*m.LectureID]; ok {
			continue
		}
		seen[*m.LectureID] = struct{}{}
		if err := mh.cache.InvalidateLecture(ctx, *m.LectureID); err != nil {
			// Log error but don't fail the request
			mh.logger.Warn("failed to invalidate lecture cache", "lecture_id", *m.LectureID, "error", err)
		}
	}
}
