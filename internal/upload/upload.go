// Package upload ingests material files: each accepted file is stored in
// the object store and then recorded in the relational store.
//
// Files are processed one at a time and independently. A failure on one file
// never aborts the batch, and nothing is retried or rolled back. When the
// object upload succeeds but the metadata insert fails, the stored object is
// left behind (orphaned). That gap is logged and counted, not compensated.
package upload

import (
	"context"

	"github.com/maneesh/lecturebox/internal/apperr"
	"github.com/maneesh/lecturebox/internal/logger"
	"github.com/maneesh/lecturebox/internal/metrics"
	"github.com/maneesh/lecturebox/internal/models"
	"github.com/maneesh/lecturebox/internal/naming"
	"github.com/maneesh/lecturebox/internal/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("lecturebox-upload")

// ObjectStore stores file bytes under a key and returns the object location
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// MaterialStore persists material metadata. InsertMaterial fills in the
// assigned id and upload date.
type MaterialStore interface {
	InsertMaterial(ctx context.Context, m *models.Material) error
}

// File is one received payload
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Metadata is shared by every file of a batch, as received from the client
type Metadata struct {
	Title       string
	Content     string
	LectureID   string
	Category    string
	Description string
}

// Failure describes a file that was not stored
type Failure struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

// Outcome is the result of processing one file: exactly one of Material and
// Failure is set
type Outcome struct {
	Material *models.Material
	Failure  *Failure
}

// Result aggregates the outcomes of a batch
type Result struct {
	UploadedFiles []models.Material `json:"uploadedFiles"`
	FailedFiles   []Failure         `json:"failedFiles"`
	TotalUploaded int               `json:"totalUploaded"`
	TotalFailed   int               `json:"totalFailed"`
}

func (r *Result) add(o Outcome) {
	if o.Material != nil {
		r.UploadedFiles = append(r.UploadedFiles, *o.Material)
	} else {
		r.FailedFiles = append(r.FailedFiles, *o.Failure)
	}
	r.TotalUploaded = len(r.UploadedFiles)
	r.TotalFailed = len(r.FailedFiles)
}

// Options bounds what a batch may contain
type Options struct {
	MaxFileSize int64
	MaxFiles    int
}

// Service is the upload orchestrator
type Service struct {
	objects   ObjectStore
	materials MaterialStore
	opts      Options
	logger    *logger.Logger
	newKey    func(originalName string) string
}

// NewService creates a new upload orchestrator
func NewService(objects ObjectStore, materials MaterialStore, opts Options, log *logger.Logger) *Service {
	return &Service{
		objects:   objects,
		materials: materials,
		opts:      opts,
		logger:    log,
		newKey:    naming.StorageKey,
	}
}

// Upload validates the batch and ingests every acceptable file.
//
// Validation errors are returned before any store is touched. If every file
// is rejected the first rejection is returned. If at least one file is stored
// the result reports both lists and err is nil. If none is stored the result
// is returned together with an UPLOAD_FAILED error carrying the failures.
func (s *Service) Upload(ctx context.Context, files []File, meta Metadata) (*Result, error) {
	ctx, span := tracer.Start(ctx, "upload.batch",
		trace.WithAttributes(
			attribute.Int("file_count", len(files)),
		),
	)
	defer span.End()

	if err := validation.FileCount(len(files), s.opts.MaxFiles); err != nil {
		return nil, err
	}

	result := &Result{UploadedFiles: []models.Material{}, FailedFiles: []Failure{}}

	var (
		accepted []File
		firstErr error
	)
	for _, f := range files {
		if err := validation.File(f.ContentType, int64(len(f.Data)), s.opts.MaxFileSize); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			result.add(Outcome{Failure: &Failure{FileName: f.Name, Error: errorMessage(err)}})
			continue
		}
		accepted = append(accepted, f)
	}
	if len(accepted) == 0 {
		metrics.UploadFiles.WithLabelValues(metrics.OutcomeRejected).Add(float64(len(files)))
		return nil, firstErr
	}

	title, err := validation.Title(meta.Title)
	if err != nil {
		return nil, err
	}
	lectureID, err := validation.LectureID(meta.LectureID)
	if err != nil {
		return nil, err
	}
	metrics.UploadFiles.WithLabelValues(metrics.OutcomeRejected).Add(float64(result.TotalFailed))

	base := models.Material{
		Title:       title,
		Content:     meta.Content,
		LectureID:   lectureID,
		Category:    meta.Category,
		Description: meta.Description,
		UploadedBy:  models.DefaultUploader,
	}
	if base.Category == "" {
		base.Category = models.DefaultCategory
	}

	for _, f := range accepted {
		result.add(s.processFile(ctx, f, base))
	}

	span.SetAttributes(
		attribute.Int("uploaded", result.TotalUploaded),
		attribute.Int("failed", result.TotalFailed),
	)

	if result.TotalUploaded == 0 {
		return result, apperr.UploadFailed("all file uploads failed", result.FailedFiles)
	}
	return result, nil
}

func (s *Service) processFile(ctx context.Context, f File, base models.Material) Outcome {
	ctx, span := tracer.Start(ctx, "upload.process_file",
		trace.WithAttributes(
			attribute.String("file_name", f.Name),
			attribute.Int("size_bytes", len(f.Data)),
		),
	)
	defer span.End()

	fail := func(err error) Outcome {
		span.RecordError(err)
		metrics.UploadFiles.WithLabelValues(metrics.OutcomeFailed).Inc()
		return Outcome{Failure: &Failure{FileName: f.Name, Error: err.Error()}}
	}

	key := s.newKey(f.Name)
	span.SetAttributes(attribute.String("s3_key", key))

	location, err := s.objects.Upload(ctx, key, f.Data, f.ContentType)
	if err != nil {
		s.logger.Error("object upload failed", "file_name", f.Name, "s3_key", key, "error", err)
		return fail(err)
	}

	material := base
	material.Name = f.Name
	material.OriginalName = f.Name
	material.SizeBytes = int64(len(f.Data))
	material.Size = naming.FormatSize(material.SizeBytes)
	material.Type = f.ContentType
	material.Extension = naming.Extension(f.Name)
	material.S3Key = key
	material.S3URL = location

	if err := s.materials.InsertMaterial(ctx, &material); err != nil {
		s.logger.Warn("metadata insert failed, stored object is orphaned",
			"file_name", f.Name, "s3_key", key, "error", err)
		metrics.OrphanedObjects.Inc()
		return fail(err)
	}

	metrics.UploadFiles.WithLabelValues(metrics.OutcomeUploaded).Inc()
	s.logger.Info("material uploaded",
		"material_id", material.ID,
		"file_name", f.Name,
		"title", material.Title,
		"upload_date", material.UploadDate,
	)
	return Outcome{Material: &material}
}

func errorMessage(err error) string {
	if appErr, ok := apperr.As(err); ok {
		return appErr.Message
	}
	return err.Error()
}
