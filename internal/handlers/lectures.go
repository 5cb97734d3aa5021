package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/maneesh/lecturebox/internal/apperr"
	"github.com/maneesh/lecturebox/internal/logger"
	"github.com/maneesh/lecturebox/internal/models"
	"github.com/maneesh/lecturebox/internal/storage"
	"github.com/maneesh/lecturebox/internal/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LectureStore reads lectures and their materials
type LectureStore interface {
	ListLecturesByMonth(ctx context.Context, year, month int) ([]models.MonthLecture, error)
	GetLecture(ctx context.Context, id int64) (*models.Lecture, error)
	ListLectureMaterials(ctx context.Context, lectureID int64) ([]models.MaterialSummary, error)
}

// LectureCache caches lecture details. Errors are never fatal to a request.
type LectureCache interface {
	GetLecture(ctx context.Context, id int64) (*models.LectureDetail, error)
	SetLecture(ctx context.Context, lecture *models.LectureDetail) error
	InvalidateLecture(ctx context.Context, id int64) error
}

// LectureHandler handles lecture lookups
type LectureHandler struct {
	store  LectureStore
	cache  LectureCache
	logger *logger.Logger
}

// NewLectureHandler creates a new lecture handler. cache may be nil.
func NewLectureHandler(store LectureStore, cache LectureCache, log *logger.Logger) *LectureHandler {
	return &LectureHandler{
		store:  store,
		cache:  cache,
		logger: log,
	}
}

// MonthResponse is the body of GET /api/lectures/{year}/{month}
type MonthResponse struct {
	Data  []models.MonthLecture `json:"data"`
	Total int                   `json:"total"`
	Year  int                   `json:"year"`
	Month int                   `json:"month"`
}

// ByMonth handles GET /api/lectures/{year}/{month}
func (lh *LectureHandler) ByMonth(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "lectures_by_month",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	vars := mux.Vars(r)
	year, month, err := validation.YearMonth(vars["year"], vars["month"])
	if err != nil {
		apperr.Write(w, err, "")
		return
	}

	span.SetAttributes(attribute.Int("year", year), attribute.Int("month", month))

	lectures, err := lh.store.ListLecturesByMonth(ctx, year, month)
	if err != nil {
		span.RecordError(err)
		lh.logger.Error("failed to list lectures", "year", year, "month", month, "error", err)
		apperr.Write(w, err, "failed to load lecture data")
		return
	}

	apperr.WriteJSON(w, http.StatusOK, MonthResponse{
		Data:  lectures,
		Total: len(lectures),
		Year:  year,
		Month: month,
	})
}

// ByID handles GET /api/lectures/{id}
func (lh *LectureHandler) ByID(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "lecture_by_id",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	id, err := validation.ID(mux.Vars(r)["id"], "lecture")
	if err != nil {
		apperr.Write(w, err, "")
		return
	}

	span.SetAttributes(attribute.Int64("lecture_id", id))

	lecture, err := lh.getLectureDetail(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		apperr.Write(w, apperr.NotFound("lecture not found"), "")
		return
	} else if err != nil {
		span.RecordError(err)
		lh.logger.Error("failed to load lecture", "lecture_id", id, "error", err)
		apperr.Write(w, err, "failed to load lecture data")
		return
	}

	apperr.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": lecture})
}

func (lh *LectureHandler) getLectureDetail(ctx context.Context, id int64) (*models.LectureDetail, error) {
	// Try cache first
	if lh.cache != nil {
		cached, err := lh.cache.GetLecture(ctx, id)
		if err != nil {
			lh.logger.Warn("lecture cache lookup failed", "lecture_id", id, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	lecture, err := lh.store.GetLecture(ctx, id)
	if err != nil {
		return nil, err
	}

	materials, err := lh.store.ListLectureMaterials(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &models.LectureDetail{Lecture: *lecture, Materials: materials}

	// Update cache for next time
	if lh.cache != nil {
		if err := lh.cache.SetLecture(ctx, detail); err != nil {
			lh.logger.Warn("failed to update lecture cache", "lecture_id", id, "error", err)
		}
	}

	return detail, nil
}
