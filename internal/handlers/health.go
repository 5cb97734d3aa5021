package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/maneesh/lecturebox/internal/apperr"
	"github.com/maneesh/lecturebox/internal/logger"
)

// Pinger checks that a backend is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports database, object store and cache status
type HealthHandler struct {
	db           Pinger
	cache        Pinger
	s3Configured bool
	started      time.Time
	logger       *logger.Logger

	now func() time.Time
}

// NewHealthHandler creates a new health handler. cache may be nil.
func NewHealthHandler(db Pinger, cache Pinger, s3Configured bool, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:           db,
		cache:        cache,
		s3Configured: s3Configured,
		started:      time.Now(),
		logger:       log,
		now:          time.Now,
	}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
	Database  string    `json:"database"`
	S3        string    `json:"s3"`
	Cache     string    `json:"cache,omitempty"`
}

// ServeHTTP handles GET /health
func (hh *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := hh.now()
	resp := HealthResponse{
		Timestamp: now.UTC(),
		Uptime:    now.Sub(hh.started).Seconds(),
		S3:        "not configured",
	}
	if hh.s3Configured {
		resp.S3 = "configured"
	}

	if err := hh.db.Ping(r.Context()); err != nil {
		hh.logger.Error("health check failed", "error", err)
		resp.Status = "ERROR"
		resp.Database = "disconnected"
		apperr.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Status = "OK"
	resp.Database = "connected"
	if hh.cache != nil {
		resp.Cache = "connected"
		if err := hh.cache.Ping(r.Context()); err != nil {
			hh.logger.Warn("cache ping failed", "error", err)
			resp.Cache = "disconnected"
		}
	}

	apperr.WriteJSON(w, http.StatusOK, resp)
}
