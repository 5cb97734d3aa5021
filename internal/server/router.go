package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/maneesh/lecturebox/internal/apperr"
	"github.com/maneesh/lecturebox/internal/handlers"
	"github.com/maneesh/lecturebox/internal/logger"
	"github.com/maneesh/lecturebox/internal/metrics"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	LectureHandler  *handlers.LectureHandler
	MaterialHandler *handlers.MaterialHandler
	ShareHandler    *handlers.ShareHandler
	HealthHandler   *handlers.HealthHandler
	AllowedOrigins  []string
	Logger          *logger.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.Use(recoverer(cfg.Logger), metrics.Middleware)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apperr.Write(w, apperr.NotFound("route not found"), "")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apperr.WriteJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
			"error": &apperr.Error{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"},
		})
	})

	// Health and metrics (no tracing needed)
	router.Handle("/health", cfg.HealthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Lectures
	handle(router, "/api/lectures/{year}/{month}", cfg.LectureHandler.ByMonth, http.MethodGet)
	handle(router, "/api/lectures/{id}", cfg.LectureHandler.ByID, http.MethodGet)

	// Materials
	handle(router, "/api/materials", cfg.MaterialHandler.List, http.MethodGet)
	handle(router, "/api/materials/upload", cfg.MaterialHandler.Upload, http.MethodPost)

	// Sharing
	if cfg.ShareHandler != nil {
		handle(router, "/api/materials/{id}/share", cfg.ShareHandler.Create, http.MethodPost)
		handle(router, "/api/shares/{token}", cfg.ShareHandler.Revoke, http.MethodDelete)
		handle(router, "/shared/{token}", cfg.ShareHandler.Redeem, http.MethodGet)
	}

	return newCORS(cfg.AllowedOrigins).Handler(router)
}

func handle(router *mux.Router, path string, fn http.HandlerFunc, method string) {
	router.Handle(path, otelhttp.NewHandler(fn, method+" "+path)).Methods(method)
}

// newCORS allows every origin when none is configured
func newCORS(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Requested-With"},
	})
}

// recoverer turns a panic into a sanitized 500
func recoverer(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic while serving request", "method", r.Method, "path", r.URL.Path, "panic", rec)
					apperr.Write(w, apperr.Internal("internal server error"), "")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
