package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/maneesh/lecturebox/internal/apperr"
	"github.com/maneesh/lecturebox/internal/logger"
	"github.com/maneesh/lecturebox/internal/models"
	"github.com/maneesh/lecturebox/internal/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Sharer issues, redeems and revokes share links
type Sharer interface {
	Issue(ctx context.Context, materialID int64) (*models.ShareToken, error)
	Redeem(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// ShareHandler handles share link routes
type ShareHandler struct {
	sharer  Sharer
	baseURL string
	logger  *logger.Logger
}

// NewShareHandler creates a new share handler. When baseURL is empty the
// share URL is built from the incoming request.
func NewShareHandler(sharer Sharer, baseURL string, log *logger.Logger) *ShareHandler {
	return &ShareHandler{
		sharer:  sharer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log,
	}
}

// ShareLink is the client view of an issued token
type ShareLink struct {
	FileID     int64     `json:"fileId"`
	FileName   string    `json:"fileName"`
	ShareURL   string    `json:"shareUrl"`
	ShareToken string    `json:"shareToken"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Create handles POST /api/materials/{id}/share
func (sh *ShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "create_share_link",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	id, err := validation.ID(mux.Vars(r)["id"], "file")
	if err != nil {
		apperr.Write(w, err, "")
		return
	}
	span.SetAttributes(attribute.Int64("material_id", id))

	token, err := sh.sharer.Issue(ctx, id)
	if err != nil {
		span.RecordError(err)
		if _, ok := apperr.As(err); !ok {
			sh.logger.Error("failed to create share link", "material_id", id, "error", err)
		}
		apperr.Write(w, err, "failed to create share link")
		return
	}

	apperr.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"data": ShareLink{
			FileID:     token.MaterialID,
			FileName:   token.FileName,
			ShareURL:   sh.shareURL(r, token.Token),
			ShareToken: token.Token,
			ExpiresAt:  token.ExpiresAt,
			CreatedAt:  token.CreatedAt,
		},
		"message": "share link created",
	})
}

// Redeem handles GET /shared/{token} by redirecting to the file
func (sh *ShareHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "redeem_share_link",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	url, err := sh.sharer.Redeem(ctx, mux.Vars(r)["token"])
	if err != nil {
		span.RecordError(err)
		if _, ok := apperr.As(err); !ok {
			sh.logger.Error("failed to redeem share link", "error", err)
		}
		apperr.Write(w, err, "failed to download file")
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// Revoke handles DELETE /api/shares/{token}
func (sh *ShareHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "revoke_share_link",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	token := mux.Vars(r)["token"]
	if err := sh.sharer.Revoke(ctx, token); err != nil {
		span.RecordError(err)
		if _, ok := apperr.As(err); !ok {
			sh.logger.Error("failed to revoke share link", "error", err)
		}
		apperr.Write(w, err, "failed to revoke share link")
		return
	}

	apperr.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":    map[string]string{"token": token},
		"message": "share link revoked",
	})
}

func (sh *ShareHandler) shareURL(r *http.Request, token string) string {
	base := sh.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
			scheme = fwd
		}
		base = scheme + "://" + r.Host
	}
	return base + "/shared/" + token
}
