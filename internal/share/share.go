// Package share issues, redeems and revokes time limited download links for
// materials. A token is active until it expires or is revoked. Expired
// records are kept for a grace period so a late visitor gets "expired"
// rather than "unknown".
package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maneesh/lecturebox/internal/apperr"
	"github.com/maneesh/lecturebox/internal/logger"
	"github.com/maneesh/lecturebox/internal/models"
	"github.com/maneesh/lecturebox/internal/storage"
)

const (
	// DownloadURLExpiry bounds the presigned URL a redeemed token redirects to
	DownloadURLExpiry = time.Hour
	expiredGrace      = 24 * time.Hour
)

type MaterialStore interface {
	GetMaterial(ctx context.Context, id int64) (*models.Material, error)
	IncrementDownloadCount(ctx context.Context, id int64) error
}

type TokenStore interface {
	SaveShareToken(ctx context.Context, token *models.ShareToken, ttl time.Duration) error
	GetShareToken(ctx context.Context, token string) (*models.ShareToken, error)
	DeleteShareToken(ctx context.Context, token string) (bool, error)
}

type Presigner interface {
	PresignDownload(ctx context.Context, key, fileName string, expiry time.Duration) (string, error)
}

// Service manages share tokens
type Service struct {
	materials MaterialStore
	tokens    TokenStore
	presigner Presigner
	expiry    time.Duration
	logger    *logger.Logger

	now      func() time.Time
	newToken func() string
}

// NewService creates a share service whose tokens live for expiry
func NewService(materials MaterialStore, tokens TokenStore, presigner Presigner, expiry time.Duration, log *logger.Logger) *Service {
	return &Service{
		materials: materials,
		tokens:    tokens,
		presigner: presigner,
		expiry:    expiry,
		logger:    log,
		now:       time.Now,
		newToken:  uuid.NewString,
	}
}

// Issue creates a new share token for a material
func (s *Service) Issue(ctx context.Context, materialID int64) (*models.ShareToken, error) {
	material, err := s.materials.GetMaterial(ctx, materialID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("file not found")
	} else if err != nil {
		return nil, fmt.Errorf("failed to load material: %w", err)
	}

	now := s.now().UTC()
	token := &models.ShareToken{
		Token:      s.newToken(),
		MaterialID: material.ID,
		FileName:   material.Name,
		S3Key:      material.S3Key,
		ExpiresAt:  now.Add(s.expiry),
		CreatedAt:  now,
	}
	if err := s.tokens.SaveShareToken(ctx, token, s.expiry+expiredGrace); err != nil {
		return nil, fmt.Errorf("failed to save share token: %w", err)
	}

	s.logger.Info("share link issued", "material_id", material.ID, "expires_at", token.ExpiresAt)
	return token, nil
}

// Redeem validates a token, counts the download and returns a presigned
// download URL
func (s *Service) Redeem(ctx context.Context, token string) (string, error) {
	record, err := s.tokens.GetShareToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to load share token: %w", err)
	}
	if record == nil {
		return "", apperr.NotFound("invalid share link")
	}

	if s.now().After(record.ExpiresAt) {
		if _, err := s.tokens.DeleteShareToken(ctx, token); err != nil {
			s.logger.Warn("failed to delete expired share token", "material_id", record.MaterialID, "error", err)
		}
		return "", apperr.Gone("share link has expired")
	}

	if err := s.materials.IncrementDownloadCount(ctx, record.MaterialID); errors.Is(err, storage.ErrNotFound) {
		return "", apperr.NotFound("file not found")
	} else if err != nil {
		return "", fmt.Errorf("failed to count download: %w", err)
	}

	url, err := s.presigner.PresignDownload(ctx, record.S3Key, record.FileName, DownloadURLExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to create download url: %w", err)
	}
	return url, nil
}

// Revoke deletes a token so it can no longer be redeemed
func (s *Service) Revoke(ctx context.Context, token string) error {
	deleted, err := s.tokens.DeleteShareToken(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to revoke share token: %w", err)
	}
	if !deleted {
		return apperr.NotFound("invalid share link")
	}
	return nil
}
