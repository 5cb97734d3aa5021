package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maneesh/lecturebox/internal/models"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// LectureCacheTTL is the time-to-live for cached lecture details (5 minutes)
	LectureCacheTTL = 5 * time.Minute
)

// RedisClient wraps Redis operations with tracing
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient initializes a new Redis client
func NewRedisClient(ctx context.Context, addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test the connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Ping checks that Redis is reachable
func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func lectureKey(id int64) string {
	return fmt.Sprintf("lecture:%d", id)
}

func shareKey(token string) string {
	return fmt.Sprintf("share:%s", token)
}

// GetLecture retrieves a cached lecture detail. A miss returns nil, nil.
func (rc *RedisClient) GetLecture(ctx context.Context, id int64) (*models.LectureDetail, error) {
	ctx, span := tracer.Start(ctx, "redis.get_lecture",
		trace.WithAttributes(
			attribute.Int64("lecture_id", id),
		),
	)
	defer span.End()

	var lecture models.LectureDetail
	hit, err := rc.getJSON(ctx, lectureKey(id), &lecture)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("cache_hit", hit))
	if !hit {
		return nil, nil
	}
	return &lecture, nil
}

// SetLecture caches a lecture detail
func (rc *RedisClient) SetLecture(ctx context.Context, lecture *models.LectureDetail) error {
	ctx, span := tracer.Start(ctx, "redis.set_lecture",
		trace.WithAttributes(
			attribute.Int64("lecture_id", lecture.ID),
		),
	)
	defer span.End()

	if err := rc.setJSON(ctx, lectureKey(lecture.ID), lecture, LectureCacheTTL); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(attribute.Int64("ttl_seconds", int64(LectureCacheTTL.Seconds())))
	return nil
}

// InvalidateLecture removes a cached lecture detail
func (rc *RedisClient) InvalidateLecture(ctx context.Context, id int64) error {
	ctx, span := tracer.Start(ctx, "redis.invalidate_lecture",
		trace.WithAttributes(
			attribute.Int64("lecture_id", id),
		),
	)
	defer span.End()

	if err := rc.client.Del(ctx, lectureKey(id)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

// SaveShareToken stores a share token record for ttl
func (rc *RedisClient) SaveShareToken(ctx context.Context, token *models.ShareToken, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "redis.save_share_token",
		trace.WithAttributes(
			attribute.Int64("material_id", token.MaterialID),
		),
	)
	defer span.End()

	if err := rc.setJSON(ctx, shareKey(token.Token), token, ttl); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// GetShareToken loads a share token record. An unknown token returns nil, nil.
func (rc *RedisClient) GetShareToken(ctx context.Context, token string) (*models.ShareToken, error) {
	ctx, span := tracer.Start(ctx, "redis.get_share_token")
	defer span.End()

	var record models.ShareToken
	hit, err := rc.getJSON(ctx, shareKey(token), &record)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("found", hit))
	if !hit {
		return nil, nil
	}
	return &record, nil
}

// DeleteShareToken removes a share token and reports whether it existed
func (rc *RedisClient) DeleteShareToken(ctx context.Context, token string) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.delete_share_token")
	defer span.End()

	n, err := rc.client.Del(ctx, shareKey(token)).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to delete share token: %w", err)
	}
	return n > 0, nil
}

func (rc *RedisClient) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil // Cache miss, not an error
	} else if err != nil {
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return true, nil
}

func (rc *RedisClient) setJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := rc.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}
