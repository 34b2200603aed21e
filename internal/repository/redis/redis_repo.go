package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const progressKeyPrefix = "progress:"

// ProgressRepo keeps the in-flight progress fraction for a document in
// redis. Entries carry a TTL so a crashed worker cannot leave stale
// progress visible forever; durable document state never lives here.
type ProgressRepo struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewProgressRepo(client *redis.Client, ttl time.Duration) *ProgressRepo {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ProgressRepo{Client: client, TTL: ttl}
}

func progressKey(documentID string) string {
	return progressKeyPrefix + documentID
}

func (r *ProgressRepo) SetProgress(ctx context.Context, documentID string, fraction float64) error {
	val := strconv.FormatFloat(fraction, 'f', -1, 64)
	return r.Client.Set(ctx, progressKey(documentID), val, r.TTL).Err()
}

// GetProgress returns the tracked fraction and whether an entry exists.
// Absence is meaningful to callers and is not reported as 0.0.
func (r *ProgressRepo) GetProgress(ctx context.Context, documentID string) (float64, bool, error) {
	val, err := r.Client.Get(ctx, progressKey(documentID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get progress: %w", err)
	}
	fraction, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse progress %q: %w", val, err)
	}
	return fraction, true, nil
}

func (r *ProgressRepo) ClearProgress(ctx context.Context, documentID string) error {
	return r.Client.Del(ctx, progressKey(documentID)).Err()
}
