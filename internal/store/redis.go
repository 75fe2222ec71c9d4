package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PlateSummary is the cached quick view of a processed plate, keyed by
// qPCR barcode.
type PlateSummary struct {
	RunID          string         `json:"run_id"`
	SampleBarcode  string         `json:"sample_barcode"`
	QPCRBarcode    string         `json:"qpcr_barcode"`
	Protocol       string         `json:"protocol"`
	ControlsPassed bool           `json:"controls_passed"`
	Experimental   bool           `json:"experimental"`
	Contaminated   bool           `json:"contaminated"`
	CallCounts     map[string]int `json:"call_counts"`
	ProcessedAt    time.Time      `json:"processed_at"`
}

// RedisStore tracks which plates have been processed and caches their
// summaries. Markers never expire; summaries carry a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr, password string, db int, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

func processedKey(barcode string) string {
	return fmt.Sprintf("qpcr:processed:%s", barcode)
}

func summaryKey(barcode string) string {
	return fmt.Sprintf("qpcr:plate:%s", barcode)
}

func (r *RedisStore) MarkProcessed(ctx context.Context, barcode string) error {
	if err := r.client.Set(ctx, processedKey(barcode), "1", 0).Err(); err != nil {
		return fmt.Errorf("failed to mark %s processed: %w", barcode, err)
	}
	return nil
}

func (r *RedisStore) IsProcessed(ctx context.Context, barcode string) (bool, error) {
	count, err := r.client.Exists(ctx, processedKey(barcode)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ClearMarker removes the processed flag and any cached summary so the
// watcher picks the plate up again on its next pass.
func (r *RedisStore) ClearMarker(ctx context.Context, barcode string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, processedKey(barcode))
	pipe.Del(ctx, summaryKey(barcode))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear marker for %s: %w", barcode, err)
	}
	return nil
}

func (r *RedisStore) SaveSummary(ctx context.Context, summary *PlateSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if err := r.client.Set(ctx, summaryKey(summary.QPCRBarcode), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache summary: %w", err)
	}
	return nil
}

func (r *RedisStore) GetSummary(ctx context.Context, barcode string) (*PlateSummary, error) {
	data, err := r.client.Get(ctx, summaryKey(barcode)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("summary for %s: %w", barcode, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	var summary PlateSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}

	return &summary, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
