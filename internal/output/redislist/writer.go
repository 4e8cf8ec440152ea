package redislist

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"memtrace/pkg/memlog"
)

// Config configures the Redis list producer.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Writer pushes encoded deallocation records onto a Redis list.
type Writer struct {
	client *redis.Client
	key    string
}

// NewWriter creates a list producer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Writer{client: client, key: cfg.Key}, nil
}

// WriteRecords encodes and appends records in one pipeline round trip.
func (w *Writer) WriteRecords(ctx context.Context, recs []*memlog.RawDeallocation) error {
	if len(recs) == 0 {
		return nil
	}
	payloads := make([][]byte, 0, len(recs))
	for _, rec := range recs {
		payloads = append(payloads, rec.Marshal())
	}
	return w.WritePayloads(ctx, payloads)
}

// WritePayloads appends already-encoded payloads, e.g. from a replay capture.
func (w *Writer) WritePayloads(ctx context.Context, payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	pipe := w.client.Pipeline()
	for _, p := range payloads {
		pipe.RPush(ctx, w.key, p)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push %d payloads to %s: %w", len(payloads), w.key, err)
	}
	return nil
}

// Close closes Redis resources.
func (w *Writer) Close() error {
	return w.client.Close()
}
