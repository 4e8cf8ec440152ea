package allocstate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"memtrace/pkg/models"
)

// RedisConfig configures Redis access for allocator-state persistence.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// AllocatorState stores compact per-allocator counters for periodic analysis.
type AllocatorState struct {
	AllocatorName string    `json:"allocator_name"`
	Deallocations int64     `json:"deallocations"`
	Deferred      int64     `json:"deferred"`
	LastStepID    int64     `json:"last_step_id"`
	LastOperation string    `json:"last_operation,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// DeferredRatio is the share of deallocations that were deferred.
func (s AllocatorState) DeferredRatio() float64 {
	if s.Deallocations <= 0 {
		return 0
	}
	return float64(s.Deferred) / float64(s.Deallocations)
}

// PressureCandidate flags an allocator with a high share of deferred frees.
type PressureCandidate struct {
	AllocatorName string    `json:"allocator_name"`
	Deallocations int64     `json:"deallocations"`
	Deferred      int64     `json:"deferred"`
	DeferredRatio float64   `json:"deferred_ratio"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
	UnderPressure bool      `json:"under_pressure"`
}

// RedisStore manages writer/reader operations over allocator-state keys.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore constructs a Redis-backed allocator-state store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "memtrace:allocator_state"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis allocator-state: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix), now: time.Now}, nil
}

// WriteEvents folds a batch of events into the per-allocator counters.
func (s *RedisStore) WriteEvents(ctx context.Context, events []*models.DeallocationEvent) error {
	if len(events) == 0 {
		return nil
	}

	type delta struct {
		count, deferred int64
		last            *models.DeallocationEvent
	}
	byAllocator := make(map[string]*delta)
	var order []string
	for _, event := range events {
		if event == nil {
			continue
		}
		name := event.Allocator()
		d := byAllocator[name]
		if d == nil {
			d = &delta{}
			byAllocator[name] = d
			order = append(order, name)
		}
		d.count++
		if event.Deferred {
			d.deferred++
		}
		d.last = event
	}
	if len(order) == 0 {
		return nil
	}

	nowUnix := s.now().Unix()
	pipe := s.client.Pipeline()
	for _, name := range order {
		d := byAllocator[name]
		key := s.allocatorKey(name)
		pipe.HIncrBy(ctx, key, "deallocations", d.count)
		pipe.HIncrBy(ctx, key, "deferred", d.deferred)
		pipe.HSet(ctx, key,
			"allocator_name", name,
			"last_step_id", strconv.FormatInt(d.last.StepID, 10),
			"last_operation", d.last.Operation,
			"updated_at", strconv.FormatInt(nowUnix, 10),
		)
		pipe.ZAdd(ctx, s.dirtySetKey(), redis.Z{Score: float64(nowUnix), Member: name})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update allocator-state redis keys: %w", err)
	}
	return nil
}

// FetchDirtySince returns allocator states updated at or after since.
func (s *RedisStore) FetchDirtySince(ctx context.Context, since time.Time, limit int64) ([]AllocatorState, error) {
	if limit <= 0 {
		limit = 1000
	}
	members, err := s.client.ZRangeByScore(ctx, s.dirtySetKey(), &redis.ZRangeBy{
		Min:   strconv.FormatInt(since.Unix(), 10),
		Max:   "+inf",
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read dirty allocator-state members: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	states := make([]AllocatorState, 0, len(members))
	for _, name := range members {
		if name == "" {
			continue
		}
		hash, err := s.client.HGetAll(ctx, s.allocatorKey(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("read allocator-state %s: %w", name, err)
		}
		if len(hash) == 0 {
			continue
		}

		st := AllocatorState{AllocatorName: name, LastOperation: hash["last_operation"]}
		st.Deallocations, _ = strconv.ParseInt(hash["deallocations"], 10, 64)
		st.Deferred, _ = strconv.ParseInt(hash["deferred"], 10, 64)
		st.LastStepID, _ = strconv.ParseInt(hash["last_step_id"], 10, 64)
		if updatedUnix, _ := strconv.ParseInt(hash["updated_at"], 10, 64); updatedUnix > 0 {
			st.UpdatedAt = time.Unix(updatedUnix, 0).UTC()
		}
		states = append(states, st)
	}

	return states, nil
}

// BuildPressureCandidates flags allocators whose deferred ratio reaches ratio.
func BuildPressureCandidates(states []AllocatorState, ratio float64) []PressureCandidate {
	out := make([]PressureCandidate, 0, len(states))
	for _, st := range states {
		if st.Deallocations <= 0 {
			continue
		}
		r := st.DeferredRatio()
		out = append(out, PressureCandidate{
			AllocatorName: st.AllocatorName,
			Deallocations: st.Deallocations,
			Deferred:      st.Deferred,
			DeferredRatio: r,
			UpdatedAt:     st.UpdatedAt,
			UnderPressure: st.Deferred > 0 && r >= ratio,
		})
	}
	return out
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) allocatorKey(name string) string {
	return s.prefix + ":allocator:" + name
}

func (s *RedisStore) dirtySetKey() string {
	return s.prefix + ":dirty"
}
