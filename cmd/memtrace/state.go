package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"memtrace/internal/allocstate"
)

func runState(args []string) int {
	fs := flag.NewFlagSet("state", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	since := fs.Duration("since", 10*time.Minute, "Only allocators updated within this duration")
	limit := fs.Int64("limit", 1000, "Maximum allocators to read")
	ratio := fs.Float64("ratio", 0.5, "Deferred ratio that marks an allocator as under pressure")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, _ := loadConfig(*configArg)
	m := cfg.Memtrace

	store, err := allocstate.NewRedisStore(allocstate.RedisConfig{
		Addr:      m.Input.Redis.Addr,
		Password:  m.Input.Redis.Password,
		DB:        m.Input.Redis.DB,
		KeyPrefix: m.State.KeyPrefix,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open allocator state: %v\n", err)
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	states, err := store.FetchDirtySince(ctx, time.Now().Add(-*since), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read allocator state: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	for _, c := range allocstate.BuildPressureCandidates(states, *ratio) {
		if err := enc.Encode(c); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
			return 1
		}
	}
	return 0
}
