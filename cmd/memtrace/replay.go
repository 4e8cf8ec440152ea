package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"memtrace/internal/logger"
	"memtrace/internal/output/rawcapture"
	"memtrace/internal/output/redislist"
)

func runReplay(args []string) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	input := fs.String("input", "", "Raw capture path (defaults to replay_capture.file.path)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, _ := loadConfig(*configArg)
	p := cfg.Memtrace.Producer
	if *input == "" {
		*input = cfg.Memtrace.ReplayCapture.File.Path
	}

	r, err := rawcapture.OpenReader(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open capture: %v\n", err)
		return 1
	}
	defer r.Close()

	w, err := redislist.NewWriter(redislist.Config{
		Addr:     p.Redis.Addr,
		Password: p.Redis.Password,
		DB:       p.Redis.DB,
		Key:      p.Redis.Key,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create producer: %v\n", err)
		return 1
	}
	defer w.Close()

	n, err := replay(context.Background(), r, w, p.BatchSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay failed after %d payloads: %v\n", n, err)
		return 1
	}
	logger.Infof("Replayed %d payloads from %s to %s", n, *input, p.Redis.Key)
	fmt.Printf("replayed payloads=%d key=%s\n", n, p.Redis.Key)
	return 0
}

type payloadSource interface {
	Next() ([]byte, error)
}

type payloadSink interface {
	WritePayloads(ctx context.Context, payloads [][]byte) error
}

// replay copies payloads verbatim, including ones that fail to decode.
func replay(ctx context.Context, r payloadSource, w payloadSink, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	total := 0
	var batch [][]byte
	for {
		payload, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}
		batch = append(batch, payload)
		if len(batch) >= batchSize {
			if err := w.WritePayloads(ctx, batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = nil
		}
	}
	if len(batch) > 0 {
		if err := w.WritePayloads(ctx, batch); err != nil {
			return total, err
		}
		total += len(batch)
	}
	return total, nil
}
