package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"memtrace/internal/input/jsonl"
	"memtrace/internal/logger"
	"memtrace/internal/output/redislist"
	"memtrace/pkg/memlog"
)

func runProducer(args []string) int {
	fs := flag.NewFlagSet("produce", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	input := fs.String("input", "-", "JSONL deallocation events (- for stdin)")
	batch := fs.Int("batch", 0, "Records per Redis round trip (defaults to producer.batch_size)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, _ := loadConfig(*configArg)
	p := cfg.Memtrace.Producer
	if *batch > 0 {
		p.BatchSize = *batch
	}

	src := io.Reader(os.Stdin)
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open input: %v\n", err)
			return 1
		}
		defer f.Close()
		src = f
	}

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

	n, err := produce(context.Background(), jsonl.NewReader(src), w, p.BatchSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "produce failed after %d records: %v\n", n, err)
		return 1
	}
	logger.Infof("Produced %d records to %s", n, p.Redis.Key)
	fmt.Printf("produced records=%d key=%s\n", n, p.Redis.Key)
	return 0
}

type recordSink interface {
	WriteRecords(ctx context.Context, recs []*memlog.RawDeallocation) error
}

// produce streams records from r into w in batches of batchSize.
func produce(ctx context.Context, r *jsonl.Reader, w recordSink, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	total := 0
	batch := make([]*memlog.RawDeallocation, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.WriteRecords(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}
		batch = append(batch, rec)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	return total, flush()
}
