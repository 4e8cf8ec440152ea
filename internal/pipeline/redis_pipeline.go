package pipeline

import (
	"context"
	"sync"
	"time"

	"memtrace/internal/alerts"
	"memtrace/internal/logger"
	"memtrace/internal/rules"
	"memtrace/internal/transform/dealloc"
	"memtrace/pkg/models"
)

// finalFlushTimeout bounds the flush performed after the context ends.
const finalFlushTimeout = 10 * time.Second

// Options tunes the pipeline. Zero values take defaults.
type Options struct {
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
	RetryInterval time.Duration
	// SourceName is stamped on every decoded event.
	SourceName string
	Metrics    *Metrics
}

// RedisDeallocationPipeline pops encoded deallocation records, decodes and
// tags them, and writes batches to the configured sinks.
type RedisDeallocationPipeline struct {
	source  Source
	engine  rules.Engine
	scorer  *alerts.Scorer
	sinks   Sinks
	opts    Options
	metrics *Metrics
	now     func() time.Time
}

type workItem struct {
	raw   []byte
	event *models.DeallocationEvent
}

// NewRedisDeallocationPipeline creates a pipeline. engine and scorer may be nil.
func NewRedisDeallocationPipeline(source Source, engine rules.Engine, scorer *alerts.Scorer, sinks Sinks, opts Options) *RedisDeallocationPipeline {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	if opts.SourceName == "" {
		opts.SourceName = "redis"
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &RedisDeallocationPipeline{
		source:  source,
		engine:  engine,
		scorer:  scorer,
		sinks:   sinks,
		opts:    opts,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run consumes until ctx ends, then drains in-flight payloads, flushes, and
// returns ctx.Err().
func (p *RedisDeallocationPipeline) Run(ctx context.Context) error {
	logger.Infof("Redis deallocation pipeline started: workers=%d batch=%d flush=%s",
		p.opts.Workers, p.opts.BatchSize, p.opts.FlushInterval)

	msgCh := make(chan []byte, p.opts.Workers*4)
	workCh := make(chan workItem, p.opts.Workers*4)

	var producers sync.WaitGroup

	producers.Add(1)
	go func() {
		defer producers.Done()
		p.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	for i := 0; i < p.opts.Workers; i++ {
		producers.Add(1)
		go func() {
			defer producers.Done()
			p.workerLoop(msgCh, workCh)
		}()
	}

	go func() {
		producers.Wait()
		close(workCh)
	}()

	p.writeLoop(ctx, workCh)
	logger.Infof("Redis deallocation pipeline stopped")
	return ctx.Err()
}

// Close releases pipeline resources.
func (p *RedisDeallocationPipeline) Close() error {
	if p.sinks.Alerts != nil {
		if err := p.sinks.Alerts.Close(); err != nil {
			logger.Errorf("Failed to close alert writer: %v", err)
		}
	}
	if p.sinks.State != nil {
		if err := p.sinks.State.Close(); err != nil {
			logger.Errorf("Failed to close allocator-state writer: %v", err)
		}
	}
	if p.sinks.Raw != nil {
		if err := p.sinks.Raw.Close(); err != nil {
			logger.Errorf("Failed to close raw capture writer: %v", err)
		}
	}
	if p.sinks.Events != nil {
		if err := p.sinks.Events.Close(); err != nil {
			logger.Errorf("Failed to close event writer: %v", err)
		}
	}
	if p.source != nil {
		return p.source.Close()
	}
	return nil
}

func (p *RedisDeallocationPipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := p.source.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop redis message: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if payload == nil {
			continue
		}
		p.metrics.Received.Inc()
		out <- payload
	}
}

func (p *RedisDeallocationPipeline) workerLoop(in <-chan []byte, out chan<- workItem) {
	for payload := range in {
		event, err := dealloc.Parse(payload, p.opts.SourceName, p.now())
		if err != nil {
			p.metrics.DecodeErrors.Inc()
			logger.Warnf("Failed to decode deallocation record (%d bytes): %v", len(payload), err)
			out <- workItem{raw: payload}
			continue
		}

		if p.engine != nil {
			event.Tags = p.engine.Apply(event)
		}
		out <- workItem{raw: payload, event: event}
	}
}

func (p *RedisDeallocationPipeline) writeLoop(ctx context.Context, in <-chan workItem) {
	ticker := time.NewTicker(p.opts.FlushInterval)
	defer ticker.Stop()

	var (
		batchEvents []*models.DeallocationEvent
		batchState  []*models.DeallocationEvent
		batchAlerts []*models.Alert
		batchRaw    [][]byte
	)

	// Each batch is kept until its write succeeds. A final flush drops
	// whatever still fails.
	flush := func(final bool) {
		writeCtx := ctx
		if final {
			var cancel context.CancelFunc
			writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			defer cancel()
		}
		if len(batchEvents) > 0 {
			p.metrics.BatchSize.Observe(float64(len(batchEvents)))
			ok := p.retry(writeCtx, final, "events", func(c context.Context) error {
				return p.sinks.Events.WriteEvents(c, batchEvents)
			})
			if ok {
				p.metrics.EventsWritten.Add(float64(len(batchEvents)))
			}
			if ok || final {
				batchEvents = nil
			}
		}
		if p.sinks.State != nil && len(batchState) > 0 {
			ok := p.retry(writeCtx, final, "state", func(c context.Context) error {
				return p.sinks.State.WriteEvents(c, batchState)
			})
			if ok || final {
				batchState = nil
			}
		}
		if p.sinks.Alerts != nil && len(batchAlerts) > 0 {
			ok := p.retry(writeCtx, final, "alerts", func(c context.Context) error {
				return p.sinks.Alerts.WriteAlerts(c, batchAlerts)
			})
			if ok || final {
				batchAlerts = nil
			}
		}
		if p.sinks.Raw != nil && len(batchRaw) > 0 {
			ok := p.retry(writeCtx, final, "raw", func(context.Context) error {
				return p.sinks.Raw.WriteRawMessages(batchRaw)
			})
			if ok || final {
				batchRaw = nil
			}
		}
	}

	done := ctx.Done()
	for {
		select {
		case <-done:
			// Keep draining until the workers close the channel.
			done = nil
		case <-ticker.C:
			flush(ctx.Err() != nil)
		case item, ok := <-in:
			if !ok {
				flush(true)
				return
			}
			if p.sinks.Raw != nil {
				batchRaw = append(batchRaw, item.raw)
			}
			if item.event == nil {
				continue
			}
			batchEvents = append(batchEvents, item.event)
			if p.sinks.State != nil {
				batchState = append(batchState, item.event)
			}
			if p.scorer != nil {
				alertsOut := p.scorer.AddEvents([]*models.DeallocationEvent{item.event})
				if len(alertsOut) > 0 {
					p.metrics.AlertsEmitted.Add(float64(len(alertsOut)))
					batchAlerts = append(batchAlerts, alertsOut...)
				}
			}
			if len(batchEvents) >= p.opts.BatchSize {
				flush(ctx.Err() != nil)
			}
		}
	}
}

// retry calls write until it succeeds or ctx ends. A final flush makes a
// single attempt. It reports whether the write succeeded.
func (p *RedisDeallocationPipeline) retry(ctx context.Context, final bool, sink string, write func(context.Context) error) bool {
	for {
		err := write(ctx)
		if err == nil {
			return true
		}
		p.metrics.FlushFailures.WithLabelValues(sink).Inc()
		logger.Errorf("Failed to write %s batch: %v", sink, err)
		if final {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(p.opts.RetryInterval):
		}
	}
}
