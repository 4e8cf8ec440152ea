package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"memtrace/config"
	"memtrace/internal/alerts"
	"memtrace/internal/allocstate"
	inputredis "memtrace/internal/input/redis"
	"memtrace/internal/logger"
	"memtrace/internal/output/alerthttp"
	"memtrace/internal/output/alertjson"
	"memtrace/internal/output/eventclickhouse"
	"memtrace/internal/output/eventjson"
	"memtrace/internal/output/rawcapture"
	"memtrace/internal/pipeline"
	"memtrace/internal/rules"
	"memtrace/internal/server"
)

func runConsumer(args []string) int {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}
	cfg, configPath := loadConfig(configArg)
	m := cfg.Memtrace

	logger.Infof("memtrace consumer starting")
	logger.Infof("Config loaded from: %s", configPath)

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         m.Input.Redis.Addr,
		Password:     m.Input.Redis.Password,
		DB:           m.Input.Redis.DB,
		Key:          m.Input.Redis.Key,
		BlockTimeout: m.Input.Redis.BlockTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create Redis consumer: %v", err)
		log.Fatalf("Failed to create Redis consumer: %v", err)
	}

	sinks := pipeline.Sinks{Events: buildEventWriter(m.Output)}

	var scorer *alerts.Scorer
	if m.Alerts.Enabled {
		scorer = alerts.NewScorer(alerts.Config{
			Window:    m.Alerts.Window,
			Threshold: m.Alerts.Threshold,
			MaxRows:   m.Alerts.MaxRows,
			Cooldown:  m.Alerts.Cooldown,
		})
		sinks.Alerts = buildAlertWriter(m.Alerts.Output)
	}

	if m.State.Enabled {
		store, err := allocstate.NewRedisStore(allocstate.RedisConfig{
			Addr:      m.Input.Redis.Addr,
			Password:  m.Input.Redis.Password,
			DB:        m.Input.Redis.DB,
			KeyPrefix: m.State.KeyPrefix,
		})
		if err != nil {
			logger.Errorf("Failed to create allocator-state store: %v", err)
			log.Fatalf("Failed to create allocator-state store: %v", err)
		}
		sinks.State = store
		logger.Infof("Allocator state enabled: prefix=%s", m.State.KeyPrefix)
	}

	if m.ReplayCapture.Enabled {
		w, err := rawcapture.NewWriter(m.ReplayCapture.File.Path)
		if err != nil {
			logger.Errorf("Failed to create raw capture writer: %v", err)
			log.Fatalf("Failed to create raw capture writer: %v", err)
		}
		sinks.Raw = w
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pipe := pipeline.NewRedisDeallocationPipeline(consumer, buildRulesEngine(m.Rules), scorer, sinks, pipeline.Options{
		Workers:       m.Pipeline.Workers,
		BatchSize:     m.Pipeline.BatchSize,
		FlushInterval: m.Pipeline.FlushInterval,
		SourceName:    "redis:" + consumer.Key(),
		Metrics:       pipeline.NewMetrics(reg),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := strings.TrimSpace(m.Metrics.ListenAddr); addr != "" {
		ready := func(ctx context.Context) error {
			_, err := consumer.Len(ctx)
			return err
		}
		go func() {
			if err := server.Serve(ctx, addr, server.NewRouter(reg, ready)); err != nil {
				logger.Errorf("HTTP listener error: %v", err)
			}
		}()
	}

	if err := pipe.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("Pipeline error: %v", err)
	}

	logger.Infof("Shutting down")
	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}
	logger.Infof("memtrace consumer stopped")
	return 0
}

func buildRulesEngine(cfg config.RulesConfig) rules.Engine {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Path) == "" {
		logger.Warnf("Rules enabled but rules.path is empty; tagging disabled")
		return nil
	}
	engine, stats, err := rules.NewSigmaEngine(cfg.Path)
	if err != nil {
		logger.Errorf("Failed to load Sigma rules from %s: %v", cfg.Path, err)
		log.Fatalf("Failed to load Sigma rules: %v", err)
	}
	logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_datasource=%d skipped_invalid=%d files=%d",
		stats.Loaded,
		stats.SkippedComplex,
		stats.SkippedDatasource,
		stats.SkippedInvalid,
		stats.TotalFiles,
	)
	if stats.Loaded == 0 {
		logger.Warnf("No compatible Sigma rules loaded; tagging is effectively disabled")
	}
	return engine
}

func buildEventWriter(cfg config.OutputConfig) pipeline.EventWriter {
	switch cfg.Mode {
	case "file":
		w, err := eventjson.NewWriter(cfg.File.Path)
		if err != nil {
			logger.Errorf("Failed to create event file writer: %v", err)
			log.Fatalf("Failed to create event file writer: %v", err)
		}
		logger.Infof("Output mode: file (%s)", cfg.File.Path)
		return w
	case "clickhouse":
		ch := cfg.ClickHouse
		w, err := eventclickhouse.NewWriter(eventclickhouse.Config{
			URL:      ch.URL,
			Database: ch.Database,
			Table:    ch.Table,
			Username: ch.Username,
			Password: ch.Password,
			Timeout:  ch.Timeout,
			Headers:  ch.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create event ClickHouse writer: %v", err)
			log.Fatalf("Failed to create event ClickHouse writer: %v", err)
		}
		logger.Infof("Output mode: clickhouse (%s/%s.%s)", ch.URL, ch.Database, ch.Table)
		return w
	default:
		log.Fatalf("Unknown output mode: %s", cfg.Mode)
	}
	return nil
}

func buildAlertWriter(cfg config.AlertOutputConfig) pipeline.AlertWriter {
	switch cfg.Mode {
	case "file":
		w, err := alertjson.NewWriter(cfg.File.Path)
		if err != nil {
			logger.Errorf("Failed to create alert file writer: %v", err)
			log.Fatalf("Failed to create alert file writer: %v", err)
		}
		logger.Infof("Alert output mode: file (%s)", cfg.File.Path)
		return w
	case "http":
		w, err := alerthttp.NewWriter(alerthttp.Config{
			URL:     cfg.HTTP.URL,
			Timeout: cfg.HTTP.Timeout,
			Headers: cfg.HTTP.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create alert HTTP writer: %v", err)
			log.Fatalf("Failed to create alert HTTP writer: %v", err)
		}
		logger.Infof("Alert output mode: http (%s)", cfg.HTTP.URL)
		return w
	default:
		log.Fatalf("Unknown alert output mode: %s", cfg.Mode)
	}
	return nil
}

