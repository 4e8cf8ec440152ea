package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"memtrace/config"
	"memtrace/internal/logger"
)

const defaultConfigFile = "memtrace.yml"

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}

	exePath, err := os.Executable()
	if err == nil {
		path := filepath.Join(filepath.Dir(exePath), defaultConfigFile)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return defaultConfigFile
}

// loadConfig loads and defaults the config, then initializes logging. A
// missing default config file yields an all-defaults config.
func loadConfig(configArg string) (*config.Config, string) {
	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		if configArg != "" || !os.IsNotExist(err) {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = &config.Config{}
		configPath = "(defaults)"
	}
	cfg.ApplyDefaults()

	l := cfg.Memtrace.Logging
	if err := logger.Init(l.Enabled, l.Level, l.File, l.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return cfg, configPath
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: memtrace <command> [flags]

commands:
  consume [config]   run the Redis consumer pipeline (default)
  produce            push JSONL deallocation events onto the Redis list
  decode             decode one encoded record and print it as JSON
  replay             push a raw capture back onto the Redis list
  analyze            offline analysis over a decoded event JSONL file
  state              print per-allocator state from Redis
`)
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "consume":
			os.Exit(runConsumer(os.Args[2:]))
		case "produce":
			os.Exit(runProducer(os.Args[2:]))
		case "decode":
			os.Exit(runDecode(os.Args[2:], os.Stdin, os.Stdout, os.Stderr))
		case "replay":
			os.Exit(runReplay(os.Args[2:]))
		case "analyze":
			os.Exit(runAnalyzer(os.Args[2:]))
		case "state":
			os.Exit(runState(os.Args[2:]))
		case "-h", "-help", "--help", "help":
			usage()
			return
		default:
			// First arg is a config path.
			os.Exit(runConsumer(os.Args[1:]))
		}
	}

	os.Exit(runConsumer(nil))
}
