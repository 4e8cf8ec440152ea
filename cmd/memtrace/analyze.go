package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"memtrace/internal/analyzer"
)

func runAnalyzer(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	input := fs.String("input", "output/deallocations.jsonl", "Decoded deallocation JSONL input path")
	output := fs.String("output", "output/dealloc_findings.jsonl", "Findings JSONL output path")
	summaryOutput := fs.String("summary-output", "", "Optional per-allocator summary JSONL output path")
	rulesFile := fs.String("rules-file", "", "YAML file that defines threshold rules")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	events, err := analyzer.LoadEventsJSONL(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load deallocation events: %v\n", err)
		return 1
	}

	var rs *analyzer.RuleSet
	if strings.TrimSpace(*rulesFile) != "" {
		rs, err = analyzer.LoadRuleSet(*rulesFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load rules file: %v\n", err)
			return 1
		}
	}

	report := analyzer.Analyze(events, rs)
	if strings.TrimSpace(*summaryOutput) != "" {
		if err := analyzer.WriteJSONLines(*summaryOutput, report.Summaries); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write summaries: %v\n", err)
			return 1
		}
	}
	if err := analyzer.WriteJSONLines(*output, report.Findings); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write findings: %v\n", err)
		return 1
	}

	fmt.Printf("analyzed events=%d allocators=%d findings=%d output=%s\n",
		report.Events, len(report.Summaries), len(report.Findings), *output)
	return 0
}
