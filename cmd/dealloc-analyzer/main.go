package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"memtrace/internal/analyzer"
)

func main() {
	input := flag.String("input", "output/deallocations.jsonl", "Decoded deallocation JSONL input path")
	output := flag.String("output", "output/dealloc_findings.jsonl", "Findings JSONL output path")
	rulesFile := flag.String("rules-file", "", "YAML file that defines threshold rules")
	doubleFreeOnly := flag.Bool("double-free-only", false, "Only report repeated frees of the same allocation")
	flag.Parse()

	events, err := analyzer.LoadEventsJSONL(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load deallocation events: %v\n", err)
		os.Exit(1)
	}

	var findings []analyzer.Finding
	if *doubleFreeOnly {
		findings = analyzer.DetectDoubleFrees(events)
	} else {
		var rs *analyzer.RuleSet
		if strings.TrimSpace(*rulesFile) != "" {
			rs, err = analyzer.LoadRuleSet(*rulesFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to load rules file: %v\n", err)
				os.Exit(1)
			}
		}
		findings = analyzer.Analyze(events, rs).Findings
	}

	if err := analyzer.WriteJSONLines(*output, findings); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write findings: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("analyzed events=%d findings=%d output=%s\n", len(events), len(findings), *output)
}
