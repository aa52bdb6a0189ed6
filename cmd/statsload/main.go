// Command statsload drives a running statsd with a mixed search and
// statistics workload, optionally seeding it with synthetic issues first,
// and prints throughput, latency and cache hit figures.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Seed        int
	Requests    []Request
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the statistics service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	seed := flag.Int("seed", 0, "number of synthetic issues to ingest before the run")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Seed:        *seed,
		Requests:    defaultWorkload(),
	}

	fmt.Println("=== Issue Statistics Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Requests:    %d distinct\n", len(cfg.Requests))
	fmt.Println()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	if cfg.Seed > 0 {
		fmt.Printf("Seeding %d issues...\n", cfg.Seed)
		if err := seedIssues(context.Background(), client, cfg.BaseURL, cfg.Seed); err != nil {
			fmt.Fprintf(os.Stderr, "seeding failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()
	}

	stats := runLoadTest(client, cfg)
	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}
