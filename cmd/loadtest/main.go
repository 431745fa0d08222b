package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/analytics"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	TopK        int
	// GetEvery sends every Nth request as GET /query; 0 sends only POSTs.
	GetEvery int
	Queries  []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     *analytics.Window
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats(samples int) *Stats {
	return &Stats{
		latencies:   analytics.NewWindow(samples),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	s.latencies.Add(duration)

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

var defaultQueries = []string{
	"monitoring plan",
	"baseline scenario",
	"leakage emissions",
	"project boundary",
	"flare efficiency",
	"methane destruction",
	"additionality demonstration",
	"emission factor",
	"annual inspection",
	"grid electricity",
	"sampling frequency",
	"quality assurance",
}

func main() {
	baseURL := flag.String("url", "http://127.0.0.1:8000", "base URL of the query server")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	topK := flag.Int("k", 5, "top_k sent with each query")
	getEvery := flag.Int("get-every", 4, "send every Nth request as GET (0 for POST only)")
	samples := flag.Int("samples", 100000, "latency samples kept for percentiles")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		TopK:        *topK,
		GetEvery:    *getEvery,
		Queries:     defaultQueries,
	}

	fmt.Println("=== Methodology Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := runLoadTest(context.Background(), cfg, NewStats(*samples), os.Stdout)
	printReport(os.Stdout, stats, cfg.Duration)
	if stats.totalRequests.Load() == 0 {
		os.Exit(1)
	}
}

func runLoadTest(ctx context.Context, cfg Config, stats *Stats, progress io.Writer) *Stats {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Fprint(progress, "Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			n := workerID
			for ctx.Err() == nil {
				query := cfg.Queries[n%len(cfg.Queries)]
				useGet := cfg.GetEvery > 0 && n%cfg.GetEvery == 0
				n++

				req, err := newQueryRequest(ctx, cfg, query, useGet)
				if err != nil {
					stats.RecordRequest(0, 0, err)
					continue
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(elapsed, 0, err)
					}
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.RecordRequest(elapsed, resp.StatusCode, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Fprint(progress, ".")
			}
		}
	}()

	wg.Wait()
	fmt.Fprintln(progress, " done!")
	fmt.Fprintln(progress)
	return stats
}

// newQueryRequest builds either GET /query?text=...&top_k=... or a
// POST /query JSON body.
func newQueryRequest(ctx context.Context, cfg Config, query string, useGet bool) (*http.Request, error) {
	if useGet {
		q := url.Values{}
		q.Set("text", query)
		q.Set("top_k", fmt.Sprint(cfg.TopK))
		return http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/query?"+q.Encode(), nil)
	}
	body, err := json.Marshal(map[string]any{"query": query, "top_k": cfg.TopK})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func printReport(w io.Writer, stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", errors)
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	if ws := stats.latencies.Stats(); ws.Samples > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency (ms) ===")
		fmt.Fprintf(w, "Mean:   %.3f\n", ws.MeanMs)
		fmt.Fprintf(w, "P50:    %.3f\n", ws.P50Ms)
		fmt.Fprintf(w, "P95:    %.3f\n", ws.P95Ms)
		fmt.Fprintf(w, "P99:    %.3f\n", ws.P99Ms)
		fmt.Fprintf(w, "Max:    %.3f\n", ws.MaxMs)
		if ws.Samples < int(total) {
			fmt.Fprintf(w, "(last %d of %d samples)\n", ws.Samples, total)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the query server running?")
	}
}
