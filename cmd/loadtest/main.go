// Command loadtest replays typing against the search service: each worker
// picks a symbol name and requests every prefix of it in turn, the way a
// search box issues one query per keystroke.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/query"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Names       []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	degraded      atomic.Int64
	truncated     atomic.Int64
	zeroResults   atomic.Int64
	idle          atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
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

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

// RecordResult tallies the body of a successful search.
func (s *Stats) RecordResult(r query.Result) {
	switch {
	case r.Idle:
		s.idle.Add(1)
	case r.Degraded:
		s.degraded.Add(1)
	case r.Total == 0:
		s.zeroResults.Add(1)
	}
	if r.Truncated {
		s.truncated.Add(1)
	}
}

var defaultNames = []string{
	"Next", "NextUInt", "NextVec2", "NextChild", "NumSamples", "Normals",
	"ConfigNode", "Random", "RandomSampler", "StratifiedSampler",
	"Sampler", "Logger", "ObjMesh", "RawMesh", "TriangleMesh", "Vec2",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	symbols := flag.String("symbols", "", "JSON-lines symbol table to draw names from")
	flag.Parse()

	names := defaultNames
	if *symbols != "" {
		syms, err := indexer.ReadSymbolFile(*symbols)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading symbols: %v\n", err)
			os.Exit(1)
		}
		names = make([]string, 0, len(syms))
		for _, sym := range syms {
			names = append(names, sym.Name)
		}
		if len(names) == 0 {
			fmt.Fprintln(os.Stderr, "symbol table is empty")
			os.Exit(1)
		}
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Names:       names,
	}

	fmt.Println("=== Symbol Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Names:       %d unique\n", len(cfg.Names))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			nameIdx := workerID

			for {
				name := cfg.Names[nameIdx%len(cfg.Names)]
				nameIdx++

				for i := 1; i <= len(name); i++ {
					select {
					case <-ctx.Done():
						return
					default:
					}
					typeKeystroke(ctx, client, cfg.BaseURL, name[:i], stats)
				}
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
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func typeKeystroke(ctx context.Context, client *http.Client, baseURL, text string, stats *Stats) {
	searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&limit=10", baseURL, url.QueryEscape(text))

	start := time.Now()
	resp, err := client.Do(mustNewRequest(ctx, searchURL))
	if err != nil {
		if ctx.Err() == nil {
			stats.RecordRequest(time.Since(start), 0, err)
		}
		return
	}
	defer resp.Body.Close()

	var result query.Result
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)
	stats.RecordRequest(time.Since(start), resp.StatusCode, nil)
	if resp.StatusCode == http.StatusOK && decodeErr == nil {
		stats.RecordResult(result)
	}
}

func mustNewRequest(ctx context.Context, rawURL string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	fmt.Println()
	fmt.Println("=== Results by Kind ===")
	fmt.Printf("Degraded:        %d\n", stats.degraded.Load())
	fmt.Printf("Zero results:    %d\n", stats.zeroResults.Load())
	fmt.Printf("Truncated:       %d\n", stats.truncated.Load())
	fmt.Printf("Idle:            %d\n", stats.idle.Load())

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
