package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/searcher/handler"
)

type Stats struct {
	total       atomic.Int64
	errors      atomic.Int64
	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func (s *Stats) Record(d time.Duration, status int, err error) {
	s.total.Add(1)
	if err != nil || status < 200 || status >= 300 {
		s.errors.Add(1)
	}
	if err != nil {
		return
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	s.mu.Unlock()
}

var defaultTerms = [][]string{
	{"white", "whale"},
	{"sea", "story"},
	{"harpoon"},
	{"ship", "captain", "crew"},
	{"ocean", "voyage"},
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the searcher")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	requested := flag.Int("requested", 10, "documents requested per query")
	queriesPath := flag.String("queries", "", "file of JSON query trees, one per line")
	flag.Parse()

	bodies, err := loadBodies(*queriesPath, *requested)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading queries: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Retrieval Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d unique\n\n", len(bodies))

	stats := run(*baseURL, *concurrency, *duration, bodies)
	if !report(stats, *duration) {
		os.Exit(1)
	}
}

// loadBodies builds request bodies from a query file, or from the
// built-in term lists as #combine of #text leaves.
func loadBodies(path string, requested int) ([][]byte, error) {
	var nodes []*query.Node
	if path == "" {
		for _, terms := range defaultTerms {
			children := make([]*query.Node, len(terms))
			for i, t := range terms {
				children[i] = query.Text(t)
			}
			nodes = append(nodes, query.New("combine", nil, children...))
		}
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			n, err := query.Decode([]byte(line))
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	bodies := make([][]byte, 0, len(nodes))
	for _, n := range nodes {
		raw, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(handler.QueryRequest{Query: raw, Options: retrieval.Options{Requested: requested}})
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, body)
	}
	if len(bodies) == 0 {
		return nil, fmt.Errorf("no queries")
	}
	return bodies, nil
}

func run(baseURL string, concurrency int, d time.Duration, bodies [][]byte) *Stats {
	stats := &Stats{statusCodes: make(map[int]int64)}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	target := baseURL + "/api/v1/query"
	p := pool.New().WithMaxGoroutines(concurrency)
	for w := range concurrency {
		p.Go(func() {
			for i := w; ctx.Err() == nil; i++ {
				body := bodies[i%len(bodies)]
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
				if err != nil {
					stats.Record(0, 0, err)
					return
				}
				req.Header.Set("Content-Type", "application/json")
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.Record(elapsed, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.Record(elapsed, resp.StatusCode, nil)
			}
		})
	}
	p.Wait()
	return stats
}

func report(stats *Stats, d time.Duration) bool {
	total := stats.total.Load()
	errs := stats.errors.Load()
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Errors:          %d\n", errs)
	if total == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the searcher running?")
		return false
	}
	fmt.Printf("Error Rate:      %.2f%%\n", float64(errs)/float64(total)*100)
	fmt.Printf("Requests/sec:    %.2f\n", float64(total)/d.Seconds())

	stats.mu.Lock()
	defer stats.mu.Unlock()
	latencies := slices.Clone(stats.latencies)
	slices.Sort(latencies)
	if len(latencies) > 0 {
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Println("\n=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", sum/time.Duration(len(latencies)))
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Printf("P%.0f:    %s\n", p, percentile(latencies, p))
		}
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println("\n=== Status Codes ===")
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code])
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
