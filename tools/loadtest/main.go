// Command loadtest posts simulated sensor readings to the prediction API
// and reports throughput and latency percentiles.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"predictive-maintenance/simulator"
)

type stats struct {
	requests  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	risky     atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (s *stats) record(latency time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, latency)
	s.mu.Unlock()
}

type payload struct {
	AirTemp     float64 `json:"air_temp"`
	ProcessTemp float64 `json:"process_temp"`
	RPM         int     `json:"rpm"`
	Torque      float64 `json:"torque"`
	ToolWear    int     `json:"tool_wear"`
	MachineID   string  `json:"machine_id"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: loadtest <url> [workers] [machines] [duration]")
		fmt.Println("Example: loadtest http://localhost:8000/predict 32 10 30s")
		os.Exit(1)
	}

	url := os.Args[1]
	workers := 16
	machines := 10
	duration := 30 * time.Second

	if len(os.Args) > 2 {
		fmt.Sscanf(os.Args[2], "%d", &workers)
	}
	if len(os.Args) > 3 {
		fmt.Sscanf(os.Args[3], "%d", &machines)
	}
	if len(os.Args) > 4 {
		if d, err := time.ParseDuration(os.Args[4]); err == nil {
			duration = d
		}
	}
	if workers < 1 {
		workers = 1
	}
	if machines < 1 {
		machines = 1
	}

	fmt.Printf("Load Test Configuration:\n")
	fmt.Printf("  URL:      %s\n", url)
	fmt.Printf("  Workers:  %d\n", workers)
	fmt.Printf("  Machines: %d\n", machines)
	fmt.Printf("  Duration: %v\n\n", duration)

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        workers,
			MaxIdleConnsPerHost: workers,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	st := &stats{latencies: make([]time.Duration, 0, 10000)}
	start := time.Now()
	end := start.Add(duration)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			gen := simulator.New(uint64(start.UnixNano()) + uint64(w))
			for i := 0; time.Now().Before(end); i++ {
				machine := fmt.Sprintf("machine-%d", (w+i)%machines+1)
				send(client, url, machine, gen, st)
			}
		}(w)
	}
	wg.Wait()

	printResults(st, time.Since(start))
}

func send(client *http.Client, url, machine string, gen *simulator.Generator, st *stats) {
	r := gen.Generate()
	body, _ := json.Marshal(payload{
		AirTemp:     r.AirTemp,
		ProcessTemp: r.ProcessTemp,
		RPM:         r.RPM,
		Torque:      r.Torque,
		ToolWear:    r.ToolWear,
		MachineID:   machine,
	})

	start := time.Now()
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	latency := time.Since(start)
	st.requests.Add(1)

	if err != nil {
		st.failed.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		st.failed.Add(1)
		return
	}

	var out struct {
		Prediction int `json:"prediction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err == nil && out.Prediction == 1 {
		st.risky.Add(1)
	}
	st.succeeded.Add(1)
	st.record(latency)
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func printResults(st *stats, duration time.Duration) {
	total := st.requests.Load()
	success := st.succeeded.Load()

	st.mu.Lock()
	lat := append([]time.Duration(nil), st.latencies...)
	st.mu.Unlock()
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })

	var sum time.Duration
	for _, l := range lat {
		sum += l
	}
	var avg time.Duration
	if len(lat) > 0 {
		avg = sum / time.Duration(len(lat))
	}
	successRate := 0.0
	if total > 0 {
		successRate = float64(success) / float64(total) * 100
	}

	fmt.Println("==========================================")
	fmt.Println("Load Test Results")
	fmt.Println("==========================================")
	fmt.Printf("Duration:        %v\n", duration)
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Failed:          %d\n", st.failed.Load())
	fmt.Printf("Failure Risk:    %d\n", st.risky.Load())
	fmt.Printf("Success Rate:    %.2f%%\n", successRate)
	fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	fmt.Println("\nLatency Statistics:")
	if len(lat) > 0 {
		fmt.Printf("  Min:           %v\n", lat[0])
		fmt.Printf("  Max:           %v\n", lat[len(lat)-1])
	}
	fmt.Printf("  Average:       %v\n", avg)
	fmt.Printf("  p50:           %v\n", percentile(lat, 50))
	fmt.Printf("  p95:           %v\n", percentile(lat, 95))
	fmt.Printf("  p99:           %v\n", percentile(lat, 99))
	fmt.Println("==========================================")
}
