package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
)

var (
	benchURL      string
	benchFixture  string
	benchDuration time.Duration
	benchWorkers  int
	benchQPS      int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Load-test a running gateway's /v1/messages endpoint",
	Long: `bench replays a single pre-encoded MSL message, read once from
--fixture, against a running gateway's /v1/messages endpoint from a pool of
worker goroutines, each capped at --qps, for --duration. There is no
message builder in this repository (encoding MSL wire messages is out of
scope), so the fixture must already be a valid captured or hand-built
message — bench measures pipeline throughput and latency, it does not
synthesize protocol traffic.`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().StringVar(&benchURL, "url", "http://localhost:8443/v1/messages", "gateway endpoint to post messages to")
	benchCmd.Flags().StringVar(&benchFixture, "fixture", "", "path to a file containing one pre-encoded MSL message (required)")
	benchCmd.Flags().DurationVar(&benchDuration, "duration", 30*time.Second, "test duration")
	benchCmd.Flags().IntVar(&benchWorkers, "workers", 5, "number of worker goroutines")
	benchCmd.Flags().IntVar(&benchQPS, "qps", 25, "queries per second per worker")
	benchCmd.MarkFlagRequired("fixture")
}

func runBench(cmd *cobra.Command, args []string) error {
	fixture, err := os.ReadFile(benchFixture)
	if err != nil {
		return fmt.Errorf("msl-gateway: bench: read fixture: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	deadline := time.Now().Add(benchDuration)
	var wg sync.WaitGroup
	var requests, accepted, rejected, errs int64
	var totalLatency int64

	fmt.Printf("=== MSL Gateway Bench ===\nURL: %s\nWorkers: %d\nQPS/worker: %d\nDuration: %v\n\n",
		benchURL, benchWorkers, benchQPS, benchDuration)

	for i := 0; i < benchWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			workerTicker := time.NewTicker(time.Second / time.Duration(benchQPS))
			defer workerTicker.Stop()

			for time.Now().Before(deadline) {
				<-workerTicker.C
				start := time.Now()
				resp, err := client.Post(benchURL, "application/octet-stream", bytes.NewReader(fixture))
				latency := time.Since(start)

				atomic.AddInt64(&requests, 1)
				atomic.AddInt64(&totalLatency, int64(latency))
				if err != nil {
					atomic.AddInt64(&errs, 1)
					continue
				}
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					atomic.AddInt64(&accepted, 1)
				} else {
					atomic.AddInt64(&rejected, 1)
				}
			}
		}()
	}

	wg.Wait()

	var avgLatency time.Duration
	if requests > 0 {
		avgLatency = time.Duration(totalLatency / requests)
	}

	fmt.Printf("Requests:     %d\n", requests)
	fmt.Printf("Accepted:     %d\n", accepted)
	fmt.Printf("Rejected:     %d\n", rejected)
	fmt.Printf("Errors:       %d\n", errs)
	fmt.Printf("Avg Latency:  %v\n", avgLatency)
	return nil
}
