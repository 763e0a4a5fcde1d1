// Command sse_load opens many concurrent connections to the terminal's SSE
// streams and reports how many events of each kind arrive.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var streamPaths = []string{"/chart/stream", "/balance/stream", "/trades/stream"}

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64

	mu     sync.Mutex
	events map[string]int64
}

func (c *counters) event(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[name]++
}

func (c *counters) snapshot() (map[string]int64, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.events))
	var total int64
	for k, v := range c.events {
		out[k] = v
		total += v
	}
	return out, total
}

func main() {
	var (
		baseURL      string
		streams      string
		connections  int
		testDuration time.Duration
		rampUp       time.Duration
	)

	flag.StringVar(&baseURL, "url", "http://localhost:8080", "terminal base URL")
	flag.StringVar(&streams, "streams", strings.Join(streamPaths, ","), "comma separated stream paths, connections are spread across them")
	flag.IntVar(&connections, "conns", 300, "number of concurrent connections to open")
	flag.DurationVar(&testDuration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "ramp-up duration (spread connection starts across this window)")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	paths := splitPaths(streams)
	if connections <= 0 || len(paths) == 0 {
		logger.Fatal("Nothing to do", zap.Int("conns", connections), zap.String("streams", streams))
	}
	if rampUp == 0 {
		rampUp = defaultRampUp(connections)
	}

	logger.Info("Starting SSE load",
		zap.String("url", baseURL), zap.Strings("streams", paths),
		zap.Int("conns", connections), zap.Duration("duration", testDuration), zap.Duration("ramp", rampUp))

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if testDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, testDuration)
		defer cancel()
	}

	stats := &counters{events: make(map[string]int64)}
	start := time.Now()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, total := stats.snapshot()
				logger.Info("Status",
					zap.Int64("connected", stats.connected.Load()),
					zap.Int64("connect_errs", stats.connectErrs.Load()),
					zap.Int64("stream_errs", stats.streamErrs.Load()),
					zap.Int64("events", total),
					zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))
			}
		}
	}()

	var wg sync.WaitGroup
	interval := rampUp / time.Duration(connections)
	for i := 0; i < connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		url := strings.TrimRight(baseURL, "/") + paths[i%len(paths)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			listen(ctx, client, url, stats)
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	perKind, total := stats.snapshot()
	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d events=%d elapsed=%s events/s=%.2f\n",
		stats.connected.Load(), stats.connectErrs.Load(), stats.streamErrs.Load(),
		total, elapsed.Truncate(time.Millisecond), float64(total)/elapsed.Seconds())
	for kind, n := range perKind {
		fmt.Printf("  %s: %d\n", kind, n)
	}
}

func listen(ctx context.Context, client *http.Client, url string, stats *counters) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		stats.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		stats.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		stats.connectErrs.Add(1)
		return
	}

	stats.connected.Add(1)
	if err := readEvents(resp.Body, stats.event); err != nil && ctx.Err() == nil {
		stats.streamErrs.Add(1)
	}
}

// readEvents calls onEvent with the event name of every complete event in r.
// Comment lines (heartbeats) are ignored.
func readEvents(r io.Reader, onEvent func(name string)) error {
	reader := bufio.NewReader(r)
	name, hasData := "", false
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if hasData {
				if name == "" {
					name = "message"
				}
				onEvent(name)
			}
			name, hasData = "", false
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			hasData = true
		}
	}
}

func splitPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		out = append(out, p)
	}
	return out
}

// defaultRampUp spreads large connection counts at one second per 500 connections.
func defaultRampUp(connections int) time.Duration {
	if connections <= 100 {
		return 0
	}
	ramp := time.Duration(connections/500) * time.Second
	if ramp < time.Second {
		ramp = time.Second
	}
	return ramp
}
