// Package sidecar is the built-in demo worker. It speaks the worker line
// protocol: one event per stdout line, acknowledgments arrive on stdin.
package sidecar

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config controls the demo worker.
type Config struct {
	Interval time.Duration // Delay between lines
	Count    int           // Lines to emit; 0 means until stopped
	Prefix   string        // Line text before the sequence number
}

// DefaultConfig returns the demo worker defaults.
func DefaultConfig() Config {
	return Config{
		Interval: time.Second,
		Prefix:   "tick",
	}
}

// Stats reports what the worker did.
type Stats struct {
	LinesWritten int
	AcksReceived int
}

// Run writes numbered lines to stdout until ctx is done, Count is reached
// or stdin closes. Every stdin line is logged as an acknowledgment.
func Run(ctx context.Context, cfg Config, stdin io.Reader, stdout io.Writer, logger *zap.Logger) (Stats, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultConfig().Prefix
	}

	var (
		mu    sync.Mutex
		stats Stats
	)
	stdinClosed := make(chan struct{})
	go func() {
		defer close(stdinClosed)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			mu.Lock()
			stats.AcksReceived++
			n := stats.AcksReceived
			mu.Unlock()
			logger.Info("acknowledgment received", zap.String("line", scanner.Text()), zap.Int("acks", n))
		}
	}()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	snapshot := func() Stats {
		mu.Lock()
		defer mu.Unlock()
		return stats
	}

	for {
		select {
		case <-ctx.Done():
			return snapshot(), nil
		case <-stdinClosed:
			logger.Info("stdin closed, worker exiting")
			return snapshot(), nil
		case <-ticker.C:
			mu.Lock()
			stats.LinesWritten++
			n := stats.LinesWritten
			mu.Unlock()

			if _, err := fmt.Fprintf(stdout, "%s %d\n", cfg.Prefix, n); err != nil {
				return snapshot(), fmt.Errorf("failed to write line: %w", err)
			}
			if cfg.Count > 0 && n >= cfg.Count {
				return snapshot(), nil
			}
		}
	}
}
