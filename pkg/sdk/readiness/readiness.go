// Package readiness blocks until a set of HTTP health endpoints answer.
package readiness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/terraconstructs/svcgate/pkg/sdk/telemetry"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval is the pause between polls of a URL that is not ready.
const DefaultInterval = 250 * time.Millisecond

// requestTimeout bounds a single poll so one hung connection cannot stall a URL.
const requestTimeout = 5 * time.Second

// Options configures WaitForURLs.
type Options struct {
	Interval time.Duration
	// Username and Password build the Basic-Auth header sent with every poll.
	Username string
	Password string

	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *telemetry.Metrics
}

// WaitForURLs polls every URL concurrently until each has answered 200 OK.
// Transport errors and other status codes are retried after Interval with no
// per-URL limit; bound the wait by cancelling ctx. Only an invalid or
// non-HTTP URL or ctx ending returns an error.
func WaitForURLs(ctx context.Context, urls []string, opts Options) error {
	if len(urls) == 0 {
		return nil
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: requestTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, u := range urls {
		g.Go(func() error {
			return poll(gctx, u, opts)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	opts.Metrics.RecordReady(ctx, elapsed)
	opts.Logger.Info("all health checks passed", "urls", len(urls), "elapsed", elapsed)
	return nil
}

func poll(ctx context.Context, url string, opts Options) error {
	attempts := 0
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build health request for %q: %w", url, err)
		}
		if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
			return fmt.Errorf("build health request for %q: unsupported scheme %q", url, req.URL.Scheme)
		}
		req.SetBasicAuth(opts.Username, opts.Password)

		attempts++
		ready := check(opts.HTTPClient, req, opts.Logger)
		opts.Metrics.RecordHealthPoll(ctx, url, ready)
		if ready {
			opts.Logger.Debug("health check ready", "url", url, "attempts", attempts)
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", url, ctx.Err())
		case <-time.After(opts.Interval):
		}
	}
}

func check(client *http.Client, req *http.Request, logger *slog.Logger) bool {
	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("health check failed", "url", req.URL.String(), "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		logger.Debug("health check not ready", "url", req.URL.String(), "status", resp.StatusCode)
		return false
	}
	return true
}
