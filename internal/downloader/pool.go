// Package downloader provides the concurrent download/cache fabric feeding
// reference data into the geocoder.
//
// A Pool runs a single dispatcher that launches download tasks up to a
// bounded in-flight count; one shared HTTP client (HTTP/2 capable) carries
// all transfers over one connection. Intake is acknowledged immediately so
// the producer can keep submitting; results are pushed downstream only as
// tasks complete, in completion order, not submission order. When the
// producer signals that no more work is coming and the running-task count
// reaches zero, the result stream is closed.
//
// A failing task is retried up to five attempts with a uniform 100–5100 ms
// jitter between attempts. The first attempt may be served from the
// content-addressed cache; retries always bypass it. Exhausting all attempts
// yields a typed error record in the result stream rather than aborting it.
package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/LunaInsidious/abr-geocoder/internal/observability"
)

// clock is a package-level time source so tests can drive retry sleeps
// deterministically via SetClock.
var clock clockwork.Clock = clockwork.NewRealClock()

// SetClock swaps the time source for retry delays. Pass nil to reset to
// real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

const (
	maxAttempts     = 5
	jitterFloorMS   = 100
	jitterCeilingMS = 5100
)

// Request identifies one file to download.
type Request struct {
	ID  string
	URL string
}

// Payload is the success outcome of a download task.
type Payload struct {
	Request   Request
	Path      string
	Size      int64
	FromCache bool
	Attempts  int
}

// ProcessError is the failure outcome of a download task. Attempts records
// how many fetches were actually made before giving up, which is fewer than
// the cap when the task's context was cancelled.
type ProcessError struct {
	Request  Request
	Attempts int
	Err      error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("download %s failed after %d attempts: %v", e.Request.URL, e.Attempts, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Result is one element of the result stream: exactly one of Payload or Err
// is set.
type Result struct {
	Payload *Payload
	Err     *ProcessError
}

// Pool is the download fabric. Submit requests, call Final once, and drain
// Results until it closes.
type Pool struct {
	client  *http.Client
	cache   *Cache
	logger  *slog.Logger
	metrics *observability.Metrics

	maxInFlight int

	mu    sync.Mutex
	cond  *sync.Cond
	queue []Request
	final bool

	results chan Result
	tasks   sync.WaitGroup
}

// NewPool creates a Pool and starts its dispatcher. The context bounds every
// task; cancelling it fails in-flight tasks and stops retries.
func NewPool(ctx context.Context, client *http.Client, cache *Cache, maxInFlight int, logger *slog.Logger, metrics *observability.Metrics) *Pool {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	p := &Pool{
		client:      client,
		cache:       cache,
		logger:      logger,
		metrics:     metrics,
		maxInFlight: maxInFlight,
		results:     make(chan Result),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.dispatch(ctx)
	return p
}

// Submit queues a request. It returns immediately; the bounded in-flight
// count applies to running tasks, not to intake.
func (p *Pool) Submit(req Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.final {
		p.logger.Warn("submit after final ignored", "url", req.URL)
		return
	}
	p.queue = append(p.queue, req)
	p.cond.Signal()
}

// Final signals that no more requests will be submitted. Once the queue
// drains and running tasks reach zero, the result stream closes.
func (p *Pool) Final() {
	p.mu.Lock()
	p.final = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Results returns the stream of task outcomes, in completion order. The
// channel closes after Final once all tasks have terminated.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Close signals Final and waits for in-flight tasks to terminate, bounded by
// ctx.
func (p *Pool) Close(ctx context.Context) error {
	p.Final()
	done := make(chan struct{})
	go func() {
		p.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch is the single worker loop: it pops queued requests and launches
// task goroutines bounded by maxInFlight, then closes the result stream when
// the final flag is set and everything has drained.
func (p *Pool) dispatch(ctx context.Context) {
	sem := make(chan struct{}, p.maxInFlight)

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.final {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			break
		}
		req := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		sem <- struct{}{}
		p.tasks.Add(1)
		p.metrics.DownloadsInFlight.Inc()
		go func(req Request) {
			defer func() {
				p.metrics.DownloadsInFlight.Dec()
				p.tasks.Done()
				<-sem
			}()
			p.results <- p.run(ctx, req)
		}(req)
	}

	p.tasks.Wait()
	close(p.results)
}

// run executes one task's attempt loop. Attempts counts fetches actually
// made, so cancellation during a retry sleep is not reported as an attempt.
func (p *Pool) run(ctx context.Context, req Request) Result {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			p.metrics.DownloadRetries.Inc()
			if !sleepWithContext(ctx, retryJitter()) {
				lastErr = ctx.Err()
				break
			}
		}
		p.metrics.DownloadAttempts.Inc()
		attempts = attempt

		payload, err := p.fetch(ctx, req, attempt == 1)
		if err == nil {
			payload.Attempts = attempt
			return Result{Payload: payload}
		}
		lastErr = err
		p.logger.Warn("download attempt failed",
			"url", req.URL,
			"attempt", attempt,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}

	p.metrics.DownloadFailures.Inc()
	return Result{Err: &ProcessError{Request: req, Attempts: attempts, Err: lastErr}}
}

// fetch performs one attempt: cache lookup on the first attempt, then an
// HTTP GET written through the cache.
func (p *Pool) fetch(ctx context.Context, req Request, useCache bool) (*Payload, error) {
	if useCache {
		if path, ok := p.cache.Get(req.URL); ok {
			p.metrics.CacheLookups.WithLabelValues("hit").Inc()
			return &Payload{Request: req, Path: path, FromCache: true}, nil
		}
		p.metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s: status %d: %s", req.URL, resp.StatusCode, body)
	}

	path, size, err := p.cache.Put(req.URL, resp.Body)
	if err != nil {
		return nil, err
	}
	p.metrics.DownloadBytes.Add(float64(size))
	return &Payload{Request: req, Path: path, Size: size}, nil
}

// retryJitter draws a uniform delay in [100ms, 5100ms).
func retryJitter() time.Duration {
	return time.Duration(jitterFloorMS+rand.Int64N(jitterCeilingMS-jitterFloorMS)) * time.Millisecond
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-clock.After(d):
		return true
	}
}
