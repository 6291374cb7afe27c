// Package pipeline drives address records through the geocoding stages.
//
// # Stages
//
// A record enters as a raw text line, is normalized into a provenance-carrying
// character chain, and then walks a fixed stage order: prefecture, city, city
// recovery, town, dictionary patches, residence numbering, parcel numbering.
// Each stage may emit several candidate interpretations; the driver carries
// every candidate through the remaining stages and keeps the best-resolved one
// at emit time, so an early ambiguous match never hides a later deeper one.
//
// # Readiness
//
// Stages that build matcher dictionaries do so asynchronously at construction.
// Processing blocks on a stage's readiness latch the first time the stage is
// reached, so pipeline construction stays fast while correctness is preserved.
//
// # Ordering
//
// Records are emitted strictly in input order, one output per input line.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
	"github.com/LunaInsidious/abr-geocoder/internal/observability"
)

// clock is a package-level time source so tests can control record timing.
var clock clockwork.Clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// maxScanLine bounds a single input line.
const maxScanLine = 1 << 20

// Stage is one step of the geocoding pipeline. Process receives one candidate
// interpretation and returns one or more refined candidates; returning the
// input unchanged is the correct behavior when the stage does not apply.
type Stage interface {
	Name() string
	Process(ctx context.Context, q domain.Query) ([]domain.Query, error)
}

// Sink receives finished records in input order.
type Sink interface {
	Write(q domain.Query) error
}

// Pipeline wires the stages to a record source and sink.
type Pipeline struct {
	stages  []Stage
	logger  *slog.Logger
	metrics *observability.Metrics

	running atomic.Bool
	records atomic.Int64
}

// New assembles a pipeline over the given stage order.
func New(stages []Stage, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		stages:  stages,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness reports whether the pipeline has fully processed at least one
// record, meaning every stage dictionary it touched is built. Safe to call
// concurrently with Run.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if p.records.Load() == 0 {
		return fmt.Errorf("pipeline has not processed any records yet")
	}
	return nil
}

// Records returns the number of records emitted so far.
func (p *Pipeline) Records() int64 { return p.records.Load() }

// Running reports whether a Run loop is currently active.
func (p *Pipeline) Running() bool { return p.running.Load() }

// Run reads address lines from r until EOF or context cancellation, geocodes
// each, and writes results to sink in input order. Blank lines and lines
// starting with "#" or "//" are skipped.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, sink Sink) error {
	p.running.Store(true)
	p.metrics.PipelineRunning.Set(1)
	defer func() {
		p.metrics.PipelineRunning.Set(0)
		p.running.Store(false)
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxScanLine)

	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++

		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}

		result, err := p.geocode(ctx, line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := sink.Write(result); err != nil {
			return fmt.Errorf("write result for line %d: %w", lineNo, err)
		}

		p.records.Add(1)
		p.metrics.RecordsProcessed.Inc()
		p.metrics.MatchLevelTotal.WithLabelValues(result.MatchLevel.String()).Inc()
		p.metrics.RecordLatency.Observe(clock.Since(result.StartTime).Seconds())
	}
	return scanner.Err()
}

// Geocode resolves a single address line through all stages.
func (p *Pipeline) Geocode(ctx context.Context, line string) (domain.Query, error) {
	return p.geocode(ctx, line)
}

func (p *Pipeline) geocode(ctx context.Context, line string) (domain.Query, error) {
	candidates := []domain.Query{domain.NewQuery(line, clock.Now())}

	for _, stage := range p.stages {
		started := clock.Now()
		next := make([]domain.Query, 0, len(candidates))
		for _, c := range candidates {
			out, err := stage.Process(ctx, c)
			if err != nil {
				return domain.Query{}, fmt.Errorf("stage %s: %w", stage.Name(), err)
			}
			next = append(next, out...)
		}
		if len(next) == 0 {
			return domain.Query{}, fmt.Errorf("stage %s dropped all candidates", stage.Name())
		}
		candidates = next
		p.metrics.StageDuration.WithLabelValues(stage.Name()).Observe(clock.Since(started).Seconds())
	}

	best := selectBest(candidates)
	p.logger.Debug("record geocoded",
		"input", line,
		"match_level", best.MatchLevel.String(),
		"matched_cnt", best.MatchedCnt,
		"candidates", len(candidates),
	)
	return best, nil
}

// selectBest picks the deepest-resolved candidate: highest match level, then
// most source characters consumed, then the more precise coordinate. Ties keep
// the earliest candidate, so stage emission order is the final arbiter.
func selectBest(candidates []domain.Query) domain.Query {
	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case c.MatchLevel > best.MatchLevel:
			best = c
		case c.MatchLevel == best.MatchLevel && c.MatchedCnt > best.MatchedCnt:
			best = c
		case c.MatchLevel == best.MatchLevel && c.MatchedCnt == best.MatchedCnt &&
			c.CoordinateLevel > best.CoordinateLevel:
			best = c
		}
	}
	return best
}
