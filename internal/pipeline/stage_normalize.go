package pipeline

import (
	"context"
	"log/slog"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
	"github.com/LunaInsidious/abr-geocoder/internal/jptext"
)

// NormalizeStage builds the residual character chain from the raw input line:
// width folding, whitespace removal, postal-code stripping, kana and kanji
// numeral canonicalization. It runs first and exactly once per record.
type NormalizeStage struct {
	logger *slog.Logger
}

func NewNormalizeStage(logger *slog.Logger) *NormalizeStage {
	return &NormalizeStage{logger: logger}
}

func (s *NormalizeStage) Name() string { return "normalize" }

func (s *NormalizeStage) Process(ctx context.Context, q domain.Query) ([]domain.Query, error) {
	// A record past ingestion carries a residual chain, a match, or both.
	// An empty chain on a resolved record means fully consumed, not fresh;
	// re-running must not resurrect consumed characters.
	if q.MatchLevel > domain.LevelUnknown || q.MatchedCnt > 0 || !q.TempAddress.Empty() {
		return []domain.Query{q}, nil
	}
	// Assign directly rather than via WithTail: nothing has matched yet, so
	// MatchedCnt stays zero even when a postal code was stripped.
	q.TempAddress = jptext.IngestChain(q.Input)
	s.logger.Debug("normalized input", "input", q.Input, "normalized", q.TempAddress.String())
	return []domain.Query{q}, nil
}
