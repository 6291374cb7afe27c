package pipeline

import (
	"context"
	"log/slog"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
)

// Options configures stage construction.
type Options struct {
	// Fuzzy is the wildcard rune; zero disables wildcard matching.
	Fuzzy rune
	// TrieCache is the per-scope dictionary LRU size.
	TrieCache int
}

// BuildStages assembles the standard stage order over a reference store.
// Dictionary builds start immediately in the background; the returned stages
// block on them only when first reached.
func BuildStages(ctx context.Context, store domain.ReferenceStore, opts Options, logger *slog.Logger) ([]Stage, error) {
	if opts.TrieCache < 1 {
		opts.TrieCache = 256
	}

	town, err := NewTownStage(ctx, store, opts.Fuzzy, opts.TrieCache, logger)
	if err != nil {
		return nil, err
	}
	residence, err := NewResidenceStage(store, opts.Fuzzy, opts.TrieCache, logger)
	if err != nil {
		return nil, err
	}
	parcel, err := NewParcelStage(store, opts.Fuzzy, opts.TrieCache, logger)
	if err != nil {
		return nil, err
	}

	return []Stage{
		NewNormalizeStage(logger),
		NewPrefectureStage(ctx, store, logger),
		NewCityStage(ctx, store, opts.Fuzzy, logger),
		NewCityRecoveryStage(ctx, store, opts.Fuzzy, logger),
		town,
		NewPatchStage(logger),
		residence,
		parcel,
	}, nil
}
