package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
	"github.com/LunaInsidious/abr-geocoder/internal/jptext"
	"github.com/LunaInsidious/abr-geocoder/internal/trie"
)

// CityRecoveryStage catches cities the main city stage missed by matching a
// looser key set: spellings with the trailing administrative suffix removed
// (横浜 for 横浜市). It only runs on records still below city level, so the
// looser patterns never override a proper match.
type CityRecoveryStage struct {
	logger  *slog.Logger
	barrier *initBarrier
	fuzzy   rune

	finder *trie.Finder[domain.CityInfo]
}

func NewCityRecoveryStage(ctx context.Context, store domain.ReferenceStore, fuzzy rune, logger *slog.Logger) *CityRecoveryStage {
	s := &CityRecoveryStage{
		logger:  logger,
		barrier: newInitBarrier(),
		fuzzy:   fuzzy,
		finder:  trie.New[domain.CityInfo](),
	}
	go func() {
		s.barrier.finish(s.build(ctx, store))
	}()
	return s
}

func (s *CityRecoveryStage) Name() string { return "city_recovery" }

func (s *CityRecoveryStage) build(ctx context.Context, store domain.ReferenceStore) error {
	cities, err := store.Cities(ctx)
	if err != nil {
		return fmt.Errorf("load cities: %w", err)
	}
	for _, c := range cities {
		for _, key := range cityBareKeys(c) {
			s.finder.Append(key, c)
		}
	}
	s.logger.Info("city recovery dictionary built", "keys", s.finder.Len())
	return nil
}

// cityBareKeys derives the suffix-less spelling of a city row by dropping the
// trailing administrative suffix rune. Remainders shorter than two characters
// are skipped; they would match almost anything.
func cityBareKeys(c domain.CityInfo) []string {
	runes := []rune(c.City + c.Ward)
	if len(runes) < 3 {
		return nil
	}
	if !strings.ContainsRune("市町村区", runes[len(runes)-1]) {
		return nil
	}
	return []string{jptext.NormalizeString(string(runes[:len(runes)-1]))}
}

func (s *CityRecoveryStage) Process(ctx context.Context, q domain.Query) ([]domain.Query, error) {
	if err := s.barrier.wait(ctx); err != nil {
		return nil, err
	}
	if q.MatchLevel >= domain.LevelCity {
		return []domain.Query{q}, nil
	}

	matches, err := s.finder.Find(trie.Query{
		Target: q.TempAddress,
		Fuzzy:  s.fuzzy,
	})
	if err != nil {
		return nil, err
	}

	var candidates []cityCandidate
	for _, m := range matches {
		if q.PrefKey != "" && m.Info.PrefKey != q.PrefKey {
			continue
		}
		candidates = append(candidates, cityCandidate{info: m.Info, depth: m.Depth})
	}
	if len(candidates) == 0 {
		return []domain.Query{q}, nil
	}
	return applyCityCandidates(q, candidates), nil
}
