package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
	"github.com/LunaInsidious/abr-geocoder/internal/jptext"
	"github.com/LunaInsidious/abr-geocoder/internal/trie"
)

// ParcelStage resolves parcel numbering (地番) for towns outside the
// residence addressing system. Keys join up to three parcel number components
// with hyphens, matching how the normalizer collapses 番地/号 suffixes in the
// input.
type ParcelStage struct {
	store  domain.ReferenceStore
	logger *slog.Logger
	fuzzy  rune

	cache *lru.Cache[string, *trie.Finder[domain.ParcelInfo]]
}

func NewParcelStage(store domain.ReferenceStore, fuzzy rune, cacheSize int, logger *slog.Logger) (*ParcelStage, error) {
	cache, err := lru.New[string, *trie.Finder[domain.ParcelInfo]](cacheSize)
	if err != nil {
		return nil, err
	}
	return &ParcelStage{
		store:  store,
		logger: logger,
		fuzzy:  fuzzy,
		cache:  cache,
	}, nil
}

func (s *ParcelStage) Name() string { return "parcel" }

func parcelMatchKey(p domain.ParcelInfo) string {
	parts := []string{p.PrcNum1}
	if p.PrcNum2 != "" {
		parts = append(parts, p.PrcNum2)
		if p.PrcNum3 != "" {
			parts = append(parts, p.PrcNum3)
		}
	}
	return jptext.NormalizeString(strings.Join(parts, "-"))
}

func (s *ParcelStage) parcelFinder(ctx context.Context, townKey string) (*trie.Finder[domain.ParcelInfo], error) {
	if f, ok := s.cache.Get(townKey); ok {
		return f, nil
	}
	rows, err := s.store.Parcels(ctx, townKey)
	if err != nil {
		return nil, fmt.Errorf("load parcels: %w", err)
	}
	f := trie.New[domain.ParcelInfo]()
	for _, r := range rows {
		f.Append(parcelMatchKey(r), r)
	}
	s.cache.Add(townKey, f)
	return f, nil
}

func (s *ParcelStage) Process(ctx context.Context, q domain.Query) ([]domain.Query, error) {
	if q.MatchLevel >= domain.LevelResidentialBlock || q.TempAddress.Empty() {
		return []domain.Query{q}, nil
	}
	if q.TownKey == "" || q.RsdtAddrFlg == "1" {
		return []domain.Query{q}, nil
	}

	finder, err := s.parcelFinder(ctx, q.TownKey)
	if err != nil {
		return nil, err
	}
	matches, err := finder.Find(trie.Query{Target: q.TempAddress, Fuzzy: s.fuzzy})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []domain.Query{q}, nil
	}

	// Among the deepest matches, prefer the one consuming the full residual.
	m := matches[0]
	for _, cand := range matches {
		if cand.Unmatched.Empty() {
			m = cand
			break
		}
	}

	q = q.WithTail(m.Unmatched.TrimLeft("-"))
	q.ParcelKey = m.Info.ParcelKey
	q.PrcNum1 = m.Info.PrcNum1
	q.PrcNum2 = m.Info.PrcNum2
	q.PrcNum3 = m.Info.PrcNum3
	q.PrcID = m.Info.PrcID
	q.MatchLevel = domain.LevelParcel
	q = q.SetCoordinates(m.Info.RepLat, m.Info.RepLon, domain.LevelParcel)
	return []domain.Query{q}, nil
}
