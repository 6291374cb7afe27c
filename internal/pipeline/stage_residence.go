package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
	"github.com/LunaInsidious/abr-geocoder/internal/jptext"
	"github.com/LunaInsidious/abr-geocoder/internal/trie"
)

// ResidenceStage resolves residence numbering (街区符号 and 住居番号) for
// towns under the residence addressing system. It only applies when the town
// is resolved and its rows carry the residence flag; parcel-numbered areas are
// handled by the parcel stage instead.
//
// Block dictionaries are cached per town, display-number dictionaries per
// block, both in LRU caches sized like the town stage's.
type ResidenceStage struct {
	store  domain.ReferenceStore
	logger *slog.Logger
	fuzzy  rune

	blocks  *lru.Cache[string, *trie.Finder[domain.RsdtBlkInfo]]
	details *lru.Cache[string, *trie.Finder[domain.RsdtDspInfo]]
}

func NewResidenceStage(store domain.ReferenceStore, fuzzy rune, cacheSize int, logger *slog.Logger) (*ResidenceStage, error) {
	blocks, err := lru.New[string, *trie.Finder[domain.RsdtBlkInfo]](cacheSize)
	if err != nil {
		return nil, err
	}
	details, err := lru.New[string, *trie.Finder[domain.RsdtDspInfo]](cacheSize)
	if err != nil {
		return nil, err
	}
	return &ResidenceStage{
		store:   store,
		logger:  logger,
		fuzzy:   fuzzy,
		blocks:  blocks,
		details: details,
	}, nil
}

func (s *ResidenceStage) Name() string { return "residence" }

func (s *ResidenceStage) blockFinder(ctx context.Context, townKey string) (*trie.Finder[domain.RsdtBlkInfo], error) {
	if f, ok := s.blocks.Get(townKey); ok {
		return f, nil
	}
	rows, err := s.store.ResidenceBlocks(ctx, townKey)
	if err != nil {
		return nil, fmt.Errorf("load residence blocks: %w", err)
	}
	f := trie.New[domain.RsdtBlkInfo]()
	for _, r := range rows {
		f.Append(jptext.NormalizeString(r.Block), r)
	}
	s.blocks.Add(townKey, f)
	return f, nil
}

func (s *ResidenceStage) detailFinder(ctx context.Context, rsdtBlkKey string) (*trie.Finder[domain.RsdtDspInfo], error) {
	if f, ok := s.details.Get(rsdtBlkKey); ok {
		return f, nil
	}
	rows, err := s.store.ResidenceDetails(ctx, rsdtBlkKey)
	if err != nil {
		return nil, fmt.Errorf("load residence details: %w", err)
	}
	f := trie.New[domain.RsdtDspInfo]()
	for _, r := range rows {
		key := r.RsdtNum
		if r.RsdtNum2 != "" {
			key += "-" + r.RsdtNum2
		}
		f.Append(jptext.NormalizeString(key), r)
	}
	s.details.Add(rsdtBlkKey, f)
	return f, nil
}

func (s *ResidenceStage) Process(ctx context.Context, q domain.Query) ([]domain.Query, error) {
	if q.MatchLevel >= domain.LevelResidentialBlock || q.TempAddress.Empty() {
		return []domain.Query{q}, nil
	}
	if q.TownKey == "" || q.RsdtAddrFlg != "1" {
		return []domain.Query{q}, nil
	}

	blocks, err := s.blockFinder(ctx, q.TownKey)
	if err != nil {
		return nil, err
	}
	matches, err := blocks.Find(trie.Query{Target: q.TempAddress, Fuzzy: s.fuzzy})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []domain.Query{q}, nil
	}

	m := matches[0]
	q = q.WithTail(m.Unmatched.TrimLeft("-"))
	q.RsdtBlkKey = m.Info.RsdtBlkKey
	q.Block = m.Info.Block
	q.BlockID = m.Info.BlockID
	q.MatchLevel = domain.LevelResidentialBlock
	q = q.SetCoordinates(m.Info.RepLat, m.Info.RepLon, domain.LevelResidentialBlock)

	if q.TempAddress.Empty() {
		return []domain.Query{q}, nil
	}
	return s.processDetail(ctx, q)
}

func (s *ResidenceStage) processDetail(ctx context.Context, q domain.Query) ([]domain.Query, error) {
	details, err := s.detailFinder(ctx, q.RsdtBlkKey)
	if err != nil {
		return nil, err
	}
	matches, err := details.Find(trie.Query{Target: q.TempAddress, Fuzzy: s.fuzzy})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []domain.Query{q}, nil
	}

	// Prefer the match that consumes the residual completely; 1-1 must not
	// stop at display number 1 when 1-1 exists.
	m := matches[0]
	for _, cand := range matches {
		if cand.Unmatched.Empty() {
			m = cand
			break
		}
	}

	q = q.WithTail(m.Unmatched.TrimLeft("-"))
	q.RsdtDspKey = m.Info.RsdtDspKey
	q.RsdtNum = m.Info.RsdtNum
	q.RsdtID = m.Info.RsdtID
	q.RsdtNum2 = m.Info.RsdtNum2
	q.Rsdt2ID = m.Info.Rsdt2ID
	q.MatchLevel = domain.LevelResidentialDetail
	q = q.SetCoordinates(m.Info.RepLat, m.Info.RepLon, domain.LevelResidentialDetail)
	return []domain.Query{q}, nil
}
