package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/LunaInsidious/abr-geocoder/internal/charnode"
	"github.com/LunaInsidious/abr-geocoder/internal/domain"
	"github.com/LunaInsidious/abr-geocoder/internal/jptext"
	"github.com/LunaInsidious/abr-geocoder/internal/trie"
)

// townSuffixRunes are characters the matcher may step over inside a stored
// town key.
var townSuffixRunes = []rune{'区', '町', '市', '村'}

// oazaPrefixRe matches the optional 大字/字 prefix many inputs carry in front
// of the town name while the dictionary stores the bare name.
var oazaPrefixRe = regexp.MustCompile(`^(?:大字|字)`)

// TownStage resolves the machiaza (town/ōaza, chōme, koaza) portion. Town
// dictionaries are built lazily per city and kept in an LRU cache, since a
// batch typically concentrates on a few cities while the nationwide dictionary
// holds hundreds of thousands of rows.
//
// Inputs naming a Tokyo special ward without a prefecture (千代田区1丁目...)
// never pass the city stage when 東京都 is absent, so a dedicated trie keyed
// on ward+town resolves city and town in one step.
type TownStage struct {
	store  domain.ReferenceStore
	logger *slog.Logger
	fuzzy  rune

	cache *lru.Cache[string, *trie.Finder[domain.TownInfo]]

	barrier *initBarrier
	tokyo   *trie.Finder[tokyoTown]
}

type tokyoTown struct {
	city domain.CityInfo
	town domain.TownInfo
}

// ResidentialFlag lets ward+town rows win ties the same way plain town rows
// do.
func (t tokyoTown) ResidentialFlag() string { return t.town.RsdtAddrFlg }

func NewTownStage(ctx context.Context, store domain.ReferenceStore, fuzzy rune, cacheSize int, logger *slog.Logger) (*TownStage, error) {
	cache, err := lru.New[string, *trie.Finder[domain.TownInfo]](cacheSize)
	if err != nil {
		return nil, err
	}
	s := &TownStage{
		store:   store,
		logger:  logger,
		fuzzy:   fuzzy,
		cache:   cache,
		barrier: newInitBarrier(),
		tokyo:   trie.New[tokyoTown](),
	}
	go func() {
		s.barrier.finish(s.buildTokyo(ctx))
	}()
	return s, nil
}

func (s *TownStage) Name() string { return "town" }

func (s *TownStage) buildTokyo(ctx context.Context) error {
	cities, err := s.store.Cities(ctx)
	if err != nil {
		return fmt.Errorf("load cities: %w", err)
	}
	wards := 0
	for _, c := range cities {
		if c.Pref != "東京都" || !strings.HasSuffix(c.City, "区") {
			continue
		}
		towns, err := s.store.Towns(ctx, c.CityKey)
		if err != nil {
			return fmt.Errorf("load towns for %s: %w", c.City, err)
		}
		prefix := jptext.NormalizeString(c.City)
		for _, t := range towns {
			s.tokyo.Append(prefix+townMatchKey(t), tokyoTown{city: c, town: t})
		}
		wards++
	}
	s.logger.Info("tokyo ward dictionary built", "wards", wards, "keys", s.tokyo.Len())
	return nil
}

// townMatchKey canonicalizes a town row's matching key. The trailing hyphen a
// chōme ordinal normalizes to is trimmed so 丸の内1丁目 and 丸の内1 land on
// the same trie path.
func townMatchKey(t domain.TownInfo) string {
	return strings.TrimRight(jptext.NormalizeString(t.Key), "-")
}

func (s *TownStage) townFinder(ctx context.Context, cityKey string) (*trie.Finder[domain.TownInfo], error) {
	if f, ok := s.cache.Get(cityKey); ok {
		return f, nil
	}
	towns, err := s.store.Towns(ctx, cityKey)
	if err != nil {
		return nil, fmt.Errorf("load towns: %w", err)
	}
	f := trie.New[domain.TownInfo]()
	for _, t := range towns {
		f.Append(townMatchKey(t), t)
	}
	s.cache.Add(cityKey, f)
	return f, nil
}

func (s *TownStage) Process(ctx context.Context, q domain.Query) ([]domain.Query, error) {
	if err := s.barrier.wait(ctx); err != nil {
		return nil, err
	}
	if q.MatchLevel >= domain.LevelMachiaza || q.TempAddress.Empty() {
		return []domain.Query{q}, nil
	}

	target := q.TempAddress.ReplaceAll(oazaPrefixRe, "")

	if q.CityKey == "" {
		return s.processTokyo(q, target)
	}

	finder, err := s.townFinder(ctx, q.CityKey)
	if err != nil {
		return nil, err
	}
	matches, err := finder.Find(trie.Query{
		Target:          target,
		ExtraChallenges: townSuffixRunes,
		Fuzzy:           s.fuzzy,
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []domain.Query{q}, nil
	}
	m := matches[0]
	return []domain.Query{applyTown(q, m.Info, m.Unmatched)}, nil
}

// processTokyo resolves ward and town together for inputs that begin with a
// Tokyo special ward name. Any other record without a resolved city passes
// through unchanged.
func (s *TownStage) processTokyo(q domain.Query, target charnode.Chain) ([]domain.Query, error) {
	if q.Pref != "" && q.Pref != "東京都" {
		return []domain.Query{q}, nil
	}
	matches, err := s.tokyo.Find(trie.Query{
		Target:          target,
		ExtraChallenges: townSuffixRunes,
		Fuzzy:           s.fuzzy,
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []domain.Query{q}, nil
	}
	m := matches[0]
	q = applyCity(q, m.Info.city, 0)
	// applyCity consumed nothing; the combined key consumption lands via the
	// unmatched tail below.
	return []domain.Query{applyTown(q, m.Info.town, m.Unmatched)}, nil
}

func applyTown(q domain.Query, t domain.TownInfo, unmatched charnode.Chain) domain.Query {
	q = q.WithTail(unmatched.TrimLeft("-"))
	q.TownKey = t.TownKey
	q.MachiazaID = t.MachiazaID
	q.OazaCho = t.OazaCho
	q.Chome = t.Chome
	q.Koaza = t.Koaza
	q.RsdtAddrFlg = t.RsdtAddrFlg
	if t.LgCode != "" {
		q.LgCode = t.LgCode
	}

	level := domain.LevelMachiaza
	if t.Chome != "" || t.Koaza != "" {
		level = domain.LevelMachiazaDetail
	}
	q.MatchLevel = level
	return q.SetCoordinates(t.RepLat, t.RepLon, level)
}
