package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
	"github.com/LunaInsidious/abr-geocoder/internal/jptext"
	"github.com/LunaInsidious/abr-geocoder/internal/trie"
)

// citySuffixRunes are administrative suffixes the matcher may step over in a
// stored city key when the input omits them.
var citySuffixRunes = []rune{'市', '町', '村', '区', '郡'}

// CityStage resolves the city, county, and ward portion. It runs two
// sub-matchers and merges their candidates:
//
//   - a per-prefecture regex pass, usable once the prefecture is known, whose
//     alternation covers every county+city+ward spelling of that prefecture
//   - a nationwide trie pass that also works without a resolved prefecture,
//     with county-less spellings and optional administrative suffixes
//
// The merge keeps the deepest consumption; on a tie every distinct city
// survives as its own candidate for the later stages to disambiguate.
type CityStage struct {
	logger  *slog.Logger
	barrier *initBarrier
	fuzzy   rune

	finder       *trie.Finder[domain.CityInfo]
	prefPatterns map[string]*cityPatternSet
}

type cityPatternSet struct {
	re    *regexp.Regexp
	byKey map[string][]domain.CityInfo
}

func NewCityStage(ctx context.Context, store domain.ReferenceStore, fuzzy rune, logger *slog.Logger) *CityStage {
	s := &CityStage{
		logger:       logger,
		barrier:      newInitBarrier(),
		fuzzy:        fuzzy,
		finder:       trie.New[domain.CityInfo](),
		prefPatterns: make(map[string]*cityPatternSet),
	}
	go func() {
		s.barrier.finish(s.build(ctx, store))
	}()
	return s
}

func (s *CityStage) Name() string { return "city" }

func (s *CityStage) build(ctx context.Context, store domain.ReferenceStore) error {
	cities, err := store.Cities(ctx)
	if err != nil {
		return fmt.Errorf("load cities: %w", err)
	}

	perPref := make(map[string]map[string][]domain.CityInfo)
	for _, c := range cities {
		for _, key := range cityMatchKeys(c) {
			s.finder.Append(key, c)

			keys := perPref[c.PrefKey]
			if keys == nil {
				keys = make(map[string][]domain.CityInfo)
				perPref[c.PrefKey] = keys
			}
			keys[key] = append(keys[key], c)
		}
	}

	for prefKey, byKey := range perPref {
		alts := make([]string, 0, len(byKey))
		for k := range byKey {
			alts = append(alts, k)
		}
		// Go alternation is leftmost-first, so longer spellings must come
		// first for the full county+city form to win over the bare city.
		sort.Slice(alts, func(i, j int) bool {
			if len(alts[i]) != len(alts[j]) {
				return len(alts[i]) > len(alts[j])
			}
			return alts[i] < alts[j]
		})
		for i, a := range alts {
			alts[i] = regexp.QuoteMeta(a)
		}
		pattern := "^(?:" + strings.Join(alts, "|") + ")"
		s.prefPatterns[prefKey] = &cityPatternSet{
			re:    regexp.MustCompile(pattern),
			byKey: byKey,
		}
	}

	s.logger.Info("city dictionary built", "cities", len(cities), "keys", s.finder.Len())
	return nil
}

// cityMatchKeys returns the normalized spellings under which a city row is
// findable: the full county+city+ward form and, when the city sits in a
// county, the form without the county.
func cityMatchKeys(c domain.CityInfo) []string {
	keys := []string{jptext.NormalizeString(c.County + c.City + c.Ward)}
	if c.County != "" {
		keys = append(keys, jptext.NormalizeString(c.City+c.Ward))
	}
	return keys
}

func (s *CityStage) Process(ctx context.Context, q domain.Query) ([]domain.Query, error) {
	if err := s.barrier.wait(ctx); err != nil {
		return nil, err
	}
	if q.MatchLevel >= domain.LevelCity {
		return []domain.Query{q}, nil
	}

	var candidates []cityCandidate

	if q.PrefKey != "" {
		if ps, ok := s.prefPatterns[q.PrefKey]; ok {
			target := q.TempAddress.String()
			if m := ps.re.FindString(target); m != "" {
				consumed := utf8.RuneCountInString(m)
				for _, info := range ps.byKey[m] {
					candidates = append(candidates, cityCandidate{info: info, depth: consumed})
				}
			}
		}
	}

	matches, err := s.finder.Find(trie.Query{
		Target:          q.TempAddress,
		ExtraChallenges: citySuffixRunes,
		Fuzzy:           s.fuzzy,
	})
	if err != nil {
		return nil, err
	}
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

type cityCandidate struct {
	info  domain.CityInfo
	depth int
}

// applyCityCandidates keeps the deepest candidates, one query per distinct
// city key.
func applyCityCandidates(q domain.Query, candidates []cityCandidate) []domain.Query {
	maxDepth := 0
	for _, c := range candidates {
		if c.depth > maxDepth {
			maxDepth = c.depth
		}
	}

	seen := make(map[string]struct{})
	var out []domain.Query
	for _, c := range candidates {
		if c.depth < maxDepth {
			continue
		}
		if _, ok := seen[c.info.CityKey]; ok {
			continue
		}
		seen[c.info.CityKey] = struct{}{}
		out = append(out, applyCity(q, c.info, c.depth))
	}
	return out
}

func applyCity(q domain.Query, info domain.CityInfo, consumed int) domain.Query {
	q = q.WithTail(q.TempAddress.Slice(consumed))
	q.CityKey = info.CityKey
	q.LgCode = info.LgCode
	q.County = info.County
	q.City = info.City
	q.Ward = info.Ward
	if q.PrefKey == "" {
		q.PrefKey = info.PrefKey
		q.Pref = info.Pref
	}
	q.MatchLevel = domain.LevelCity
	return q.SetCoordinates(info.RepLat, info.RepLon, domain.LevelCity)
}
