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
)

// PrefectureStage resolves the leading prefecture name. Both the full form
// (東京都) and the bare form (東京) are accepted; the administrative suffix is
// optional in the pattern.
//
// A handful of county/city names begin with another prefecture's bare name
// (石川郡石川町 in 福島県). For those, a dedicated pattern keyed on the full
// county+city string resolves the prefecture the city actually belongs to
// without consuming any characters, leaving the city stage to do the real
// consumption.
type PrefectureStage struct {
	logger  *slog.Logger
	barrier *initBarrier

	patterns     []prefPattern
	samePatterns []prefPattern
}

type prefPattern struct {
	re   *regexp.Regexp
	info domain.PrefectureInfo
	// consume is false for same-named patterns, which only identify the
	// prefecture.
	consume bool
}

func NewPrefectureStage(ctx context.Context, store domain.ReferenceStore, logger *slog.Logger) *PrefectureStage {
	s := &PrefectureStage{
		logger:  logger,
		barrier: newInitBarrier(),
	}
	go func() {
		s.barrier.finish(s.build(ctx, store))
	}()
	return s
}

func (s *PrefectureStage) Name() string { return "prefecture" }

func (s *PrefectureStage) build(ctx context.Context, store domain.ReferenceStore) error {
	prefs, err := store.Prefectures(ctx)
	if err != nil {
		return fmt.Errorf("load prefectures: %w", err)
	}
	cities, err := store.Cities(ctx)
	if err != nil {
		return fmt.Errorf("load cities: %w", err)
	}

	byKey := make(map[string]domain.PrefectureInfo, len(prefs))
	for _, p := range prefs {
		byKey[p.PrefKey] = p

		bare := prefBareName(p.Pref)
		s.patterns = append(s.patterns, prefPattern{
			re:      regexp.MustCompile("^" + regexp.QuoteMeta(jptext.NormalizeString(bare)) + "(?:都|道|府|県)?"),
			info:    p,
			consume: true,
		})
	}

	// County or city names that begin with another prefecture's bare name.
	// The pattern requires the full county+city string, so it only fires
	// when the disambiguating city name actually follows.
	for _, c := range cities {
		full := c.County + c.City
		for _, p := range prefs {
			bare := prefBareName(p.Pref)
			if !strings.HasPrefix(full, bare) || full == p.Pref {
				continue
			}
			owner, ok := byKey[c.PrefKey]
			if !ok {
				continue
			}
			s.samePatterns = append(s.samePatterns, prefPattern{
				re:   regexp.MustCompile("^" + regexp.QuoteMeta(jptext.NormalizeString(full))),
				info: owner,
			})
		}
	}

	// Longest bare names first, so 鹿児島 is tried before 鹿 would ever be.
	sort.SliceStable(s.patterns, func(i, j int) bool {
		return len(s.patterns[i].info.Pref) > len(s.patterns[j].info.Pref)
	})

	s.logger.Info("prefecture dictionary built",
		"prefectures", len(prefs),
		"same_named_patterns", len(s.samePatterns),
	)
	return nil
}

func (s *PrefectureStage) Process(ctx context.Context, q domain.Query) ([]domain.Query, error) {
	if err := s.barrier.wait(ctx); err != nil {
		return nil, err
	}
	if q.MatchLevel >= domain.LevelPrefecture {
		return []domain.Query{q}, nil
	}

	target := q.TempAddress.String()

	// Same-named county/city patterns run first: an input starting with
	// 石川郡石川町 belongs to 福島県, not 石川県.
	for _, sp := range s.samePatterns {
		if sp.re.MatchString(target) {
			return []domain.Query{applyPrefecture(q, sp.info, 0)}, nil
		}
	}

	bestLen := 0
	var best domain.PrefectureInfo
	for _, pp := range s.patterns {
		loc := pp.re.FindStringIndex(target)
		if loc != nil && loc[1] > bestLen {
			bestLen = loc[1]
			best = pp.info
		}
	}
	if bestLen == 0 {
		return []domain.Query{q}, nil
	}
	consumed := utf8.RuneCountInString(target[:bestLen])
	return []domain.Query{applyPrefecture(q, best, consumed)}, nil
}

func applyPrefecture(q domain.Query, info domain.PrefectureInfo, consumed int) domain.Query {
	if consumed > 0 {
		q = q.WithTail(q.TempAddress.Slice(consumed))
	}
	q.PrefKey = info.PrefKey
	q.Pref = info.Pref
	q.LgCode = info.LgCode
	q.MatchLevel = domain.LevelPrefecture
	return q.SetCoordinates(info.RepLat, info.RepLon, domain.LevelPrefecture)
}

// prefBareName strips the administrative suffix: 東京都 → 東京. 北海道 keeps
// its full name; its 道 is not an optional suffix.
func prefBareName(name string) string {
	if name == "北海道" {
		return name
	}
	runes := []rune(name)
	if len(runes) < 2 {
		return name
	}
	switch runes[len(runes)-1] {
	case '都', '府', '県':
		return string(runes[:len(runes)-1])
	}
	return name
}
