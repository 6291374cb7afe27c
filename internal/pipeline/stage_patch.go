package pipeline

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
)

// addressPatches are corrective rewrites for spellings the source registry and
// common usage disagree on, mostly variant kanji forms. They apply in order to
// the residual address after town resolution, so block and parcel matching
// sees the registry's spelling.
var addressPatches = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`糀町`), "麹町"},
	{regexp.MustCompile(`薮`), "藪"},
	{regexp.MustCompile(`埓`), "埒"},
	{regexp.MustCompile(`袮`), "祢"},
	// Full-size ケ vs small ヶ, after the kana fold both sides went through:
	// け is folded ケ, ゖ is folded ヶ.
	{regexp.MustCompile(`け崎`), "ゖ崎"},
}

// PatchStage applies the corrective spelling rewrites.
type PatchStage struct {
	logger *slog.Logger
}

func NewPatchStage(logger *slog.Logger) *PatchStage {
	return &PatchStage{logger: logger}
}

func (s *PatchStage) Name() string { return "patch" }

func (s *PatchStage) Process(ctx context.Context, q domain.Query) ([]domain.Query, error) {
	if q.MatchLevel >= domain.LevelResidentialBlock || q.TempAddress.Empty() {
		return []domain.Query{q}, nil
	}
	tail := q.TempAddress
	for _, p := range addressPatches {
		tail = tail.ReplaceAll(p.re, p.repl)
	}
	return []domain.Query{q.WithTail(tail)}, nil
}
