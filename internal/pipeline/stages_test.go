package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LunaInsidious/abr-geocoder/internal/charnode"
	"github.com/LunaInsidious/abr-geocoder/internal/domain"
	"github.com/LunaInsidious/abr-geocoder/internal/jptext"
	"github.com/LunaInsidious/abr-geocoder/internal/observability"
)

func ingested(input string) domain.Query {
	q := domain.NewQuery(input, time.Now())
	q.TempAddress = jptext.IngestChain(input)
	return q
}

func one(t *testing.T, s Stage, q domain.Query) domain.Query {
	t.Helper()
	out, err := s.Process(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0]
}

func TestNormalizeStage(t *testing.T) {
	s := NewNormalizeStage(observability.NewDiscardLogger())

	q := one(t, s, domain.NewQuery("〒100-0001 東京都千代田区", time.Now()))
	assert.Equal(t, "東京都千代田区", q.TempAddress.String())
	assert.Equal(t, 0, q.MatchedCnt)

	// Running it again leaves a populated chain alone.
	again := one(t, s, q)
	assert.Equal(t, q.TempAddress.String(), again.TempAddress.String())

	// A fully consumed, resolved record stays consumed; its empty chain must
	// not be mistaken for a fresh record.
	done := domain.NewQuery("東京都千代田区", time.Now())
	done.MatchLevel = domain.LevelCity
	done.MatchedCnt = 7
	out := one(t, s, done)
	assert.True(t, out.TempAddress.Empty())
	assert.Equal(t, 7, out.MatchedCnt)
}

func TestStagesIdempotentOnResolvedRecord(t *testing.T) {
	ctx := context.Background()
	logger := observability.NewDiscardLogger()
	stages, err := BuildStages(ctx, newFixtureStore(), Options{TrieCache: 16}, logger)
	require.NoError(t, err)
	p := New(stages, logger, observability.NewMetricsForTesting())

	resolved, err := p.Geocode(ctx, "東京都千代田区丸の内1-8-1")
	require.NoError(t, err)
	require.Equal(t, domain.LevelResidentialDetail, resolved.MatchLevel)
	require.True(t, resolved.TempAddress.Empty())

	// Re-running any stage on a fully resolved record must change nothing.
	for _, s := range stages {
		t.Run(s.Name(), func(t *testing.T) {
			out, err := s.Process(ctx, resolved)
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.True(t, out[0].TempAddress.Empty())
			assert.Equal(t, resolved.MatchLevel, out[0].MatchLevel)
			assert.Equal(t, resolved.MatchedCnt, out[0].MatchedCnt)
		})
	}
}

func TestPrefectureStage(t *testing.T) {
	ctx := context.Background()
	s := NewPrefectureStage(ctx, newFixtureStore(), observability.NewDiscardLogger())

	tests := []struct {
		name     string
		input    string
		wantPref string
		wantTail string
	}{
		{"full form", "東京都千代田区", "東京都", "千代田区"},
		{"bare form", "東京千代田区", "東京都", "千代田区"},
		{"hokkaido", "北海道札幌市", "北海道", "札幌市"},
		{"same-named county consumes nothing", "石川郡石川町下泉", "福島県", "石川郡石川町下泉"},
		{"ishikawa proper", "石川県金沢市", "石川県", "金沢市"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := one(t, s, ingested(tt.input))
			assert.Equal(t, domain.LevelPrefecture, q.MatchLevel)
			assert.Equal(t, tt.wantPref, q.Pref)
			assert.Equal(t, tt.wantTail, q.TempAddress.String())
		})
	}

	t.Run("no match passes through", func(t *testing.T) {
		q := one(t, s, ingested("どこでもない場所"))
		assert.Equal(t, domain.LevelUnknown, q.MatchLevel)
	})

	t.Run("already resolved is untouched", func(t *testing.T) {
		in := ingested("東京都千代田区")
		in.MatchLevel = domain.LevelCity
		q := one(t, s, in)
		assert.Equal(t, "東京都千代田区", q.TempAddress.String())
	})
}

func TestCityStage(t *testing.T) {
	ctx := context.Background()
	store := newFixtureStore()
	pref := NewPrefectureStage(ctx, store, observability.NewDiscardLogger())
	city := NewCityStage(ctx, store, 0, observability.NewDiscardLogger())

	t.Run("with resolved prefecture", func(t *testing.T) {
		q := one(t, pref, ingested("東京都千代田区丸の内"))
		q = one(t, city, q)

		assert.Equal(t, domain.LevelCity, q.MatchLevel)
		assert.Equal(t, "千代田区", q.City)
		assert.Equal(t, "131016", q.LgCode)
		assert.Equal(t, "丸の内", q.TempAddress.String())
	})

	t.Run("without prefecture adopts the city's", func(t *testing.T) {
		q := one(t, city, ingested("八王子市元本郷町"))

		assert.Equal(t, domain.LevelCity, q.MatchLevel)
		assert.Equal(t, "東京都", q.Pref)
		assert.Equal(t, "八王子市", q.City)
	})

	t.Run("designated city ward", func(t *testing.T) {
		q := one(t, city, ingested("札幌市中央区南3条"))

		assert.Equal(t, "札幌市", q.City)
		assert.Equal(t, "中央区", q.Ward)
	})

	t.Run("county omitted", func(t *testing.T) {
		q := one(t, city, ingested("石川町下泉"))

		assert.Equal(t, "石川町", q.City)
		assert.Equal(t, "石川郡", q.County)
		assert.Equal(t, "下泉", q.TempAddress.String())
	})

	t.Run("prefecture filter rejects foreign cities", func(t *testing.T) {
		in := ingested("千代田区丸の内")
		prefs, err := store.Prefectures(ctx)
		require.NoError(t, err)
		for _, p := range prefs {
			if p.Pref == "大阪府" {
				in.PrefKey = p.PrefKey
				in.Pref = p.Pref
			}
		}
		in.MatchLevel = domain.LevelPrefecture

		q := one(t, city, in)
		assert.Equal(t, domain.LevelPrefecture, q.MatchLevel)
	})
}

func TestCityRecoveryStage(t *testing.T) {
	ctx := context.Background()
	s := NewCityRecoveryStage(ctx, newFixtureStore(), 0, observability.NewDiscardLogger())

	t.Run("bare name without suffix", func(t *testing.T) {
		q := one(t, s, ingested("八王子元本郷町"))
		assert.Equal(t, domain.LevelCity, q.MatchLevel)
		assert.Equal(t, "八王子市", q.City)
		assert.Equal(t, "元本郷町", q.TempAddress.String())
	})

	t.Run("resolved records pass through", func(t *testing.T) {
		in := ingested("八王子元本郷町")
		in.MatchLevel = domain.LevelCity
		in.City = "既決"
		q := one(t, s, in)
		assert.Equal(t, "既決", q.City)
	})
}

func TestTownStage(t *testing.T) {
	ctx := context.Background()
	store := newFixtureStore()
	city := NewCityStage(ctx, store, 0, observability.NewDiscardLogger())
	town, err := NewTownStage(ctx, store, 0, 16, observability.NewDiscardLogger())
	require.NoError(t, err)

	t.Run("chome collapses onto the hyphen form", func(t *testing.T) {
		q := one(t, city, ingested("千代田区丸の内1丁目8"))
		q = one(t, town, q)

		assert.Equal(t, domain.LevelMachiazaDetail, q.MatchLevel)
		assert.Equal(t, "丸の内", q.OazaCho)
		assert.Equal(t, "一丁目", q.Chome)
		assert.Equal(t, "1", q.RsdtAddrFlg)
		assert.Equal(t, "8", q.TempAddress.String())
	})

	t.Run("oaza prefix stripped", func(t *testing.T) {
		q := one(t, city, ingested("石川郡石川町大字下泉269"))
		q = one(t, town, q)

		assert.Equal(t, domain.LevelMachiaza, q.MatchLevel)
		assert.Equal(t, "下泉", q.OazaCho)
		assert.Equal(t, "269", q.TempAddress.String())
	})

	t.Run("tokyo ward resolves city and town together", func(t *testing.T) {
		q := one(t, town, ingested("千代田区大手町1丁目5"))

		assert.Equal(t, domain.LevelMachiazaDetail, q.MatchLevel)
		assert.Equal(t, "千代田区", q.City)
		assert.NotEmpty(t, q.CityKey)
		assert.Equal(t, "大手町", q.OazaCho)
		assert.Equal(t, "5", q.TempAddress.String())
	})

	t.Run("per-city dictionaries are cached", func(t *testing.T) {
		fresh, err := NewTownStage(ctx, store, 0, 16, observability.NewDiscardLogger())
		require.NoError(t, err)

		q := one(t, city, ingested("千代田区丸の内1"))
		one(t, fresh, q)
		one(t, fresh, q)
		assert.Equal(t, 1, fresh.cache.Len())
	})
}

func TestPatchStage(t *testing.T) {
	s := NewPatchStage(observability.NewDiscardLogger())

	in := domain.NewQuery("糀町1", time.Now())
	in.TempAddress = charnode.FromString("糀町1")
	q := one(t, s, in)
	assert.Equal(t, "麹町1", q.TempAddress.String())

	// Patched characters keep their positional anchor.
	assert.Equal(t, 0, q.TempAddress.NextOrigIndex())
}

func TestResidenceStageRequiresFlag(t *testing.T) {
	store := newFixtureStore()
	s, err := NewResidenceStage(store, 0, 16, observability.NewDiscardLogger())
	require.NoError(t, err)

	towns := store.towns[cityKeyOf("075019")]
	require.NotEmpty(t, towns)

	in := ingested("8-1")
	in.MatchLevel = domain.LevelMachiaza
	in.TownKey = towns[0].TownKey
	in.RsdtAddrFlg = "0"

	q := one(t, s, in)
	assert.Equal(t, domain.LevelMachiaza, q.MatchLevel)
	assert.Empty(t, q.Block)
}

func TestParcelStageSkipsResidenceAreas(t *testing.T) {
	store := newFixtureStore()
	s, err := NewParcelStage(store, 0, 16, observability.NewDiscardLogger())
	require.NoError(t, err)

	in := ingested("269-1")
	in.MatchLevel = domain.LevelMachiazaDetail
	in.TownKey = "some-town"
	in.RsdtAddrFlg = "1"

	q := one(t, s, in)
	assert.Equal(t, domain.LevelMachiazaDetail, q.MatchLevel)
	assert.Empty(t, q.PrcNum1)
}

func TestParcelStagePrefersFullConsumption(t *testing.T) {
	store := newFixtureStore()
	s, err := NewParcelStage(store, 0, 16, observability.NewDiscardLogger())
	require.NoError(t, err)

	towns := store.towns[cityKeyOf("075019")]
	require.NotEmpty(t, towns)

	in := ingested("269-1")
	in.MatchLevel = domain.LevelMachiaza
	in.TownKey = towns[0].TownKey
	in.RsdtAddrFlg = "0"

	q := one(t, s, in)
	assert.Equal(t, domain.LevelParcel, q.MatchLevel)
	assert.Equal(t, "269", q.PrcNum1)
	assert.Equal(t, "1", q.PrcNum2)
	assert.True(t, q.TempAddress.Empty())
}
