package jptext

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LunaInsidious/abr-geocoder/internal/charnode"
)

func TestKanToNum(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single digit", "三", "3"},
		{"positional tens", "二十三", "23"},
		{"bare ten", "十", "10"},
		{"hundreds", "百五", "105"},
		{"thousands", "三千四百", "3400"},
		{"sections", "千二百万", "12000000"},
		{"digit sequence", "一〇三", "103"},
		{"leading zero sequence", "〇三", "03"},
		{"embedded in text", "丸の内一丁目", "丸の内1丁目"},
		{"no numerals", "丸の内", "丸の内"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KanToNum(tt.in))
		})
	}
}

func TestToHiragana(t *testing.T) {
	assert.Equal(t, "おおてまち", ToHiragana("オオテマチ"))
	assert.Equal(t, "自由がおか", ToHiragana("自由ガオカ"))
	// ヶ folds to the small ゖ, not け.
	assert.Equal(t, "霞ゖ関", ToHiragana("霞ヶ関"))
	// The prolonged sound mark is outside the folded range.
	assert.Equal(t, "らーめん", ToHiragana("らーめん"))
}

func TestJISFoldIdempotent(t *testing.T) {
	for old, modern := range jisFoldTable {
		folded := JISFold(string(old))
		assert.Equal(t, string(modern), folded)
		assert.Equal(t, folded, JISFold(folded), "fold of %c must be stable", old)
	}
}

func TestStripSuffix(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"chome", "1丁目", "1-"},
		{"chome no", "1丁目の", "1-"},
		{"banchi", "23番地", "23-"},
		{"go", "4号", "4-"},
		{"chained", "1丁目8番1号", "1-8-1-"},
		{"hyphen variant", "8-番", "8-"},
		{"untouched", "丸の内", "丸の内"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripSuffix(tt.in))
		})
	}
}

func TestStripZip(t *testing.T) {
	assert.Equal(t, "東京都", StripZip("〒100-0001 東京都"))
	assert.Equal(t, "東京都", StripZip("1000001 東京都"))
	assert.Equal(t, "東京都", StripZip("100-0001東京都"))
	// Only a leading postal code is stripped.
	assert.Equal(t, "東京都100-0001", StripZip("東京都100-0001"))
}

func TestNormalizeStringAndChainConverge(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"kanji ordinal", "丸の内一丁目"},
		{"digit ordinal", "丸の内1丁目"},
		{"banchi go", "丸の内1丁目8番1号"},
		{"katakana", "オオテマチ二丁目"},
		{"old form kanji", "櫻川三番地"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viaString := NormalizeString(tt.in)
			viaChain := NormalizeChain(charnode.FromString(tt.in)).String()
			assert.Equal(t, viaString, viaChain)
		})
	}
}

func TestIngestChain(t *testing.T) {
	c := IngestChain("〒100-0001 東京都千代田区丸の内１丁目")
	assert.Equal(t, "東京都千代田区丸の内1-", c.String())

	// The first surviving character anchors to its original position, after
	// the stripped postal code.
	assert.Equal(t, 10, c.NextOrigIndex())
}

func TestFoldWidth(t *testing.T) {
	assert.Equal(t, "123AB", FoldWidth("１２３ＡＢ"))
	assert.Equal(t, "1-2", FoldWidth("１－２"))
}

func TestCollapseSpace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseSpace("a  b\t c"))
	assert.Equal(t, "", CollapseSpace("   "))
}
