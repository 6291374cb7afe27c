package jptext

import (
	"strings"

	"github.com/LunaInsidious/abr-geocoder/internal/charnode"
)

// katakanaToHiragana folds a katakana code point into its hiragana
// counterpart. The two blocks are offset by 0x60 for ァ (U+30A1) through
// ヶ (U+30F6); everything else passes through unchanged.
func katakanaToHiragana(r rune) rune {
	if r >= 'ァ' && r <= 'ヶ' {
		return r - 0x60
	}
	return r
}

// ToHiragana converts all katakana in s to hiragana.
func ToHiragana(s string) string {
	return strings.Map(katakanaToHiragana, s)
}

// ToHiraganaChain is the provenance-preserving variant of ToHiragana.
func ToHiraganaChain(c charnode.Chain) charnode.Chain {
	return c.Map(katakanaToHiragana)
}
