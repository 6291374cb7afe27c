// Package jptext implements the text normalization the matcher dictionary and
// incoming addresses share: width folding, katakana→hiragana, kanji numeral
// decomposition, old-form kanji folding, and address-suffix collapsing.
//
// Every operator exists in two variants: a plain string form used when keying
// the dictionary, and a provenance-preserving charnode form used on the
// residual address a query carries through the pipeline. The two variants
// apply the same rewrites; only bookkeeping differs.
//
// Application order differs deliberately. NormalizeString runs hiragana,
// kanji numerals, JIS fold, then suffix strip. NormalizeChain runs the suffix
// strip first, while the chain still aligns 1:1 with the input, so the
// collapse destroys the least positional provenance, then the three 1:1
// folds.
package jptext

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"github.com/LunaInsidious/abr-geocoder/internal/charnode"
)

var (
	// suffixRe collapses numeric address ordinals and their suffix noise to a
	// plain hyphen separator: 1丁目の → "1-", 23番地 → "23-".
	suffixRe = regexp.MustCompile(`([0-9]+)-?[番号町地丁目]+の?`)

	// zipRe matches a leading postal code, with or without the 〒 mark.
	zipRe = regexp.MustCompile(`^〒?[0-9]{3}-?[0-9]{4}\s*`)
)

// FoldWidth folds full-width ASCII and related compatibility forms to their
// canonical narrow counterparts (１２３ＡＢ → 123AB).
func FoldWidth(s string) string {
	return width.Fold.String(s)
}

// StripSuffix rewrites ordinal/address suffixes after a number to a hyphen.
func StripSuffix(s string) string {
	return suffixRe.ReplaceAllString(s, "$1-")
}

// StripSuffixChain is the provenance-preserving variant of StripSuffix.
func StripSuffixChain(c charnode.Chain) charnode.Chain {
	return c.ReplaceAll(suffixRe, "$1-")
}

// StripZip removes a leading 〒NNN-NNNN postal code and any whitespace that
// follows it. The input must already be width-folded.
func StripZip(s string) string {
	return zipRe.ReplaceAllString(s, "")
}

// StripZipChain is the provenance-preserving variant of StripZip.
func StripZipChain(c charnode.Chain) charnode.Chain {
	return c.ReplaceAll(zipRe, "")
}

// NormalizeString canonicalizes a dictionary key: hiragana, kanji numerals,
// JIS fold, suffix strip.
func NormalizeString(s string) string {
	s = ToHiragana(s)
	s = KanToNum(s)
	s = JISFold(s)
	return StripSuffix(s)
}

// NormalizeChain canonicalizes a query's residual address the same way,
// preserving provenance: suffix strip first, then the 1:1 folds. Ordinals
// written with kanji numerals only become digits after KanToNumChain, so the
// suffix strip runs once more afterwards; the pass is a no-op on anything the
// first pass already collapsed, keeping both normalization variants on the
// same canonical form.
func NormalizeChain(c charnode.Chain) charnode.Chain {
	c = StripSuffixChain(c)
	c = ToHiraganaChain(c)
	c = KanToNumChain(c)
	c = StripSuffixChain(c)
	return JISFoldChain(c)
}

// IngestChain builds the initial residual chain for a raw input line: width
// fold each character in place, drop whitespace, strip a leading postal code,
// then apply NormalizeChain.
func IngestChain(input string) charnode.Chain {
	c := charnode.FromString(input)
	c = c.Map(foldWidthRune)
	c = c.StripSpace()
	c = StripZipChain(c)
	return NormalizeChain(c)
}

// foldWidthRune is the per-rune form of FoldWidth. width.Fold is defined per
// code point, so mapping rune-by-rune matches the string fold.
func foldWidthRune(r rune) rune {
	folded := width.Fold.String(string(r))
	rs := []rune(folded)
	if len(rs) != 1 {
		return r
	}
	return rs[0]
}

// CollapseSpace canonicalizes whitespace in a plain string to single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
