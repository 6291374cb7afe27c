package jptext

import (
	"regexp"
	"strconv"

	"github.com/LunaInsidious/abr-geocoder/internal/charnode"
)

var (
	kanjiDigits = map[rune]int64{
		'〇': 0, '零': 0,
		'一': 1, '二': 2, '三': 3, '四': 4, '五': 5,
		'六': 6, '七': 7, '八': 8, '九': 9,
	}
	kanjiUnits = map[rune]int64{
		'十': 10, '百': 100, '千': 1000,
	}
	kanjiSections = map[rune]int64{
		'万': 10_000, '億': 100_000_000,
	}

	kanjiNumRe = regexp.MustCompile(`[〇零一二三四五六七八九十百千万億]+`)
)

// KanToNum rewrites every run of kanji numerals in s to ASCII digits.
// Compound positional forms decompose the usual way (二十三 → 23,
// 三千四百万 → 34000000); runs without unit characters are read as digit
// sequences (一〇三 → 103).
func KanToNum(s string) string {
	return kanjiNumRe.ReplaceAllStringFunc(s, convertKanjiRun)
}

// KanToNumChain is the provenance-preserving variant of KanToNum. Digits
// produced for a run carry the original index of the run's first character.
func KanToNumChain(c charnode.Chain) charnode.Chain {
	return c.ReplaceAllFunc(kanjiNumRe, convertKanjiRun)
}

// convertKanjiRun converts one contiguous run of kanji numerals.
func convertKanjiRun(run string) string {
	var total, section, digit int64
	positional := false

	for _, r := range run {
		switch {
		case kanjiUnits[r] != 0:
			positional = true
			if digit == 0 {
				digit = 1
			}
			section += digit * kanjiUnits[r]
			digit = 0
		case kanjiSections[r] != 0:
			positional = true
			section += digit
			if section == 0 {
				section = 1
			}
			total += section * kanjiSections[r]
			section = 0
			digit = 0
		default:
			d := kanjiDigits[r]
			digit = digit*10 + d
		}
	}
	total += section + digit

	if !positional && leadingZeroRun(run) {
		// Digit-sequence runs keep leading zeros: 〇三 → 03.
		return digitSequence(run)
	}
	return strconv.FormatInt(total, 10)
}

// leadingZeroRun reports whether a unit-free run starts with 〇 or 零, in
// which case plain integer formatting would drop significant characters.
func leadingZeroRun(run string) bool {
	for _, r := range run {
		return r == '〇' || r == '零'
	}
	return false
}

func digitSequence(run string) string {
	out := make([]byte, 0, len(run))
	for _, r := range run {
		out = append(out, byte('0'+kanjiDigits[r]))
	}
	return string(out)
}
