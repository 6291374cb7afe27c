package jptext

import (
	"strings"

	"github.com/LunaInsidious/abr-geocoder/internal/charnode"
)

// jisFoldTable maps old-form (mostly JIS level 2) kanji to the new-form
// characters the reference dictionary is keyed with. The mapping is a fold:
// no value appears as a key, so applying it twice is a no-op.
var jisFoldTable = map[rune]rune{
	'嶋': '島',
	'檜': '桧',
	'龍': '竜',
	'瀧': '滝',
	'藝': '芸',
	'榮': '栄',
	'惠': '恵',
	'團': '団',
	'圓': '円',
	'國': '国',
	'廣': '広',
	'濱': '浜',
	'學': '学',
	'櫻': '桜',
	'澤': '沢',
	'齋': '斎',
	'齊': '斉',
	'眞': '真',
	'與': '与',
	'轉': '転',
	'醫': '医',
	'鐵': '鉄',
	'曾': '曽',
	'彌': '弥',
	'壽': '寿',
	'峯': '峰',
	'邊': '辺',
	'邉': '辺',
	'籠': '篭',
	'驒': '騨',
	'惡': '悪',
	'發': '発',
	'會': '会',
	'區': '区',
	'縣': '県',
	'鄕': '郷',
	'舘': '館',
	'淺': '浅',
	'藏': '蔵',
	'寳': '宝',
	'條': '条',
	'淵': '渕',
	'埜': '野',
	'嶽': '岳',
	'萬': '万',
}

// jisFoldRune folds one rune through the old-form table.
func jisFoldRune(r rune) rune {
	if folded, ok := jisFoldTable[r]; ok {
		return folded
	}
	return r
}

// JISFold rewrites old-form kanji in s to the new forms used by the
// reference dictionary.
func JISFold(s string) string {
	return strings.Map(jisFoldRune, s)
}

// JISFoldChain is the provenance-preserving variant of JISFold.
func JISFoldChain(c charnode.Chain) charnode.Chain {
	return c.Map(jisFoldRune)
}
