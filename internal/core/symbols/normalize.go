// Package symbols maps operator and venue symbol spellings to the base asset
// the engine works with ("BTC").
package symbols

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Quote assets and contract suffixes stripped from a pair.
var suffixes = []string{"USDT", "USDC", "USD", "PERP"}

var aliases = map[string]string{
	"XBT": "BTC",
}

var upper = cases.Upper(language.Und)

// Normalize folds width and case, drops separators, strips quote suffixes
// and resolves aliases: "btc-usdt", "BTC_USDT", "ＢＴＣ", "xbt" all give "BTC".
func Normalize(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	s = upper.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)

	for changed := true; changed; {
		changed = false
		for _, suf := range suffixes {
			if len(s) > len(suf) && strings.HasSuffix(s, suf) {
				s = strings.TrimSuffix(s, suf)
				changed = true
			}
		}
	}
	if canonical, ok := aliases[s]; ok {
		return canonical
	}
	return s
}

// Valid reports whether s is already a normalized base asset.
func Valid(s string) bool {
	return s != "" && Normalize(s) == s
}
