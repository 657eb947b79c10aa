// Package slug turns free text into URL-safe lowercase ASCII identifiers.
package slug

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fallback is returned when nothing survives normalization
const Fallback = "n-a"

// letters that do not decompose into an ASCII base plus combining marks
var transliterations = map[rune]string{
	'ß': "ss", 'æ': "ae", 'ø': "o", 'œ': "oe", 'ł': "l", 'đ': "d", 'ð': "d", 'þ': "th", 'ı': "i",
	'а': "a", 'б': "b", 'в': "v", 'г': "h", 'ґ': "g", 'д': "d", 'е': "e", 'є': "ie", 'ж': "zh",
	'з': "z", 'и': "y", 'і': "i", 'ї': "i", 'й': "i", 'к': "k", 'л': "l", 'м': "m", 'н': "n",
	'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ф': "f", 'х': "kh", 'ц': "ts",
	'ч': "ch", 'ш': "sh", 'щ': "shch", 'ь': "", 'ю': "iu", 'я': "ia", 'ё': "e", 'ы': "y", 'э': "e",
	'ъ': "",
}

var lower = cases.Lower(language.Und)

// Make normalizes text into a slug: lowercase ASCII letters and digits
// separated by single hyphens, never leading or trailing. Empty results
// become Fallback.
func Make(text string) string {
	folded := lower.String(text)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if t, ok := transliterations[r]; ok {
			b.WriteString(t)
			continue
		}
		b.WriteRune(r)
	}

	stripped, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		b.String(),
	)
	if err != nil {
		stripped = b.String()
	}

	var out strings.Builder
	out.Grow(len(stripped))
	pendingHyphen := false
	for _, r := range stripped {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && out.Len() > 0 {
				out.WriteByte('-')
			}
			pendingHyphen = false
			out.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	if out.Len() == 0 {
		return Fallback
	}
	return out.String()
}

// WithSuffix returns base for n == 0 and base-n otherwise
func WithSuffix(base string, n int) string {
	if n == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}
