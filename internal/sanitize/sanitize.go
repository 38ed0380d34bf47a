// Package sanitize strips text down to what a thermal printer can render.
package sanitize

import "strings"

// Accented characters folded to their ASCII equivalents instead of being
// dropped.
var charMap = map[rune]string{
	'à': "a", 'á': "a", 'â': "a", 'ã': "a", 'ä': "a", 'å': "a",
	'è': "e", 'é': "e", 'ê': "e", 'ë': "e",
	'ì': "i", 'í': "i", 'î': "i", 'ï': "i",
	'ò': "o", 'ó': "o", 'ô': "o", 'õ': "o", 'ö': "o", 'ø': "o",
	'ù': "u", 'ú': "u", 'û': "u", 'ü': "u",
	'ý': "y", 'ÿ': "y",
	'ñ': "n",
	'ç': "c",
	'æ': "ae",
	'ß': "ss",
	'À': "A", 'Á': "A", 'Â': "A", 'Ã': "A", 'Ä': "A", 'Å': "A",
	'È': "E", 'É': "E", 'Ê': "E", 'Ë': "E",
	'Ì': "I", 'Í': "I", 'Î': "I", 'Ï': "I",
	'Ò': "O", 'Ó': "O", 'Ô': "O", 'Õ': "O", 'Ö': "O", 'Ø': "O",
	'Ù': "U", 'Ú': "U", 'Û': "U", 'Ü': "U",
	'Ý': "Y",
	'Ñ': "N",
	'Ç': "C",
	'Æ': "AE",
}

func printable(r rune) bool {
	switch r {
	case '\n', '\r', '\t':
		return true
	}
	return r >= 32 && r <= 126
}

// Message removes every character outside printable ASCII plus LF, CR and
// tab. Accented characters are folded to ASCII; everything else is dropped.
// Idempotent.
func Message(text string) string {
	if text == "" {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case printable(r):
			b.WriteRune(r)
		default:
			if mapped, ok := charMap[r]; ok {
				b.WriteString(mapped)
			}
		}
	}
	return b.String()
}

// Name sanitizes a display-name field: disallowed characters become spaces
// and runs of whitespace collapse to single spaces.
func Name(name string) string {
	if name == "" {
		return name
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case printable(r):
			b.WriteRune(r)
		default:
			if mapped, ok := charMap[r]; ok {
				b.WriteString(mapped)
			} else {
				b.WriteByte(' ')
			}
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
