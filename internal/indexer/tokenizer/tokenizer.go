// Package tokenizer provides the text tokenisation contract shared by index
// build and query time. It lower-cases input and splits on every run of
// characters outside [a-z0-9]. There is no stemming and no stop-word removal,
// so a query term only matches the exact indexed term.
package tokenizer

import "strings"

// Identifier names this tokenisation contract in audit blocks. Change it
// whenever Tokenize changes behaviour.
const Identifier = "lowercase-ascii-alnum-split/v1"

// Tokenize breaks text into lowercase alphanumeric terms in their original
// order. Duplicates are kept.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !isAlnum(r)
	})
	if len(words) == 0 {
		return []string{}
	}
	return words
}

// Unique returns tokens with duplicates removed, keeping the first occurrence
// of each term.
func Unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// isAlnum reports whether r is in [a-z0-9]. Input is already lower-cased, so
// upper-case ASCII never reaches here; non-ASCII letters act as separators.
func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
