package markov

import "strings"

// punctRunes are the punctuation characters spec.md §4.10 step 1 names
// ("certain punctuation runs (.,!?)").
const punctRunes = ".,!?"

// Tokenize splits text by whitespace, then splits a trailing
// punctuation character off each field, while keeping a punctuation character
// glued to its word whenever it is followed by another non-space
// character within the same field (spec.md's Open Question: "the
// 'should_split' punctuation tokeniser... keeps them inside tokens
// when followed by non-space" — reproduced verbatim here, applied
// uniformly to all four characters in punctRunes rather than only `.`
// and `?`, recorded as the resolution in DESIGN.md). This is what
// keeps a URL-like token such as "example.com" whole while still
// splitting ordinary trailing punctuation like "hello," into "hello" +
// ","; only a field's last character is split off, so "really?!"
// becomes "really?" + "!".
func Tokenize(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, splitTrailingPunct(f)...)
	}
	return out
}

func splitTrailingPunct(word string) []string {
	var out []string
	var cur strings.Builder

	runes := []rune(word)
	for i, r := range runes {
		if strings.ContainsRune(punctRunes, r) && i == len(runes)-1 {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			out = append(out, string(r))
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
