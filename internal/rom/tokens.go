package rom

import "strings"

// SplitTags splits a free-text tag or description field into lower-case
// tokens. Commas and periods separate tokens like whitespace does.
func SplitTags(s string) []string {
	s = strings.NewReplacer(",", " ", ".", " ").Replace(strings.ToLower(s))
	return strings.Fields(s)
}

func firstN(tokens []string, n int) []string {
	if len(tokens) > n {
		return tokens[:n]
	}
	return tokens
}
