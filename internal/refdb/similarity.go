package refdb

import "strings"

// Similarity computes trigram-set similarity of two already-normalized
// strings, the same shape of measure pg_trgm uses: shared trigrams over the
// union. Returns a value in [0,1]; 1 means identical trigram sets.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}

	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for t := range ta {
		if tb[t] {
			shared++
		}
	}

	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// trigrams builds the trigram set of a normalized string, padding each word
// with two leading and one trailing space the way pg_trgm does.
func trigrams(s string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(s) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = true
		}
	}
	return set
}
