package domain

import fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

const (
	// BlockMatchThreshold is the token-set similarity above which a song
	// name counts as block-listed.
	BlockMatchThreshold = 85
	// ResolverMatchThreshold is the looser similarity used when matching
	// catalog search results against the requested name.
	ResolverMatchThreshold = 60
)

// Similarity returns the token-set ratio of two names in [0,100].
// Token-set comparison ignores word order and duplicated words, which is
// what makes "Artist - Song (Official Video)" match "Song Artist".
func Similarity(a, b string) int {
	return fuzzy.TokenSetRatio(a, b)
}

// SimilarEnough reports whether two names meet the given threshold.
func SimilarEnough(a, b string, threshold int) bool {
	return Similarity(a, b) >= threshold
}
