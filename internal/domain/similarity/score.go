package similarity

import "strings"

// NGramSize picks the word n-gram length for a prompt of the given token count.
func NGramSize(tokens int) int {
	switch {
	case tokens >= 20:
		return 5
	case tokens >= 12:
		return 4
	default:
		return 3
	}
}

func wordNGrams(tokens []string, n int) map[string]struct{} {
	out := make(map[string]struct{})
	if n <= 0 || len(tokens) < n {
		return out
	}
	for i := 0; i+n <= len(tokens); i++ {
		out[strings.Join(tokens[i:i+n], " ")] = struct{}{}
	}
	return out
}

// Containment is the fraction of the prompt's distinct word n-grams that
// also occur in the candidate.
func Containment(promptTokens, candidateTokens []string, n int) float64 {
	prompt := wordNGrams(promptTokens, n)
	if len(prompt) == 0 {
		return 0
	}
	candidate := wordNGrams(candidateTokens, n)
	if len(candidate) == 0 {
		return 0
	}
	hits := 0
	for g := range prompt {
		if _, ok := candidate[g]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(prompt))
}

func trigramCounts(s string) (map[string]int, int) {
	r := []rune(s)
	counts := make(map[string]int)
	if len(r) < 3 {
		if len(r) > 0 {
			counts[s] = 1
			return counts, 1
		}
		return counts, 0
	}
	for i := 0; i+3 <= len(r); i++ {
		counts[string(r[i:i+3])]++
	}
	return counts, len(r) - 2
}

// Dice is the multiset character-trigram Dice coefficient
// 2*|A∩B| / (|A|+|B|).
func Dice(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	aCounts, aTotal := trigramCounts(a)
	bCounts, bTotal := trigramCounts(b)
	intersection := 0
	for g, ac := range aCounts {
		if bc := bCounts[g]; bc > 0 {
			intersection += min(ac, bc)
		}
	}
	return 2 * float64(intersection) / float64(aTotal+bTotal)
}
