package dedup

// TitleSimilarity computes Jaccard similarity over stemmed title tokens.
// Titles sharing no stemmed token score 0 and never reach the judge.
func TitleSimilarity(titleA, titleB string) float64 {
	setA := tokenSet(StemTokens(titleA))
	setB := tokenSet(StemTokens(titleB))
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
