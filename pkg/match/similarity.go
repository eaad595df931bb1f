package match

import (
	"errors"
	"math"
	"regexp"
)

// ErrEmptyVocabulary is returned by NgramCosineMatcher when no name and no query is long
// enough to produce a single n-gram.
var ErrEmptyVocabulary = errors.New("empty n-gram vocabulary")

// Matcher picks the candidate name most similar to query. Names and query are already
// normalized. index is -1 when no candidate meets threshold; score is still reported.
type Matcher interface {
	Best(query string, names []string, threshold float64) (index int, score float64, err error)
}

var whitespaceRun = regexp.MustCompile(`\s\s+`)

// NgramCosineMatcher scores names by cosine similarity of TF-IDF weighted character n-gram
// vectors, fitted over the candidate names plus the query.
type NgramCosineMatcher struct {
	MinN, MaxN int
}

func NewNgramCosineMatcher() NgramCosineMatcher {
	return NgramCosineMatcher{MinN: 2, MaxN: 3}
}

func (m NgramCosineMatcher) Best(query string, names []string, threshold float64) (int, float64, error) {
	docs := make([]string, 0, len(names)+1)
	docs = append(docs, names...)
	docs = append(docs, query)

	vectors, err := m.fit(docs)
	if err != nil {
		return -1, 0, err
	}

	q := vectors[len(vectors)-1]
	best, bestScore := -1, 0.0
	for i := range names {
		score := dot(q, vectors[i])
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < threshold {
		return -1, bestScore, nil
	}
	return best, bestScore, nil
}

// fit returns one l2-normalized TF-IDF vector per document. idf uses the smoothed form
// ln((1+n)/(1+df)) + 1.
func (m NgramCosineMatcher) fit(docs []string) ([]map[string]float64, error) {
	counts := make([]map[string]float64, len(docs))
	df := make(map[string]int)
	for i, doc := range docs {
		counts[i] = m.ngrams(doc)
		for gram := range counts[i] {
			df[gram]++
		}
	}
	if len(df) == 0 {
		return nil, ErrEmptyVocabulary
	}

	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for gram, freq := range df {
		idf[gram] = math.Log((1+n)/(1+float64(freq))) + 1
	}

	for _, vec := range counts {
		var norm float64
		for gram, tf := range vec {
			w := tf * idf[gram]
			vec[gram] = w
			norm += w * w
		}
		if norm == 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for gram := range vec {
			vec[gram] /= norm
		}
	}
	return counts, nil
}

func (m NgramCosineMatcher) ngrams(doc string) map[string]float64 {
	runes := []rune(whitespaceRun.ReplaceAllString(doc, " "))
	grams := make(map[string]float64)
	for n := m.MinN; n <= m.MaxN; n++ {
		for i := 0; i+n <= len(runes); i++ {
			grams[string(runes[i:i+n])]++
		}
	}
	return grams
}

func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for k, v := range a {
		sum += v * b[k]
	}
	return sum
}

// CharacterSetJaccardMatcher scores names by |A∩B| / |A∪B| over their sets of characters.
// A candidate becomes the best only when it strictly beats the current best and meets the
// threshold, so ties keep the earlier candidate.
type CharacterSetJaccardMatcher struct{}

// Best returns -1 with the closest candidate's score, not 0, when nothing meets the
// threshold, so callers can report how near the miss was.
func (CharacterSetJaccardMatcher) Best(query string, names []string, threshold float64) (int, float64, error) {
	qs := runeSet(query)
	best, bestScore, maxSeen := -1, 0.0, 0.0
	for i, name := range names {
		score := jaccard(qs, runeSet(name))
		if score > maxSeen {
			maxSeen = score
		}
		if score > bestScore && score >= threshold {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return -1, maxSeen, nil
	}
	return best, bestScore, nil
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{})
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

func jaccard(a, b map[rune]struct{}) float64 {
	var inter int
	for r := range a {
		if _, ok := b[r]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
