package classify

import (
	"math"
	"strings"
	"unicode"
)

// Decision is the gate outcome for one message.
type Decision int

const (
	// Irrelevant scores below the review band and never reach the store.
	Irrelevant Decision = iota
	// Review scores fall within review_margin below the threshold and
	// are flagged for manual review rather than silently discarded.
	Review
	// Relevant scores meet the threshold and continue to extraction.
	Relevant
)

func (d Decision) String() string {
	switch d {
	case Relevant:
		return "relevant"
	case Review:
		return "review"
	default:
		return "irrelevant"
	}
}

// Classifier scores text for application-relevance using a frozen
// vocabulary and a linear model. Out-of-vocabulary terms are ignored;
// no state mutates at inference time, so a Classifier is safe for
// concurrent use.
type Classifier struct {
	model        Model
	threshold    float64
	reviewMargin float64
}

// New creates a classifier around a loaded model. A threshold <= 0
// falls back to the one recorded in the artifact.
func New(m Model, threshold, reviewMargin float64) *Classifier {
	if threshold <= 0 {
		threshold = m.Threshold
	}
	if reviewMargin < 0 {
		reviewMargin = 0
	}
	return &Classifier{
		model:        m,
		threshold:    threshold,
		reviewMargin: reviewMargin,
	}
}

// Threshold returns the effective relevance threshold.
func (c *Classifier) Threshold() float64 { return c.threshold }

// Score computes the relevance probability in [0,1] for folded text:
// TF-IDF over the frozen vocabulary, L2 normalization, weighted sum
// plus bias, logistic squashing.
func (c *Classifier) Score(folded string) float64 {
	counts := c.termCounts(folded)

	// tf*idf per matched vocabulary index
	tfidf := make(map[int]float64, len(counts))
	var norm float64
	for term, tf := range counts {
		entry, ok := c.model.Vocabulary[term]
		if !ok {
			continue
		}
		v := float64(tf) * entry.IDF
		tfidf[entry.Index] = v
		norm += v * v
	}

	z := c.model.Bias
	if norm > 0 {
		norm = math.Sqrt(norm)
		for idx, v := range tfidf {
			z += c.model.Weights[idx] * v / norm
		}
	}

	return sigmoid(z)
}

// Decide applies the threshold and review band to a score.
func (c *Classifier) Decide(score float64) Decision {
	switch {
	case score >= c.threshold:
		return Relevant
	case score >= c.threshold-c.reviewMargin:
		return Review
	default:
		return Irrelevant
	}
}

// termCounts tokenizes folded text and counts n-grams up to the
// model's n-gram order. Bigram terms are space-joined, matching the
// vocabulary's training-time representation.
func (c *Classifier) termCounts(folded string) map[string]int {
	tokens := tokenize(folded)
	counts := make(map[string]int, len(tokens)*c.model.NGramMax)
	for n := 1; n <= c.model.NGramMax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			counts[strings.Join(tokens[i:i+n], " ")]++
		}
	}
	return counts
}

// tokenize splits text into lower-case word tokens, keeping interior
// hyphens so terms like "follow-up" survive intact.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		word := strings.Trim(current.String(), "-")
		if len(word) > 1 {
			tokens = append(tokens, word)
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' {
			current.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
