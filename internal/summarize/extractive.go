package summarize

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	sentencePattern = regexp.MustCompile(`[^.!?。！？\n]+[.!?。！？]*`)
	tokenPattern    = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)
)

// ExtractiveSummarizer picks the highest-scoring sentences by normalized term frequency,
// keeping them in document order. It needs no external service.
type ExtractiveSummarizer struct {
	maxSentences int
	maxChars     int
	stopwords    map[string]struct{}
}

// NewExtractiveSummarizer returns a summarizer keeping up to maxSentences sentences and
// at most maxChars runes.
func NewExtractiveSummarizer(maxSentences, maxChars int) *ExtractiveSummarizer {
	if maxSentences <= 0 {
		maxSentences = 2
	}
	return &ExtractiveSummarizer{
		maxSentences: maxSentences,
		maxChars:     maxChars,
		stopwords:    defaultStopwords(),
	}
}

// Summarize never fails; text with no sentence structure is truncated.
func (s *ExtractiveSummarizer) Summarize(_ context.Context, text string) (string, error) {
	var sentences []string
	for _, sent := range sentencePattern.FindAllString(text, -1) {
		if sent = strings.TrimSpace(sent); sent != "" {
			sentences = append(sentences, sent)
		}
	}
	if len(sentences) <= s.maxSentences {
		return Truncate(strings.Join(sentences, " "), s.maxChars), nil
	}

	freq := map[string]float64{}
	maxF := 0.0
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			freq[tok]++
			if freq[tok] > maxF {
				maxF = freq[tok]
			}
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		var sum float64
		for _, tok := range toks {
			sum += freq[tok] / maxF
		}
		if len(toks) > 0 {
			sum /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = scored{idx: i, score: sum}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	selected := make([]int, s.maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return Truncate(strings.Join(out, " "), s.maxChars), nil
}

func (s *ExtractiveSummarizer) tokens(text string) []string {
	var out []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := s.stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on",
		"at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this",
		"that", "these", "those", "from", "up", "down", "over", "under", "than", "so", "such",
		"into", "about", "between", "through", "during", "before", "after", "out", "off", "same",
		"too", "very", "can", "will", "just", "should", "now", "not", "no", "we", "you", "they",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
