package classification

import (
	"context"
	"math"
	"strings"

	"inquiry_server/core/domain"
	"inquiry_server/core/service/preprocess"
)

// =============================================================================
// Rule-Based Sentiment Backend
// =============================================================================

var positiveWords = map[string]struct{}{
	"good": {}, "great": {}, "excellent": {}, "amazing": {}, "wonderful": {},
	"fantastic": {}, "love": {}, "happy": {}, "pleased": {}, "satisfied": {},
	"perfect": {}, "awesome": {}, "brilliant": {}, "outstanding": {},
	"helpful": {}, "thanks": {}, "thank": {}, "appreciate": {}, "impressed": {},
	"smooth": {}, "easy": {}, "delighted": {}, "glad": {}, "enjoy": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "terrible": {}, "awful": {}, "horrible": {}, "hate": {},
	"angry": {}, "frustrated": {}, "disappointed": {}, "annoyed": {},
	"unacceptable": {}, "useless": {}, "broken": {}, "worst": {}, "poor": {},
	"slow": {}, "confusing": {}, "difficult": {}, "problem": {}, "issue": {},
	"fail": {}, "failed": {}, "failing": {}, "wrong": {}, "upset": {},
	"ridiculous": {}, "disgusted": {}, "furious": {}, "complaint": {},
	"error": {}, "incorrect": {}, "crashes": {}, "crash": {},
}

var negationWords = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "without": {}, "cannot": {}, "cant": {},
	"dont": {}, "doesnt": {}, "didnt": {}, "wont": {}, "isnt": {}, "wasnt": {},
	"arent": {}, "werent": {}, "nothing": {},
}

var intensifierWords = map[string]struct{}{
	"very": {}, "extremely": {}, "really": {}, "absolutely": {},
	"completely": {}, "totally": {}, "so": {}, "incredibly": {},
}

const (
	// negationWindow is the token distance within which a preceding negation
	// flips a polarity word.
	negationWindow = 3

	intensifierMultiplier = 1.5
)

// RuleSentimentBackend scores polarity words with negation flipping and
// intensifier boosting.
type RuleSentimentBackend struct{}

// NewRuleSentimentBackend creates the rule-based sentiment backend.
func NewRuleSentimentBackend() *RuleSentimentBackend {
	return &RuleSentimentBackend{}
}

// Name returns the backend name.
func (b *RuleSentimentBackend) Name() string { return "sentiment-rules" }

// Predict tallies positive and negative scores over the combined canonical
// text. A polarity word preceded by a negation within negationWindow tokens
// contributes to the opposite tally; an intensifier in the same window scales
// the contribution. Equal tallies resolve to neutral.
func (b *RuleSentimentBackend) Predict(_ context.Context, text *preprocess.Canonical) (*SentimentResult, error) {
	tokens := tokenize(text.Combined)

	var pos, neg float64
	for i, tok := range tokens {
		_, isPos := positiveWords[tok]
		_, isNeg := negativeWords[tok]
		if !isPos && !isNeg {
			continue
		}

		weight := 1.0
		negated := false
		lo := i - negationWindow
		if lo < 0 {
			lo = 0
		}
		for j := lo; j < i; j++ {
			if _, ok := negationWords[tokens[j]]; ok {
				negated = true
			}
			if _, ok := intensifierWords[tokens[j]]; ok {
				weight *= intensifierMultiplier
			}
		}

		if isPos != negated {
			pos += weight
		} else {
			neg += weight
		}
	}

	sentiment := domain.SentimentNeutral
	confidence := 0.6
	if total := pos + neg; total > 0 {
		switch {
		case pos > neg:
			sentiment = domain.SentimentPositive
		case neg > pos:
			sentiment = domain.SentimentNegative
		}
		if sentiment != domain.SentimentNeutral {
			confidence = 0.6 + 0.3*math.Abs(pos-neg)/total
			if confidence > 0.95 {
				confidence = 0.95
			}
		}
	}

	return &SentimentResult{Sentiment: sentiment, Confidence: confidence}, nil
}

// tokenize lowercases and splits on non-alphanumeric runes, dropping
// apostrophes first so contractions match the negation list.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	text = strings.ReplaceAll(text, "'", "")
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}
