// Package classification implements the three inquiry predictors (category,
// sentiment, urgency) and the host that owns backend selection and fallback.
//
// Each modality has two interchangeable backends sharing one output shape:
//
//	rule-based  → keyword/lexicon scoring, cheap, always available
//	learned     → zero-shot classification over candidate labels, heavy,
//	              lazily loaded, may fail with ErrModelUnavailable
//
// The urgency predictor is rule-based only.
package classification

import (
	"context"
	"errors"

	"inquiry_server/core/domain"
	"inquiry_server/core/service/preprocess"
)

// ErrModelUnavailable signals that a learned backend could not be loaded or
// invoked (missing credentials, open circuit, load timeout). The host consumes
// it: in auto mode it activates the rule-based fallback, in off mode it
// surfaces as a backend error.
var ErrModelUnavailable = errors.New("learned model unavailable")

// =============================================================================
// Backend Interfaces
// =============================================================================

// CategoryResult is the category prediction for one inquiry.
type CategoryResult struct {
	Category   domain.Category
	Confidence float64
	// AllScores maps every category to a probability; the values sum to 1.
	AllScores map[domain.Category]float64
}

// SentimentResult is the sentiment prediction for one inquiry.
type SentimentResult struct {
	Sentiment  domain.Sentiment
	Confidence float64
}

// UrgencyResult is the urgency prediction for one inquiry.
type UrgencyResult struct {
	Urgency    domain.Urgency
	Confidence float64
}

// CategoryBackend predicts the inquiry category.
type CategoryBackend interface {
	Name() string
	Predict(ctx context.Context, text *preprocess.Canonical) (*CategoryResult, error)
}

// SentimentBackend predicts the inquiry sentiment.
type SentimentBackend interface {
	Name() string
	Predict(ctx context.Context, text *preprocess.Canonical) (*SentimentResult, error)
}

// UrgencyBackend predicts the inquiry urgency.
type UrgencyBackend interface {
	Name() string
	Predict(ctx context.Context, text *preprocess.Canonical) (*UrgencyResult, error)
}

// =============================================================================
// Prediction Triple
// =============================================================================

// PredictionTriple is the combined output of the three predictors.
type PredictionTriple struct {
	Category  CategoryResult  `json:"category"`
	Sentiment SentimentResult `json:"sentiment"`
	Urgency   UrgencyResult   `json:"urgency"`

	// ModelIdentifier names the backend set that produced this triple,
	// e.g. "category=rules-v1;sentiment=rules-v1;urgency=rules-v1".
	ModelIdentifier string `json:"model_identifier"`
}

// argmaxCategory returns the highest-scoring category. Scores within 1e-6 of
// the maximum resolve to the category declared earlier in domain.Categories.
func argmaxCategory(scores map[domain.Category]float64) (domain.Category, float64) {
	best := domain.Categories[0]
	bestScore := scores[best]
	for _, c := range domain.Categories[1:] {
		if scores[c] > bestScore+1e-6 {
			best = c
			bestScore = scores[c]
		}
	}
	return best, bestScore
}
