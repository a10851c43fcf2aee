package classification

import (
	"context"
	"strings"

	"inquiry_server/core/domain"
	"inquiry_server/core/service/preprocess"
)

// =============================================================================
// Rule-Based Urgency Backend
// =============================================================================

// urgencyRule maps a trigger keyword set to an urgency level. Rules are
// evaluated in order; the first set with a hit wins.
type urgencyRule struct {
	urgency    domain.Urgency
	confidence float64
	triggers   []string
}

var urgencyRules = []urgencyRule{
	{
		urgency:    domain.UrgencyCritical,
		confidence: 0.95,
		triggers: []string{
			"urgent", "asap", "emergency", "critical", "immediately",
			"right now",
		},
	},
	{
		urgency:    domain.UrgencyHigh,
		confidence: 0.85,
		triggers: []string{
			"blocking", "cannot work", "down", "outage", "deadline",
			"escalate", "severe",
		},
	},
	{
		urgency:    domain.UrgencyMedium,
		confidence: 0.70,
		triggers: []string{
			"soon", "today", "this week", "next week", "tomorrow", "need",
			"waiting", "follow up",
		},
	},
}

func init() {
	for _, rule := range urgencyRules {
		for _, trigger := range rule.triggers {
			if _, ok := phrasePatternCache[trigger]; !ok {
				phrasePatternCache[trigger] = compilePhrase(trigger)
			}
		}
	}
}

// RuleUrgencyBackend classifies urgency from trigger keywords. Urgency has no
// learned counterpart; this backend serves in every mode.
type RuleUrgencyBackend struct{}

// NewRuleUrgencyBackend creates the rule-based urgency backend.
func NewRuleUrgencyBackend() *RuleUrgencyBackend {
	return &RuleUrgencyBackend{}
}

// Name returns the backend name.
func (b *RuleUrgencyBackend) Name() string { return "urgency-rules" }

// Predict scans the combined canonical text against the ordered trigger sets.
// Higher-urgency sets take precedence regardless of position in the text.
// With no hit the inquiry is low urgency.
func (b *RuleUrgencyBackend) Predict(_ context.Context, text *preprocess.Canonical) (*UrgencyResult, error) {
	lower := strings.ToLower(text.Combined)

	for _, rule := range urgencyRules {
		for _, trigger := range rule.triggers {
			if containsPhrase(lower, trigger) {
				return &UrgencyResult{Urgency: rule.urgency, Confidence: rule.confidence}, nil
			}
		}
	}

	return &UrgencyResult{Urgency: domain.UrgencyLow, Confidence: 0.60}, nil
}
