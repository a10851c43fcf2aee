// Package routing computes routing decisions: priority scoring, escalation
// rules, department mapping and consultant assignment.
package routing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"inquiry_server/core/domain"
	"inquiry_server/pkg/apperr"
)

// =============================================================================
// Declarative Escalation Rules
// =============================================================================

// RuleWhen is the optional condition block of a rule. An omitted field is a
// wildcard.
type RuleWhen struct {
	Urgency   []domain.Urgency   `yaml:"urgency,omitempty"`
	Sentiment []domain.Sentiment `yaml:"sentiment,omitempty"`
	Category  []domain.Category  `yaml:"category,omitempty"`
}

// RuleThen is the action block of a rule.
type RuleThen struct {
	Department    domain.Department `yaml:"department"`
	PriorityBoost int               `yaml:"priority_boost"`
	Escalated     bool              `yaml:"escalated"`
}

// Rule is one entry of the ordered escalation rule list. The first matching
// rule wins.
type Rule struct {
	Name string   `yaml:"name"`
	When RuleWhen `yaml:"when"`
	Then RuleThen `yaml:"then"`
}

// Matches reports whether the rule's conditions cover the triple. A rule with
// no conditions matches everything.
func (r *Rule) Matches(category domain.Category, sentiment domain.Sentiment, urgency domain.Urgency) bool {
	if len(r.When.Urgency) > 0 && !containsUrgency(r.When.Urgency, urgency) {
		return false
	}
	if len(r.When.Sentiment) > 0 && !containsSentiment(r.When.Sentiment, sentiment) {
		return false
	}
	if len(r.When.Category) > 0 && !containsCategory(r.When.Category, category) {
		return false
	}
	return true
}

func containsUrgency(s []domain.Urgency, v domain.Urgency) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsSentiment(s []domain.Sentiment, v domain.Sentiment) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsCategory(s []domain.Category, v domain.Category) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// LoadRules reads the ordered rule list from a YAML file. An empty path
// returns the default rules.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeConfigError,
			fmt.Sprintf("cannot read routing rules file %s", path), 500)
	}

	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeConfigError,
			fmt.Sprintf("cannot parse routing rules file %s", path), 500)
	}

	for i, r := range rules {
		if r.Name == "" {
			return nil, apperr.ConfigError(fmt.Sprintf("routing rule %d has no name", i))
		}
		if r.Then.Department == "" {
			return nil, apperr.ConfigError(fmt.Sprintf("routing rule %q has no department", r.Name))
		}
	}

	return rules, nil
}

// DefaultRules is the built-in escalation list used when no rules file is
// configured: critical urgency always escalates, and high urgency escalates
// when paired with negative sentiment.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "critical-urgency",
			When: RuleWhen{Urgency: []domain.Urgency{domain.UrgencyCritical}},
			Then: RuleThen{
				Department:    domain.DepartmentEscalation,
				PriorityBoost: 20,
				Escalated:     true,
			},
		},
		{
			Name: "negative-high",
			When: RuleWhen{
				Urgency:   []domain.Urgency{domain.UrgencyHigh},
				Sentiment: []domain.Sentiment{domain.SentimentNegative},
			},
			Then: RuleThen{
				Department:    domain.DepartmentEscalation,
				PriorityBoost: 10,
				Escalated:     true,
			},
		},
	}
}
