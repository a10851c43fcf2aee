package classification

import (
	"context"
	"math"
	"regexp"
	"strings"

	"inquiry_server/core/domain"
	"inquiry_server/core/service/preprocess"
)

// =============================================================================
// Rule-Based Category Backend
// =============================================================================

// weightedKeyword pairs a keyword (or phrase) with a rarity weight. Generic
// terms that appear across many inquiry kinds carry a low weight; specific
// multi-word phrases carry a high one.
type weightedKeyword struct {
	phrase string
	weight float64
}

// subjectBoost doubles the contribution of a keyword hit in the subject line.
const subjectBoost = 2.0

var categoryKeywords = map[domain.Category][]weightedKeyword{
	domain.CategoryTechnicalSupport: {
		{"login", 1.0}, {"password", 1.0}, {"bug", 1.0}, {"error", 1.0},
		{"crash", 1.0}, {"broken", 1.0}, {"freeze", 1.0}, {"slow", 0.5},
		{"not working", 2.0}, {"cannot login", 2.0}, {"troubleshoot", 1.5},
		{"technical", 1.0}, {"issue", 0.5}, {"problem", 0.5}, {"fix", 0.5},
		{"help", 0.5}, {"support", 0.5}, {"customer service", 2.0},
		{"server", 1.0}, {"database", 1.0}, {"api", 1.0}, {"connection", 1.0},
		{"network", 1.0}, {"software", 1.0}, {"hardware", 1.0},
		{"authentication", 1.5}, {"system", 0.5},
	},
	domain.CategoryBilling: {
		{"bill", 1.0}, {"invoice", 1.0}, {"payment", 1.0}, {"charge", 1.0},
		{"charged", 1.0}, {"refund", 1.0}, {"subscription", 1.0}, {"fee", 1.0},
		{"price", 0.5}, {"cost", 0.5}, {"billing", 1.5}, {"credit", 1.0},
		{"debit", 1.0}, {"transaction", 1.0}, {"receipt", 1.0},
		{"duplicate charge", 2.0}, {"overcharged", 2.0}, {"expensive", 0.5},
		{"plan", 0.5}, {"upgrade", 0.5}, {"downgrade", 1.0},
	},
	domain.CategorySales: {
		{"buy", 1.0}, {"purchase", 1.0}, {"order", 0.5}, {"quote", 1.0},
		{"demo", 1.5}, {"trial", 1.0}, {"pricing", 1.0}, {"discount", 1.0},
		{"promotion", 1.0}, {"deal", 0.5}, {"interested", 0.5},
		{"sign up", 1.5}, {"new customer", 2.0}, {"enterprise", 1.0},
		{"sales", 1.0}, {"offer", 0.5}, {"product", 0.5}, {"service", 0.5},
		{"features", 0.5}, {"compare", 0.5},
	},
	domain.CategoryHR: {
		{"job", 1.0}, {"career", 1.0}, {"employment", 1.0}, {"resume", 1.5},
		{"interview", 1.0}, {"hiring", 1.5}, {"position", 0.5},
		{"human resources", 2.0}, {"benefits", 1.0}, {"vacation", 1.0},
		{"time off", 2.0}, {"employee", 1.0}, {"staff", 1.0},
		{"workplace", 1.0}, {"remote work", 2.0}, {"policy", 0.5},
	},
	domain.CategoryLegal: {
		{"legal", 1.5}, {"law", 1.0}, {"lawsuit", 2.0}, {"court", 1.0},
		{"attorney", 1.5}, {"lawyer", 1.5}, {"contract", 1.0},
		{"agreement", 1.0}, {"liability", 1.5}, {"compliance", 1.5},
		{"regulation", 1.0}, {"terms", 0.5}, {"conditions", 0.5},
		{"privacy", 1.0}, {"copyright", 1.5}, {"trademark", 1.5},
		{"intellectual property", 2.0}, {"rights", 0.5},
	},
	domain.CategoryProductFeedback: {
		{"feedback", 1.5}, {"suggestion", 1.5}, {"improvement", 1.0},
		{"feature request", 2.0}, {"enhancement", 1.5}, {"idea", 0.5},
		{"recommendation", 1.0}, {"user experience", 2.0}, {"ux", 1.5},
		{"ui", 1.0}, {"design", 0.5}, {"usability", 1.5},
		{"interface", 1.0}, {"workflow", 1.0},
	},
}

// RuleCategoryBackend scores canonical text against per-category weighted
// keyword lists and softmax-normalizes the scores into probabilities.
type RuleCategoryBackend struct{}

// NewRuleCategoryBackend creates the rule-based category backend.
func NewRuleCategoryBackend() *RuleCategoryBackend {
	return &RuleCategoryBackend{}
}

// Name returns the backend name.
func (b *RuleCategoryBackend) Name() string { return "category-rules" }

// Predict scores every category; a keyword hit in the subject portion counts
// double a hit in the body.
func (b *RuleCategoryBackend) Predict(_ context.Context, text *preprocess.Canonical) (*CategoryResult, error) {
	subject := strings.ToLower(text.Subject)
	body := strings.ToLower(text.Body)

	raw := make(map[domain.Category]float64, len(domain.Categories))
	for _, cat := range domain.Categories {
		var score float64
		for _, kw := range categoryKeywords[cat] {
			if containsPhrase(subject, kw.phrase) {
				score += kw.weight * subjectBoost
			}
			if containsPhrase(body, kw.phrase) {
				score += kw.weight
			}
		}
		raw[cat] = score
	}

	scores := softmax(raw)
	category, confidence := argmaxCategory(scores)

	return &CategoryResult{
		Category:   category,
		Confidence: confidence,
		AllScores:  scores,
	}, nil
}

// softmax converts raw scores into probabilities summing to 1. With all-zero
// input every category receives an equal share.
func softmax(raw map[domain.Category]float64) map[domain.Category]float64 {
	var max float64
	for _, v := range raw {
		if v > max {
			max = v
		}
	}

	var sum float64
	exps := make(map[domain.Category]float64, len(raw))
	for _, c := range domain.Categories {
		e := math.Exp(raw[c] - max)
		exps[c] = e
		sum += e
	}

	out := make(map[domain.Category]float64, len(raw))
	for c, e := range exps {
		out[c] = e / sum
	}
	return out
}

// =============================================================================
// Phrase Matching
// =============================================================================

var phrasePatternCache = map[string]*regexp.Regexp{}

func init() {
	for _, kws := range categoryKeywords {
		for _, kw := range kws {
			if _, ok := phrasePatternCache[kw.phrase]; !ok {
				phrasePatternCache[kw.phrase] = compilePhrase(kw.phrase)
			}
		}
	}
}

func compilePhrase(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `\b`)
}

// containsPhrase reports a whole-word match of phrase in lowercased text.
func containsPhrase(text, phrase string) bool {
	if !strings.Contains(text, phrase) {
		return false
	}
	re, ok := phrasePatternCache[phrase]
	if !ok {
		re = compilePhrase(phrase)
	}
	return re.MatchString(text)
}
