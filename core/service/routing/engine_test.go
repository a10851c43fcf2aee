package routing

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"inquiry_server/core/domain"
	"inquiry_server/core/service/classification"
)

func triple(cat domain.Category, sent domain.Sentiment, urg domain.Urgency) *classification.PredictionTriple {
	return &classification.PredictionTriple{
		Category:  classification.CategoryResult{Category: cat, Confidence: 0.9},
		Sentiment: classification.SentimentResult{Sentiment: sent, Confidence: 0.8},
		Urgency:   classification.UrgencyResult{Urgency: urg, Confidence: 0.8},
	}
}

func TestEngineDecide(t *testing.T) {
	decidedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		triple         *classification.PredictionTriple
		wantDepartment domain.Department
		wantScore      int
		wantEscalated  bool
		wantDeadline   time.Time
	}{
		{
			name:           "critical negative escalates and clamps to 100",
			triple:         triple(domain.CategoryTechnicalSupport, domain.SentimentNegative, domain.UrgencyCritical),
			wantDepartment: domain.DepartmentEscalation,
			wantScore:      100, // 80 + 10 + 20 clamped
			wantEscalated:  true,
			wantDeadline:   decidedAt.Add(time.Hour),
		},
		{
			name:           "billing negative medium routes to finance",
			triple:         triple(domain.CategoryBilling, domain.SentimentNegative, domain.UrgencyMedium),
			wantDepartment: domain.DepartmentFinance,
			wantScore:      35, // 25 + 10
			wantEscalated:  false,
			wantDeadline:   decidedAt.Add(24 * time.Hour),
		},
		{
			name:           "positive low stays low priority",
			triple:         triple(domain.CategoryTechnicalSupport, domain.SentimentPositive, domain.UrgencyLow),
			wantDepartment: domain.DepartmentTechnicalSupport,
			wantScore:      0, // 5 - 5
			wantEscalated:  false,
			wantDeadline:   decidedAt.Add(72 * time.Hour),
		},
		{
			name:           "sales neutral medium routes to sales",
			triple:         triple(domain.CategorySales, domain.SentimentNeutral, domain.UrgencyMedium),
			wantDepartment: domain.DepartmentSales,
			wantScore:      25,
			wantEscalated:  false,
			wantDeadline:   decidedAt.Add(24 * time.Hour),
		},
		{
			name:           "escalated decision is floored at 80",
			triple:         triple(domain.CategoryBilling, domain.SentimentNegative, domain.UrgencyHigh),
			wantDepartment: domain.DepartmentEscalation,
			wantScore:      80, // 55 + 10 + 10 = 75, floored
			wantEscalated:  true,
			wantDeadline:   decidedAt.Add(4 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(DefaultRules(), DefaultPool(), EngineConfig{})
			id := uuid.New()

			got := engine.Decide(id, tt.triple, decidedAt)

			if got.InquiryID != id {
				t.Errorf("InquiryID = %s, want %s", got.InquiryID, id)
			}
			if got.Department != tt.wantDepartment {
				t.Errorf("Department = %s, want %s", got.Department, tt.wantDepartment)
			}
			if got.PriorityScore != tt.wantScore {
				t.Errorf("PriorityScore = %d, want %d", got.PriorityScore, tt.wantScore)
			}
			if got.Escalated != tt.wantEscalated {
				t.Errorf("Escalated = %v, want %v", got.Escalated, tt.wantEscalated)
			}
			if !got.ResponseDeadline.Equal(tt.wantDeadline) {
				t.Errorf("ResponseDeadline = %s, want %s", got.ResponseDeadline, tt.wantDeadline)
			}
			if !got.DecidedAt.Equal(decidedAt) {
				t.Errorf("DecidedAt = %s, want %s", got.DecidedAt, decidedAt)
			}
		})
	}
}

func TestEngineScoreBounds(t *testing.T) {
	// A large negative boost must not push the score below zero.
	rules := []Rule{{
		Name: "discount",
		When: RuleWhen{Category: []domain.Category{domain.CategoryProductFeedback}},
		Then: RuleThen{Department: domain.DepartmentProductManagement, PriorityBoost: -50},
	}}
	engine := NewEngine(rules, nil, EngineConfig{})

	got := engine.Decide(uuid.New(), triple(domain.CategoryProductFeedback, domain.SentimentPositive, domain.UrgencyLow), time.Now())
	if got.PriorityScore != 0 {
		t.Errorf("PriorityScore = %d, want 0", got.PriorityScore)
	}
}

func TestEngineFirstMatchingRuleWins(t *testing.T) {
	rules := []Rule{
		{
			Name: "first",
			When: RuleWhen{Urgency: []domain.Urgency{domain.UrgencyCritical}},
			Then: RuleThen{Department: domain.DepartmentEscalation, PriorityBoost: 20, Escalated: true},
		},
		{
			Name: "second",
			When: RuleWhen{Urgency: []domain.Urgency{domain.UrgencyCritical}},
			Then: RuleThen{Department: domain.DepartmentLegal, PriorityBoost: 99},
		},
	}
	engine := NewEngine(rules, nil, EngineConfig{})

	got := engine.Decide(uuid.New(), triple(domain.CategoryLegal, domain.SentimentNeutral, domain.UrgencyCritical), time.Now())
	if got.Department != domain.DepartmentEscalation {
		t.Errorf("Department = %s, want escalation from first rule", got.Department)
	}
	if !got.Escalated {
		t.Error("Escalated = false, want true from first rule")
	}
}

func TestEngineAssignsConsultant(t *testing.T) {
	engine := NewEngine(DefaultRules(), DefaultPool(), EngineConfig{})

	got := engine.Decide(uuid.New(), triple(domain.CategoryBilling, domain.SentimentNeutral, domain.UrgencyLow), time.Now())
	if got.Consultant != "fin-001" {
		t.Errorf("Consultant = %q, want fin-001", got.Consultant)
	}

	// Escalation has no roster; the decision still stands.
	got = engine.Decide(uuid.New(), triple(domain.CategoryBilling, domain.SentimentNegative, domain.UrgencyCritical), time.Now())
	if got.Consultant != "" {
		t.Errorf("Consultant = %q, want empty for unstaffed department", got.Consultant)
	}
}

func TestEngineDeterministic(t *testing.T) {
	decidedAt := time.Now().UTC()
	id := uuid.New()
	in := triple(domain.CategoryHR, domain.SentimentNeutral, domain.UrgencyMedium)

	a := NewEngine(DefaultRules(), DefaultPool(), EngineConfig{}).Decide(id, in, decidedAt)
	b := NewEngine(DefaultRules(), DefaultPool(), EngineConfig{}).Decide(id, in, decidedAt)

	if a.Department != b.Department || a.PriorityScore != b.PriorityScore ||
		a.Escalated != b.Escalated || a.Consultant != b.Consultant {
		t.Errorf("decisions diverge: %+v vs %+v", a, b)
	}
}

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		cat  domain.Category
		sent domain.Sentiment
		urg  domain.Urgency
		want bool
	}{
		{
			name: "empty when matches everything",
			rule: Rule{Name: "all"},
			cat:  domain.CategorySales, sent: domain.SentimentNeutral, urg: domain.UrgencyLow,
			want: true,
		},
		{
			name: "single condition matches",
			rule: Rule{When: RuleWhen{Urgency: []domain.Urgency{domain.UrgencyHigh}}},
			cat:  domain.CategorySales, sent: domain.SentimentNeutral, urg: domain.UrgencyHigh,
			want: true,
		},
		{
			name: "single condition rejects",
			rule: Rule{When: RuleWhen{Urgency: []domain.Urgency{domain.UrgencyHigh}}},
			cat:  domain.CategorySales, sent: domain.SentimentNeutral, urg: domain.UrgencyLow,
			want: false,
		},
		{
			name: "all conditions must hold",
			rule: Rule{When: RuleWhen{
				Urgency:   []domain.Urgency{domain.UrgencyHigh},
				Sentiment: []domain.Sentiment{domain.SentimentNegative},
			}},
			cat:  domain.CategorySales, sent: domain.SentimentNeutral, urg: domain.UrgencyHigh,
			want: false,
		},
		{
			name: "list fields match any member",
			rule: Rule{When: RuleWhen{Category: []domain.Category{domain.CategoryLegal, domain.CategoryHR}}},
			cat:  domain.CategoryHR, sent: domain.SentimentNeutral, urg: domain.UrgencyLow,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Matches(tt.cat, tt.sent, tt.urg); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}
