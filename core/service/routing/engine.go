package routing

import (
	"math"
	"time"

	"github.com/google/uuid"

	"inquiry_server/core/domain"
	"inquiry_server/core/service/classification"
)

// =============================================================================
// Routing Engine
// =============================================================================

// Priority weights. Category carries no base weight; differentiation comes
// from urgency, sentiment and rule boosts.
var (
	urgencyWeights = map[domain.Urgency]float64{
		domain.UrgencyLow:      5,
		domain.UrgencyMedium:   25,
		domain.UrgencyHigh:     55,
		domain.UrgencyCritical: 80,
	}
	sentimentWeights = map[domain.Sentiment]float64{
		domain.SentimentPositive: -5,
		domain.SentimentNeutral:  0,
		domain.SentimentNegative: 10,
	}
)

// escalatedFloor is the minimum priority score of an escalated decision.
const escalatedFloor = 80

// EngineConfig configures the routing engine.
type EngineConfig struct {
	Strategy domain.AssignmentStrategy
	SLA      map[domain.Urgency]time.Duration
}

// DefaultSLA returns the default response-deadline offsets per urgency.
func DefaultSLA() map[domain.Urgency]time.Duration {
	return map[domain.Urgency]time.Duration{
		domain.UrgencyCritical: time.Hour,
		domain.UrgencyHigh:     4 * time.Hour,
		domain.UrgencyMedium:   24 * time.Hour,
		domain.UrgencyLow:      72 * time.Hour,
	}
}

// Engine computes routing decisions from prediction triples. Decisions are
// deterministic given identical rules and pool state.
type Engine struct {
	rules []Rule
	pool  *Pool
	cfg   EngineConfig
}

// NewEngine creates a routing engine over the ordered rule list and pool.
func NewEngine(rules []Rule, pool *Pool, cfg EngineConfig) *Engine {
	if cfg.SLA == nil {
		cfg.SLA = DefaultSLA()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = domain.AssignRoundRobin
	}
	return &Engine{rules: rules, pool: pool, cfg: cfg}
}

// Decide computes the routing decision for one classified inquiry.
func (e *Engine) Decide(inquiryID uuid.UUID, triple *classification.PredictionTriple, decidedAt time.Time) *domain.RoutingDecision {
	category := triple.Category.Category
	sentiment := triple.Sentiment.Sentiment
	urgency := triple.Urgency.Urgency

	department := domain.DepartmentForCategory(category)
	escalated := false
	boost := 0.0

	for i := range e.rules {
		if e.rules[i].Matches(category, sentiment, urgency) {
			then := e.rules[i].Then
			if then.Department != "" {
				department = then.Department
			}
			boost = float64(then.PriorityBoost)
			escalated = then.Escalated
			break
		}
	}

	score := int(math.Round(urgencyWeights[urgency] + sentimentWeights[sentiment] + boost))
	if escalated && score < escalatedFloor {
		score = escalatedFloor
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	var consultant string
	if e.pool != nil {
		consultant = e.pool.Assign(department, e.cfg.Strategy, []string{string(category)})
	}

	sla, ok := e.cfg.SLA[urgency]
	if !ok {
		sla = 72 * time.Hour
	}

	return &domain.RoutingDecision{
		InquiryID:        inquiryID,
		Department:       department,
		Consultant:       consultant,
		PriorityScore:    score,
		Escalated:        escalated,
		ResponseDeadline: decidedAt.Add(sla),
		DecidedAt:        decidedAt,
	}
}
