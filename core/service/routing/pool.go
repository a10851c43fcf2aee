package routing

import (
	"sort"
	"sync"

	"inquiry_server/core/domain"
)

// =============================================================================
// Consultant Pool
// =============================================================================

// departmentQueue serializes assignment within one department. Consultants
// keep their registration order; rrNext is the round-robin pointer.
type departmentQueue struct {
	mu          sync.Mutex
	consultants []*domain.Consultant
	rrNext      int
}

// Pool maintains per-department consultant queues. Assignment within one
// department is serialized; departments never block one another.
type Pool struct {
	mu     sync.RWMutex
	queues map[domain.Department]*departmentQueue
}

// NewPool creates an empty consultant pool.
func NewPool() *Pool {
	return &Pool{queues: make(map[domain.Department]*departmentQueue)}
}

// Register adds a consultant to their department queue.
func (p *Pool) Register(c *domain.Consultant) {
	p.mu.Lock()
	q, ok := p.queues[c.Department]
	if !ok {
		q = &departmentQueue{}
		p.queues[c.Department] = q
	}
	p.mu.Unlock()

	q.mu.Lock()
	q.consultants = append(q.consultants, c)
	q.mu.Unlock()
}

// Assign picks a consultant from the department queue using the strategy and
// increments their active load. Returns "" when the department has no
// consultants; that is not an error.
func (p *Pool) Assign(department domain.Department, strategy domain.AssignmentStrategy, skillTags []string) string {
	p.mu.RLock()
	q := p.queues[department]
	p.mu.RUnlock()
	if q == nil {
		return ""
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.consultants) == 0 {
		return ""
	}

	var chosen *domain.Consultant
	switch strategy {
	case domain.AssignSkillMatch:
		chosen = q.pickSkillMatch(skillTags)
	case domain.AssignLeastLoad:
		chosen = q.pickLeastLoaded()
	default:
		chosen = q.pickRoundRobin()
	}
	if chosen == nil {
		return ""
	}

	chosen.ActiveLoad++
	return chosen.ID
}

// pickRoundRobin returns the next consultant in circular order and advances
// the pointer.
func (q *departmentQueue) pickRoundRobin() *domain.Consultant {
	c := q.consultants[q.rrNext%len(q.consultants)]
	q.rrNext = (q.rrNext + 1) % len(q.consultants)
	return c
}

// pickSkillMatch selects the least-loaded consultant whose skills cover all
// tags, ties broken by lexicographic identifier. Falls back to the full queue
// when nobody matches.
func (q *departmentQueue) pickSkillMatch(skillTags []string) *domain.Consultant {
	matched := make([]*domain.Consultant, 0, len(q.consultants))
	for _, c := range q.consultants {
		if c.HasSkills(skillTags) {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		matched = append(matched, q.consultants...)
	}

	// Sort a copy so the queue's registration order stays intact for
	// round-robin.
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].ActiveLoad != matched[j].ActiveLoad {
			return matched[i].ActiveLoad < matched[j].ActiveLoad
		}
		return matched[i].ID < matched[j].ID
	})
	return matched[0]
}

// pickLeastLoaded selects the minimum-load consultant; ties resolve to the
// earliest candidate in round-robin order starting from the pointer.
func (q *departmentQueue) pickLeastLoaded() *domain.Consultant {
	minLoad := q.consultants[0].ActiveLoad
	for _, c := range q.consultants[1:] {
		if c.ActiveLoad < minLoad {
			minLoad = c.ActiveLoad
		}
	}

	n := len(q.consultants)
	for i := 0; i < n; i++ {
		c := q.consultants[(q.rrNext+i)%n]
		if c.ActiveLoad == minLoad {
			return c
		}
	}
	return nil
}

// Loads returns a snapshot of active loads keyed by consultant id.
func (p *Pool) Loads() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]int)
	for _, q := range p.queues {
		q.mu.Lock()
		for _, c := range q.consultants {
			out[c.ID] = c.ActiveLoad
		}
		q.mu.Unlock()
	}
	return out
}

// DefaultPool seeds the pool with the built-in consultant roster.
func DefaultPool() *Pool {
	p := NewPool()
	for _, c := range []domain.Consultant{
		{ID: "ts-001", Name: "Alice Johnson", Department: domain.DepartmentTechnicalSupport, Skills: []string{"technical_support", "networking"}},
		{ID: "ts-002", Name: "Bob Smith", Department: domain.DepartmentTechnicalSupport, Skills: []string{"technical_support", "databases"}},
		{ID: "fin-001", Name: "Carol Davis", Department: domain.DepartmentFinance, Skills: []string{"billing", "refunds"}},
		{ID: "fin-002", Name: "David Wilson", Department: domain.DepartmentFinance, Skills: []string{"billing", "subscriptions"}},
		{ID: "sal-001", Name: "Eva Brown", Department: domain.DepartmentSales, Skills: []string{"sales", "enterprise"}},
		{ID: "sal-002", Name: "Frank Miller", Department: domain.DepartmentSales, Skills: []string{"sales", "smb"}},
		{ID: "hr-001", Name: "Grace Lee", Department: domain.DepartmentHR, Skills: []string{"hr", "recruiting"}},
		{ID: "hr-002", Name: "Henry Taylor", Department: domain.DepartmentHR, Skills: []string{"hr", "benefits"}},
		{ID: "leg-001", Name: "Ivy Chen", Department: domain.DepartmentLegal, Skills: []string{"legal", "contracts"}},
		{ID: "leg-002", Name: "Jack Anderson", Department: domain.DepartmentLegal, Skills: []string{"legal", "compliance"}},
		{ID: "pm-001", Name: "Kate Rodriguez", Department: domain.DepartmentProductManagement, Skills: []string{"product_feedback", "ux"}},
		{ID: "pm-002", Name: "Liam Thompson", Department: domain.DepartmentProductManagement, Skills: []string{"product_feedback", "platform"}},
	} {
		c := c
		p.Register(&c)
	}
	return p
}
