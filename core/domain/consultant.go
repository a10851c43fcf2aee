package domain

// AssignmentStrategy selects how a consultant is picked within a department.
type AssignmentStrategy string

const (
	AssignRoundRobin AssignmentStrategy = "round_robin"
	AssignSkillMatch AssignmentStrategy = "skill_match"
	AssignLeastLoad  AssignmentStrategy = "least_loaded"
)

// ParseAssignmentStrategy parses a strategy string, defaulting to round_robin.
func ParseAssignmentStrategy(s string) AssignmentStrategy {
	switch AssignmentStrategy(s) {
	case AssignSkillMatch:
		return AssignSkillMatch
	case AssignLeastLoad:
		return AssignLeastLoad
	default:
		return AssignRoundRobin
	}
}

// Consultant is a member of a department queue. ActiveLoad counts assignments
// made by the routing engine; completion events are recorded outside the core.
type Consultant struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Department Department `json:"department" yaml:"department"`
	Skills     []string   `json:"skills,omitempty" yaml:"skills,omitempty"`
	ActiveLoad int        `json:"active_load" yaml:"-"`
}

// HasSkills reports whether the consultant's skill set covers all tags.
func (c *Consultant) HasSkills(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	set := make(map[string]bool, len(c.Skills))
	for _, s := range c.Skills {
		set[s] = true
	}
	for _, t := range tags {
		if !set[t] {
			return false
		}
	}
	return true
}
