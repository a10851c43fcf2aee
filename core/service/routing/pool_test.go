package routing

import (
	"testing"

	"inquiry_server/core/domain"
)

func threeConsultantPool() *Pool {
	p := NewPool()
	p.Register(&domain.Consultant{ID: "c-1", Department: domain.DepartmentSales, Skills: []string{"sales"}})
	p.Register(&domain.Consultant{ID: "c-2", Department: domain.DepartmentSales, Skills: []string{"sales", "enterprise"}})
	p.Register(&domain.Consultant{ID: "c-3", Department: domain.DepartmentSales, Skills: []string{"smb"}})
	return p
}

func TestPoolRoundRobin(t *testing.T) {
	p := threeConsultantPool()

	want := []string{"c-1", "c-2", "c-3", "c-1", "c-2"}
	for i, w := range want {
		got := p.Assign(domain.DepartmentSales, domain.AssignRoundRobin, nil)
		if got != w {
			t.Errorf("assignment %d = %q, want %q", i, got, w)
		}
	}

	loads := p.Loads()
	if loads["c-1"] != 2 || loads["c-2"] != 2 || loads["c-3"] != 1 {
		t.Errorf("loads = %v, want c-1:2 c-2:2 c-3:1", loads)
	}
}

func TestPoolSkillMatch(t *testing.T) {
	p := threeConsultantPool()

	// Only c-2 covers "enterprise".
	if got := p.Assign(domain.DepartmentSales, domain.AssignSkillMatch, []string{"enterprise"}); got != "c-2" {
		t.Errorf("Assign = %q, want c-2", got)
	}

	// Both c-1 and c-2 cover "sales"; c-2 now carries load, c-1 wins.
	if got := p.Assign(domain.DepartmentSales, domain.AssignSkillMatch, []string{"sales"}); got != "c-1" {
		t.Errorf("Assign = %q, want c-1", got)
	}

	// Equal loads tie-break lexicographically.
	if got := p.Assign(domain.DepartmentSales, domain.AssignSkillMatch, []string{"sales"}); got != "c-1" {
		t.Errorf("Assign = %q, want c-1 on lexicographic tie", got)
	}
}

func TestPoolSkillMatchFallsBackToWholeQueue(t *testing.T) {
	p := threeConsultantPool()

	// Nobody covers "databases"; the least-loaded consultant overall is chosen.
	if got := p.Assign(domain.DepartmentSales, domain.AssignSkillMatch, []string{"databases"}); got != "c-1" {
		t.Errorf("Assign = %q, want c-1", got)
	}
}

func TestPoolSkillMatchKeepsRoundRobinOrder(t *testing.T) {
	p := threeConsultantPool()

	// Skill-match sorting must not disturb the registration order that
	// round-robin walks.
	p.Assign(domain.DepartmentSales, domain.AssignSkillMatch, []string{"smb"})

	want := []string{"c-1", "c-2", "c-3"}
	for i, w := range want {
		if got := p.Assign(domain.DepartmentSales, domain.AssignRoundRobin, nil); got != w {
			t.Errorf("assignment %d = %q, want %q", i, got, w)
		}
	}
}

func TestPoolLeastLoaded(t *testing.T) {
	p := threeConsultantPool()

	got := []string{
		p.Assign(domain.DepartmentSales, domain.AssignLeastLoad, nil),
		p.Assign(domain.DepartmentSales, domain.AssignLeastLoad, nil),
		p.Assign(domain.DepartmentSales, domain.AssignLeastLoad, nil),
		p.Assign(domain.DepartmentSales, domain.AssignLeastLoad, nil),
	}
	want := []string{"c-1", "c-2", "c-3", "c-1"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("assignment %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPoolUnknownDepartment(t *testing.T) {
	p := threeConsultantPool()
	if got := p.Assign(domain.DepartmentLegal, domain.AssignRoundRobin, nil); got != "" {
		t.Errorf("Assign = %q, want empty for unstaffed department", got)
	}
}

func TestDefaultPoolCoversAllDepartments(t *testing.T) {
	p := DefaultPool()
	for _, dept := range []domain.Department{
		domain.DepartmentTechnicalSupport,
		domain.DepartmentFinance,
		domain.DepartmentSales,
		domain.DepartmentHR,
		domain.DepartmentLegal,
		domain.DepartmentProductManagement,
	} {
		if got := p.Assign(dept, domain.AssignRoundRobin, nil); got == "" {
			t.Errorf("department %s has no consultants", dept)
		}
	}
}
