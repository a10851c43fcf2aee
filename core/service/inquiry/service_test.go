package inquiry

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"inquiry_server/config"
	"inquiry_server/core/domain"
	"inquiry_server/core/service/classification"
	"inquiry_server/core/service/routing"
	"inquiry_server/pkg/apperr"
	"inquiry_server/pkg/logger"
)

// fakeRepo is an in-memory out.InquiryRepository for service and drain tests.
type fakeRepo struct {
	mu          sync.Mutex
	records     map[uuid.UUID]*fakeRecord
	maxAttempts int
}

type fakeRecord struct {
	inq     domain.Inquiry
	pred    *domain.Prediction
	dec     *domain.RoutingDecision
	claimed bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[uuid.UUID]*fakeRecord), maxAttempts: 5}
}

func (r *fakeRepo) CreateInquiry(_ context.Context, inq *domain.Inquiry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[inq.ID] = &fakeRecord{inq: *inq}
	return nil
}

func (r *fakeRepo) FetchUnprocessed(_ context.Context, limit int, claim bool) ([]*domain.Inquiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var eligible []*fakeRecord
	for _, rec := range r.records {
		if rec.inq.Processed || rec.inq.Poisoned || (claim && rec.claimed) {
			continue
		}
		eligible = append(eligible, rec)
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].inq.ReceivedAt.Before(eligible[j].inq.ReceivedAt)
	})
	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}

	out := make([]*domain.Inquiry, 0, len(eligible))
	for _, rec := range eligible {
		if claim {
			rec.claimed = true
		}
		inq := rec.inq
		out = append(out, &inq)
	}
	return out, nil
}

func (r *fakeRepo) RecordResult(_ context.Context, id uuid.UUID, pred *domain.Prediction, dec *domain.RoutingDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return apperr.NotFound("inquiry")
	}
	if rec.inq.Processed {
		return apperr.Conflict("inquiry already processed")
	}
	now := time.Now().UTC()
	rec.inq.Processed = true
	rec.inq.ProcessedAt = &now
	rec.inq.LastError = ""
	rec.claimed = false
	rec.pred = pred
	rec.dec = dec
	return nil
}

func (r *fakeRepo) RecordFailure(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return false, apperr.NotFound("inquiry")
	}
	rec.inq.ProcessingAttempts++
	rec.inq.LastError = reason
	rec.claimed = false
	if rec.inq.ProcessingAttempts > r.maxAttempts {
		rec.inq.Poisoned = true
	}
	return rec.inq.Poisoned, nil
}

func (r *fakeRepo) FindInquiry(_ context.Context, id uuid.UUID) (*domain.InquiryView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	inq := rec.inq
	return &domain.InquiryView{Inquiry: &inq, Prediction: rec.pred, Routing: rec.dec}, nil
}

func (r *fakeRepo) Statistics(_ context.Context, _ time.Duration) (*domain.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &domain.Stats{
		PerCategoryCounts:   make(map[domain.Category]int64),
		PerDepartmentCounts: make(map[domain.Department]int64),
	}
	var routed, escalated int64
	for _, rec := range r.records {
		stats.Total++
		if rec.inq.Processed {
			stats.Processed++
		}
		if rec.inq.Poisoned {
			stats.Poisoned++
		}
		if rec.pred != nil {
			stats.PerCategoryCounts[rec.pred.Category]++
		}
		if rec.dec != nil {
			routed++
			stats.PerDepartmentCounts[rec.dec.Department]++
			if rec.dec.Escalated {
				escalated++
			}
		}
	}
	if routed > 0 {
		stats.EscalationRate = float64(escalated) / float64(routed)
	}
	return stats, nil
}

// record returns a copy of the stored state for assertions.
func (r *fakeRepo) record(id uuid.UUID) (domain.Inquiry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return domain.Inquiry{}, false
	}
	return rec.inq, true
}

func newTestService(repo *fakeRepo) *Service {
	log := logger.New(logger.Config{Level: logger.LevelError, Service: "test"})
	host := classification.NewHost(classification.HostConfig{Mode: config.RuleBasedForce}, log)
	engine := routing.NewEngine(routing.DefaultRules(), routing.DefaultPool(), routing.EngineConfig{})
	return NewService(repo, host, engine, nil, log)
}

func validSubmit() *SubmitRequest {
	return &SubmitRequest{
		Subject:     "URGENT: Cannot login",
		Body:        "I keep getting an authentication error and this is blocking my work. Please help ASAP!",
		SenderEmail: "jane@example.com",
		SenderName:  "Jane Doe",
	}
}

func TestClassifyAndRoute(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	view, err := svc.ClassifyAndRoute(context.Background(), validSubmit())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !view.Inquiry.Processed {
		t.Error("Processed = false, want true")
	}
	if view.Prediction == nil || view.Routing == nil {
		t.Fatal("prediction or routing missing from view")
	}
	if view.Prediction.Category != domain.CategoryTechnicalSupport {
		t.Errorf("Category = %s, want technical_support", view.Prediction.Category)
	}
	if view.Prediction.Urgency != domain.UrgencyCritical {
		t.Errorf("Urgency = %s, want critical", view.Prediction.Urgency)
	}
	if view.Routing.Department != domain.DepartmentEscalation {
		t.Errorf("Department = %s, want escalation", view.Routing.Department)
	}
	if !view.Routing.Escalated {
		t.Error("Escalated = false, want true")
	}
	if view.Routing.PriorityScore < 80 {
		t.Errorf("PriorityScore = %d, want >= 80", view.Routing.PriorityScore)
	}

	stored, ok := repo.record(view.Inquiry.ID)
	if !ok {
		t.Fatal("inquiry not persisted")
	}
	if !stored.Processed {
		t.Error("stored inquiry not marked processed")
	}
}

func TestClassifyAndRouteValidation(t *testing.T) {
	svc := newTestService(newFakeRepo())

	tests := []struct {
		name     string
		mutate   func(*SubmitRequest)
		wantCode string
	}{
		{"missing subject", func(r *SubmitRequest) { r.Subject = "" }, apperr.CodeMissingField},
		{"missing body", func(r *SubmitRequest) { r.Body = "" }, apperr.CodeMissingField},
		{"missing sender", func(r *SubmitRequest) { r.SenderEmail = "" }, apperr.CodeMissingField},
		{"invalid sender", func(r *SubmitRequest) { r.SenderEmail = "not-an-email" }, apperr.CodeInvalidInput},
		{"oversized subject", func(r *SubmitRequest) {
			for len(r.Subject) <= maxSubjectLen {
				r.Subject += r.Subject
			}
		}, apperr.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSubmit()
			tt.mutate(req)
			_, err := svc.ClassifyAndRoute(context.Background(), req)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !apperr.IsCode(err, tt.wantCode) {
				t.Errorf("error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestClassifyAndRouteRecordsFailure(t *testing.T) {
	repo := newFakeRepo()
	log := logger.New(logger.Config{Level: logger.LevelError, Service: "test"})
	// Off mode with no learned backends: every prediction fails.
	host := classification.NewHost(classification.HostConfig{Mode: config.RuleBasedOff}, log)
	engine := routing.NewEngine(routing.DefaultRules(), routing.DefaultPool(), routing.EngineConfig{})
	svc := NewService(repo, host, engine, nil, log)

	_, err := svc.ClassifyAndRoute(context.Background(), validSubmit())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	// The inquiry is persisted with the failure recorded, not lost.
	var failed []domain.Inquiry
	repo.mu.Lock()
	for _, rec := range repo.records {
		failed = append(failed, rec.inq)
	}
	repo.mu.Unlock()

	if len(failed) != 1 {
		t.Fatalf("stored inquiries = %d, want 1", len(failed))
	}
	if failed[0].Processed {
		t.Error("Processed = true, want false")
	}
	if failed[0].ProcessingAttempts != 1 {
		t.Errorf("ProcessingAttempts = %d, want 1", failed[0].ProcessingAttempts)
	}
	if failed[0].LastError == "" {
		t.Error("LastError empty, want failure reason")
	}
}

func TestProcessTreatsConflictAsSuccess(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	inq := &domain.Inquiry{
		ID:          uuid.New(),
		Subject:     "Invoice issue",
		Body:        "I was charged twice",
		SenderEmail: "a@b.com",
		ReceivedAt:  time.Now().UTC(),
	}
	if err := repo.CreateInquiry(context.Background(), inq); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Another worker finished first.
	repo.mu.Lock()
	repo.records[inq.ID].inq.Processed = true
	repo.mu.Unlock()

	if _, _, err := svc.process(context.Background(), inq); err != nil {
		t.Errorf("process returned %v on conflict, want nil", err)
	}
}

func TestFindInquiry(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	view, err := svc.ClassifyAndRoute(context.Background(), validSubmit())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	found, err := svc.FindInquiry(context.Background(), view.Inquiry.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.Inquiry.ID != view.Inquiry.ID {
		t.Errorf("ID = %s, want %s", found.Inquiry.ID, view.Inquiry.ID)
	}
	if found.Prediction == nil || found.Routing == nil {
		t.Error("prediction or routing missing from stored view")
	}

	_, err = svc.FindInquiry(context.Background(), uuid.New())
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestClassifyText(t *testing.T) {
	svc := newTestService(newFakeRepo())

	res, err := svc.ClassifyText(context.Background(), "Demo request", "I would like to schedule a demo next week.", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Category != domain.CategorySales {
		t.Errorf("Category = %s, want sales", res.Category)
	}
	if res.Urgency != domain.UrgencyMedium {
		t.Errorf("Urgency = %s, want medium", res.Urgency)
	}
	if res.AllScores == nil {
		t.Error("AllScores nil with includeAllScores=true")
	}
	if res.ModelIdentifier == "" {
		t.Error("ModelIdentifier empty")
	}

	res, err = svc.ClassifyText(context.Background(), "Demo request", "body", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AllScores != nil {
		t.Error("AllScores present with includeAllScores=false")
	}
}

func TestStatistics(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	if _, err := svc.ClassifyAndRoute(context.Background(), validSubmit()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	stats, err := svc.Statistics(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.WindowDays != 7 {
		t.Errorf("WindowDays = %d, want default 7", stats.WindowDays)
	}
	if stats.Total != 1 || stats.Processed != 1 {
		t.Errorf("Total/Processed = %d/%d, want 1/1", stats.Total, stats.Processed)
	}
	if stats.PerCategoryCounts[domain.CategoryTechnicalSupport] != 1 {
		t.Errorf("category counts = %v, want technical_support:1", stats.PerCategoryCounts)
	}
	if stats.EscalationRate != 1.0 {
		t.Errorf("EscalationRate = %f, want 1.0", stats.EscalationRate)
	}
}
