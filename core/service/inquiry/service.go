// Package inquiry wires the full pipeline: validation, normalization,
// classification, routing and persistence.
package inquiry

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"inquiry_server/core/domain"
	"inquiry_server/core/port/out"
	"inquiry_server/core/service/classification"
	"inquiry_server/core/service/preprocess"
	"inquiry_server/core/service/routing"
	"inquiry_server/pkg/apperr"
	"inquiry_server/pkg/logger"
)

const (
	maxSubjectLen = 500
	maxBodyLen    = 10000
)

// SubmitRequest is the input of the synchronous submit path.
type SubmitRequest struct {
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	SenderEmail string            `json:"sender_email"`
	SenderName  string            `json:"sender_name,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Validate checks field presence, length bounds and the sender address.
func (r *SubmitRequest) Validate() error {
	if r.Subject == "" {
		return apperr.MissingField("subject")
	}
	if len([]rune(r.Subject)) > maxSubjectLen {
		return apperr.InvalidInput("subject", "exceeds 500 characters")
	}
	if r.Body == "" {
		return apperr.MissingField("body")
	}
	if len([]rune(r.Body)) > maxBodyLen {
		return apperr.InvalidInput("body", "exceeds 10000 characters")
	}
	if r.SenderEmail == "" {
		return apperr.MissingField("sender_email")
	}
	if _, err := mail.ParseAddress(r.SenderEmail); err != nil {
		return apperr.InvalidInput("sender_email", "not a valid email address")
	}
	return nil
}

// ClassifyTextResult is the non-persisting classification output.
type ClassifyTextResult struct {
	Category            domain.Category             `json:"category"`
	CategoryConfidence  float64                     `json:"category_confidence"`
	AllScores           map[domain.Category]float64 `json:"all_scores,omitempty"`
	Sentiment           domain.Sentiment            `json:"sentiment"`
	SentimentConfidence float64                     `json:"sentiment_confidence"`
	Urgency             domain.Urgency              `json:"urgency"`
	UrgencyConfidence   float64                     `json:"urgency_confidence"`
	ModelIdentifier     string                      `json:"model_identifier"`
}

// Service is the application core consumed by the HTTP layer and the drain
// loop.
type Service struct {
	repo    out.InquiryRepository
	host    *classification.Host
	engine  *routing.Engine
	metrics out.MetricsSink // optional
	log     *logger.Logger
}

// NewService creates the inquiry service.
func NewService(repo out.InquiryRepository, host *classification.Host, engine *routing.Engine, metrics out.MetricsSink, log *logger.Logger) *Service {
	return &Service{repo: repo, host: host, engine: engine, metrics: metrics, log: log}
}

// ClassifyAndRoute persists the inquiry, classifies and routes it, and
// records the result atomically. The synchronous submit path.
func (s *Service) ClassifyAndRoute(ctx context.Context, req *SubmitRequest) (*domain.InquiryView, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inq := &domain.Inquiry{
		ID:          uuid.New(),
		Subject:     req.Subject,
		Body:        req.Body,
		SenderEmail: req.SenderEmail,
		SenderName:  req.SenderName,
		Metadata:    req.Metadata,
		ReceivedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateInquiry(ctx, inq); err != nil {
		return nil, err
	}

	pred, dec, err := s.process(ctx, inq)
	if err != nil {
		if _, ferr := s.repo.RecordFailure(ctx, inq.ID, err.Error()); ferr != nil {
			s.log.WithError(ferr).WithField("inquiry_id", inq.ID.String()).
				Error("record_failure after submit-path error")
		}
		return nil, err
	}

	s.incr("inquiry.submitted", 1)
	now := time.Now().UTC()
	inq.Processed = true
	inq.ProcessedAt = &now

	return &domain.InquiryView{Inquiry: inq, Prediction: pred, Routing: dec}, nil
}

// process runs the pipeline for one stored inquiry and records the result.
// A CONFLICT from RecordResult means another worker already finished this
// inquiry; it is treated as success.
func (s *Service) process(ctx context.Context, inq *domain.Inquiry) (*domain.Prediction, *domain.RoutingDecision, error) {
	start := time.Now()

	canonical, err := preprocess.Normalize(inq.Subject, inq.Body)
	if err != nil {
		return nil, nil, err
	}

	triple, err := s.host.Predict(ctx, canonical)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	pred := predictionFromTriple(inq.ID, triple, now)
	dec := s.engine.Decide(inq.ID, triple, now)

	if err := s.repo.RecordResult(ctx, inq.ID, pred, dec); err != nil {
		if !apperr.IsCode(err, apperr.CodeConflict) {
			return nil, nil, err
		}
		s.log.WithField("inquiry_id", inq.ID.String()).
			Debug("result already recorded by another worker")
	}

	s.observe("inquiry.processing_duration_seconds", time.Since(start))
	return pred, dec, nil
}

// ClassifyText classifies text without persisting anything. Used by the
// test/debug endpoint.
func (s *Service) ClassifyText(ctx context.Context, subject, body string, includeAllScores bool) (*ClassifyTextResult, error) {
	canonical, err := preprocess.Normalize(subject, body)
	if err != nil {
		return nil, err
	}

	triple, err := s.host.Predict(ctx, canonical)
	if err != nil {
		return nil, err
	}

	res := &ClassifyTextResult{
		Category:            triple.Category.Category,
		CategoryConfidence:  triple.Category.Confidence,
		Sentiment:           triple.Sentiment.Sentiment,
		SentimentConfidence: triple.Sentiment.Confidence,
		Urgency:             triple.Urgency.Urgency,
		UrgencyConfidence:   triple.Urgency.Confidence,
		ModelIdentifier:     triple.ModelIdentifier,
	}
	if includeAllScores {
		res.AllScores = triple.Category.AllScores
	}
	return res, nil
}

// FindInquiry returns the combined view for one inquiry.
func (s *Service) FindInquiry(ctx context.Context, id uuid.UUID) (*domain.InquiryView, error) {
	view, err := s.repo.FindInquiry(ctx, id)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, apperr.NotFound("inquiry")
	}
	return view, nil
}

// Statistics returns the reporting projection over the trailing number of
// days (default 7).
func (s *Service) Statistics(ctx context.Context, days int) (*domain.Stats, error) {
	if days <= 0 {
		days = 7
	}
	stats, err := s.repo.Statistics(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return nil, err
	}
	stats.WindowDays = days
	return stats, nil
}

func (s *Service) incr(name string, delta int64) {
	if s.metrics != nil {
		s.metrics.IncrCounter(name, delta)
	}
}

func (s *Service) observe(name string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.Observe(name, d)
	}
}

func predictionFromTriple(id uuid.UUID, triple *classification.PredictionTriple, at time.Time) *domain.Prediction {
	return &domain.Prediction{
		InquiryID:           id,
		Category:            triple.Category.Category,
		CategoryConfidence:  triple.Category.Confidence,
		Sentiment:           triple.Sentiment.Sentiment,
		SentimentConfidence: triple.Sentiment.Confidence,
		Urgency:             triple.Urgency.Urgency,
		UrgencyConfidence:   triple.Urgency.Confidence,
		ModelIdentifier:     triple.ModelIdentifier,
		ClassifiedAt:        at,
	}
}
