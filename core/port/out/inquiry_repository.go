// Package out defines outbound ports implemented by adapters.
package out

import (
	"context"
	"time"

	"inquiry_server/core/domain"

	"github.com/google/uuid"
)

// InquiryRepository is the durable contract for inquiries, predictions and
// routing decisions.
type InquiryRepository interface {
	// CreateInquiry inserts a new unprocessed inquiry.
	CreateInquiry(ctx context.Context, inq *domain.Inquiry) error

	// FetchUnprocessed returns up to limit inquiries with processed=false and
	// poisoned=false, ordered by received_at ascending. With claim=true the
	// rows are marked in-flight so concurrent drain workers skip them; the
	// claim expires if the caller never records a result or failure.
	FetchUnprocessed(ctx context.Context, limit int, claim bool) ([]*domain.Inquiry, error)

	// RecordResult atomically writes the prediction and routing decision and
	// flips processed to true. Returns a CONFLICT error if the inquiry was
	// already processed; callers treat that as success.
	RecordResult(ctx context.Context, id uuid.UUID, pred *domain.Prediction, dec *domain.RoutingDecision) error

	// RecordFailure increments processing_attempts, stores the error reason
	// and releases the claim. Returns poisoned=true once the attempt count
	// exceeds the configured maximum.
	RecordFailure(ctx context.Context, id uuid.UUID, reason string) (poisoned bool, err error)

	// FindInquiry returns the combined view, or nil when the id is unknown.
	FindInquiry(ctx context.Context, id uuid.UUID) (*domain.InquiryView, error)

	// Statistics returns the reporting projection over the trailing window.
	Statistics(ctx context.Context, window time.Duration) (*domain.Stats, error)
}

// PredictionCache caches serialized classifier output keyed by a fingerprint
// of the canonical text. Get returns (nil, nil) on miss.
type PredictionCache interface {
	Get(ctx context.Context, fingerprint string) ([]byte, error)
	Set(ctx context.Context, fingerprint string, value []byte) error
}
