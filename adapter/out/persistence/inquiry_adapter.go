// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"inquiry_server/core/domain"
	"inquiry_server/pkg/apperr"
)

// =============================================================================
// Inquiry Adapter
// =============================================================================

// InquiryAdapter implements out.InquiryRepository on PostgreSQL. The pgx pool
// serves the transactional paths (claim fetch, result writes); sqlx serves
// the read projections.
type InquiryAdapter struct {
	pool        *pgxpool.Pool
	db          *sqlx.DB
	maxAttempts int
	claimTTL    time.Duration
}

// NewInquiryAdapter creates a new InquiryAdapter.
func NewInquiryAdapter(pool *pgxpool.Pool, db *sqlx.DB, maxAttempts int, claimTTL time.Duration) *InquiryAdapter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if claimTTL <= 0 {
		claimTTL = 10 * time.Minute
	}
	return &InquiryAdapter{pool: pool, db: db, maxAttempts: maxAttempts, claimTTL: claimTTL}
}

// inquiryRow represents the inquiries table row.
type inquiryRow struct {
	ID                 uuid.UUID      `db:"id"`
	Subject            string         `db:"subject"`
	Body               string         `db:"body"`
	SenderEmail        string         `db:"sender_email"`
	SenderName         sql.NullString `db:"sender_name"`
	Metadata           []byte         `db:"metadata"`
	ReceivedAt         time.Time      `db:"received_at"`
	Processed          bool           `db:"processed"`
	ProcessedAt        sql.NullTime   `db:"processed_at"`
	ProcessingAttempts int            `db:"processing_attempts"`
	LastError          sql.NullString `db:"last_error"`
	Poisoned           bool           `db:"poisoned"`
	ClaimedAt          sql.NullTime   `db:"claimed_at"`
}

func (r *inquiryRow) toEntity() *domain.Inquiry {
	inq := &domain.Inquiry{
		ID:                 r.ID,
		Subject:            r.Subject,
		Body:               r.Body,
		SenderEmail:        r.SenderEmail,
		SenderName:         r.SenderName.String,
		ReceivedAt:         r.ReceivedAt,
		Processed:          r.Processed,
		ProcessingAttempts: r.ProcessingAttempts,
		LastError:          r.LastError.String,
		Poisoned:           r.Poisoned,
	}
	if r.ProcessedAt.Valid {
		t := r.ProcessedAt.Time
		inq.ProcessedAt = &t
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &inq.Metadata)
	}
	return inq
}

// predictionRow represents the predictions table row.
type predictionRow struct {
	InquiryID           uuid.UUID `db:"inquiry_id"`
	Category            string    `db:"category"`
	CategoryConfidence  float64   `db:"category_confidence"`
	Sentiment           string    `db:"sentiment"`
	SentimentConfidence float64   `db:"sentiment_confidence"`
	Urgency             string    `db:"urgency"`
	UrgencyConfidence   float64   `db:"urgency_confidence"`
	ModelIdentifier     string    `db:"model_identifier"`
	ClassifiedAt        time.Time `db:"classified_at"`
}

func (r *predictionRow) toEntity() *domain.Prediction {
	return &domain.Prediction{
		InquiryID:           r.InquiryID,
		Category:            domain.Category(r.Category),
		CategoryConfidence:  r.CategoryConfidence,
		Sentiment:           domain.Sentiment(r.Sentiment),
		SentimentConfidence: r.SentimentConfidence,
		Urgency:             domain.Urgency(r.Urgency),
		UrgencyConfidence:   r.UrgencyConfidence,
		ModelIdentifier:     r.ModelIdentifier,
		ClassifiedAt:        r.ClassifiedAt,
	}
}

// routingRow represents the routing_decisions table row.
type routingRow struct {
	InquiryID        uuid.UUID      `db:"inquiry_id"`
	Department       string         `db:"department"`
	Consultant       sql.NullString `db:"consultant"`
	PriorityScore    int            `db:"priority_score"`
	Escalated        bool           `db:"escalated"`
	ResponseDeadline time.Time      `db:"response_deadline"`
	DecidedAt        time.Time      `db:"decided_at"`
}

func (r *routingRow) toEntity() *domain.RoutingDecision {
	return &domain.RoutingDecision{
		InquiryID:        r.InquiryID,
		Department:       domain.Department(r.Department),
		Consultant:       r.Consultant.String,
		PriorityScore:    r.PriorityScore,
		Escalated:        r.Escalated,
		ResponseDeadline: r.ResponseDeadline,
		DecidedAt:        r.DecidedAt,
	}
}

// CreateInquiry inserts a new unprocessed inquiry.
func (a *InquiryAdapter) CreateInquiry(ctx context.Context, inq *domain.Inquiry) error {
	var metadata []byte
	if len(inq.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(inq.Metadata); err != nil {
			return apperr.DatabaseError("marshal inquiry metadata", err)
		}
	}

	query := `
		INSERT INTO inquiries (id, subject, body, sender_email, sender_name, metadata, received_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`

	if _, err := a.pool.Exec(ctx, query,
		inq.ID, inq.Subject, inq.Body, inq.SenderEmail, inq.SenderName, metadata, inq.ReceivedAt,
	); err != nil {
		return apperr.DatabaseError("create inquiry", err)
	}
	return nil
}

// FetchUnprocessed returns up to limit unprocessed, unpoisoned inquiries
// ordered by received_at. With claim=true the rows are stamped with
// claimed_at inside one short transaction, using SKIP LOCKED so concurrent
// drain replicas never select the same rows; a stale claim past the TTL is
// treated as released.
func (a *InquiryAdapter) FetchUnprocessed(ctx context.Context, limit int, claim bool) ([]*domain.Inquiry, error) {
	if limit <= 0 {
		limit = 50
	}

	if !claim {
		var rows []inquiryRow
		query := `
			SELECT * FROM inquiries
			WHERE processed = FALSE AND poisoned = FALSE
			ORDER BY received_at ASC
			LIMIT $1`
		if err := a.db.SelectContext(ctx, &rows, query, limit); err != nil {
			return nil, apperr.DatabaseError("fetch unprocessed", err)
		}
		return rowsToEntities(rows), nil
	}

	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, apperr.DatabaseError("begin claim tx", err)
	}
	defer tx.Rollback(ctx)

	query := `
		WITH claimable AS (
			SELECT id FROM inquiries
			WHERE processed = FALSE AND poisoned = FALSE
			  AND (claimed_at IS NULL OR claimed_at < NOW() - $2::interval)
			ORDER BY received_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE inquiries i
		SET claimed_at = NOW()
		FROM claimable c
		WHERE i.id = c.id
		RETURNING i.id, i.subject, i.body, i.sender_email, i.sender_name, i.metadata,
		          i.received_at, i.processed, i.processed_at, i.processing_attempts,
		          i.last_error, i.poisoned, i.claimed_at`

	pgRows, err := tx.Query(ctx, query, limit, a.claimTTL.String())
	if err != nil {
		return nil, apperr.DatabaseError("claim unprocessed", err)
	}

	claimed, err := pgx.CollectRows(pgRows, func(row pgx.CollectableRow) (*domain.Inquiry, error) {
		var r inquiryRow
		if err := row.Scan(&r.ID, &r.Subject, &r.Body, &r.SenderEmail, &r.SenderName,
			&r.Metadata, &r.ReceivedAt, &r.Processed, &r.ProcessedAt,
			&r.ProcessingAttempts, &r.LastError, &r.Poisoned, &r.ClaimedAt); err != nil {
			return nil, err
		}
		return r.toEntity(), nil
	})
	if err != nil {
		return nil, apperr.DatabaseError("scan claimed rows", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.DatabaseError("commit claim tx", err)
	}

	// The UPDATE … FROM join does not guarantee output order.
	sortByReceivedAt(claimed)
	return claimed, nil
}

// RecordResult writes the prediction and routing decision and flips processed
// in one transaction. The conditional UPDATE carries the idempotence
// guarantee: zero affected rows means the inquiry was already processed (or
// never existed) and the write is rolled back with a CONFLICT.
func (a *InquiryAdapter) RecordResult(ctx context.Context, id uuid.UUID, pred *domain.Prediction, dec *domain.RoutingDecision) error {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperr.DatabaseError("begin result tx", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE inquiries
		SET processed = TRUE, processed_at = NOW(), claimed_at = NULL, last_error = NULL
		WHERE id = $1 AND processed = FALSE`, id)
	if err != nil {
		return apperr.DatabaseError("flip processed", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("inquiry already processed")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO predictions (inquiry_id, category, category_confidence,
			sentiment, sentiment_confidence, urgency, urgency_confidence,
			model_identifier, classified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, string(pred.Category), pred.CategoryConfidence,
		string(pred.Sentiment), pred.SentimentConfidence,
		string(pred.Urgency), pred.UrgencyConfidence,
		pred.ModelIdentifier, pred.ClassifiedAt,
	); err != nil {
		return apperr.DatabaseError("insert prediction", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO routing_decisions (inquiry_id, department, consultant,
			priority_score, escalated, response_deadline, decided_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`,
		id, string(dec.Department), dec.Consultant,
		dec.PriorityScore, dec.Escalated, dec.ResponseDeadline, dec.DecidedAt,
	); err != nil {
		return apperr.DatabaseError("insert routing decision", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.DatabaseError("commit result tx", err)
	}
	return nil
}

// RecordFailure increments the attempt counter, stores the reason, releases
// the claim, and poisons the row once attempts exceed the maximum.
func (a *InquiryAdapter) RecordFailure(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	var poisoned bool
	err := a.pool.QueryRow(ctx, `
		UPDATE inquiries
		SET processing_attempts = processing_attempts + 1,
		    last_error = $2,
		    claimed_at = NULL,
		    poisoned = (processing_attempts + 1 > $3)
		WHERE id = $1
		RETURNING poisoned`,
		id, reason, a.maxAttempts,
	).Scan(&poisoned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, apperr.NotFound("inquiry")
		}
		return false, apperr.DatabaseError("record failure", err)
	}
	return poisoned, nil
}

// FindInquiry returns the combined view, or nil when the id is unknown.
func (a *InquiryAdapter) FindInquiry(ctx context.Context, id uuid.UUID) (*domain.InquiryView, error) {
	var inqRow inquiryRow
	if err := a.db.GetContext(ctx, &inqRow,
		`SELECT * FROM inquiries WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.DatabaseError("find inquiry", err)
	}
	view := &domain.InquiryView{Inquiry: inqRow.toEntity()}

	var predRow predictionRow
	err := a.db.GetContext(ctx, &predRow,
		`SELECT * FROM predictions WHERE inquiry_id = $1`, id)
	if err == nil {
		view.Prediction = predRow.toEntity()
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.DatabaseError("find prediction", err)
	}

	var routRow routingRow
	err = a.db.GetContext(ctx, &routRow,
		`SELECT * FROM routing_decisions WHERE inquiry_id = $1`, id)
	if err == nil {
		view.Routing = routRow.toEntity()
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.DatabaseError("find routing decision", err)
	}

	return view, nil
}

// Statistics returns the reporting projection over the trailing window.
func (a *InquiryAdapter) Statistics(ctx context.Context, window time.Duration) (*domain.Stats, error) {
	since := time.Now().UTC().Add(-window)
	stats := &domain.Stats{
		PerCategoryCounts:   make(map[domain.Category]int64),
		PerDepartmentCounts: make(map[domain.Department]int64),
	}

	if err := a.db.QueryRowxContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE processed),
		       COUNT(*) FILTER (WHERE poisoned)
		FROM inquiries WHERE received_at >= $1`, since,
	).Scan(&stats.Total, &stats.Processed, &stats.Poisoned); err != nil {
		return nil, apperr.DatabaseError("statistics totals", err)
	}

	catRows, err := a.db.QueryxContext(ctx, `
		SELECT p.category, COUNT(*)
		FROM predictions p
		JOIN inquiries i ON i.id = p.inquiry_id
		WHERE i.received_at >= $1
		GROUP BY p.category`, since)
	if err != nil {
		return nil, apperr.DatabaseError("statistics categories", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var cat string
		var n int64
		if err := catRows.Scan(&cat, &n); err != nil {
			return nil, apperr.DatabaseError("scan category count", err)
		}
		stats.PerCategoryCounts[domain.Category(cat)] = n
	}

	var escalated int64
	deptRows, err := a.db.QueryxContext(ctx, `
		SELECT r.department, r.escalated, COUNT(*)
		FROM routing_decisions r
		JOIN inquiries i ON i.id = r.inquiry_id
		WHERE i.received_at >= $1
		GROUP BY r.department, r.escalated`, since)
	if err != nil {
		return nil, apperr.DatabaseError("statistics departments", err)
	}
	defer deptRows.Close()
	var routed int64
	for deptRows.Next() {
		var dept string
		var esc bool
		var n int64
		if err := deptRows.Scan(&dept, &esc, &n); err != nil {
			return nil, apperr.DatabaseError("scan department count", err)
		}
		stats.PerDepartmentCounts[domain.Department(dept)] += n
		routed += n
		if esc {
			escalated += n
		}
	}
	if routed > 0 {
		stats.EscalationRate = float64(escalated) / float64(routed)
	}

	return stats, nil
}

func rowsToEntities(rows []inquiryRow) []*domain.Inquiry {
	out := make([]*domain.Inquiry, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntity()
	}
	return out
}

func sortByReceivedAt(inqs []*domain.Inquiry) {
	sort.Slice(inqs, func(i, j int) bool {
		return inqs[i].ReceivedAt.Before(inqs[j].ReceivedAt)
	})
}
