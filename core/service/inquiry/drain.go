package inquiry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"inquiry_server/core/domain"
	"inquiry_server/core/port/out"
)

// =============================================================================
// Batch Drain Loop
// =============================================================================

// DrainConfig bounds one drain invocation.
type DrainConfig struct {
	BatchLimitRuleBased int // total per invocation; 0 = unbounded
	BatchLimitLearned   int
	BatchSize           int // rows per fetch page
	WorkerCount         int
	PerInquiryTimeout   time.Duration
	SoftDeadline        time.Duration
	WorkerChanSize      int
}

// DefaultDrainConfig returns the default drain bounds for an hourly schedule.
func DefaultDrainConfig() DrainConfig {
	return DrainConfig{
		BatchLimitRuleBased: 0,
		BatchLimitLearned:   50,
		BatchSize:           50,
		WorkerCount:         4,
		PerInquiryTimeout:   30 * time.Second,
		SoftDeadline:        55 * time.Minute,
		WorkerChanSize:      16,
	}
}

// DrainReport summarizes one drain invocation.
type DrainReport struct {
	Fetched         int64         `json:"fetched"`
	Succeeded       int64         `json:"succeeded"`
	Failed          int64         `json:"failed"`
	SkippedInflight int64         `json:"skipped_inflight"`
	Poisoned        int64         `json:"poisoned"`
	Duration        time.Duration `json:"duration"`
}

// Drainer runs the scheduled batch path: fetch unprocessed inquiries under a
// claim, process them on a bounded worker pool, and record every outcome.
type Drainer struct {
	svc     *Service
	repo    out.InquiryRepository
	cfg     DrainConfig
	metrics out.MetricsSink // optional
	log     zerolog.Logger

	// running serializes invocations within one process. Overlapping ticks
	// are dropped, not queued.
	running atomic.Bool

	// inflight guards against the same row being claimed twice within this
	// process when a fetch page overlaps a slow worker.
	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewDrainer creates a drainer over the shared service and repository.
func NewDrainer(svc *Service, repo out.InquiryRepository, cfg DrainConfig, metrics out.MetricsSink, log zerolog.Logger) *Drainer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.PerInquiryTimeout <= 0 {
		cfg.PerInquiryTimeout = 30 * time.Second
	}
	if cfg.WorkerChanSize <= 0 {
		cfg.WorkerChanSize = 16
	}
	return &Drainer{
		svc:      svc,
		repo:     repo,
		cfg:      cfg,
		metrics:  metrics,
		log:      log.With().Str("component", "drainer").Logger(),
		inflight: make(map[string]struct{}),
	}
}

// drainWorker adapts one inquiry to the pool.Worker interface.
type drainWorker struct {
	d      *Drainer
	report *DrainReport
}

// Do processes one claimed inquiry under the per-item deadline.
func (w *drainWorker) Do(ctx context.Context, inq *domain.Inquiry) error {
	defer w.d.release(inq.ID.String())

	itemCtx, cancel := context.WithTimeout(ctx, w.d.cfg.PerInquiryTimeout)
	defer cancel()

	_, _, err := w.d.svc.process(itemCtx, inq)
	if err == nil {
		atomic.AddInt64(&w.report.Succeeded, 1)
		w.d.incr("drain.succeeded", 1)
		return nil
	}

	atomic.AddInt64(&w.report.Failed, 1)
	w.d.incr("drain.failed", 1)
	w.d.log.Warn().Err(err).Str("inquiry_id", inq.ID.String()).Msg("inquiry processing failed")

	// The failure write uses a fresh deadline so an expired item context
	// cannot block releasing the claim.
	failCtx, failCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer failCancel()

	poisoned, ferr := w.d.repo.RecordFailure(failCtx, inq.ID, err.Error())
	if ferr != nil {
		w.d.log.Error().Err(ferr).Str("inquiry_id", inq.ID.String()).Msg("record_failure failed")
		return err
	}
	if poisoned {
		atomic.AddInt64(&w.report.Poisoned, 1)
		w.d.incr("drain.poisoned", 1)
		w.d.log.Error().Str("inquiry_id", inq.ID.String()).
			Int("attempts", inq.ProcessingAttempts+1).
			Msg("inquiry poisoned after repeated failures")
	}
	return err
}

// Drain runs one invocation. A zero limit uses the host-mode default: the
// learned limit while learned backends serve, unbounded under rule-based.
// Returns the report even on partial failure.
func (d *Drainer) Drain(ctx context.Context, limit int) (*DrainReport, error) {
	if !d.running.CompareAndSwap(false, true) {
		d.log.Warn().Msg("drain already running, skipping invocation")
		return &DrainReport{}, nil
	}
	defer d.running.Store(false)

	start := time.Now()
	if limit <= 0 {
		limit = d.modeLimit()
	}

	report := &DrainReport{}
	worker := &drainWorker{d: d, report: report}
	wp := pool.New[*domain.Inquiry](d.cfg.WorkerCount, worker).
		WithWorkerChanSize(d.cfg.WorkerChanSize).
		WithContinueOnError()
	if err := wp.Go(ctx); err != nil {
		return report, err
	}

	deadline := start.Add(d.cfg.SoftDeadline)
	var fetched int64

fetchLoop:
	for {
		if d.cfg.SoftDeadline > 0 && time.Now().After(deadline) {
			d.log.Warn().Msg("soft deadline reached, no further fetches")
			break
		}

		pageSize := d.cfg.BatchSize
		if limit > 0 {
			remaining := limit - int(fetched)
			if remaining <= 0 {
				break
			}
			if remaining < pageSize {
				pageSize = remaining
			}
		}

		page, err := d.repo.FetchUnprocessed(ctx, pageSize, true)
		if err != nil {
			d.log.Error().Err(err).Msg("fetch failed, aborting invocation")
			break
		}
		if len(page) == 0 {
			break
		}

		for _, inq := range page {
			if ctx.Err() != nil {
				break fetchLoop
			}
			if !d.acquire(inq.ID.String()) {
				atomic.AddInt64(&report.SkippedInflight, 1)
				d.incr("drain.skipped_inflight", 1)
				continue
			}
			fetched++
			d.incr("drain.fetched", 1)
			wp.Submit(inq)
		}

		// A short page means the table is drained past the claim horizon.
		if len(page) < pageSize {
			break
		}
	}

	if err := wp.Close(ctx); err != nil {
		d.log.Warn().Err(err).Msg("worker pool close")
	}

	report.Fetched = fetched
	report.Duration = time.Since(start)
	d.log.Info().
		Int64("fetched", report.Fetched).
		Int64("succeeded", report.Succeeded).
		Int64("failed", report.Failed).
		Int64("skipped_inflight", report.SkippedInflight).
		Int64("poisoned", report.Poisoned).
		Dur("duration", report.Duration).
		Msg("drain invocation complete")

	return report, nil
}

// modeLimit picks the invocation limit from the predictor host mode. Learned
// inference is the resource bottleneck, so learned mode is capped.
func (d *Drainer) modeLimit() int {
	if d.svc.host.RuleBasedActive() {
		return d.cfg.BatchLimitRuleBased
	}
	return d.cfg.BatchLimitLearned
}

func (d *Drainer) acquire(id string) bool {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	if _, ok := d.inflight[id]; ok {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *Drainer) release(id string) {
	d.inflightMu.Lock()
	delete(d.inflight, id)
	d.inflightMu.Unlock()
}

func (d *Drainer) incr(name string, delta int64) {
	if d.metrics != nil {
		d.metrics.IncrCounter(name, delta)
	}
}
