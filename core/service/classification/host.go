package classification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/goccy/go-json"

	"inquiry_server/config"
	"inquiry_server/core/port/out"
	"inquiry_server/core/service/preprocess"
	"inquiry_server/pkg/apperr"
	"inquiry_server/pkg/logger"
)

// =============================================================================
// Predictor Host
// =============================================================================

// HostConfig configures backend selection.
type HostConfig struct {
	Mode            config.RuleBasedMode
	MemoryThreshold int64 // auto-mode probe threshold, bytes
}

// Host owns the three predictors and decides, per modality, whether the
// learned or the rule-based backend serves a request.
//
// Selection follows the configured mode:
//
//	force → rule-based backends only, learned backends never load
//	off   → learned backends only, failures surface to the caller
//	auto  → learned when the memory probe passes, with a permanent
//	        per-modality fallback to rule-based on the first failure
//
// Fallback is sticky for the process lifetime: once a learned backend has
// failed there is no probing it again on later requests.
type Host struct {
	cfg HostConfig
	log *logger.Logger

	ruleCategory  CategoryBackend
	ruleSentiment SentimentBackend
	urgency       UrgencyBackend

	learnedCategory  CategoryBackend
	learnedSentiment SentimentBackend

	categoryFellBack  atomic.Bool
	sentimentFellBack atomic.Bool

	cache   out.PredictionCache // optional
	metrics out.MetricsSink     // optional
}

// HostOption customizes a Host.
type HostOption func(*Host)

// WithPredictionCache attaches a prediction cache.
func WithPredictionCache(cache out.PredictionCache) HostOption {
	return func(h *Host) { h.cache = cache }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(sink out.MetricsSink) HostOption {
	return func(h *Host) { h.metrics = sink }
}

// WithLearnedBackends attaches the learned category and sentiment backends.
// Without them auto mode behaves like force.
func WithLearnedBackends(category CategoryBackend, sentiment SentimentBackend) HostOption {
	return func(h *Host) {
		h.learnedCategory = category
		h.learnedSentiment = sentiment
	}
}

// NewHost creates a predictor host with rule-based backends wired in.
func NewHost(cfg HostConfig, log *logger.Logger, opts ...HostOption) *Host {
	h := &Host{
		cfg:           cfg,
		log:           log,
		ruleCategory:  NewRuleCategoryBackend(),
		ruleSentiment: NewRuleSentimentBackend(),
		urgency:       NewRuleUrgencyBackend(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if cfg.Mode == config.RuleBasedAuto && h.learnedCategory != nil {
		if avail, err := availableMemory(); err == nil && avail < cfg.MemoryThreshold {
			h.log.WithFields(map[string]any{
				"available_bytes": avail,
				"threshold_bytes": cfg.MemoryThreshold,
			}).Info("memory below learned-model threshold, using rule-based backends")
			h.categoryFellBack.Store(true)
			h.sentimentFellBack.Store(true)
		}
	}

	return h
}

// Mode returns the configured selection mode.
func (h *Host) Mode() config.RuleBasedMode { return h.cfg.Mode }

// RuleBasedActive reports whether every modality is currently served by
// rule-based backends. The drain loop uses it to pick its batch limit.
func (h *Host) RuleBasedActive() bool {
	switch h.cfg.Mode {
	case config.RuleBasedForce:
		return true
	case config.RuleBasedOff:
		return false
	default:
		if h.learnedCategory == nil {
			return true
		}
		return h.categoryFellBack.Load() && h.sentimentFellBack.Load()
	}
}

// Predict runs all three predictors over the canonical text and returns the
// combined triple. With a cache attached, a hit short-circuits the backends.
func (h *Host) Predict(ctx context.Context, text *preprocess.Canonical) (*PredictionTriple, error) {
	fp := Fingerprint(text)

	if h.cache != nil {
		if data, err := h.cache.Get(ctx, fp); err == nil && data != nil {
			var triple PredictionTriple
			if err := json.Unmarshal(data, &triple); err == nil {
				h.incr("classification.cache_hit", 1)
				return &triple, nil
			}
		}
		h.incr("classification.cache_miss", 1)
	}

	catBackend := h.selectCategory()
	if catBackend == nil {
		return nil, apperr.ModelUnavailable("category", ErrModelUnavailable)
	}
	cat, err := catBackend.Predict(ctx, text)
	if err != nil {
		if cat, catBackend, err = h.recoverCategory(ctx, text, err); err != nil {
			return nil, err
		}
	}

	sentBackend := h.selectSentiment()
	if sentBackend == nil {
		return nil, apperr.ModelUnavailable("sentiment", ErrModelUnavailable)
	}
	sent, err := sentBackend.Predict(ctx, text)
	if err != nil {
		if sent, sentBackend, err = h.recoverSentiment(ctx, text, err); err != nil {
			return nil, err
		}
	}

	urg, err := h.urgency.Predict(ctx, text)
	if err != nil {
		return nil, apperr.ClassificationFailed("urgency", err)
	}

	triple := &PredictionTriple{
		Category:  *cat,
		Sentiment: *sent,
		Urgency:   *urg,
		ModelIdentifier: fmt.Sprintf("category=%s;sentiment=%s;urgency=%s",
			catBackend.Name(), sentBackend.Name(), h.urgency.Name()),
	}

	if h.cache != nil {
		if data, err := json.Marshal(triple); err == nil {
			if err := h.cache.Set(ctx, fp, data); err != nil {
				h.log.WithError(err).Warn("prediction cache write failed")
			}
		}
	}

	return triple, nil
}

func (h *Host) selectCategory() CategoryBackend {
	if h.useLearned(&h.categoryFellBack) {
		return h.learnedCategory
	}
	return h.ruleCategory
}

func (h *Host) selectSentiment() SentimentBackend {
	if h.useLearned(&h.sentimentFellBack) {
		return h.learnedSentiment
	}
	return h.ruleSentiment
}

// useLearned decides backend selection per modality. In off mode the learned
// backend is always selected, even when absent; the caller turns the missing
// backend into a MODEL_UNAVAILABLE error instead of silently downgrading.
func (h *Host) useLearned(fellBack *atomic.Bool) bool {
	switch h.cfg.Mode {
	case config.RuleBasedForce:
		return false
	case config.RuleBasedOff:
		return true
	default:
		return h.learnedCategory != nil && !fellBack.Load()
	}
}

// recoverCategory handles a category backend failure: in auto mode it
// activates the permanent fallback and retries rule-based; otherwise the
// failure surfaces.
func (h *Host) recoverCategory(ctx context.Context, text *preprocess.Canonical, cause error) (*CategoryResult, CategoryBackend, error) {
	if h.cfg.Mode != config.RuleBasedAuto || !errors.Is(cause, ErrModelUnavailable) {
		return nil, nil, apperr.ClassificationFailed("category", cause)
	}

	h.activateFallback("category", &h.categoryFellBack, cause)
	res, err := h.ruleCategory.Predict(ctx, text)
	if err != nil {
		return nil, nil, apperr.ClassificationFailed("category", err)
	}
	return res, h.ruleCategory, nil
}

func (h *Host) recoverSentiment(ctx context.Context, text *preprocess.Canonical, cause error) (*SentimentResult, SentimentBackend, error) {
	if h.cfg.Mode != config.RuleBasedAuto || !errors.Is(cause, ErrModelUnavailable) {
		return nil, nil, apperr.ClassificationFailed("sentiment", cause)
	}

	h.activateFallback("sentiment", &h.sentimentFellBack, cause)
	res, err := h.ruleSentiment.Predict(ctx, text)
	if err != nil {
		return nil, nil, apperr.ClassificationFailed("sentiment", err)
	}
	return res, h.ruleSentiment, nil
}

// activateFallback flips the sticky per-modality flag. The metric and log
// line are emitted once, on the transition only.
func (h *Host) activateFallback(modality string, flag *atomic.Bool, cause error) {
	if flag.CompareAndSwap(false, true) {
		h.incr("classification.fallback_activated", 1)
		h.log.WithError(cause).WithField("modality", modality).
			Warn("learned backend failed, falling back to rule-based permanently")
	}
}

func (h *Host) incr(name string, delta int64) {
	if h.metrics != nil {
		h.metrics.IncrCounter(name, delta)
	}
}

// Fingerprint derives the cache key for canonical text.
func Fingerprint(text *preprocess.Canonical) string {
	sum := sha256.Sum256([]byte(text.Combined))
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// Memory Probe
// =============================================================================

// availableMemory reads MemAvailable from /proc/meminfo. Errors mean the
// probe is inconclusive and the caller should not force a fallback.
func availableMemory() (int64, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("MemAvailable not found in /proc/meminfo")
}
