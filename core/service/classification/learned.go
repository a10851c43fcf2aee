package classification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"inquiry_server/core/domain"
	"inquiry_server/core/service/preprocess"
	"inquiry_server/pkg/logger"
)

// =============================================================================
// Learned Backends (zero-shot over candidate labels)
// =============================================================================

// LearnedConfig configures the learned classifier client shared by the
// category and sentiment backends.
type LearnedConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

const defaultLearnedModel = "gpt-4o-mini"

// learnedClient wraps the chat-completion client with lazy initialization and
// a circuit breaker. Both learned backends share one instance so a permanent
// outage trips a single breaker.
type learnedClient struct {
	cfg LearnedConfig
	log *logger.Logger

	loadOnce sync.Once
	loadErr  error
	client   *openai.Client
	cb       *gobreaker.CircuitBreaker
}

func newLearnedClient(cfg LearnedConfig, log *logger.Logger) *learnedClient {
	if cfg.Model == "" {
		cfg.Model = defaultLearnedModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &learnedClient{cfg: cfg, log: log}
}

// load initializes the client on first use. A missing API key is a permanent
// load failure; callers translate it into ErrModelUnavailable.
func (c *learnedClient) load() error {
	c.loadOnce.Do(func() {
		if c.cfg.APIKey == "" {
			c.loadErr = fmt.Errorf("%w: no api key configured", ErrModelUnavailable)
			return
		}

		c.client = openai.NewClient(c.cfg.APIKey)
		c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "learned-classifier",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.ConsecutiveFailures > 5 ||
					(counts.Requests >= 10 && failureRatio >= 0.6)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.log.WithFields(map[string]any{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("circuit breaker state changed")
			},
		})
	})
	return c.loadErr
}

// classify runs one zero-shot classification: the model picks exactly one of
// the candidate labels and reports a confidence.
func (c *learnedClient) classify(ctx context.Context, task, text string, labels []string) (string, float64, error) {
	if err := c.load(); err != nil {
		return "", 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	systemPrompt := fmt.Sprintf(`You are a %s classifier for customer inquiries.
Classify the inquiry into exactly one of these labels: %s.
Respond with a JSON object: {"label": "<one of the labels>", "confidence": <0.0-1.0>}.`,
		task, strings.Join(labels, ", "))

	result, err := c.cb.Execute(func() (interface{}, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: text},
			},
			Temperature: 0,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("empty completion")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	var parsed struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(result.(string)), &parsed); err != nil {
		return "", 0, fmt.Errorf("%w: malformed completion: %v", ErrModelUnavailable, err)
	}

	label := strings.ToLower(strings.TrimSpace(parsed.Label))
	valid := false
	for _, l := range labels {
		if label == l {
			valid = true
			break
		}
	}
	if !valid {
		return "", 0, fmt.Errorf("%w: label %q outside candidate set", ErrModelUnavailable, parsed.Label)
	}

	conf := parsed.Confidence
	if conf <= 0 || conf > 1 {
		conf = 0.5
	}
	return label, conf, nil
}

// LearnedCategoryBackend classifies category via zero-shot over the six
// category labels.
type LearnedCategoryBackend struct {
	client *learnedClient
}

// LearnedSentimentBackend classifies sentiment via zero-shot over the three
// sentiment labels.
type LearnedSentimentBackend struct {
	client *learnedClient
}

// NewLearnedBackends creates the category and sentiment learned backends
// sharing one lazily loaded client.
func NewLearnedBackends(cfg LearnedConfig, log *logger.Logger) (*LearnedCategoryBackend, *LearnedSentimentBackend) {
	client := newLearnedClient(cfg, log)
	return &LearnedCategoryBackend{client: client}, &LearnedSentimentBackend{client: client}
}

// Name returns the backend name including the model.
func (b *LearnedCategoryBackend) Name() string {
	return "category-learned/" + b.client.cfg.Model
}

// Predict classifies the category. The remaining probability mass is spread
// evenly over the losing labels so AllScores still sums to 1.
func (b *LearnedCategoryBackend) Predict(ctx context.Context, text *preprocess.Canonical) (*CategoryResult, error) {
	labels := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		labels[i] = string(c)
	}

	label, conf, err := b.client.classify(ctx, "category", text.Combined, labels)
	if err != nil {
		return nil, err
	}

	winner := domain.Category(label)
	rest := (1 - conf) / float64(len(domain.Categories)-1)
	scores := make(map[domain.Category]float64, len(domain.Categories))
	for _, c := range domain.Categories {
		if c == winner {
			scores[c] = conf
		} else {
			scores[c] = rest
		}
	}

	return &CategoryResult{Category: winner, Confidence: conf, AllScores: scores}, nil
}

// Name returns the backend name including the model.
func (b *LearnedSentimentBackend) Name() string {
	return "sentiment-learned/" + b.client.cfg.Model
}

// Predict classifies the sentiment.
func (b *LearnedSentimentBackend) Predict(ctx context.Context, text *preprocess.Canonical) (*SentimentResult, error) {
	labels := []string{
		string(domain.SentimentPositive),
		string(domain.SentimentNeutral),
		string(domain.SentimentNegative),
	}

	label, conf, err := b.client.classify(ctx, "sentiment", text.Combined, labels)
	if err != nil {
		return nil, err
	}

	return &SentimentResult{Sentiment: domain.Sentiment(label), Confidence: conf}, nil
}
