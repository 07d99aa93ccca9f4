package perplexity

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrimworks/vendorvet/internal/resilience"
	"github.com/scrimworks/vendorvet/internal/task"
)

// Searcher adapts the Perplexity client to the task search contract,
// applying a request rate limit, retries, and a circuit breaker shared
// across all fan-out workers.
type Searcher struct {
	client  Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	models  SearchModels
}

// SearchModels maps capability tiers to Perplexity models.
type SearchModels struct {
	Lite string
	Deep string
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(rps float64) SearcherOption {
	return func(s *Searcher) {
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithSearchModels overrides the default tier models.
func WithSearchModels(m SearchModels) SearcherOption {
	return func(s *Searcher) { s.models = m }
}

// WithRetry overrides the default retry policy.
func WithRetry(cfg resilience.RetryConfig) SearcherOption {
	return func(s *Searcher) { s.retry = cfg }
}

// NewSearcher creates a Searcher over the given client.
func NewSearcher(client Client, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}),
		retry:  resilience.DefaultRetryConfig(),
		models: SearchModels{Lite: defaultLiteModel, Deep: defaultDeepModel},
	}
	s.retry.OnRetry = resilience.RetryLogger("perplexity", "search")
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Searcher) modelFor(tier task.ModelTier) string {
	if tier == task.TierLite {
		return s.models.Lite
	}
	return s.models.Deep
}

// Search runs one query and returns the answer text with source URLs
// appended, so downstream extraction sees the citations.
func (s *Searcher) Search(ctx context.Context, query string, tier task.ModelTier) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*ChatCompletionResponse, error) {
		return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (*ChatCompletionResponse, error) {
			return s.client.ChatCompletion(ctx, ChatCompletionRequest{
				Model:    s.modelFor(tier),
				Messages: []Message{{Role: "user", Content: query}},
			})
		})
	})
	if err != nil {
		return "", err
	}

	content := resp.Content()
	if len(resp.Citations) > 0 {
		content += "\n\nSources:\n" + strings.Join(resp.Citations, "\n")
	}
	return content, nil
}
