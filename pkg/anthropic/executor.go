package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/scrimworks/vendorvet/internal/resilience"
	"github.com/scrimworks/vendorvet/internal/task"
)

// Models maps capability tiers to concrete model IDs.
type Models struct {
	Lite     string
	Standard string
	Deep     string
}

const jsonSystemPrompt = "Respond with a single valid JSON document and nothing else. " +
	"No markdown fences, no commentary before or after the JSON."

// Executor adapts the Anthropic client to the task executor contract.
// When out is a *string the raw text response is returned; any other target
// gets the response decoded as JSON, with one corrective round trip before
// the call is declared a schema mismatch.
type Executor struct {
	client    Client
	models    Models
	maxTokens int64
	retry     resilience.RetryConfig
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxTokens overrides the default response token budget.
func WithMaxTokens(n int64) ExecutorOption {
	return func(e *Executor) { e.maxTokens = n }
}

// WithRetryConfig overrides the default retry policy for transient failures.
func WithRetryConfig(cfg resilience.RetryConfig) ExecutorOption {
	return func(e *Executor) { e.retry = cfg }
}

// NewExecutor creates an Executor over the given client and tier models.
func NewExecutor(client Client, models Models, opts ...ExecutorOption) *Executor {
	e := &Executor{
		client:    client,
		models:    models,
		maxTokens: 8192,
		retry:     resilience.DefaultRetryConfig(),
	}
	e.retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) modelFor(tier task.ModelTier) string {
	switch tier {
	case task.TierLite:
		return e.models.Lite
	case task.TierDeep:
		return e.models.Deep
	default:
		return e.models.Standard
	}
}

// Execute runs one instruction against the tier's model.
func (e *Executor) Execute(ctx context.Context, instruction string, tier task.ModelTier, out any) error {
	model := e.modelFor(tier)
	target, wantText := out.(*string)

	req := MessageRequest{
		Model:     model,
		MaxTokens: e.maxTokens,
		Messages:  []Message{{Role: "user", Content: instruction}},
	}
	if !wantText {
		req.System = []SystemBlock{{Text: jsonSystemPrompt}}
	}

	resp, err := e.createMessage(ctx, req)
	if err != nil {
		return err
	}
	text := resp.Text()

	if wantText {
		*target = text
		return nil
	}

	decodeErr := json.Unmarshal([]byte(cleanJSON(text)), out)
	if decodeErr == nil {
		return nil
	}

	// One corrective round trip: show the model its own malformed output.
	zap.L().Warn("anthropic: response failed to decode, requesting correction",
		zap.String("model", model),
		zap.Error(decodeErr),
	)
	req.Messages = append(req.Messages,
		Message{Role: "assistant", Content: text},
		Message{Role: "user", Content: "That response was not valid JSON for the requested structure. Respond again with only the corrected JSON document."},
	)
	resp, err = e.createMessage(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), out); err != nil {
		return &task.SchemaMismatchError{Detail: "anthropic response did not match the expected structure", Err: err}
	}
	return nil
}

func (e *Executor) createMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*MessageResponse, error) {
		return e.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(resp.Model, "execute")
	return resp, nil
}

// cleanJSON attempts to extract a JSON document from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find the outermost JSON object or array.
	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		if end := strings.LastIndex(text, "]"); end > arrStart {
			return strings.TrimSpace(text[arrStart : end+1])
		}
	}
	if objStart >= 0 {
		if end := strings.LastIndex(text, "}"); end > objStart {
			return strings.TrimSpace(text[objStart : end+1])
		}
	}

	return strings.TrimSpace(text)
}
