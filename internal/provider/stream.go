package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/loopkit/loopd/pkg/models"
)

// ToolSpec describes one tool exposed to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Request is one streaming completion request.
type Request struct {
	Model    string
	System   string
	Messages []models.Message
	Tools    []ToolSpec

	MaxTokens int

	// DeepThinking enables the family's native thinking or reasoning mode
	// with ThinkingBudget tokens.
	DeepThinking   bool
	ThinkingBudget int
}

// ToolCallChunk is one streamed fragment of a pending tool call. Index
// identifies which concurrent call the fragment belongs to; nil means 0.
type ToolCallChunk struct {
	Index *int
	ID    string
	Name  string
	Args  string
}

// Chunk is one unit of a streamed model response. A chunk may carry any
// combination of text, structured blocks, and tool-call fragments. Err is
// terminal: the channel closes after an error chunk.
type Chunk struct {
	Content   string
	Blocks    []map[string]any
	ToolCalls []ToolCallChunk
	Usage     *models.TokenUsage
	Err       error
}

// Streamer opens streaming completions against one provider backend. The
// returned channel is closed by the producer when the stream ends.
type Streamer interface {
	Stream(ctx context.Context, req *Request) (<-chan *Chunk, error)
}

// Options configures a concrete streamer.
type Options struct {
	APIKey     string
	Endpoint   string
	MaxRetries int
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

// NewStreamer builds the streamer for a provider name. Unknown and mistral
// providers go through the OpenAI-compatible path, which most gateways
// accept.
func NewStreamer(provider string, opts Options) (Streamer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("provider %q: api key is required", provider)
	}
	switch FamilyFor(provider) {
	case FamilyAnthropic:
		return newAnthropicStreamer(opts), nil
	case FamilyGoogle:
		return newGoogleStreamer(opts), nil
	default:
		return newOpenAIStreamer(opts), nil
	}
}

// retryStream retries a stream-open call with exponential backoff. Only the
// opening call is retried; once chunks flow, errors are terminal.
func retryStream[T any](ctx context.Context, opts Options, open func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		stream, err := open()
		if err == nil {
			return stream, nil
		}
		lastErr = err
		if !retryable(err) || attempt == opts.MaxRetries {
			break
		}
		backoff := opts.RetryDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return zero, lastErr
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit", "rate_limit", "429", "too many requests",
		"500", "502", "503", "504", "internal server error",
		"bad gateway", "service unavailable", "gateway timeout",
		"timeout", "connection reset", "connection refused", "no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
