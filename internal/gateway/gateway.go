// Package gateway implements the LLM fan-in/fan-out protocol: it multiplexes
// N prompts into one combined upstream call and splits the structured reply
// back into N indexed answers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/promptlane/promptlane/internal/model"
)

// completer is the slice of the upstream SDK the gateway calls.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// KeySource provides the current upstream API key. It is consulted on every
// batch so key changes from the settings page take effect without a restart.
type KeySource interface {
	APIKey() string
}

// TraceLogger records the combined request/response exchange. Best-effort;
// the gateway never fails a batch over it.
type TraceLogger interface {
	LogExchange(request, response string)
}

// Gateway sends combined generation requests upstream and splits the replies.
type Gateway struct {
	model   string
	keys    KeySource
	limiter *RateLimiter
	trace   TraceLogger

	// The client is rebuilt when the API key changes. Concurrent batches may
	// briefly see the older client; re-init is idempotent so that is harmless.
	mu        sync.Mutex
	client    completer
	clientKey string

	newClient func(apiKey string) completer
}

// New creates a gateway for the given upstream model.
func New(modelName string, keys KeySource) *Gateway {
	return &Gateway{
		model: modelName,
		keys:  keys,
		newClient: func(apiKey string) completer {
			return openai.NewClient(apiKey)
		},
	}
}

// SetRateLimiter installs an upstream requests-per-minute throttle.
func (g *Gateway) SetRateLimiter(rl *RateLimiter) {
	g.limiter = rl
}

// SetTraceLogger installs the combined request/response trace log.
func (g *Gateway) SetTraceLogger(t TraceLogger) {
	g.trace = t
}

func (g *Gateway) clientForKey() (completer, error) {
	key := g.keys.APIKey()
	if key == "" {
		return nil, NewAuthError("no API key configured")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil || g.clientKey != key {
		g.client = g.newClient(key)
		g.clientKey = key
	}
	return g.client, nil
}

// GenerateBatch sends all prompts in one combined request and returns one
// item per input position, in order. It fails only when the upstream call
// itself fails; positions missing from an unparseable reply come back with
// a sentinel error text instead.
func (g *Gateway) GenerateBatch(ctx context.Context, prompts, requestIDs []string, priority model.Priority, maxTokens int) (*model.BatchedLLMResponse, error) {
	n := len(prompts)
	if n == 0 {
		return &model.BatchedLLMResponse{}, nil
	}
	if len(requestIDs) != n {
		requestIDs = make([]string, n)
		for i := range requestIDs {
			requestIDs[i] = strconv.Itoa(i)
		}
	}

	client, err := g.clientForKey()
	if err != nil {
		return nil, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, NewUpstreamError(ErrKindRateLimit, "upstream throttle interrupted", err)
	}

	combined := buildCombinedPrompt(prompts, requestIDs, priority)
	budget := combinedOutputTokens(maxTokens, n)

	log.Info().
		Int("batch_size", n).
		Strs("request_ids", requestIDs).
		Str("priority", priority.String()).
		Int("max_output_tokens", budget).
		Msg("sending combined upstream request")

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: combined}},
		MaxTokens:   budget,
		Temperature: priority.Temperature(),
	}

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, req)
	elapsedMS := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		return nil, convertError(err)
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	totalTokens := resp.Usage.TotalTokens

	if g.trace != nil {
		logged := text
		if logged == "" {
			logged = "(empty response)"
		}
		g.trace.LogExchange(combined, logged)
	}

	parsed := parseBatchReply(text, n)
	results := splitResults(parsed, requestIDs, totalTokens, n)

	log.Info().
		Int("batch_size", n).
		Int("parsed", len(parsed)).
		Int("total_tokens", totalTokens).
		Float64("elapsed_ms", elapsedMS).
		Msg("received combined upstream response")

	return &model.BatchedLLMResponse{Results: results, ModelLatencyMS: elapsedMS}, nil
}

// splitResults builds one item per position. Missing positions carry the
// sentinel text so every waiter still gets an answer. Total tokens are split
// evenly with the remainder going to the lowest indices.
func splitResults(parsed map[int]string, requestIDs []string, totalTokens, n int) []model.BatchedLLMResponseItem {
	perItem := totalTokens / n
	remainder := totalTokens % n

	results := make([]model.BatchedLLMResponseItem, n)
	for i := 0; i < n; i++ {
		text, ok := parsed[i]
		if !ok {
			text = fmt.Sprintf("[Error: failed to parse response for request %s. Check logs.]", requestIDs[i])
			log.Error().Str("request_id", requestIDs[i]).Int("index", i).Msg("no answer recovered for batch position")
		}
		tokens := perItem
		if i < remainder {
			tokens++
		}
		results[i] = model.BatchedLLMResponseItem{Index: i, Text: text, TokensUsed: tokens}
	}
	return results
}

// convertError maps SDK errors to the upstream taxonomy.
func convertError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return NewAuthError(apiErr.Message)
		case http.StatusTooManyRequests:
			if strings.Contains(strings.ToLower(apiErr.Message), "quota") {
				return NewUpstreamError(ErrKindQuota, apiErr.Message, nil)
			}
			return NewUpstreamError(ErrKindRateLimit, apiErr.Message, nil)
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return &UpstreamError{
				Kind:       ErrKindServer,
				Message:    apiErr.Message,
				Retryable:  true,
				StatusCode: apiErr.HTTPStatusCode,
			}
		}
		return NewUpstreamError(ErrKindUnknown, apiErr.Message, nil)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{
			Kind:      ErrKindTimeout,
			Message:   "upstream request timed out",
			Cause:     err,
			Retryable: true,
		}
	}
	return NewUpstreamError(ErrKindNetwork, fmt.Sprintf("upstream call failed: %v", err), err)
}
