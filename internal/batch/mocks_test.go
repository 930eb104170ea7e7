package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/promptlane/promptlane/internal/model"
)

// mockLLM implements LLM for testing
type mockLLM struct {
	mu    sync.Mutex
	calls [][]string // request ids per call

	err     error
	delay   time.Duration
	answers func(i int, requestID string) string
	tokens  int // total tokens per batch
}

func (m *mockLLM) GenerateBatch(ctx context.Context, prompts, requestIDs []string, priority model.Priority, maxTokens int) (*model.BatchedLLMResponse, error) {
	m.mu.Lock()
	ids := make([]string, len(requestIDs))
	copy(ids, requestIDs)
	m.calls = append(m.calls, ids)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if m.err != nil {
		return nil, m.err
	}

	n := len(prompts)
	total := m.tokens
	if total == 0 {
		total = n * 10
	}
	perItem := total / n
	remainder := total % n

	results := make([]model.BatchedLLMResponseItem, n)
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("answer for %s", requestIDs[i])
		if m.answers != nil {
			text = m.answers(i, requestIDs[i])
		}
		tokens := perItem
		if i < remainder {
			tokens++
		}
		results[i] = model.BatchedLLMResponseItem{Index: i, Text: text, TokensUsed: tokens}
	}
	return &model.BatchedLLMResponse{Results: results, ModelLatencyMS: float64(m.delay.Milliseconds())}, nil
}

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockLLM) callIDs() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cloned := make([][]string, len(m.calls))
	copy(cloned, m.calls)
	return cloned
}

// defaultThresholds implements Thresholds with the built-in defaults
type defaultThresholds struct{}

func (defaultThresholds) Thresholds(p model.Priority) model.PriorityThreshold {
	return model.PriorityThreshold{Tokens: p.MaxTokens(), LatencyMS: p.LatencyTargetMS()}
}

// chatAppend is one recorded ChatStore.Append call
type chatAppend struct {
	request  model.GenerationRequest
	response model.GenerationResponse
	batchID  string
}

// mockChatStore implements ChatStore for testing
type mockChatStore struct {
	mu      sync.Mutex
	appends []chatAppend
	err     error
}

func (m *mockChatStore) Append(req model.GenerationRequest, resp model.GenerationResponse, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends = append(m.appends, chatAppend{request: req, response: resp, batchID: batchID})
	return m.err
}

func (m *mockChatStore) entries() []chatAppend {
	m.mu.Lock()
	defer m.mu.Unlock()
	cloned := make([]chatAppend, len(m.appends))
	copy(cloned, m.appends)
	return cloned
}

// recordingProcessor implements Processor, capturing dispatched batches
type recordingProcessor struct {
	mu      sync.Mutex
	batches [][]*QueueItem
	settle  bool
}

func (p *recordingProcessor) Process(batch []*QueueItem) {
	p.mu.Lock()
	p.batches = append(p.batches, batch)
	p.mu.Unlock()

	if p.settle {
		now := time.Now().UTC()
		for _, item := range batch {
			item.handle.settle(&model.GenerationResponse{
				RequestID:   item.Request.RequestID,
				Username:    item.Request.Username,
				Text:        "ok",
				CreatedAt:   item.Request.CreatedAt,
				CompletedAt: now,
			}, nil)
		}
	}
}

func (p *recordingProcessor) snapshot() [][]*QueueItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	cloned := make([][]*QueueItem, len(p.batches))
	copy(cloned, p.batches)
	return cloned
}

func makeRequest(id string, p model.Priority) model.GenerationRequest {
	return model.GenerationRequest{
		Username:  "tester",
		RequestID: id,
		Prompt:    "prompt for " + id,
		CreatedAt: time.Now().UTC(),
		Priority:  p,
	}
}
