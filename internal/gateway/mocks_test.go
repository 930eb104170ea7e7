package gateway

import (
	"context"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// mockCompleter implements the upstream SDK slice for testing
type mockCompleter struct {
	mu          sync.Mutex
	calls       int
	lastRequest openai.ChatCompletionRequest

	content     string
	totalTokens int
	err         error
}

func (m *mockCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.mu.Lock()
	m.calls++
	m.lastRequest = req
	m.mu.Unlock()

	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
		Usage: openai.Usage{TotalTokens: m.totalTokens},
	}, nil
}

func (m *mockCompleter) last() openai.ChatCompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// staticKeys implements KeySource with a fixed key
type staticKeys struct {
	key string
}

func (s staticKeys) APIKey() string { return s.key }

// switchableKeys implements KeySource with a swappable key
type switchableKeys struct {
	mu  sync.Mutex
	key string
}

func (s *switchableKeys) APIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

func (s *switchableKeys) set(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
}

// recordingTrace implements TraceLogger for testing
type recordingTrace struct {
	mu        sync.Mutex
	requests  []string
	responses []string
}

func (t *recordingTrace) LogExchange(request, response string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, request)
	t.responses = append(t.responses, response)
}

// newTestGateway wires a gateway to the mock completer, counting client
// constructions.
func newTestGateway(mock *mockCompleter, keys KeySource) (*Gateway, *int) {
	g := New("test-model", keys)
	constructions := 0
	g.newClient = func(apiKey string) completer {
		constructions++
		return mock
	}
	return g, &constructions
}
