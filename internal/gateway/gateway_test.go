package gateway

import (
	"context"
	"net/http"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/promptlane/promptlane/internal/model"
)

func TestGenerateBatch_CombinedPrompt(t *testing.T) {
	mock := &mockCompleter{
		content:     `[{"index": 0, "response": "a"}, {"index": 1, "response": "b"}]`,
		totalTokens: 10,
	}
	g, _ := newTestGateway(mock, staticKeys{"key"})

	_, err := g.GenerateBatch(context.Background(), []string{"What is Go?", "What is Rust?"}, []string{"r0", "r1"}, model.PriorityHigh, 512)
	if err != nil {
		t.Fatalf("GenerateBatch failed: %v", err)
	}

	req := mock.last()
	if len(req.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(req.Messages))
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{
		model.PriorityHigh.StyleDirective(),
		"Index 0 (request_id: r0): What is Go?",
		"Index 1 (request_id: r1): What is Rust?",
		"Return ONLY the JSON array",
		"Questions:",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("combined prompt missing %q", want)
		}
	}
}

func TestGenerateBatch_SamplingParameters(t *testing.T) {
	mock := &mockCompleter{content: `[{"index": 0, "response": "a"}]`, totalTokens: 1}
	g, _ := newTestGateway(mock, staticKeys{"key"})

	_, err := g.GenerateBatch(context.Background(), []string{"q0", "q1"}, []string{"r0", "r1"}, model.PriorityHigh, 512)
	if err != nil {
		t.Fatalf("GenerateBatch failed: %v", err)
	}

	req := mock.last()
	if req.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", req.Temperature)
	}
	// ceil(512 * 2 * 1.5) + 500
	if req.MaxTokens != 2036 {
		t.Errorf("max tokens = %d, want 2036", req.MaxTokens)
	}
	if req.Model != "test-model" {
		t.Errorf("model = %q, want test-model", req.Model)
	}
}

func TestCombinedOutputTokens(t *testing.T) {
	cases := []struct {
		maxTokens, n, want int
	}{
		{512, 1, 1268},
		{512, 2, 2036},
		{1024, 4, 6644},
		{32768, 4, 32768},
	}
	for _, tc := range cases {
		if got := combinedOutputTokens(tc.maxTokens, tc.n); got != tc.want {
			t.Errorf("combinedOutputTokens(%d, %d) = %d, want %d", tc.maxTokens, tc.n, got, tc.want)
		}
	}
}

func TestGenerateBatch_TokenDistribution(t *testing.T) {
	mock := &mockCompleter{
		content:     `[{"index": 0, "response": "a"}, {"index": 1, "response": "b"}, {"index": 2, "response": "c"}]`,
		totalTokens: 7,
	}
	g, _ := newTestGateway(mock, staticKeys{"key"})

	resp, err := g.GenerateBatch(context.Background(), []string{"q0", "q1", "q2"}, []string{"r0", "r1", "r2"}, model.PriorityMedium, 1024)
	if err != nil {
		t.Fatalf("GenerateBatch failed: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}

	// 7 / 3 = 2 remainder 1: low indices get the extra token.
	wantTokens := []int{3, 2, 2}
	sum := 0
	for i, item := range resp.Results {
		if item.Index != i {
			t.Errorf("result %d has index %d", i, item.Index)
		}
		if item.TokensUsed != wantTokens[i] {
			t.Errorf("result %d tokens = %d, want %d", i, item.TokensUsed, wantTokens[i])
		}
		sum += item.TokensUsed
	}
	if sum != 7 {
		t.Errorf("token sum = %d, want 7", sum)
	}
}

func TestGenerateBatch_MissingPositionGetsSentinel(t *testing.T) {
	mock := &mockCompleter{
		content:     `[{"index": 0, "response": "a"}, {"index": 2, "response": "c"}]`,
		totalTokens: 9,
	}
	g, _ := newTestGateway(mock, staticKeys{"key"})

	resp, err := g.GenerateBatch(context.Background(), []string{"q0", "q1", "q2"}, []string{"r0", "r1", "r2"}, model.PriorityLow, 2048)
	if err != nil {
		t.Fatalf("GenerateBatch failed: %v", err)
	}

	if resp.Results[0].Text != "a" || resp.Results[2].Text != "c" {
		t.Errorf("unexpected recovered answers: %+v", resp.Results)
	}
	sentinel := resp.Results[1].Text
	if !strings.Contains(sentinel, "r1") || !strings.Contains(sentinel, "failed to parse response") {
		t.Errorf("position 1 sentinel = %q", sentinel)
	}
	if resp.Results[1].TokensUsed != 3 {
		t.Errorf("sentinel position still gets its token share, got %d", resp.Results[1].TokensUsed)
	}
}

func TestGenerateBatch_UnparseableReplyDoesNotFail(t *testing.T) {
	mock := &mockCompleter{content: "I cannot answer in that format, sorry.", totalTokens: 4}
	g, _ := newTestGateway(mock, staticKeys{"key"})

	resp, err := g.GenerateBatch(context.Background(), []string{"q0", "q1"}, []string{"r0", "r1"}, model.PriorityMedium, 1024)
	if err != nil {
		t.Fatalf("unparseable reply must not fail the batch: %v", err)
	}
	for i, item := range resp.Results {
		if !strings.Contains(item.Text, "failed to parse response") {
			t.Errorf("position %d should carry the sentinel, got %q", i, item.Text)
		}
	}
}

func TestGenerateBatch_UpstreamError(t *testing.T) {
	mock := &mockCompleter{err: &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}}
	g, _ := newTestGateway(mock, staticKeys{"key"})

	_, err := g.GenerateBatch(context.Background(), []string{"q"}, []string{"r"}, model.PriorityHigh, 512)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestGenerateBatch_ServerErrorRetryable(t *testing.T) {
	mock := &mockCompleter{err: &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "overloaded"}}
	g, _ := newTestGateway(mock, staticKeys{"key"})

	_, err := g.GenerateBatch(context.Background(), []string{"q"}, []string{"r"}, model.PriorityHigh, 512)
	if !IsRetryableError(err) {
		t.Errorf("expected retryable server error, got %v", err)
	}
}

func TestGenerateBatch_NoAPIKey(t *testing.T) {
	mock := &mockCompleter{content: "[]"}
	g, _ := newTestGateway(mock, staticKeys{""})

	_, err := g.GenerateBatch(context.Background(), []string{"q"}, []string{"r"}, model.PriorityHigh, 512)
	if !IsAuthError(err) {
		t.Errorf("expected auth error for missing key, got %v", err)
	}
	if mock.calls != 0 {
		t.Errorf("upstream must not be called without a key")
	}
}

func TestGateway_ClientReinitOnKeyChange(t *testing.T) {
	mock := &mockCompleter{content: `[{"index": 0, "response": "a"}]`, totalTokens: 1}
	keys := &switchableKeys{key: "first"}
	g, constructions := newTestGateway(mock, keys)

	ctx := context.Background()
	if _, err := g.GenerateBatch(ctx, []string{"q"}, []string{"r"}, model.PriorityHigh, 512); err != nil {
		t.Fatalf("GenerateBatch failed: %v", err)
	}
	if _, err := g.GenerateBatch(ctx, []string{"q"}, []string{"r"}, model.PriorityHigh, 512); err != nil {
		t.Fatalf("GenerateBatch failed: %v", err)
	}
	if *constructions != 1 {
		t.Errorf("client constructed %d times for a stable key, want 1", *constructions)
	}

	keys.set("second")
	if _, err := g.GenerateBatch(ctx, []string{"q"}, []string{"r"}, model.PriorityHigh, 512); err != nil {
		t.Fatalf("GenerateBatch failed: %v", err)
	}
	if *constructions != 2 {
		t.Errorf("client constructed %d times after key change, want 2", *constructions)
	}
}

func TestGenerateBatch_TraceLogged(t *testing.T) {
	mock := &mockCompleter{content: `[{"index": 0, "response": "a"}]`, totalTokens: 1}
	g, _ := newTestGateway(mock, staticKeys{"key"})
	trace := &recordingTrace{}
	g.SetTraceLogger(trace)

	if _, err := g.GenerateBatch(context.Background(), []string{"q"}, []string{"r"}, model.PriorityHigh, 512); err != nil {
		t.Fatalf("GenerateBatch failed: %v", err)
	}
	if len(trace.requests) != 1 || len(trace.responses) != 1 {
		t.Fatalf("expected one logged exchange, got %d/%d", len(trace.requests), len(trace.responses))
	}
	if !strings.Contains(trace.requests[0], "Index 0 (request_id: r): q") {
		t.Errorf("trace request missing question block")
	}
}

func TestGenerateBatch_EmptyBatch(t *testing.T) {
	mock := &mockCompleter{}
	g, _ := newTestGateway(mock, staticKeys{"key"})

	resp, err := g.GenerateBatch(context.Background(), nil, nil, model.PriorityHigh, 512)
	if err != nil {
		t.Fatalf("GenerateBatch failed: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no results, got %d", len(resp.Results))
	}
	if mock.calls != 0 {
		t.Errorf("upstream must not be called for an empty batch")
	}
}
