package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/promptlane/promptlane/internal/model"
)

// TraceLog appends human-readable request/response blocks to the debug log
// files: one for the combined upstream exchange, one per individual
// request. Failures are logged and swallowed; a trace log never fails a
// batch.
type TraceLog struct {
	mu  sync.Mutex
	dir string
}

const (
	exchangeLogFile   = "llm_request_response.log"
	individualLogFile = "individual_request_response.log"
)

// NewTraceLog creates a trace log rooted at the given directory.
func NewTraceLog(dir string) *TraceLog {
	return &TraceLog{dir: dir}
}

func (t *TraceLog) append(file, block string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", t.dir).Msg("failed to create log directory")
		return
	}
	f, err := os.OpenFile(filepath.Join(t.dir, file), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("file", file).Msg("failed to open trace log")
		return
	}
	defer f.Close()
	if _, err := f.WriteString(block); err != nil {
		log.Warn().Err(err).Str("file", file).Msg("failed to write trace log")
	}
}

func frame(title string) string {
	rule := strings.Repeat("=", 80)
	ts := time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	return fmt.Sprintf("\n%s\n%s — %s\n%s\n\n", rule, title, ts, rule)
}

var sectionRule = strings.Repeat("-", 40)

// LogExchange records one combined prompt and the raw upstream reply.
func (t *TraceLog) LogExchange(request, response string) {
	var b strings.Builder
	b.WriteString(frame("LLM Request/Response"))
	b.WriteString("REQUEST (combined prompt sent to LLM):\n")
	b.WriteString(sectionRule + "\n")
	b.WriteString(request)
	b.WriteString("\n\n")
	b.WriteString("RESPONSE (raw response from LLM):\n")
	b.WriteString(sectionRule + "\n")
	b.WriteString(response)
	b.WriteString("\n\n")
	t.append(exchangeLogFile, b.String())
}

// LogRequestResponse records one request/response pair.
func (t *TraceLog) LogRequestResponse(req model.GenerationRequest, resp model.GenerationResponse) {
	var b strings.Builder
	b.WriteString(frame("Individual Request/Response"))
	b.WriteString("REQUEST:\n")
	b.WriteString(sectionRule + "\n")
	fmt.Fprintf(&b, "  request_id:  %s\n", req.RequestID)
	fmt.Fprintf(&b, "  username:    %s\n", req.Username)
	fmt.Fprintf(&b, "  priority:    %s\n", req.Priority)
	fmt.Fprintf(&b, "  created_at:  %s\n", req.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "  prompt:      %s\n", req.Prompt)
	b.WriteString("\nRESPONSE:\n")
	b.WriteString(sectionRule + "\n")
	fmt.Fprintf(&b, "  request_id:   %s\n", resp.RequestID)
	fmt.Fprintf(&b, "  tokens_used:  %d\n", resp.TokensUsed)
	fmt.Fprintf(&b, "  latency_ms:   %.2f\n", resp.LatencyMS)
	fmt.Fprintf(&b, "  completed_at: %s\n", resp.CompletedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "  text:         %s\n", resp.Text)
	b.WriteString("\n")
	t.append(individualLogFile, b.String())
}
