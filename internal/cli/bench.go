package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/promptlane/promptlane/internal/model"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Fire concurrent requests at a running server",
	Long: `Drive a running promptlane server with simultaneous requests per
priority lane and report, per lane, how many succeeded, their latency and
the tokens used. Batch grouping is not reported here; watch the server
logs to see the batching behavior.

Examples:
  # 6 simultaneous HIGH requests (should land in one batch)
  promptlane bench --high 6 --medium 0

  # Mixed lanes
  promptlane bench --high 3 --medium 3 --low 3`,
	RunE: runBench,
}

var (
	benchURL     string
	benchHigh    int
	benchMedium  int
	benchLow     int
	benchPrompt  string
	benchTimeout time.Duration
)

func init() {
	benchCmd.Flags().StringVar(&benchURL, "url", "http://127.0.0.1:8000", "server base URL")
	benchCmd.Flags().IntVar(&benchHigh, "high", 0, "number of HIGH priority requests")
	benchCmd.Flags().IntVar(&benchMedium, "medium", 4, "number of MEDIUM priority requests")
	benchCmd.Flags().IntVar(&benchLow, "low", 0, "number of LOW priority requests")
	benchCmd.Flags().StringVar(&benchPrompt, "prompt", "Explain request batching in one paragraph.", "prompt sent with every request")
	benchCmd.Flags().DurationVar(&benchTimeout, "timeout", 45*time.Second, "per-request timeout")
}

// benchResult is the outcome of one streamed request.
type benchResult struct {
	priority   model.Priority
	requestID  string
	elapsed    time.Duration
	tokensUsed int
	serverMS   float64
	textLen    int
	err        error
}

func runBench(cmd *cobra.Command, args []string) error {
	total := benchHigh + benchMedium + benchLow
	if total == 0 {
		return fmt.Errorf("nothing to send: all lane counts are zero")
	}

	client := &http.Client{Timeout: benchTimeout}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("requests"),
		progressbar.OptionShowCount(),
	)

	plan := make([]model.Priority, 0, total)
	for i := 0; i < benchHigh; i++ {
		plan = append(plan, model.PriorityHigh)
	}
	for i := 0; i < benchMedium; i++ {
		plan = append(plan, model.PriorityMedium)
	}
	for i := 0; i < benchLow; i++ {
		plan = append(plan, model.PriorityLow)
	}

	results := make([]benchResult, total)
	var wg sync.WaitGroup
	for i, p := range plan {
		wg.Add(1)
		go func(slot int, priority model.Priority) {
			defer wg.Done()
			results[slot] = sendBenchRequest(client, priority)
			bar.Add(1)
		}(i, p)
	}
	wg.Wait()
	fmt.Println()

	printBenchSummary(cmd, results)
	return nil
}

func sendBenchRequest(client *http.Client, priority model.Priority) benchResult {
	requestID := fmt.Sprintf("%s-%s", strings.ToLower(priority.String()), uuid.New().String()[:8])
	res := benchResult{priority: priority, requestID: requestID}

	payload := model.GenerationRequest{
		Username:  "bench",
		RequestID: requestID,
		Prompt:    benchPrompt,
		CreatedAt: time.Now().UTC(),
		Priority:  priority,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		res.err = err
		return res
	}

	start := time.Now()
	resp, err := client.Post(benchURL+"/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		res.err = err
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		res.err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		return res
	}

	// Consume the SSE stream: text chunks accumulate, the done chunk
	// carries the metadata, an error chunk fails the request.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var chunk struct {
			Type       string  `json:"type"`
			Content    string  `json:"content"`
			Message    string  `json:"message"`
			TokensUsed int     `json:"tokens_used"`
			LatencyMS  float64 `json:"latency_ms"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			continue
		}
		switch chunk.Type {
		case "text":
			res.textLen += len(chunk.Content)
		case "done":
			res.tokensUsed = chunk.TokensUsed
			res.serverMS = chunk.LatencyMS
		case "error":
			res.err = fmt.Errorf("%s", chunk.Message)
		}
	}
	if err := scanner.Err(); err != nil && res.err == nil {
		res.err = err
	}
	res.elapsed = time.Since(start)
	return res
}

func printBenchSummary(cmd *cobra.Command, results []benchResult) {
	byLane := map[model.Priority][]benchResult{}
	for _, r := range results {
		byLane[r.priority] = append(byLane[r.priority], r)
	}

	for _, p := range []model.Priority{model.PriorityHigh, model.PriorityMedium, model.PriorityLow} {
		lane := byLane[p]
		if len(lane) == 0 {
			continue
		}
		sort.Slice(lane, func(i, j int) bool { return lane[i].elapsed < lane[j].elapsed })

		var ok int
		var totalElapsed time.Duration
		var totalTokens int
		for _, r := range lane {
			if r.err == nil {
				ok++
				totalElapsed += r.elapsed
				totalTokens += r.tokensUsed
			}
		}

		cmd.Printf("%-6s  %d/%d succeeded", p, ok, len(lane))
		if ok > 0 {
			cmd.Printf("  avg %.0fms  min %.0fms  max %.0fms  tokens %d",
				float64(totalElapsed.Milliseconds())/float64(ok),
				float64(lane[0].elapsed.Milliseconds()),
				float64(lane[len(lane)-1].elapsed.Milliseconds()),
				totalTokens)
		}
		cmd.Println()
		for _, r := range lane {
			if r.err != nil {
				cmd.Printf("  %s failed: %v\n", r.requestID, r.err)
			}
		}
	}
}
