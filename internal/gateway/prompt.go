package gateway

import (
	"fmt"
	"math"
	"strings"

	"github.com/promptlane/promptlane/internal/model"
)

// combinedPromptTemplate is the wire format sent upstream. The formatting
// rules are aggressive on purpose: the upstream is a stochastic model that
// wraps replies in prose or code fences unless told not to, repeatedly.
const combinedPromptTemplate = `%s

Answer each question below. You MUST return ONLY a valid JSON array with no other text.

CRITICAL FORMATTING RULES:
1. Return ONLY the JSON array - no markdown, no code blocks, no explanations
2. Each array element must have "index" (number) and "response" (string)
3. Escape all special characters in your responses (quotes, newlines, etc.)
4. Keep responses as single-line strings (replace actual newlines with \n)
5. Do not include any text before or after the JSON array

Example format (follow this EXACTLY):
[{"index": 0, "response": "Your answer here"}, {"index": 1, "response": "Another answer"}]

Questions:
%s

Remember: Return ONLY the JSON array, nothing else.`

// buildCombinedPrompt multiplexes N questions into the single upstream
// payload. Position i in prompts is the authoritative index on the way back.
func buildCombinedPrompt(prompts, requestIDs []string, priority model.Priority) string {
	lines := make([]string, len(prompts))
	for i, prompt := range prompts {
		lines[i] = fmt.Sprintf("Index %d (request_id: %s): %s", i, requestIDs[i], prompt)
	}
	return fmt.Sprintf(combinedPromptTemplate, priority.StyleDirective(), strings.Join(lines, "\n"))
}

// maxCombinedOutputTokens is the hard ceiling accepted by the upstream.
const maxCombinedOutputTokens = 32768

// combinedOutputTokens sizes the upstream output budget for a batch of n.
// The 1.5 factor and the +500 absorb JSON framing overhead and reduce
// mid-string truncation.
func combinedOutputTokens(perItemMaxTokens, n int) int {
	budget := int(math.Ceil(float64(perItemMaxTokens)*float64(n)*1.5)) + 500
	if budget > maxCombinedOutputTokens {
		return maxCombinedOutputTokens
	}
	return budget
}
