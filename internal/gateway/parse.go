package gateway

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

var (
	fenceOpen  = regexp.MustCompile("^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")

	// First JSON array of objects anywhere in the payload.
	arrayPattern = regexp.MustCompile(`(?s)\[\s*\{.*?\}\s*\]`)

	trailingComma = regexp.MustCompile(`,\s*([\]}])`)

	// Tolerates escape sequences inside the response string.
	manualItemPattern = regexp.MustCompile(`\{\s*"index"\s*:\s*(\d+)\s*,\s*"response"\s*:\s*"((?:[^"\\]|\\.)*)`)

	lineMarker = regexp.MustCompile(`Index\s+(\d+)\s*:`)
)

// parseBatchReply recovers an index -> answer map from a raw upstream reply.
// Strategies are layered and applied in order, stopping at the first that
// yields a valid JSON array; the model wraps replies in prose, fences them,
// or truncates them mid-string often enough that no single failure mode can
// be terminal. An unrecoverable reply returns an empty map, never an error.
func parseBatchReply(raw string, n int) map[int]string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return map[int]string{}
	}

	steps := []func(string) string{
		stripCodeFence,
		extractArray,
		stripTrailingCommas,
		repairTruncated,
	}
	for _, step := range steps {
		text = step(text)
		if items, ok := decodeItems(text); ok {
			return items
		}
	}

	if repaired, err := jsonrepair.JSONRepair(text); err == nil {
		if items, ok := decodeItems(repaired); ok {
			return items
		}
	}

	log.Warn().Int("expected", n).Str("head", head(raw, 500)).Msg("batch reply JSON parse failed, falling back to manual extraction")

	if items := extractItemsManually(raw); len(items) > 0 {
		return items
	}
	return extractIndexedLines(raw)
}

// head truncates s for log output.
func head(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// stripCodeFence removes a single surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```") {
		t = fenceOpen.ReplaceAllString(t, "")
		t = fenceClose.ReplaceAllString(t, "")
	}
	return strings.TrimSpace(t)
}

// extractArray pulls the first array-of-objects substring out of stray prose.
func extractArray(s string) string {
	if m := arrayPattern.FindString(s); m != "" {
		return m
	}
	return s
}

func stripTrailingCommas(s string) string {
	return trailingComma.ReplaceAllString(s, "$1")
}

// repairTruncated closes a reply that was cut off before the final bracket:
// close the string if an odd number of unescaped quotes is open, close the
// object, close the array.
func repairTruncated(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasSuffix(t, "]") {
		return t
	}
	if unescapedQuoteCount(t)%2 == 1 {
		t += `"`
	}
	if strings.Count(t, "{") > strings.Count(t, "}") {
		t += "}"
	}
	return t + "]"
}

func unescapedQuoteCount(s string) int {
	count := 0
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			count++
		}
	}
	return count
}

// decodeItems parses s as the expected JSON array and extracts each
// element's index and response. Elements missing either field are skipped;
// duplicate indices are last-write-wins. The bool reports whether s was a
// valid JSON array at all.
func decodeItems(s string) (map[int]string, bool) {
	var arr []map[string]any
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		return nil, false
	}

	out := make(map[int]string, len(arr))
	for _, el := range arr {
		idx, ok := coerceIndex(el["index"])
		if !ok {
			log.Debug().Interface("element", el).Msg("batch reply element has no usable index, skipping")
			continue
		}
		resp, ok := coerceString(el["response"])
		if !ok {
			log.Debug().Int("index", idx).Msg("batch reply element has no usable response, skipping")
			continue
		}
		out[idx] = strings.TrimSpace(resp)
	}
	return out, true
}

func coerceIndex(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		idx, err := strconv.Atoi(strings.TrimSpace(n))
		return idx, err == nil
	case json.Number:
		idx, err := n.Int64()
		return int(idx), err == nil
	}
	return 0, false
}

func coerceString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	}
	return "", false
}

// extractItemsManually regex-scans for {"index":i,"response":"..."} pairs in
// a reply no JSON strategy could fix, unescaping the common sequences.
func extractItemsManually(raw string) map[int]string {
	out := map[int]string{}
	for _, m := range manualItemPattern.FindAllStringSubmatch(raw, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out[idx] = strings.TrimSpace(unescapeJSONString(m[2]))
	}
	return out
}

func unescapeJSONString(s string) string {
	return strings.NewReplacer(`\n`, "\n", `\"`, `"`, `\\`, `\`).Replace(s)
}

// extractIndexedLines is the last resort: line-oriented "Index N: text"
// blocks, each running to the next marker or end of input.
func extractIndexedLines(raw string) map[int]string {
	out := map[int]string{}
	locs := lineMarker.FindAllStringSubmatchIndex(raw, -1)
	for k, loc := range locs {
		idx, err := strconv.Atoi(raw[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		end := len(raw)
		if k+1 < len(locs) {
			end = locs[k+1][0]
		}
		out[idx] = strings.TrimSpace(raw[loc[1]:end])
	}
	return out
}
