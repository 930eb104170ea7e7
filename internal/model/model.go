// Package model defines the request, response and settings value types
// shared across the service.
package model

import "time"

// GenerationRequest is a single client-submitted generation request.
// It is immutable once created; uniqueness of RequestID is the client's
// responsibility.
type GenerationRequest struct {
	Username  string    `json:"username"`
	RequestID string    `json:"request_id"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
	Priority  Priority  `json:"priority"`
}

// GenerationResponse is what the client receives for one request.
type GenerationResponse struct {
	RequestID   string    `json:"request_id"`
	Username    string    `json:"username"`
	Text        string    `json:"text"`
	TokensUsed  int       `json:"tokens_used"`
	LatencyMS   float64   `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// BatchedLLMResponseItem is one parsed answer out of a combined upstream
// reply, addressed by its position in the batch.
type BatchedLLMResponseItem struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}

// BatchedLLMResponse is the split result of a single combined upstream call.
// Results holds exactly one item per input position, in order.
type BatchedLLMResponse struct {
	Results        []BatchedLLMResponseItem `json:"results"`
	ModelLatencyMS float64                  `json:"model_latency_ms"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ChatEntry is one stored request/response pair returned by GET /v1/chat.
type ChatEntry struct {
	Timestamp string         `json:"timestamp"`
	BatchID   string         `json:"batch_id,omitempty"`
	Request   map[string]any `json:"request"`
	Response  map[string]any `json:"response"`
}

// TimeBucket is one point of the analytics time series.
type TimeBucket struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// PrioritySlice is one slice of the analytics priority distribution.
type PrioritySlice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// AnalyticsResponse is the GET /v1/analytics body. Counts are per batch
// (one combined upstream call), not per individual request.
type AnalyticsResponse struct {
	TotalRequests        int             `json:"total_requests"`
	HighPriority         int             `json:"high_priority"`
	MediumPriority       int             `json:"medium_priority"`
	LowPriority          int             `json:"low_priority"`
	RequestCountOverTime []TimeBucket    `json:"request_count_over_time"`
	PriorityDistribution []PrioritySlice `json:"priority_distribution"`
}

// PriorityThreshold holds the runtime-configurable per-priority limits.
type PriorityThreshold struct {
	Tokens    int     `json:"tokens"`
	LatencyMS float64 `json:"latency_ms"`
}

// SettingsResponse is the GET /v1/settings body. The API key is masked.
type SettingsResponse struct {
	APIKey         *string           `json:"api_key"`
	HighPriority   PriorityThreshold `json:"high_priority"`
	MediumPriority PriorityThreshold `json:"medium_priority"`
	LowPriority    PriorityThreshold `json:"low_priority"`
}

// SettingsUpdate is the PUT /v1/settings body. Nil fields are left as-is.
type SettingsUpdate struct {
	APIKey         *string            `json:"api_key,omitempty"`
	HighPriority   *PriorityThreshold `json:"high_priority,omitempty"`
	MediumPriority *PriorityThreshold `json:"medium_priority,omitempty"`
	LowPriority    *PriorityThreshold `json:"low_priority,omitempty"`
}
