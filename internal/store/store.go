// Package store persists completed request/response pairs, computes the
// dashboard analytics and exports the stored history for offline analysis.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/promptlane/promptlane/internal/model"
)

// ChatStore appends chat entries to a JSON file. Writes are serialized by
// an internal mutex; the batching core only ever calls Append.
type ChatStore struct {
	mu   sync.Mutex
	path string
}

// NewChatStore creates a store over the given chats file.
func NewChatStore(path string) *ChatStore {
	return &ChatStore{path: path}
}

func (s *ChatStore) load() []model.ChatEntry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("failed to load chats")
		}
		return nil
	}
	var chats []model.ChatEntry
	if err := json.Unmarshal(data, &chats); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to decode chats")
		return nil
	}
	return chats
}

func (s *ChatStore) save(chats []model.ChatEntry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(chats, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// toMap round-trips a value through JSON so stored entries keep the wire
// field names.
func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Append stores one request/response pair. All items of a batch share one
// batch id.
func (s *ChatStore) Append(req model.GenerationRequest, resp model.GenerationResponse, batchID string) error {
	entry := model.ChatEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		BatchID:   batchID,
		Request:   toMap(req),
		Response:  toMap(resp),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	chats := s.load()
	chats = append(chats, entry)
	if err := s.save(chats); err != nil {
		return fmt.Errorf("failed to save chats: %w", err)
	}
	return nil
}

// Chats returns all stored entries, most recent last.
func (s *ChatStore) Chats() []model.ChatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// normalizePriority maps a stored priority (numeric rank or name) to a lane
// name. Old entries store the rank, new ones the name.
func normalizePriority(raw any) string {
	switch v := raw.(type) {
	case float64:
		switch int(v) {
		case 2:
			return "HIGH"
		case 0:
			return "LOW"
		}
		return "MEDIUM"
	case string:
		name := strings.ToUpper(strings.TrimSpace(v))
		if name == "HIGH" || name == "LOW" {
			return name
		}
		return "MEDIUM"
	}
	return "MEDIUM"
}

// Analytics computes the dashboard roll-up from the stored chats. Counts
// are per batch (one combined upstream call); entries without a batch id
// count as one batch each.
func (s *ChatStore) Analytics() model.AnalyticsResponse {
	chats := s.Chats()

	batches := map[string][]model.ChatEntry{}
	for _, entry := range chats {
		bid := entry.BatchID
		if bid == "" {
			rid, _ := entry.Request["request_id"].(string)
			bid = fmt.Sprintf("legacy_%s_%s", entry.Timestamp, rid)
		}
		batches[bid] = append(batches[bid], entry)
	}

	var high, medium, low int
	byDay := map[string]int{}
	for _, entries := range batches {
		first := entries[0]
		switch normalizePriority(first.Request["priority"]) {
		case "HIGH":
			high++
		case "LOW":
			low++
		default:
			medium++
		}
		if ts, err := time.Parse(time.RFC3339, first.Timestamp); err == nil {
			byDay[ts.Format("2006-01-02")]++
		}
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	overTime := make([]model.TimeBucket, 0, len(days))
	for _, d := range days {
		overTime = append(overTime, model.TimeBucket{Date: d, Count: byDay[d]})
	}

	return model.AnalyticsResponse{
		TotalRequests:        len(batches),
		HighPriority:         high,
		MediumPriority:       medium,
		LowPriority:          low,
		RequestCountOverTime: overTime,
		PriorityDistribution: []model.PrioritySlice{
			{Name: "High", Value: high},
			{Name: "Medium", Value: medium},
			{Name: "Low", Value: low},
		},
	}
}
