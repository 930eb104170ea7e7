// Package settings implements the runtime settings store: the upstream API
// key and per-priority token/latency thresholds, persisted to a JSON file
// so they can be changed from the settings page while the service runs.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/promptlane/promptlane/internal/model"
)

// DefaultThresholds are used when the settings file has no stored value.
var DefaultThresholds = map[model.Priority]model.PriorityThreshold{
	model.PriorityHigh:   {Tokens: 512, LatencyMS: 100},
	model.PriorityMedium: {Tokens: 1024, LatencyMS: 200},
	model.PriorityLow:    {Tokens: 2048, LatencyMS: 300},
}

// Store reads and writes the runtime settings file. Every accessor re-reads
// the file so callers always observe the current value; the batching core
// never caches thresholds across batches.
type Store struct {
	mu          sync.Mutex
	path        string
	fallbackKey string
}

// NewStore creates a store over the given settings file. fallbackKey is the
// API key from the static config, used when the file has none.
func NewStore(path, fallbackKey string) *Store {
	return &Store{path: path, fallbackKey: fallbackKey}
}

func priorityKey(p model.Priority) string {
	return strings.ToLower(p.String()) + "_priority"
}

// load reads the settings file into a fresh viper instance. A missing file
// is not an error; the defaults apply until the first update is written.
func (s *Store) load() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				log.Warn().Err(err).Str("path", s.path).Msg("failed to load settings file")
			}
		}
	}
	return v
}

// Thresholds returns the current {tokens, latency_ms} pair for a priority.
func (s *Store) Thresholds(p model.Priority) model.PriorityThreshold {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.load()
	key := priorityKey(p)
	th := DefaultThresholds[p]
	if v.IsSet(key + ".tokens") {
		th.Tokens = v.GetInt(key + ".tokens")
	}
	if v.IsSet(key + ".latency_ms") {
		th.LatencyMS = v.GetFloat64(key + ".latency_ms")
	}
	return th
}

// APIKey returns the raw upstream API key: the stored one if set, else the
// static-config fallback, else empty.
func (s *Store) APIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key := strings.TrimSpace(s.load().GetString("api_key")); key != "" {
		return key
	}
	return s.fallbackKey
}

// maskKey hides all but the last four characters of an API key.
func maskKey(key string) *string {
	if key == "" {
		return nil
	}
	masked := "***"
	if len(key) >= 4 {
		masked = "***" + key[len(key)-4:]
	}
	return &masked
}

// Snapshot returns the current settings with the API key masked, for the
// settings page.
func (s *Store) Snapshot() model.SettingsResponse {
	return model.SettingsResponse{
		APIKey:         maskKey(s.APIKey()),
		HighPriority:   s.Thresholds(model.PriorityHigh),
		MediumPriority: s.Thresholds(model.PriorityMedium),
		LowPriority:    s.Thresholds(model.PriorityLow),
	}
}

// Update merges the non-nil fields into the settings file and returns the
// resulting snapshot.
func (s *Store) Update(upd model.SettingsUpdate) (model.SettingsResponse, error) {
	s.mu.Lock()

	v := s.load()
	if upd.APIKey != nil && *upd.APIKey != "" {
		v.Set("api_key", *upd.APIKey)
	}
	for p, th := range map[model.Priority]*model.PriorityThreshold{
		model.PriorityHigh:   upd.HighPriority,
		model.PriorityMedium: upd.MediumPriority,
		model.PriorityLow:    upd.LowPriority,
	} {
		if th == nil {
			continue
		}
		key := priorityKey(p)
		v.Set(key+".tokens", th.Tokens)
		v.Set(key+".latency_ms", th.LatencyMS)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.mu.Unlock()
		return model.SettingsResponse{}, fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := v.WriteConfigAs(s.path); err != nil {
		s.mu.Unlock()
		return model.SettingsResponse{}, fmt.Errorf("failed to save settings: %w", err)
	}
	s.mu.Unlock()

	return s.Snapshot(), nil
}
