package model

import (
	"encoding/json"
	"testing"
)

func TestParsePriority(t *testing.T) {
	cases := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"HIGH", PriorityHigh, false},
		{"high", PriorityHigh, false},
		{" Medium ", PriorityMedium, false},
		{"LOW", PriorityLow, false},
		{"urgent", PriorityMedium, true},
		{"", PriorityMedium, true},
	}
	for _, tc := range cases {
		got, err := ParsePriority(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParsePriority(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("ParsePriority(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPriorityUnmarshalJSON(t *testing.T) {
	cases := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{`"HIGH"`, PriorityHigh, false},
		{`"low"`, PriorityLow, false},
		{`2`, PriorityHigh, false},
		{`1`, PriorityMedium, false},
		{`0`, PriorityLow, false},
		{`5`, PriorityMedium, true},
		{`"urgent"`, PriorityMedium, true},
		{`true`, PriorityMedium, true},
	}
	for _, tc := range cases {
		var p Priority
		err := json.Unmarshal([]byte(tc.in), &p)
		if (err != nil) != tc.wantErr {
			t.Errorf("Unmarshal(%s) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && p != tc.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tc.in, p, tc.want)
		}
	}
}

func TestPriorityMarshalJSON(t *testing.T) {
	data, err := json.Marshal(PriorityHigh)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `"HIGH"` {
		t.Errorf("Marshal(PriorityHigh) = %s, want \"HIGH\"", data)
	}
}

func TestPriorityAttributes(t *testing.T) {
	if got := PriorityHigh.MaxTokens(); got != 512 {
		t.Errorf("HIGH MaxTokens = %d, want 512", got)
	}
	if got := PriorityMedium.MaxTokens(); got != 1024 {
		t.Errorf("MEDIUM MaxTokens = %d, want 1024", got)
	}
	if got := PriorityLow.MaxTokens(); got != 2048 {
		t.Errorf("LOW MaxTokens = %d, want 2048", got)
	}

	if got := PriorityHigh.Temperature(); got != 0.3 {
		t.Errorf("HIGH Temperature = %v, want 0.3", got)
	}
	if got := PriorityMedium.Temperature(); got != 0.5 {
		t.Errorf("MEDIUM Temperature = %v, want 0.5", got)
	}
	if got := PriorityLow.Temperature(); got != 0.7 {
		t.Errorf("LOW Temperature = %v, want 0.7", got)
	}

	for _, p := range []Priority{PriorityHigh, PriorityMedium, PriorityLow} {
		if p.StyleDirective() == "" {
			t.Errorf("%v has empty style directive", p)
		}
	}
}

func TestPriorityRoundTripInRequest(t *testing.T) {
	raw := `{"username":"u","request_id":"r1","prompt":"p","created_at":"2025-01-02T03:04:05Z","priority":2}`
	var req GenerationRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if req.Priority != PriorityHigh {
		t.Errorf("Priority = %v, want HIGH", req.Priority)
	}

	out, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var echo map[string]any
	if err := json.Unmarshal(out, &echo); err != nil {
		t.Fatalf("re-Unmarshal failed: %v", err)
	}
	if echo["priority"] != "HIGH" {
		t.Errorf("re-marshaled priority = %v, want HIGH", echo["priority"])
	}
}
