package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTokenVector(t *testing.T) {
	v := TokenVector{Input: 1000, Output: 500, CacheCreate: 200, CacheRead: 100}

	if got := v.Usage(); got != 1500 {
		t.Errorf("Usage = %d, want 1500", got)
	}
	if got := v.Total(); got != 1800 {
		t.Errorf("Total = %d, want 1800", got)
	}
	if v.IsZero() {
		t.Error("non-empty vector reported zero")
	}
	if !(TokenVector{}).IsZero() {
		t.Error("empty vector not reported zero")
	}

	sum := v.Add(TokenVector{Input: 1, Output: 2, CacheCreate: 3, CacheRead: 4})
	want := TokenVector{Input: 1001, Output: 502, CacheCreate: 203, CacheRead: 104}
	if sum != want {
		t.Errorf("Add = %+v, want %+v", sum, want)
	}
}

func TestModelStatsAdd_AssociativeCommutative(t *testing.T) {
	a := ModelStats{Tokens: TokenVector{Input: 1, Output: 2}, CostUSD: 0.5, Entries: 1}
	b := ModelStats{Tokens: TokenVector{Input: 10, CacheRead: 5}, CostUSD: 1.25, Entries: 2}
	c := ModelStats{Tokens: TokenVector{Output: 100}, CostUSD: 0.25, Entries: 3}

	sum := func(parts ...ModelStats) ModelStats {
		var acc ModelStats
		for _, p := range parts {
			acc.Add(p)
		}
		return acc
	}

	abc := sum(a, b, c)
	cba := sum(c, b, a)
	acb := sum(a, c, b)

	if abc.Tokens != cba.Tokens || abc.Entries != cba.Entries || abc.CostUSD != cba.CostUSD {
		t.Errorf("order changed the sum: %+v vs %+v", abc, cba)
	}
	if abc.Tokens != acb.Tokens || abc.Entries != acb.Entries {
		t.Errorf("grouping changed the sum: %+v vs %+v", abc, acb)
	}
	if abc.Entries != 6 {
		t.Errorf("entries = %d, want 6", abc.Entries)
	}
}

func TestUsageRecordIdentity(t *testing.T) {
	rec := UsageRecord{MessageID: "m1", RequestID: "r1"}
	if !rec.HasIdentity() || rec.DedupKey() != "m1:r1" {
		t.Errorf("identity = (%v, %q)", rec.HasIdentity(), rec.DedupKey())
	}

	for _, partial := range []UsageRecord{{MessageID: "m1"}, {RequestID: "r1"}, {}} {
		if partial.HasIdentity() {
			t.Errorf("partial pair %+v must not have an identity", partial)
		}
	}
}

func TestSessionBlockJSONRoundTrip(t *testing.T) {
	actualEnd := time.Date(2024, 9, 11, 14, 37, 25, 0, time.UTC)
	orig := SessionBlock{
		ID:        "2024-09-11T14:00:00Z",
		StartTime: time.Date(2024, 9, 11, 14, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 9, 11, 19, 0, 0, 0, time.UTC),
		ActualEnd: &actualEnd,
		Tokens:    TokenVector{Input: 1000, Output: 500, CacheCreate: 200, CacheRead: 100},
		CostUSD:   0.01128,
		PerModel: map[string]*ModelStats{
			"claude-3-5-sonnet": {Tokens: TokenVector{Input: 1000, Output: 500}, CostUSD: 0.01128, Entries: 1, PercentByCost: 100, PercentByToken: 100},
		},
		MessageIDs:   IDSet{"m1": {}, "m2": {}},
		MessageCount: 2,
		IsActive:     true,
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back SessionBlock
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if back.ID != orig.ID || !back.StartTime.Equal(orig.StartTime) || !back.EndTime.Equal(orig.EndTime) {
		t.Errorf("window fields lost: %+v", back)
	}
	if back.ActualEnd == nil || !back.ActualEnd.Equal(*orig.ActualEnd) {
		t.Errorf("actual end = %v, want %v", back.ActualEnd, orig.ActualEnd)
	}
	if back.Tokens != orig.Tokens || back.CostUSD != orig.CostUSD || back.MessageCount != orig.MessageCount {
		t.Errorf("usage fields lost: %+v", back)
	}
	if back.IsActive != orig.IsActive || back.IsGap != orig.IsGap {
		t.Errorf("flags lost: %+v", back)
	}
	ms := back.PerModel["claude-3-5-sonnet"]
	if ms == nil || *ms != *orig.PerModel["claude-3-5-sonnet"] {
		t.Errorf("per-model stats lost: %+v", ms)
	}
	if len(back.MessageIDs) != len(orig.MessageIDs) {
		t.Fatalf("message ids = %v, want %v", back.MessageIDs, orig.MessageIDs)
	}
	for id := range orig.MessageIDs {
		if _, ok := back.MessageIDs[id]; !ok {
			t.Errorf("message id %q lost in round trip", id)
		}
	}
}

func TestIDSetJSON(t *testing.T) {
	set := IDSet{"b": {}, "a": {}, "c": {}}

	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Sorted list form keeps the encoding deterministic.
	if string(data) != `["a","b","c"]` {
		t.Errorf("encoded = %s, want sorted list", data)
	}

	var back IDSet
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back) != 3 {
		t.Fatalf("decoded set = %v, want 3 ids", back)
	}
	for id := range set {
		if _, ok := back[id]; !ok {
			t.Errorf("id %q missing after round trip", id)
		}
	}

	var empty IDSet
	data, err = json.Marshal(empty)
	if err != nil || string(data) != "[]" {
		t.Errorf("nil set encoded as %s (%v), want []", data, err)
	}
}

func TestSessionBlockDurations(t *testing.T) {
	start := time.Date(2024, 9, 11, 14, 0, 0, 0, time.UTC)
	actualEnd := start.Add(90 * time.Minute)
	b := SessionBlock{
		StartTime: start,
		EndTime:   start.Add(BlockDuration),
		ActualEnd: &actualEnd,
	}

	if got := b.DurationMinutes(); got != 300 {
		t.Errorf("duration = %v, want 300", got)
	}
	if got := b.ActualDurationMinutes(); got != 90 {
		t.Errorf("actual duration = %v, want 90", got)
	}
	if got := b.ActualEndOrEnd(); !got.Equal(actualEnd) {
		t.Errorf("actual end or end = %v, want %v", got, actualEnd)
	}

	b.ActualEnd = nil
	if got := b.ActualEndOrEnd(); !got.Equal(b.EndTime) {
		t.Errorf("fallback = %v, want fixed end", got)
	}
	if got := b.ActualDurationMinutes(); got != 0 {
		t.Errorf("actual duration without activity = %v, want 0", got)
	}
}
