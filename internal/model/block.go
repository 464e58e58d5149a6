package model

import (
	"encoding/json"
	"sort"
	"time"
)

// BlockDuration is the fixed length of a billing session block.
const BlockDuration = 5 * time.Hour

// ModelStats holds per-model accumulation inside a block or distribution.
type ModelStats struct {
	Tokens         TokenVector `json:"tokens"`
	CostUSD        float64     `json:"cost_usd"`
	Entries        int         `json:"entries"`
	PercentByCost  float64     `json:"percent_by_cost"`
	PercentByToken float64     `json:"percent_by_token"`
}

// Add merges another ModelStats into this one. Percentages are left stale;
// callers recompute them against the new totals.
func (m *ModelStats) Add(o ModelStats) {
	m.Tokens = m.Tokens.Add(o.Tokens)
	m.CostUSD += o.CostUSD
	m.Entries += o.Entries
}

// IDSet is a set of message identifiers. It serializes as a sorted list
// so a block survives a marshal/unmarshal round trip intact.
type IDSet map[string]struct{}

// MarshalJSON implements json.Marshaler.
func (s IDSet) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return json.Marshal(ids)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	*s = set
	return nil
}

// SessionBlock is a five-hour usage window aligned to a UTC hour boundary,
// or a gap marker between two such windows.
type SessionBlock struct {
	ID        string     `json:"id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	ActualEnd *time.Time `json:"actual_end,omitempty"`

	Tokens       TokenVector            `json:"tokens"`
	CostUSD      float64                `json:"cost_usd"`
	PerModel     map[string]*ModelStats `json:"per_model,omitempty"`
	MessageIDs   IDSet                  `json:"message_ids,omitempty"`
	MessageCount int                    `json:"message_count"`

	IsActive bool `json:"is_active"`
	IsGap    bool `json:"is_gap"`
}

// ActualEndOrEnd returns the last activity timestamp, falling back to the
// fixed block end when no activity was recorded.
func (b *SessionBlock) ActualEndOrEnd() time.Time {
	if b.ActualEnd != nil {
		return *b.ActualEnd
	}
	return b.EndTime
}

// DurationMinutes is the fixed block span in minutes.
func (b *SessionBlock) DurationMinutes() float64 {
	return b.EndTime.Sub(b.StartTime).Minutes()
}

// ActualDurationMinutes is the span from block start to last activity.
func (b *SessionBlock) ActualDurationMinutes() float64 {
	if b.ActualEnd == nil {
		return 0
	}
	return b.ActualEnd.Sub(b.StartTime).Minutes()
}

// BurnRate is the token and cost flux over the trailing 60 minutes.
type BurnRate struct {
	TokensPerMinute float64   `json:"tokens_per_minute"`
	CostPerHour     float64   `json:"cost_per_hour"`
	ComputedAt      time.Time `json:"computed_at"`
}
