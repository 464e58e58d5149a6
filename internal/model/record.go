// Package model defines domain types for ccmeter usage records, blocks, and metrics.
package model

import "time"

// TokenVector holds the four token counts reported for one API response.
// It is an immutable value; combine vectors with Add.
type TokenVector struct {
	Input       int64 `json:"input"`
	Output      int64 `json:"output"`
	CacheCreate int64 `json:"cache_create"`
	CacheRead   int64 `json:"cache_read"`
}

// Usage returns the billed conversation tokens (input + output only).
func (v TokenVector) Usage() int64 {
	return v.Input + v.Output
}

// Total returns all tokens including cache traffic.
func (v TokenVector) Total() int64 {
	return v.Input + v.Output + v.CacheCreate + v.CacheRead
}

// IsZero reports whether every slot is zero.
func (v TokenVector) IsZero() bool {
	return v.Input == 0 && v.Output == 0 && v.CacheCreate == 0 && v.CacheRead == 0
}

// Add returns the element-wise sum of two vectors.
func (v TokenVector) Add(o TokenVector) TokenVector {
	return TokenVector{
		Input:       v.Input + o.Input,
		Output:      v.Output + o.Output,
		CacheCreate: v.CacheCreate + o.CacheCreate,
		CacheRead:   v.CacheRead + o.CacheRead,
	}
}

// UsageRecord is one normalized assistant entry extracted from a JSONL line.
type UsageRecord struct {
	Timestamp time.Time   `json:"timestamp"`
	Model     string      `json:"model"`
	Tokens    TokenVector `json:"tokens"`
	MessageID string      `json:"message_id,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	CostUSD   float64     `json:"cost_usd"`
}

// HasIdentity reports whether the record carries the full identity pair.
// Records without it are never deduplicated.
func (r UsageRecord) HasIdentity() bool {
	return r.MessageID != "" && r.RequestID != ""
}

// DedupKey returns the global identity pair key used for deduplication.
// Only meaningful when HasIdentity is true.
func (r UsageRecord) DedupKey() string {
	return r.MessageID + ":" + r.RequestID
}
