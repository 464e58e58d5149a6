package model

import "time"

// P90Limits is the adaptive ceiling triple estimated from completed blocks.
type P90Limits struct {
	TokenLimit   int64   `json:"token_limit"`
	CostLimit    float64 `json:"cost_limit"`
	MessageLimit int64   `json:"message_limit"`
}

// LoadCounters reports items skipped while reading the logs. They accompany
// every Metrics snapshot for observability; skips are never errors.
type LoadCounters struct {
	DuplicatesSkipped int `json:"duplicates_skipped"`
	LinesSkipped      int `json:"lines_skipped"`
	FilesSkipped      int `json:"files_skipped"`
}

// Metrics is one immutable snapshot returned by a compute call.
// Nil time pointers mean "not applicable", never "error".
type Metrics struct {
	ComputedAt time.Time `json:"computed_at"`

	CostUsage     float64 `json:"cost_usage"`
	TokenUsage    int64   `json:"token_usage"`
	MessagesUsage int     `json:"messages_usage"`

	TimeToReset       time.Duration          `json:"time_to_reset"`
	ModelDistribution map[string]*ModelStats `json:"model_distribution"`
	BurnRate          *BurnRate              `json:"burn_rate,omitempty"`
	CostRate          float64                `json:"cost_rate"`

	TokensWillRunOut *time.Time `json:"tokens_will_run_out,omitempty"`
	LimitResetsAt    time.Time  `json:"limit_resets_at"`

	P90 P90Limits `json:"p90"`

	Blocks   []*SessionBlock `json:"blocks"`
	Records  []UsageRecord   `json:"records"`
	Counters LoadCounters    `json:"counters"`
}
