package source

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/theirongolddev/ccmeter/internal/model"
	"github.com/theirongolddev/ccmeter/internal/pricing"
)

// Outcome classifies what Extract did with a line.
type Outcome int

// Extraction outcomes. Ignored lines are well-formed but carry no usage
// (user turns, system entries); skipped lines are malformed or unusable.
const (
	OutcomeRecord Outcome = iota
	OutcomeIgnored
	OutcomeSkipped
)

// Field probe lists, tried left to right; the first present key wins a
// slot. The log schema has drifted over time, so the probes are encoded
// as data rather than as struct tags.
var (
	inputProbes       = []string{"input_tokens", "inputTokens", "prompt_tokens"}
	outputProbes      = []string{"output_tokens", "outputTokens", "completion_tokens"}
	cacheCreateProbes = []string{"cache_creation_tokens", "cache_creation_input_tokens", "cacheCreationInputTokens"}
	cacheReadProbes   = []string{"cache_read_input_tokens", "cache_read_tokens", "cacheReadInputTokens"}
	requestIDProbes   = []string{"request_id", "requestId", "uuid"}
)

// Extract turns one raw JSONL line into a normalized usage record.
//
// A line qualifies iff its top-level type is "assistant" and it carries a
// message.usage or top-level usage object. Token slots are probed across
// three candidate sources in fixed precedence: message.usage, usage, then
// the top-level record itself. The first source whose input-or-output
// probe yields a positive count supplies all four slots; failing that,
// the first source with any positive count is taken. Records whose slots
// are all zero are skipped.
func Extract(line []byte) (model.UsageRecord, Outcome) {
	if len(bytes.TrimSpace(line)) == 0 {
		return model.UsageRecord{}, OutcomeIgnored
	}
	if sniffType(line) == hintOther {
		// Cheap pre-filter: most lines are user/system turns.
		return model.UsageRecord{}, OutcomeIgnored
	}

	var root map[string]any
	if err := json.Unmarshal(line, &root); err != nil {
		return model.UsageRecord{}, OutcomeSkipped
	}

	if s, _ := root["type"].(string); s != "assistant" {
		return model.UsageRecord{}, OutcomeIgnored
	}

	message, _ := root["message"].(map[string]any)
	var messageUsage, topUsage map[string]any
	if message != nil {
		messageUsage, _ = message["usage"].(map[string]any)
	}
	topUsage, _ = root["usage"].(map[string]any)
	if messageUsage == nil && topUsage == nil {
		return model.UsageRecord{}, OutcomeIgnored
	}

	tokens, ok := probeSources(messageUsage, topUsage, root)
	if !ok {
		return model.UsageRecord{}, OutcomeSkipped
	}
	if tokens.Input < 0 || tokens.Output < 0 || tokens.CacheCreate < 0 || tokens.CacheRead < 0 {
		return model.UsageRecord{}, OutcomeSkipped
	}

	ts, ok := recordTimestamp(root, message)
	if !ok {
		return model.UsageRecord{}, OutcomeSkipped
	}

	rec := model.UsageRecord{
		Timestamp: ts,
		Model:     pricing.Normalize(recordModel(root, message)),
		Tokens:    tokens,
	}
	if message != nil {
		rec.MessageID, _ = message["id"].(string)
	}
	for _, key := range requestIDProbes {
		if s, ok := root[key].(string); ok && s != "" {
			rec.RequestID = s
			break
		}
	}

	return rec, OutcomeRecord
}

// probeSources applies the fixed source precedence and returns the winning
// token vector. ok is false when every slot is zero across all sources.
func probeSources(sources ...map[string]any) (model.TokenVector, bool) {
	var fallback *model.TokenVector

	for _, src := range sources {
		if src == nil {
			continue
		}
		v := probeTokens(src)
		if v.Input > 0 || v.Output > 0 {
			return v, true
		}
		if fallback == nil && !v.IsZero() {
			nz := v
			fallback = &nz
		}
	}

	if fallback != nil {
		return *fallback, true
	}
	return model.TokenVector{}, false
}

func probeTokens(src map[string]any) model.TokenVector {
	return model.TokenVector{
		Input:       probeInt(src, inputProbes),
		Output:      probeInt(src, outputProbes),
		CacheCreate: probeInt(src, cacheCreateProbes),
		CacheRead:   probeInt(src, cacheReadProbes),
	}
}

func probeInt(src map[string]any, keys []string) int64 {
	for _, key := range keys {
		if raw, ok := src[key]; ok {
			if n, ok := asInt64(raw); ok {
				return n
			}
		}
	}
	return 0
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func recordModel(root, message map[string]any) string {
	if message != nil {
		if s, ok := message["model"].(string); ok && s != "" {
			return s
		}
	}
	if s, ok := root["model"].(string); ok && s != "" {
		return s
	}
	return "unknown"
}

func recordTimestamp(root, message map[string]any) (time.Time, bool) {
	if raw, ok := root["timestamp"]; ok {
		if ts, ok := ParseTimestamp(raw); ok {
			return ts, true
		}
		return time.Time{}, false
	}
	if message != nil {
		if raw, ok := message["timestamp"]; ok {
			return ParseTimestamp(raw)
		}
	}
	return time.Time{}, false
}

// ParseTimestamp normalizes the timestamp wire forms to UTC: RFC 3339
// strings (trailing Z or explicit offset), zone-less ISO strings taken as
// UTC, integer epoch seconds (<= 1e12), and epoch milliseconds (> 1e12).
func ParseTimestamp(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts.UTC(), true
		}
		if ts, err := time.Parse("2006-01-02T15:04:05.999999999", v); err == nil {
			return ts.UTC(), true
		}
		return time.Time{}, false
	case float64:
		n := int64(v)
		if n <= 0 {
			return time.Time{}, false
		}
		if n > 1_000_000_000_000 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}
