package pipeline

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/theirongolddev/ccmeter/internal/model"
)

// P90Config tunes the adaptive-limit estimator.
type P90Config struct {
	CommonLimits    []int64
	LimitThreshold  float64
	DefaultMinLimit int64
	DefaultCost     float64
	DefaultMessages int64
	CacheTTL        time.Duration
}

// DefaultP90Config returns the stock estimator settings.
func DefaultP90Config() P90Config {
	return P90Config{
		CommonLimits:    []int64{19000, 88000, 220000, 880000},
		LimitThreshold:  0.9,
		DefaultMinLimit: 44000,
		DefaultCost:     5.00,
		DefaultMessages: 100,
		CacheTTL:        time.Hour,
	}
}

// P90Estimator computes 90th-percentile ceilings over completed blocks,
// memoized with a TTL. The cache also invalidates whenever the block list
// extends beyond its prior tail.
type P90Estimator struct {
	cfg P90Config
	now func() time.Time

	mu          sync.Mutex
	cached      model.P90Limits
	cachedAt    time.Time
	fingerprint string
}

// NewP90Estimator returns an estimator with the given config.
// Zero-valued config fields fall back to the defaults.
func NewP90Estimator(cfg P90Config, now func() time.Time) *P90Estimator {
	def := DefaultP90Config()
	if len(cfg.CommonLimits) == 0 {
		cfg.CommonLimits = def.CommonLimits
	}
	if cfg.LimitThreshold == 0 {
		cfg.LimitThreshold = def.LimitThreshold
	}
	if cfg.DefaultMinLimit == 0 {
		cfg.DefaultMinLimit = def.DefaultMinLimit
	}
	if cfg.DefaultCost == 0 {
		cfg.DefaultCost = def.DefaultCost
	}
	if cfg.DefaultMessages == 0 {
		cfg.DefaultMessages = def.DefaultMessages
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &P90Estimator{cfg: cfg, now: now}
}

// Limits returns the P90 triple for the given block list.
func (e *P90Estimator) Limits(blocks []*model.SessionBlock) model.P90Limits {
	completed := lo.Filter(blocks, func(b *model.SessionBlock, _ int) bool {
		return !b.IsGap && !b.IsActive
	})

	fp := fingerprintBlocks(completed)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if fp == e.fingerprint && !e.cachedAt.IsZero() && now.Sub(e.cachedAt) < e.cfg.CacheTTL {
		return e.cached
	}

	limits := model.P90Limits{
		TokenLimit:   e.tokenLimit(completed),
		CostLimit:    e.cfg.DefaultCost,
		MessageLimit: e.cfg.DefaultMessages,
	}

	costs := lo.Map(completed, func(b *model.SessionBlock, _ int) float64 { return b.CostUSD })
	if p, ok := percentile90(costs); ok {
		limits.CostLimit = p
	}
	messages := lo.Map(completed, func(b *model.SessionBlock, _ int) float64 { return float64(b.MessageCount) })
	if p, ok := percentile90(messages); ok {
		limits.MessageLimit = int64(math.Round(p))
	}

	e.cached = limits
	e.cachedAt = now
	e.fingerprint = fp
	return limits
}

// Invalidate drops the cached triple.
func (e *P90Estimator) Invalidate() {
	e.mu.Lock()
	e.cachedAt = time.Time{}
	e.fingerprint = ""
	e.mu.Unlock()
}

// tokenLimit applies the two-tier selection: prefer blocks that plausibly
// ran into a common limit, fall back to every block with usage, floor at
// the configured minimum.
func (e *P90Estimator) tokenLimit(completed []*model.SessionBlock) int64 {
	hits := lo.Filter(completed, func(b *model.SessionBlock, _ int) bool {
		total := float64(b.Tokens.Total())
		for _, limit := range e.cfg.CommonLimits {
			if total >= e.cfg.LimitThreshold*float64(limit) {
				return true
			}
		}
		return false
	})
	sample := hits
	if len(sample) == 0 {
		sample = lo.Filter(completed, func(b *model.SessionBlock, _ int) bool {
			return b.Tokens.Total() > 0
		})
	}

	totals := lo.Map(sample, func(b *model.SessionBlock, _ int) float64 { return float64(b.Tokens.Total()) })
	p, ok := percentile90(totals)
	if !ok {
		return e.cfg.DefaultMinLimit
	}

	limit := int64(math.Round(p))
	if limit < e.cfg.DefaultMinLimit {
		limit = e.cfg.DefaultMinLimit
	}
	return limit
}

// percentile90 computes the exclusive-interpolation 90th percentile:
// position p = 0.9*(n+1) - 1, clamped into [0, n-1], linearly
// interpolated between the surrounding ranks.
func percentile90(sample []float64) (float64, bool) {
	n := len(sample)
	if n == 0 {
		return 0, false
	}

	sorted := make([]float64, n)
	copy(sorted, sample)
	sort.Float64s(sorted)

	p := 0.9*float64(n+1) - 1
	if p < 0 {
		p = 0
	}
	if p > float64(n-1) {
		p = float64(n - 1)
	}

	lower := int(math.Floor(p))
	upper := int(math.Ceil(p))
	if lower == upper {
		return sorted[lower], true
	}
	frac := p - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*frac, true
}

func fingerprintBlocks(completed []*model.SessionBlock) string {
	if len(completed) == 0 {
		return ""
	}
	last := completed[len(completed)-1]
	return last.ID + "/" + last.ActualEndOrEnd().Format(time.RFC3339Nano)
}
