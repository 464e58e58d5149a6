package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/theirongolddev/ccmeter/internal/model"
	"github.com/theirongolddev/ccmeter/internal/pricing"
)

// Options configures an Engine.
type Options struct {
	BasePaths       []string
	SessionDuration time.Duration
	StrictModels    bool
	P90             P90Config
	Cache           RecordCache
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Engine is the metrics facade: one synchronous Compute per call, owning
// the cost memoization and the P90 TTL cache across calls. Compute never
// runs concurrently with itself.
type Engine struct {
	opts Options
	calc *pricing.Calculator
	p90  *P90Estimator

	mu sync.Mutex
}

// NewEngine returns an engine with defaults filled in.
func NewEngine(opts Options) *Engine {
	if opts.SessionDuration == 0 {
		opts.SessionDuration = model.BlockDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		opts: opts,
		calc: pricing.NewCalculator(opts.StrictModels),
		p90:  NewP90Estimator(opts.P90, opts.Now),
	}
}

// Compute loads the logs, rebuilds the block model for [start, end), and
// derives one immutable metrics snapshot. Input-shape problems are
// swallowed into the snapshot's counters; only strict-mode unknown models
// and context cancellation propagate.
func (e *Engine) Compute(ctx context.Context, start, end time.Time) (*model.Metrics, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.opts.Now().UTC()

	loaded, err := LoadRecords(ctx, LoadOptions{
		BasePaths: e.opts.BasePaths,
		Start:     start,
		End:       end,
		Cache:     e.opts.Cache,
		Logger:    e.opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	records := loaded.Records
	for i := range records {
		cost, err := e.calc.Cost(records[i].Model, records[i].Tokens)
		if err != nil {
			return nil, err
		}
		records[i].CostUSD = cost
	}

	blocks := BuildBlocks(records, now, e.opts.SessionDuration)
	limits := e.p90.Limits(blocks)

	active := lo.Filter(blocks, func(b *model.SessionBlock, _ int) bool {
		return b.IsActive && !b.IsGap
	})

	m := &model.Metrics{
		ComputedAt: now,
		P90:        limits,
		Blocks:     blocks,
		Records:    records,
		Counters:   loaded.Counters,
	}

	messageIDs := make(map[string]struct{})
	for _, b := range active {
		m.CostUsage += b.CostUSD
		m.TokenUsage += b.Tokens.Usage()
		for id := range b.MessageIDs {
			messageIDs[id] = struct{}{}
		}
		if minutes := b.ActualDurationMinutes(); minutes >= 1 {
			m.CostRate += b.CostUSD / minutes * 60
		}
	}
	m.CostUsage = pricing.RoundDisplay(m.CostUsage)
	m.MessagesUsage = len(messageIDs)
	m.ModelDistribution = mergeModelStats(active)
	m.BurnRate = ComputeBurnRate(blocks, now)

	pred := Predict(blocks, limits.CostLimit, now, e.opts.SessionDuration)
	m.TokensWillRunOut = pred.WillRunOut
	m.LimitResetsAt = pred.ResetAt
	m.TimeToReset = pred.TimeToReset(now)

	return m, nil
}

// InvalidateP90 drops the estimator cache; the next Compute recomputes
// the triple even inside the TTL.
func (e *Engine) InvalidateP90() {
	e.p90.Invalidate()
}

// mergeModelStats sums per-model stats across blocks and recomputes the
// share percentages against the merged totals.
func mergeModelStats(blocks []*model.SessionBlock) map[string]*model.ModelStats {
	merged := make(map[string]*model.ModelStats)
	var totalCost float64
	var totalUsage int64

	for _, b := range blocks {
		for name, ms := range b.PerModel {
			dst, ok := merged[name]
			if !ok {
				dst = &model.ModelStats{}
				merged[name] = dst
			}
			dst.Add(*ms)
		}
		totalCost += b.CostUSD
		totalUsage += b.Tokens.Usage()
	}

	recomputePercentages(merged, totalCost, totalUsage)
	return merged
}
