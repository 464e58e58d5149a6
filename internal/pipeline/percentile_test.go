package pipeline

import (
	"strconv"
	"testing"
	"time"

	"github.com/theirongolddev/ccmeter/internal/model"
)

func completedBlock(id string, totalTokens int64, cost float64, messages int) *model.SessionBlock {
	return &model.SessionBlock{
		ID:           id,
		StartTime:    utc(0, 0),
		EndTime:      utc(5, 0),
		Tokens:       model.TokenVector{Input: totalTokens},
		CostUSD:      cost,
		MessageCount: messages,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestPercentile90_Exclusive(t *testing.T) {
	tests := []struct {
		name   string
		sample []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{7}, 7},
		{"pair", []float64{10, 20}, 20}, // p = 1.7 -> clamp 1
		{"ten values", []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, 99}, // p = 8.9
		{"three values", []float64{80, 90, 100}, 100},                          // p = 2.6 -> clamp 2
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := percentile90(tt.sample)
			if ok != (len(tt.sample) > 0) {
				t.Fatalf("ok = %v", ok)
			}
			if ok && !approx(got, tt.want) {
				t.Errorf("p90 = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPercentile90_Monotone(t *testing.T) {
	sample := []float64{10, 20, 30, 40, 50}
	before, _ := percentile90(sample)
	after, _ := percentile90(append(sample, before+100))
	if after < before {
		t.Errorf("p90 decreased from %v to %v after adding a larger sample", before, after)
	}
}

func TestLimits_TokenLimitCommonLimitHits(t *testing.T) {
	// Ten completed blocks with totals 10k..100k; the limit-hit subset
	// P90 resolves to the largest observed total.
	var blocks []*model.SessionBlock
	for i := int64(1); i <= 10; i++ {
		blocks = append(blocks, completedBlock(strconv.FormatInt(i, 10), i*10000, 1, 10))
	}

	e := NewP90Estimator(P90Config{}, fixedClock(utc(12, 0)))
	limits := e.Limits(blocks)

	if limits.TokenLimit != 100000 {
		t.Errorf("token limit = %d, want 100000", limits.TokenLimit)
	}
}

func TestLimits_DefaultsOnEmpty(t *testing.T) {
	e := NewP90Estimator(P90Config{}, fixedClock(utc(12, 0)))
	limits := e.Limits(nil)

	if limits.TokenLimit != 44000 {
		t.Errorf("token limit = %d, want default 44000", limits.TokenLimit)
	}
	if limits.CostLimit != 5.00 {
		t.Errorf("cost limit = %v, want default 5.00", limits.CostLimit)
	}
	if limits.MessageLimit != 100 {
		t.Errorf("message limit = %d, want default 100", limits.MessageLimit)
	}
}

func TestLimits_TokenLimitFloor(t *testing.T) {
	blocks := []*model.SessionBlock{
		completedBlock("a", 1000, 0.5, 3),
		completedBlock("b", 2000, 0.7, 4),
	}
	e := NewP90Estimator(P90Config{}, fixedClock(utc(12, 0)))
	limits := e.Limits(blocks)

	if limits.TokenLimit != 44000 {
		t.Errorf("token limit = %d, want floored 44000", limits.TokenLimit)
	}
}

func TestLimits_ActiveAndGapExcluded(t *testing.T) {
	activeBlk := completedBlock("active", 500000, 9, 500)
	activeBlk.IsActive = true
	gapBlk := &model.SessionBlock{ID: "gap", IsGap: true}

	e := NewP90Estimator(P90Config{}, fixedClock(utc(12, 0)))
	limits := e.Limits([]*model.SessionBlock{activeBlk, gapBlk})

	if limits.TokenLimit != 44000 || limits.CostLimit != 5.00 {
		t.Errorf("limits = %+v, want pure defaults (no completed blocks)", limits)
	}
}

func TestLimits_CachedUntilTailMoves(t *testing.T) {
	clock := utc(12, 0)
	e := NewP90Estimator(P90Config{}, func() time.Time { return clock })

	blocks := []*model.SessionBlock{completedBlock("a", 90000, 2, 20)}
	first := e.Limits(blocks)

	// Mutating the sample without extending the tail: cached triple.
	blocks[0].CostUSD = 99
	cached := e.Limits(blocks)
	if cached != first {
		t.Fatalf("cached limits = %+v, want %+v", cached, first)
	}

	// A new completed block extends the tail: recomputed.
	blocks = append(blocks, completedBlock("b", 200000, 50, 30))
	fresh := e.Limits(blocks)
	if fresh == first {
		t.Error("limits not recomputed after the block list grew")
	}

	// Explicit invalidation recomputes even with an unchanged tail.
	blocks[0].CostUSD = 2
	e.Invalidate()
	again := e.Limits(blocks)
	if again == fresh {
		t.Error("limits not recomputed after invalidation")
	}
}
