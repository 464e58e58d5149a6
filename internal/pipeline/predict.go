package pipeline

import (
	"math"
	"time"

	"github.com/theirongolddev/ccmeter/internal/model"
)

// maxPredictionHorizon caps how far ahead an exhaustion prediction may
// land; anything beyond it is noise and reported as "not applicable".
const maxPredictionHorizon = 24 * time.Hour

// Prediction holds the exhaustion forecast and reset timing for the
// current block list.
type Prediction struct {
	WillRunOut *time.Time
	ResetAt    time.Time
}

// Predict extrapolates the active block's cost-per-minute against the
// cost ceiling. The forecast is only reported when it lands strictly
// before the block's fixed reset time.
func Predict(blocks []*model.SessionBlock, costLimit float64, now time.Time, duration time.Duration) Prediction {
	active := activeBlock(blocks)

	pred := Prediction{ResetAt: resetTime(blocks, active, now, duration)}
	if active == nil {
		return pred
	}

	elapsed := now.Sub(active.StartTime).Minutes()
	if elapsed <= 0 {
		return pred
	}
	costPerMinute := active.CostUSD / elapsed
	if costPerMinute <= 0 {
		return pred
	}

	var predicted time.Time
	remaining := costLimit - active.CostUSD
	if remaining <= 0 {
		predicted = now // already exhausted
	} else {
		// remaining/costPerMinute, written to avoid the intermediate
		// division so exact inputs stay exact under ceil.
		minutes := math.Ceil(remaining * elapsed / active.CostUSD)
		predicted = now.Add(time.Duration(minutes) * time.Minute)
		if predicted.Sub(now) > maxPredictionHorizon {
			return pred
		}
	}

	if predicted.Before(pred.ResetAt) {
		pred.WillRunOut = &predicted
	}
	return pred
}

// TimeToReset returns the non-negative duration until the reset time.
func (p Prediction) TimeToReset(now time.Time) time.Duration {
	d := p.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func activeBlock(blocks []*model.SessionBlock) *model.SessionBlock {
	for _, b := range blocks {
		if b.IsActive && !b.IsGap {
			return b
		}
	}
	return nil
}

// resetTime is the active block's fixed end; without an active block, the
// most recent non-gap block's start plus one duration; without any
// blocks, one duration from now.
func resetTime(blocks []*model.SessionBlock, active *model.SessionBlock, now time.Time, duration time.Duration) time.Time {
	if active != nil {
		return active.EndTime
	}
	for i := len(blocks) - 1; i >= 0; i-- {
		if !blocks[i].IsGap {
			return blocks[i].StartTime.Add(duration)
		}
	}
	return now.Add(duration)
}
