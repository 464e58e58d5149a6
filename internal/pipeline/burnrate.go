package pipeline

import (
	"time"

	"github.com/theirongolddev/ccmeter/internal/model"
)

// ComputeBurnRate allocates each block's tokens and cost into the last
// 60 minutes proportionally to how much of the block's lifetime overlaps
// that window, then reduces to per-minute and per-hour rates. Returns nil
// when no tokens landed in the window.
func ComputeBurnRate(blocks []*model.SessionBlock, now time.Time) *model.BurnRate {
	windowStart := now.Add(-time.Hour)

	var tokensInHour, costInHour float64

	for _, b := range blocks {
		if b.IsGap {
			continue
		}

		segEnd := b.ActualEndOrEnd()
		if b.IsActive {
			segEnd = now
		}
		if !segEnd.After(windowStart) || !b.StartTime.Before(now) {
			continue
		}

		a := b.StartTime
		if a.Before(windowStart) {
			a = windowStart
		}
		z := segEnd
		if z.After(now) {
			z = now
		}

		total := segEnd.Sub(b.StartTime).Minutes()
		overlap := z.Sub(a).Minutes()
		if total <= 0 || overlap <= 0 {
			continue
		}

		frac := overlap / total
		tokensInHour += float64(b.Tokens.Total()) * frac
		costInHour += b.CostUSD * frac
	}

	if tokensInHour == 0 {
		return nil
	}

	return &model.BurnRate{
		TokensPerMinute: tokensInHour / 60,
		CostPerHour:     costInHour,
		ComputedAt:      now,
	}
}
