package pipeline

import (
	"time"

	"github.com/theirongolddev/ccmeter/internal/model"
)

// BuildBlocks groups time-sorted records into fixed-duration session
// blocks aligned to UTC hour boundaries, inserting gap blocks where the
// log goes quiet for at least one block duration.
//
// A new block opens when a record lands at or past the current block's
// fixed end, or at least one block duration after the previous record.
// Both triggers can fire on the same record: the block closes AND a gap
// block is inserted when the distance from the closed block's last
// activity also meets the threshold.
func BuildBlocks(records []model.UsageRecord, now time.Time, duration time.Duration) []*model.SessionBlock {
	if len(records) == 0 {
		return nil
	}

	var blocks []*model.SessionBlock
	var current *model.SessionBlock
	var prevTS time.Time

	for _, rec := range records {
		switch {
		case current == nil:
			current = openBlock(rec.Timestamp, duration)
		case !rec.Timestamp.Before(current.EndTime) || rec.Timestamp.Sub(prevTS) >= duration:
			closeBlock(current)
			blocks = append(blocks, current)
			if gap := rec.Timestamp.Sub(*current.ActualEnd); gap >= duration {
				blocks = append(blocks, gapBlock(*current.ActualEnd, rec.Timestamp))
			}
			current = openBlock(rec.Timestamp, duration)
		}

		addRecord(current, rec)
		prevTS = rec.Timestamp
	}

	closeBlock(current)
	blocks = append(blocks, current)

	for _, b := range blocks {
		b.IsActive = !b.IsGap && b.EndTime.After(now)
	}

	return blocks
}

// openBlock starts a block at the UTC hour floor of the opening record.
func openBlock(ts time.Time, duration time.Duration) *model.SessionBlock {
	start := ts.UTC().Truncate(time.Hour)
	return &model.SessionBlock{
		ID:         start.Format(time.RFC3339),
		StartTime:  start,
		EndTime:    start.Add(duration),
		PerModel:   make(map[string]*model.ModelStats),
		MessageIDs: make(model.IDSet),
	}
}

func gapBlock(start, end time.Time) *model.SessionBlock {
	return &model.SessionBlock{
		ID:        "gap-" + start.UTC().Format(time.RFC3339),
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
		IsGap:     true,
	}
}

func addRecord(b *model.SessionBlock, rec model.UsageRecord) {
	ts := rec.Timestamp.UTC()
	b.ActualEnd = &ts

	b.Tokens = b.Tokens.Add(rec.Tokens)
	b.CostUSD += rec.CostUSD
	b.MessageCount++
	if rec.MessageID != "" {
		b.MessageIDs[rec.MessageID] = struct{}{}
	}

	ms, ok := b.PerModel[rec.Model]
	if !ok {
		ms = &model.ModelStats{}
		b.PerModel[rec.Model] = ms
	}
	ms.Tokens = ms.Tokens.Add(rec.Tokens)
	ms.CostUSD += rec.CostUSD
	ms.Entries++
}

// closeBlock freezes the per-model percentages against the block totals.
// Usage tokens (input+output) are the token denominator.
func closeBlock(b *model.SessionBlock) {
	recomputePercentages(b.PerModel, b.CostUSD, b.Tokens.Usage())
}

func recomputePercentages(perModel map[string]*model.ModelStats, totalCost float64, totalUsage int64) {
	for _, ms := range perModel {
		ms.PercentByCost = 0
		ms.PercentByToken = 0
		if totalCost > 0 {
			ms.PercentByCost = ms.CostUSD / totalCost * 100
		}
		if totalUsage > 0 {
			ms.PercentByToken = float64(ms.Tokens.Usage()) / float64(totalUsage) * 100
		}
	}
}
