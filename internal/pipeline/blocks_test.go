package pipeline

import (
	"testing"
	"time"

	"github.com/theirongolddev/ccmeter/internal/model"
)

func rec(ts time.Time, modelName string, input, output int64, cost float64) model.UsageRecord {
	return model.UsageRecord{
		Timestamp: ts,
		Model:     modelName,
		Tokens:    model.TokenVector{Input: input, Output: output},
		CostUSD:   cost,
	}
}

func utc(hour, minute int) time.Time {
	return time.Date(2024, 9, 11, hour, minute, 0, 0, time.UTC)
}

func approx(got, want float64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}

func TestBuildBlocks_HourAlignment(t *testing.T) {
	now := utc(15, 30)
	blocks := BuildBlocks([]model.UsageRecord{
		rec(utc(14, 37), "claude-3-5-sonnet", 100, 50, 0.01),
	}, now, model.BlockDuration)

	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(blocks))
	}
	b := blocks[0]
	if !b.StartTime.Equal(utc(14, 0)) {
		t.Errorf("start = %v, want 14:00", b.StartTime)
	}
	if !b.EndTime.Equal(utc(19, 0)) {
		t.Errorf("end = %v, want 19:00", b.EndTime)
	}
	if b.StartTime.Minute() != 0 || b.StartTime.Second() != 0 {
		t.Error("block start must be hour-aligned")
	}
	if !b.IsActive {
		t.Error("block ending after now must be active")
	}
	if b.ActualEnd == nil || !b.ActualEnd.Equal(utc(14, 37)) {
		t.Errorf("actual end = %v, want 14:37", b.ActualEnd)
	}
}

func TestBuildBlocks_ExactBoundaryOpensNewBlockAndGap(t *testing.T) {
	// Two records exactly one block duration apart: the boundary is
	// exclusive on the start side, so a second block opens — and the
	// distance from the first block's last activity also meets the gap
	// threshold, so a gap block lands between them.
	now := utc(20, 0)
	blocks := BuildBlocks([]model.UsageRecord{
		rec(utc(14, 0), "claude-3-5-sonnet", 100, 0, 0),
		rec(utc(19, 0), "claude-3-5-sonnet", 100, 0, 0),
	}, now, model.BlockDuration)

	if len(blocks) != 3 {
		t.Fatalf("blocks = %d, want 3 (block, gap, block)", len(blocks))
	}
	if !blocks[0].StartTime.Equal(utc(14, 0)) || blocks[0].IsGap {
		t.Errorf("first block = %+v, want real block at 14:00", blocks[0])
	}
	gap := blocks[1]
	if !gap.IsGap {
		t.Fatal("middle block must be a gap")
	}
	if !gap.StartTime.Equal(utc(14, 0)) || !gap.EndTime.Equal(utc(19, 0)) {
		t.Errorf("gap = [%v, %v], want [14:00, 19:00]", gap.StartTime, gap.EndTime)
	}
	if !blocks[2].StartTime.Equal(utc(19, 0)) || blocks[2].IsGap {
		t.Errorf("last block = %+v, want real block at 19:00", blocks[2])
	}
}

func TestBuildBlocks_GapRequiresThreshold(t *testing.T) {
	// 4h59m between records: same block, no gap.
	now := utc(23, 0)
	blocks := BuildBlocks([]model.UsageRecord{
		rec(utc(14, 0), "claude-3-5-sonnet", 1, 0, 0),
		rec(utc(18, 59), "claude-3-5-sonnet", 1, 0, 0),
	}, now, model.BlockDuration)

	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(blocks))
	}
}

func TestBuildBlocks_QuietPeriodInsertsGap(t *testing.T) {
	records := []model.UsageRecord{
		rec(utc(14, 59), "claude-3-5-sonnet", 1, 0, 0),
		rec(utc(20, 30), "claude-3-5-sonnet", 1, 0, 0),
	}
	blocks := BuildBlocks(records, utc(23, 0), model.BlockDuration)

	if len(blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(blocks))
	}
	gap := blocks[1]
	if !gap.IsGap {
		t.Fatal("middle block must be a gap")
	}
	if !gap.StartTime.Equal(utc(14, 59)) || !gap.EndTime.Equal(utc(20, 30)) {
		t.Errorf("gap = [%v, %v], want [14:59, 20:30]", gap.StartTime, gap.EndTime)
	}
	if gap.MessageCount != 0 || !gap.Tokens.IsZero() || gap.CostUSD != 0 {
		t.Error("gap block must carry no usage")
	}
}

func TestBuildBlocks_Accumulation(t *testing.T) {
	now := utc(16, 0)
	records := []model.UsageRecord{
		{
			Timestamp: utc(14, 0), Model: "claude-3-5-sonnet",
			Tokens:  model.TokenVector{Input: 100, Output: 50, CacheRead: 10},
			CostUSD: 0.01, MessageID: "m1",
		},
		{
			Timestamp: utc(14, 5), Model: "claude-3-opus",
			Tokens:  model.TokenVector{Input: 200, Output: 100},
			CostUSD: 0.03, MessageID: "m2",
		},
		{
			Timestamp: utc(14, 10), Model: "claude-3-5-sonnet",
			Tokens:  model.TokenVector{Input: 100, Output: 50},
			CostUSD: 0.01, MessageID: "m1", // same message id
		},
	}

	blocks := BuildBlocks(records, now, model.BlockDuration)
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(blocks))
	}
	b := blocks[0]

	if b.MessageCount != 3 {
		t.Errorf("message count = %d, want 3", b.MessageCount)
	}
	if len(b.MessageIDs) != 2 {
		t.Errorf("unique message ids = %d, want 2", len(b.MessageIDs))
	}
	if got := b.Tokens.Usage(); got != 600 {
		t.Errorf("usage tokens = %d, want 600", got)
	}
	if got := b.CostUSD; !approx(got, 0.05) {
		t.Errorf("cost = %v, want 0.05", got)
	}

	sonnet := b.PerModel["claude-3-5-sonnet"]
	if sonnet == nil || sonnet.Entries != 2 {
		t.Fatalf("sonnet stats = %+v, want 2 entries", sonnet)
	}
	// 300 of 600 usage tokens, 0.02 of 0.05 USD.
	if sonnet.PercentByToken != 50 {
		t.Errorf("sonnet token share = %v, want 50", sonnet.PercentByToken)
	}
	if !approx(sonnet.PercentByCost, 40) {
		t.Errorf("sonnet cost share = %v, want 40", sonnet.PercentByCost)
	}
}

func TestBuildBlocks_ActiveUnique(t *testing.T) {
	now := utc(20, 30)
	blocks := BuildBlocks([]model.UsageRecord{
		rec(utc(8, 0), "claude-3-5-sonnet", 1, 0, 0),
		rec(utc(14, 0), "claude-3-5-sonnet", 1, 0, 0),
		rec(utc(20, 0), "claude-3-5-sonnet", 1, 0, 0),
	}, now, model.BlockDuration)

	active := 0
	for _, b := range blocks {
		if b.IsActive {
			if b.IsGap {
				t.Error("gap block must never be active")
			}
			active++
		}
	}
	if active != 1 {
		t.Errorf("active blocks = %d, want 1", active)
	}
}

func TestBuildBlocks_Empty(t *testing.T) {
	if blocks := BuildBlocks(nil, utc(12, 0), model.BlockDuration); blocks != nil {
		t.Errorf("blocks = %v, want nil", blocks)
	}
}
