// Package pipeline turns raw JSONL logs into session blocks and live
// usage metrics.
package pipeline

import (
	"bufio"
	"context"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/theirongolddev/ccmeter/internal/model"
	"github.com/theirongolddev/ccmeter/internal/source"
)

// RecordCache lets the loader skip re-extracting files that have not
// changed since they were last read. Implemented by internal/store.
type RecordCache interface {
	Lookup(path string, mtimeNs, sizeBytes int64) ([]model.UsageRecord, bool)
	Store(path string, mtimeNs, sizeBytes int64, records []model.UsageRecord) error
}

// LoadOptions configures one load pass.
type LoadOptions struct {
	BasePaths []string
	Start     time.Time // inclusive; zero means unbounded
	End       time.Time // exclusive; zero means unbounded
	Cache     RecordCache
	Logger    zerolog.Logger
}

// LoadResult holds the filtered, deduplicated, time-sorted records plus
// skip counters.
type LoadResult struct {
	Records  []model.UsageRecord
	Counters model.LoadCounters
}

// LoadRecords discovers log files under the base paths, extracts usage
// records, filters them to [Start, End), deduplicates on the identity
// pair, and returns them sorted ascending by timestamp (ties keep
// insertion order). ctx is honored between files and between lines.
func LoadRecords(ctx context.Context, opts LoadOptions) (*LoadResult, error) {
	basePaths := opts.BasePaths
	if len(basePaths) == 0 {
		basePaths = source.DefaultBasePaths()
	}

	result := &LoadResult{}
	seen := make(map[string]struct{})

	for _, path := range source.DiscoverFiles(basePaths) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, ok, err := loadFile(ctx, path, opts, &result.Counters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		for _, rec := range records {
			if !opts.Start.IsZero() && rec.Timestamp.Before(opts.Start) {
				continue
			}
			if !opts.End.IsZero() && !rec.Timestamp.Before(opts.End) {
				continue
			}
			if rec.HasIdentity() {
				key := rec.DedupKey()
				if _, dup := seen[key]; dup {
					result.Counters.DuplicatesSkipped++
					opts.Logger.Debug().Str("key", key).Msg("duplicate identity pair skipped")
					continue
				}
				seen[key] = struct{}{}
			}
			result.Records = append(result.Records, rec)
		}
	}

	sort.SliceStable(result.Records, func(i, j int) bool {
		return result.Records[i].Timestamp.Before(result.Records[j].Timestamp)
	})

	return result, nil
}

// loadFile returns all usage records of one file, via the cache when the
// file is unchanged. ok is false when the file had to be skipped; a
// non-nil error only reports context cancellation.
func loadFile(ctx context.Context, path string, opts LoadOptions, counters *model.LoadCounters) ([]model.UsageRecord, bool, error) {
	var mtimeNs, sizeBytes int64
	if info, err := os.Stat(path); err == nil {
		mtimeNs = info.ModTime().UnixNano()
		sizeBytes = info.Size()
		if opts.Cache != nil {
			if records, hit := opts.Cache.Lookup(path, mtimeNs, sizeBytes); hit {
				return records, true, nil
			}
		}
	}

	f, err := os.Open(path) //nolint:gosec // path comes from scanning the configured log dirs
	if err != nil {
		counters.FilesSkipped++
		opts.Logger.Debug().Str("path", path).Err(err).Msg("log file skipped")
		return nil, false, nil
	}
	defer func() { _ = f.Close() }()

	var records []model.UsageRecord

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 2*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		rec, outcome := source.Extract(scanner.Bytes())
		switch outcome {
		case source.OutcomeRecord:
			records = append(records, rec)
		case source.OutcomeSkipped:
			counters.LinesSkipped++
			opts.Logger.Debug().Str("path", path).Msg("log line skipped")
		case source.OutcomeIgnored:
		}
	}
	if err := scanner.Err(); err != nil {
		// Reading broke mid-file (e.g. a line beyond the buffer cap).
		// Keep what parsed; count the file as degraded.
		counters.FilesSkipped++
		opts.Logger.Debug().Str("path", path).Err(err).Msg("log file truncated by read error")
	}

	if opts.Cache != nil && mtimeNs != 0 {
		_ = opts.Cache.Store(path, mtimeNs, sizeBytes, records)
	}

	return records, true, nil
}
