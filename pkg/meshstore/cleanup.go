package meshstore

import (
	"context"
	"fmt"
	"time"

	"meshbase/pkg/meshrecord"
)

// CleanupReport summarizes a maintenance sweep over one category.
type CleanupReport struct {
	Category  meshrecord.Category
	Kept      int
	Removed   int
	Malformed int
}

// CleanupByAge removes records older than the given number of days from every
// category. Malformed records encountered during the sweep are counted and
// dropped as well.
func (s *Store) CleanupByAge(ctx context.Context, days int) ([]CleanupReport, error) {
	if days <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", days)
	}
	return s.CleanupBefore(ctx, time.Now().AddDate(0, 0, -days))
}

// CleanupBefore removes records with timestamps before the cutoff from every
// category. Each category's list is replaced atomically with the surviving
// records. Must not run concurrently with active dispatch.
func (s *Store) CleanupBefore(ctx context.Context, cutoff time.Time) ([]CleanupReport, error) {
	reports := make([]CleanupReport, 0, len(meshrecord.AllCategories))
	for _, cat := range meshrecord.AllCategories {
		report, err := s.sweepCategory(ctx, cat, func(entry string) (keep, malformed bool) {
			raw, err := meshrecord.StoredTimestamp([]byte(entry))
			if err != nil {
				return false, true
			}
			ts, err := meshrecord.ParseTimestamp(raw)
			if err != nil {
				return false, true
			}
			return !ts.Before(cutoff), false
		})
		if err != nil {
			return reports, err
		}

		s.log.Info().
			Str("category", string(cat)).
			Int("kept", report.Kept).
			Int("removed", report.Removed).
			Int("malformed", report.Malformed).
			Time("cutoff", cutoff).
			Msg("age cleanup swept category")
		reports = append(reports, report)
	}
	return reports, nil
}

// CleanupCorrupted removes records that fail to parse or are missing their
// category's required top-level fields. Each category's list is replaced
// atomically with the valid records only. Must not run concurrently with
// active dispatch.
func (s *Store) CleanupCorrupted(ctx context.Context) ([]CleanupReport, error) {
	reports := make([]CleanupReport, 0, len(meshrecord.AllCategories))
	for _, cat := range meshrecord.AllCategories {
		report, err := s.sweepCategory(ctx, cat, func(entry string) (keep, malformed bool) {
			// Invalid entries count as removals here, not as a separate
			// malformed tally: removing them is the point of the sweep.
			return meshrecord.ValidateStored(cat, []byte(entry)) == nil, false
		})
		if err != nil {
			return reports, err
		}

		s.log.Info().
			Str("category", string(cat)).
			Int("kept", report.Kept).
			Int("removed", report.Removed).
			Msg("corruption cleanup swept category")
		reports = append(reports, report)
	}
	return reports, nil
}

// sweepCategory loads a category's full list, applies the filter, and replaces
// the list with the survivors in a single transaction. Survivors keep their
// newest-first order: LRange returns newest first and RPush re-appends in that
// order, so index 0 stays the newest record.
func (s *Store) sweepCategory(ctx context.Context, cat meshrecord.Category, filter func(string) (keep, malformed bool)) (CleanupReport, error) {
	report := CleanupReport{Category: cat}
	key := ListKey(s.instance, cat)

	entries, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return report, fmt.Errorf("failed to load %s for cleanup: %w", key, err)
	}

	survivors := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		if entry == "" {
			report.Malformed++
			continue
		}
		keep, malformed := filter(entry)
		switch {
		case keep:
			survivors = append(survivors, entry)
			report.Kept++
		case malformed:
			report.Malformed++
		default:
			report.Removed++
		}
	}

	// Nothing dropped: leave the list untouched.
	if report.Kept == len(entries) {
		return report, nil
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(survivors) > 0 {
		pipe.RPush(ctx, key, survivors...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return report, fmt.Errorf("failed to replace %s after cleanup: %w", key, err)
	}

	return report, nil
}
