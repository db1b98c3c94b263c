package wayback

import (
	"sort"
	"time"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
)

// DefaultMaxAlignment bounds how far apart a secondary page's capture
// may be from the main capture it gets paired with.
const DefaultMaxAlignment = 30 * 24 * time.Hour

// MergeSnapshots combines capture lists of alternate URLs for the same
// page into one chronological timeline. Duplicate digests are dropped,
// first occurrence wins, so eras where both addresses were archived do
// not produce double entries.
func MergeSnapshots(lists ...[]model.WaybackSnapshot) []model.WaybackSnapshot {
	seen := map[string]struct{}{}
	var merged []model.WaybackSnapshot
	for _, list := range lists {
		for _, snap := range list {
			if _, dup := seen[snap.Digest]; dup {
				continue
			}
			seen[snap.Digest] = struct{}{}
			merged = append(merged, snap)
		}
	}
	// 14-digit timestamps sort correctly as strings
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })
	return merged
}

// FindClosestSnapshot picks the candidate captured nearest to target,
// in either direction. Returns false when no candidate falls within
// maxDiff (<= 0 selects DefaultMaxAlignment).
func FindClosestSnapshot(candidates []model.WaybackSnapshot, target time.Time, maxDiff time.Duration) (model.WaybackSnapshot, bool) {
	if maxDiff <= 0 {
		maxDiff = DefaultMaxAlignment
	}

	var best model.WaybackSnapshot
	bestDiff := maxDiff + 1
	for _, snap := range candidates {
		ts, err := snap.Time()
		if err != nil {
			continue
		}
		diff := target.Sub(ts)
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best = snap
			bestDiff = diff
		}
	}

	if bestDiff > maxDiff {
		return model.WaybackSnapshot{}, false
	}
	return best, true
}
