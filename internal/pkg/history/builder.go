package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
	"go.uber.org/zap"
)

const (
	MergeNone      MergeOutcome = "none"
	MergeCurrent   MergeOutcome = "alreadyCurrent"
	MergeBaseline  MergeOutcome = "atBaseline"
	MergeChangeset MergeOutcome = "atChangeset"
	MergeBridged   MergeOutcome = "bridged"
)

// MergeOutcome names how a harvested history was joined to an existing one.
type MergeOutcome string

// Store is the persistence the builder needs. Loads report absence via
// the ok flag; a missing document is an expected state, not an error.
type Store interface {
	LoadHistory(ctx context.Context, lenderID string) (*model.RatesHistoryFile, bool, error)
	SaveHistory(ctx context.Context, history *model.RatesHistoryFile) error
	LoadCurrent(ctx context.Context, lenderID string) (*model.CurrentRates, bool, error)
}

// Builder maintains per-lender history documents. It assumes callers
// serialize access per lender; it never coordinates concurrent writers.
type Builder struct {
	store  Store
	logger *zap.Logger
}

func NewBuilder(store Store, logger *zap.Logger) *Builder {
	return &Builder{store: store, logger: logger}
}

// AppendLive folds one live scrape into the lender's history. With no
// history yet it writes a baseline document. Otherwise it diffs the
// reconstructed current state against the scraped catalog and appends a
// changeset. Returns false when nothing was written: either the catalog
// is unchanged, or the caller's hash-changed precondition turned out to
// be wrong (logged, document left untouched).
func (b *Builder) AppendLive(ctx context.Context, lenderID string, rates model.Catalog, hash string, scrapedAt time.Time) (bool, error) {
	existing, ok, err := b.store.LoadHistory(ctx, lenderID)
	if err != nil {
		return false, fmt.Errorf("failed to load history for %s: %w", lenderID, err)
	}

	if !ok {
		h := &model.RatesHistoryFile{
			LenderID: lenderID,
			Baseline: model.Baseline{
				Timestamp: scrapedAt,
				RatesHash: hash,
				Rates:     rates,
			},
			Changesets: []model.Changeset{},
		}
		if err := b.store.SaveHistory(ctx, h); err != nil {
			return false, fmt.Errorf("failed to save baseline for %s: %w", lenderID, err)
		}
		b.logger.Info("created history baseline",
			zap.String("lenderId", lenderID),
			zap.Int("rates", len(rates)))
		return true, nil
	}

	ops := Diff(Reconstruct(existing), rates)
	if len(ops) == 0 {
		if existing.TailHash() != hash {
			b.logger.Warn("hash changed but diff is empty, skipping changeset",
				zap.String("lenderId", lenderID),
				zap.String("tailHash", existing.TailHash()),
				zap.String("newHash", hash))
		}
		return false, nil
	}

	existing.Changesets = append(existing.Changesets, model.Changeset{
		Timestamp:  scrapedAt,
		AfterHash:  hash,
		Operations: ops,
	})
	if err := b.store.SaveHistory(ctx, existing); err != nil {
		return false, fmt.Errorf("failed to save history for %s: %w", lenderID, err)
	}
	b.logger.Info("appended changeset",
		zap.String("lenderId", lenderID),
		zap.Int("operations", len(ops)),
		zap.Int("changesets", len(existing.Changesets)))
	return true, nil
}

// BuildOptions control the post-processing of a harvested history.
type BuildOptions struct {
	// MergeWithExisting splices the lender's existing (newer) history
	// onto the harvested (older) one before returning it.
	MergeWithExisting bool
	// ValidateAgainstCurrent compares the final tail hash with the live
	// current-rates document and records the outcome in the report.
	ValidateAgainstCurrent bool
}

// BuildReport summarizes one BuildFromHarvest run.
type BuildReport struct {
	LenderID          string       `json:"lenderId"`
	BaselineTimestamp time.Time    `json:"baselineTimestamp"`
	BaselineRates     int          `json:"baselineRates"`
	Changesets        int          `json:"changesets"`
	TailHash          string       `json:"tailHash"`
	SkippedDuplicates int          `json:"skippedDuplicates"`
	Merge             MergeOutcome `json:"merge"`
	MergedChangesets  int          `json:"mergedChangesets"`
	MatchesCurrent    *bool        `json:"matchesCurrent,omitempty"`
}

// BuildFromHarvest turns harvested archive results into a history
// document: oldest result becomes the baseline and every subsequent
// state change becomes a changeset. Results are sorted by timestamp
// first, consecutive same-hash results collapse into nothing. The
// returned document is not persisted; that is the caller's call.
func (b *Builder) BuildFromHarvest(ctx context.Context, lenderID string, results []model.HarvestedResult, opts BuildOptions) (*model.RatesHistoryFile, *BuildReport, error) {
	if len(results) == 0 {
		return nil, nil, fmt.Errorf("no harvested results for %s", lenderID)
	}

	sorted := make([]model.HarvestedResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	h := &model.RatesHistoryFile{
		LenderID: lenderID,
		Baseline: model.Baseline{
			Timestamp: sorted[0].Timestamp,
			RatesHash: sorted[0].Hash,
			Rates:     sorted[0].Rates,
		},
		Changesets: []model.Changeset{},
	}
	report := &BuildReport{
		LenderID:          lenderID,
		BaselineTimestamp: sorted[0].Timestamp,
		BaselineRates:     len(sorted[0].Rates),
		Merge:             MergeNone,
	}

	prev := sorted[0]
	for _, res := range sorted[1:] {
		if res.Hash == prev.Hash {
			report.SkippedDuplicates++
			continue
		}
		ops := Diff(prev.Rates, res.Rates)
		if len(ops) == 0 {
			b.logger.Warn("hash changed but diff is empty, skipping harvested state",
				zap.String("lenderId", lenderID),
				zap.Time("timestamp", res.Timestamp))
			continue
		}
		h.Changesets = append(h.Changesets, model.Changeset{
			Timestamp:  res.Timestamp,
			AfterHash:  res.Hash,
			Operations: ops,
		})
		prev = res
	}

	if opts.MergeWithExisting {
		existing, ok, err := b.store.LoadHistory(ctx, lenderID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load existing history for %s: %w", lenderID, err)
		}
		if ok {
			outcome, spliced, err := b.merge(h, existing)
			if err != nil {
				return nil, nil, err
			}
			report.Merge = outcome
			report.MergedChangesets = spliced
		}
	}

	report.Changesets = len(h.Changesets)
	report.TailHash = h.TailHash()

	if opts.ValidateAgainstCurrent {
		current, ok, err := b.store.LoadCurrent(ctx, lenderID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load current rates for %s: %w", lenderID, err)
		}
		if ok {
			matches := current.RatesHash == h.TailHash()
			report.MatchesCurrent = &matches
			if !matches {
				b.logger.Warn("built history tail does not match live rates",
					zap.String("lenderId", lenderID),
					zap.String("tailHash", h.TailHash()),
					zap.String("currentHash", current.RatesHash))
			}
		}
	}

	return h, report, nil
}

// merge splices the existing (live, newer) history onto the harvested
// (older) one. It looks for a connection point: a state in the existing
// log whose hash equals the harvested tail. Without one it bridges the
// gap with a synthetic changeset diffing harvested tail against the
// existing baseline. Bridging is only valid forwards in time; an
// existing baseline older than the harvested tail is an error because
// the archive harvest should have covered that period.
func (b *Builder) merge(built, existing *model.RatesHistoryFile) (MergeOutcome, int, error) {
	tail := built.TailHash()

	if existing.TailHash() == tail {
		return MergeCurrent, 0, nil
	}

	if existing.Baseline.RatesHash == tail {
		built.Changesets = append(built.Changesets, existing.Changesets...)
		return MergeBaseline, len(existing.Changesets), nil
	}

	for i, cs := range existing.Changesets {
		if cs.AfterHash == tail {
			rest := existing.Changesets[i+1:]
			built.Changesets = append(built.Changesets, rest...)
			return MergeChangeset, len(rest), nil
		}
	}

	if existing.Baseline.Timestamp.Before(built.TailTime()) {
		return MergeNone, 0, fmt.Errorf(
			"cannot bridge histories for %s: existing baseline (%s) predates harvested tail (%s)",
			built.LenderID,
			existing.Baseline.Timestamp.Format(time.RFC3339),
			built.TailTime().Format(time.RFC3339))
	}

	spliced := len(existing.Changesets)
	if ops := Diff(Reconstruct(built), existing.Baseline.Rates); len(ops) > 0 {
		built.Changesets = append(built.Changesets, model.Changeset{
			Timestamp:  existing.Baseline.Timestamp,
			AfterHash:  existing.Baseline.RatesHash,
			Operations: ops,
		})
		spliced++
	} else {
		// content-equal states with different hashes, should not happen
		b.logger.Warn("bridge diff is empty despite hash mismatch",
			zap.String("lenderId", built.LenderID),
			zap.String("tailHash", tail),
			zap.String("existingBaselineHash", existing.Baseline.RatesHash))
	}
	built.Changesets = append(built.Changesets, existing.Changesets...)
	return MergeBridged, spliced, nil
}

// ValidationReport is the outcome of replaying a stored history.
type ValidationReport struct {
	LenderID          string `json:"lenderId"`
	Changesets        int    `json:"changesets"`
	ReconstructedHash string `json:"reconstructedHash"`
	TailHash          string `json:"tailHash"`
	ReplayConsistent  bool   `json:"replayConsistent"`
	MatchesCurrent    *bool  `json:"matchesCurrent,omitempty"`
}

// OK reports whether every performed check passed.
func (r *ValidationReport) OK() bool {
	if !r.ReplayConsistent {
		return false
	}
	return r.MatchesCurrent == nil || *r.MatchesCurrent
}

// Validate replays the lender's stored history and checks that the
// reconstructed catalog hashes to the log's tail hash, and, when a live
// current-rates document exists, that the two agree.
func (b *Builder) Validate(ctx context.Context, lenderID string) (*ValidationReport, error) {
	h, ok, err := b.store.LoadHistory(ctx, lenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", lenderID, err)
	}
	if !ok {
		return nil, fmt.Errorf("no history stored for %s", lenderID)
	}

	reconstructedHash := HashCatalog(Reconstruct(h))
	report := &ValidationReport{
		LenderID:          lenderID,
		Changesets:        len(h.Changesets),
		ReconstructedHash: reconstructedHash,
		TailHash:          h.TailHash(),
		ReplayConsistent:  reconstructedHash == h.TailHash(),
	}

	current, ok, err := b.store.LoadCurrent(ctx, lenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current rates for %s: %w", lenderID, err)
	}
	if ok {
		matches := reconstructedHash == current.RatesHash
		report.MatchesCurrent = &matches
	}

	return report, nil
}
