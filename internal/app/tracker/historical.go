package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/history"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/wayback"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ArchiveClient is the slice of the archive client the orchestrator
// needs; tests swap in a fake.
type ArchiveClient interface {
	GetSnapshots(ctx context.Context, pageURL string, opts wayback.SnapshotOptions) ([]model.WaybackSnapshot, error)
	FetchSnapshot(ctx context.Context, snap model.WaybackSnapshot) ([]byte, error)
}

// HarvestOptions narrow a historical run.
type HarvestOptions struct {
	From         civil.Date
	To           civil.Date
	Limit        int
	MaxAlignment time.Duration
}

// SnapshotError records a capture that could not be processed. These
// are per-snapshot, non-fatal: the run carries on past them.
type SnapshotError struct {
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
	Reason    string `json:"reason"`
}

// HarvestReport is the outcome of one historical run.
type HarvestReport struct {
	RunID           string          `json:"runId"`
	LenderID        string          `json:"lenderId"`
	SnapshotsFound  int             `json:"snapshotsFound"`
	SnapshotsParsed int             `json:"snapshotsParsed"`
	SnapshotsFailed int             `json:"snapshotsFailed"`
	UniqueResults   int             `json:"uniqueResults"`
	StoppedEarly    bool            `json:"stoppedEarly"`
	StopReason      string          `json:"stopReason,omitempty"`
	Errors          []SnapshotError `json:"errors,omitempty"`

	Results []model.HarvestedResult `json:"-"`
}

// HistoricalOrchestrator mines the web archive for past captures of a
// lender's pages and turns them into harvested catalog states.
type HistoricalOrchestrator struct {
	archive ArchiveClient
	logger  *zap.Logger
}

func NewHistoricalOrchestrator(archive ArchiveClient, logger *zap.Logger) *HistoricalOrchestrator {
	return &HistoricalOrchestrator{archive: archive, logger: logger}
}

// Run walks the lender's merged capture timeline in chronological order
// through fetch, structure validation, parse, hash and dedup. Structure
// drift stops the run: every later capture shares the redesigned layout
// and would misparse too. All other per-snapshot failures are recorded
// and skipped. Snapshots are processed one at a time; only the initial
// index queries fan out.
func (o *HistoricalOrchestrator) Run(ctx context.Context, provider HistoricalLenderProvider, opts HarvestOptions) (*HarvestReport, error) {
	sources := provider.Sources()
	mainLists, auxLists, err := o.fetchIndexes(ctx, sources, opts)
	if err != nil {
		return nil, err
	}
	merged := wayback.MergeSnapshots(mainLists...)

	report := &HarvestReport{
		RunID:          uuid.NewString(),
		LenderID:       provider.LenderID(),
		SnapshotsFound: len(merged),
	}
	o.logger.Info("starting historical run",
		zap.String("runId", report.RunID),
		zap.String("lenderId", report.LenderID),
		zap.Int("snapshots", len(merged)))

	validator, canValidate := provider.(StructureValidator)
	seen := map[string]struct{}{}

	for _, snap := range merged {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		ts, err := snap.Time()
		if err != nil {
			o.recordError(report, snap, fmt.Sprintf("unparsable archive timestamp: %v", err))
			continue
		}

		content, err := o.archive.FetchSnapshot(ctx, snap)
		if err != nil {
			o.recordError(report, snap, err.Error())
			continue
		}

		additional := o.fetchAligned(ctx, ts, auxLists, opts.MaxAlignment)

		if canValidate {
			if check := validator.ValidateStructure(content, additional); !check.Valid {
				report.StoppedEarly = true
				report.StopReason = check.Reason
				o.logger.Warn("page structure drifted, stopping run",
					zap.String("timestamp", snap.Timestamp),
					zap.String("reason", check.Reason))
				break
			}
		}

		rates, err := provider.ParseHTML(content, additional)
		if err != nil {
			o.recordError(report, snap, fmt.Sprintf("parse failed: %v", err))
			continue
		}
		if len(rates) == 0 {
			o.recordError(report, snap, "parsed zero rates")
			continue
		}
		report.SnapshotsParsed++

		hash := history.HashCatalog(rates)
		if _, dup := seen[hash]; dup {
			o.logger.Debug("catalog state already seen, skipping",
				zap.String("timestamp", snap.Timestamp),
				zap.String("hash", hash))
			continue
		}
		seen[hash] = struct{}{}
		report.Results = append(report.Results, model.HarvestedResult{Timestamp: ts, Rates: rates, Hash: hash})
	}

	report.UniqueResults = len(report.Results)
	o.logger.Info("historical run finished",
		zap.String("runId", report.RunID),
		zap.Int("parsed", report.SnapshotsParsed),
		zap.Int("failed", report.SnapshotsFailed),
		zap.Int("unique", report.UniqueResults),
		zap.Bool("stoppedEarly", report.StoppedEarly))
	return report, nil
}

type indexResult struct {
	url   string
	main  bool
	snaps []model.WaybackSnapshot
	err   error
}

// fetchIndexes queries the capture index for every source URL
// concurrently. A failure on the primary URL is fatal; legacy and
// auxiliary indexes are best-effort.
func (o *HistoricalOrchestrator) fetchIndexes(ctx context.Context, sources Sources, opts HarvestOptions) ([][]model.WaybackSnapshot, map[string][]model.WaybackSnapshot, error) {
	snapOpts := wayback.SnapshotOptions{From: opts.From, To: opts.To, Limit: opts.Limit}

	var wg sync.WaitGroup
	results := make(chan indexResult)
	query := func(url string, main bool) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snaps, err := o.archive.GetSnapshots(ctx, url, snapOpts)
			results <- indexResult{url: url, main: main, snaps: snaps, err: err}
		}()
	}
	for _, u := range sources.Aliases() {
		query(u, true)
	}
	for _, u := range sources.AdditionalURLs {
		query(u, false)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var mainLists [][]model.WaybackSnapshot
	aux := map[string][]model.WaybackSnapshot{}
	var fatal error
	for res := range results {
		if res.err != nil {
			if res.main && res.url == sources.URL {
				fatal = multierr.Append(fatal, res.err)
			} else {
				o.logger.Warn("failed to fetch secondary snapshot index",
					zap.String("url", res.url), zap.Error(res.err))
			}
			continue
		}
		if res.main {
			mainLists = append(mainLists, res.snaps)
		} else {
			aux[res.url] = res.snaps
		}
	}
	if fatal != nil {
		return nil, nil, fmt.Errorf("failed to query snapshot index for %s: %w", sources.URL, fatal)
	}
	return mainLists, aux, nil
}

// fetchAligned pulls, for each auxiliary URL, the capture closest in
// time to the main capture. Everything here is best-effort: a missing
// or unfetchable aligned capture just leaves its URL out of the map.
func (o *HistoricalOrchestrator) fetchAligned(ctx context.Context, at time.Time, aux map[string][]model.WaybackSnapshot, maxAlignment time.Duration) map[string][]byte {
	if len(aux) == 0 {
		return nil
	}
	additional := make(map[string][]byte, len(aux))
	for url, candidates := range aux {
		closest, ok := wayback.FindClosestSnapshot(candidates, at, maxAlignment)
		if !ok {
			o.logger.Debug("no aligned capture for auxiliary url",
				zap.String("url", url), zap.Time("target", at))
			continue
		}
		content, err := o.archive.FetchSnapshot(ctx, closest)
		if err != nil {
			o.logger.Warn("failed to fetch aligned auxiliary capture",
				zap.String("url", url), zap.Error(err))
			continue
		}
		additional[url] = content
	}
	return additional
}

func (o *HistoricalOrchestrator) recordError(report *HarvestReport, snap model.WaybackSnapshot, reason string) {
	o.logger.Warn("snapshot processing failed",
		zap.String("timestamp", snap.Timestamp),
		zap.String("url", snap.URL),
		zap.String("reason", reason))
	report.SnapshotsFailed++
	report.Errors = append(report.Errors, SnapshotError{
		Timestamp: snap.Timestamp,
		URL:       snap.URL,
		Reason:    reason,
	})
}
