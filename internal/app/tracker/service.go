package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/history"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Store is the persistence the live scrape loop needs on top of what
// the history builder already does itself.
type Store interface {
	LoadCurrent(ctx context.Context, lenderID string) (*model.CurrentRates, bool, error)
	SaveCurrent(ctx context.Context, current *model.CurrentRates) error
}

// Summary is the outcome of one scrape run across providers. Err
// aggregates every per-lender failure; a partial run is not an error.
type Summary struct {
	Succeeded []string
	Changed   []string
	Failed    []string
	Err       error
}

type scrapeResult struct {
	provider LenderProvider
	rates    model.Catalog
	err      error
}

type Service struct {
	store     Store
	builder   *history.Builder
	providers []LenderProvider
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store Store, builder *history.Builder, providers []LenderProvider, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		builder:   builder,
		providers: providers,
		logger:    logger,
		now:       time.Now,
	}
}

// Provider returns the registered provider for a lender id.
func (s *Service) Provider(lenderID string) (LenderProvider, bool) {
	for _, p := range s.providers {
		if p.LenderID() == lenderID {
			return p, true
		}
	}
	return nil, false
}

// ScrapeAll scrapes every provider concurrently and folds the results
// into the store one at a time: all document writes happen on the
// receiving side, so each lender's files only ever see a single writer.
// Per-lender failures are collected, not fatal.
func (s *Service) ScrapeAll(ctx context.Context) *Summary {
	var wg sync.WaitGroup
	results := make(chan scrapeResult)

	for _, p := range s.providers {
		wg.Add(1)
		go func(p LenderProvider) {
			defer wg.Done()
			rates, err := p.Scrape(ctx)
			results <- scrapeResult{provider: p, rates: rates, err: err}
		}(p)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	summary := &Summary{}
	for res := range results {
		lenderID := res.provider.LenderID()
		if res.err != nil {
			s.recordFailure(summary, lenderID, fmt.Errorf("failed to scrape %s: %w", lenderID, res.err))
			continue
		}
		changed, err := s.record(ctx, lenderID, res.rates)
		if err != nil {
			s.recordFailure(summary, lenderID, err)
			continue
		}
		summary.Succeeded = append(summary.Succeeded, lenderID)
		if changed {
			summary.Changed = append(summary.Changed, lenderID)
		}
	}

	s.logger.Info("scrape run finished",
		zap.Strings("succeeded", summary.Succeeded),
		zap.Strings("changed", summary.Changed),
		zap.Strings("failed", summary.Failed))
	return summary
}

// ScrapeLender scrapes a single lender by id.
func (s *Service) ScrapeLender(ctx context.Context, lenderID string) error {
	p, ok := s.Provider(lenderID)
	if !ok {
		return fmt.Errorf("unknown lender %q", lenderID)
	}
	rates, err := p.Scrape(ctx)
	if err != nil {
		return fmt.Errorf("failed to scrape %s: %w", lenderID, err)
	}
	_, err = s.record(ctx, lenderID, rates)
	return err
}

func (s *Service) recordFailure(summary *Summary, lenderID string, err error) {
	s.logger.Error("lender scrape failed", zap.String("lenderId", lenderID), zap.Error(err))
	summary.Failed = append(summary.Failed, lenderID)
	summary.Err = multierr.Append(summary.Err, err)
}

// record folds one scraped catalog into the lender's documents. An
// unchanged catalog only touches lastScrapedAt; a changed one goes
// through the history builder first, then replaces the current file.
func (s *Service) record(ctx context.Context, lenderID string, rates model.Catalog) (bool, error) {
	hash := history.HashCatalog(rates)
	now := s.now()

	current, ok, err := s.store.LoadCurrent(ctx, lenderID)
	if err != nil {
		return false, fmt.Errorf("failed to load current rates for %s: %w", lenderID, err)
	}
	if ok && current.RatesHash == hash {
		current.LastScrapedAt = now
		if err := s.store.SaveCurrent(ctx, current); err != nil {
			return false, fmt.Errorf("failed to touch current rates for %s: %w", lenderID, err)
		}
		s.logger.Debug("rates unchanged", zap.String("lenderId", lenderID))
		return false, nil
	}

	if _, err := s.builder.AppendLive(ctx, lenderID, rates, hash, now); err != nil {
		return false, err
	}

	if err := s.store.SaveCurrent(ctx, &model.CurrentRates{
		LenderID:      lenderID,
		LastScrapedAt: now,
		LastUpdatedAt: now,
		RatesHash:     hash,
		Rates:         rates,
	}); err != nil {
		return false, fmt.Errorf("failed to save current rates for %s: %w", lenderID, err)
	}

	s.logger.Info("recorded rate change",
		zap.String("lenderId", lenderID),
		zap.Int("rates", len(rates)),
		zap.String("hash", hash))
	return true, nil
}
