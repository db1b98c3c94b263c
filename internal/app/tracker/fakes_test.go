package tracker

import (
	"context"
	"fmt"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/wayback"
)

// fakeStore satisfies both the service's Store and history.Store.
type fakeStore struct {
	histories map[string]*model.RatesHistoryFile
	currents  map[string]*model.CurrentRates
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		histories: map[string]*model.RatesHistoryFile{},
		currents:  map[string]*model.CurrentRates{},
	}
}

func (s *fakeStore) LoadHistory(_ context.Context, lenderID string) (*model.RatesHistoryFile, bool, error) {
	h, ok := s.histories[lenderID]
	return h, ok, nil
}

func (s *fakeStore) SaveHistory(_ context.Context, h *model.RatesHistoryFile) error {
	s.histories[h.LenderID] = h
	return nil
}

func (s *fakeStore) LoadCurrent(_ context.Context, lenderID string) (*model.CurrentRates, bool, error) {
	c, ok := s.currents[lenderID]
	return c, ok, nil
}

func (s *fakeStore) SaveCurrent(_ context.Context, c *model.CurrentRates) error {
	s.currents[c.LenderID] = c
	return nil
}

// fakeProvider is a live-scrape provider with canned output.
type fakeProvider struct {
	id      string
	rates   model.Catalog
	err     error
	sources Sources
}

func (p *fakeProvider) LenderID() string { return p.id }
func (p *fakeProvider) Name() string     { return p.id }
func (p *fakeProvider) Sources() Sources {
	if p.sources.URL != "" {
		return p.sources
	}
	return Sources{URL: "https://" + p.id + ".example.ie/rates"}
}
func (p *fakeProvider) Scrape(_ context.Context) (model.Catalog, error) {
	return p.rates, p.err
}

// fakeHistoricalProvider parses archived HTML through a hook. It
// deliberately has no ValidateStructure method.
type fakeHistoricalProvider struct {
	fakeProvider
	parse func(content []byte, additional map[string][]byte) (model.Catalog, error)
}

func (p *fakeHistoricalProvider) ParseHTML(content []byte, additional map[string][]byte) (model.Catalog, error) {
	return p.parse(content, additional)
}

// fakeValidatingProvider additionally probes page structure.
type fakeValidatingProvider struct {
	fakeHistoricalProvider
	validate func(content []byte, additional map[string][]byte) StructureCheck
}

func (p *fakeValidatingProvider) ValidateStructure(content []byte, additional map[string][]byte) StructureCheck {
	return p.validate(content, additional)
}

// fakeArchive serves canned index and content responses keyed by URL
// and digest, and records every content fetch.
type fakeArchive struct {
	indexes    map[string][]model.WaybackSnapshot
	indexErrs  map[string]error
	content    map[string][]byte
	contentErr map[string]error
	fetched    []string
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		indexes:    map[string][]model.WaybackSnapshot{},
		indexErrs:  map[string]error{},
		content:    map[string][]byte{},
		contentErr: map[string]error{},
	}
}

func (a *fakeArchive) GetSnapshots(_ context.Context, pageURL string, _ wayback.SnapshotOptions) ([]model.WaybackSnapshot, error) {
	if err := a.indexErrs[pageURL]; err != nil {
		return nil, err
	}
	return a.indexes[pageURL], nil
}

func (a *fakeArchive) FetchSnapshot(_ context.Context, snap model.WaybackSnapshot) ([]byte, error) {
	a.fetched = append(a.fetched, snap.Digest)
	if err := a.contentErr[snap.Digest]; err != nil {
		return nil, err
	}
	content, ok := a.content[snap.Digest]
	if !ok {
		return nil, fmt.Errorf("no content for digest %s", snap.Digest)
	}
	return content, nil
}
