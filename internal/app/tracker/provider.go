// Package tracker drives the lender providers: live scraping into the
// history log and historical harvesting from the web archive.
package tracker

import (
	"context"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
)

// Sources describes where a lender's rates live on the web. URL is the
// current address, LegacyURL an older address of the same page (their
// archive timelines get merged), AdditionalURLs are secondary pages
// whose content some parsers need alongside the main page.
type Sources struct {
	URL            string
	LegacyURL      string
	AdditionalURLs []string
}

// Aliases returns every address the main page was ever served under.
func (s Sources) Aliases() []string {
	aliases := []string{s.URL}
	if s.LegacyURL != "" {
		aliases = append(aliases, s.LegacyURL)
	}
	return aliases
}

// LenderProvider scrapes one lender's live rates.
type LenderProvider interface {
	LenderID() string
	Name() string
	Sources() Sources
	Scrape(ctx context.Context) (model.Catalog, error)
}

// HistoricalLenderProvider can additionally parse rates out of raw
// archived HTML, which makes the lender eligible for archive harvesting.
// additional maps a secondary source URL to its archived content and
// may be missing entries for pages the archive never captured nearby.
type HistoricalLenderProvider interface {
	LenderProvider
	ParseHTML(html []byte, additional map[string][]byte) (model.Catalog, error)
}

// StructureCheck is the verdict of a page layout probe.
type StructureCheck struct {
	Valid  bool
	Reason string
}

// StructureValidator is an optional capability of historical providers:
// it recognizes whether archived HTML still has the page layout the
// parser understands. Once one capture fails the check, every later
// capture shares the redesigned layout, so the harvest run stops there.
type StructureValidator interface {
	ValidateStructure(html []byte, additional map[string][]byte) StructureCheck
}
