package tracker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	avantLenderID  = "avant"
	avantName      = "Avant Money"
	avantURL       = "https://www.avantmoney.ie/mortgages/our-mortgage-rates"
	avantLegacyURL = "https://www.avantcard.ie/mortgages/rates"

	avantTableXPath = "//table[.//th[contains(., 'LTV')]]"
)

var (
	_ HistoricalLenderProvider = &AvantMoneyProvider{}
	_ StructureValidator       = &AvantMoneyProvider{}
)

// AvantMoneyProvider scrapes Avant Money's fixed-rate table: one row
// per fixed term, one column per LTV band.
type AvantMoneyProvider struct {
	httpClient *http.Client
	logger     *zap.Logger
}

func NewAvantMoneyProvider(logger *zap.Logger) *AvantMoneyProvider {
	return &AvantMoneyProvider{httpClient: http.DefaultClient, logger: logger}
}

func (p *AvantMoneyProvider) LenderID() string { return avantLenderID }
func (p *AvantMoneyProvider) Name() string     { return avantName }

func (p *AvantMoneyProvider) Sources() Sources {
	return Sources{URL: avantURL, LegacyURL: avantLegacyURL}
}

func (p *AvantMoneyProvider) Scrape(ctx context.Context) (model.Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avantURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to read Avant Money website: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, avantURL)
	}

	doc, err := htmlquery.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Avant Money website: %w", err)
	}
	return p.parseDocument(doc)
}

func (p *AvantMoneyProvider) ParseHTML(content []byte, _ map[string][]byte) (model.Catalog, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return p.parseDocument(doc)
}

func (p *AvantMoneyProvider) ValidateStructure(content []byte, _ map[string][]byte) StructureCheck {
	doc, err := htmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return StructureCheck{Valid: false, Reason: fmt.Sprintf("html does not parse: %v", err)}
	}

	tables, err := htmlquery.QueryAll(doc, avantTableXPath)
	if err != nil || len(tables) == 0 {
		return StructureCheck{Valid: false, Reason: "no rates table with LTV header found"}
	}

	rows, err := htmlquery.QueryAll(tables[0], "//tr")
	if err != nil || len(rows) < 2 {
		return StructureCheck{Valid: false, Reason: "rates table has no data rows"}
	}
	return StructureCheck{Valid: true}
}

func (p *AvantMoneyProvider) parseDocument(doc *html.Node) (model.Catalog, error) {
	// the shaky part: any site redesign is most likely going to fail here
	tables, err := htmlquery.QueryAll(doc, avantTableXPath)
	if err != nil {
		return nil, fmt.Errorf("failed to xpath rates table: %w", err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("rates table not found, page structure may have changed")
	}
	p.logger.Debug("found rates table")

	// todo: parse the One Mortgage full-term table once its markup settles

	rates, err := p.parseTable(tables[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse rates table: %w", err)
	}
	p.logger.Debug("parsed rates", zap.Int("count", len(rates)))
	return rates, nil
}

func (p *AvantMoneyProvider) parseTable(table *html.Node) (model.Catalog, error) {
	rowNodes, err := htmlquery.QueryAll(table, "//tr")
	if err != nil {
		return nil, fmt.Errorf("failed to xpath rows: %w", err)
	}

	rows, err := parseRows(rowNodes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("expected header plus data rows, got %d rows", len(rows))
	}
	if !strings.Contains(rows[0].title+strings.Join(rows[0].fields, " "), "LTV") {
		return nil, fmt.Errorf("first row carries no LTV bands, fix parser?")
	}

	bands, err := parseLTVBands(rows[0].fields)
	if err != nil {
		return nil, fmt.Errorf("failed to parse LTV bands from header: %w", err)
	}

	catalog := make(model.Catalog, 0, (len(rows)-1)*len(bands))
	for _, row := range rows[1:] {
		term, err := parseFixedTerm(row.title)
		if err != nil {
			return nil, fmt.Errorf("failed to parse term for row %q: %w", row.title, err)
		}
		if len(row.fields) != len(bands) {
			return nil, fmt.Errorf("row %q has %d cells for %d LTV bands", row.title, len(row.fields), len(bands))
		}
		for i, cell := range row.fields {
			rate, apr, err := parseRateCell(cell)
			if err != nil {
				return nil, fmt.Errorf("failed to parse rates in row %q: %w", row.title, err)
			}
			band := bands[i]
			fixedTerm := term
			catalog = append(catalog, model.Rate{
				ID:          fmt.Sprintf("%s-fixed-%dy-ltv%d", avantLenderID, term, band.maxPct),
				Name:        fmt.Sprintf("%d Year Fixed %s", term, band.label),
				LenderID:    avantLenderID,
				Type:        model.RateTypeFixed,
				Rate:        rate,
				APR:         apr,
				FixedTerm:   &fixedTerm,
				MinLTV:      float64(band.minPct) / 100,
				MaxLTV:      float64(band.maxPct) / 100,
				BuyerTypes:  []model.BuyerType{model.BuyerFirstTimeBuyer, model.BuyerMover, model.BuyerSwitcher},
				NewBusiness: ptrBool(true),
				Perks:       []model.Perk{},
			})
		}
	}
	return catalog, nil
}

type ltvBand struct {
	label  string
	minPct int
	maxPct int
}

var ltvBandPattern = regexp.MustCompile(`(?:<=?|≤)?\s*(?:(\d+)\s*[-–]\s*)?(\d+)\s*%`)

// parseLTVBands reads the header cells, e.g. "<=60% LTV", "60-70% LTV".
// A single bound means "up to", a pair is an explicit band.
func parseLTVBands(fields []string) ([]ltvBand, error) {
	bands := make([]ltvBand, 0, len(fields))
	for _, field := range fields {
		m := ltvBandPattern.FindStringSubmatch(field)
		if m == nil {
			return nil, fmt.Errorf("failed to parse LTV band from %q", field)
		}
		band := ltvBand{label: strings.TrimSpace(field)}
		var err error
		if band.maxPct, err = strconv.Atoi(m[2]); err != nil {
			return nil, fmt.Errorf("failed to parse LTV bound from %q: %w", field, err)
		}
		if m[1] != "" {
			if band.minPct, err = strconv.Atoi(m[1]); err != nil {
				return nil, fmt.Errorf("failed to parse LTV bound from %q: %w", field, err)
			}
		}
		bands = append(bands, band)
	}
	return bands, nil
}

var fixedTermPattern = regexp.MustCompile(`(\d+)\s*[Yy]ear`)

func parseFixedTerm(title string) (int, error) {
	m := fixedTermPattern.FindStringSubmatch(title)
	if m == nil {
		return 0, fmt.Errorf("no term in %q", title)
	}
	return strconv.Atoi(m[1])
}

// parseRateCell reads cells like "3.95%" or "3.95% (4.12% APRC)"; the
// parenthesised value, when present, is the APR.
func parseRateCell(cell string) (float64, *float64, error) {
	sanitized := regexp.MustCompile(`\s+`).ReplaceAllString(cell, " ")
	for _, junk := range []string{"%", "*", "(", ")", "APRC", "APR"} {
		sanitized = strings.ReplaceAll(sanitized, junk, "")
	}
	sanitized = strings.TrimSpace(sanitized)

	parts := strings.Fields(sanitized)
	if len(parts) == 0 {
		return 0, nil, fmt.Errorf("cell %q holds no rate", cell)
	}

	rate, err := strconv.ParseFloat(strings.ReplaceAll(parts[0], ",", "."), 64)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to parse rate from cell %q (sanitized: %q): %w", cell, sanitized, err)
	}
	if len(parts) == 1 {
		return rate, nil, nil
	}

	apr, err := strconv.ParseFloat(strings.ReplaceAll(parts[1], ",", "."), 64)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to parse APR from cell %q (sanitized: %q): %w", cell, sanitized, err)
	}
	return rate, &apr, nil
}

func parseRows(rows []*html.Node) ([]rowStruct, error) {
	rowStructs := make([]rowStruct, 0, len(rows))
	for _, rowNode := range rows {
		cells, err := htmlquery.QueryAll(rowNode, "//th|//td")
		if err != nil {
			return nil, fmt.Errorf("failed to xpath cells: %w", err)
		}
		if len(cells) == 0 {
			continue
		}

		fieldTexts := make([]string, 0, len(cells)-1)
		for _, cell := range cells[1:] {
			fieldTexts = append(fieldTexts, getAllTextFromNode(cell))
		}
		rowStructs = append(rowStructs, rowStruct{
			title:  getAllTextFromNode(cells[0]),
			fields: fieldTexts,
		})
	}
	return rowStructs, nil
}

func getAllTextFromNode(node *html.Node) string {
	out := ""
	if node != nil {
		if node.Type == html.TextNode {
			out += " " + node.Data
		}
		next := node.FirstChild
		for next != nil {
			out += " " + getAllTextFromNode(next)
			next = next.NextSibling
		}
	}

	out = strings.ReplaceAll(out, " ", " ")                    // non-breaking space
	out = regexp.MustCompile(`\s+`).ReplaceAllString(out, " ") // merge multi-spaces
	return strings.Trim(out, " ")
}

type rowStruct struct {
	title  string
	fields []string
}

func ptrBool(v bool) *bool { return &v }
