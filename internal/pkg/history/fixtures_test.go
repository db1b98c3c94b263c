package history

import (
	"time"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
)

func ptr[T any](v T) *T { return &v }

var testEpoch = time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedRate(id string, rate float64, term int) model.Rate {
	return model.Rate{
		ID:         id,
		Name:       id,
		LenderID:   "avant",
		Type:       model.RateTypeFixed,
		Rate:       rate,
		APR:        ptr(rate + 0.2),
		FixedTerm:  ptr(term),
		MinLTV:     0,
		MaxLTV:     0.6,
		BuyerTypes: []model.BuyerType{model.BuyerFirstTimeBuyer, model.BuyerMover},
		Perks:      []model.Perk{},
	}
}

func variableRate(id string, rate float64) model.Rate {
	return model.Rate{
		ID:         id,
		Name:       id,
		LenderID:   "avant",
		Type:       model.RateTypeVariable,
		Rate:       rate,
		MinLTV:     0,
		MaxLTV:     0.8,
		BuyerTypes: []model.BuyerType{model.BuyerSwitcher},
		Perks:      []model.Perk{model.PerkCashback},
	}
}

// catalogV returns successive versions of a small test catalog:
// v0 two products, v1 reprices one, v2 adds one, v3 drops one.
func catalogV(version int) model.Catalog {
	a := fixedRate("avant-fixed-3y-60", 3.95, 3)
	b := variableRate("avant-variable-80", 4.25)
	c := fixedRate("avant-fixed-5y-80", 4.10, 5)

	switch version {
	case 0:
		return model.Catalog{a, b}
	case 1:
		a.Rate = 3.80
		a.APR = ptr(4.00)
		return model.Catalog{a, b}
	case 2:
		a.Rate = 3.80
		a.APR = ptr(4.00)
		return model.Catalog{a, b, c}
	case 3:
		a.Rate = 3.80
		a.APR = ptr(4.00)
		return model.Catalog{a, c}
	default:
		panic("unknown catalog version")
	}
}

// buildFile chains catalogs into a history document the same way live
// appends would: first catalog as baseline, one changeset per follow-up
// state, 24h apart.
func buildFile(lenderID string, start time.Time, catalogs ...model.Catalog) *model.RatesHistoryFile {
	h := &model.RatesHistoryFile{
		LenderID: lenderID,
		Baseline: model.Baseline{
			Timestamp: start,
			RatesHash: HashCatalog(catalogs[0]),
			Rates:     catalogs[0],
		},
		Changesets: []model.Changeset{},
	}
	prev := catalogs[0]
	for i, c := range catalogs[1:] {
		h.Changesets = append(h.Changesets, model.Changeset{
			Timestamp:  start.Add(time.Duration(i+1) * 24 * time.Hour),
			AfterHash:  HashCatalog(c),
			Operations: Diff(prev, c),
		})
		prev = c
	}
	return h
}
