package tracker

import (
	"context"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
	"go.uber.org/zap"
)

var (
	_ HistoricalLenderProvider = &DummyProvider{}
	_ StructureValidator       = &DummyProvider{}
)

// DummyProvider serves a small fixed catalog, handy for exercising the
// full pipeline without hitting any real website.
type DummyProvider struct {
	logger *zap.Logger
}

func NewDummyProvider(logger *zap.Logger) *DummyProvider {
	return &DummyProvider{logger: logger}
}

func (d *DummyProvider) LenderID() string { return "dummy" }
func (d *DummyProvider) Name() string     { return "Dummy Lender" }

func (d *DummyProvider) Sources() Sources {
	return Sources{URL: "https://example.com/mortgages/rates"}
}

func (d *DummyProvider) Scrape(_ context.Context) (model.Catalog, error) {
	d.logger.Info("dummy provider serving canned rates")
	return dummyCatalog(), nil
}

func (d *DummyProvider) ParseHTML(_ []byte, _ map[string][]byte) (model.Catalog, error) {
	return dummyCatalog(), nil
}

func (d *DummyProvider) ValidateStructure(_ []byte, _ map[string][]byte) StructureCheck {
	return StructureCheck{Valid: true}
}

func dummyCatalog() model.Catalog {
	term := 3
	apr := 4.05
	return model.Catalog{
		{
			ID:         "dummy-fixed-3y-ltv80",
			Name:       "3 Year Fixed <=80% LTV",
			LenderID:   "dummy",
			Type:       model.RateTypeFixed,
			Rate:       3.85,
			APR:        &apr,
			FixedTerm:  &term,
			MinLTV:     0,
			MaxLTV:     0.8,
			BuyerTypes: []model.BuyerType{model.BuyerFirstTimeBuyer, model.BuyerMover},
			Perks:      []model.Perk{model.PerkCashback},
		},
		{
			ID:         "dummy-variable-ltv90",
			Name:       "Variable <=90% LTV",
			LenderID:   "dummy",
			Type:       model.RateTypeVariable,
			Rate:       4.5,
			MinLTV:     0,
			MaxLTV:     0.9,
			BuyerTypes: []model.BuyerType{model.BuyerFirstTimeBuyer, model.BuyerMover, model.BuyerSwitcher},
			Perks:      []model.Perk{},
		},
	}
}
