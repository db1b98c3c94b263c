package model

const (
	RateTypeFixed    RateType = "fixed"
	RateTypeVariable RateType = "variable"

	BuyerFirstTimeBuyer BuyerType = "firstTimeBuyer"
	BuyerMover          BuyerType = "mover"
	BuyerSwitcher       BuyerType = "switcher"
	BuyerBuyToLet       BuyerType = "buyToLet"

	PerkCashback      Perk = "cashback"
	PerkFreeValuation Perk = "freeValuation"
	PerkFlexOverpay   Perk = "flexOverpay"
)

type RateType string
type BuyerType string
type BERRating string
type Perk string

// Rate is one mortgage product as advertised by a lender at some point in
// time. ID is the lender-stable product key, so the same product keeps the
// same ID across scrapes even when its pricing moves.
type Rate struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	LenderID    string      `json:"lenderId"`
	Type        RateType    `json:"type"`
	Rate        float64     `json:"rate"`
	APR         *float64    `json:"apr,omitempty"`
	FixedTerm   *int        `json:"fixedTerm,omitempty"` // years, nil for variable products
	MinLTV      float64     `json:"minLtv"`
	MaxLTV      float64     `json:"maxLtv"`
	MinLoan     *float64    `json:"minLoan,omitempty"`
	BuyerTypes  []BuyerType `json:"buyerTypes"`
	BEREligible []BERRating `json:"berEligible,omitempty"` // nil means no BER restriction
	NewBusiness *bool       `json:"newBusiness,omitempty"`
	Perks       []Perk      `json:"perks"`
	Warning     *string     `json:"warning,omitempty"`
}

// Catalog is the full set of products a lender advertises at one instant.
type Catalog []Rate
