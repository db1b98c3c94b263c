// Package history implements the per-lender rate history log: canonical
// catalog hashing, changeset diffing, replay, and the builder that
// maintains history documents from live scrapes and archive harvests.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
)

// canonicalRate is the fixed serialization form fed to the hash. Field
// order here IS the canonical key order, every optional field marshals
// to an explicit null when unset, and set-valued fields are sorted, so
// two semantically equal rates always produce identical bytes.
type canonicalRate struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	LenderID    string            `json:"lenderId"`
	Type        model.RateType    `json:"type"`
	Rate        float64           `json:"rate"`
	APR         *float64          `json:"apr"`
	FixedTerm   *int              `json:"fixedTerm"`
	MinLTV      float64           `json:"minLtv"`
	MaxLTV      float64           `json:"maxLtv"`
	MinLoan     *float64          `json:"minLoan"`
	BuyerTypes  []model.BuyerType `json:"buyerTypes"`
	BEREligible []model.BERRating `json:"berEligible"`
	NewBusiness *bool             `json:"newBusiness"`
	Perks       []model.Perk      `json:"perks"`
	Warning     *string           `json:"warning"`
}

// HashCatalog returns the canonical SHA-256 hex digest of a catalog.
// The digest is insensitive to catalog order and to the order of
// set-valued fields, and sensitive to every value change, so equal
// digests mean "same offering" across scrapes, archives and replays.
func HashCatalog(c model.Catalog) string {
	sorted := make(model.Catalog, len(c))
	copy(sorted, c)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var b strings.Builder
	for i, r := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		// canonicalRate contains no types that can fail to marshal
		raw, _ := json.Marshal(canonicalize(r))
		b.Write(raw)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func canonicalize(r model.Rate) canonicalRate {
	return canonicalRate{
		ID:          r.ID,
		Name:        r.Name,
		LenderID:    r.LenderID,
		Type:        r.Type,
		Rate:        r.Rate,
		APR:         r.APR,
		FixedTerm:   r.FixedTerm,
		MinLTV:      r.MinLTV,
		MaxLTV:      r.MaxLTV,
		MinLoan:     r.MinLoan,
		BuyerTypes:  sortedTags(r.BuyerTypes),
		BEREligible: sortedOptionalTags(r.BEREligible),
		NewBusiness: r.NewBusiness,
		Perks:       sortedTags(r.Perks),
		Warning:     r.Warning,
	}
}

// sortedTags returns a sorted copy. A nil required set normalizes to an
// empty one so parsers that leave empty slices nil hash the same as
// parsers that allocate them.
func sortedTags[T ~string](tags []T) []T {
	out := make([]T, len(tags))
	copy(out, tags)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// sortedOptionalTags keeps nil as nil (marshals to null): an absent
// restriction list and an empty one are different offerings.
func sortedOptionalTags[T ~string](tags []T) []T {
	if tags == nil {
		return nil
	}
	return sortedTags(tags)
}
