package history

import (
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
)

// Diff computes the operations that turn old into new, keyed by product
// ID. Updates and adds come out in new-catalog order, removes follow in
// old-catalog order, so the same pair of catalogs always yields the
// same operation list. Field comparison matches hash equality exactly:
// an empty diff implies equal canonical hashes and vice versa.
func Diff(old, new model.Catalog) []model.Operation {
	oldByID := make(map[string]model.Rate, len(old))
	for _, r := range old {
		oldByID[r.ID] = r
	}
	newIDs := make(map[string]struct{}, len(new))

	var ops []model.Operation
	for _, r := range new {
		newIDs[r.ID] = struct{}{}
		prev, ok := oldByID[r.ID]
		if !ok {
			added := r
			ops = append(ops, model.Operation{Op: model.OpAdd, Rate: &added})
			continue
		}
		if changes := rateChanges(prev, r); len(changes) > 0 {
			changes["id"] = r.ID
			ops = append(ops, model.Operation{Op: model.OpUpdate, ID: r.ID, Changes: changes})
		}
	}

	for _, r := range old {
		if _, ok := newIDs[r.ID]; !ok {
			ops = append(ops, model.Operation{Op: model.OpRemove, ID: r.ID})
		}
	}

	return ops
}

// rateChanges maps changed JSON field names to their new values; the
// caller adds the id key. A cleared optional field shows up as a nil
// value so it marshals to an explicit null rather than vanishing from
// the operation.
func rateChanges(old, new model.Rate) map[string]any {
	changes := map[string]any{}
	if old.Name != new.Name {
		changes["name"] = new.Name
	}
	if old.LenderID != new.LenderID {
		changes["lenderId"] = new.LenderID
	}
	if old.Type != new.Type {
		changes["type"] = new.Type
	}
	if old.Rate != new.Rate {
		changes["rate"] = new.Rate
	}
	if !ptrEqual(old.APR, new.APR) {
		changes["apr"] = new.APR
	}
	if !ptrEqual(old.FixedTerm, new.FixedTerm) {
		changes["fixedTerm"] = new.FixedTerm
	}
	if old.MinLTV != new.MinLTV {
		changes["minLtv"] = new.MinLTV
	}
	if old.MaxLTV != new.MaxLTV {
		changes["maxLtv"] = new.MaxLTV
	}
	if !ptrEqual(old.MinLoan, new.MinLoan) {
		changes["minLoan"] = new.MinLoan
	}
	if !tagsEqual(old.BuyerTypes, new.BuyerTypes) {
		changes["buyerTypes"] = new.BuyerTypes
	}
	if !optionalTagsEqual(old.BEREligible, new.BEREligible) {
		changes["berEligible"] = new.BEREligible
	}
	if !ptrEqual(old.NewBusiness, new.NewBusiness) {
		changes["newBusiness"] = new.NewBusiness
	}
	if !tagsEqual(old.Perks, new.Perks) {
		changes["perks"] = new.Perks
	}
	if !ptrEqual(old.Warning, new.Warning) {
		changes["warning"] = new.Warning
	}
	return changes
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// tagsEqual compares set-valued fields order-insensitively, treating a
// nil required set as empty, mirroring the canonical hash form.
func tagsEqual[T ~string](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := sortedTags(a), sortedTags(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// optionalTagsEqual additionally distinguishes nil (no restriction)
// from an allocated empty list, like the hash does.
func optionalTagsEqual[T ~string](a, b []T) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return tagsEqual(a, b)
}
