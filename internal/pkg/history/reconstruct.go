package history

import (
	"encoding/json"
	"sort"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
)

// Reconstruct replays every changeset over the baseline and returns the
// resulting catalog, sorted by product ID. Replay is tolerant of log
// drift: removes of unknown IDs are no-ops and updates of unknown IDs
// are dropped, so a damaged log still reconstructs as far as it can.
func Reconstruct(h *model.RatesHistoryFile) model.Catalog {
	byID := make(map[string]model.Rate, len(h.Baseline.Rates))
	for _, r := range h.Baseline.Rates {
		byID[r.ID] = r
	}

	for _, cs := range h.Changesets {
		for _, op := range cs.Operations {
			switch op.Op {
			case model.OpAdd:
				if op.Rate != nil {
					byID[op.Rate.ID] = *op.Rate
				}
			case model.OpRemove:
				delete(byID, op.ID)
			case model.OpUpdate:
				existing, ok := byID[op.ID]
				if !ok {
					continue
				}
				byID[op.ID] = applyChanges(existing, op.Changes)
			}
		}
	}

	out := make(model.Catalog, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// applyChanges overlays an update's field map onto a rate through a
// JSON round-trip. Going through JSON keeps the merge shallow, honours
// explicit nulls as "clear this optional field", and accepts both
// freshly diffed (typed) and deserialized (untyped) change values.
func applyChanges(r model.Rate, changes map[string]any) model.Rate {
	raw, err := json.Marshal(r)
	if err != nil {
		return r
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return r
	}

	for k, v := range changes {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return r
	}
	var out model.Rate
	if err := json.Unmarshal(merged, &out); err != nil {
		return r
	}
	return out
}
