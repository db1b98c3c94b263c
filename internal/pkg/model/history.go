package model

import "time"

const (
	OpAdd    OpType = "add"
	OpRemove OpType = "remove"
	OpUpdate OpType = "update"
)

type OpType string

// Operation is one entry in a changeset. Exactly one shape per op:
// add carries the full new rate, remove carries only the product ID,
// update carries the ID plus a field->newValue map where a JSON null
// value clears an optional field.
type Operation struct {
	Op      OpType         `json:"op"`
	Rate    *Rate          `json:"rate,omitempty"`
	ID      string         `json:"id,omitempty"`
	Changes map[string]any `json:"changes,omitempty"`
}

// Changeset records the delta between two observed catalog states.
// AfterHash is the canonical hash of the catalog after applying
// Operations, so replay can be verified without trusting the log.
type Changeset struct {
	Timestamp  time.Time   `json:"timestamp"`
	AfterHash  string      `json:"afterHash"`
	Operations []Operation `json:"operations"`
}

// Baseline is the oldest full catalog snapshot the history starts from.
type Baseline struct {
	Timestamp time.Time `json:"timestamp"`
	RatesHash string    `json:"ratesHash"`
	Rates     Catalog   `json:"rates"`
}

// RatesHistoryFile is the append-only per-lender history document:
// one baseline plus chronologically ordered changesets.
type RatesHistoryFile struct {
	LenderID   string      `json:"lenderId"`
	Baseline   Baseline    `json:"baseline"`
	Changesets []Changeset `json:"changesets"`
}

// TailHash is the hash of the newest recorded state: the last
// changeset's AfterHash, or the baseline hash when no changesets exist.
func (h *RatesHistoryFile) TailHash() string {
	if n := len(h.Changesets); n > 0 {
		return h.Changesets[n-1].AfterHash
	}
	return h.Baseline.RatesHash
}

// TailTime is the timestamp of the newest recorded state.
func (h *RatesHistoryFile) TailTime() time.Time {
	if n := len(h.Changesets); n > 0 {
		return h.Changesets[n-1].Timestamp
	}
	return h.Baseline.Timestamp
}

// CurrentRates is the live per-lender document holding the most recent
// scrape. LastScrapedAt moves on every successful scrape, LastUpdatedAt
// only when the catalog content actually changed.
type CurrentRates struct {
	LenderID      string    `json:"lenderId"`
	LastScrapedAt time.Time `json:"lastScrapedAt"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	RatesHash     string    `json:"ratesHash"`
	Rates         Catalog   `json:"rates"`
}
