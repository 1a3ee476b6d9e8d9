package ledger

import (
	"math"
	"time"
)

type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// Transaction is one immutable ledger entry. Incoming entries come from the
// wallet RPC, outgoing ones from completed withdrawal records.
type Transaction struct {
	Amount    float64   `json:"amount"`
	TxID      string    `json:"txid"`
	Direction Direction `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

// Set is an ordered collection of transactions for one proposal. It is
// recomputed per request or reconciliation cycle, never persisted.
type Set struct {
	Txs []Transaction `json:"txs"`
}

func (s Set) Len() int {
	return len(s.Txs)
}

// Filter returns the subset of transactions flowing in the given direction.
func (s Set) Filter(d Direction) Set {
	var out Set
	for _, tx := range s.Txs {
		if tx.Direction == d {
			out.Txs = append(out.Txs, tx)
		}
	}
	return out
}

// Sum adds up the amounts flowing in the given direction. An empty subset
// sums to zero.
func (s Set) Sum(d Direction) float64 {
	var total float64
	for _, tx := range s.Txs {
		if tx.Direction == d {
			total += tx.Amount
		}
	}
	return total
}

// Merge concatenates two sets. No dedup: incoming ledger reads and outgoing
// withdrawal records are disjoint sources.
func (s Set) Merge(other Set) Set {
	merged := Set{Txs: make([]Transaction, 0, len(s.Txs)+len(other.Txs))}
	merged.Txs = append(merged.Txs, s.Txs...)
	merged.Txs = append(merged.Txs, other.Txs...)
	return merged
}

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// Metrics are the derived funding figures for one proposal, computed from a
// freshly merged transaction set.
type Metrics struct {
	Raised         float64 `json:"raised"`
	Spent          float64 `json:"spent"`
	SpentRemaining float64 `json:"spent_remaining"`
	RaisedPct      float64 `json:"raised_pct"`
	SpentPct       float64 `json:"spent_pct"`
}

// ComputeMetrics derives funding figures from a merged set against the
// proposal's funding target. Pure; ratcheting the proposal's high-water mark
// is the caller's concern.
func ComputeMetrics(s Set, target float64) Metrics {
	m := Metrics{
		Raised: s.Sum(In),
		Spent:  s.Sum(Out),
	}

	if remaining := m.Raised - m.Spent; remaining > 0 {
		m.SpentRemaining = Round(remaining, 10)
	}

	if m.Raised > 0 && target > 0 {
		m.RaisedPct = Round(100*m.Raised/target, 2)
	}

	if m.Raised > 0 && m.Spent > 0 {
		m.SpentPct = Round(100*m.Spent/m.Raised, 2)
	}

	return m
}
