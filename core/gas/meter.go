// Package gas implements the nested two-dimensional compute-gas meter:
// subtract-then-compare accounting, authoritative on failure, refunding
// only the unused remainder.
package gas

import "github.com/eth2030/eth2030-contracts/core/types"

// Weight is the two-dimensional cost unit: compute time and proof size.
// Proof size is carried through as an opaque second counter the caller is
// free to charge precisely or approximate (core/executor's *OldWeight
// dispatchables set the ProofSize limit to twice MaxCodeLen).
type Weight struct {
	RefTime   uint64
	ProofSize uint64
}

// Add returns the componentwise sum of w and o.
func (w Weight) Add(o Weight) Weight {
	return Weight{RefTime: w.RefTime + o.RefTime, ProofSize: w.ProofSize + o.ProofSize}
}

// Sub returns the componentwise difference w-o, saturating at zero.
func (w Weight) Sub(o Weight) Weight {
	r := Weight{RefTime: w.RefTime, ProofSize: w.ProofSize}
	if o.RefTime > r.RefTime {
		r.RefTime = 0
	} else {
		r.RefTime -= o.RefTime
	}
	if o.ProofSize > r.ProofSize {
		r.ProofSize = 0
	} else {
		r.ProofSize -= o.ProofSize
	}
	return r
}

// AnyZero reports whether either dimension of w is zero.
func (w Weight) AnyZero() bool { return w.RefTime == 0 || w.ProofSize == 0 }

// Min returns the componentwise minimum of w and o.
func (w Weight) Min(o Weight) Weight {
	r := w
	if o.RefTime < r.RefTime {
		r.RefTime = o.RefTime
	}
	if o.ProofSize < r.ProofSize {
		r.ProofSize = o.ProofSize
	}
	return r
}

// GreaterThan reports whether w exceeds o in either dimension, used to
// decide whether a charge would overdraw the remaining budget.
func (w Weight) GreaterThan(o Weight) bool {
	return w.RefTime > o.RefTime || w.ProofSize > o.ProofSize
}

// Meter holds a non-negative remaining Weight budget for one call. A root
// Meter is constructed with the caller-supplied gas_limit; a
// nested Meter is created per pushed frame via Nested and reconciled with
// its parent via Absorb.
type Meter struct {
	limit     Weight
	remaining Weight
	consumed  Weight
	parent    *Meter
}

// NewRoot constructs a root meter with the given limit.
func NewRoot(limit Weight) *Meter {
	return &Meter{limit: limit, remaining: limit}
}

// Remaining returns the unconsumed budget.
func (m *Meter) Remaining() Weight { return m.remaining }

// Consumed returns the total charged so far.
func (m *Meter) Consumed() Weight { return m.consumed }

// Limit returns the budget this meter was created with.
func (m *Meter) Limit() Weight { return m.limit }

// Charge deducts amount from the remaining budget. Gas consumed is
// authoritative even on failure: each dimension is deducted, up to what
// remains in it, before the insufficiency is reported, so Consumed reflects
// what the attempted charge used up and Remaining never goes negative.
func (m *Meter) Charge(amount Weight) error {
	over := amount.GreaterThan(m.remaining)
	spent := amount.Min(m.remaining)
	m.remaining = m.remaining.Sub(spent)
	m.consumed = m.consumed.Add(spent)
	if over {
		return types.ErrOutOfGas
	}
	return nil
}

// Nested returns a child meter bounded by min(limit, remaining).
func (m *Meter) Nested(limit Weight) *Meter {
	bounded := limit.Min(m.remaining)
	return &Meter{limit: bounded, remaining: bounded, parent: m}
}

// Absorb reconciles a finished child meter into its parent: on success the
// parent absorbs exactly child.Consumed(); on trap/failure the full
// reservation is treated as spent.
func (m *Meter) Absorb(child *Meter, ok bool) {
	spent := child.consumed
	if !ok {
		spent = child.limit
	}
	if spent.GreaterThan(m.remaining) {
		spent = m.remaining
	}
	m.remaining = m.remaining.Sub(spent)
	m.consumed = m.consumed.Add(spent)
}

// Refund returns amount of previously-consumed budget to the remaining pool,
// capped so it can never refund more than has been consumed or exceed the
// original limit.
func (m *Meter) Refund(amount Weight) {
	if amount.GreaterThan(m.consumed) {
		amount = m.consumed
	}
	m.consumed = m.consumed.Sub(amount)
	m.remaining = m.remaining.Add(amount)
	if m.remaining.GreaterThan(m.limit) {
		m.remaining = m.limit
	}
}
