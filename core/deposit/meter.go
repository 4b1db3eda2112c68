// Package deposit implements the nested Storage Deposit Meter: a signed
// balance delta reserved against the call's origin, charged as contract
// storage grows and refunded as it shrinks. Structurally a sibling of
// core/gas's Meter (same nest/absorb shape) but tracking a signed delta
// against a balance limit rather than an unsigned weight budget.
package deposit

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/eth2030/eth2030-contracts/core/types"
)

// Meter tracks a signed storage-deposit delta for one call frame.
// A positive delta means storage grew and balance must be reserved from the
// origin; negative means storage shrank and balance is refunded.
type Meter struct {
	limit     *big.Int // storage_deposit_limit supplied by the caller; nil = unbounded
	available *big.Int // origin's spendable balance ceiling for this nesting
	delta     *big.Int // signed delta accumulated so far
	parent    *Meter
}

func balanceToBig(b *types.Balance) *big.Int {
	if b == nil {
		return nil
	}
	return b.ToBig()
}

// NewRoot constructs a root meter bounded by the caller-supplied
// storage_deposit_limit (may be nil for unbounded) and the origin's current
// available balance.
func NewRoot(limit *types.Balance, available *types.Balance) *Meter {
	return &Meter{limit: balanceToBig(limit), available: balanceToBig(available), delta: new(big.Int)}
}

// Nested produces a child meter bounded by both the child's own limit and
// this meter's remaining headroom: the smaller of its limit and its
// available balance, less its own net delta.
func (m *Meter) Nested(limit *types.Balance) *Meter {
	var avail *big.Int
	for _, bound := range []*big.Int{m.available, m.limit} {
		if bound != nil && (avail == nil || bound.Cmp(avail) < 0) {
			avail = new(big.Int).Set(bound)
		}
	}
	if avail != nil {
		avail.Sub(avail, m.delta)
		if avail.Sign() < 0 {
			avail.SetInt64(0)
		}
	}
	l := balanceToBig(limit)
	if l != nil && (avail == nil || l.Cmp(avail) < 0) {
		avail = new(big.Int).Set(l)
	}
	return &Meter{limit: l, available: avail, delta: new(big.Int), parent: m}
}

// Charge records storage growth worth amount of deposit. Fails with
// StorageDepositLimitExhausted if the resulting net delta would exceed the
// meter's limit or the origin's available balance.
func (m *Meter) Charge(amount *types.Balance) error {
	return m.applyDelta(balanceToBig(amount))
}

// Refund records storage shrink worth amount of deposit.
func (m *Meter) Refund(amount *types.Balance) error {
	neg := new(big.Int).Neg(balanceToBig(amount))
	return m.applyDelta(neg)
}

func (m *Meter) applyDelta(signed *big.Int) error {
	if signed.Sign() == 0 {
		return nil
	}
	projected := new(big.Int).Add(m.delta, signed)
	if projected.Sign() > 0 {
		if m.limit != nil && projected.Cmp(m.limit) > 0 {
			return types.ErrStorageDepositLimitExhausted
		}
		if m.available != nil && projected.Cmp(m.available) > 0 {
			return types.ErrStorageDepositLimitExhausted
		}
	}
	m.delta = projected
	return nil
}

// Apply charges byteDelta*depositPerByte + itemDelta*depositPerItem as one
// combined signed delta, so a storage write's byte and item accounting can
// never be left half-applied if the combined amount would breach the limit.
func (m *Meter) Apply(byteDelta, itemDelta int64, depositPerByte, depositPerItem uint64) error {
	signed := new(big.Int).Mul(big.NewInt(byteDelta), new(big.Int).SetUint64(depositPerByte))
	signed.Add(signed, new(big.Int).Mul(big.NewInt(itemDelta), new(big.Int).SetUint64(depositPerItem)))
	return m.applyDelta(signed)
}

// NetDelta returns the meter's current signed delta as (amount, isCharge):
// isCharge true means a net reservation of `amount` is owed against the
// origin; false means a net refund of `amount` is due (a zero delta reports
// (0, false)).
func (m *Meter) NetDelta() (amount *types.Balance, isCharge bool) {
	if m.delta.Sign() <= 0 {
		neg := new(big.Int).Neg(m.delta)
		out, _ := uint256.FromBig(neg)
		return out, false
	}
	out, _ := uint256.FromBig(m.delta)
	return out, true
}

// Absorb folds a finished child meter's delta into the parent on success; on
// failure the child's charges are rolled back (simply dropped, since nothing
// was ever applied to the parent).
func (m *Meter) Absorb(child *Meter, ok bool) {
	if !ok {
		return
	}
	m.delta.Add(m.delta, child.delta)
}
