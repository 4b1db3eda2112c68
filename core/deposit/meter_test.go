package deposit

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/eth2030/eth2030-contracts/core/types"
)

func bal(v uint64) *types.Balance { return uint256.NewInt(v) }

func TestMeterChargeWithinLimitAndAvailable(t *testing.T) {
	m := NewRoot(bal(100), bal(1000))
	if err := m.Charge(bal(40)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	amount, isCharge := m.NetDelta()
	if !isCharge || amount.Uint64() != 40 {
		t.Fatalf("net delta = (%v, %v), want (40, true)", amount, isCharge)
	}
}

func TestMeterChargeExceedsLimit(t *testing.T) {
	m := NewRoot(bal(100), bal(1000))
	if err := m.Charge(bal(40)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Charge(bal(100)); !errors.Is(err, types.ErrStorageDepositLimitExhausted) {
		t.Fatalf("expected ErrStorageDepositLimitExhausted, got %v", err)
	}
	// The rejected charge must not have been applied.
	amount, isCharge := m.NetDelta()
	if !isCharge || amount.Uint64() != 40 {
		t.Fatalf("net delta after rejected charge = (%v, %v), want unchanged (40, true)", amount, isCharge)
	}
}

func TestMeterChargeExceedsAvailableBalance(t *testing.T) {
	m := NewRoot(nil, bal(50))
	if err := m.Charge(bal(100)); !errors.Is(err, types.ErrStorageDepositLimitExhausted) {
		t.Fatalf("expected ErrStorageDepositLimitExhausted, got %v", err)
	}
}

func TestMeterRefundAfterChargeNetsNegative(t *testing.T) {
	m := NewRoot(bal(100), bal(1000))
	if err := m.Charge(bal(40)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Refund(bal(90)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	amount, isCharge := m.NetDelta()
	if isCharge || amount.Uint64() != 50 {
		t.Fatalf("net delta = (%v, %v), want (50, false)", amount, isCharge)
	}
}

func TestMeterRefundNeverLimited(t *testing.T) {
	m := NewRoot(bal(10), bal(10))
	if err := m.Refund(bal(1_000_000)); err != nil {
		t.Fatalf("a pure refund must never be limited: %v", err)
	}
	amount, isCharge := m.NetDelta()
	if isCharge || amount.Uint64() != 1_000_000 {
		t.Fatalf("net delta = (%v, %v), want (1000000, false)", amount, isCharge)
	}
}

func TestMeterNestedBoundedByParentAvailable(t *testing.T) {
	parent := NewRoot(bal(1000), bal(30))
	child := parent.Nested(bal(1000))
	if err := child.Charge(bal(30)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := child.Charge(bal(1)); !errors.Is(err, types.ErrStorageDepositLimitExhausted) {
		t.Fatalf("expected child to be bounded by parent's available balance, got %v", err)
	}
}

func TestMeterAbsorbSuccessFoldsChildDelta(t *testing.T) {
	parent := NewRoot(bal(1000), bal(1000))
	child := parent.Nested(bal(500))
	if err := child.Charge(bal(20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parent.Absorb(child, true)
	amount, isCharge := parent.NetDelta()
	if !isCharge || amount.Uint64() != 20 {
		t.Fatalf("parent net delta = (%v, %v), want (20, true)", amount, isCharge)
	}
}

func TestMeterAbsorbFailureDropsChildDelta(t *testing.T) {
	parent := NewRoot(bal(1000), bal(1000))
	child := parent.Nested(bal(500))
	if err := child.Charge(bal(20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parent.Absorb(child, false)
	amount, isCharge := parent.NetDelta()
	if isCharge || amount.Uint64() != 0 {
		t.Fatalf("parent net delta = (%v, %v), want (0, false) since the child's charges never applied", amount, isCharge)
	}
}
