package gas

import (
	"errors"
	"testing"

	"github.com/eth2030/eth2030-contracts/core/types"
)

func TestMeterChargeDeductsAndFails(t *testing.T) {
	m := NewRoot(Weight{RefTime: 100, ProofSize: 100})
	if err := m.Charge(Weight{RefTime: 40, ProofSize: 10}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Remaining(); got != (Weight{RefTime: 60, ProofSize: 90}) {
		t.Fatalf("remaining = %+v", got)
	}
	if err := m.Charge(Weight{RefTime: 1000}); !errors.Is(err, types.ErrOutOfGas) {
		t.Fatalf("expected ErrOutOfGas, got %v", err)
	}
	// Gas consumed is authoritative even on failure: the whole remaining
	// budget was spent by the failed charge.
	if got := m.Remaining(); got != (Weight{RefTime: 0, ProofSize: 90}) {
		t.Fatalf("remaining after failed charge = %+v", got)
	}
}

func TestMeterNestedAbsorbSuccess(t *testing.T) {
	parent := NewRoot(Weight{RefTime: 1000, ProofSize: 1000})
	child := parent.Nested(Weight{RefTime: 200, ProofSize: 200})
	if err := child.Charge(Weight{RefTime: 50, ProofSize: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parent.Absorb(child, true)
	if got := parent.Consumed(); got != (Weight{RefTime: 50, ProofSize: 5}) {
		t.Fatalf("parent consumed = %+v, want only the child's actual usage", got)
	}
}

func TestMeterNestedAbsorbTrapChargesFullReservation(t *testing.T) {
	parent := NewRoot(Weight{RefTime: 1000, ProofSize: 1000})
	child := parent.Nested(Weight{RefTime: 200, ProofSize: 200})
	_ = child.Charge(Weight{RefTime: 10, ProofSize: 10})
	parent.Absorb(child, false)
	if got := parent.Consumed(); got != (Weight{RefTime: 200, ProofSize: 200}) {
		t.Fatalf("parent consumed = %+v, want the full child reservation on trap", got)
	}
}

func TestMeterNestedBoundedByParentRemaining(t *testing.T) {
	parent := NewRoot(Weight{RefTime: 50, ProofSize: 50})
	child := parent.Nested(Weight{RefTime: 1000, ProofSize: 1000})
	if got := child.Limit(); got != (Weight{RefTime: 50, ProofSize: 50}) {
		t.Fatalf("child limit = %+v, want bounded by parent remaining", got)
	}
}

func TestMeterRefundCappedAtConsumed(t *testing.T) {
	m := NewRoot(Weight{RefTime: 100, ProofSize: 100})
	_ = m.Charge(Weight{RefTime: 30, ProofSize: 30})
	m.Refund(Weight{RefTime: 1000, ProofSize: 1000})
	if got := m.Remaining(); got != (Weight{RefTime: 100, ProofSize: 100}) {
		t.Fatalf("remaining = %+v, refund must not exceed original limit", got)
	}
}
