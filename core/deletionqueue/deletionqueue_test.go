package deletionqueue

import (
	"errors"
	"testing"

	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/storage"
	"github.com/eth2030/eth2030-contracts/core/types"
)

func TestPushRespectsCapacity(t *testing.T) {
	q := New(2)
	if err := q.Push([]byte("a")); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := q.Push([]byte("b")); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	if err := q.Push([]byte("c")); !errors.Is(err, types.ErrDeletionQueueFull) {
		t.Fatalf("err = %v, want DeletionQueueFull", err)
	}
	if !q.AtCapacity() {
		t.Fatal("queue should report at capacity")
	}
}

func TestPopTailUndoesLastPush(t *testing.T) {
	q := New(5)
	q.Push([]byte("a"))
	q.Push([]byte("b"))
	q.PopTail()
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}
	// PopTail on an empty queue is a no-op, not a panic.
	q.PopTail()
	q.PopTail()
	if q.Len() != 0 {
		t.Fatalf("Len = %d, want 0", q.Len())
	}
}

func TestDrainFIFOOrderAndPartialDrainStaysAtHead(t *testing.T) {
	store := storage.New()
	q := New(10)

	store.Set([]byte("first"), []byte("k1"), []byte("v"))
	store.Set([]byte("first"), []byte("k2"), []byte("v"))
	store.Set([]byte("second"), []byte("k1"), []byte("v"))

	q.Push([]byte("first"))
	q.Push([]byte("second"))

	// Budget enough for exactly one item: "first" is only partially drained
	// and must remain at the head of the queue.
	spent := q.Drain(store, gas.Weight{RefTime: 1, ProofSize: 1})
	if spent.RefTime != 1 {
		t.Fatalf("spent = %v, want RefTime=1", spent)
	}
	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (partial drain keeps the entry queued)", q.Len())
	}
	if store.Len([]byte("first")) != 1 {
		t.Fatalf("remaining items in first = %d, want 1", store.Len([]byte("first")))
	}

	// Finish "first" and fully drain "second" too.
	spent = q.Drain(store, gas.Weight{RefTime: 10, ProofSize: 10})
	if q.Len() != 0 {
		t.Fatalf("Len = %d, want 0 after draining both, spent=%v", q.Len(), spent)
	}
}

func TestDrainStopsAtZeroBudget(t *testing.T) {
	store := storage.New()
	q := New(10)
	store.Set([]byte("trie"), []byte("k"), []byte("v"))
	q.Push([]byte("trie"))

	spent := q.Drain(store, gas.Weight{RefTime: 0, ProofSize: 0})
	if !spent.AnyZero() || spent.RefTime != 0 {
		t.Fatalf("spent = %v, want zero weight spent", spent)
	}
	if q.Len() != 1 {
		t.Fatal("nothing should have been drained with a zero budget")
	}
}

func TestForcedDrainBudgetCapsToRemainingBlockWeight(t *testing.T) {
	limit := gas.Weight{RefTime: 500_000, ProofSize: 500_000}
	maxBlock := gas.Weight{RefTime: 1_000_000, ProofSize: 1_000_000}
	current := gas.Weight{RefTime: 900_000, ProofSize: 900_000}

	got := ForcedDrainBudget(limit, maxBlock, current)
	if got.RefTime != 100_000 {
		t.Fatalf("budget = %v, want RefTime=100000 (bounded by remaining block weight)", got)
	}

	current = gas.Weight{RefTime: 100_000, ProofSize: 100_000}
	got = ForcedDrainBudget(limit, maxBlock, current)
	if got.RefTime != 500_000 {
		t.Fatalf("budget = %v, want RefTime=500000 (bounded by the deletion weight limit)", got)
	}
}
