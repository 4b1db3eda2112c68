// Package deletionqueue implements the lazy, bounded deletion FIFO:
// terminated contracts' tries are enqueued here rather than purged inline,
// and drained in FIFO order across subsequent blocks under a residual
// weight budget. A bounded slice under a single mutex is enough, since
// block execution is serial.
package deletionqueue

import (
	"sync"

	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/storage"
	"github.com/eth2030/eth2030-contracts/core/types"
)

// Entry is one queued, terminated contract's trie awaiting lazy purge.
type Entry struct {
	TrieID []byte
}

// Queue is the bounded deletion FIFO.
type Queue struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
}

// New constructs a Queue bounded by DeletionQueueDepth.
func New(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

// Len returns the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Push enqueues trieID for lazy deletion. Fails with DeletionQueueFull if the
// queue is at capacity.
func (q *Queue) Push(trieID []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.capacity {
		return types.ErrDeletionQueueFull
	}
	q.entries = append(q.entries, Entry{TrieID: trieID})
	return nil
}

// PopTail removes and discards the most recently pushed entry, used to undo
// a Push when the frame that terminated the contract itself rolls back.
func (q *Queue) PopTail() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return
	}
	q.entries = q.entries[:len(q.entries)-1]
}

// itemWeight is the per-storage-item cost charged while draining, matching
// the DeletionWeightLimit unit; one item equals one unit of RefTime.
var itemWeight = gas.Weight{RefTime: 1, ProofSize: 1}

// Drain purges queued tries in FIFO order, removing at most budget.RefTime
// items; budget.ProofSize does not limit it. Partially drained entries remain
// at the head. Returns the weight actually spent, one unit per removed item
// in each dimension.
func (q *Queue) Drain(store *storage.Store, budget gas.Weight) gas.Weight {
	q.mu.Lock()
	defer q.mu.Unlock()

	spent := gas.Weight{}
	for len(q.entries) > 0 {
		// Batch size is driven by the RefTime dimension alone: a caller may
		// budget zero ProofSize (the default DeletionWeightLimit does) and
		// trie deletion must still make progress.
		remaining := budget.Sub(spent)
		maxItems := int(remaining.RefTime / itemWeight.RefTime)
		if maxItems == 0 {
			break
		}
		head := q.entries[0]
		removed, empty := store.DrainTrie(head.TrieID, maxItems)
		spent = spent.Add(gas.Weight{RefTime: uint64(removed), ProofSize: uint64(removed)})
		if empty {
			q.entries = q.entries[1:]
			continue
		}
		// Budget exhausted mid-trie: the partially drained entry stays at
		// the head for the next call.
		break
	}
	return spent
}

// ForcedDrainBudget bounds how much an on_initialize forced drain may
// spend: cap
// the forced drain to min(DeletionWeightLimit, max_block - current_weight)
// so an about-to-overflow queue never starves ordinary extrinsic execution
// of its block weight.
func ForcedDrainBudget(limit, maxBlock, currentWeight gas.Weight) gas.Weight {
	remaining := maxBlock.Sub(currentWeight)
	return limit.Min(remaining)
}

// AtCapacity reports whether the queue has no room for another entry; used
// by on_initialize to decide whether a forced drain is required this
// block.
func (q *Queue) AtCapacity() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) >= q.capacity
}
