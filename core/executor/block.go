// block.go wires the Deletion Queue's lazy drain into the two
// block-boundary hooks: an idle-weight opportunistic drain and a forced
// on_initialize drain when the queue is full enough to risk overflow.
package executor

import (
	"github.com/eth2030/eth2030-contracts/core/deletionqueue"
	"github.com/eth2030/eth2030-contracts/core/gas"
)

// OnIdle spends up to idleWeight draining the Deletion Queue
// opportunistically, returning the weight actually spent.
func (ex *Executor) OnIdle(idleWeight gas.Weight) gas.Weight {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.deletion.Drain(ex.storage, idleWeight)
}

// OnInitialize forces a drain when the queue is at capacity and about to
// overflow, budgeted so it never starves the rest of the block's extrinsics
// (min(DeletionWeightLimit, max_block-current_weight)).
func (ex *Executor) OnInitialize(maxBlockWeight, currentWeight gas.Weight) gas.Weight {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if !ex.deletion.AtCapacity() {
		return gas.Weight{}
	}
	budget := deletionqueue.ForcedDrainBudget(ex.schedule.DeletionWeightLimit, maxBlockWeight, currentWeight)
	return ex.deletion.Drain(ex.storage, budget)
}
