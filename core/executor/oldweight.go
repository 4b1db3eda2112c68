// oldweight.go implements the deprecated 1D-gas compatibility
// dispatchables kept for callers that haven't migrated to the 2D
// Weight{RefTime, ProofSize} model: CallOldWeight,
// InstantiateWithCodeOldWeight, InstantiateOldWeight. Each converts its
// legacy gas limit by setting ProofSize to twice the schedule's MaxCodeLen,
// a conservative stand-in for callers that never accounted for proof size
// at all, and delegates to the real dispatchable.
package executor

import (
	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
)

// CallOldWeight is the deprecated 1D-gas form of Call.
func (ex *Executor) CallOldWeight(caller, dest types.AccountID, value *types.Balance, oldGasLimit uint64, depositLimit *types.Balance, input []byte, determinism types.Determinism) (output []byte, reverted bool, err error) {
	ex.mu.Lock()
	maxCodeLen := ex.schedule.MaxCodeLen
	ex.mu.Unlock()
	gasLimit := gas.Weight{RefTime: oldGasLimit, ProofSize: uint64(maxCodeLen) * 2}
	return ex.Call(caller, dest, value, gasLimit, depositLimit, input, determinism)
}

// InstantiateWithCodeOldWeight is the deprecated 1D-gas form of
// InstantiateWithCode.
func (ex *Executor) InstantiateWithCodeOldWeight(deployer types.AccountID, value *types.Balance, oldGasLimit uint64, depositLimit *types.Balance, code []byte, input []byte, salt []byte, determinism types.Determinism) (types.AccountID, []byte, bool, error) {
	ex.mu.Lock()
	maxCodeLen := ex.schedule.MaxCodeLen
	ex.mu.Unlock()
	gasLimit := gas.Weight{RefTime: oldGasLimit, ProofSize: uint64(maxCodeLen) * 2}
	return ex.InstantiateWithCode(deployer, value, gasLimit, depositLimit, code, input, salt, determinism)
}

// InstantiateOldWeight is the deprecated 1D-gas form of Instantiate.
func (ex *Executor) InstantiateOldWeight(deployer types.AccountID, value *types.Balance, oldGasLimit uint64, depositLimit *types.Balance, codeHash types.Hash, input []byte, salt []byte) (types.AccountID, []byte, bool, error) {
	ex.mu.Lock()
	maxCodeLen := ex.schedule.MaxCodeLen
	ex.mu.Unlock()
	gasLimit := gas.Weight{RefTime: oldGasLimit, ProofSize: uint64(maxCodeLen) * 2}
	return ex.Instantiate(deployer, value, gasLimit, depositLimit, codeHash, input, salt)
}
