// code.go implements the code-lifecycle dispatchables:
// upload_code, remove_code, and set_code, each a root-level transaction with
// no Wasm execution of its own.
package executor

import (
	"github.com/eth2030/eth2030-contracts/core/deposit"
	"github.com/eth2030/eth2030-contracts/core/types"
	"github.com/eth2030/eth2030-contracts/crypto"
)

// UploadCode admits pristine Wasm bytes into the Code Cache, reserving a
// deposit from owner bounded by depositLimit.
func (ex *Executor) UploadCode(owner types.AccountID, code []byte, depositLimit *types.Balance, determinism types.Determinism) (types.Hash, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	var codeHash types.Hash
	err := ex.withRootTransaction(func() error {
		ownerAcc := ex.ensureAccount(owner)
		m := deposit.NewRoot(depositLimit, ownerAcc.balance)
		_, existed := ex.codecache.Determinism(crypto.Keccak256Hash(code))
		hash, err := ex.codecache.Upload(owner, code, determinism, ex.schedule.MaxCodeLen, ex.schedule.DepositPerByte, ex.schedule.Version, m)
		if err != nil {
			return err
		}
		if !existed {
			ex.journal.append(codeStoredEntry{codeHash: hash})
		}
		if err := ex.applyDepositDelta(owner, m); err != nil {
			return err
		}
		codeHash = hash
		ex.emit(types.EventCodeStored(hash))
		return nil
	})
	return codeHash, err
}

// RemoveCode deletes an unused code entry and refunds its deposit to the
// owner.
func (ex *Executor) RemoveCode(caller types.AccountID, codeHash types.Hash) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	return ex.withRootTransaction(func() error {
		refund, err := ex.codecache.Remove(caller, codeHash)
		if err != nil {
			return err
		}
		a := ex.ensureAccount(caller)
		ex.setBalance(caller, new(types.Balance).Add(a.balance, refund))
		ex.emit(types.EventCodeRemoved(codeHash))
		return nil
	})
}

// SetCode privileged-replaces a contract's code hash, rebalancing
// refcounts new-then-old (increment before decrement, even though
// single-threaded execution makes the transient-zero race moot).
func (ex *Executor) SetCode(contract types.AccountID, newCodeHash types.Hash) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	return ex.withRootTransaction(func() error {
		a, ok := ex.accounts[contract]
		if !ok || a.info == nil {
			return types.ErrContractNotFound
		}
		oldCodeHash := a.info.CodeHash
		if err := ex.addCodeUser(newCodeHash); err != nil {
			return err
		}
		if err := ex.removeCodeUser(oldCodeHash); err != nil {
			return err
		}
		next := *a.info
		next.CodeHash = newCodeHash
		ex.setContractInfo(contract, &next)
		ex.emit(types.EventContractCodeUpdated(contract, newCodeHash, oldCodeHash))
		return nil
	})
}
