// instantiate.go implements the instantiate push path and the two
// instantiate dispatchables.
package executor

import (
	"errors"

	"github.com/eth2030/eth2030-contracts/core/deposit"
	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
	"github.com/eth2030/eth2030-contracts/crypto"
)

// InstantiateWithCode uploads code and instantiates it in one root
// transaction.
func (ex *Executor) InstantiateWithCode(deployer types.AccountID, value *types.Balance, gasLimit gas.Weight, depositLimit *types.Balance, code []byte, input []byte, salt []byte, determinism types.Determinism) (contractAddr types.AccountID, output []byte, reverted bool, err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	txErr := ex.withRootTransaction(func() error {
		deployerAcc := ex.ensureAccount(deployer)
		dm := deposit.NewRoot(depositLimit, deployerAcc.balance)
		_, existed := ex.codecache.Determinism(crypto.Keccak256Hash(code))
		codeHash, uerr := ex.codecache.Upload(deployer, code, determinism, ex.schedule.MaxCodeLen, ex.schedule.DepositPerByte, ex.schedule.Version, dm)
		if uerr != nil {
			return uerr
		}
		if !existed {
			ex.journal.append(codeStoredEntry{codeHash: codeHash})
		}
		gm := gas.NewRoot(gasLimit)
		var innerErr error
		contractAddr, output, reverted, innerErr = ex.instantiate(deployer, deployer, codeHash, value, input, salt, gm, dm, determinism, false, nil)
		if innerErr != nil && !errors.Is(innerErr, types.ErrContractReverted) {
			return innerErr
		}
		if err := ex.applyDepositDelta(deployer, dm); err != nil {
			return err
		}
		return innerErr
	})
	if txErr != nil {
		return types.AccountID{}, nil, reverted, txErr
	}
	return contractAddr, output, reverted, nil
}

// Instantiate instantiates a contract from already-uploaded code.
func (ex *Executor) Instantiate(deployer types.AccountID, value *types.Balance, gasLimit gas.Weight, depositLimit *types.Balance, codeHash types.Hash, input []byte, salt []byte) (contractAddr types.AccountID, output []byte, reverted bool, err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	determinism, _ := ex.codecache.Determinism(codeHash)

	txErr := ex.withRootTransaction(func() error {
		deployerAcc := ex.ensureAccount(deployer)
		gm := gas.NewRoot(gasLimit)
		dm := deposit.NewRoot(depositLimit, deployerAcc.balance)
		var innerErr error
		contractAddr, output, reverted, innerErr = ex.instantiate(deployer, deployer, codeHash, value, input, salt, gm, dm, determinism, false, nil)
		if innerErr != nil && !errors.Is(innerErr, types.ErrContractReverted) {
			return innerErr
		}
		if err := ex.applyDepositDelta(deployer, dm); err != nil {
			return err
		}
		return innerErr
	})
	if txErr != nil {
		return types.AccountID{}, nil, reverted, txErr
	}
	return contractAddr, output, reverted, nil
}

// instantiate is the shared instantiate push: derive the address,
// reject duplicates, allocate a trie id, insert ContractInfo and bump the
// code's refcount before running the constructor -- all through the shared
// journal, so a reverted constructor undoes every one of those steps for
// free, including the just-inserted ContractInfo.
func (ex *Executor) instantiate(caller, origin types.AccountID, codeHash types.Hash, value *types.Balance, input []byte, salt []byte, gasMeter *gas.Meter, depositMeter *deposit.Meter, determinism types.Determinism, dryRun bool, debugSink *[]byte) (types.AccountID, []byte, bool, error) {
	if len(ex.frames) >= int(ex.schedule.CallStackDepth)+1 {
		return types.AccountID{}, nil, false, types.ErrMaxCallDepthReached
	}

	snap := ex.journal.snapshot()

	addr := ex.addrGen.Generate(caller, codeHash, input, salt)
	if existing, exists := ex.accounts[addr]; exists && existing.info != nil {
		return types.AccountID{}, nil, false, types.ErrDuplicateContract
	}

	module, codeDet, loadErr := ex.loadContractCode(codeHash, gasMeter)
	if loadErr != nil {
		ex.journal.revertTo(ex, snap)
		return types.AccountID{}, nil, false, loadErr
	}
	// AllowIndeterminism code cannot back a contract account at all; it is
	// only reachable through seal_delegate_call in a dry-run context.
	if codeDet == types.AllowIndeterminism {
		ex.journal.revertTo(ex, snap)
		return types.AccountID{}, nil, false, types.ErrIndeterministic
	}

	if value != nil && value.Sign() != 0 {
		if err := ex.transfer(caller, addr, value); err != nil {
			ex.journal.revertTo(ex, snap)
			return types.AccountID{}, nil, false, err
		}
	}

	trieID := ex.nonces.TrieID(addr)
	info := &types.ContractInfo{
		TrieID:             trieID,
		CodeHash:           codeHash,
		StorageByteDeposit: types.ZeroBalance(),
		StorageItemDeposit: types.ZeroBalance(),
	}
	ex.setContractInfo(addr, info)
	if err := ex.addCodeUser(codeHash); err != nil {
		ex.journal.revertTo(ex, snap)
		return types.AccountID{}, nil, false, err
	}

	f := &Frame{
		account:      addr,
		caller:       caller,
		origin:       origin,
		entryPoint:   EntryConstructor,
		value:        value,
		input:        input,
		gasMeter:     gasMeter,
		depositMeter: depositMeter,
		determinism:  codeDet,
		flags:        CallFlags{AllowReentry: true},
		dryRun:       dryRun,
		debugSink:    debugSink,
		snapshot:     snap,
	}
	ex.frames = append(ex.frames, f)
	out, runErr := ex.runContract(f, module, "deploy")
	if !f.consumed {
		ex.frames = ex.frames[:len(ex.frames)-1]
	}

	runErr = normalizeTrap(runErr)
	if runErr != nil {
		ex.journal.revertTo(ex, snap)
		if errors.Is(runErr, types.ErrContractReverted) {
			return types.AccountID{}, out, true, types.ErrContractReverted
		}
		return types.AccountID{}, nil, false, runErr
	}
	ex.emit(types.EventInstantiated(caller, addr))
	return addr, out, false, nil
}
