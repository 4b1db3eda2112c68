// dryrun.go implements the read-only bare_* API: the same
// Push(call)/Push(instantiate)/Upload machinery as the real dispatchables,
// run under a journal checkpoint that is unconditionally discarded
// afterward, so a speculative run (used by RPC nodes to estimate gas/
// deposit before submitting a real extrinsic) never leaks state. The
// nonce allocator needs its own explicit snapshot/restore here since it
// isn't a journaled field: trie ids must stay strictly monotonic even
// across reverted root transactions, and a dry run is the one case that
// must not advance it at all.
package executor

import (
	"errors"

	"github.com/eth2030/eth2030-contracts/core/codecache"
	"github.com/eth2030/eth2030-contracts/core/deposit"
	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
)

// BareCall runs a call the way Call does, but always discards its effects.
// A reverted contract is reported as ordinary data (reverted true, err nil)
// rather than promoted to an explicit error.
func (ex *Executor) BareCall(caller, dest types.AccountID, value *types.Balance, gasLimit gas.Weight, depositLimit *types.Balance, input []byte, determinism types.Determinism) (output []byte, reverted bool, err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	snap := ex.journal.snapshot()
	callerAcc := ex.ensureAccount(caller)
	gm := gas.NewRoot(gasLimit)
	dm := deposit.NewRoot(depositLimit, callerAcc.balance)
	output, reverted, err = ex.pushFrame(caller, caller, dest, value, input, gm, dm, determinism, EntryCall, CallFlags{AllowReentry: true}, true, nil)
	ex.journal.revertTo(ex, snap)
	ex.scratchEvents = nil
	if err != nil && !errors.Is(err, types.ErrContractReverted) {
		return nil, reverted, err
	}
	return output, reverted, nil
}

// BareInstantiate runs an instantiate the way Instantiate does, discarding
// every effect including the nonce it would otherwise have consumed.
func (ex *Executor) BareInstantiate(deployer types.AccountID, value *types.Balance, gasLimit gas.Weight, depositLimit *types.Balance, codeHash types.Hash, input []byte, salt []byte) (contractAddr types.AccountID, output []byte, reverted bool, err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	det, ok := ex.codecache.Determinism(codeHash)
	if !ok {
		return types.AccountID{}, nil, false, types.ErrCodeNotFound
	}

	snap := ex.journal.snapshot()
	nonceSnap := ex.nonces.Current()
	deployerAcc := ex.ensureAccount(deployer)
	gm := gas.NewRoot(gasLimit)
	dm := deposit.NewRoot(depositLimit, deployerAcc.balance)
	contractAddr, output, reverted, err = ex.instantiate(deployer, deployer, codeHash, value, input, salt, gm, dm, det, true, nil)
	ex.journal.revertTo(ex, snap)
	ex.scratchEvents = nil
	ex.nonces.Reset(nonceSnap)
	if err != nil && !errors.Is(err, types.ErrContractReverted) {
		return types.AccountID{}, nil, reverted, err
	}
	return contractAddr, output, reverted, nil
}

// BareUploadCode validates and parses code as Upload would, reporting the
// code hash and the deposit it would reserve, without admitting it into the
// Code Cache unless it was already present.
func (ex *Executor) BareUploadCode(origin types.AccountID, code []byte, determinism types.Determinism) (codeHash types.Hash, deposited *types.Balance, err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	m, err := codecache.Parse(code, ex.schedule.MaxCodeLen)
	if err != nil {
		return types.Hash{}, nil, err
	}
	_, alreadyCached := ex.codecache.Determinism(m.Hash)

	originAcc := ex.ensureAccount(origin)
	dm := deposit.NewRoot(nil, originAcc.balance)
	hash, uerr := ex.codecache.Upload(origin, code, determinism, ex.schedule.MaxCodeLen, ex.schedule.DepositPerByte, ex.schedule.Version, dm)
	if uerr != nil {
		return types.Hash{}, nil, uerr
	}
	if !alreadyCached {
		if _, rerr := ex.codecache.Remove(origin, hash); rerr != nil {
			ex.log.Warn("bare upload cleanup failed", "code_hash", hash, "error", rerr)
		}
	}
	amount, _ := dm.NetDelta()
	return hash, amount, nil
}

// GetStorage reads a contract's persisted storage value directly, for
// off-chain queries.
func (ex *Executor) GetStorage(contract types.AccountID, key []byte) ([]byte, bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	a, ok := ex.accounts[contract]
	if !ok || a.info == nil {
		return nil, false
	}
	return ex.storage.Get(a.info.TrieID, key)
}

// ContractAddress derives the address Instantiate(WithCode) would produce
// for the given inputs, without mutating any state: the Address Generator
// exposed as a pure off-chain query.
func (ex *Executor) ContractAddress(deployer types.AccountID, codeHash types.Hash, input, salt []byte) types.AccountID {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.addrGen.Generate(deployer, codeHash, input, salt)
}

// CodeHashOf returns a contract's stored code hash.
func (ex *Executor) CodeHashOf(contract types.AccountID) (types.Hash, bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	a, ok := ex.accounts[contract]
	if !ok || a.info == nil {
		return types.Hash{}, false
	}
	return a.info.CodeHash, true
}
