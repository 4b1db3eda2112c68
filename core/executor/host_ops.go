// host_ops.go implements the seal_* host calls that do more than read a
// scalar field: transfers, nested calls/instantiate/delegate_call,
// terminate, storage, events, randomness, debug messages and return. Split
// out of host.go so the handlers stay grouped by concern rather than
// sharing a file with the dispatch table.
package executor

import (
	"encoding/binary"
	"errors"

	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
	"github.com/eth2030/eth2030-contracts/crypto"
)

// Call flag bits, the wire encoding of CallFlags carried in seal_call's
// first argument.
const (
	callFlagAllowReentry uint32 = 1 << 0
	callFlagTailCall     uint32 = 1 << 1
	callFlagForwardInput uint32 = 1 << 2
	callFlagCloneInput   uint32 = 1 << 3
	callFlagReadonly     uint32 = 1 << 4
)

func decodeCallFlags(bits uint32) CallFlags {
	return CallFlags{
		AllowReentry: bits&callFlagAllowReentry != 0,
		TailCall:     bits&callFlagTailCall != 0,
		ForwardInput: bits&callFlagForwardInput != 0,
		CloneInput:   bits&callFlagCloneInput != 0,
		Readonly:     bits&callFlagReadonly != 0,
	}
}

// readBalance reads a 32-byte little-endian balance from mem at ptr, or a
// zero balance if ptr is SENTINEL, the "no value transferred" convention.
func readBalance(mem []byte, ptr uint32) (*types.Balance, error) {
	if ptr == memSentinel {
		return types.ZeroBalance(), nil
	}
	b, err := readMem(mem, ptr, 32)
	if err != nil {
		return nil, err
	}
	be := make([]byte, len(b))
	for i := range b {
		be[len(b)-1-i] = b[i]
	}
	return new(types.Balance).SetBytes(be), nil
}

func readAccountID(mem []byte, ptr uint32) (types.AccountID, error) {
	b, err := readMem(mem, ptr, types.AccountIDLength)
	if err != nil {
		return types.AccountID{}, err
	}
	return types.BytesToAccountID(b), nil
}

func readHash(mem []byte, ptr uint32) (types.Hash, error) {
	b, err := readMem(mem, ptr, types.HashLength)
	if err != nil {
		return types.Hash{}, err
	}
	return types.BytesToHash(b), nil
}

// --- account/code introspection ---------------------------------------

func (h *frameHost) sealIsContract(mem []byte, accPtr uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.IsContract); err != nil {
		return nil, err
	}
	acc, err := readAccountID(mem, accPtr)
	if err != nil {
		return nil, err
	}
	a, ok := h.ex.accounts[acc]
	return []uint32{boolU32(ok && a.info != nil)}, nil
}

func (h *frameHost) sealCodeHash(mem []byte, accPtr, outPtr, outLenPtr uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.CodeHash); err != nil {
		return nil, err
	}
	acc, err := readAccountID(mem, accPtr)
	if err != nil {
		return nil, err
	}
	a, ok := h.ex.accounts[acc]
	if !ok || a.info == nil {
		return []uint32{hostStatusNotFound}, nil
	}
	if err := writeOutput(mem, outPtr, outLenPtr, a.info.CodeHash.Bytes()); err != nil {
		return nil, err
	}
	return []uint32{hostStatusOK}, nil
}

func (h *frameHost) sealOwnCodeHash(mem []byte, outPtr, outLenPtr uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.OwnCodeHash); err != nil {
		return nil, err
	}
	a := h.ex.accounts[h.frame.account]
	if a == nil || a.info == nil {
		return nil, types.ErrContractNotFound
	}
	if err := writeOutput(mem, outPtr, outLenPtr, a.info.CodeHash.Bytes()); err != nil {
		return nil, err
	}
	return nil, nil
}

// --- transfer ------------------------------------------------------------

func (h *frameHost) sealTransfer(mem []byte, destPtr, valuePtr uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.Transfer); err != nil {
		return nil, err
	}
	if h.frame.flags.Readonly {
		return nil, types.ErrInvalidCallFlags
	}
	dest, err := readAccountID(mem, destPtr)
	if err != nil {
		return nil, err
	}
	value, err := readBalance(mem, valuePtr)
	if err != nil {
		return nil, err
	}
	terr := h.ex.transfer(h.frame.account, dest, value)
	return []uint32{statusFor(terr)}, nil
}

// --- nested call / instantiate / delegate_call / terminate --------------

// sealCall implements seal_call, the nested call push. Argument
// layout: flags, destPtr, gasRefTime, gasProofSize, valuePtr (32B,
// SENTINEL means no transfer), inputPtr, inputLen, outPtr, outLenPtr.
// ForwardInput/CloneInput bypass inputPtr/inputLen and reuse the current
// frame's own input instead.
func (h *frameHost) sealCall(mem []byte, args []uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.Call); err != nil {
		return nil, err
	}
	flags := decodeCallFlags(args[0])
	dest, err := readAccountID(mem, args[1])
	if err != nil {
		return nil, err
	}
	gasLimit := gas.Weight{RefTime: uint64(args[2]), ProofSize: uint64(args[3])}
	value, err := readBalance(mem, args[4])
	if err != nil {
		return nil, err
	}
	if h.frame.flags.Readonly && value.Sign() != 0 {
		return nil, types.ErrInvalidCallFlags
	}

	input, err := h.callInput(mem, flags, args[5], args[6])
	if err != nil {
		return nil, err
	}

	childGas := h.frame.gasMeter.Nested(gasLimit)
	childDeposit := h.frame.depositMeter.Nested(nil)
	childFlags := flags
	if h.frame.flags.Readonly {
		childFlags.Readonly = true
	}

	if flags.TailCall {
		// TailCall replaces the current frame rather than pushing on top of
		// it, preserving depth: pop this frame's own slot off
		// ex.frames before the nested pushFrame appends the callee's, so the
		// two cancel out instead of costing one extra CallStackDepth unit.
		// The enclosing call that originally pushed this frame (pushFrame,
		// instantiate or delegateCall) will see Frame.consumed and skip its
		// own pop.
		h.ex.frames = h.ex.frames[:len(h.ex.frames)-1]
	}
	out, reverted, callErr := h.ex.pushFrame(h.frame.account, h.frame.origin, dest, value, input, childGas, childDeposit, h.frame.determinism, EntryCall, childFlags, h.frame.dryRun, h.frame.debugSink)
	if flags.TailCall {
		if callErr != nil && !reverted {
			// The tail call never took effect (depth/reentrancy/not-found,
			// etc): this frame is still the one executing, so put it back.
			h.ex.frames = append(h.ex.frames, h.frame)
		} else {
			h.frame.consumed = true
		}
	}
	// Gas spent is real even on revert (compute already happened), so it's
	// absorbed whenever the sub-call didn't trap outright. Deposit is
	// different: pushFrame's own journal revert already undid every storage
	// write a revert or trap produced, so childDeposit's delta must be
	// dropped rather than folded up whenever the call didn't cleanly commit.
	h.frame.gasMeter.Absorb(childGas, callErr == nil || reverted)
	h.frame.depositMeter.Absorb(childDeposit, callErr == nil)

	if callErr != nil && !reverted {
		if !types.Recoverable(callErr) {
			return nil, callErr
		}
		return []uint32{statusFor(callErr)}, nil
	}
	if flags.TailCall {
		h.frame.returnData = out
		h.frame.returnFlags = 0
		if reverted {
			h.frame.returnFlags = returnFlagRevert
		}
		return nil, errHostReturn
	}
	if werr := writeOutput(mem, args[7], args[8], out); werr != nil {
		return nil, werr
	}
	return []uint32{statusFor(callErr)}, nil
}

// callInput resolves seal_call/seal_delegate_call's input bytes:
// ForwardInput reuses the current frame's input buffer by reference and
// marks it consumed, so a second forward attempt fails InputForwarded;
// CloneInput copies it; otherwise the explicit ptr/len pair is read from
// memory.
func (h *frameHost) callInput(mem []byte, flags CallFlags, ptr, length uint32) ([]byte, error) {
	if flags.ForwardInput || flags.CloneInput {
		if flags.ForwardInput {
			if h.frame.inputForwarded {
				return nil, types.ErrInputForwarded
			}
			h.frame.inputForwarded = true
			return h.frame.input, nil
		}
		return append([]byte(nil), h.frame.input...), nil
	}
	return readMem(mem, ptr, length)
}

// sealInstantiate implements seal_instantiate. Argument layout: gasRefTime,
// gasProofSize, codeHashPtr, valuePtr, inputPtr, inputLen, saltPtr, saltLen,
// addrOutPtr, addrOutLenPtr, outPtr, outLenPtr.
func (h *frameHost) sealInstantiate(mem []byte, args []uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.Instantiate); err != nil {
		return nil, err
	}
	if h.frame.flags.Readonly {
		return nil, types.ErrInvalidCallFlags
	}
	gasLimit := gas.Weight{RefTime: uint64(args[0]), ProofSize: uint64(args[1])}
	codeHash, err := readHash(mem, args[2])
	if err != nil {
		return nil, err
	}
	value, err := readBalance(mem, args[3])
	if err != nil {
		return nil, err
	}
	input, err := readMem(mem, args[4], args[5])
	if err != nil {
		return nil, err
	}
	salt, err := readMem(mem, args[6], args[7])
	if err != nil {
		return nil, err
	}

	det, ok := h.ex.codecache.Determinism(codeHash)
	if !ok {
		return []uint32{statusFor(types.ErrCodeNotFound)}, nil
	}

	childGas := h.frame.gasMeter.Nested(gasLimit)
	childDeposit := h.frame.depositMeter.Nested(nil)

	addr, out, reverted, callErr := h.ex.instantiate(h.frame.account, h.frame.origin, codeHash, value, input, salt, childGas, childDeposit, det, h.frame.dryRun, h.frame.debugSink)
	// See sealCall: deposit deltas from a reverted/trapped instantiate were
	// already undone by instantiate's own journal revert, so only a clean
	// success folds childDeposit's delta into the parent.
	h.frame.gasMeter.Absorb(childGas, callErr == nil || reverted)
	h.frame.depositMeter.Absorb(childDeposit, callErr == nil)

	if callErr != nil && !reverted {
		if !types.Recoverable(callErr) {
			return nil, callErr
		}
		return []uint32{statusFor(callErr)}, nil
	}
	if !reverted {
		if werr := writeOutput(mem, args[8], args[9], addr.Bytes()); werr != nil {
			return nil, werr
		}
	}
	if werr := writeOutput(mem, args[10], args[11], out); werr != nil {
		return nil, werr
	}
	return []uint32{statusFor(callErr)}, nil
}

// sealDelegateCall implements seal_delegate_call: borrowed code runs
// against the current frame's own account/storage identity, with no value
// transfer and no new frame's worth of account bookkeeping. Argument layout:
// codeHashPtr, inputPtr, inputLen, outPtr, outLenPtr.
func (h *frameHost) sealDelegateCall(mem []byte, args []uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.DelegateCall); err != nil {
		return nil, err
	}
	codeHash, err := readHash(mem, args[0])
	if err != nil {
		return nil, err
	}
	input, err := readMem(mem, args[1], args[2])
	if err != nil {
		return nil, err
	}
	out, reverted, callErr := h.ex.delegateCall(h.frame, codeHash, input)
	if callErr != nil && !reverted {
		if !types.Recoverable(callErr) {
			return nil, callErr
		}
		return []uint32{statusFor(callErr)}, nil
	}
	if werr := writeOutput(mem, args[3], args[4], out); werr != nil {
		return nil, werr
	}
	return []uint32{statusFor(callErr)}, nil
}

// delegateCall runs codeHash's export against f's own account, caller and
// storage identity, sharing f's gas/deposit meters directly rather than
// nesting them: delegate_call has no value transfer and is not itself a
// new frame of accounting, only a new frame of control flow.
func (ex *Executor) delegateCall(f *Frame, codeHash types.Hash, input []byte) ([]byte, bool, error) {
	if len(ex.frames) >= int(ex.schedule.CallStackDepth)+1 {
		return nil, false, types.ErrMaxCallDepthReached
	}
	module, det, err := ex.loadContractCode(codeHash, f.gasMeter)
	if err != nil {
		return nil, false, err
	}
	// This is the one place AllowIndeterminism code may run, and only when
	// the whole call tree is a dry run.
	if det == types.AllowIndeterminism && !f.dryRun {
		return nil, false, types.ErrIndeterministic
	}
	snap := ex.journal.snapshot()
	child := &Frame{
		account:      f.account,
		caller:       f.caller,
		origin:       f.origin,
		entryPoint:   EntryCall,
		value:        types.ZeroBalance(),
		input:        input,
		gasMeter:     f.gasMeter,
		depositMeter: f.depositMeter,
		determinism:  det,
		flags:        f.flags,
		dryRun:       f.dryRun,
		debugSink:    f.debugSink,
		snapshot:     snap,
	}
	ex.frames = append(ex.frames, child)
	out, runErr := ex.runContract(child, module, "call")
	if !child.consumed {
		ex.frames = ex.frames[:len(ex.frames)-1]
	}

	runErr = normalizeTrap(runErr)
	if runErr != nil {
		ex.journal.revertTo(ex, snap)
		if errors.Is(runErr, types.ErrContractReverted) {
			return out, true, types.ErrContractReverted
		}
		return nil, false, runErr
	}
	ex.emit(types.EventDelegateCalled(f.account, codeHash))
	return out, false, nil
}

// sealTerminate implements seal_terminate: sweeps the
// contract's remaining balance to beneficiary, removes its ContractInfo, and
// enqueues its trie for lazy deletion before mutating anything else so a
// full deletion queue aborts the whole operation cleanly.
func (h *frameHost) sealTerminate(mem []byte, beneficiaryPtr uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.Terminate); err != nil {
		return nil, err
	}
	if h.frame.flags.Readonly {
		return nil, types.ErrInvalidCallFlags
	}
	if h.frame.entryPoint == EntryConstructor {
		return nil, types.ErrTerminatedInConstructor
	}
	count := 0
	for _, fr := range h.ex.frames {
		if fr.account == h.frame.account {
			count++
		}
	}
	if count > 1 {
		return nil, types.ErrTerminatedWhileReentrant
	}
	beneficiary, err := readAccountID(mem, beneficiaryPtr)
	if err != nil {
		return nil, err
	}
	a, ok := h.ex.accounts[h.frame.account]
	if !ok || a.info == nil {
		return nil, types.ErrContractNotFound
	}
	info := a.info
	if err := h.ex.deletion.Push(info.TrieID); err != nil {
		return nil, err
	}
	h.ex.journal.append(deletionQueuePushEntry{})
	if a.balance.Sign() != 0 {
		if err := h.ex.transfer(h.frame.account, beneficiary, a.balance); err != nil {
			return nil, err
		}
	}
	h.ex.setContractInfo(h.frame.account, nil)
	if err := h.ex.removeCodeUser(info.CodeHash); err != nil {
		return nil, err
	}
	h.ex.emit(types.EventTerminated(h.frame.account, beneficiary))
	return nil, errHostReturn
}

// --- storage --------------------------------------------------------------

// contractInfo returns the current frame's own ContractInfo, which must
// exist by the time any storage host call runs.
func (h *frameHost) contractInfo() *types.ContractInfo {
	a := h.ex.accounts[h.frame.account]
	if a == nil {
		return nil
	}
	return a.info
}

// storageWrite sets key=value in the current contract's trie, charging the
// exact byte/item deposit delta atomically before committing the write, so a
// deposit-limit failure leaves storage untouched.
func (h *frameHost) storageWrite(key, value []byte) error {
	info := h.contractInfo()
	if info == nil {
		return types.ErrContractNotFound
	}
	prev, existed := h.ex.storage.Get(info.TrieID, key)

	var byteDelta int64
	var itemDelta int64
	if existed {
		byteDelta = int64(len(value)) - int64(len(prev))
	} else {
		byteDelta = int64(len(key) + len(value))
		itemDelta = 1
	}
	if byteDelta != 0 || itemDelta != 0 {
		if err := h.frame.depositMeter.Apply(byteDelta, itemDelta, h.ex.schedule.DepositPerByte, h.ex.schedule.DepositPerItem); err != nil {
			return err
		}
	}

	prevBefore, existedBefore := h.ex.storage.Set(info.TrieID, key, value)
	h.ex.journal.append(storageChangeEntry{trieID: info.TrieID, key: key, prev: prevBefore, existed: existedBefore})
	h.updateContractInfoCounts(byteDelta, itemDelta)
	return nil
}

// storageRemove clears key from the current contract's trie, refunding the
// byte/item deposit it held.
func (h *frameHost) storageRemove(key []byte) (prev []byte, existed bool, err error) {
	info := h.contractInfo()
	if info == nil {
		return nil, false, types.ErrContractNotFound
	}
	prev, existed = h.ex.storage.Get(info.TrieID, key)
	if !existed {
		return nil, false, nil
	}
	byteDelta := -int64(len(key) + len(prev))
	if err := h.frame.depositMeter.Apply(byteDelta, -1, h.ex.schedule.DepositPerByte, h.ex.schedule.DepositPerItem); err != nil {
		return nil, false, err
	}
	prevBefore, existedBefore := h.ex.storage.Take(info.TrieID, key)
	h.ex.journal.append(storageChangeEntry{trieID: info.TrieID, key: key, prev: prevBefore, existed: existedBefore})
	h.updateContractInfoCounts(byteDelta, -1)
	return prev, true, nil
}

// updateContractInfoCounts folds byte/item deltas into the contract's
// persisted ContractInfo counters (journaled, via setContractInfo) and its
// matching deposit balances, keeping both in lockstep with the deposit
// meter's own accounting.
func (h *frameHost) updateContractInfoCounts(byteDelta, itemDelta int64) {
	info := h.contractInfo()
	next := *info
	next.StorageBytes = addDeltaU64(info.StorageBytes, byteDelta)
	next.StorageItems = addDeltaU32(info.StorageItems, itemDelta)
	byteAmt := new(types.Balance).SetUint64(absU64(byteDelta) * h.ex.schedule.DepositPerByte)
	if byteDelta >= 0 {
		next.StorageByteDeposit = new(types.Balance).Add(info.StorageByteDeposit, byteAmt)
	} else {
		next.StorageByteDeposit = new(types.Balance).Sub(info.StorageByteDeposit, byteAmt)
	}
	itemAmt := new(types.Balance).SetUint64(absU64(itemDelta) * h.ex.schedule.DepositPerItem)
	if itemDelta >= 0 {
		next.StorageItemDeposit = new(types.Balance).Add(info.StorageItemDeposit, itemAmt)
	} else {
		next.StorageItemDeposit = new(types.Balance).Sub(info.StorageItemDeposit, itemAmt)
	}
	h.ex.setContractInfo(h.frame.account, &next)
}

func absU64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

func addDeltaU64(v uint64, delta int64) uint64 {
	if delta < 0 && uint64(-delta) > v {
		return 0
	}
	if delta < 0 {
		return v - uint64(-delta)
	}
	return v + uint64(delta)
}

func addDeltaU32(v uint32, delta int64) uint32 {
	return uint32(addDeltaU64(uint64(v), delta))
}

// Status words pushed by host calls whose arity reserves one i32 result for
// an ordinary "not found" outcome rather than a hard trap: a missing key
// or account is business data, not a fault.
const (
	hostStatusOK       uint32 = 0
	hostStatusNotFound uint32 = 1
)

const (
	storageStatusOK          = hostStatusOK
	storageStatusKeyNotFound = hostStatusNotFound
)

func (h *frameHost) sealSetStorage(mem []byte, keyPtr, keyLen, valuePtr, valueLen uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.SetStorage); err != nil {
		return nil, err
	}
	if h.frame.flags.Readonly {
		return nil, types.ErrInvalidCallFlags
	}
	if keyLen > h.ex.schedule.MaxStorageKeyLen {
		return nil, types.ErrOutOfBounds
	}
	if valueLen > h.ex.schedule.MaxStorageValueLen {
		return nil, types.ErrValueTooLarge
	}
	if err := h.frame.gasMeter.Charge(gas.Weight{RefTime: h.ex.schedule.HostFns.PerByteStorageKey.RefTime * uint64(keyLen), ProofSize: h.ex.schedule.HostFns.PerByteStorageKey.ProofSize * uint64(keyLen)}); err != nil {
		return nil, err
	}
	key, err := readMem(mem, keyPtr, keyLen)
	if err != nil {
		return nil, err
	}
	value, err := readMem(mem, valuePtr, valueLen)
	if err != nil {
		return nil, err
	}
	if werr := h.storageWrite(key, value); werr != nil {
		return nil, werr
	}
	return []uint32{storageStatusOK}, nil
}

func (h *frameHost) sealGetStorage(mem []byte, keyPtr, keyLen, outPtr, outLenPtr uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.GetStorage); err != nil {
		return nil, err
	}
	key, err := readMem(mem, keyPtr, keyLen)
	if err != nil {
		return nil, err
	}
	info := h.contractInfo()
	if info == nil {
		return nil, types.ErrContractNotFound
	}
	value, ok := h.ex.storage.Get(info.TrieID, key)
	if !ok {
		return []uint32{storageStatusKeyNotFound}, nil
	}
	if werr := writeOutput(mem, outPtr, outLenPtr, value); werr != nil {
		return nil, werr
	}
	return []uint32{storageStatusOK}, nil
}

func (h *frameHost) sealClearStorage(mem []byte, keyPtr, keyLen uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.ClearStorage); err != nil {
		return nil, err
	}
	if h.frame.flags.Readonly {
		return nil, types.ErrInvalidCallFlags
	}
	key, err := readMem(mem, keyPtr, keyLen)
	if err != nil {
		return nil, err
	}
	_, existed, rerr := h.storageRemove(key)
	if rerr != nil {
		return nil, rerr
	}
	if !existed {
		return []uint32{storageStatusKeyNotFound}, nil
	}
	return []uint32{storageStatusOK}, nil
}

func (h *frameHost) sealContainsStorage(mem []byte, keyPtr, keyLen uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.ContainsStorage); err != nil {
		return nil, err
	}
	key, err := readMem(mem, keyPtr, keyLen)
	if err != nil {
		return nil, err
	}
	info := h.contractInfo()
	if info == nil {
		return nil, types.ErrContractNotFound
	}
	return []uint32{boolU32(h.ex.storage.Contains(info.TrieID, key))}, nil
}

func (h *frameHost) sealTakeStorage(mem []byte, keyPtr, keyLen, outPtr, outLenPtr uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.TakeStorage); err != nil {
		return nil, err
	}
	if h.frame.flags.Readonly {
		return nil, types.ErrInvalidCallFlags
	}
	key, err := readMem(mem, keyPtr, keyLen)
	if err != nil {
		return nil, err
	}
	prev, existed, rerr := h.storageRemove(key)
	if rerr != nil {
		return nil, rerr
	}
	if !existed {
		return []uint32{storageStatusKeyNotFound}, nil
	}
	if werr := writeOutput(mem, outPtr, outLenPtr, prev); werr != nil {
		return nil, werr
	}
	return []uint32{storageStatusOK}, nil
}

// --- events, randomness, debug, return -------------------------------------

func (h *frameHost) sealDepositEvent(mem []byte, topicsPtr, topicsCount, dataPtr, dataLen uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.DepositEvent); err != nil {
		return nil, err
	}
	if h.frame.flags.Readonly {
		return nil, types.ErrInvalidCallFlags
	}
	if topicsCount > h.ex.schedule.MaxTopics {
		return nil, types.ErrTooManyTopics
	}
	topics := make([]types.Hash, topicsCount)
	for i := uint32(0); i < topicsCount; i++ {
		h2, err := readHash(mem, topicsPtr+i*types.HashLength)
		if err != nil {
			return nil, err
		}
		topics[i] = h2
	}
	data, err := readMem(mem, dataPtr, dataLen)
	if err != nil {
		return nil, err
	}
	h.ex.emit(types.EventContractEmitted(h.frame.account, topics, data))
	return nil, nil
}

// RandomSource supplies the randomness oracle seal_random exposes to
// contracts; the surrounding chain provides the real one. The default
// implementation is a deterministic hash of the subject and block number,
// since the executor itself must stay deterministic outside dry-run
// contexts.
type RandomSource interface {
	Random(subject []byte, blockNumber uint64) types.Hash
}

type deterministicRandomSource struct{}

func (deterministicRandomSource) Random(subject []byte, blockNumber uint64) types.Hash {
	var bn [8]byte
	binary.BigEndian.PutUint64(bn[:], blockNumber)
	return types.BytesToHash(crypto.Keccak256(subject, bn[:]))
}

func (h *frameHost) sealRandom(mem []byte, subjectPtr, subjectLen, outPtr, outLenPtr uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.Random); err != nil {
		return nil, err
	}
	if subjectLen > h.ex.schedule.MaxRandomSubjectLen {
		return nil, types.ErrRandomSubjectTooLong
	}
	subject, err := readMem(mem, subjectPtr, subjectLen)
	if err != nil {
		return nil, err
	}
	out := h.ex.randomness.Random(subject, h.ex.blockNumber)
	var buf [40]byte
	copy(buf[:32], out.Bytes())
	binary.LittleEndian.PutUint64(buf[32:], h.ex.blockNumber)
	if werr := writeOutput(mem, outPtr, outLenPtr, buf[:]); werr != nil {
		return nil, werr
	}
	return nil, nil
}

func (h *frameHost) sealDebugMessage(mem []byte, ptr, length uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.DebugMessage); err != nil {
		return nil, err
	}
	if h.frame.debugSink == nil {
		return []uint32{0}, nil
	}
	msg, err := readMem(mem, ptr, length)
	if err != nil {
		return nil, err
	}
	if !utf8Valid(msg) {
		return nil, types.ErrDebugMessageInvalidUTF8
	}
	budget := int(h.ex.schedule.MaxDebugBufferLen) - len(*h.frame.debugSink)
	if budget <= 0 {
		return []uint32{0}, nil
	}
	if len(msg) > budget {
		msg = msg[:budget]
	}
	*h.frame.debugSink = append(*h.frame.debugSink, msg...)
	return []uint32{0}, nil
}

// sealReturn implements seal_return: sets the frame's return payload and
// signals runContract (via errHostReturn) that the entry point is done.
func (h *frameHost) sealReturn(mem []byte, flags, dataPtr, dataLen uint32) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.Return); err != nil {
		return nil, err
	}
	data, err := readMem(mem, dataPtr, dataLen)
	if err != nil {
		return nil, err
	}
	h.frame.returnFlags = flags
	h.frame.returnData = data
	return nil, errHostReturn
}
