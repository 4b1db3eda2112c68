// call.go implements the call push path: the shared frame push/pop
// logic used by both the `call` dispatchable and seal_call's nested
// sub-calls, plus seal_delegate_call's same-frame code substitution.
package executor

import (
	"errors"
	"fmt"

	"github.com/eth2030/eth2030-contracts/core/codecache"
	"github.com/eth2030/eth2030-contracts/core/deposit"
	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
	"github.com/eth2030/eth2030-contracts/core/wasm"
)

// Call is the `call` dispatchable: a root frame with fresh gas
// and deposit meters.
func (ex *Executor) Call(caller, dest types.AccountID, value *types.Balance, gasLimit gas.Weight, depositLimit *types.Balance, input []byte, determinism types.Determinism) (output []byte, reverted bool, err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	txErr := ex.withRootTransaction(func() error {
		callerAcc := ex.ensureAccount(caller)
		gm := gas.NewRoot(gasLimit)
		dm := deposit.NewRoot(depositLimit, callerAcc.balance)
		var innerErr error
		output, reverted, innerErr = ex.pushFrame(caller, caller, dest, value, input, gm, dm, determinism, EntryCall, CallFlags{AllowReentry: true}, false, nil)
		if innerErr != nil && !errors.Is(innerErr, types.ErrContractReverted) {
			return innerErr
		}
		if err := ex.applyDepositDelta(caller, dm); err != nil {
			return err
		}
		if innerErr != nil {
			// ContractReverted is promoted to an explicit dispatchable
			// error only here, at the root: the dry-run path
			// (bare_call) returns it as ordinary data instead.
			return innerErr
		}
		ex.emit(types.EventCalled(caller, dest))
		return nil
	})
	if txErr != nil {
		return nil, reverted, txErr
	}
	return output, reverted, nil
}

// pushFrame is the shared nested-call protocol, used by Call (root) and
// seal_call (nested, via host.go).
func (ex *Executor) pushFrame(caller, origin, dest types.AccountID, value *types.Balance, input []byte, gasMeter *gas.Meter, depositMeter *deposit.Meter, determinism types.Determinism, entryPoint EntryPoint, flags CallFlags, dryRun bool, debugSink *[]byte) (output []byte, reverted bool, err error) {
	if len(ex.frames) >= int(ex.schedule.CallStackDepth)+1 {
		return nil, false, types.ErrMaxCallDepthReached
	}
	if !flags.AllowReentry && ex.ancestorHasAccount(dest) {
		return nil, false, types.ErrReentranceDenied
	}

	snap := ex.journal.snapshot()

	acc, existed := ex.accounts[dest]
	if !existed {
		if value == nil || value.Sign() == 0 {
			return nil, false, types.ErrContractNotFound
		}
		acc = ex.ensureAccount(dest)
	}

	if value != nil && value.Sign() != 0 {
		if err := ex.transfer(caller, dest, value); err != nil {
			ex.journal.revertTo(ex, snap)
			return nil, false, err
		}
	}

	if acc.info == nil {
		// Plain account: a value transfer with no code to run.
		return nil, false, nil
	}

	module, codeDet, loadErr := ex.loadContractCode(acc.info.CodeHash, gasMeter)
	if loadErr != nil {
		ex.journal.revertTo(ex, snap)
		return nil, false, loadErr
	}
	// AllowIndeterminism code is never a call or instantiate target, dry run
	// or not; it is only reachable through seal_delegate_call in a dry-run
	// context (delegateCall carries that gate).
	if codeDet == types.AllowIndeterminism {
		ex.journal.revertTo(ex, snap)
		return nil, false, types.ErrIndeterministic
	}

	f := &Frame{
		account:      dest,
		caller:       caller,
		origin:       origin,
		entryPoint:   entryPoint,
		value:        value,
		input:        input,
		gasMeter:     gasMeter,
		depositMeter: depositMeter,
		determinism:  codeDet,
		flags:        flags,
		dryRun:       dryRun,
		debugSink:    debugSink,
		snapshot:     snap,
	}
	ex.frames = append(ex.frames, f)
	flog := ex.log.WithFrame(dest, entryLabel(entryPoint), len(ex.frames))
	flog.Debug("frame pushed")
	out, runErr := ex.runContract(f, module, "call")
	// A TailCall further down this frame's own execution already popped f
	// from ex.frames in its place (host_ops.go's sealCall); popping here
	// too would remove an ancestor frame instead of a no-op.
	if !f.consumed {
		ex.frames = ex.frames[:len(ex.frames)-1]
	}

	runErr = normalizeTrap(runErr)
	if runErr != nil {
		ex.journal.revertTo(ex, snap)
		if errors.Is(runErr, types.ErrContractReverted) {
			flog.Debug("frame reverted")
			return out, true, types.ErrContractReverted
		}
		flog.Warn("frame trapped", "error", runErr)
		return nil, false, runErr
	}
	flog.Debug("frame popped")
	return out, false, nil
}

// entryLabel renders an EntryPoint for logging.
func entryLabel(e EntryPoint) string {
	if e == EntryConstructor {
		return "instantiate"
	}
	return "call"
}

// loadContractCode resolves dest's code hash through the Code Cache,
// charging the caller's gas meter for the decode cost.
func (ex *Executor) loadContractCode(codeHash types.Hash, gasMeter *gas.Meter) (*codecache.Module, types.Determinism, error) {
	det, ok := ex.codecache.Determinism(codeHash)
	if !ok {
		return nil, 0, types.ErrCodeNotFound
	}
	module, err := ex.codecache.Load(codeHash, ex.schedule.Version, ex.schedule.PerByteCodeDecode, gasMeter)
	if err != nil {
		return nil, 0, err
	}
	return module, det, nil
}

// runContract drives the Wasm engine for one frame's entry point, returning
// the output bytes and an error that is either nil (clean success),
// types.ErrContractReverted (seal_return with the revert flag set), or a
// trap.
func (ex *Executor) runContract(f *Frame, module *codecache.Module, export string) ([]byte, error) {
	host := &frameHost{ex: ex, frame: f}
	st := wasm.NewState(module, f.input, host, f.gasMeter, ex.schedule.Instructions, ex.schedule.MaxMemoryPages)
	out, err := st.Run(export)
	if errors.Is(err, errHostReturn) {
		if f.returnFlags&returnFlagRevert != 0 {
			return f.returnData, types.ErrContractReverted
		}
		return f.returnData, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeTrap wraps an interpreter-internal error (not one of the
// recognized Execution-kind sentinels) as ContractTrapped; the named host
// errors pass through unchanged.
func normalizeTrap(err error) error {
	if err == nil {
		return nil
	}
	if types.Classify(err) != types.KindExecution {
		return err
	}
	switch {
	case errors.Is(err, types.ErrContractTrapped), errors.Is(err, types.ErrContractReverted),
		errors.Is(err, types.ErrMaxCallDepthReached), errors.Is(err, types.ErrReentranceDenied),
		errors.Is(err, types.ErrTransferFailed), errors.Is(err, types.ErrInputForwarded),
		errors.Is(err, types.ErrOutputBufferTooSmall), errors.Is(err, types.ErrNoChainExtension),
		errors.Is(err, types.ErrIndeterministic):
		return err
	default:
		return fmt.Errorf("%w: %v", types.ErrContractTrapped, err)
	}
}
