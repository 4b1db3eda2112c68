// frame.go is the runtime Frame: one live call or instantiate context on
// the Execution Stack, carrying its own nested meters and a journal
// checkpoint rather than its own copy of state. Nested gas follows the
// min(limit, remaining) rule rather than an EVM-style 63/64 forwarding
// split.
package executor

import (
	"github.com/eth2030/eth2030-contracts/core/deposit"
	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
)

// EntryPoint is the Wasm export a frame was invoked through.
type EntryPoint uint8

const (
	EntryCall EntryPoint = iota
	EntryConstructor
)

// CallFlags is the seal_call flag set.
type CallFlags struct {
	AllowReentry bool
	TailCall     bool
	ForwardInput bool
	CloneInput   bool
	Readonly     bool
}

// Frame is one entry on the Execution Stack.
type Frame struct {
	account    types.AccountID
	caller     types.AccountID
	origin     types.AccountID // the frame at the root of this call chain
	entryPoint EntryPoint
	value      *types.Balance
	input      []byte

	gasMeter     *gas.Meter
	depositMeter *deposit.Meter
	determinism  types.Determinism
	flags        CallFlags
	dryRun       bool
	debugSink    *[]byte // per-root debug buffer, shared by reference down the stack

	snapshot int // journal checkpoint taken at push time

	inputForwarded bool
	returned       bool
	returnFlags    uint32
	returnData     []byte

	// consumed marks a frame that a TailCall replaced in place rather than
	// returned from normally: it was already removed from ex.frames by the
	// seal_call TailCall branch (host_ops.go), so whichever call originally
	// pushed it (pushFrame, instantiate or delegateCall) skips its own pop.
	consumed bool
}

// Account returns the account id this frame is executing against.
func (f *Frame) Account() types.AccountID { return f.account }

// Caller returns the account that pushed this frame.
func (f *Frame) Caller() types.AccountID { return f.caller }

// top returns the currently executing frame, or nil if the stack is empty.
func (ex *Executor) top() *Frame {
	if len(ex.frames) == 0 {
		return nil
	}
	return ex.frames[len(ex.frames)-1]
}

// ancestorHasAccount reports whether any frame currently on the stack (the
// callers of the frame about to be pushed) targets account -- used for both
// the seal_call reentrancy check and the seal_terminate reentrancy check
//.
func (ex *Executor) ancestorHasAccount(account types.AccountID) bool {
	for _, f := range ex.frames {
		if f.account == account {
			return true
		}
	}
	return false
}
