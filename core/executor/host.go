// host.go implements the seal_* Host Interface against the currently
// executing Frame. Dispatch is a name-keyed switch since host function
// names, not byte opcodes, are the dispatch key; every handler follows the
// same charge-weight, bounds-check-memory, then-act shape.
package executor

import (
	"encoding/binary"
	"errors"
	"unicode/utf8"

	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
)

const memSentinel = 0xFFFFFFFF

// errHostReturn is the sentinel CallHost returns for seal_return/
// seal_terminate: not a failure, but a signal to the interpreter loop
// (via runContract) that execution of this frame's entry point is done.
var errHostReturn = errors.New("executor: frame entry point returned")

const (
	returnFlagRevert uint32 = 1 << 0
)

// Status codes pushed as seal_call/seal_instantiate/seal_delegate_call's i32
// result: the caller observes the code and decides how to proceed. Index 0
// is reserved for success.
var statusCodes = []error{
	nil,
	types.ErrContractReverted,
	types.ErrContractNotFound,
	types.ErrCodeNotFound,
	types.ErrTransferFailed,
	types.ErrMaxCallDepthReached,
	types.ErrReentranceDenied,
	types.ErrDuplicateContract,
	types.ErrTerminatedWhileReentrant,
	types.ErrTerminatedInConstructor,
	types.ErrOutOfGas,
	types.ErrStorageDepositLimitExhausted,
	types.ErrStorageDepositNotEnoughFunds,
	types.ErrDeletionQueueFull,
	types.ErrCodeInUse,
	types.ErrIndeterministic,
	types.ErrInputForwarded,
}

func statusFor(err error) uint32 {
	if err == nil {
		return 0
	}
	for i, e := range statusCodes {
		if e != nil && errors.Is(err, e) {
			return uint32(i)
		}
	}
	return uint32(len(statusCodes))
}

// frameHost implements wasm.Host against one Frame. ex.mu is already held by
// the dispatchable that is driving this call tree.
type frameHost struct {
	ex    *Executor
	frame *Frame
}

var hostArity = map[string][2]int{
	"seal_caller":                 {2, 0},
	"seal_address":                {2, 0},
	"seal_is_contract":            {1, 1},
	"seal_code_hash":              {3, 1},
	"seal_own_code_hash":          {2, 0},
	"seal_caller_is_origin":       {0, 1},
	"seal_block_number":           {0, 1},
	"seal_now":                    {0, 1},
	"seal_minimum_balance":        {0, 1},
	"seal_weight_to_fee":          {1, 1},
	"seal_transfer":               {2, 1},
	"seal_call":                   {9, 1},
	"seal_instantiate":            {12, 1},
	"seal_delegate_call":          {5, 1},
	"seal_terminate":              {1, 0},
	"seal_set_storage":            {4, 1},
	"seal_get_storage":            {4, 1},
	"seal_clear_storage":          {2, 1},
	"seal_contains_storage":       {2, 1},
	"seal_take_storage":           {4, 1},
	"seal_set_storage_fixed":      {3, 1},
	"seal_get_storage_fixed":      {3, 1},
	"seal_clear_storage_fixed":    {1, 1},
	"seal_contains_storage_fixed": {1, 1},
	"seal_take_storage_fixed":     {3, 1},
	"seal_deposit_event":          {4, 0},
	"seal_random":                 {4, 0},
	"seal_debug_message":          {2, 1},
	"seal_return":                 {3, 0},
	"seal_call_chain_extension":   {5, 1},
}

func (h *frameHost) HostArity(name string) (int, int, bool) {
	a, ok := hostArity[name]
	if !ok {
		return 0, 0, false
	}
	return a[0], a[1], true
}

func (h *frameHost) CallHost(name string, mem []byte, args []uint32) ([]uint32, error) {
	switch name {
	case "seal_caller":
		return h.writeAccountID(mem, args[0], args[1], h.frame.caller, h.ex.schedule.HostFns.Caller)
	case "seal_address":
		return h.writeAccountID(mem, args[0], args[1], h.frame.account, h.ex.schedule.HostFns.Address)
	case "seal_is_contract":
		return h.sealIsContract(mem, args[0])
	case "seal_code_hash":
		return h.sealCodeHash(mem, args[0], args[1], args[2])
	case "seal_own_code_hash":
		return h.sealOwnCodeHash(mem, args[0], args[1])
	case "seal_caller_is_origin":
		if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.CallerIsOrigin); err != nil {
			return nil, err
		}
		return []uint32{boolU32(h.frame.caller == h.frame.origin)}, nil
	case "seal_block_number":
		if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.BlockNumber); err != nil {
			return nil, err
		}
		return []uint32{uint32(h.ex.blockNumber)}, nil
	case "seal_now":
		if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.Now); err != nil {
			return nil, err
		}
		return []uint32{uint32(h.ex.timestamp)}, nil
	case "seal_minimum_balance":
		if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.MinimumBalance); err != nil {
			return nil, err
		}
		return []uint32{uint32(h.ex.existentialDeposit.Uint64())}, nil
	case "seal_weight_to_fee":
		if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.WeightToFee); err != nil {
			return nil, err
		}
		return []uint32{args[0] * uint32(h.ex.schedule.DepositPerByte+1)}, nil
	case "seal_transfer":
		return h.sealTransfer(mem, args[0], args[1])
	case "seal_call":
		return h.sealCall(mem, args)
	case "seal_instantiate":
		return h.sealInstantiate(mem, args)
	case "seal_delegate_call":
		return h.sealDelegateCall(mem, args)
	case "seal_terminate":
		return h.sealTerminate(mem, args[0])
	case "seal_set_storage":
		return h.sealSetStorage(mem, args[0], args[1], args[2], args[3])
	case "seal_get_storage":
		return h.sealGetStorage(mem, args[0], args[1], args[2], args[3])
	case "seal_clear_storage":
		return h.sealClearStorage(mem, args[0], args[1])
	case "seal_contains_storage":
		return h.sealContainsStorage(mem, args[0], args[1])
	case "seal_take_storage":
		return h.sealTakeStorage(mem, args[0], args[1], args[2], args[3])
	case "seal_set_storage_fixed":
		return h.sealSetStorage(mem, args[0], types.HashLength, args[1], args[2])
	case "seal_get_storage_fixed":
		return h.sealGetStorage(mem, args[0], types.HashLength, args[1], args[2])
	case "seal_clear_storage_fixed":
		return h.sealClearStorage(mem, args[0], types.HashLength)
	case "seal_contains_storage_fixed":
		return h.sealContainsStorage(mem, args[0], types.HashLength)
	case "seal_take_storage_fixed":
		return h.sealTakeStorage(mem, args[0], types.HashLength, args[1], args[2])
	case "seal_deposit_event":
		return h.sealDepositEvent(mem, args[0], args[1], args[2], args[3])
	case "seal_random":
		return h.sealRandom(mem, args[0], args[1], args[2], args[3])
	case "seal_debug_message":
		return h.sealDebugMessage(mem, args[0], args[1])
	case "seal_return":
		return h.sealReturn(mem, args[0], args[1], args[2])
	case "seal_call_chain_extension":
		if err := h.frame.gasMeter.Charge(h.ex.schedule.HostFns.ChainExtension); err != nil {
			return nil, err
		}
		return nil, types.ErrNoChainExtension
	default:
		return nil, types.ErrNoChainExtension
	}
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// readMem copies length bytes starting at ptr out of mem, bounds-checked
// against the contract's current memory size before reading.
func readMem(mem []byte, ptr, length uint32) ([]byte, error) {
	if uint64(ptr)+uint64(length) > uint64(len(mem)) {
		return nil, types.ErrOutOfBounds
	}
	out := make([]byte, length)
	copy(out, mem[ptr:ptr+length])
	return out, nil
}

func writeMem(mem []byte, ptr uint32, data []byte) error {
	if uint64(ptr)+uint64(len(data)) > uint64(len(mem)) {
		return types.ErrOutOfBounds
	}
	copy(mem[ptr:], data)
	return nil
}

// writeOutput implements the "small-buffer" convention: the
// out-pointer pair is skipped entirely when either is SENTINEL; otherwise
// the caller-provided capacity (read from outLenPtr) must be large enough,
// or OutputBufferTooSmall is returned and the length is written back so the
// callee can retry with a bigger buffer.
func writeOutput(mem []byte, outPtr, outLenPtr uint32, data []byte) error {
	if outPtr == memSentinel || outLenPtr == memSentinel {
		return nil
	}
	capBytes, err := readMem(mem, outLenPtr, 4)
	if err != nil {
		return err
	}
	capacity := binary.LittleEndian.Uint32(capBytes)
	if capacity < uint32(len(data)) {
		if werr := writeMem(mem, outLenPtr, u32le(uint32(len(data)))); werr != nil {
			return werr
		}
		return types.ErrOutputBufferTooSmall
	}
	if err := writeMem(mem, outPtr, data); err != nil {
		return err
	}
	return writeMem(mem, outLenPtr, u32le(uint32(len(data))))
}

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func (h *frameHost) writeAccountID(mem []byte, outPtr, outLenPtr uint32, id types.AccountID, weight gas.Weight) ([]uint32, error) {
	if err := h.frame.gasMeter.Charge(weight); err != nil {
		return nil, err
	}
	if err := writeOutput(mem, outPtr, outLenPtr, id.Bytes()); err != nil {
		return nil, err
	}
	return nil, nil
}

// utf8Valid reports whether b is well-formed UTF-8, used by debug_message.
func utf8Valid(b []byte) bool { return utf8.Valid(b) }
