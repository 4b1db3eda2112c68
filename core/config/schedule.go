// Package config holds the executor's tunable constants: the Schedule of
// instruction/host-function weights and the resource limits
// (DeletionQueueDepth, DepositPerByte, MaxCodeLen, ...), a plain struct
// with a Default constructor and an explicit integrity check run once at
// startup.
package config

import (
	"fmt"

	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
)

// ErrInvalidScheduleVersion re-exports the shared Governance-kind sentinel
// (core/types) so callers checking a config error don't need a second import.
var ErrInvalidScheduleVersion = types.ErrInvalidScheduleVersion

// InstructionWeights prices the Wasm instruction categories the interpreter
// charges for, expressed as a two-dimensional gas.Weight rather than a
// flat uint64 so proof-size accrues alongside compute time.
type InstructionWeights struct {
	Version  uint32
	Base     gas.Weight // nop, const, drop, select
	Local    gas.Weight // local.get / local.set
	Control  gas.Weight // block, loop, br, br_if, end
	Call     gas.Weight // call
	Memory   gas.Weight // i32.load / i32.store, charged per word touched
	Arith    gas.Weight // binary arithmetic/comparison ops
}

// HostFnWeights prices each seal_* host call, charged before the
// call's effect takes place.
type HostFnWeights struct {
	Caller            gas.Weight
	Address           gas.Weight
	IsContract        gas.Weight
	CodeHash          gas.Weight
	OwnCodeHash       gas.Weight
	CallerIsOrigin    gas.Weight
	BlockNumber       gas.Weight
	Now               gas.Weight
	MinimumBalance    gas.Weight
	WeightToFee       gas.Weight
	Transfer          gas.Weight
	Call              gas.Weight
	Instantiate       gas.Weight
	DelegateCall      gas.Weight
	Terminate         gas.Weight
	SetStorage        gas.Weight
	GetStorage        gas.Weight
	ClearStorage      gas.Weight
	ContainsStorage   gas.Weight
	TakeStorage       gas.Weight
	DepositEvent      gas.Weight
	Random            gas.Weight
	DebugMessage      gas.Weight
	Return            gas.Weight
	ChainExtension    gas.Weight
	PerByteStorageKey gas.Weight // additional charge per byte of a variable-length storage key
	PerByteInput      gas.Weight // additional charge per byte of call input/output copied
}

// Schedule bundles the executor's configurable constants.
type Schedule struct {
	Version uint32

	Instructions InstructionWeights
	HostFns      HostFnWeights

	// Memory/stack limits.
	MaxMemoryPages uint32
	StackBytes     uint64
	HeapBytes      uint64

	CallStackDepth uint32 // D in the integrity check

	DeletionQueueDepth  uint32
	DeletionWeightLimit gas.Weight

	DepositPerByte uint64
	DepositPerItem uint64

	// PerByteCodeDecode prices Code Cache decode/reinstrument cost,
	// distinct from the per-byte storage-key/input prices above.
	PerByteCodeDecode gas.Weight

	MaxCodeLen          uint32
	MaxStorageKeyLen    uint32
	MaxStorageValueLen  uint32
	MaxDebugBufferLen   uint32
	MaxTopics           uint32
	MaxRandomSubjectLen uint32

	UnsafeUnstableInterface bool
}

// DefaultSchedule returns a Schedule with conservative, documented
// defaults.
func DefaultSchedule() Schedule {
	w := func(ref, proof uint64) gas.Weight { return gas.Weight{RefTime: ref, ProofSize: proof} }
	return Schedule{
		Version: 1,
		Instructions: InstructionWeights{
			Version: 1,
			Base:    w(1, 0),
			Local:   w(2, 0),
			Control: w(2, 0),
			Call:    w(10, 8),
			Memory:  w(5, 4),
			Arith:   w(3, 0),
		},
		HostFns: HostFnWeights{
			Caller:            w(100, 0),
			Address:           w(100, 0),
			IsContract:        w(200, 16),
			CodeHash:          w(200, 32),
			OwnCodeHash:       w(150, 32),
			CallerIsOrigin:    w(100, 0),
			BlockNumber:       w(100, 0),
			Now:               w(100, 0),
			MinimumBalance:    w(100, 0),
			WeightToFee:       w(200, 0),
			Transfer:          w(500, 32),
			Call:              w(1_000, 64),
			Instantiate:       w(2_000, 128),
			DelegateCall:      w(1_000, 64),
			Terminate:         w(2_000, 64),
			SetStorage:        w(500, 64),
			GetStorage:        w(300, 64),
			ClearStorage:      w(500, 64),
			ContainsStorage:   w(200, 32),
			TakeStorage:       w(500, 64),
			DepositEvent:      w(300, 16),
			Random:            w(300, 32),
			DebugMessage:      w(100, 0),
			Return:            w(50, 0),
			ChainExtension:    w(500, 32),
			PerByteStorageKey: w(1, 1),
			PerByteInput:      w(1, 1),
		},
		MaxMemoryPages:      16,
		StackBytes:          64 * 1024,
		HeapBytes:           1024 * 1024,
		CallStackDepth:      5,
		DeletionQueueDepth:  128,
		DeletionWeightLimit: w(500_000, 0),
		DepositPerByte:      1,
		DepositPerItem:      2,
		PerByteCodeDecode:   w(1, 1),
		MaxCodeLen:          512 * 1024,
		MaxStorageKeyLen:    128,
		MaxStorageValueLen:  16 * 1024,
		MaxDebugBufferLen:   2 * 1024 * 1024,
		MaxTopics:           4,
		MaxRandomSubjectLen: 32,
	}
}

// Validate runs the startup integrity assertion: with call stack
// depth D, heap H per contract, stack S per contract and a 16x Wasm expansion
// factor for code, (MaxCodeLen*72 + S + H)*D must stay under half of the
// assumed runtime memory budget, and the debug buffer must exceed 256 bytes.
// "72" = 16x code expansion plus the bookkeeping overhead observed for
// instrumented modules (~4.5x on top of the code growth, rounded up).
func (s Schedule) Validate() error {
	const maxRuntimeMem = 2 * 1024 * 1024 * 1024 // 2 GiB, conservative runtime ceiling
	perFrame := uint64(s.MaxCodeLen)*72 + s.StackBytes + s.HeapBytes
	total := perFrame * uint64(s.CallStackDepth)
	if total >= maxRuntimeMem/2 {
		return fmt.Errorf("%w: per-call-stack memory %d exceeds half of runtime budget", ErrInvalidScheduleVersion, total)
	}
	if s.MaxDebugBufferLen <= 256 {
		return fmt.Errorf("%w: debug buffer must exceed 256 bytes", ErrInvalidScheduleVersion)
	}
	if s.CallStackDepth == 0 {
		return fmt.Errorf("%w: call stack depth must be non-zero", ErrInvalidScheduleVersion)
	}
	return nil
}
