package executor

import (
	"testing"

	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
	"github.com/eth2030/eth2030-contracts/core/wasm/wasmtest"
)

// TestTailCallPreservesCallDepth builds two contracts: callee writes a marker
// word to its own memory and returns, caller's `call` export seal_calls it
// with the TailCall flag set. The executor's CallStackDepth is pinned to 0
// (bypassing config.Schedule.Validate's nonzero requirement the way this
// package's other tests reach past it) so the depth check trips on the very
// first frame pushed on top of the caller's own -- the TailCall branch must
// pop the caller's frame before pushing the callee's for the callee to
// ever run at all. A leftover caller frame would make the nested push fail with
// ErrMaxCallDepthReached, which seal_call reports as a recoverable status
// word rather than the callee's real output, so reading the callee's marker
// back out of the root Call's result proves the depth budget wasn't spent.
func TestTailCallPreservesCallDepth(t *testing.T) {
	ex := newTestExecutor(t)
	deployer := fundedAccount(t, ex, "deployer", 1_000_000)
	gasLimit := gas.Weight{RefTime: 10_000_000, ProofSize: 10_000_000}
	depositLimit := new(types.Balance).SetUint64(1_000_000)

	const marker = int32(0x5A5A5A5A)

	var calleeBody []byte
	calleeBody = append(calleeBody, 0x41) // i32.const 0 (store address)
	calleeBody = wasmtest.AppendSLEB128(calleeBody, 0)
	calleeBody = append(calleeBody, 0x41) // i32.const marker
	calleeBody = wasmtest.AppendSLEB128(calleeBody, marker)
	calleeBody = append(calleeBody, 0x36) // i32.store
	calleeBody = wasmtest.AppendLEB128(calleeBody, 0)
	calleeBody = wasmtest.AppendLEB128(calleeBody, 0)
	calleeCode := wasmtest.ModuleMultiExport(nil, []string{"deploy", "call"}, 0, calleeBody)

	calleeAddr, _, reverted, err := ex.InstantiateWithCode(deployer, types.ZeroBalance(), gasLimit, depositLimit, calleeCode, nil, []byte("tailcall-callee"), types.Deterministic)
	if err != nil {
		t.Fatalf("instantiate callee: %v", err)
	}
	if reverted {
		t.Fatal("unexpected revert instantiating callee")
	}
	calleeBytes := calleeAddr.Bytes()

	var body []byte
	push := func(v int32) {
		body = append(body, 0x41) // i32.const
		body = wasmtest.AppendSLEB128(body, v)
	}
	for i := 0; i < 8; i++ {
		word := uint32(calleeBytes[i*4]) | uint32(calleeBytes[i*4+1])<<8 | uint32(calleeBytes[i*4+2])<<16 | uint32(calleeBytes[i*4+3])<<24
		push(int32(i * 4))
		push(int32(word))
		body = append(body, 0x36) // i32.store
		body = wasmtest.AppendLEB128(body, 0)
		body = wasmtest.AppendLEB128(body, 0)
	}

	push(int32(callFlagTailCall))
	push(0)       // destPtr: callee address just written at offset 0
	push(100_000) // gasRefTime
	push(100_000) // gasProofSize
	push(-1)      // valuePtr SENTINEL: no transfer
	push(0)       // inputPtr
	push(0)       // inputLen
	push(-1)      // outPtr SENTINEL: TailCall ignores it
	push(-1)      // outLenPtr SENTINEL
	body = append(body, 0x10) // call
	body = wasmtest.AppendLEB128(body, 0) // import 0: seal_call

	code := wasmtest.ModuleMultiExport([]string{"seal_call"}, []string{"deploy", "call"}, 0, body)

	addr, _, reverted, err := ex.InstantiateWithCode(deployer, types.ZeroBalance(), gasLimit, depositLimit, code, nil, []byte("tailcall-caller"), types.Deterministic)
	if err != nil {
		t.Fatalf("instantiate caller: %v", err)
	}
	if reverted {
		t.Fatal("unexpected revert instantiating caller")
	}

	ex.schedule.CallStackDepth = 0

	out, reverted, err := ex.Call(deployer, addr, types.ZeroBalance(), gasLimit, depositLimit, nil, types.Deterministic)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if reverted {
		t.Fatal("unexpected revert on tail call")
	}
	if len(ex.frames) != 0 {
		t.Fatalf("frames left over after tail call: %d, want 0", len(ex.frames))
	}
	if len(out) < 4 {
		t.Fatalf("output too short: %d bytes, want at least 4", len(out))
	}
	got := uint32(out[0]) | uint32(out[1])<<8 | uint32(out[2])<<16 | uint32(out[3])<<24
	if got != uint32(marker) {
		t.Fatalf("output[:4] = %#x, want callee's marker %#x (callee never ran: the tail call spent the depth budget instead of preserving it)", got, uint32(marker))
	}
}
