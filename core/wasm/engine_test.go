package wasm

import (
	"errors"
	"testing"

	"github.com/eth2030/eth2030-contracts/core/codecache"
	"github.com/eth2030/eth2030-contracts/core/config"
	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
	"github.com/eth2030/eth2030-contracts/core/wasm/wasmtest"
)

type stubHost struct {
	calls []string
	arity map[string][2]int
	ret   map[string][]uint32
}

func (h *stubHost) CallHost(name string, mem []byte, args []uint32) ([]uint32, error) {
	h.calls = append(h.calls, name)
	return h.ret[name], nil
}

func (h *stubHost) HostArity(name string) (int, int, bool) {
	a, ok := h.arity[name]
	if !ok {
		return 0, 0, false
	}
	return a[0], a[1], ok
}

func mustParse(t *testing.T, code []byte) *codecache.Module {
	t.Helper()
	m, err := codecache.Parse(code, uint32(len(code))+1)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return m
}

func TestRunLocalArithmetic(t *testing.T) {
	var body []byte
	body = append(body, opI32Const)
	body = wasmtest.AppendSLEB128(body, 5)
	body = append(body, opLocalSet)
	body = wasmtest.AppendLEB128(body, 0)
	body = append(body, opLocalGet)
	body = wasmtest.AppendLEB128(body, 0)
	body = append(body, opI32Const)
	body = wasmtest.AppendSLEB128(body, 3)
	body = append(body, opI32Add)

	code := wasmtest.Module(nil, "call", 1, body)
	m := mustParse(t, code)

	meter := gas.NewRoot(gas.Weight{RefTime: 10_000, ProofSize: 10_000})
	st := NewState(m, nil, &stubHost{}, meter, config.DefaultSchedule().Instructions, 1)
	out, err := st.Run("call")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 4 || out[0] != 8 {
		t.Fatalf("result = %v, want [8 0 0 0]", out)
	}
}

func TestRunDispatchesImportToHost(t *testing.T) {
	body := []byte{opCall}
	body = wasmtest.AppendLEB128(body, 0) // call imported function index 0

	code := wasmtest.Module([]string{"seal_caller"}, "call", 0, body)
	m := mustParse(t, code)

	host := &stubHost{
		arity: map[string][2]int{"seal_caller": {0, 0}},
	}
	meter := gas.NewRoot(gas.Weight{RefTime: 10_000, ProofSize: 10_000})
	st := NewState(m, nil, host, meter, config.DefaultSchedule().Instructions, 1)
	if _, err := st.Run("call"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(host.calls) != 1 || host.calls[0] != "seal_caller" {
		t.Fatalf("host calls = %v, want [seal_caller]", host.calls)
	}
}

func TestRunUnreachableTraps(t *testing.T) {
	body := []byte{opUnreachable}
	code := wasmtest.Module(nil, "call", 0, body)
	m := mustParse(t, code)

	meter := gas.NewRoot(gas.Weight{RefTime: 10_000, ProofSize: 10_000})
	st := NewState(m, nil, &stubHost{}, meter, config.DefaultSchedule().Instructions, 1)
	_, err := st.Run("call")
	if !errors.Is(err, types.ErrContractTrapped) {
		t.Fatalf("expected ContractTrapped, got %v", err)
	}
}
