package codecache

import (
	"errors"
	"testing"

	"github.com/eth2030/eth2030-contracts/core/gas"
	"github.com/eth2030/eth2030-contracts/core/types"
	"github.com/eth2030/eth2030-contracts/core/wasm/wasmtest"
	"github.com/eth2030/eth2030-contracts/crypto"
)

type fakeDepositMeter struct {
	charged *types.Balance
	fail    error
}

func (m *fakeDepositMeter) Charge(amount *types.Balance) error {
	if m.fail != nil {
		return m.fail
	}
	m.charged = amount
	return nil
}

func testModule() []byte {
	return wasmtest.ModuleMultiExport(nil, []string{"call"}, 0, nil)
}

func owner() types.AccountID { return types.BytesToAccountID([]byte("owner")) }

func TestUploadIsIdempotent(t *testing.T) {
	c := New(nil)
	code := testModule()
	dm := &fakeDepositMeter{}

	h1, err := c.Upload(owner(), code, types.Deterministic, uint32(len(code))+1, 1, 1, dm)
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	firstCharge := dm.charged

	dm2 := &fakeDepositMeter{}
	h2, err := c.Upload(owner(), code, types.Deterministic, uint32(len(code))+1, 1, 1, dm2)
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash changed across idempotent uploads: %x vs %x", h1, h2)
	}
	if dm2.charged != nil {
		t.Fatal("second upload should not reserve a deposit")
	}
	if firstCharge == nil || firstCharge.Sign() == 0 {
		t.Fatal("first upload should have reserved a non-zero deposit")
	}
}

func TestUploadRejectsOversizedCode(t *testing.T) {
	c := New(nil)
	code := testModule()
	_, err := c.Upload(owner(), code, types.Deterministic, uint32(len(code))-1, 1, 1, &fakeDepositMeter{})
	if !errors.Is(err, types.ErrCodeTooLarge) {
		t.Fatalf("err = %v, want CodeTooLarge", err)
	}
}

func TestUploadRejectsFloatInstructionsInDeterministicCode(t *testing.T) {
	c := New(nil)
	// f32.const 0 followed by drop.
	body := []byte{0x43, 0x00, 0x00, 0x00, 0x00, 0x1A}
	code := wasmtest.ModuleMultiExport(nil, []string{"call"}, 0, body)

	_, err := c.Upload(owner(), code, types.Deterministic, uint32(len(code))+1, 1, 1, &fakeDepositMeter{})
	if !errors.Is(err, types.ErrCodeRejected) {
		t.Fatalf("err = %v, want CodeRejected for a float instruction", err)
	}
	if _, ok := c.Determinism(crypto.Keccak256Hash(code)); ok {
		t.Fatal("rejected module must not be cached")
	}

	// The same bytes are admissible when tagged AllowIndeterminism.
	if _, err := c.Upload(owner(), code, types.AllowIndeterminism, uint32(len(code))+1, 1, 1, &fakeDepositMeter{}); err != nil {
		t.Fatalf("AllowIndeterminism upload: %v", err)
	}
}

func TestUploadRejectsSIMDAndAtomicInstructions(t *testing.T) {
	c := New(nil)
	for _, prefix := range []byte{0xFD, 0xFE} {
		code := wasmtest.ModuleMultiExport(nil, []string{"call"}, 0, []byte{prefix, 0x00})
		_, err := c.Upload(owner(), code, types.Deterministic, uint32(len(code))+1, 1, 1, &fakeDepositMeter{})
		if !errors.Is(err, types.ErrCodeRejected) {
			t.Fatalf("prefix %#x: err = %v, want CodeRejected", prefix, err)
		}
	}
}

func TestAddRemoveUserRefcount(t *testing.T) {
	c := New(nil)
	code := testModule()
	hash, err := c.Upload(owner(), code, types.Deterministic, uint32(len(code))+1, 1, 1, &fakeDepositMeter{})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := c.AddUser(hash); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if rc, _ := c.Refcount(hash); rc != 1 {
		t.Fatalf("refcount = %d, want 1", rc)
	}
	if err := c.RemoveUser(hash); err != nil {
		t.Fatalf("RemoveUser: %v", err)
	}
	if rc, _ := c.Refcount(hash); rc != 0 {
		t.Fatalf("refcount = %d, want 0", rc)
	}
}

func TestRemoveFailsWhileInUse(t *testing.T) {
	c := New(nil)
	code := testModule()
	hash, _ := c.Upload(owner(), code, types.Deterministic, uint32(len(code))+1, 1, 1, &fakeDepositMeter{})
	if err := c.AddUser(hash); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if _, err := c.Remove(owner(), hash); !errors.Is(err, types.ErrCodeInUse) {
		t.Fatalf("err = %v, want CodeInUse", err)
	}
}

func TestRemoveFailsForNonOwner(t *testing.T) {
	c := New(nil)
	code := testModule()
	hash, _ := c.Upload(owner(), code, types.Deterministic, uint32(len(code))+1, 1, 1, &fakeDepositMeter{})
	stranger := types.BytesToAccountID([]byte("stranger"))
	if _, err := c.Remove(stranger, hash); !errors.Is(err, types.ErrCodeInUse) {
		t.Fatalf("err = %v, want CodeInUse", err)
	}
}

func TestRemoveRefundsDeposit(t *testing.T) {
	c := New(nil)
	code := testModule()
	dm := &fakeDepositMeter{}
	hash, _ := c.Upload(owner(), code, types.Deterministic, uint32(len(code))+1, 3, 1, dm)
	refund, err := c.Remove(owner(), hash)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if refund.Cmp(dm.charged) != 0 {
		t.Fatalf("refund = %s, want %s", refund, dm.charged)
	}
	if _, ok := c.Determinism(hash); ok {
		t.Fatal("entry should no longer exist after removal")
	}
}

func TestLoadReinstrumentsOnStaleVersion(t *testing.T) {
	c := New(nil)
	code := testModule()
	hash, _ := c.Upload(owner(), code, types.Deterministic, uint32(len(code))+1, 1, 1, &fakeDepositMeter{})

	meter := gas.NewRoot(gas.Weight{RefTime: 1_000_000, ProofSize: 1_000_000})
	m1, err := c.Load(hash, 1, gas.Weight{RefTime: 1, ProofSize: 1}, meter)
	if err != nil {
		t.Fatalf("Load v1: %v", err)
	}
	before := meter.Consumed()

	m2, err := c.Load(hash, 2, gas.Weight{RefTime: 1, ProofSize: 1}, meter)
	if err != nil {
		t.Fatalf("Load v2: %v", err)
	}
	if meter.Consumed() == before {
		t.Fatal("expected Load to charge gas again on the second call")
	}
	if m1 == m2 {
		t.Fatal("expected a freshly instrumented module on stale-version load")
	}
	if _, ok := m2.Exports["call"]; !ok {
		t.Fatal("reinstrumented module lost its export table")
	}
}

func TestLoadUnknownCodeFails(t *testing.T) {
	c := New(nil)
	meter := gas.NewRoot(gas.Weight{RefTime: 1000, ProofSize: 1000})
	_, err := c.Load(types.Hash{}, 1, gas.Weight{RefTime: 1, ProofSize: 1}, meter)
	if !errors.Is(err, types.ErrCodeNotFound) {
		t.Fatalf("err = %v, want CodeNotFound", err)
	}
}
