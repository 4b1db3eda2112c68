// Package types defines the data model shared by every component of the
// contract executor: account identifiers, balances, contract metadata, and
// the events emitted on successful root-frame commit.
package types

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// HashLength is the width, in bytes, of a code hash or storage key hash.
	HashLength = 32
	// AccountIDLength is the width, in bytes, of an AccountId.
	AccountIDLength = 32
	// MaxTrieIDLength bounds ContractInfo.TrieID.
	MaxTrieIDLength = 128
)

// Hash is a 32-byte digest, typically Keccak-256.
type Hash [HashLength]byte

// BytesToHash left-pads (or truncates from the left) b into a Hash.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte  { return h[:] }
func (h Hash) IsZero() bool   { return h == Hash{} }
func (h Hash) String() string { return fmt.Sprintf("0x%x", h[:]) }

// AccountID is an opaque, fixed-width account identifier.
type AccountID [AccountIDLength]byte

// BytesToAccountID copies b (keeping only its first AccountIDLength bytes if longer, zero-padded
// on the right if shorter) into an AccountID, the padding convention
// address derivation uses for its output.
func BytesToAccountID(b []byte) AccountID {
	var a AccountID
	if len(b) > AccountIDLength {
		b = b[:AccountIDLength]
	}
	copy(a[:], b)
	return a
}

func (a AccountID) Bytes() []byte  { return a[:] }
func (a AccountID) IsZero() bool   { return a == AccountID{} }
func (a AccountID) String() string { return fmt.Sprintf("0x%x", a[:]) }

// Balance is the chain's native-currency amount type. Transfers and stored
// balances use uint256; the deposit meter keeps its signed delta in math/big
// and converts to Balance at its boundary.
type Balance = uint256.Int

// ZeroBalance returns a fresh zero-valued Balance.
func ZeroBalance() *Balance { return new(uint256.Int) }

// Determinism tags uploaded code.
type Determinism uint8

const (
	Deterministic Determinism = iota
	AllowIndeterminism
)

func (d Determinism) String() string {
	if d == AllowIndeterminism {
		return "AllowIndeterminism"
	}
	return "Deterministic"
}

// OwnerInfo is the deposit/refcount record for one code hash.
type OwnerInfo struct {
	Owner       AccountID
	Deposit     *Balance
	Refcount    uint64
	Determinism Determinism
}

// ContractInfo is the persisted per-contract-account record.
type ContractInfo struct {
	TrieID             []byte // ≤ MaxTrieIDLength
	CodeHash           Hash
	StorageBytes       uint64
	StorageItems       uint32
	StorageByteDeposit *Balance
	StorageItemDeposit *Balance
}

// TotalDeposit returns StorageByteDeposit + StorageItemDeposit.
func (ci *ContractInfo) TotalDeposit() *Balance {
	return new(uint256.Int).Add(ci.StorageByteDeposit, ci.StorageItemDeposit)
}

// Event is emitted only on successful root-frame commit.
type Event struct {
	Name   string
	Fields map[string]any
}

// EventInstantiated builds the Instantiated{deployer,contract} event.
func EventInstantiated(deployer, contract AccountID) Event {
	return Event{Name: "Instantiated", Fields: map[string]any{"deployer": deployer, "contract": contract}}
}

// EventTerminated builds the Terminated{contract,beneficiary} event.
func EventTerminated(contract, beneficiary AccountID) Event {
	return Event{Name: "Terminated", Fields: map[string]any{"contract": contract, "beneficiary": beneficiary}}
}

// EventCodeStored builds the CodeStored{code_hash} event.
func EventCodeStored(codeHash Hash) Event {
	return Event{Name: "CodeStored", Fields: map[string]any{"code_hash": codeHash}}
}

// EventCodeRemoved builds the CodeRemoved{code_hash} event.
func EventCodeRemoved(codeHash Hash) Event {
	return Event{Name: "CodeRemoved", Fields: map[string]any{"code_hash": codeHash}}
}

// EventContractCodeUpdated builds the ContractCodeUpdated{contract,new,old} event.
func EventContractCodeUpdated(contract AccountID, newHash, oldHash Hash) Event {
	return Event{Name: "ContractCodeUpdated", Fields: map[string]any{"contract": contract, "new": newHash, "old": oldHash}}
}

// EventContractEmitted builds the ContractEmitted{contract,data} event, the
// wrapper around a contract's own deposit_event host call.
func EventContractEmitted(contract AccountID, topics []Hash, data []byte) Event {
	return Event{Name: "ContractEmitted", Fields: map[string]any{"contract": contract, "topics": topics, "data": data}}
}

// EventCalled builds the Called{caller,contract} event.
func EventCalled(caller, contract AccountID) Event {
	return Event{Name: "Called", Fields: map[string]any{"caller": caller, "contract": contract}}
}

// EventDelegateCalled builds the DelegateCalled{contract,code_hash} event.
func EventDelegateCalled(contract AccountID, codeHash Hash) Event {
	return Event{Name: "DelegateCalled", Fields: map[string]any{"contract": contract, "code_hash": codeHash}}
}
