// Package address implements the Address Generator: a pure function from
// (deployer, code_hash, input, salt) to an account id, plus the trie id
// allocator used at instantiation time.
package address

import (
	"encoding/binary"

	"github.com/eth2030/eth2030-contracts/core/types"
	"github.com/eth2030/eth2030-contracts/crypto"
)

// Derive computes the deterministic contract address:
// H("contract_addr_v1" || deployer || code_hash || input || salt).
func Derive(deployer types.AccountID, codeHash types.Hash, input, salt []byte) types.AccountID {
	return crypto.DeriveContractAddress(deployer, codeHash, input, salt)
}

// AddressGenerator is the pluggability point for address derivation: the
// surrounding chain can swap in its own address scheme without touching the
// Execution Stack that calls it.
type AddressGenerator interface {
	Generate(deployer types.AccountID, codeHash types.Hash, input, salt []byte) types.AccountID
}

// DefaultAddressGenerator is the stock AddressGenerator, computing the
// standard formula via Derive.
type DefaultAddressGenerator struct{}

// Generate implements AddressGenerator.
func (DefaultAddressGenerator) Generate(deployer types.AccountID, codeHash types.Hash, input, salt []byte) types.AccountID {
	return Derive(deployer, codeHash, input, salt)
}

// NonceAllocator is the process-wide, persisted, strictly-monotonic
// counter behind trie id derivation (a block-number counter would collide
// across multiple creations/destructions within one block).
type NonceAllocator struct {
	next uint64
}

// NewNonceAllocator constructs an allocator starting from the persisted
// nonce value (0 for a fresh chain).
func NewNonceAllocator(persisted uint64) *NonceAllocator {
	return &NonceAllocator{next: persisted}
}

// Current returns the next nonce to be allocated, for persistence.
func (n *NonceAllocator) Current() uint64 { return n.next }

// Reset rewinds the allocator to a previously observed value, undoing the
// allocations made since. The nonce counter isn't journaled like ordinary
// state, since it indexes trie ids rather than observable account state;
// dry-run calls snapshot Current() and Reset it back after running so a
// discarded speculative instantiate doesn't burn a nonce forever.
func (n *NonceAllocator) Reset(to uint64) { n.next = to }

// TrieID allocates a fresh trie id for account, derived as
// hash(account_id || nonce), and advances the nonce.
func (n *NonceAllocator) TrieID(account types.AccountID) []byte {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], n.next)
	n.next++
	h := crypto.Keccak256(account.Bytes(), nonceBytes[:])
	return h
}
