// Package crypto provides the hashing primitives the executor needs: code
// hashing, trie id derivation, and deterministic contract address derivation.
package crypto

import (
	"golang.org/x/crypto/sha3"

	"github.com/eth2030/eth2030-contracts/core/types"
)

// Keccak256 calculates the Keccak-256 hash of the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as a types.Hash.
func Keccak256Hash(data ...[]byte) types.Hash {
	return types.BytesToHash(Keccak256(data...))
}

// contractAddrSalt is the domain-separation prefix for address derivation:
// address = H("contract_addr_v1" || deployer || code_hash || input || salt).
const contractAddrSalt = "contract_addr_v1"

// DeriveContractAddress is the pure address-derivation function
// (also used internally by the Address Generator component). Exported here
// because it has no dependency beyond hashing, and callers in tests want to
// recompute the expected address without constructing an executor.
func DeriveContractAddress(deployer types.AccountID, codeHash types.Hash, input, salt []byte) types.AccountID {
	digest := Keccak256([]byte(contractAddrSalt), deployer.Bytes(), codeHash.Bytes(), input, salt)
	return types.BytesToAccountID(digest)
}
