// Package storage implements the Contract Storage component: a
// per-contract trie, identified by trie_id, mapping bounded-length keys to
// byte values. It is deliberately a thin key/value primitive; journaling
// and deposit accounting live in package executor.
package storage

import (
	"sync"
)

// Store holds every contract's trie, keyed by trie_id.
type Store struct {
	mu    sync.Mutex
	tries map[string]map[string][]byte
}

// New constructs an empty Store.
func New() *Store {
	return &Store{tries: make(map[string]map[string][]byte)}
}

func (s *Store) trie(trieID []byte) map[string][]byte {
	k := string(trieID)
	t, ok := s.tries[k]
	if !ok {
		t = make(map[string][]byte)
		s.tries[k] = t
	}
	return t
}

// Get reads key from the trie identified by trieID.
func (s *Store) Get(trieID, key []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tries[string(trieID)][string(key)]
	return v, ok
}

// Contains reports whether key is present in the trie.
func (s *Store) Contains(trieID, key []byte) bool {
	_, ok := s.Get(trieID, key)
	return ok
}

// Set writes value at key, returning the previous value (for journaling)
// and whether it existed before the write.
func (s *Store) Set(trieID, key, value []byte) (prev []byte, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trie(trieID)
	prev, existed = t[string(key)]
	cp := append([]byte(nil), value...)
	t[string(key)] = cp
	return prev, existed
}

// Take removes key, returning the previous value and whether it existed.
func (s *Store) Take(trieID, key []byte) (prev []byte, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trie(trieID)
	prev, existed = t[string(key)]
	delete(t, string(key))
	return prev, existed
}

// Restore is used by the journal to undo a Set/Take: it writes value back
// at key if existed is true, or deletes key if existed is false.
func (s *Store) Restore(trieID, key, value []byte, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trie(trieID)
	if existed {
		t[string(key)] = value
	} else {
		delete(t, string(key))
	}
}

// DeleteTrie drops an entire trie (used when the Deletion Queue purges a
// terminated contract's storage).
func (s *Store) DeleteTrie(trieID []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tries, string(trieID))
}

// DrainTrie deletes up to maxItems keys from the trie, returning how many
// were removed and whether the trie is now empty. Used by the Deletion Queue
// to purge in weight-bounded batches.
func (s *Store) DrainTrie(trieID []byte, maxItems int) (removed int, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tries[string(trieID)]
	if !ok {
		return 0, true
	}
	for k := range t {
		if removed >= maxItems {
			break
		}
		delete(t, k)
		removed++
	}
	if len(t) == 0 {
		delete(s.tries, string(trieID))
		return removed, true
	}
	return removed, false
}

// Len returns the number of items currently stored in trieID, for tests
// and invariant checks.
func (s *Store) Len(trieID []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tries[string(trieID)])
}

// ByteLen computes sum(len(key)+len(value)) over trieID, for invariant
// checks against ContractInfo.StorageBytes.
func (s *Store) ByteLen(trieID []byte) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total uint64
	for k, v := range s.tries[string(trieID)] {
		total += uint64(len(k) + len(v))
	}
	return total
}

// KeyTooLong reports whether key exceeds the configured MaxStorageKeyLen.
func KeyTooLong(key []byte, maxLen uint32) bool {
	return uint32(len(key)) > maxLen
}
