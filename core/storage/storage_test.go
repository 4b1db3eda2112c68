package storage

import "testing"

func TestSetGetRoundTrip(t *testing.T) {
	s := New()
	trie := []byte("trie-1")
	prev, existed := s.Set(trie, []byte("k"), []byte("v1"))
	if existed || prev != nil {
		t.Fatalf("first set: existed=%v prev=%v, want false/nil", existed, prev)
	}
	v, ok := s.Get(trie, []byte("k"))
	if !ok || string(v) != "v1" {
		t.Fatalf("Get = %q, %v; want v1, true", v, ok)
	}

	prev, existed = s.Set(trie, []byte("k"), []byte("v2"))
	if !existed || string(prev) != "v1" {
		t.Fatalf("overwrite: existed=%v prev=%q, want true/v1", existed, prev)
	}
}

func TestTakeRemovesKey(t *testing.T) {
	s := New()
	trie := []byte("trie-1")
	s.Set(trie, []byte("k"), []byte("v"))
	prev, existed := s.Take(trie, []byte("k"))
	if !existed || string(prev) != "v" {
		t.Fatalf("Take = %q, %v; want v, true", prev, existed)
	}
	if s.Contains(trie, []byte("k")) {
		t.Fatal("key should no longer be present")
	}
	_, existed = s.Take(trie, []byte("k"))
	if existed {
		t.Fatal("second Take of an absent key should report not-existed")
	}
}

func TestRestoreUndoesSetAndTake(t *testing.T) {
	s := New()
	trie := []byte("trie-1")

	// Restore after a Set on a previously-absent key: undo means delete.
	prevBefore, existedBefore := s.Set(trie, []byte("k"), []byte("v1"))
	s.Restore(trie, []byte("k"), prevBefore, existedBefore)
	if s.Contains(trie, []byte("k")) {
		t.Fatal("restore should have undone the insert")
	}

	// Restore after overwriting an existing key: undo means put the old value back.
	s.Set(trie, []byte("k"), []byte("v1"))
	prevBefore, existedBefore = s.Set(trie, []byte("k"), []byte("v2"))
	s.Restore(trie, []byte("k"), prevBefore, existedBefore)
	v, ok := s.Get(trie, []byte("k"))
	if !ok || string(v) != "v1" {
		t.Fatalf("restore after overwrite = %q, %v; want v1, true", v, ok)
	}
}

func TestDrainTrieBatchesAndReportsEmpty(t *testing.T) {
	s := New()
	trie := []byte("trie-1")
	for i := 0; i < 5; i++ {
		s.Set(trie, []byte{byte(i)}, []byte("v"))
	}

	removed, empty := s.DrainTrie(trie, 3)
	if removed != 3 || empty {
		t.Fatalf("first drain: removed=%d empty=%v, want 3/false", removed, empty)
	}
	if s.Len(trie) != 2 {
		t.Fatalf("remaining = %d, want 2", s.Len(trie))
	}

	removed, empty = s.DrainTrie(trie, 10)
	if removed != 2 || !empty {
		t.Fatalf("second drain: removed=%d empty=%v, want 2/true", removed, empty)
	}
	if s.Len(trie) != 0 {
		t.Fatal("trie should be gone after fully draining")
	}
}

func TestDrainTrieOfUnknownTrieIsEmpty(t *testing.T) {
	s := New()
	removed, empty := s.DrainTrie([]byte("never-existed"), 10)
	if removed != 0 || !empty {
		t.Fatalf("removed=%d empty=%v, want 0/true", removed, empty)
	}
}

func TestByteLenSumsKeysAndValues(t *testing.T) {
	s := New()
	trie := []byte("trie-1")
	s.Set(trie, []byte("ab"), []byte("xyz"))
	if got := s.ByteLen(trie); got != 5 {
		t.Fatalf("ByteLen = %d, want 5", got)
	}
}

func TestKeyTooLong(t *testing.T) {
	if KeyTooLong([]byte("abc"), 3) {
		t.Fatal("key of exactly the max length should not be too long")
	}
	if !KeyTooLong([]byte("abcd"), 3) {
		t.Fatal("key exceeding the max length should be too long")
	}
}
