// journal.go implements the transactional overlay: a flat, append-only log
// of reversible mutations with snapshot/revert checkpoints. A single
// journal backs every frame on the Execution Stack rather than one overlay
// per frame: pushing a frame just
// records the journal length at that point, and "folding a successful
// frame's overlay into the parent" falls out for free because the entries
// are never removed, only reverted in reverse order on failure.
package executor

import "github.com/eth2030/eth2030-contracts/core/types"

// journalEntry is one reversible mutation: revert undoes exactly the
// mutation that produced it.
type journalEntry interface {
	revert(ex *Executor)
}

type journal struct {
	entries []journalEntry
}

func (j *journal) append(e journalEntry) {
	j.entries = append(j.entries, e)
}

// snapshot returns a checkpoint identifying the current journal length.
func (j *journal) snapshot() int { return len(j.entries) }

// revertTo undoes every entry recorded since id, in reverse order, and
// truncates the journal back to id.
func (j *journal) revertTo(ex *Executor, id int) {
	for i := len(j.entries) - 1; i >= id; i-- {
		j.entries[i].revert(ex)
	}
	j.entries = j.entries[:id]
}

// reset discards the entire journal -- safe only once a root frame has
// committed, since nothing beneath a committed root can ever be reverted.
func (j *journal) reset() { j.entries = j.entries[:0] }

// --- concrete entries -------------------------------------------------

type accountCreatedEntry struct {
	account types.AccountID
}

func (e accountCreatedEntry) revert(ex *Executor) {
	delete(ex.accounts, e.account)
}

type balanceChangeEntry struct {
	account types.AccountID
	prev    *types.Balance
}

func (e balanceChangeEntry) revert(ex *Executor) {
	if a, ok := ex.accounts[e.account]; ok {
		a.balance = e.prev
	}
}

type contractInfoChangeEntry struct {
	account types.AccountID
	prev    *types.ContractInfo // nil if the account was not yet a contract
}

func (e contractInfoChangeEntry) revert(ex *Executor) {
	if a, ok := ex.accounts[e.account]; ok {
		a.info = e.prev
	}
}

type storageChangeEntry struct {
	trieID  []byte
	key     []byte
	prev    []byte
	existed bool
}

func (e storageChangeEntry) revert(ex *Executor) {
	ex.storage.Restore(e.trieID, e.key, e.prev, e.existed)
}

type codeUserChangeEntry struct {
	codeHash types.Hash
	added    bool // true if this entry recorded an AddUser (revert = RemoveUser)
}

func (e codeUserChangeEntry) revert(ex *Executor) {
	if e.added {
		ex.codecache.RemoveUser(e.codeHash)
	} else {
		ex.codecache.AddUser(e.codeHash)
	}
}

type codeStoredEntry struct {
	codeHash types.Hash
}

func (e codeStoredEntry) revert(ex *Executor) {
	ex.codecache.Evict(e.codeHash)
}

type deletionQueuePushEntry struct{}

func (e deletionQueuePushEntry) revert(ex *Executor) {
	ex.deletion.PopTail()
}

type eventChangeEntry struct {
	prevLen int
}

func (e eventChangeEntry) revert(ex *Executor) {
	ex.scratchEvents = ex.scratchEvents[:e.prevLen]
}
