// Package executor implements the Execution Stack: the nested call-frame
// engine that wires together every leaf component (Gas Meter, Storage
// Deposit Meter, Code Cache, Contract Storage, Deletion Queue, Address
// Generator) into the six dispatchable operations and the read-only
// dry-run API.
package executor

import (
	"fmt"
	"sync"

	"github.com/eth2030/eth2030-contracts/core/address"
	"github.com/eth2030/eth2030-contracts/core/codecache"
	"github.com/eth2030/eth2030-contracts/core/config"
	"github.com/eth2030/eth2030-contracts/core/deletionqueue"
	"github.com/eth2030/eth2030-contracts/core/deposit"
	"github.com/eth2030/eth2030-contracts/core/storage"
	"github.com/eth2030/eth2030-contracts/core/types"
	"github.com/eth2030/eth2030-contracts/log"
)

// account is the executor's in-memory record: a plain account has a nil
// info; a contract account's info is non-nil.
type account struct {
	balance *types.Balance
	info    *types.ContractInfo
}

// Executor owns every piece of persisted and runtime state the Execution
// Stack touches; mutation flows through the journaled overlay and only a
// root-frame commit makes it permanent.
type Executor struct {
	mu sync.Mutex

	schedule  config.Schedule
	codecache *codecache.Cache
	storage   *storage.Store
	deletion  *deletionqueue.Queue
	nonces    *address.NonceAllocator
	addrGen   address.AddressGenerator

	accounts map[types.AccountID]*account

	journal       *journal
	frames        []*Frame
	scratchEvents []types.Event // overlay events, journaled, folded into Events on root commit

	// Events is the persisted event ledger: only appended to when a root
	// frame (or root-level dispatchable) completes successfully.
	Events []types.Event

	existentialDeposit *types.Balance

	randomness RandomSource

	// blockNumber/timestamp are set by the outer state-transition function
	// ahead of each block's extrinsics.
	blockNumber uint64
	timestamp   uint64

	log *log.Logger
}

// SetBlockInfo updates the block number and timestamp exposed to contracts
// via seal_block_number/seal_now, called once by the outer state-transition
// function at the start of each block.
func (ex *Executor) SetBlockInfo(blockNumber, timestamp uint64) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.blockNumber = blockNumber
	ex.timestamp = timestamp
}

// NewExecutor constructs an Executor, running the Schedule's startup
// integrity check first.
func NewExecutor(schedule config.Schedule, logger *log.Logger) (*Executor, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		schedule:           schedule,
		codecache:          codecache.New(logger),
		storage:            storage.New(),
		deletion:           deletionqueue.New(int(schedule.DeletionQueueDepth)),
		nonces:             address.NewNonceAllocator(0),
		addrGen:            address.DefaultAddressGenerator{},
		accounts:           make(map[types.AccountID]*account),
		journal:            &journal{},
		existentialDeposit: new(types.Balance).SetUint64(1),
		randomness:         deterministicRandomSource{},
		log:                logger.Module("executor"),
	}, nil
}

// SetAddressGenerator overrides the Address Generator the dispatchables
// use, so the surrounding chain can supply its own address scheme without
// this package knowing about it.
func (ex *Executor) SetAddressGenerator(gen address.AddressGenerator) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if gen != nil {
		ex.addrGen = gen
	}
}

// SetRandomSource overrides the randomness oracle seal_random draws from;
// tests substitute a fixed source to assert against known output.
func (ex *Executor) SetRandomSource(src RandomSource) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.randomness = src
}

// CreditBalance stands in for the chain's currency module. It funds an
// account outright, used by genesis setup and tests; it is not reachable
// from within the Execution Stack itself.
func (ex *Executor) CreditBalance(id types.AccountID, amount *types.Balance) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	a := ex.ensureAccount(id)
	a.balance = new(types.Balance).Add(a.balance, amount)
}

// BalanceOf returns account's current balance, zero if unknown.
func (ex *Executor) BalanceOf(id types.AccountID) *types.Balance {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if a, ok := ex.accounts[id]; ok {
		return new(types.Balance).Set(a.balance)
	}
	return types.ZeroBalance()
}

// ContractInfoOf returns the persisted ContractInfo for id, if any.
func (ex *Executor) ContractInfoOf(id types.AccountID) (types.ContractInfo, bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	a, ok := ex.accounts[id]
	if !ok || a.info == nil {
		return types.ContractInfo{}, false
	}
	return *a.info, true
}

func (ex *Executor) ensureAccount(id types.AccountID) *account {
	a, ok := ex.accounts[id]
	if ok {
		return a
	}
	a = &account{balance: types.ZeroBalance()}
	ex.accounts[id] = a
	ex.journal.append(accountCreatedEntry{account: id})
	return a
}

func (ex *Executor) setBalance(id types.AccountID, next *types.Balance) {
	a := ex.ensureAccount(id)
	ex.journal.append(balanceChangeEntry{account: id, prev: a.balance})
	a.balance = next
}

func (ex *Executor) setContractInfo(id types.AccountID, info *types.ContractInfo) {
	a := ex.ensureAccount(id)
	ex.journal.append(contractInfoChangeEntry{account: id, prev: a.info})
	a.info = info
}

// transfer moves value from -> to, journaled, respecting the existential
// deposit on the sender.
func (ex *Executor) transfer(from, to types.AccountID, value *types.Balance) error {
	fromAcc := ex.ensureAccount(from)
	if fromAcc.balance.Cmp(value) < 0 {
		return types.ErrTransferFailed
	}
	remaining := new(types.Balance).Sub(fromAcc.balance, value)
	if remaining.Sign() > 0 && remaining.Cmp(ex.existentialDeposit) < 0 {
		return fmt.Errorf("%w: sender balance would fall below existential deposit", types.ErrTransferFailed)
	}
	ex.setBalance(from, remaining)
	toAcc := ex.ensureAccount(to)
	ex.setBalance(to, new(types.Balance).Add(toAcc.balance, value))
	return nil
}

// emit records an event into the current root call's scratch overlay; it
// only becomes externally observable if that root call commits.
func (ex *Executor) emit(e types.Event) {
	ex.journal.append(eventChangeEntry{prevLen: len(ex.scratchEvents)})
	ex.scratchEvents = append(ex.scratchEvents, e)
}

// addCodeUser / removeCodeUser wrap Cache.AddUser/RemoveUser with a journal
// entry so a reverted frame also reverts the refcount bump.
func (ex *Executor) addCodeUser(codeHash types.Hash) error {
	if err := ex.codecache.AddUser(codeHash); err != nil {
		return err
	}
	ex.journal.append(codeUserChangeEntry{codeHash: codeHash, added: true})
	return nil
}

func (ex *Executor) removeCodeUser(codeHash types.Hash) error {
	if err := ex.codecache.RemoveUser(codeHash); err != nil {
		return err
	}
	ex.journal.append(codeUserChangeEntry{codeHash: codeHash, added: false})
	return nil
}

// applyDepositDelta settles a finished root deposit meter's net delta
// against origin's balance: a net charge
// reserves balance (failing StorageDepositNotEnoughFunds if the origin can't
// afford it), a net refund returns it.
func (ex *Executor) applyDepositDelta(origin types.AccountID, m *deposit.Meter) error {
	amount, isCharge := m.NetDelta()
	if amount.Sign() == 0 {
		return nil
	}
	a := ex.ensureAccount(origin)
	if isCharge {
		if a.balance.Cmp(amount) < 0 {
			return types.ErrStorageDepositNotEnoughFunds
		}
		ex.setBalance(origin, new(types.Balance).Sub(a.balance, amount))
	} else {
		ex.setBalance(origin, new(types.Balance).Add(a.balance, amount))
	}
	return nil
}

// withRootTransaction runs fn under a fresh journal checkpoint, committing
// (flushing scratchEvents into the persisted Events ledger) on success or
// reverting the entire journal on failure -- the root-level analogue of a
// frame's own commit/rollback, applied to a dispatchable that has no
// parent frame of its own.
func (ex *Executor) withRootTransaction(fn func() error) error {
	snap := ex.journal.snapshot()
	err := fn()
	if err != nil {
		ex.journal.revertTo(ex, snap)
		return err
	}
	ex.Events = append(ex.Events, ex.scratchEvents...)
	ex.scratchEvents = nil
	ex.journal.reset()
	return nil
}
