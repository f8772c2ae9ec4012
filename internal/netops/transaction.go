package netops

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/mavleo96/ledger-partition/internal/ter"
	"github.com/mavleo96/ledger-partition/internal/txn"
)

// Status is the processing status of a tracked transaction
type Status int

const (
	StatusNew Status = iota
	StatusInvalid
	StatusIncluded
	StatusConflicted
	StatusCommitted
	StatusHeld
	StatusObsolete
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusInvalid:
		return "INVALID"
	case StatusIncluded:
		return "INCLUDED"
	case StatusConflicted:
		return "CONFLICTED"
	case StatusCommitted:
		return "COMMITTED"
	case StatusHeld:
		return "HELD"
	case StatusObsolete:
		return "OBSOLETE"
	default:
		return "UNKNOWN"
	}
}

// Transaction tracks an envelope through the submission engine
type Transaction struct {
	mutex  sync.RWMutex
	env    *txn.Envelope
	status Status
	result ter.Code
}

// Envelope returns the tracked envelope
func (t *Transaction) Envelope() *txn.Envelope {
	return t.env
}

// ID returns the id of the tracked transaction
func (t *Transaction) ID() common.Hash {
	return t.env.ID()
}

// GetStatus returns the processing status
func (t *Transaction) GetStatus() Status {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.status
}

// SetStatus sets the processing status
func (t *Transaction) SetStatus(status Status) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.status = status
}

// GetResult returns the engine result, temUNCERTAIN until one is known
func (t *Transaction) GetResult() ter.Code {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.result
}

// SetResult sets the engine result
func (t *Transaction) SetResult(result ter.Code) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.result = result
}

// CreateTransaction wraps env in a new tracked record
func CreateTransaction(env *txn.Envelope) *Transaction {
	return &Transaction{env: env, status: StatusNew, result: ter.TemUncertain}
}

// AppliedChecker reports whether a transaction is already in the ledger
type AppliedChecker interface {
	IsApplied(id common.Hash) (bool, error)
}

// TxMaster hands out tracked transactions and remembers the ones this node
// has already processed
type TxMaster struct {
	mutex  sync.Mutex
	ledger AppliedChecker
	known  *lru.Cache
}

// Track returns the tracked record of env. A record whose status is not
// NEW comes with the reason it cannot be processed again.
func (m *TxMaster) Track(env *txn.Envelope) (*Transaction, string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	id := env.ID()
	if v, ok := m.known.Get(id); ok {
		known := v.(*Transaction)
		switch {
		case known.GetStatus() == StatusNew:
			held := CreateTransaction(env)
			held.SetStatus(StatusHeld)
			return held, "Transaction is already being processed."
		case known.GetStatus() == StatusHeld && known.GetResult().IsTerRetry():
			// a retry result may succeed once the ledger has moved on
			tx := CreateTransaction(env)
			m.known.Add(id, tx)
			return tx, ""
		}
		return known, "Transaction was already processed."
	}

	applied, err := m.ledger.IsApplied(id)
	if err != nil {
		tx := CreateTransaction(env)
		tx.SetStatus(StatusInvalid)
		return tx, "Ledger lookup failed: " + err.Error()
	}
	if applied {
		tx := CreateTransaction(env)
		tx.SetStatus(StatusCommitted)
		tx.SetResult(ter.TefAlready)
		return tx, "Transaction already applied."
	}

	tx := CreateTransaction(env)
	m.known.Add(id, tx)
	return tx, ""
}

// Forget drops id so it may be tracked again
func (m *TxMaster) Forget(id common.Hash) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.known.Remove(id)
}

// Purge forgets every tracked transaction
func (m *TxMaster) Purge() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.known.Purge()
}

// CreateTxMaster creates a TxMaster remembering at most capacity transactions
func CreateTxMaster(ledger AppliedChecker, capacity int) *TxMaster {
	if capacity <= 0 {
		capacity = 4096
	}
	cache, err := lru.New(capacity)
	if err != nil {
		panic(err)
	}
	return &TxMaster{ledger: ledger, known: cache}
}
