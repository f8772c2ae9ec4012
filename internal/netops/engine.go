package netops

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mavleo96/ledger-partition/internal/hashrouter"
	"github.com/mavleo96/ledger-partition/internal/metrics"
	"github.com/mavleo96/ledger-partition/internal/ter"
	"github.com/mavleo96/ledger-partition/internal/txn"
	"github.com/mavleo96/ledger-partition/internal/utils"
	"github.com/mavleo96/ledger-partition/internal/validation"
	log "github.com/sirupsen/logrus"
)

var ErrNoLedger = errors.New("no ledger configured")

// FailHard asks the engine not to retry or relay a transaction that does
// not succeed outright
type FailHard bool

const (
	FailHardNo  FailHard = false
	FailHardYes FailHard = true
)

// DoFailHard converts a request flag to a FailHard policy
func DoFailHard(noRetry bool) FailHard {
	return FailHard(noRetry)
}

// Engine accepts a validated, tracked transaction. The outcome is stored
// on the transaction; an error means the engine itself failed.
type Engine interface {
	ProcessTransaction(ctx context.Context, tx *Transaction, unlimited bool, local bool, failType FailHard) error
}

// Ledger is the ledger state the engine applies transactions to
type Ledger interface {
	AppliedChecker
	ApplyPayment(id common.Hash, tx txn.Transaction) (ter.Code, error)
}

// Relayer forwards an encoded transaction to the peers currently linked
type Relayer interface {
	Relay(ctx context.Context, id common.Hash, blob []byte) (int, error)
}

// LedgerEngine applies transactions to the local open ledger and relays
// the ones that may succeed network-wide
type LedgerEngine struct {
	mutex         sync.Mutex
	ledger        Ledger
	router        *hashrouter.HashRouter
	relayer       Relayer
	rules         validation.Rules
	config        validation.Config
	openLedgerFee atomic.Uint64
}

// ProcessTransaction implements Engine
func (e *LedgerEngine) ProcessTransaction(ctx context.Context, tx *Transaction, unlimited bool, local bool, failType FailHard) error {
	if e.ledger == nil {
		return ErrNoLedger
	}
	env := tx.Envelope()
	id := env.ID()

	// Relayed transactions get the same checks a local submit does
	if validity, reason := validation.CheckValidity(e.router, env, e.rules, e.config); validity != validation.Valid {
		log.Warnf("[NetOps] Transaction %s has bad signature or fails local checks: %s", utils.ShortHash(id), reason)
		tx.SetStatus(StatusInvalid)
		tx.SetResult(ter.TemBadSignature)
		metrics.SubmissionsTotal.WithLabelValues("ledger", ter.TemBadSignature.Token()).Inc()
		return nil
	}

	if !unlimited && env.Tx().Fee < e.openLedgerFee.Load() {
		tx.SetStatus(StatusInvalid)
		tx.SetResult(ter.TelInsufFeeP)
		metrics.SubmissionsTotal.WithLabelValues("ledger", ter.TelInsufFeeP.Token()).Inc()
		return nil
	}

	e.mutex.Lock()
	result, err := e.ledger.ApplyPayment(id, env.Tx())
	e.mutex.Unlock()
	if err != nil {
		return err
	}

	tx.SetResult(result)
	switch {
	case result.IsTesSuccess(), result.IsTecClaim():
		tx.SetStatus(StatusIncluded)
		e.router.SetFlags(id, hashrouter.SFApplied)
	case result.IsTerRetry():
		tx.SetStatus(StatusHeld)
	case result == ter.TefPastSeq:
		tx.SetStatus(StatusConflicted)
	case result.IsTefFailure():
		tx.SetStatus(StatusObsolete)
	default:
		tx.SetStatus(StatusInvalid)
	}
	metrics.SubmissionsTotal.WithLabelValues("ledger", result.Token()).Inc()
	log.Infof("[NetOps] Transaction %s result %s (local %t)", utils.ShortHash(id), result.Token(), local)

	shouldRelay := result.IsTesSuccess() ||
		(failType == FailHardNo && (result.IsTecClaim() || result.IsTerRetry()))
	if shouldRelay && e.relayer != nil {
		delivered, err := e.relayer.Relay(ctx, id, env.Blob())
		if err != nil {
			log.Warnf("[NetOps] Relay of %s incomplete: %v", utils.ShortHash(id), err)
		}
		log.Infof("[NetOps] Relayed %s to %d peers", utils.ShortHash(id), delivered)
	}
	return nil
}

// CreateLedgerEngine creates an engine applying to ledger
func CreateLedgerEngine(ledger Ledger, router *hashrouter.HashRouter, relayer Relayer, rules validation.Rules, cfg validation.Config) *LedgerEngine {
	e := &LedgerEngine{
		ledger:  ledger,
		router:  router,
		relayer: relayer,
		rules:   rules,
		config:  cfg,
	}
	e.openLedgerFee.Store(rules.BaseFee)
	return e
}

// SetOpenLedgerFee sets the minimum fee required of callers that are not unlimited
func (e *LedgerEngine) SetOpenLedgerFee(fee uint64) {
	e.openLedgerFee.Store(fee)
}

// RelayEngine hands transactions only to the peers currently linked,
// without applying them locally
type RelayEngine struct {
	relayer Relayer
	router  *hashrouter.HashRouter
}

// ProcessTransaction implements Engine
func (e *RelayEngine) ProcessTransaction(ctx context.Context, tx *Transaction, unlimited bool, local bool, failType FailHard) error {
	env := tx.Envelope()
	delivered, err := e.relayer.Relay(ctx, env.ID(), env.Blob())
	if delivered == 0 {
		tx.SetStatus(StatusInvalid)
		tx.SetResult(ter.TelLocalError)
		metrics.SubmissionsTotal.WithLabelValues("relay", ter.TelLocalError.Token()).Inc()
		if err != nil {
			log.Warnf("[NetOps] Relay of %s reached no peer: %v", utils.ShortHash(env.ID()), err)
		}
		return nil
	}
	if err != nil {
		log.Warnf("[NetOps] Relay of %s reached %d peers: %v", utils.ShortHash(env.ID()), delivered, err)
	}
	e.router.SetFlags(env.ID(), hashrouter.SFRelayed)
	tx.SetStatus(StatusIncluded)
	tx.SetResult(ter.TesSuccess)
	metrics.SubmissionsTotal.WithLabelValues("relay", ter.TesSuccess.Token()).Inc()
	return nil
}

// CreateRelayEngine creates a relay-only engine
func CreateRelayEngine(relayer Relayer, router *hashrouter.HashRouter) *RelayEngine {
	return &RelayEngine{relayer: relayer, router: router}
}
