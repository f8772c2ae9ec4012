package attack

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/mavleo96/ledger-partition/internal/cluster"
	"github.com/mavleo96/ledger-partition/internal/consensus"
	"github.com/mavleo96/ledger-partition/internal/crypto"
	"github.com/mavleo96/ledger-partition/internal/database"
	"github.com/mavleo96/ledger-partition/internal/metrics"
	"github.com/mavleo96/ledger-partition/internal/ter"
	"github.com/mavleo96/ledger-partition/internal/txn"
	"github.com/mavleo96/ledger-partition/internal/utils"
	log "github.com/sirupsen/logrus"
)

var (
	ErrAlreadyActive = errors.New("attack session already active")
	ErrNotConfigured = errors.New("attack account is not configured")
)

// ClusterController converges peer connectivity to a cluster
type ClusterController interface {
	ApplyCluster(id cluster.ClusterID) (cluster.Actions, error)
}

// PhaseWaiter waits for a consensus phase
type PhaseWaiter interface {
	AwaitPhase(ctx context.Context, target consensus.Phase, maxWait time.Duration) bool
}

// Injector pushes a signed transaction through the submit pipeline
type Injector interface {
	Inject(ctx context.Context, env *txn.Envelope) (ter.Code, error)
}

// AccountReader reads ledger accounts
type AccountReader interface {
	GetAccount(account common.Address) (database.Account, bool, error)
}

// Params configure the experiment
type Params struct {
	Secret       string
	Phases       []consensus.Phase
	MaxWait      time.Duration
	Amount       uint64
	Fee          uint64
	DestinationA common.Address
	DestinationB common.Address
}

// Orchestrator runs at most one attack session at a time. A session waits
// for the configured phases, partitions the overlay and submits a pair of
// conflicting payments, one per cluster, then stays frozen until
// Unfreeze is called.
type Orchestrator struct {
	state atomic.Int32

	mutex   sync.RWMutex
	session Session
	cancel  context.CancelFunc
	done    chan struct{}

	ctx      context.Context
	stop     context.CancelFunc
	pool     *workerpool.WorkerPool
	clusters ClusterController
	gate     PhaseWaiter
	injector Injector
	accounts AccountReader
	key      *ecdsa.PrivateKey
	account  common.Address
	params   Params
}

// GetState returns the state of the current session
func (o *Orchestrator) GetState() State {
	return State(o.state.Load())
}

// IsActive reports whether a session is running or frozen
func (o *Orchestrator) IsActive() bool {
	return o.GetState().Active()
}

// Snapshot returns a copy of the current or last session
func (o *Orchestrator) Snapshot() Session {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	s := o.session.clone()
	s.State = o.GetState()
	return s
}

// Done returns a channel closed when the current session stops making
// progress, either frozen or aborted
func (o *Orchestrator) Done() <-chan struct{} {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.done
}

// Start starts a session in the background. It fails with ErrAlreadyActive
// while another session is running or frozen.
func (o *Orchestrator) Start() (Session, error) {
	if o.key == nil {
		return Session{}, ErrNotConfigured
	}

	o.mutex.Lock()
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateAwaitingPhase)) {
		active := o.session.ID
		o.mutex.Unlock()
		metrics.AttackSessionsTotal.WithLabelValues("rejected").Inc()
		log.Warnf("[Attack] Start rejected; session %s is %s", active, o.GetState())
		return o.Snapshot(), ErrAlreadyActive
	}
	ctx, cancel := context.WithCancel(o.ctx)
	o.session = Session{ID: uuid.New(), State: StateAwaitingPhase, StartedAt: time.Now()}
	o.cancel = cancel
	o.done = make(chan struct{})
	id, done := o.session.ID, o.done
	o.mutex.Unlock()

	metrics.AttackSessionsTotal.WithLabelValues("started").Inc()
	metrics.AttackActive.Set(1)
	log.Infof("[Attack] Session %s started", id)

	o.pool.Submit(func() {
		defer close(done)
		o.run(ctx, id)
	})
	return o.Snapshot(), nil
}

// Unfreeze ends the active session and reports whether there was one.
// Submitted transactions and peer connectivity are left as they are.
func (o *Orchestrator) Unfreeze() bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	for {
		current := State(o.state.Load())
		if !current.Active() {
			return false
		}
		if o.state.CompareAndSwap(int32(current), int32(StateIdle)) {
			if o.cancel != nil {
				o.cancel()
			}
			o.session.State = StateIdle
			metrics.AttackActive.Set(0)
			metrics.AttackSessionsTotal.WithLabelValues("unfrozen").Inc()
			log.Infof("[Attack] Session %s unfrozen from %s", o.session.ID, current)
			return true
		}
	}
}

// advance moves session id from one state to the next. It fails once the
// session has been unfrozen.
func (o *Orchestrator) advance(ctx context.Context, id uuid.UUID, from, to State) bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if ctx.Err() != nil || o.session.ID != id {
		return false
	}
	if !o.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	o.session.State = to
	log.Infof("[Attack] Session %s: %s -> %s", id, from, to)
	return true
}

func (o *Orchestrator) record(id uuid.UUID, update func(s *Session)) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.session.ID == id {
		update(&o.session)
	}
}

func (o *Orchestrator) run(ctx context.Context, id uuid.UUID) {
	observed := true
	for _, phase := range o.params.Phases {
		if !o.gate.AwaitPhase(ctx, phase, o.params.MaxWait) {
			observed = false
			log.Warnf("[Attack] Session %s did not observe phase %s; proceeding", id, phase)
		}
	}
	o.record(id, func(s *Session) { s.StartedPhaseObserved = observed })

	if !o.advance(ctx, id, StateAwaitingPhase, StatePartitioning) {
		log.Infof("[Attack] Session %s aborted while awaiting phase", id)
		return
	}

	envA, envB, seq, err := o.buildPair()
	o.record(id, func(s *Session) { s.Sequence = seq })
	if err == nil {
		o.partition(cluster.ClusterA)
	}
	if !o.advance(ctx, id, StatePartitioning, StateInjecting) {
		log.Infof("[Attack] Session %s aborted while partitioning", id)
		return
	}

	resultA := o.inject(ctx, cluster.ClusterA, o.params.DestinationA, envA, err)
	o.record(id, func(s *Session) { s.ClusterA = resultA })
	if ctx.Err() != nil {
		log.Infof("[Attack] Session %s aborted while injecting", id)
		return
	}

	if err == nil {
		o.partition(cluster.ClusterB)
	}
	resultB := o.inject(ctx, cluster.ClusterB, o.params.DestinationB, envB, err)
	o.record(id, func(s *Session) { s.ClusterB = resultB })
	if !o.advance(ctx, id, StateInjecting, StateFrozen) {
		log.Infof("[Attack] Session %s aborted while injecting", id)
		return
	}

	metrics.AttackSessionsTotal.WithLabelValues("frozen").Inc()
	if err := o.Snapshot().Err(); err != nil {
		log.Warnf("[Attack] Session %s frozen with failures: %v", id, err)
		return
	}
	log.Infof("[Attack] Session %s frozen; conflicting payments %s and %s submitted",
		id, resultA.TxID.Hex(), resultB.TxID.Hex())
}

// buildPair signs two payments sharing the source account and sequence
// that differ only in destination
func (o *Orchestrator) buildPair() (*txn.Envelope, *txn.Envelope, uint32, error) {
	acc, exists, err := o.accounts.GetAccount(o.account)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("read account %s: %w", o.account.Hex(), err)
	}
	if !exists {
		return nil, nil, 0, fmt.Errorf("account %s not found", o.account.Hex())
	}

	build := func(dst common.Address) (*txn.Envelope, error) {
		return txn.Sign(txn.Transaction{
			TransactionType: txn.TypePayment,
			Account:         o.account,
			Destination:     dst,
			Amount:          o.params.Amount,
			Fee:             o.params.Fee,
			Sequence:        acc.Sequence,
		}, o.key)
	}
	envA, err := build(o.params.DestinationA)
	if err != nil {
		return nil, nil, acc.Sequence, err
	}
	envB, err := build(o.params.DestinationB)
	if err != nil {
		return nil, nil, acc.Sequence, err
	}
	return envA, envB, acc.Sequence, nil
}

// partition links the overlay to cluster c only
func (o *Orchestrator) partition(c cluster.ClusterID) {
	if _, err := o.clusters.ApplyCluster(c); err != nil {
		log.Warnf("[Attack] Partition to %s incomplete: %v", c, err)
	}
}

// inject submits env while the overlay is partitioned to c. Failures are
// recorded on the result.
func (o *Orchestrator) inject(ctx context.Context, c cluster.ClusterID, dst common.Address, env *txn.Envelope, buildErr error) *InjectionResult {
	result := &InjectionResult{Cluster: c, Destination: dst, Result: ter.TemUncertain}
	if buildErr != nil {
		result.Err = buildErr
		return result
	}
	result.TxID = env.ID()
	result.Blob = env.Hex()

	code, err := o.injector.Inject(ctx, env)
	result.Result = code
	if err != nil {
		result.Err = err
		log.Warnf("[Attack] Injection into %s failed: %v", c, err)
		return result
	}
	log.Infof("[Attack] Injected %s into %s: %s", utils.ShortHash(result.TxID), c, code.Token())
	return result
}

// Close aborts any running session and waits for the worker to finish
func (o *Orchestrator) Close() {
	o.stop()
	o.pool.StopWait()
}

// CreateOrchestrator creates an orchestrator. Sessions are refused when
// params carry no secret.
func CreateOrchestrator(params Params, clusters ClusterController, gate PhaseWaiter, injector Injector, accounts AccountReader) (*Orchestrator, error) {
	if params.DestinationA == (common.Address{}) {
		params.DestinationA = common.BytesToAddress(crypto.Digest([]byte(cluster.ClusterA.String())))
	}
	if params.DestinationB == (common.Address{}) {
		params.DestinationB = common.BytesToAddress(crypto.Digest([]byte(cluster.ClusterB.String())))
	}
	if params.DestinationA == params.DestinationB {
		return nil, errors.New("attack destinations must differ")
	}

	o := &Orchestrator{
		clusters: clusters,
		gate:     gate,
		injector: injector,
		accounts: accounts,
		params:   params,
	}
	if params.Secret != "" {
		key, err := crypto.KeyFromSecret(params.Secret)
		if err != nil {
			return nil, err
		}
		o.key = key
		o.account, err = crypto.AddressFromSecret(params.Secret)
		if err != nil {
			return nil, err
		}
	}

	o.ctx, o.stop = context.WithCancel(context.Background())
	o.pool = workerpool.New(1)
	o.done = make(chan struct{})
	close(o.done)
	return o, nil
}
