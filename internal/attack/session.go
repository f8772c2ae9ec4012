package attack

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/mavleo96/ledger-partition/internal/cluster"
	"github.com/mavleo96/ledger-partition/internal/ter"
)

// State is the state of the attack session
type State int32

const (
	StateIdle State = iota
	StateAwaitingPhase
	StatePartitioning
	StateInjecting
	StateFrozen
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPhase:
		return "awaiting_phase"
	case StatePartitioning:
		return "partitioning"
	case StateInjecting:
		return "injecting"
	case StateFrozen:
		return "frozen"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Active reports whether s belongs to a running or frozen session
func (s State) Active() bool {
	return s != StateIdle
}

// InjectionResult is the outcome of submitting the transaction of one cluster
type InjectionResult struct {
	Cluster     cluster.ClusterID
	Destination common.Address
	TxID        common.Hash
	Blob        string
	Result      ter.Code
	Err         error
}

// Session is a snapshot of an attack session
type Session struct {
	ID                   uuid.UUID
	State                State
	StartedAt            time.Time
	StartedPhaseObserved bool
	Sequence             uint32
	ClusterA             *InjectionResult
	ClusterB             *InjectionResult
}

// Err aggregates the injection failures of the session
func (s Session) Err() error {
	var result *multierror.Error
	for _, r := range []*InjectionResult{s.ClusterA, s.ClusterB} {
		if r != nil && r.Err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", r.Cluster, r.Err))
		}
	}
	return result.ErrorOrNil()
}

func (s Session) clone() Session {
	out := s
	if s.ClusterA != nil {
		a := *s.ClusterA
		out.ClusterA = &a
	}
	if s.ClusterB != nil {
		b := *s.ClusterB
		out.ClusterB = &b
	}
	return out
}
