package cluster

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/mavleo96/ledger-partition/internal/metrics"
	"github.com/mavleo96/ledger-partition/internal/overlay"
	log "github.com/sirupsen/logrus"
)

// ActionKind is the kind of action issued against a peer
type ActionKind string

const (
	ActionConnect    ActionKind = "connect"
	ActionDisconnect ActionKind = "disconnect"
)

// Action is a connect or disconnect issued against a peer
type Action struct {
	Kind ActionKind
	Peer overlay.PeerIdentity
	Err  error
}

// Actions lists the actions issued by one ApplyCluster call
type Actions []Action

// Count returns the number of actions of the given kind
func (a Actions) Count(kind ActionKind) int {
	n := 0
	for _, action := range a {
		if action.Kind == kind {
			n++
		}
	}
	return n
}

// PeerSource enumerates the known peers
type PeerSource interface {
	Peers() []overlay.Peer
}

// Controller converges peer connectivity to a cluster assignment
type Controller struct {
	mutex      sync.Mutex
	peers      PeerSource
	assignment Assignment
}

// ApplyCluster links every known peer in the target set of id and unlinks
// every linked peer outside it. Peers already in the desired state are left
// alone, so a repeated call issues no actions. Unknown ids panic.
func (c *Controller) ApplyCluster(id ClusterID) (Actions, error) {
	if !id.Valid() {
		panic(fmt.Sprintf("cluster: unknown cluster id %d", int(id)))
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	var (
		actions Actions
		result  *multierror.Error
	)
	for _, peer := range c.peers.Peers() {
		want := Member(c.assignment, id, peer.Identity())
		linked := peer.IsLinked()

		var action Action
		switch {
		case want && !linked:
			action = Action{Kind: ActionConnect, Peer: peer.Identity(), Err: peer.Connect()}
		case !want && linked:
			action = Action{Kind: ActionDisconnect, Peer: peer.Identity(), Err: peer.Close()}
		default:
			continue
		}

		metrics.PeerActionsTotal.WithLabelValues(string(action.Kind)).Inc()
		if action.Err != nil {
			log.Warnf("[Cluster] Failed to %s peer %s: %v", action.Kind, action.Peer, action.Err)
			result = multierror.Append(result, fmt.Errorf("%s %s: %w", action.Kind, action.Peer, action.Err))
		}
		actions = append(actions, action)
	}

	log.Infof("[Cluster] Applied %s: %d connects, %d disconnects",
		id, actions.Count(ActionConnect), actions.Count(ActionDisconnect))
	return actions, result.ErrorOrNil()
}

// CreateController creates a controller over the peers of source
func CreateController(source PeerSource, assignment Assignment) *Controller {
	return &Controller{peers: source, assignment: assignment}
}
