package rpc

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mavleo96/ledger-partition/internal/attack"
	"github.com/mavleo96/ledger-partition/internal/cluster"
	"github.com/mavleo96/ledger-partition/internal/consensus"
	"github.com/mavleo96/ledger-partition/internal/database"
	"github.com/mavleo96/ledger-partition/internal/overlay"
	log "github.com/sirupsen/logrus"
)

// PeerLister enumerates known and linked peers
type PeerLister interface {
	Peers() []overlay.Peer
	ActivePeers() []overlay.Peer
}

// LedgerStore exposes the account state of the local ledger
type LedgerStore interface {
	GetDBState() (map[string]database.Account, error)
	ResetDB(genesis map[common.Address]uint64) error
}

type handlerFunc func(*Server, *Context) map[string]any

type handlerInfo struct {
	fn   handlerFunc
	role Role
}

var handlers = map[string]handlerInfo{
	"submit":        {fn: (*Server).DoSubmit, role: RoleGuest},
	"attack":        {fn: (*Server).DoAttack, role: RoleAdmin},
	"unfreeze":      {fn: (*Server).DoUnfreeze, role: RoleAdmin},
	"attack_status": {fn: (*Server).DoAttackStatus, role: RoleAdmin},
	"server_info":   {fn: (*Server).DoServerInfo, role: RoleGuest},
	"ledger_state":  {fn: (*Server).DoLedgerState, role: RoleGuest},
	"ledger_reset":  {fn: (*Server).DoLedgerReset, role: RoleAdmin},
	"apply_cluster": {fn: (*Server).DoApplyCluster, role: RoleAdmin},
}

// Server holds the collaborators of the RPC command handlers
type Server struct {
	nodeID       string
	pipeline     *Pipeline
	orchestrator *attack.Orchestrator
	phases       consensus.RoundSource
	peers        PeerLister
	clusters     attack.ClusterController
	ledger       LedgerStore
	genesis      map[common.Address]uint64
	startedAt    time.Time
}

// Dispatch runs the handler of method
func (s *Server) Dispatch(method string, c *Context) map[string]any {
	info, ok := handlers[method]
	if !ok {
		return MakeError(ErrUnknownCommand).JSON()
	}
	if c.Role < info.role {
		log.Warnf("[RPC] Caller with role %s denied %s", c.Role, method)
		return MakeError(ErrNoPermission).JSON()
	}
	return info.fn(s, c)
}

// DoSubmit submits a signed blob, or a tx_json signed with secret
func (s *Server) DoSubmit(c *Context) map[string]any {
	return s.pipeline.Submit(c).JSON()
}

// DoAttack starts an attack session
func (s *Server) DoAttack(c *Context) map[string]any {
	if s.orchestrator == nil {
		return MakeErrorMessage(ErrNotSupported, "Attack is not enabled on this server.").JSON()
	}
	log.Warnf("[RPC] Starting attack session")
	session, err := s.orchestrator.Start()
	switch {
	case errors.Is(err, attack.ErrAlreadyActive):
		out := MakeErrorMessage(ErrAlreadyActive, "Attack already running.").JSON()
		out["session"] = sessionJSON(session)
		return out
	case errors.Is(err, attack.ErrNotConfigured):
		return MakeErrorMessage(ErrNotSupported, "Attack account is not configured.").JSON()
	case err != nil:
		return MakeException(ErrNotReady, err.Error()).JSON()
	}
	return map[string]any{"session_id": session.ID.String()}
}

// DoUnfreeze ends the active attack session
func (s *Server) DoUnfreeze(c *Context) map[string]any {
	if s.orchestrator == nil || !s.orchestrator.Unfreeze() {
		return map[string]any{
			"status":  "unsuccessful",
			"message": "No attack session is active. Nothing to do.",
		}
	}
	log.Warnf("[RPC] Attack session unfrozen")
	return map[string]any{
		"message": "Attack session ended. Submitted transactions and peer links are left as they are.",
	}
}

// DoAttackStatus reports the current or last attack session
func (s *Server) DoAttackStatus(c *Context) map[string]any {
	if s.orchestrator == nil {
		return MakeErrorMessage(ErrNotSupported, "Attack is not enabled on this server.").JSON()
	}
	return map[string]any{
		"active":  s.orchestrator.IsActive(),
		"session": sessionJSON(s.orchestrator.Snapshot()),
	}
}

// DoServerInfo reports the node id, consensus phase and peer links
func (s *Server) DoServerInfo(c *Context) map[string]any {
	info := map[string]any{
		"node_id": s.nodeID,
		"uptime":  int64(time.Since(s.startedAt).Seconds()),
	}
	if s.phases != nil {
		info["consensus_phase"] = string(s.phases.CurrentPhase())
		info["consensus_round"] = s.phases.Round()
	}
	if s.peers != nil {
		linked := make([]any, 0)
		for _, peer := range s.peers.ActivePeers() {
			linked = append(linked, string(peer.Identity()))
		}
		info["peers"] = len(s.peers.Peers())
		info["linked_peers"] = linked
	}
	if s.orchestrator != nil {
		info["attack_state"] = s.orchestrator.GetState().String()
	}
	return map[string]any{"info": info}
}

// DoLedgerState reports the balance and next sequence of every account
func (s *Server) DoLedgerState(c *Context) map[string]any {
	if s.ledger == nil {
		return MakeErrorMessage(ErrNotSupported, "No ledger on this server.").JSON()
	}
	state, err := s.ledger.GetDBState()
	if err != nil {
		log.Errorf("[RPC] Failed to read ledger state: %v", err)
		return MakeException(ErrNotReady, err.Error()).JSON()
	}
	accounts := make(map[string]any, len(state))
	for account, acc := range state {
		accounts[account] = map[string]any{
			"balance":  acc.Balance,
			"sequence": acc.Sequence,
		}
	}
	return map[string]any{"accounts": accounts}
}

// DoLedgerReset restores the genesis ledger and forgets every seen
// transaction. It is refused while an attack session is active.
func (s *Server) DoLedgerReset(c *Context) map[string]any {
	if s.ledger == nil {
		return MakeErrorMessage(ErrNotSupported, "No ledger on this server.").JSON()
	}
	if s.orchestrator != nil && s.orchestrator.IsActive() {
		return MakeErrorMessage(ErrAlreadyActive, "Attack session is active. Unfreeze it first.").JSON()
	}
	if err := s.ledger.ResetDB(s.genesis); err != nil {
		log.Errorf("[RPC] Failed to reset ledger: %v", err)
		return MakeException(ErrNotReady, err.Error()).JSON()
	}
	s.pipeline.Purge()
	log.Warnf("[RPC] Ledger reset to %d genesis accounts", len(s.genesis))
	return map[string]any{"message": "Ledger reset to genesis."}
}

// DoApplyCluster links the overlay to the cluster named by params.cluster.
// It restores connectivity after an unfreeze and is refused while an
// attack session is active.
func (s *Server) DoApplyCluster(c *Context) map[string]any {
	if s.clusters == nil {
		return MakeErrorMessage(ErrNotSupported, "Cluster control is not enabled on this server.").JSON()
	}
	name, ok := c.Params["cluster"].(string)
	if !ok {
		return MakeErrorMessage(ErrInvalidParams, "Missing field 'cluster'.").JSON()
	}
	id, err := cluster.ParseClusterID(name)
	if err != nil {
		return MakeErrorMessage(ErrInvalidParams, "Invalid field 'cluster'.").JSON()
	}
	if s.orchestrator != nil && s.orchestrator.IsActive() {
		return MakeErrorMessage(ErrAlreadyActive, "Attack session is active. Unfreeze it first.").JSON()
	}

	actions, err := s.clusters.ApplyCluster(id)
	out := map[string]any{
		"cluster":     id.String(),
		"connects":    actions.Count(cluster.ActionConnect),
		"disconnects": actions.Count(cluster.ActionDisconnect),
	}
	if err != nil {
		log.Warnf("[RPC] Apply cluster %s incomplete: %v", id, err)
		out["warning"] = err.Error()
	}
	return out
}

func sessionJSON(session attack.Session) map[string]any {
	out := map[string]any{
		"state":                  session.State.String(),
		"started_phase_observed": session.StartedPhaseObserved,
		"sequence":               session.Sequence,
	}
	if !session.StartedAt.IsZero() {
		out["id"] = session.ID.String()
		out["started_at"] = session.StartedAt.UTC().Format(time.RFC3339)
	}
	for name, result := range map[string]*attack.InjectionResult{"cluster_a": session.ClusterA, "cluster_b": session.ClusterB} {
		if result == nil {
			continue
		}
		r := map[string]any{
			"destination":   result.Destination.Hex(),
			"hash":          result.TxID.Hex(),
			"tx_blob":       result.Blob,
			"engine_result": result.Result.Token(),
		}
		if result.Err != nil {
			r["error"] = result.Err.Error()
		}
		out[name] = r
	}
	return out
}

// CreateServer creates the command handlers. orchestrator may be nil on
// nodes that do not run the experiment.
func CreateServer(nodeID string, pipeline *Pipeline, orchestrator *attack.Orchestrator, phases consensus.RoundSource, peers PeerLister, clusters attack.ClusterController, ledger LedgerStore, genesis map[common.Address]uint64) *Server {
	return &Server{
		nodeID:       nodeID,
		pipeline:     pipeline,
		orchestrator: orchestrator,
		phases:       phases,
		peers:        peers,
		clusters:     clusters,
		ledger:       ledger,
		genesis:      genesis,
		startedAt:    time.Now(),
	}
}
