package overlay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"github.com/mavleo96/ledger-partition/internal/hashrouter"
	"github.com/mavleo96/ledger-partition/internal/metrics"
	"github.com/mavleo96/ledger-partition/internal/utils"
	log "github.com/sirupsen/logrus"
)

var ErrNoLinkedPeers = errors.New("no linked peers")

const defaultSendTimeout = 2 * time.Second

// Overlay holds the handles of every known peer
type Overlay struct {
	peers       map[PeerIdentity]Peer
	router      *hashrouter.HashRouter
	sendTimeout time.Duration
}

// Peers returns every known peer, ordered by identity
func (o *Overlay) Peers() []Peer {
	peers := make([]Peer, 0, len(o.peers))
	for _, peer := range o.peers {
		peers = append(peers, peer)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Identity() < peers[j].Identity() })
	return peers
}

// ActivePeers returns the peers currently linked, ordered by identity
func (o *Overlay) ActivePeers() []Peer {
	active := make([]Peer, 0, len(o.peers))
	for _, peer := range o.Peers() {
		if peer.IsLinked() {
			active = append(active, peer)
		}
	}
	return active
}

// Peer returns the handle of the peer with identity id
func (o *Overlay) Peer(id PeerIdentity) (Peer, bool) {
	peer, ok := o.peers[id]
	return peer, ok
}

// Relay sends blob to every linked peer that has not been sent transaction
// id yet and returns the number of peers it was delivered to
func (o *Overlay) Relay(ctx context.Context, id common.Hash, blob []byte) (int, error) {
	targets := make([]Peer, 0, len(o.peers))
	for _, peer := range o.ActivePeers() {
		if o.router.ShouldRelay(id, string(peer.Identity())) {
			targets = append(targets, peer)
		}
	}
	if len(targets) == 0 {
		metrics.RelaysTotal.WithLabelValues("skipped").Inc()
		return 0, ErrNoLinkedPeers
	}

	var (
		wg        sync.WaitGroup
		mutex     sync.Mutex
		delivered int
		result    *multierror.Error
	)
	for _, peer := range targets {
		wg.Add(1)
		go func(peer Peer) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
			defer cancel()
			err := peer.Send(sendCtx, blob)

			mutex.Lock()
			defer mutex.Unlock()
			if err != nil {
				log.Warnf("[Overlay] Failed to relay %s to %s: %v", utils.ShortHash(id), peer.Identity(), err)
				metrics.RelaysTotal.WithLabelValues("failed").Inc()
				result = multierror.Append(result, fmt.Errorf("relay to %s: %w", peer.Identity(), err))
				return
			}
			metrics.RelaysTotal.WithLabelValues("delivered").Inc()
			delivered++
		}(peer)
	}
	wg.Wait()
	return delivered, result.ErrorOrNil()
}

// Unreachable pings every linked peer that supports it and returns the ones that
// did not answer within the send timeout
func (o *Overlay) Unreachable(ctx context.Context) map[PeerIdentity]error {
	var (
		wg          sync.WaitGroup
		mutex       sync.Mutex
		unreachable = make(map[PeerIdentity]error)
	)
	for _, peer := range o.ActivePeers() {
		pinger, ok := peer.(Pinger)
		if !ok {
			continue
		}
		wg.Go(func() {
			pingCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
			defer cancel()
			if err := pinger.Ping(pingCtx); err != nil {
				mutex.Lock()
				unreachable[peer.Identity()] = err
				mutex.Unlock()
			}
		})
	}
	wg.Wait()
	return unreachable
}

// CreateOverlay creates an overlay over peers
func CreateOverlay(peers []Peer, router *hashrouter.HashRouter, sendTimeout time.Duration) *Overlay {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	peerMap := make(map[PeerIdentity]Peer, len(peers))
	for _, peer := range peers {
		peerMap[peer.Identity()] = peer
	}
	return &Overlay{peers: peerMap, router: router, sendTimeout: sendTimeout}
}
