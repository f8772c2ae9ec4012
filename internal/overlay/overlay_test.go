package overlay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mavleo96/ledger-partition/internal/hashrouter"
	"github.com/mavleo96/ledger-partition/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	mutex   sync.Mutex
	id      PeerIdentity
	linked  bool
	sendErr error
	sent    [][]byte
}

func (p *fakePeer) Identity() PeerIdentity { return p.id }

func (p *fakePeer) IsLinked() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.linked
}

func (p *fakePeer) Connect() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.linked = true
	return nil
}

func (p *fakePeer) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.linked = false
	return nil
}

func (p *fakePeer) Send(ctx context.Context, blob []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, blob)
	return nil
}

func TestPeersAreOrdered(t *testing.T) {
	c := &fakePeer{id: "localhost:5003"}
	a := &fakePeer{id: "localhost:5001", linked: true}
	b := &fakePeer{id: "localhost:5002"}
	o := CreateOverlay([]Peer{c, a, b}, hashrouter.CreateHashRouter(16), 0)

	peers := o.Peers()
	require.Len(t, peers, 3)
	assert.Equal(t, PeerIdentity("localhost:5001"), peers[0].Identity())
	assert.Equal(t, PeerIdentity("localhost:5003"), peers[2].Identity())

	active := o.ActivePeers()
	require.Len(t, active, 1)
	assert.Equal(t, a.id, active[0].Identity())
}

func TestRelayReachesOnlyLinkedPeers(t *testing.T) {
	a := &fakePeer{id: "a", linked: true}
	b := &fakePeer{id: "b", linked: true}
	c := &fakePeer{id: "c"}
	o := CreateOverlay([]Peer{a, b, c}, hashrouter.CreateHashRouter(16), 0)

	id := common.HexToHash("0x01")
	delivered, err := o.Relay(context.Background(), id, []byte{0xAB})
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.Len(t, a.sent, 1)
	assert.Len(t, b.sent, 1)
	assert.Empty(t, c.sent)

	// each peer is sent a transaction once
	delivered, err = o.Relay(context.Background(), id, []byte{0xAB})
	assert.ErrorIs(t, err, ErrNoLinkedPeers)
	assert.Zero(t, delivered)

	// a peer linked later still receives it
	require.NoError(t, c.Connect())
	delivered, err = o.Relay(context.Background(), id, []byte{0xAB})
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
}

func TestRelayAggregatesFailures(t *testing.T) {
	a := &fakePeer{id: "a", linked: true, sendErr: errors.New("unavailable")}
	b := &fakePeer{id: "b", linked: true}
	o := CreateOverlay([]Peer{a, b}, hashrouter.CreateHashRouter(16), 0)

	delivered, err := o.Relay(context.Background(), common.HexToHash("0x02"), []byte{0x01})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay to a")
	assert.Equal(t, 1, delivered)
}

func TestGRPCPeerLinking(t *testing.T) {
	peer := CreateGRPCPeer(&models.Node{ID: "n2", Address: "localhost:5002"})
	assert.Equal(t, PeerIdentity("localhost:5002"), peer.Identity())
	assert.False(t, peer.IsLinked())
	assert.ErrorIs(t, peer.Send(context.Background(), []byte{0x01}), ErrNotLinked)

	require.NoError(t, peer.Connect())
	assert.True(t, peer.IsLinked())
	require.NoError(t, peer.Connect())

	require.NoError(t, peer.Close())
	assert.False(t, peer.IsLinked())
	require.NoError(t, peer.Close())
}

type pingPeer struct {
	fakePeer
	pingErr error
}

func (p *pingPeer) Ping(ctx context.Context) error { return p.pingErr }

func TestUnreachableReportsSilentPeers(t *testing.T) {
	up := &pingPeer{fakePeer: fakePeer{id: "localhost:5001", linked: true}}
	down := &pingPeer{fakePeer: fakePeer{id: "localhost:5002", linked: true}, pingErr: errors.New("unavailable")}
	unlinked := &pingPeer{fakePeer: fakePeer{id: "localhost:5003"}, pingErr: errors.New("unavailable")}
	plain := &fakePeer{id: "localhost:5004", linked: true}
	o := CreateOverlay([]Peer{up, down, unlinked, plain}, hashrouter.CreateHashRouter(16), 0)

	unreachable := o.Unreachable(context.Background())
	require.Len(t, unreachable, 1)
	assert.Contains(t, unreachable, PeerIdentity("localhost:5002"))
}
