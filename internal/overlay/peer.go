package overlay

import (
	"context"
	"errors"
	"sync"

	"github.com/mavleo96/ledger-partition/internal/api"
	"github.com/mavleo96/ledger-partition/internal/models"
	"github.com/mavleo96/ledger-partition/internal/utils"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var ErrNotLinked = errors.New("peer is not linked")

// PeerIdentity is the network address a peer is known by
type PeerIdentity string

// Connectable is a peer handle that can be linked and unlinked
type Connectable interface {
	Connect() error
	Close() error
}

// Peer is a handle on a known peer
type Peer interface {
	Connectable
	Identity() PeerIdentity
	IsLinked() bool
	Send(ctx context.Context, blob []byte) error
}

// GRPCPeer is a peer reached over the gRPC peer service
type GRPCPeer struct {
	mutex  sync.RWMutex
	node   *models.Node
	conn   *grpc.ClientConn
	client *api.PeerClient
}

// Identity implements Peer
func (p *GRPCPeer) Identity() PeerIdentity {
	return PeerIdentity(p.node.Address)
}

// ID returns the configured node id of the peer
func (p *GRPCPeer) ID() string {
	return p.node.ID
}

// IsLinked implements Peer
func (p *GRPCPeer) IsLinked() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.conn != nil
}

// Connect implements Connectable. The underlying connection is established
// on the first call made over it.
func (p *GRPCPeer) Connect() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.conn != nil {
		return nil
	}
	conn, err := utils.Connect(p.node.Address)
	if err != nil {
		return err
	}
	p.conn = conn
	p.client = api.NewPeerClient(conn)
	log.Infof("[Overlay] Linked peer %s at %s", p.node.ID, p.node.Address)
	return nil
}

// Close implements Connectable
func (p *GRPCPeer) Close() error {
	p.mutex.Lock()
	conn := p.conn
	p.conn = nil
	p.client = nil
	p.mutex.Unlock()
	if conn == nil {
		return nil
	}
	log.Infof("[Overlay] Unlinked peer %s at %s", p.node.ID, p.node.Address)
	return conn.Close()
}

// Send relays an encoded transaction to the peer
func (p *GRPCPeer) Send(ctx context.Context, blob []byte) error {
	p.mutex.RLock()
	client := p.client
	p.mutex.RUnlock()
	if client == nil {
		return ErrNotLinked
	}
	_, err := client.Relay(ctx, wrapperspb.Bytes(blob))
	return err
}

// Pinger is implemented by peers that can check they are reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks that the peer answers
func (p *GRPCPeer) Ping(ctx context.Context) error {
	p.mutex.RLock()
	client := p.client
	p.mutex.RUnlock()
	if client == nil {
		return ErrNotLinked
	}
	_, err := client.Ping(ctx, &emptypb.Empty{})
	return err
}

// CreateGRPCPeer creates an unlinked handle on node
func CreateGRPCPeer(node *models.Node) *GRPCPeer {
	return &GRPCPeer{node: node}
}
