package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/mavleo96/ledger-partition/internal/config"
	"github.com/mavleo96/ledger-partition/internal/hashrouter"
	"github.com/mavleo96/ledger-partition/internal/overlay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	id         overlay.PeerIdentity
	linked     bool
	connectErr error
	connects   int
	closes     int
}

func (p *fakePeer) Identity() overlay.PeerIdentity { return p.id }
func (p *fakePeer) IsLinked() bool                 { return p.linked }

func (p *fakePeer) Connect() error {
	p.connects++
	if p.connectErr != nil {
		return p.connectErr
	}
	p.linked = true
	return nil
}

func (p *fakePeer) Close() error {
	p.closes++
	p.linked = false
	return nil
}

func (p *fakePeer) Send(ctx context.Context, blob []byte) error { return nil }

func topology(linked bool) ([]*fakePeer, *overlay.Overlay, Table) {
	peers := []*fakePeer{
		{id: "a1", linked: linked},
		{id: "a2", linked: linked},
		{id: "b1", linked: linked},
		{id: "b2", linked: linked},
		{id: "x1", linked: linked},
	}
	handles := make([]overlay.Peer, len(peers))
	for i, p := range peers {
		handles[i] = p
	}
	table := TableFromConfig(config.ClusterConfig{A: []string{"a1", "a2"}, B: []string{"b1", "b2"}})
	return peers, overlay.CreateOverlay(handles, hashrouter.CreateHashRouter(16), 0), table
}

func linkedSet(peers []*fakePeer) []overlay.PeerIdentity {
	var ids []overlay.PeerIdentity
	for _, p := range peers {
		if p.linked {
			ids = append(ids, p.id)
		}
	}
	return ids
}

func TestApplyAllTwiceIssuesNoFurtherActions(t *testing.T) {
	peers, o, table := topology(false)
	c := CreateController(o, table)

	actions, err := c.ApplyCluster(All)
	require.NoError(t, err)
	assert.Equal(t, 5, actions.Count(ActionConnect))
	assert.Zero(t, actions.Count(ActionDisconnect))

	actions, err = c.ApplyCluster(All)
	require.NoError(t, err)
	assert.Empty(t, actions)
	for _, p := range peers {
		assert.Equal(t, 1, p.connects)
	}
}

func TestApplyClusterPartitions(t *testing.T) {
	peers, o, table := topology(true)
	c := CreateController(o, table)

	actions, err := c.ApplyCluster(ClusterA)
	require.NoError(t, err)
	assert.Equal(t, 3, actions.Count(ActionDisconnect))
	assert.Equal(t, []overlay.PeerIdentity{"a1", "a2"}, linkedSet(peers))

	actions, err = c.ApplyCluster(ClusterB)
	require.NoError(t, err)
	assert.Equal(t, 2, actions.Count(ActionConnect))
	assert.Equal(t, 2, actions.Count(ActionDisconnect))
	assert.Equal(t, []overlay.PeerIdentity{"b1", "b2"}, linkedSet(peers))

	actions, err = c.ApplyCluster(ClusterB)
	require.NoError(t, err)
	assert.Empty(t, actions)

	_, err = c.ApplyCluster(None)
	require.NoError(t, err)
	assert.Empty(t, linkedSet(peers))
}

func TestApplyClusterAggregatesFailures(t *testing.T) {
	peers, o, table := topology(false)
	peers[0].connectErr = errors.New("refused")
	c := CreateController(o, table)

	actions, err := c.ApplyCluster(ClusterA)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect a1")
	assert.Len(t, actions, 2)
	assert.True(t, peers[1].linked)
}

func TestUnknownClusterPanics(t *testing.T) {
	_, o, table := topology(false)
	c := CreateController(o, table)
	assert.Panics(t, func() { c.ApplyCluster(ClusterID(7)) })
	assert.Panics(t, func() { Member(table, ClusterID(-2), "a1") })
}

func TestAssignmentTable(t *testing.T) {
	_, _, table := topology(false)
	assert.Equal(t, ClusterA, table.ClusterOf("a2"))
	assert.Equal(t, ClusterB, table.ClusterOf("b1"))
	assert.Equal(t, None, table.ClusterOf("x1"))
	assert.True(t, Member(table, All, "x1"))
	assert.False(t, Member(table, ClusterA, "x1"))

	id, err := ParseClusterID("cluster_b")
	require.NoError(t, err)
	assert.Equal(t, ClusterB, id)
	_, err = ParseClusterID("c")
	assert.Error(t, err)
}
