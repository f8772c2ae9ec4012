package cluster

import (
	"fmt"
	"strings"

	"github.com/mavleo96/ledger-partition/internal/config"
	"github.com/mavleo96/ledger-partition/internal/overlay"
)

// ClusterID names a target set of peers
type ClusterID int

const (
	None     ClusterID = -1
	All      ClusterID = 0
	ClusterA ClusterID = 1
	ClusterB ClusterID = 2
)

func (c ClusterID) String() string {
	switch c {
	case None:
		return "NONE"
	case All:
		return "ALL"
	case ClusterA:
		return "CLUSTER_A"
	case ClusterB:
		return "CLUSTER_B"
	default:
		return fmt.Sprintf("CLUSTER(%d)", int(c))
	}
}

// Valid reports whether c is one of the known cluster ids
func (c ClusterID) Valid() bool {
	return c >= None && c <= ClusterB
}

// ParseClusterID parses a cluster name such as "all" or "cluster_a"
func ParseClusterID(s string) (ClusterID, error) {
	switch strings.ToUpper(s) {
	case "NONE":
		return None, nil
	case "ALL":
		return All, nil
	case "A", "CLUSTER_A":
		return ClusterA, nil
	case "B", "CLUSTER_B":
		return ClusterB, nil
	}
	return None, fmt.Errorf("unknown cluster %q", s)
}

// Assignment maps a peer to the partition it belongs to
type Assignment interface {
	ClusterOf(peer overlay.PeerIdentity) ClusterID
}

// Table is a static Assignment. Peers missing from the table belong to no
// partition.
type Table map[overlay.PeerIdentity]ClusterID

// ClusterOf implements Assignment
func (t Table) ClusterOf(peer overlay.PeerIdentity) ClusterID {
	if c, ok := t[peer]; ok {
		return c
	}
	return None
}

// TableFromConfig builds the assignment table from the configured clusters
func TableFromConfig(cfg config.ClusterConfig) Table {
	table := make(Table, len(cfg.A)+len(cfg.B))
	for _, addr := range cfg.A {
		table[overlay.PeerIdentity(addr)] = ClusterA
	}
	for _, addr := range cfg.B {
		table[overlay.PeerIdentity(addr)] = ClusterB
	}
	return table
}

// Member reports whether peer belongs to the target set of id. Unknown ids
// panic.
func Member(a Assignment, id ClusterID, peer overlay.PeerIdentity) bool {
	switch id {
	case All:
		return true
	case None:
		return false
	case ClusterA, ClusterB:
		return a.ClusterOf(peer) == id
	default:
		panic(fmt.Sprintf("cluster: unknown cluster id %d", int(id)))
	}
}
