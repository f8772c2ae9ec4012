package models

// Node represents a ledger node reachable over gRPC
type Node struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}
