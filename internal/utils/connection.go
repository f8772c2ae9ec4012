package utils

import (
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

var peerKeepalive = keepalive.ClientParameters{
	Time:                30 * time.Second,
	Timeout:             10 * time.Second,
	PermitWithoutStream: false,
}

// Connect creates a lazy client connection to a ledger node at addr.
// Nothing is dialed until the first RPC, so a partitioned or not yet
// started node does not fail the caller. Calls wait for the connection
// to become ready unless their context expires first.
func Connect(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(peerKeepalive),
		grpc.WithDefaultCallOptions(grpc.WaitForReady(true)),
	}, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gRPC client for %s: %w", addr, err)
	}
	return conn, nil
}
