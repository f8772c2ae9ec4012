// Package api declares the gRPC services of a ledger node. Requests and
// responses are protobuf well-known types so the services need no
// generated code: admin commands exchange structpb.Struct objects and peers
// exchange encoded transactions as BytesValue.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	AdminServiceName = "ledger.Admin"
	PeerServiceName  = "ledger.Peer"
)

// Admin command names
const (
	MethodSubmit       = "Submit"
	MethodAttack       = "Attack"
	MethodUnfreeze     = "Unfreeze"
	MethodAttackStatus = "AttackStatus"
	MethodServerInfo   = "ServerInfo"
	MethodLedgerState  = "LedgerState"
	MethodLedgerReset  = "LedgerReset"
	MethodApplyCluster = "ApplyCluster"
)

// Peer method names
const (
	MethodRelay = "Relay"
	MethodPing  = "Ping"
)

// AdminServer is the operator-facing command service
type AdminServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Attack(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Unfreeze(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AttackStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ServerInfo(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LedgerState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LedgerReset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyCluster(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// PeerServer is the node-to-node service
type PeerServer interface {
	Relay(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
	Ping(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

type adminCall func(AdminServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func adminHandler(method string, call adminCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AdminServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodSubmit, Handler: adminHandler(MethodSubmit, AdminServer.Submit)},
		{MethodName: MethodAttack, Handler: adminHandler(MethodAttack, AdminServer.Attack)},
		{MethodName: MethodUnfreeze, Handler: adminHandler(MethodUnfreeze, AdminServer.Unfreeze)},
		{MethodName: MethodAttackStatus, Handler: adminHandler(MethodAttackStatus, AdminServer.AttackStatus)},
		{MethodName: MethodServerInfo, Handler: adminHandler(MethodServerInfo, AdminServer.ServerInfo)},
		{MethodName: MethodLedgerState, Handler: adminHandler(MethodLedgerState, AdminServer.LedgerState)},
		{MethodName: MethodLedgerReset, Handler: adminHandler(MethodLedgerReset, AdminServer.LedgerReset)},
		{MethodName: MethodApplyCluster, Handler: adminHandler(MethodApplyCluster, AdminServer.ApplyCluster)},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterAdminServer registers srv on s
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

func relayHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServer).Relay(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + PeerServiceName + "/" + MethodRelay}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PeerServer).Relay(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + PeerServiceName + "/" + MethodPing}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PeerServer).Ping(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var peerServiceDesc = grpc.ServiceDesc{
	ServiceName: PeerServiceName,
	HandlerType: (*PeerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodRelay, Handler: relayHandler},
		{MethodName: MethodPing, Handler: pingHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterPeerServer registers srv on s
func RegisterPeerServer(s grpc.ServiceRegistrar, srv PeerServer) {
	s.RegisterService(&peerServiceDesc, srv)
}

// AdminClient calls the admin service of a node
type AdminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient creates an admin client over cc
func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

// Call invokes an admin command by method name
func (c *AdminClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+AdminServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// PeerClient calls the peer service of a node
type PeerClient struct {
	cc grpc.ClientConnInterface
}

// NewPeerClient creates a peer client over cc
func NewPeerClient(cc grpc.ClientConnInterface) *PeerClient {
	return &PeerClient{cc: cc}
}

// Relay sends an encoded transaction to the peer
func (c *PeerClient) Relay(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+PeerServiceName+"/"+MethodRelay, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping checks that the peer is reachable
func (c *PeerClient) Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+PeerServiceName+"/"+MethodPing, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
