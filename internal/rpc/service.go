package rpc

import (
	"context"
	"net"

	"github.com/mavleo96/ledger-partition/internal/api"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// AdminService serves the RPC commands over gRPC
type AdminService struct {
	server *Server
	admins map[string]bool
}

var _ api.AdminServer = (*AdminService)(nil)

func (a *AdminService) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return a.call(ctx, "submit", in)
}

func (a *AdminService) Attack(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return a.call(ctx, "attack", in)
}

func (a *AdminService) Unfreeze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return a.call(ctx, "unfreeze", in)
}

func (a *AdminService) AttackStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return a.call(ctx, "attack_status", in)
}

func (a *AdminService) ServerInfo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return a.call(ctx, "server_info", in)
}

func (a *AdminService) LedgerState(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return a.call(ctx, "ledger_state", in)
}

func (a *AdminService) LedgerReset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return a.call(ctx, "ledger_reset", in)
}

func (a *AdminService) ApplyCluster(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return a.call(ctx, "apply_cluster", in)
}

func (a *AdminService) call(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	c := &Context{Ctx: ctx, Params: in.AsMap(), Role: a.roleOf(ctx)}
	log.Debugf("[AdminService] %s from %s caller", method, c.Role)
	out, err := structpb.NewStruct(a.server.Dispatch(method, c))
	if err != nil {
		log.Errorf("[AdminService] Failed to render %s response: %v", method, err)
		return nil, status.Errorf(codes.Internal, "failed to render %s response: %v", method, err)
	}
	return out, nil
}

// roleOf grants the admin role to loopback and configured admin addresses
func (a *AdminService) roleOf(ctx context.Context) Role {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return RoleGuest
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		host = p.Addr.String()
	}
	if a.admins[host] {
		return RoleAdmin
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return RoleAdmin
	}
	return RoleGuest
}

// CreateAdminService creates the admin service. admins lists the hosts
// granted the admin role besides loopback.
func CreateAdminService(server *Server, admins []string) *AdminService {
	set := make(map[string]bool, len(admins))
	for _, host := range admins {
		set[host] = true
	}
	return &AdminService{server: server, admins: set}
}

// PeerService receives transactions relayed by peers
type PeerService struct {
	pipeline *Pipeline
}

var _ api.PeerServer = (*PeerService)(nil)

func (p *PeerService) Relay(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	out := p.pipeline.Receive(ctx, in.GetValue())
	if !out.OK() && out.Stage == StageDecode {
		return nil, status.Errorf(codes.InvalidArgument, "%v", out.Err)
	}
	res, err := structpb.NewStruct(out.JSON())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to render relay response: %v", err)
	}
	return res, nil
}

func (p *PeerService) Ping(ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, nil
}

// CreatePeerService creates the peer service feeding pipeline
func CreatePeerService(pipeline *Pipeline) *PeerService {
	return &PeerService{pipeline: pipeline}
}
