package grpc

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"

	obsmetrics "github.com/tarlanmammadov/paxos-council/pkg/observability/metrics"
	"github.com/tarlanmammadov/paxos-council/pkg/observability/tracing"
	"github.com/tarlanmammadov/paxos-council/pkg/transport"
)

// AdminServer exposes a member's status/propose/reset surface over gRPC
// with the JSON codec, separate from the Council wire service so the two
// can be bound to different ports or TLS policies.
type AdminServer struct {
	bind     string
	memberID int
	lis      net.Listener
	srv      *grpc.Server
	tlsCfg   *tls.Config
}

func NewAdminServer(bind string) *AdminServer { return &AdminServer{bind: bind} }

// WithMemberID tags spans emitted by this server with the council member
// it serves, so traces collected from multiple members can be told apart.
func (s *AdminServer) WithMemberID(id int) *AdminServer { s.memberID = id; return s }

func (s *AdminServer) UseTLS(cfg *tls.Config) *AdminServer { s.tlsCfg = cfg; return s }

type statusBlob struct {
	Data []byte `json:"data"`
}

type adminServer interface {
	GetStatus(ctx context.Context, in *empty) (*statusBlob, error)
	Propose(ctx context.Context, in *transport.ProposeRequest) (*transport.ProposeResponse, error)
	Reset(ctx context.Context, in *empty) (*transport.ResetResponse, error)
}

type empty struct{}

type adminImpl struct {
	status   transport.StatusFunc
	propose  transport.ProposeFunc
	reset    transport.ResetFunc
	memberID int
}

func (a *adminImpl) GetStatus(ctx context.Context, _ *empty) (*statusBlob, error) {
	ctx, end := tracing.StartSpan(ctx, "admin.status", attribute.Int("council.member", a.memberID))
	defer end()
	obsmetrics.AdminRequests.WithLabelValues("grpc", "status").Inc()
	b, err := a.status(ctx)
	if err != nil {
		return nil, err
	}
	return &statusBlob{Data: b}, nil
}

func (a *adminImpl) Propose(ctx context.Context, in *transport.ProposeRequest) (*transport.ProposeResponse, error) {
	if in == nil {
		in = &transport.ProposeRequest{}
	}
	ctx, end := tracing.StartSpan(ctx, "admin.propose", attribute.Int("council.member", a.memberID), attribute.Int("council.value_len", len(in.Value)))
	defer end()
	obsmetrics.AdminRequests.WithLabelValues("grpc", "propose").Inc()
	out, err := a.propose(ctx, *in)
	if err != nil {
		return &transport.ProposeResponse{Success: false, Error: err.Error()}, nil
	}
	return &out, nil
}

func (a *adminImpl) Reset(ctx context.Context, _ *empty) (*transport.ResetResponse, error) {
	ctx, end := tracing.StartSpan(ctx, "admin.reset", attribute.Int("council.member", a.memberID))
	defer end()
	obsmetrics.AdminRequests.WithLabelValues("grpc", "reset").Inc()
	out, err := a.reset(ctx)
	if err != nil {
		return &transport.ResetResponse{Error: err.Error()}, nil
	}
	return &out, nil
}

var _Admin_serviceDesc = grpc.ServiceDesc{
	ServiceName: "paxos.v1.Admin",
	HandlerType: (*adminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: _Admin_GetStatus_Handler},
		{MethodName: "Propose", Handler: _Admin_Propose_Handler},
		{MethodName: "Reset", Handler: _Admin_Reset_Handler},
	},
}

func _Admin_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/paxos.v1.Admin/GetStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).GetStatus(ctx, req.(*empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Admin_Propose_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(transport.ProposeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).Propose(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/paxos.v1.Admin/Propose"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).Propose(ctx, req.(*transport.ProposeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Admin_Reset_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).Reset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/paxos.v1.Admin/Reset"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).Reset(ctx, req.(*empty))
	}
	return interceptor(ctx, in, info, handler)
}

func (s *AdminServer) Start(ctx context.Context, status transport.StatusFunc, propose transport.ProposeFunc, reset transport.ResetFunc) error {
	lis, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	s.lis = lis

	var opts []grpc.ServerOption
	opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
	opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}))
	if s.tlsCfg != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg)))
	}
	srv := grpc.NewServer(opts...)
	s.srv = srv
	srv.RegisterService(&_Admin_serviceDesc, &adminImpl{status: status, propose: propose, reset: reset, memberID: s.memberID})

	go func() {
		<-ctx.Done()
		ch := make(chan struct{})
		go func() { srv.GracefulStop(); close(ch) }()
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			srv.Stop()
		}
	}()
	go func() { _ = srv.Serve(lis) }()
	return nil
}

func (s *AdminServer) Addr() string { return s.bind }

func (s *AdminServer) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ch := make(chan struct{})
	go func() { s.srv.GracefulStop(); close(ch) }()
	select {
	case <-ch:
	case <-ctx.Done():
		s.srv.Stop()
	}
	s.srv = nil
	if s.lis != nil {
		_ = s.lis.Close()
		s.lis = nil
	}
	return nil
}

var _ transport.AdminServer = (*AdminServer)(nil)
