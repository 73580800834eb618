package grpc

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/tarlanmammadov/paxos-council/pkg/paxos"
)

// Server binds a listener and delivers every inbound Message to a handler
// function, using a hand-registered gRPC service and the JSON codec so no
// protobuf codegen is required. It implements paxos.Listener.
type Server struct {
	bind   string
	lis    net.Listener
	srv    *grpc.Server
	tlsCfg *tls.Config
}

// NewServer builds a Server bound to addr once Listen is called.
func NewServer(bind string) *Server { return &Server{bind: bind} }

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

type ack struct{}

// councilServer defines the RPC surface exposed by the wire transport.
type councilServer interface {
	Deliver(ctx context.Context, in *paxos.Message) (*ack, error)
}

type councilImpl struct{ handle func(paxos.Message) }

func (c *councilImpl) Deliver(_ context.Context, in *paxos.Message) (*ack, error) {
	if in == nil {
		return &ack{}, nil
	}
	c.handle(*in)
	return &ack{}, nil
}

var _Council_serviceDesc = grpc.ServiceDesc{
	ServiceName: "paxos.v1.Council",
	HandlerType: (*councilServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: _Council_Deliver_Handler},
	},
}

func _Council_Deliver_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(paxos.Message)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(councilServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/paxos.v1.Council/Deliver"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(councilServer).Deliver(ctx, req.(*paxos.Message))
	}
	return interceptor(ctx, in, info, handler)
}

// Listen binds the socket and starts accepting inbound Council.Deliver calls
// in the background, invoking handle for each decoded Message. It satisfies
// paxos.Listener.
func (s *Server) Listen(handle func(paxos.Message)) error {
	lis, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	s.lis = lis

	var opts []grpc.ServerOption
	opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
	opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}))
	opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}))
	if s.tlsCfg != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg)))
	}
	srv := grpc.NewServer(opts...)
	s.srv = srv

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	srv.RegisterService(&_Council_serviceDesc, &councilImpl{handle: handle})

	go func() { _ = srv.Serve(lis) }()
	return nil
}

// Close stops the server, waiting briefly for in-flight RPCs before forcing
// a hard stop.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	ch := make(chan struct{})
	go func() { s.srv.GracefulStop(); close(ch) }()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		s.srv.Stop()
	}
	s.srv = nil
	if s.lis != nil {
		_ = s.lis.Close()
		s.lis = nil
	}
	return nil
}

// Addr returns the socket's bind address.
func (s *Server) Addr() string { return s.bind }

var _ paxos.Listener = (*Server)(nil)
