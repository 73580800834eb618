package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tarlanmammadov/paxos-council/pkg/transport"
)

// AdminClient calls a remote member's admin surface over gRPC, opening one
// connection per call and closing it when the call returns.
type AdminClient struct {
	timeout time.Duration
	tlsCfg  *tls.Config
}

func NewAdminClient(timeout time.Duration) *AdminClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &AdminClient{timeout: timeout}
}

func (c *AdminClient) UseTLS(cfg *tls.Config) *AdminClient { c.tlsCfg = cfg; return c }

func (c *AdminClient) dial(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
		grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
		grpc.WithBlock(),
	}
	if c.tlsCfg != nil {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	return grpc.DialContext(ctx, addr, opts...)
}

func (c *AdminClient) GetStatus(ctx context.Context, addr string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	cc, err := c.dial(cctx, addr)
	if err != nil {
		return nil, err
	}
	defer cc.Close()
	out := new(statusBlob)
	if err := cc.Invoke(cctx, "/paxos.v1.Admin/GetStatus", &empty{}, out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *AdminClient) PostPropose(ctx context.Context, addr string, req transport.ProposeRequest) (transport.ProposeResponse, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var resp transport.ProposeResponse
	cc, err := c.dial(cctx, addr)
	if err != nil {
		return resp, err
	}
	defer cc.Close()
	if err := cc.Invoke(cctx, "/paxos.v1.Admin/Propose", &req, &resp); err != nil {
		return resp, err
	}
	if resp.Error != "" {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *AdminClient) PostReset(ctx context.Context, addr string) (transport.ResetResponse, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var resp transport.ResetResponse
	cc, err := c.dial(cctx, addr)
	if err != nil {
		return resp, err
	}
	defer cc.Close()
	if err := cc.Invoke(cctx, "/paxos.v1.Admin/Reset", &empty{}, &resp); err != nil {
		return resp, err
	}
	if resp.Error != "" {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

var _ transport.AdminClient = (*AdminClient)(nil)
