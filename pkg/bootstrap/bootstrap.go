// Package bootstrap assembles a CouncilMember from flat configuration:
// address book, id, behavior, transport choice and optional TLS/tracing,
// so cmd/councild (through pkg/cli) doesn't repeat the wiring.
package bootstrap

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/tarlanmammadov/paxos-council/pkg/addressbook"
	"github.com/tarlanmammadov/paxos-council/pkg/observability/metrics"
	"github.com/tarlanmammadov/paxos-council/pkg/observability/tracing"
	"github.com/tarlanmammadov/paxos-council/pkg/paxos"
	tlsx "github.com/tarlanmammadov/paxos-council/pkg/security/tlsconfig"
	"github.com/tarlanmammadov/paxos-council/pkg/transport"
	transportgrpc "github.com/tarlanmammadov/paxos-council/pkg/transport/grpc"
	"github.com/tarlanmammadov/paxos-council/pkg/transport/httpjson"
)

// Config defines the inputs needed to assemble one council member.
type Config struct {
	// Identity
	ID       int
	Behavior paxos.Behavior

	// AddressBookCSV is "id=host:port,id=host:port,...", including this
	// member's own id and bind address.
	AddressBookCSV string

	// AdminAddr is the bind address for the status/propose/reset surface.
	// Empty disables the admin surface.
	AdminAddr  string
	AdminProto string // "http" (default) or "grpc"

	// TLS for the Paxos gRPC wire transport and the admin surface. It
	// secures the channel only; Paxos messages carry no authentication.
	TLSEnable     bool
	TLSCA         string
	TLSCert       string
	TLSKey        string
	TLSServerName string
	TLSSkipVerify bool

	// TracingEnable turns on stdout span export for admin calls.
	TracingEnable bool

	Logger *log.Logger
}

// Member bundles the assembled CouncilMember with its admin surface, if any.
type Member struct {
	Council *paxos.CouncilMember
	Admin   transport.AdminServer

	shutdownTracing func(context.Context) error
}

// Build parses Config and wires a CouncilMember, its gRPC Paxos transport,
// and (if configured) an admin surface. It performs no listening; call
// Council.Listen and Admin.Start (or Run) to begin accepting traffic.
func Build(cfg Config) (*Member, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	metrics.Register()

	book, err := addressbook.Parse(cfg.AddressBookCSV)
	if err != nil {
		return nil, err
	}
	selfAddr, ok := book[cfg.ID]
	if !ok {
		return nil, fmt.Errorf("bootstrap: address book has no entry for id %d", cfg.ID)
	}

	var tlsSrv, tlsCli *tls.Config
	if cfg.TLSEnable {
		topts := tlsx.Options{
			Enable:             true,
			CAFile:             cfg.TLSCA,
			CertFile:           cfg.TLSCert,
			KeyFile:            cfg.TLSKey,
			InsecureSkipVerify: cfg.TLSSkipVerify,
			ServerName:         cfg.TLSServerName,
			Label:              fmt.Sprintf("member-%d", cfg.ID),
			Logger:             cfg.Logger,
		}
		if s, err := topts.ServerHotReload(); err == nil {
			tlsSrv = s
		} else {
			return nil, err
		}
		if c, err := topts.ClientHotReload(); err == nil {
			tlsCli = c
		} else {
			return nil, err
		}
	}

	shutdownTracing, err := tracing.Setup(cfg.TracingEnable)
	if err != nil {
		return nil, err
	}

	client := transportgrpc.NewClient(book.Copy(), 3*time.Second)
	if tlsCli != nil {
		client.UseTLS(tlsCli)
	}
	server := transportgrpc.NewServer(selfAddr)
	if tlsSrv != nil {
		server.UseTLS(tlsSrv)
	}

	council := paxos.NewCouncilMember(cfg.ID, cfg.Behavior, book, client, server, cfg.Logger)

	var admin transport.AdminServer
	if cfg.AdminAddr != "" {
		switch cfg.AdminProto {
		case "grpc":
			a := transportgrpc.NewAdminServer(cfg.AdminAddr).WithMemberID(cfg.ID)
			if tlsSrv != nil {
				a.UseTLS(tlsSrv)
			}
			admin = a
		default:
			a := httpjson.NewServer(cfg.AdminAddr, cfg.Logger).WithMemberID(cfg.ID)
			if tlsSrv != nil {
				a.UseTLS(tlsSrv)
			}
			admin = a
		}
	}

	return &Member{Council: council, Admin: admin, shutdownTracing: shutdownTracing}, nil
}

// Run builds a member, starts its listener and (if configured) its admin
// surface, and returns it for lifecycle control by the caller.
func Run(ctx context.Context, cfg Config) (*Member, error) {
	m, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	if err := m.Council.Listen(); err != nil {
		return nil, err
	}
	if m.Admin != nil {
		status := func(ctx context.Context) ([]byte, error) {
			return jsonStatus(m.Council)
		}
		propose := func(ctx context.Context, req transport.ProposeRequest) (transport.ProposeResponse, error) {
			ok := m.Council.StartElection(req.Value)
			return transport.ProposeResponse{Success: ok}, nil
		}
		reset := func(ctx context.Context) (transport.ResetResponse, error) {
			m.Council.Reset()
			return transport.ResetResponse{}, nil
		}
		if err := m.Admin.Start(ctx, status, propose, reset); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Shutdown stops the member's listener, admin surface, and tracing exporter.
func (m *Member) Shutdown(ctx context.Context) error {
	if m.Admin != nil {
		_ = m.Admin.Stop(ctx)
	}
	err := m.Council.Shutdown()
	if m.shutdownTracing != nil {
		_ = m.shutdownTracing(ctx)
	}
	return err
}

func jsonStatus(c *paxos.CouncilMember) ([]byte, error) {
	return json.Marshal(c.Status())
}
