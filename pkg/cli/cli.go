// Package cli wires the councild command surface: run/propose/status/reset.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tarlanmammadov/paxos-council/pkg/bootstrap"
	"github.com/tarlanmammadov/paxos-council/pkg/paxos"
	"github.com/tarlanmammadov/paxos-council/pkg/transport"
	transportgrpc "github.com/tarlanmammadov/paxos-council/pkg/transport/grpc"
	"github.com/tarlanmammadov/paxos-council/pkg/transport/httpjson"
)

// AddAll attaches the council subcommands to the provided root command.
func AddAll(root *cobra.Command) {
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewProposeCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewResetCmd())
}

// NewRunCmd returns the "run" command used to start a council member.
func NewRunCmd() *cobra.Command {
	var (
		id                                    int
		behavior, addressBook                 string
		adminAddr, adminProto                 string
		tlsEnable, tlsSkip, traceEnable       bool
		tlsCA, tlsCert, tlsKey, tlsServerName string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a council member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("missing --id")
			}
			ctx, cancel := signalContext()
			defer cancel()

			cfg := bootstrap.Config{
				ID:             id,
				Behavior:       paxos.Behavior(behavior),
				AddressBookCSV: addressBook,
				AdminAddr:      adminAddr,
				AdminProto:     adminProto,
				TLSEnable:      tlsEnable,
				TLSCA:          tlsCA,
				TLSCert:        tlsCert,
				TLSKey:         tlsKey,
				TLSServerName:  tlsServerName,
				TLSSkipVerify:  tlsSkip,
				TracingEnable:  traceEnable,
			}
			member, err := bootstrap.Run(ctx, cfg)
			if err != nil {
				return err
			}
			defer member.Shutdown(context.Background())

			fmt.Printf("council member %d running. Press Ctrl+C to exit.\n", id)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "this member's id (required)")
	cmd.Flags().StringVar(&behavior, "behavior", string(paxos.ImmediateResponse), "fault profile: IMMEDIATE_RESPONSE|SMALL_DELAY|LARGE_DELAY|NO_RESPONSE")
	cmd.Flags().StringVar(&addressBook, "address-book", "", "comma-separated id=host:port list, including this member (required)")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", ":8080", "bind address for the status/propose/reset surface (empty disables it)")
	cmd.Flags().StringVar(&adminProto, "admin-proto", "http", "admin surface protocol: http|grpc")
	cmd.Flags().BoolVar(&tlsEnable, "tls-enable", false, "enable mTLS for the Paxos transport and the admin surface")
	cmd.Flags().StringVar(&tlsCA, "tls-ca", "", "path to CA cert (PEM)")
	cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "path to member certificate (PEM)")
	cmd.Flags().StringVar(&tlsKey, "tls-key", "", "path to member private key (PEM)")
	cmd.Flags().BoolVar(&tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
	cmd.Flags().StringVar(&tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
	cmd.Flags().BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing for admin calls")
	return cmd
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
	var (
		addr, proto string
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Fetch a council member's status as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			client := adminClient(proto, timeout)
			data, err := client.GetStatus(ctx, addr)
			if err != nil {
				return fmt.Errorf("status error: %w", err)
			}
			os.Stdout.Write(data)
			if len(data) == 0 || data[len(data)-1] != '\n' {
				os.Stdout.Write([]byte("\n"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "admin address of a member (host:port)")
	cmd.Flags().StringVar(&proto, "admin-proto", "http", "admin surface protocol: http|grpc")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
	return cmd
}

// NewProposeCmd returns the "propose" command.
func NewProposeCmd() *cobra.Command {
	var (
		addr, proto, value string
		timeout            time.Duration
	)
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Ask a member to drive an election for a value",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			client := adminClient(proto, timeout)
			resp, err := client.PostPropose(ctx, addr, transport.ProposeRequest{Value: value})
			if err != nil {
				return fmt.Errorf("propose error: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(resp)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "admin address of a member (host:port)")
	cmd.Flags().StringVar(&proto, "admin-proto", "http", "admin surface protocol: http|grpc")
	cmd.Flags().StringVar(&value, "value", "", "value to propose")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "request timeout (should exceed the election phase timeouts)")
	return cmd
}

// NewResetCmd returns the "reset" command.
func NewResetCmd() *cobra.Command {
	var (
		addr, proto string
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear a member's proposer/acceptor state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			client := adminClient(proto, timeout)
			resp, err := client.PostReset(ctx, addr)
			if err != nil {
				return fmt.Errorf("reset error: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(resp)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "admin address of a member (host:port)")
	cmd.Flags().StringVar(&proto, "admin-proto", "http", "admin surface protocol: http|grpc")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
	return cmd
}

func adminClient(proto string, timeout time.Duration) transport.AdminClient {
	switch proto {
	case "grpc":
		return transportgrpc.NewAdminClient(timeout)
	default:
		return httpjson.NewClient(timeout)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx, cancel
}
