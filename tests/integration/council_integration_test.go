//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/tarlanmammadov/paxos-council/pkg/bootstrap"
	"github.com/tarlanmammadov/paxos-council/pkg/paxos"
	"github.com/tarlanmammadov/paxos-council/pkg/transport"
	"github.com/tarlanmammadov/paxos-council/pkg/transport/httpjson"
)

func addressBookCSV(members map[int]string) string {
	csv := ""
	for id, addr := range members {
		if csv != "" {
			csv += ","
		}
		csv += fmt.Sprintf("%d=%s", id, addr)
	}
	return csv
}

// TestThreeMembersReachConsensus starts three council members wired with
// real gRPC transports on loopback ports, drives one election via the HTTP
// admin surface, and confirms every member converges on the same value.
func TestThreeMembersReachConsensus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	members := map[int]string{
		1: "127.0.0.1:19601",
		2: "127.0.0.1:19602",
		3: "127.0.0.1:19603",
	}
	admins := map[int]string{
		1: "127.0.0.1:19611",
		2: "127.0.0.1:19612",
		3: "127.0.0.1:19613",
	}
	csv := addressBookCSV(members)

	running := make([]*bootstrap.Member, 0, 3)
	for id := range members {
		m, err := bootstrap.Run(ctx, bootstrap.Config{
			ID:             id,
			Behavior:       paxos.ImmediateResponse,
			AddressBookCSV: csv,
			AdminAddr:      admins[id],
			AdminProto:     "http",
		})
		if err != nil {
			t.Fatalf("member %d: %v", id, err)
		}
		running = append(running, m)
	}
	defer func() {
		for _, m := range running {
			_ = m.Shutdown(context.Background())
		}
	}()

	time.Sleep(100 * time.Millisecond)

	cli := httpjson.NewClient(3 * time.Second)
	resp, err := cli.PostPropose(ctx, admins[1], transport.ProposeRequest{Value: "n1"})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected election to succeed with a fully responsive council")
	}

	deadline := time.Now().Add(10 * time.Second)
	for _, addr := range admins {
		for {
			data, err := cli.GetStatus(ctx, addr)
			var s paxos.Status
			if err == nil {
				if uErr := json.Unmarshal(data, &s); uErr == nil && s.HasAcceptedValue && s.AcceptedValue == "n1" {
					break
				}
			}
			if time.Now().After(deadline) {
				t.Fatalf("member at %s never converged on 'n1'", addr)
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// TestMinorityCannotBlockElection reproduces the "minority silent" scenario:
// two of five members never respond, and the remaining majority still
// reaches consensus.
func TestMinorityCannotBlockElection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	members := map[int]string{
		1: "127.0.0.1:19621",
		2: "127.0.0.1:19622",
		3: "127.0.0.1:19623",
		4: "127.0.0.1:19624",
		5: "127.0.0.1:19625",
	}
	admins := map[int]string{
		3: "127.0.0.1:19633",
	}
	behaviors := map[int]paxos.Behavior{
		1: paxos.NoResponse,
		2: paxos.NoResponse,
		3: paxos.ImmediateResponse,
		4: paxos.ImmediateResponse,
		5: paxos.ImmediateResponse,
	}
	csv := addressBookCSV(members)

	running := make([]*bootstrap.Member, 0, len(members))
	for id := range members {
		cfg := bootstrap.Config{
			ID:             id,
			Behavior:       behaviors[id],
			AddressBookCSV: csv,
		}
		if addr, ok := admins[id]; ok {
			cfg.AdminAddr = addr
			cfg.AdminProto = "http"
		}
		m, err := bootstrap.Run(ctx, cfg)
		if err != nil {
			t.Fatalf("member %d: %v", id, err)
		}
		running = append(running, m)
	}
	defer func() {
		for _, m := range running {
			_ = m.Shutdown(context.Background())
		}
	}()

	time.Sleep(100 * time.Millisecond)

	cli := httpjson.NewClient(3 * time.Second)
	resp, err := cli.PostPropose(ctx, admins[3], transport.ProposeRequest{Value: "majority-wins"})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected a majority of 3-of-5 to reach consensus despite 2 silent members")
	}
}
