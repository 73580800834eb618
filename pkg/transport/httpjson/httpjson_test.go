package httpjson

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tarlanmammadov/paxos-council/pkg/transport"
)

type statusPayload struct {
	Value string `json:"value"`
}

func TestHTTPJSONStatusRoundTrip(t *testing.T) {
	bind := "127.0.0.1:18099"
	srv := NewServer(bind, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	status := func(ctx context.Context) ([]byte, error) {
		return json.Marshal(statusPayload{Value: "hello"})
	}
	if err := srv.Start(ctx, status, nil, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	client := NewClient(2 * time.Second)
	data, err := client.GetStatus(context.Background(), bind)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	var got statusPayload
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Value != "hello" {
		t.Fatalf("expected value 'hello', got %q", got.Value)
	}
}

func TestHTTPJSONProposeRoundTrip(t *testing.T) {
	bind := "127.0.0.1:18100"
	srv := NewServer(bind, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gotValue string
	propose := func(ctx context.Context, req transport.ProposeRequest) (transport.ProposeResponse, error) {
		gotValue = req.Value
		return transport.ProposeResponse{Success: true}, nil
	}
	if err := srv.Start(ctx, nil, propose, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	client := NewClient(2 * time.Second)
	resp, err := client.PostPropose(context.Background(), bind, transport.ProposeRequest{Value: "candidate"})
	if err != nil {
		t.Fatalf("PostPropose: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected Success true, got %#v", resp)
	}
	if gotValue != "candidate" {
		t.Fatalf("expected server to observe value 'candidate', got %q", gotValue)
	}
}

func TestHTTPJSONProposeSurfacesServerError(t *testing.T) {
	bind := "127.0.0.1:18101"
	srv := NewServer(bind, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	propose := func(ctx context.Context, req transport.ProposeRequest) (transport.ProposeResponse, error) {
		return transport.ProposeResponse{}, errors.New("election failed")
	}
	if err := srv.Start(ctx, nil, propose, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	client := NewClient(2 * time.Second)
	_, err := client.PostPropose(context.Background(), bind, transport.ProposeRequest{Value: "x"})
	if err == nil {
		t.Fatalf("expected an error to propagate from a failed propose")
	}
}

func TestHTTPJSONResetRoundTrip(t *testing.T) {
	bind := "127.0.0.1:18102"
	srv := NewServer(bind, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := false
	reset := func(ctx context.Context) (transport.ResetResponse, error) {
		called = true
		return transport.ResetResponse{}, nil
	}
	if err := srv.Start(ctx, nil, nil, reset); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	client := NewClient(2 * time.Second)
	if _, err := client.PostReset(context.Background(), bind); err != nil {
		t.Fatalf("PostReset: %v", err)
	}
	if !called {
		t.Fatalf("expected the reset handler to have been invoked")
	}
}
