package grpc

import (
	"sync"
	"testing"
	"time"

	"github.com/tarlanmammadov/paxos-council/pkg/paxos"
)

func TestServerClientDeliverRoundTrip(t *testing.T) {
	addr := "127.0.0.1:18201"
	srv := NewServer(addr)

	var mu sync.Mutex
	var got paxos.Message
	received := make(chan struct{}, 1)

	err := srv.Listen(func(msg paxos.Message) {
		mu.Lock()
		got = msg
		mu.Unlock()
		received <- struct{}{}
	})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()
	time.Sleep(50 * time.Millisecond)

	client := NewClient(map[int]string{2: addr}, 2*time.Second)
	want := paxos.NewValueMessage(paxos.AcceptRequest, 4, "value", 1)
	if err := client.Send(2, want); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received the delivered message")
	}

	mu.Lock()
	defer mu.Unlock()
	if got != want {
		t.Fatalf("delivered message mismatch: got %#v want %#v", got, want)
	}
}

func TestClientSendToUnknownPeerFails(t *testing.T) {
	client := NewClient(map[int]string{2: "127.0.0.1:18202"}, time.Second)
	err := client.Send(99, paxos.NewMessage(paxos.Prepare, 1, 1))
	if err == nil {
		t.Fatalf("expected an error for an unknown peer id")
	}
}

func TestClientSendFailsWhenPeerUnreachable(t *testing.T) {
	client := NewClient(map[int]string{2: "127.0.0.1:1"}, 500*time.Millisecond)
	err := client.Send(2, paxos.NewMessage(paxos.Prepare, 1, 1))
	if err == nil {
		t.Fatalf("expected an error dialing an unreachable peer")
	}
}
