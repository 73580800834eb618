package grpc

import (
	"testing"

	"github.com/tarlanmammadov/paxos-council/pkg/paxos"
)

func TestJSONCodecRoundTripsMessage(t *testing.T) {
	c := jsonCodec{}
	msg := paxos.NewValueMessage(paxos.AcceptRequest, 7, "chosen", 3)

	data, err := c.Marshal(&msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got paxos.Message
	if err := c.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != msg {
		t.Fatalf("round trip mismatch: got %#v want %#v", got, msg)
	}
}

func TestJSONCodecName(t *testing.T) {
	if (jsonCodec{}).Name() != "json" {
		t.Fatalf("expected codec name 'json'")
	}
}
