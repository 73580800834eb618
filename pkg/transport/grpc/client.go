package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tarlanmammadov/paxos-council/pkg/paxos"
)

// Client delivers Paxos messages by dialing a fresh connection per send,
// invoking Council.Deliver once, and closing immediately: Paxos wire
// traffic does not reuse connections, since a
// BehaviorGate delay already holds the sending goroutine for the duration of
// one send and a pooled connection would gain nothing.
type Client struct {
	addressBook map[int]string
	timeout     time.Duration
	tlsCfg      *tls.Config
}

// NewClient builds a Client that resolves peer ids against addressBook.
// timeout bounds each individual dial+invoke; it defaults to 3s.
func NewClient(addressBook map[int]string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	book := make(map[int]string, len(addressBook))
	for k, v := range addressBook {
		book[k] = v
	}
	return &Client{addressBook: book, timeout: timeout}
}

// UseTLS enables TLS for outbound connections.
func (c *Client) UseTLS(cfg *tls.Config) *Client { c.tlsCfg = cfg; return c }

// Send dials toID's address, invokes Council.Deliver with msg, and closes
// the connection before returning. It satisfies paxos.Sender.
func (c *Client) Send(toID int, msg paxos.Message) error {
	addr, ok := c.addressBook[toID]
	if !ok {
		return fmt.Errorf("%w: %d", paxos.ErrUnknownPeer, toID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
		grpc.WithBlock(),
	}
	if c.tlsCfg != nil {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return fmt.Errorf("dial %d at %s: %w", toID, addr, err)
	}
	defer cc.Close()

	out := new(ack)
	if err := cc.Invoke(ctx, "/paxos.v1.Council/Deliver", &msg, out); err != nil {
		return fmt.Errorf("deliver to %d at %s: %w", toID, addr, err)
	}
	return nil
}

var _ paxos.Sender = (*Client)(nil)
