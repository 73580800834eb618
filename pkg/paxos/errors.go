package paxos

import "errors"

var (
	// ErrUnknownPeer is returned by a Sender when asked to deliver to a peer
	// id absent from its address book.
	ErrUnknownPeer = errors.New("paxos: unknown peer id")

	// ErrDecode reports that an inbound connection's bytes failed to decode
	// as a Message. The gRPC Server in pkg/transport/grpc does not return
	// it: a decode failure there fails that one call with the codec's own
	// error, and no state changes as a result.
	ErrDecode = errors.New("paxos: message decode failed")
)
