// Package transport declares the shapes shared between the admin transport
// bindings (pkg/transport/httpjson) and the Paxos wire transport
// (pkg/transport/grpc), without either binding depending on the other.
package transport

import "context"

// ProposeRequest asks a running member to drive an election for Value.
type ProposeRequest struct {
	Value string `json:"value"`
}

// ProposeResponse reports whether the election reached a majority.
type ProposeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ResetResponse acknowledges a reset request.
type ResetResponse struct {
	Error string `json:"error,omitempty"`
}

// StatusFunc returns the local member's JSON-encoded Status.
type StatusFunc func(ctx context.Context) ([]byte, error)

// ProposeFunc drives a local election and reports the outcome.
type ProposeFunc func(ctx context.Context, req ProposeRequest) (ProposeResponse, error)

// ResetFunc clears local proposer/acceptor state.
type ResetFunc func(ctx context.Context) (ResetResponse, error)

// AdminServer is the transport-agnostic contract for exposing a member's
// admin surface (status/propose/reset). Both the gRPC and HTTP+JSON
// bindings implement it.
type AdminServer interface {
	Start(ctx context.Context, status StatusFunc, propose ProposeFunc, reset ResetFunc) error
	Addr() string
	Stop(ctx context.Context) error
}

// AdminClient is the transport-agnostic contract for calling a remote
// member's admin surface.
type AdminClient interface {
	GetStatus(ctx context.Context, addr string) ([]byte, error)
	PostPropose(ctx context.Context, addr string, req ProposeRequest) (ProposeResponse, error)
	PostReset(ctx context.Context, addr string) (ResetResponse, error)
}
