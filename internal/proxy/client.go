// Package proxy implements the gateway's Proxy Manager: lifecycle
// management of downstream MCP connections, transparent request
// forwarding with per-request session isolation, and OAuth auto-detection
// for HTTP transports, per spec.md §4.4.
package proxy

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// State is a ProxyClient's lifecycle state, per spec.md §3.
type State int

const (
	StatePending State = iota
	StateReady
	StateFailed
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// ToolDescriptor is a first-class record of one downstream tool, per
// spec.md §9 ("model tools as first-class data").
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// transport is the uniform surface a stdio or HTTP downstream connection
// implements. A transport owns exactly one downstream server.
type transport interface {
	// start establishes the connection (spawns the subprocess, or
	// performs the initial MCP-over-HTTP handshake).
	start(ctx context.Context) error
	// call sends a single JSON-RPC request and returns the matching
	// response. Implementations guarantee no interleaving of frames
	// belonging to different concurrent calls on the same transport.
	call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)
	// close tears down the connection.
	close() error
}
