package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/roddutra/mcp-gateway/internal/gatewayerr"
)

const (
	scannerInitialBufSize = 256 * 1024
	scannerMaxBufSize     = 1024 * 1024
)

// Run speaks MCP over newline-delimited JSON-RPC on in/out, handling
// initialize, tools/list, and tools/call — the only surface the gateway
// exposes to its caller (spec.md §6 "MCP protocol surface"), mirroring the
// teacher's internal/service/proxy_service.go request loop. It returns when
// in is closed, or when a line arrives after ctx has been cancelled; a read
// that is blocked on in is not interrupted by cancelling ctx.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, scannerInitialBufSize), scannerMaxBufSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		decoded, err := jsonrpc.DecodeMessage(append([]byte(nil), line...))
		if err != nil {
			s.log.Warn("gateway: malformed inbound message, dropping", "error", err)
			continue
		}
		req, ok := decoded.(*jsonrpc.Request)
		if !ok {
			continue // a caller never sends us a response
		}

		resp := s.handleRequest(ctx, req)
		if resp == nil {
			continue // notification, no response expected
		}
		if err := writeMessage(out, resp); err != nil {
			return fmt.Errorf("gateway: write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("gateway: read inbound: %w", err)
	}
	return nil
}

func writeMessage(out io.Writer, msg jsonrpc.Message) error {
	raw, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if _, err := out.Write(raw); err != nil {
		return err
	}
	_, err = out.Write([]byte("\n"))
	return err
}

// handleRequest dispatches one inbound JSON-RPC request. Returns nil for
// notifications (no ID).
func (s *Server) handleRequest(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	if !req.ID.IsValid() {
		return nil
	}
	switch req.Method {
	case "initialize":
		result, _ := json.Marshal(map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]string{"name": "mcp-gateway", "version": "0.1.0"},
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
		})
		return &jsonrpc.Response{ID: req.ID, Result: result}

	case "notifications/initialized":
		return nil

	case "tools/list":
		result, _ := json.Marshal(map[string]interface{}{"tools": s.ToolDefinitions()})
		return &jsonrpc.Response{ID: req.ID, Result: result}

	case "tools/call":
		return s.handleToolsCall(ctx, req)

	default:
		return &jsonrpc.Response{ID: req.ID, Error: &jsonrpc.WireError{Code: -32601, Message: "method not found: " + req.Method}}
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &jsonrpc.Response{ID: req.ID, Error: &jsonrpc.WireError{Code: -32602, Message: "invalid params: " + err.Error()}}
	}

	result, err := s.HandleToolCall(ctx, params.Name, params.Arguments)
	if err != nil {
		return &jsonrpc.Response{ID: req.ID, Error: toWireError(err)}
	}

	// execute_tool returns the downstream's CallToolResult verbatim
	// (spec.md §4.5): pass its raw bytes through unwrapped. Every other
	// native tool returns plain gateway data, wrapped in a standard
	// text-content MCP result envelope.
	if raw, ok := result.(json.RawMessage); ok {
		return &jsonrpc.Response{ID: req.ID, Result: raw}
	}

	resultJSON, merr := json.Marshal(result)
	if merr != nil {
		return &jsonrpc.Response{ID: req.ID, Error: &jsonrpc.WireError{Code: -32603, Message: "encode result: " + merr.Error()}}
	}
	envelope, _ := json.Marshal(map[string]interface{}{"content": []map[string]interface{}{{"type": "text", "text": string(resultJSON)}}})
	return &jsonrpc.Response{ID: req.ID, Result: envelope}
}

// toWireError maps a gatewayerr.Error onto a JSON-RPC error response,
// per spec.md §7's taxonomy — the Kind is surfaced in the message so
// callers can branch on it without a bespoke error-code registry.
func toWireError(err error) *jsonrpc.WireError {
	if ge, ok := err.(*gatewayerr.Error); ok {
		return &jsonrpc.WireError{Code: -32000, Message: string(ge.Kind) + ": " + ge.Message}
	}
	return &jsonrpc.WireError{Code: -32603, Message: err.Error()}
}
