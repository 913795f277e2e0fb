package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/roddutra/mcp-gateway/internal/config"
	"github.com/roddutra/mcp-gateway/internal/gatewayerr"
)

// tracer emits one span per downstream call, a no-op unless cmd/mcp-gateway
// installs a real TracerProvider (debug mode).
var tracer = otel.Tracer("github.com/roddutra/mcp-gateway/internal/proxy")

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ProxyClient is the gateway's handle to one downstream server, with its
// lifecycle State, per spec.md §3.
type ProxyClient struct {
	name  string
	desc  config.ServerDescriptor
	tr    transport
	state State

	mu    sync.Mutex
	tools []ToolDescriptor
}

// Manager is the gateway's Proxy Manager (spec.md §4.4). It owns every
// downstream connection, forwards calls, and reconciles its registry
// against catalog reloads.
type Manager struct {
	logger     *slog.Logger
	oauth      *oauthManager
	authorizer Authorizer

	mu       sync.RWMutex // guards registry; never held across I/O (spec.md §5)
	registry map[string]*ProxyClient
}

// NewManager builds a Manager. tokenCacheDir is where OAuth tokens are
// persisted per-URL (spec.md §6); authorizer performs the interactive half
// of the PKCE flow and may be nil if no HTTP+OAuth downstream is expected.
func NewManager(tokenCacheDir string, authorizer Authorizer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:     logger,
		oauth:      newOAuthManager(tokenCacheDir, authorizer),
		authorizer: authorizer,
		registry:   make(map[string]*ProxyClient),
	}
}

// Ensure implements ensure(server_name): returns a ready client, starting
// it on first use.
func (m *Manager) Ensure(ctx context.Context, name string, desc config.ServerDescriptor) (*ProxyClient, error) {
	m.mu.RLock()
	h, ok := m.registry[name]
	m.mu.RUnlock()

	if ok && h.state == StateReady {
		return h, nil
	}
	if ok && h.state == StateFailed {
		// Retry on next use, per spec.md §4.4 ("restarted on next use").
		_ = h.tr.close()
	}

	tr := m.newTransport(name, desc)
	h = &ProxyClient{name: name, desc: desc, tr: tr, state: StatePending}

	if err := tr.start(ctx); err != nil {
		h.state = StateFailed
		m.mu.Lock()
		m.registry[name] = h
		m.mu.Unlock()
		return nil, err
	}
	h.state = StateReady

	m.mu.Lock()
	m.registry[name] = h
	m.mu.Unlock()
	return h, nil
}

func (m *Manager) newTransport(name string, desc config.ServerDescriptor) transport {
	if desc.IsHTTP() {
		return newHTTPTransport(name, desc, m.oauth)
	}
	return newStdioTransport(name, desc)
}

// ListTools implements list_tools(server_name): fetches (or returns
// cached) tool schemas from the downstream server.
func (m *Manager) ListTools(ctx context.Context, name string, desc config.ServerDescriptor) (tools []ToolDescriptor, err error) {
	ctx, span := tracer.Start(ctx, "proxy.list_tools", trace.WithAttributes(attribute.String("mcp.server", name)))
	defer func() { endSpan(span, err) }()

	h, err := m.Ensure(ctx, name, desc)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tools != nil {
		return h.tools, nil
	}

	req := &jsonrpc.Request{Method: "tools/list"}
	resp, err := h.tr.call(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, gatewayerr.New(gatewayerr.KindDownstreamProtocol, resp.Error.Message).WithServer(name)
	}

	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindDownstreamProtocol, "decode tools/list result", err).WithServer(name)
	}

	h.tools = result.Tools
	return h.tools, nil
}

// CallResult is the outcome of CallTool: either a verbatim downstream
// result or a downstream-reported tool error (spec.md §7
// downstream_tool_error, distinct from a transport-level failure).
type CallResult struct {
	Result  json.RawMessage
	IsError bool
}

// CallTool implements call_tool(server_name, tool, args): forwards a
// single call, sessionally isolated. args must already have agent_id
// stripped by the caller (spec.md §4.4 "Argument sanitization").
func (m *Manager) CallTool(ctx context.Context, name string, desc config.ServerDescriptor, tool string, args map[string]interface{}) (res *CallResult, err error) {
	ctx, span := tracer.Start(ctx, "proxy.call_tool", trace.WithAttributes(
		attribute.String("mcp.server", name), attribute.String("mcp.downstream_tool", tool),
	))
	defer func() { endSpan(span, err) }()

	h, err := m.Ensure(ctx, name, desc)
	if err != nil {
		return nil, err
	}

	params, err := json.Marshal(struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}{Name: tool, Arguments: args})
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindDownstreamProtocol, "encode call params", err).WithServer(name)
	}

	req := &jsonrpc.Request{Method: "tools/call", Params: params}
	resp, err := h.tr.call(ctx, req)
	if err != nil {
		if st, ok := h.tr.(*stdioTransport); ok && !st.isAlive() {
			m.mu.Lock()
			h.state = StateFailed
			m.mu.Unlock()
		}
		return nil, err
	}
	if resp.Error != nil {
		return nil, gatewayerr.New(gatewayerr.KindUnknownTool, resp.Error.Message).WithServer(name)
	}

	var result struct {
		IsError bool `json:"isError"`
	}
	_ = json.Unmarshal(resp.Result, &result)

	return &CallResult{Result: resp.Result, IsError: result.IsError}, nil
}

// Reconcile implements reconcile(new_catalog): starts handles for added
// servers, shuts down handles for removed servers, leaves unchanged ones.
func (m *Manager) Reconcile(ctx context.Context, newCatalog *config.Catalog) {
	m.mu.Lock()
	var toClose []*ProxyClient
	for name, h := range m.registry {
		if _, stillPresent := newCatalog.Servers[name]; !stillPresent {
			toClose = append(toClose, h)
			delete(m.registry, name)
		}
	}
	m.mu.Unlock()

	for _, h := range toClose {
		if err := h.tr.close(); err != nil {
			m.logger.Warn("proxy: error closing removed server", "server", h.name, "error", err)
		}
	}
	// Added/changed servers are picked up lazily by Ensure on next use,
	// per spec.md §3's "created lazily on first use or eagerly" choice.
}

// Shutdown implements shutdown(): closes every handle.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	handles := make([]*ProxyClient, 0, len(m.registry))
	for _, h := range m.registry {
		handles = append(handles, h)
	}
	m.registry = make(map[string]*ProxyClient)
	m.mu.Unlock()

	for _, h := range handles {
		if err := h.tr.close(); err != nil {
			m.logger.Warn("proxy: error during shutdown", "server", h.name, "error", err)
		}
	}
}

// StripAgentID removes the reserved agent_id argument before forwarding to
// a downstream tool — a hard invariant per spec.md §4.4.
func StripAgentID(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		if k == "agent_id" {
			continue
		}
		out[k] = v
	}
	return out
}

// PrefixedToolName builds the "<server>_<tool>" name used when enumerating
// across all servers, per spec.md §4.4.
func PrefixedToolName(server, tool string) string {
	return server + "_" + tool
}

// SplitPrefixedToolName strips the "<server>_" prefix before forwarding an
// invocation received by prefixed name, per spec.md §4.4. It returns false
// if name does not start with "<server>_".
func SplitPrefixedToolName(server, name string) (string, bool) {
	prefix := server + "_"
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	return strings.TrimPrefix(name, prefix), true
}

// State returns the handle's lifecycle state, or StatePending if the
// server has never been used.
func (m *Manager) State(name string) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.registry[name]; ok {
		return h.state
	}
	return StatePending
}
