package gateway

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/roddutra/mcp-gateway/internal/audit"
	"github.com/roddutra/mcp-gateway/internal/config"
	"github.com/roddutra/mcp-gateway/internal/gatewayerr"
	"github.com/roddutra/mcp-gateway/internal/proxy"
)

// serverInfo is one entry of list_servers' result, per spec.md §4.5.
type serverInfo struct {
	Name        string `json:"name"`
	Transport   string `json:"transport"`
	Description string `json:"description,omitempty"`
	Command     string `json:"command,omitempty"`
	URL         string `json:"url,omitempty"`
}

// listServers implements list_servers: the ordered subset of the catalog
// the agent may access (spec.md §8 invariant 6).
func (s *Server) listServers(state *GatewayState, agentID string, includeMetadata bool) []serverInfo {
	allowed := state.Engine.AllowedServers(agentID, state.Catalog.Names())
	sort.Strings(allowed)

	out := make([]serverInfo, 0, len(allowed))
	for _, name := range allowed {
		desc := state.Catalog.Servers[name]
		info := serverInfo{Name: name, Transport: desc.Transport()}
		if includeMetadata {
			info.Description = desc.Description
			info.Command = desc.Command
			info.URL = desc.URL
		}
		out = append(out, info)
	}
	return out
}

// toolInfo is one entry of get_server_tools' result, per spec.md §4.5.
type toolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// getServerTools implements get_server_tools: the ordered, policy-filtered,
// optionally filter-matched tool list for one downstream server.
func (s *Server) getServerTools(ctx context.Context, state *GatewayState, agentID, server, filter string) ([]toolInfo, error) {
	desc, ok := state.Catalog.Servers[server]
	if !ok {
		return nil, gatewayerr.New(gatewayerr.KindUnknownServer, "server not in live catalog").WithServer(server)
	}

	tools, err := s.proxy.ListTools(ctx, server, desc)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tools))
	bySame := make(map[string]proxy.ToolDescriptor, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
		bySame[t.Name] = t
	}

	allowedNames := state.Engine.AllowedTools(agentID, server, names)
	sort.Strings(allowedNames)

	out := make([]toolInfo, 0, len(allowedNames))
	for _, name := range allowedNames {
		if filter != "" && !matchesFilter(filter, name) {
			continue
		}
		t := bySame[name]
		out = append(out, toolInfo{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return out, nil
}

// matchesFilter implements get_server_tools' filter argument: a substring
// match, or a prefix-wildcard match when filter ends in "*".
func matchesFilter(filter, name string) bool {
	if strings.HasSuffix(filter, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(filter, "*"))
	}
	return strings.Contains(name, filter)
}

// executeTool implements execute_tool: forwards to the proxy manager after
// stripping agent_id, returning the downstream result verbatim.
func (s *Server) executeTool(ctx context.Context, state *GatewayState, server, tool string, args map[string]interface{}) (*proxy.CallResult, error) {
	desc, ok := state.Catalog.Servers[server]
	if !ok {
		return nil, gatewayerr.New(gatewayerr.KindUnknownServer, "server not in live catalog").WithServer(server)
	}
	clean := proxy.StripAgentID(args)
	return s.proxy.CallTool(ctx, server, desc, tool, clean)
}

// gatewayStatus is get_gateway_status' result shape, per spec.md §4.5.
type gatewayStatus struct {
	ReloadStatus     ReloadStatus           `json:"reload_status"`
	PolicyState      map[string]interface{} `json:"policy_state"`
	AvailableServers []string               `json:"available_servers"`
	ConfigPaths      config.Paths           `json:"config_paths"`
}

// getGatewayStatus implements get_gateway_status (debug-only).
func (s *Server) getGatewayStatus(state *GatewayState) gatewayStatus {
	catalogPath, rulesPath := s.state.Paths()
	return gatewayStatus{
		ReloadStatus:     s.state.Status(),
		PolicyState:      map[string]interface{}{"agent_count": len(state.Rules.Agents)},
		AvailableServers: state.Catalog.Names(),
		ConfigPaths:      config.Paths{CatalogPath: catalogPath, RulesPath: rulesPath},
	}
}

// ReloadStatus exposes the current hot-reload counters for the periodic
// OTel metric export set up in cmd/mcp-gateway (SPEC_FULL.md's reload
// counters instrument, distinct from the Prometheus audit counters).
func (s *Server) ReloadStatus() ReloadStatus {
	return s.state.Status()
}

// recordAudit emits one audit record, per the middleware pipeline's final
// step (spec.md §4.5).
func (s *Server) recordAudit(agentID, operation, server, tool, decision string, start time.Time, err error) {
	_, span := startSpan(context.Background(), "gateway.audit", attribute.String("mcp.decision", decision))
	defer endSpan(span, nil)

	rec := audit.Record{
		AgentID:   agentID,
		Operation: operation,
		Server:    server,
		Tool:      tool,
		Decision:  decision,
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
		// request_id is a gateway-assigned correlation ID, not part of
		// spec.md §4.3's fixed record shape, so it travels in Extra rather
		// than as a new top-level field.
		Extra: map[string]interface{}{"request_id": uuid.NewString()},
	}
	if err != nil {
		rec.Error = err.Error()
	}
	s.audit.Record(rec)
}
