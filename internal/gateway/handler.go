package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roddutra/mcp-gateway/internal/audit"
	"github.com/roddutra/mcp-gateway/internal/config"
	"github.com/roddutra/mcp-gateway/internal/gatewayerr"
	"github.com/roddutra/mcp-gateway/internal/proxy"
	"github.com/roddutra/mcp-gateway/internal/ratelimit"
)

// Server is the Gateway Server component (spec.md §4.5): it owns the live
// GatewayState snapshot, the Proxy Manager, and the Audit Sink, and runs
// the fixed four-tool surface through the five-step middleware pipeline.
type Server struct {
	state   *stateHolder
	proxy   *proxy.Manager
	audit   *audit.Sink
	debug   bool
	log     *slog.Logger
	limiter *ratelimit.Limiter
}

// Options configures a new Server.
type Options struct {
	Catalog     *config.Catalog
	Rules       *config.Rules
	CatalogPath string
	RulesPath   string
	Proxy       *proxy.Manager
	Audit       *audit.Sink
	Debug       bool
	Logger      *slog.Logger
	// Limiter optionally guards execute_tool with a per-agent,
	// per-server rate limit (SPEC_FULL.md §4.4). Nil disables limiting.
	Limiter *ratelimit.Limiter
}

// New builds a Server with its initial GatewayState snapshot already live.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	initial := &GatewayState{
		Catalog: opts.Catalog,
		Engine:  policyEngineFor(opts.Rules),
		Rules:   opts.Rules,
	}
	return &Server{
		state:   newStateHolder(initial, opts.CatalogPath, opts.RulesPath),
		proxy:   opts.Proxy,
		audit:   opts.Audit,
		debug:   opts.Debug,
		log:     opts.Logger,
		limiter: opts.Limiter,
	}
}

// toolCallRequest is the shape of a tools/call request's params, shared by
// all four native tools; unused fields are simply absent per tool.
type toolCallRequest struct {
	AgentID         string                 `json:"agent_id"`
	Server          string                 `json:"server"`
	Tool            string                 `json:"tool"`
	Args            map[string]interface{} `json:"args"`
	Filter          string                 `json:"filter"`
	IncludeMetadata bool                   `json:"include_metadata"`
}

// HandleToolCall runs the full middleware pipeline for one invocation of
// name with the given arguments: identity resolution, policy check,
// argument sanitization, dispatch, and audit emission (spec.md §4.5).
// It returns the tool's JSON result on success, or a gatewayerr.Error.
// The whole pipeline is wrapped in a span so a debug-mode trace exporter
// can show one invocation end to end, including the downstream proxy call.
func (s *Server) HandleToolCall(ctx context.Context, name string, rawArgs json.RawMessage) (interface{}, error) {
	ctx, span := startSpan(ctx, "gateway.handle_tool_call", attribute.String("mcp.tool", name))
	result, err := s.handleToolCall(ctx, name, rawArgs)
	endSpan(span, err)
	return result, err
}

func (s *Server) handleToolCall(ctx context.Context, name string, rawArgs json.RawMessage) (interface{}, error) {
	var req toolCallRequest
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &req); err != nil {
			return nil, gatewayerr.New(gatewayerr.KindUnknownTool, "invalid arguments: "+err.Error())
		}
	}

	start := time.Now()
	state := s.state.Load()

	// 1. Identity resolution.
	_, idSpan := startSpan(ctx, "gateway.resolve_identity")
	agentID, err := resolveAgentID(req.AgentID, state.Rules)
	endSpan(idSpan, err)
	if err != nil {
		s.recordAudit(req.AgentID, name, req.Server, req.Tool, audit.DecisionError, start, err)
		return nil, err
	}

	// 2. Policy check, dispatch-specific per tool (list_servers/get_server_tools
	// filter their own results; execute_tool and get_gateway_status are
	// gated up front since they name a single target).
	switch name {
	case "list_servers":
		result := s.listServers(state, agentID, req.IncludeMetadata)
		s.recordAudit(agentID, name, "", "", audit.DecisionAllow, start, nil)
		return result, nil

	case "get_server_tools":
		if !state.Engine.IsServerAllowed(agentID, req.Server) {
			denyErr := gatewayerr.New(gatewayerr.KindAccessDenied, "server not allowed for agent").WithServer(req.Server)
			s.recordAudit(agentID, name, req.Server, "", audit.DecisionDeny, start, denyErr)
			return nil, denyErr
		}
		result, err := s.getServerTools(ctx, state, agentID, req.Server, req.Filter)
		if err != nil {
			s.recordAudit(agentID, name, req.Server, "", audit.DecisionError, start, err)
			return nil, err
		}
		s.recordAudit(agentID, name, req.Server, "", audit.DecisionAllow, start, nil)
		return result, nil

	case "execute_tool":
		_, policySpan := startSpan(ctx, "gateway.policy_check",
			attribute.String("mcp.server", req.Server), attribute.String("mcp.downstream_tool", req.Tool))
		allowed := state.Engine.IsToolAllowed(agentID, req.Server, req.Tool)
		endSpan(policySpan, nil)
		if !allowed {
			denyErr := gatewayerr.New(gatewayerr.KindAccessDenied, "tool not allowed for agent").WithServer(req.Server)
			s.recordAudit(agentID, name, req.Server, req.Tool, audit.DecisionDeny, start, denyErr)
			return nil, denyErr
		}
		if s.limiter != nil {
			if res := s.limiter.Allow(agentID, req.Server); !res.Allowed {
				rateErr := gatewayerr.New(gatewayerr.KindAccessDenied,
					fmt.Sprintf("rate limit exceeded, retry after %s", res.RetryAfter)).WithServer(req.Server)
				s.recordAudit(agentID, name, req.Server, req.Tool, audit.DecisionDeny, start, rateErr)
				return nil, rateErr
			}
		}
		// 3. Argument sanitization happens inside executeTool via StripAgentID.
		result, err := s.executeTool(ctx, state, req.Server, req.Tool, req.Args)
		if err != nil {
			s.recordAudit(agentID, name, req.Server, req.Tool, audit.DecisionError, start, err)
			return nil, err
		}
		decision := audit.DecisionAllow
		if result.IsError {
			decision = audit.DecisionError
		}
		s.recordAudit(agentID, name, req.Server, req.Tool, decision, start, nil)
		return json.RawMessage(result.Result), nil

	case "get_gateway_status":
		if !s.debug {
			err := gatewayerr.New(gatewayerr.KindUnknownTool, "get_gateway_status is not registered (debug mode disabled)")
			s.recordAudit(agentID, name, "", "", audit.DecisionError, start, err)
			return nil, err
		}
		result := s.getGatewayStatus(state)
		s.recordAudit(agentID, name, "", "", audit.DecisionAllow, start, nil)
		return result, nil

	default:
		err := gatewayerr.New(gatewayerr.KindUnknownTool, "no such gateway tool: "+name)
		s.recordAudit(agentID, name, "", "", audit.DecisionError, start, err)
		return nil, err
	}
}

// ToolDefinitions returns the MCP tools/list entries for the fixed surface,
// omitting get_gateway_status unless debug mode is enabled (spec.md §4.5).
func (s *Server) ToolDefinitions() []map[string]interface{} {
	defs := []map[string]interface{}{
		{
			"name":        "list_servers",
			"description": "List the downstream MCP servers this agent may access.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"agent_id":         map[string]string{"type": "string"},
					"include_metadata": map[string]string{"type": "boolean"},
				},
			},
		},
		{
			"name":        "get_server_tools",
			"description": "List the tools this agent may invoke on a given downstream server.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"server":   map[string]string{"type": "string"},
					"agent_id": map[string]string{"type": "string"},
					"filter":   map[string]string{"type": "string"},
				},
				"required": []string{"server"},
			},
		},
		{
			"name":        "execute_tool",
			"description": "Invoke a tool on a downstream server and return its result verbatim.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"server":   map[string]string{"type": "string"},
					"tool":     map[string]string{"type": "string"},
					"args":     map[string]string{"type": "object"},
					"agent_id": map[string]string{"type": "string"},
				},
				"required": []string{"server", "tool", "args"},
			},
		},
	}
	if s.debug {
		defs = append(defs, map[string]interface{}{
			"name":        "get_gateway_status",
			"description": "Report reload status, policy state, and available servers (debug only).",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"agent_id": map[string]string{"type": "string"},
				},
			},
		})
	}
	return defs
}
