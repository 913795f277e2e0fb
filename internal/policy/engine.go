// Package policy implements the gateway's Policy Engine: deny-before-allow
// evaluation of (agent, server, tool) triples over wildcard patterns, per
// spec.md §4.2. Evaluation is pure, synchronous, and deterministic — no I/O,
// no clock reads, no network calls.
package policy

import "github.com/roddutra/mcp-gateway/internal/config"

// Engine evaluates server/tool access decisions for declared agent
// identities. An Engine is built once per loaded Rules snapshot and is
// immutable thereafter — safe for concurrent use without locking.
type Engine struct {
	rules *config.Rules
}

// New builds an Engine over a validated Rules snapshot.
func New(rules *config.Rules) *Engine {
	return &Engine{rules: rules}
}

// policyFor resolves the AgentPolicy to evaluate for agentID, applying the
// "unknown agent falls back to the agent named default" rule from
// spec.md §4.2. The second return value reports whether any policy
// (explicit or default) was found at all.
func (e *Engine) policyFor(agentID string) (config.AgentPolicy, bool) {
	if p, ok := e.rules.Agents[agentID]; ok {
		return p, true
	}
	if p, ok := e.rules.Agents["default"]; ok {
		return p, true
	}
	return config.AgentPolicy{}, false
}

// IsServerAllowed implements is_server_allowed(agent_id, server) from
// spec.md §4.2.
func (e *Engine) IsServerAllowed(agentID, server string) bool {
	policy, ok := e.policyFor(agentID)
	if !ok {
		return false
	}
	return evaluateServer(policy, server)
}

// IsToolAllowed implements is_tool_allowed(agent_id, server, tool). A tool
// is allowed only if both the server-level and tool-level checks resolve to
// allow (spec.md §4.2 "Tool check dependency").
func (e *Engine) IsToolAllowed(agentID, server, tool string) bool {
	policy, ok := e.policyFor(agentID)
	if !ok {
		return false
	}
	if !evaluateServer(policy, server) {
		return false
	}
	return evaluateTool(policy, server, tool)
}

// AllowedServers implements allowed_servers(agent_id, all_server_names).
func (e *Engine) AllowedServers(agentID string, allServerNames []string) []string {
	policy, ok := e.policyFor(agentID)
	if !ok {
		return nil
	}
	var out []string
	for _, name := range allServerNames {
		if evaluateServer(policy, name) {
			out = append(out, name)
		}
	}
	return out
}

// AllowedTools implements allowed_tools(agent_id, server, all_tool_names).
func (e *Engine) AllowedTools(agentID, server string, allToolNames []string) []string {
	policy, ok := e.policyFor(agentID)
	if !ok {
		return nil
	}
	if !evaluateServer(policy, server) {
		return nil
	}
	var out []string
	for _, tool := range allToolNames {
		if evaluateTool(policy, server, tool) {
			out = append(out, tool)
		}
	}
	return out
}

// evaluateServer runs the five-step precedence ladder of spec.md §4.2
// against the servers sections.
func evaluateServer(policy config.AgentPolicy, server string) bool {
	if containsLiteral(policy.Deny.Servers, server) {
		return false
	}
	if containsLiteral(policy.Allow.Servers, server) {
		return true
	}
	if containsWildcardServer(policy.Deny.Servers) {
		return false
	}
	if containsWildcardServer(policy.Allow.Servers) {
		return true
	}
	return false
}

// evaluateTool runs the five-step precedence ladder against the tools
// sections for one server.
func evaluateTool(policy config.AgentPolicy, server, tool string) bool {
	if matchesToolLiteral(policy.Deny.Tools, server, tool) {
		return false
	}
	if matchesToolLiteral(policy.Allow.Tools, server, tool) {
		return true
	}
	if matchesToolWildcard(policy.Deny.Tools, server, tool) {
		return false
	}
	if matchesToolWildcard(policy.Allow.Tools, server, tool) {
		return true
	}
	return false
}

func containsLiteral(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
	}
	return false
}

func containsWildcardServer(patterns []string) bool {
	for _, p := range patterns {
		if p == "*" {
			return true
		}
	}
	return false
}

// matchesToolLiteral checks for an exact literal match in the server's own
// bucket only. The "*" bucket is consulted by matchesToolWildcard, which
// matches wildcard patterns only, so a literal listed under "*" never matches.
func matchesToolLiteral(tools map[string][]string, server, tool string) bool {
	for _, p := range tools[server] {
		if p == tool {
			return true
		}
	}
	return false
}

// matchesToolWildcard checks wildcard patterns (bare "*", prefix, suffix)
// across both the server's own bucket and the "*" server bucket, per
// spec.md §4.2 ("server-level * bucket").
func matchesToolWildcard(tools map[string][]string, server, tool string) bool {
	if matchesWildcardBucket(tools[server], tool) {
		return true
	}
	if server != "*" && matchesWildcardBucket(tools["*"], tool) {
		return true
	}
	return false
}

func matchesWildcardBucket(patterns []string, tool string) bool {
	for _, p := range patterns {
		if matchPattern(p, tool) {
			return true
		}
	}
	return false
}

// matchPattern matches a single tool pattern: "*", a prefix wildcard
// "literal_*", or a suffix wildcard "*_literal". Literal patterns (no "*")
// are handled by matchesToolLiteral and never reach here as a match.
func matchPattern(pattern, tool string) bool {
	if pattern == "*" {
		return true
	}
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		return len(tool) >= len(pattern)-1 && tool[:len(pattern)-1] == pattern[:len(pattern)-1]
	}
	if len(pattern) > 0 && pattern[0] == '*' {
		suffix := pattern[1:]
		return len(tool) >= len(suffix) && tool[len(tool)-len(suffix):] == suffix
	}
	return false
}
