package gateway

import (
	"github.com/roddutra/mcp-gateway/internal/config"
	"github.com/roddutra/mcp-gateway/internal/gatewayerr"
)

const defaultAgentName = "default"

// resolveAgentID implements the identity fallback chain of spec.md §4.5:
// the agent_id argument, then GATEWAY_DEFAULT_AGENT, then the literal agent
// "default" if present and defaults.deny_on_missing_agent is false.
// Returns no_agent_identity only when none resolve and the rules demand it;
// otherwise an unresolved identity is returned as "" to fall through to
// deny-all policy evaluation, per spec.md's "treat as unknown agent" clause.
func resolveAgentID(argAgentID string, rules *config.Rules) (string, error) {
	if argAgentID != "" {
		return argAgentID, nil
	}

	if env := config.DefaultAgent(); env != "" {
		return env, nil
	}

	if _, ok := rules.Agents[defaultAgentName]; ok && !rules.Defaults.DenyOnMissingAgent {
		return defaultAgentName, nil
	}

	if rules.Defaults.DenyOnMissingAgent {
		return "", gatewayerr.New(gatewayerr.KindNoAgentIdentity, "no agent_id argument, GATEWAY_DEFAULT_AGENT, or default agent resolved")
	}
	return "", nil
}
