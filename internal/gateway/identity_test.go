package gateway

import (
	"testing"

	"github.com/roddutra/mcp-gateway/internal/config"
)

func TestResolveAgentIDFromArgument(t *testing.T) {
	rules := &config.Rules{Agents: map[string]config.AgentPolicy{}}
	id, err := resolveAgentID("researcher", rules)
	if err != nil || id != "researcher" {
		t.Fatalf("got (%q, %v), want (researcher, nil)", id, err)
	}
}

func TestResolveAgentIDFallsBackToEnv(t *testing.T) {
	t.Setenv("GATEWAY_DEFAULT_AGENT", "researcher")
	rules := &config.Rules{Agents: map[string]config.AgentPolicy{}}
	id, err := resolveAgentID("", rules)
	if err != nil || id != "researcher" {
		t.Fatalf("got (%q, %v), want (researcher, nil)", id, err)
	}
}

func TestResolveAgentIDFallsBackToDefaultAgent(t *testing.T) {
	rules := &config.Rules{
		Agents:   map[string]config.AgentPolicy{"default": {}},
		Defaults: config.Defaults{DenyOnMissingAgent: false},
	}
	id, err := resolveAgentID("", rules)
	if err != nil || id != "default" {
		t.Fatalf("got (%q, %v), want (default, nil)", id, err)
	}
}

func TestResolveAgentIDRejectsWhenDenyOnMissingAgent(t *testing.T) {
	rules := &config.Rules{
		Agents:   map[string]config.AgentPolicy{"default": {}},
		Defaults: config.Defaults{DenyOnMissingAgent: true},
	}
	_, err := resolveAgentID("", rules)
	if err == nil {
		t.Fatal("expected no_agent_identity error")
	}
}

func TestResolveAgentIDUnknownFallsThroughToEmpty(t *testing.T) {
	rules := &config.Rules{Agents: map[string]config.AgentPolicy{}}
	id, err := resolveAgentID("", rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty agent id to fall through to deny-all, got %q", id)
	}
}
