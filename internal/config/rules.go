package config

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// RuleSection is an allow or deny section of an AgentPolicy.
type RuleSection struct {
	Servers []string            `json:"servers,omitempty"`
	Tools   map[string][]string `json:"tools,omitempty"`
}

// AgentPolicy is the set of allow/deny rules declared for one agent.
type AgentPolicy struct {
	Allow RuleSection `json:"allow"`
	Deny  RuleSection `json:"deny"`
}

// Defaults controls gateway-wide fallback behavior.
type Defaults struct {
	DenyOnMissingAgent bool `json:"deny_on_missing_agent"`
}

// Rules is the validated, in-memory policy rules document.
type Rules struct {
	Agents   map[string]AgentPolicy
	Defaults Defaults
}

// rulesDoc mirrors the on-disk shape of the rules file
// (.mcp-gateway-rules.json).
type rulesDoc struct {
	Agents   map[string]AgentPolicy `json:"agents"`
	Defaults *Defaults              `json:"defaults"`
}

// ParseRules unmarshals raw JSON bytes into a rulesDoc for validation.
func ParseRules(data []byte) (rulesDoc, error) {
	var doc rulesDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return rulesDoc{}, fmt.Errorf("rules: invalid JSON: %w", err)
	}
	return doc, nil
}

// ValidateRules performs structural validation of a parsed rules document,
// per spec.md §4.1. It fails fast on the first error.
func ValidateRules(doc rulesDoc) error {
	for agent, policy := range doc.Agents {
		if !agentIDPattern.MatchString(agent) {
			return fmt.Errorf("agents[%q]: agent id must match [A-Za-z0-9._-]+", agent)
		}
		if err := validateSection(agent, "allow", policy.Allow); err != nil {
			return err
		}
		if err := validateSection(agent, "deny", policy.Deny); err != nil {
			return err
		}
	}
	return nil
}

func validateSection(agent, section string, sec RuleSection) error {
	for i, pattern := range sec.Servers {
		if pattern == "*" {
			continue
		}
		if containsWildcard(pattern) {
			return fmt.Errorf("Agent %q %s.servers[%d]: wildcard in server pattern %q must be the solitary \"*\"", agent, section, i, pattern)
		}
		if pattern == "" {
			return fmt.Errorf("Agent %q %s.servers[%d]: server pattern must not be empty", agent, section, i)
		}
	}

	for server, patterns := range sec.Tools {
		for i, pattern := range patterns {
			if err := validateToolPattern(pattern); err != nil {
				return fmt.Errorf("Agent %q %s.tools[%q][%d]: %s", agent, section, server, i, err)
			}
		}
	}

	return nil
}

// validateToolPattern enforces spec.md §4.1/§3: a tool pattern is "*", a
// literal, a prefix wildcard "literal_*", or a suffix wildcard "*_literal" —
// at most one "*", located at start, end, or alone.
func validateToolPattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("tool pattern must not be empty")
	}
	if pattern == "*" {
		return nil
	}

	count := 0
	for _, r := range pattern {
		if r == '*' {
			count++
		}
	}
	if count == 0 {
		return nil
	}
	if count > 1 {
		return fmt.Errorf("wildcard in pattern %q must be at start, end, or alone", pattern)
	}

	if pattern[0] != '*' && pattern[len(pattern)-1] != '*' {
		return fmt.Errorf("wildcard in pattern %q must be at start, end, or alone", pattern)
	}
	// "*" already handled above; here it's a genuine prefix or suffix
	// wildcard, e.g. "get_*" or "*_all".
	return nil
}

func containsWildcard(s string) bool {
	for _, r := range s {
		if r == '*' {
			return true
		}
	}
	return false
}

// BuildRules converts a validated document into the in-memory Rules.
// Callers must call ValidateRules first.
func BuildRules(doc rulesDoc) *Rules {
	r := &Rules{Agents: doc.Agents}
	if r.Agents == nil {
		r.Agents = map[string]AgentPolicy{}
	}
	if doc.Defaults != nil {
		r.Defaults = *doc.Defaults
	}
	return r
}

// CrossCheckWarning names a rule referencing a server absent from the
// catalog: a warning per spec.md §3, never an error.
type CrossCheckWarning struct {
	Agent   string
	Section string
	Server  string
}

func (w CrossCheckWarning) String() string {
	return fmt.Sprintf("agent %q %s: references unknown server %q", w.Agent, w.Section, w.Server)
}

// CrossCheck lists every (agent, section, server-name) where a non-wildcard
// server referenced by a rule is absent from the catalog.
func CrossCheck(catalog *Catalog, rules *Rules) []CrossCheckWarning {
	var warnings []CrossCheckWarning
	for agent, policy := range rules.Agents {
		warnings = append(warnings, crossCheckSection(catalog, agent, "allow", policy.Allow)...)
		warnings = append(warnings, crossCheckSection(catalog, agent, "deny", policy.Deny)...)
	}
	return warnings
}

func crossCheckSection(catalog *Catalog, agent, section string, sec RuleSection) []CrossCheckWarning {
	var warnings []CrossCheckWarning
	for _, server := range sec.Servers {
		if server == "*" {
			continue
		}
		if _, ok := catalog.Servers[server]; !ok {
			warnings = append(warnings, CrossCheckWarning{Agent: agent, Section: section + ".servers", Server: server})
		}
	}
	for server := range sec.Tools {
		if server == "*" {
			continue
		}
		if _, ok := catalog.Servers[server]; !ok {
			warnings = append(warnings, CrossCheckWarning{Agent: agent, Section: section + ".tools", Server: server})
		}
	}
	return warnings
}
