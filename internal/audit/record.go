// Package audit implements the gateway's Audit Sink: an append-only JSONL
// record of every tool invocation attempt, per spec.md §4.3.
package audit

import (
	"strings"
	"time"
)

// Decision values for an audit record.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
	DecisionError = "error"
)

// Operation values for an audit record, per spec.md §4.5.
const (
	OperationListServers    = "list_servers"
	OperationGetServerTools = "get_server_tools"
	OperationExecuteTool    = "execute_tool"
	OperationGetStatus      = "get_gateway_status"
)

// Record is one audit log entry, matching spec.md §4.3's exact shape:
// {ts, agent_id, operation, server, tool, decision, latency_ms, error?, extra?}.
type Record struct {
	Timestamp time.Time              `json:"ts"`
	AgentID   string                 `json:"agent_id"`
	Operation string                 `json:"operation"`
	Server    string                 `json:"server"`
	Tool      string                 `json:"tool"`
	Decision  string                 `json:"decision"`
	LatencyMs float64                `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// sensitiveKeywords lists substrings that indicate a sensitive argument key.
// Comparison is case-insensitive.
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "auth", "private_key", "privatekey",
}

// RedactSensitiveArgs returns a copy of args with sensitive values masked.
// A key is considered sensitive if it contains any of the sensitiveKeywords
// (case-insensitive). Values are replaced with "***REDACTED***".
func RedactSensitiveArgs(args map[string]interface{}) map[string]interface{} {
	if len(args) == 0 {
		return args
	}
	redacted := make(map[string]interface{}, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			redacted[k] = "***REDACTED***"
		} else {
			redacted[k] = v
		}
	}
	return redacted
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
