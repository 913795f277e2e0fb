// Package gatewayerr defines the gateway's error taxonomy (spec.md §7).
// Kinds are names, not types — callers compare them via errors.As against
// *Error and inspect its Kind field, mirroring the teacher's
// typed-error-plus-sentinel pattern in
// internal/domain/proxy/policy_interceptor.go (PolicyDenyError/ErrPolicyDenied).
package gatewayerr

import "fmt"

// Kind is one error-kind name from spec.md §7's taxonomy table.
type Kind string

const (
	KindConfigNotFound       Kind = "config_not_found"
	KindConfigInvalid        Kind = "config_invalid"
	KindEnvMissing           Kind = "env_missing"
	KindNoAgentIdentity      Kind = "no_agent_identity"
	KindAccessDenied         Kind = "access_denied"
	KindUnknownServer        Kind = "unknown_server"
	KindUnknownTool          Kind = "unknown_tool"
	KindDownstreamUnreachable Kind = "downstream_unreachable"
	KindDownstreamProtocol   Kind = "downstream_protocol"
	KindDownstreamAuth       Kind = "downstream_auth"
	KindDownstreamToolError  Kind = "downstream_tool_error"
)

// Error is a gateway error carrying its taxonomy Kind plus the downstream
// server it concerns, if any.
type Error struct {
	Kind    Kind
	Server  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Server != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Server, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithServer attaches a downstream server name to the error.
func (e *Error) WithServer(server string) *Error {
	e.Server = server
	return e
}

// Is reports whether err is a gatewayerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var ge *Error
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		ge = e
	} else if u, ok := err.(interface{ Unwrap() error }); ok {
		return Is(u.Unwrap(), kind)
	}
	if ge == nil {
		return false
	}
	return ge.Kind == kind
}
