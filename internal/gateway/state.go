// Package gateway implements the Gateway Server component: the fixed
// list_servers/get_server_tools/execute_tool/get_gateway_status tool
// surface, the identity-resolution and policy middleware pipeline, and
// filesystem-watched hot configuration reload (spec.md §4.5).
package gateway

import (
	"sync/atomic"
	"time"

	"github.com/roddutra/mcp-gateway/internal/config"
	"github.com/roddutra/mcp-gateway/internal/policy"
)

// GatewayState is an immutable snapshot of the live catalog and policy
// engine. Readers take the current pointer; reload publishes a new one
// atomically, per spec.md §5 ("no locks on the request path").
type GatewayState struct {
	Catalog *config.Catalog
	Engine  *policy.Engine
	Rules   *config.Rules
}

// ReloadStatus tracks the hot-reload orchestration's running counters,
// surfaced verbatim by get_gateway_status (spec.md §4.5).
type ReloadStatus struct {
	SuccessCount  uint64
	FailureCount  uint64
	LastSuccessTS time.Time
	LastErrorMsg  string
}

// stateHolder wraps an atomic.Pointer[GatewayState] plus the reload counters
// that accompany it. Every field here is either immutable-once-published
// (the snapshot) or only ever mutated by the single reload goroutine.
type stateHolder struct {
	current atomic.Pointer[GatewayState]

	statusMu     atomic.Pointer[ReloadStatus]
	catalogPath  string
	rulesPath    string
}

// policyEngineFor builds a fresh policy.Engine over a Rules snapshot.
func policyEngineFor(rules *config.Rules) *policy.Engine {
	return policy.New(rules)
}

func newStateHolder(initial *GatewayState, catalogPath, rulesPath string) *stateHolder {
	h := &stateHolder{catalogPath: catalogPath, rulesPath: rulesPath}
	h.current.Store(initial)
	h.statusMu.Store(&ReloadStatus{LastSuccessTS: time.Now().UTC(), SuccessCount: 1})
	return h
}

// Load returns the live snapshot seen at this instant.
func (h *stateHolder) Load() *GatewayState {
	return h.current.Load()
}

// Status returns a copy of the current reload status.
func (h *stateHolder) Status() ReloadStatus {
	return *h.statusMu.Load()
}

// Paths returns the two configuration file paths this holder reloads from.
func (h *stateHolder) Paths() (catalogPath, rulesPath string) {
	return h.catalogPath, h.rulesPath
}

// recordSuccess atomically swaps in a new snapshot and advances the
// success counter.
func (h *stateHolder) recordSuccess(next *GatewayState) {
	h.current.Store(next)
	prev := h.statusMu.Load()
	h.statusMu.Store(&ReloadStatus{
		SuccessCount:  prev.SuccessCount + 1,
		FailureCount:  prev.FailureCount,
		LastSuccessTS: time.Now().UTC(),
		LastErrorMsg:  prev.LastErrorMsg,
	})
}

// recordFailure keeps the live snapshot unchanged and advances the failure
// counter, per spec.md §4.5 ("keep live state unchanged").
func (h *stateHolder) recordFailure(errMsg string) {
	prev := h.statusMu.Load()
	h.statusMu.Store(&ReloadStatus{
		SuccessCount:  prev.SuccessCount,
		FailureCount:  prev.FailureCount + 1,
		LastSuccessTS: prev.LastSuccessTS,
		LastErrorMsg:  errMsg,
	})
}
