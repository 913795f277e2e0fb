package proxy

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/roddutra/mcp-gateway/internal/config"
)

func TestStripAgentID(t *testing.T) {
	args := map[string]interface{}{"agent_id": "researcher", "query": "cats"}
	out := StripAgentID(args)
	if _, ok := out["agent_id"]; ok {
		t.Fatal("agent_id must be stripped")
	}
	if out["query"] != "cats" {
		t.Fatal("other arguments must be preserved")
	}
	if _, ok := args["agent_id"]; !ok {
		t.Fatal("original map must not be mutated")
	}
}

func TestPrefixAndSplitToolName(t *testing.T) {
	prefixed := PrefixedToolName("brave", "search")
	if prefixed != "brave_search" {
		t.Fatalf("PrefixedToolName = %q, want brave_search", prefixed)
	}

	tool, ok := SplitPrefixedToolName("brave", prefixed)
	if !ok || tool != "search" {
		t.Fatalf("SplitPrefixedToolName = (%q, %v), want (search, true)", tool, ok)
	}

	if _, ok := SplitPrefixedToolName("pg", prefixed); ok {
		t.Fatal("should not match a different server's prefix")
	}
}

// fakeTransport is a scripted transport used to exercise Manager without a
// real subprocess or network call.
type fakeTransport struct {
	startErr error
	response *jsonrpc.Response
	callErr  error
}

func (f *fakeTransport) start(ctx context.Context) error { return f.startErr }
func (f *fakeTransport) call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.response, nil
}
func (f *fakeTransport) close() error { return nil }

func TestManagerCallToolDetectsDownstreamToolError(t *testing.T) {
	m := NewManager(t.TempDir(), nil, nil)
	ft := &fakeTransport{response: &jsonrpc.Response{Result: json.RawMessage(`{"isError":true,"content":[]}`)}}
	m.registry["pg"] = &ProxyClient{name: "pg", tr: ft, state: StateReady}

	result, err := m.CallTool(context.Background(), "pg", config.ServerDescriptor{Command: "psql"}, "drop_table", map[string]interface{}{})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError=true to be surfaced from the downstream result")
	}
}

func TestManagerListToolsCachesResult(t *testing.T) {
	m := NewManager(t.TempDir(), nil, nil)
	calls := 0
	ft := &fakeTransport{}
	ft.response = &jsonrpc.Response{Result: json.RawMessage(`{"tools":[{"name":"search","description":"d","input_schema":{}}]}`)}
	m.registry["brave"] = &ProxyClient{name: "brave", tr: countingTransport{ft, &calls}, state: StateReady}

	for i := 0; i < 2; i++ {
		tools, err := m.ListTools(context.Background(), "brave", config.ServerDescriptor{Command: "npx"})
		if err != nil {
			t.Fatalf("ListTools: %v", err)
		}
		if len(tools) != 1 || tools[0].Name != "search" {
			t.Fatalf("unexpected tools: %+v", tools)
		}
	}
	if calls != 1 {
		t.Fatalf("expected tools/list to be called once (cached), got %d", calls)
	}
}

// countingTransport wraps a transport and counts calls, used to assert
// caching behavior.
type countingTransport struct {
	*fakeTransport
	calls *int
}

func (c countingTransport) call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	*c.calls++
	return c.fakeTransport.call(ctx, req)
}

func TestManagerReconcileClosesRemovedServers(t *testing.T) {
	m := NewManager(t.TempDir(), nil, nil)
	closed := false
	m.registry["gone"] = &ProxyClient{name: "gone", tr: &closeTrackingTransport{closed: &closed}, state: StateReady}

	m.Reconcile(context.Background(), &config.Catalog{Servers: map[string]config.ServerDescriptor{}})

	if !closed {
		t.Fatal("expected removed server's transport to be closed")
	}
	if _, ok := m.registry["gone"]; ok {
		t.Fatal("expected removed server to be dropped from registry")
	}
}

type closeTrackingTransport struct {
	closed *bool
}

func (c *closeTrackingTransport) start(ctx context.Context) error { return nil }
func (c *closeTrackingTransport) call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	return nil, nil
}
func (c *closeTrackingTransport) close() error {
	*c.closed = true
	return nil
}
