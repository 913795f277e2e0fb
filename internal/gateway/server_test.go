package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRunHandlesToolsListAndToolsCall(t *testing.T) {
	s := testServer(t, scenarioRules(), false)

	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"list_servers","arguments":{"agent_id":"researcher"}}}` + "\n",
	)
	var out bytes.Buffer

	if err := s.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	scanner := bufio.NewScanner(&out)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 response lines, got %d: %v", len(lines), lines)
	}

	var listResp struct {
		Result struct {
			Tools []map[string]interface{} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &listResp); err != nil {
		t.Fatalf("decode tools/list response: %v", err)
	}
	if len(listResp.Result.Tools) != 3 {
		t.Fatalf("expected 3 tools registered without debug mode, got %d", len(listResp.Result.Tools))
	}

	var callResp struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &callResp); err != nil {
		t.Fatalf("decode tools/call response: %v", err)
	}
	if len(callResp.Result.Content) != 1 || !strings.Contains(callResp.Result.Content[0].Text, "brave") {
		t.Fatalf("unexpected tools/call response: %s", lines[1])
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	s := testServer(t, scenarioRules(), false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n")
	var out bytes.Buffer
	if err := s.Run(ctx, in, &out); err == nil {
		t.Fatal("expected context.Canceled to be surfaced")
	}
}
