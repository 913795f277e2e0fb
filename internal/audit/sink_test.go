package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestSinkWritesJSONLRecords(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	sink, err := NewSink(Options{Dir: dir})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}

	sink.Record(Record{
		AgentID:   "researcher",
		Operation: OperationExecuteTool,
		Server:    "brave",
		Tool:      "search",
		Decision:  DecisionAllow,
		LatencyMs: 12.5,
	})
	sink.Record(Record{
		AgentID:   "researcher",
		Operation: OperationExecuteTool,
		Server:    "pg",
		Tool:      "drop_table",
		Decision:  DecisionDeny,
		LatencyMs: 0.1,
	})

	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []Record
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		lines = append(lines, rec)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d", len(lines))
	}
	if lines[1].Decision != DecisionDeny {
		t.Errorf("second record decision = %q, want deny", lines[1].Decision)
	}
}

func TestRedactSensitiveArgs(t *testing.T) {
	args := map[string]interface{}{
		"path":     "/tmp/x",
		"password": "hunter2",
		"api_key":  "sk-live-abc",
	}
	redacted := RedactSensitiveArgs(args)
	if redacted["path"] != "/tmp/x" {
		t.Errorf("non-sensitive key should be untouched")
	}
	if redacted["password"] != "***REDACTED***" {
		t.Errorf("password should be redacted")
	}
	if redacted["api_key"] != "***REDACTED***" {
		t.Errorf("api_key should be redacted")
	}
}

func TestSinkTimestampDefaulting(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(Options{Dir: dir})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	defer sink.Close()

	before := time.Now().UTC()
	sink.Record(Record{AgentID: "a", Operation: OperationListServers, Decision: DecisionAllow})
	sink.Close()

	f, _ := os.Open(filepath.Join(dir, "audit.jsonl"))
	defer f.Close()
	var rec Record
	scanner := bufio.NewScanner(f)
	scanner.Scan()
	if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Timestamp.Before(before) {
		t.Errorf("expected timestamp to be defaulted to now")
	}
}
