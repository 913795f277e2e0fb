package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/roddutra/mcp-gateway/internal/config"
	"github.com/roddutra/mcp-gateway/internal/gatewayerr"
)

const (
	scannerInitialBufSize = 256 * 1024
	scannerMaxBufSize     = 1024 * 1024
)

// stdioTransport spawns the declared command with the declared args and
// merged environment, and speaks newline-delimited JSON-RPC over its
// stdin/stdout, per spec.md §4.4's Stdio variant. Grounded on the teacher's
// internal/adapter/outbound/mcp/stdio_client.go pipe-bridging idiom.
type stdioTransport struct {
	name string
	desc config.ServerDescriptor

	mu      sync.Mutex // serializes calls: no interleaved frames on one session
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
	nextID  int64
}

func newStdioTransport(name string, desc config.ServerDescriptor) *stdioTransport {
	return &stdioTransport{name: name, desc: desc}
}

func (t *stdioTransport) start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	env := os.Environ()
	for k, v := range t.desc.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	cmd := exec.CommandContext(ctx, t.desc.Command, t.desc.Args...)
	cmd.Env = env
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindDownstreamUnreachable, "stdin pipe", err).WithServer(t.name)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return gatewayerr.Wrap(gatewayerr.KindDownstreamUnreachable, "stdout pipe", err).WithServer(t.name)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return gatewayerr.Wrap(gatewayerr.KindDownstreamUnreachable, "spawn failed", err).WithServer(t.name)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, scannerInitialBufSize), scannerMaxBufSize)

	t.cmd = cmd
	t.stdin = stdin
	t.scanner = scanner
	return nil
}

func (t *stdioTransport) call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stdin == nil {
		return nil, gatewayerr.New(gatewayerr.KindDownstreamUnreachable, "transport not started").WithServer(t.name)
	}

	id, err := jsonrpc.MakeID(atomic.AddInt64(&t.nextID, 1))
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindDownstreamProtocol, "build request id", err).WithServer(t.name)
	}
	req.ID = id

	raw, err := jsonrpc.EncodeMessage(req)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindDownstreamProtocol, "encode request", err).WithServer(t.name)
	}
	raw = append(raw, '\n')

	if _, err := t.stdin.Write(raw); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindDownstreamUnreachable, "write request", err).WithServer(t.name)
	}

	for t.scanner.Scan() {
		line := t.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		decoded, err := jsonrpc.DecodeMessage(line)
		if err != nil {
			continue
		}
		resp, ok := decoded.(*jsonrpc.Response)
		if !ok {
			continue // notification or request from the server; not expected here
		}
		return resp, nil
	}
	if err := t.scanner.Err(); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindDownstreamUnreachable, "read response", err).WithServer(t.name)
	}
	return nil, gatewayerr.New(gatewayerr.KindDownstreamUnreachable, "downstream closed connection").WithServer(t.name)
}

func (t *stdioTransport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.stdin != nil {
		if err := t.stdin.Close(); err != nil {
			errs = append(errs, err)
		}
		t.stdin = nil
	}
	if t.cmd != nil && t.cmd.Process != nil {
		if err := t.cmd.Process.Kill(); err != nil && err != os.ErrProcessDone {
			errs = append(errs, err)
		}
	}
	t.cmd = nil

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("stdio transport close: %v", errs)
}

// isAlive reports whether the subprocess is still running, used by the
// manager to detect unexpected exit and move the handle to Failed.
func (t *stdioTransport) isAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd == nil || t.cmd.Process == nil {
		return false
	}
	return t.cmd.ProcessState == nil
}
