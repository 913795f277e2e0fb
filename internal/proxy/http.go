package proxy

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/roddutra/mcp-gateway/internal/config"
	"github.com/roddutra/mcp-gateway/internal/gatewayerr"
)

// maxResponseBodySize bounds a downstream HTTP response, preventing OOM
// from a malicious or misbehaving server, grounded on the teacher's
// internal/adapter/outbound/mcp/http_client.go constant of the same name.
const maxResponseBodySize = 10 * 1024 * 1024

// httpTransport speaks MCP-over-HTTP, per spec.md §4.4's HTTP variant:
// OAuth is enabled unconditionally but latent, activated only by a 401
// carrying WWW-Authenticate.
type httpTransport struct {
	name   string
	desc   config.ServerDescriptor
	client *http.Client
	oauth  *oauthManager

	mu        sync.Mutex
	sessionID string
}

func newHTTPTransport(name string, desc config.ServerDescriptor, oauth *oauthManager) *httpTransport {
	return &httpTransport{
		name: name,
		desc: desc,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		oauth: oauth,
	}
}

func (t *httpTransport) start(ctx context.Context) error {
	// MCP-over-HTTP has no separate handshake beyond the first request;
	// readiness is confirmed lazily on first call.
	return nil
}

func (t *httpTransport) call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	body, err := jsonrpc.EncodeMessage(req)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindDownstreamProtocol, "encode request", err).WithServer(t.name)
	}

	resp, status, hdr, err := t.send(ctx, body, "")
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && t.oauth != nil {
		challenge := hdr.Get("WWW-Authenticate")
		if isBearerChallenge(challenge) {
			token, terr := t.oauth.ensureToken(ctx, t.desc.URL)
			if terr != nil {
				return nil, gatewayerr.Wrap(gatewayerr.KindDownstreamAuth, "oauth flow failed", terr).WithServer(t.name)
			}
			resp, status, _, err = t.send(ctx, body, token)
			if err != nil {
				return nil, err
			}
		}
	}

	if status < 200 || status >= 300 {
		return nil, gatewayerr.New(gatewayerr.KindDownstreamUnreachable,
			fmt.Sprintf("http status %d", status)).WithServer(t.name)
	}

	decoded, err := jsonrpc.DecodeMessage(resp)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindDownstreamProtocol, "decode response", err).WithServer(t.name)
	}
	result, ok := decoded.(*jsonrpc.Response)
	if !ok {
		return nil, gatewayerr.New(gatewayerr.KindDownstreamProtocol, "expected response, got request").WithServer(t.name)
	}
	return result, nil
}

// send performs one HTTP POST, attaching the catalog-declared headers, the
// tracked Mcp-Session-Id, and (if non-empty) a bearer token.
func (t *httpTransport) send(ctx context.Context, body []byte, bearerToken string) ([]byte, int, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.desc.URL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, nil, gatewayerr.Wrap(gatewayerr.KindDownstreamUnreachable, "build request", err).WithServer(t.name)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.desc.Headers {
		req.Header.Set(k, v)
	}

	t.mu.Lock()
	sid := t.sessionID
	t.mu.Unlock()
	if sid != "" {
		req.Header.Set("Mcp-Session-Id", sid)
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, nil, gatewayerr.Wrap(gatewayerr.KindDownstreamUnreachable, "http request", err).WithServer(t.name)
	}
	defer resp.Body.Close()

	if newSID := resp.Header.Get("Mcp-Session-Id"); newSID != "" {
		t.mu.Lock()
		t.sessionID = newSID
		t.mu.Unlock()
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, resp.StatusCode, resp.Header, gatewayerr.Wrap(gatewayerr.KindDownstreamProtocol, "read response body", err).WithServer(t.name)
	}
	return data, resp.StatusCode, resp.Header, nil
}

func (t *httpTransport) close() error {
	t.client.CloseIdleConnections()
	return nil
}

func isBearerChallenge(header string) bool {
	return len(header) >= len("Bearer") && header[:len("Bearer")] == "Bearer"
}
