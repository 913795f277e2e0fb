package proxy

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/oauth2"

	"github.com/roddutra/mcp-gateway/internal/filelock"
)

// Authorizer performs the user-facing half of an authorization-code+PKCE
// flow: given an authorization URL it returns the redirected-back code.
// The actual browser-driven flow is an external collaborator
// (spec.md §1's "deliberately out of scope" list); the gateway only owns
// the PKCE mechanics, token caching, and refresh around it.
type Authorizer interface {
	Authorize(ctx context.Context, authorizationURL string) (code string, err error)
}

// cachedToken is the on-disk shape of a downstream's cached token, per
// spec.md §6.
type cachedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

func (t cachedToken) expired() bool {
	return !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// oauthManager implements the auto-detect-on-401 PKCE flow, per-URL disk
// token caching keyed by a hash of the URL, and coalesced refresh (at most
// one refresh in flight per URL), per spec.md §4.4 and §5.
type oauthManager struct {
	cacheDir   string
	authorizer Authorizer
	httpClient *http.Client

	mu       sync.Mutex
	inFlight map[string]chan struct{}
}

func newOAuthManager(cacheDir string, authorizer Authorizer) *oauthManager {
	return &oauthManager{
		cacheDir:   cacheDir,
		authorizer: authorizer,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		inFlight:   make(map[string]chan struct{}),
	}
}

// ensureToken returns a valid access token for url, performing the PKCE
// flow or a refresh as needed. Concurrent callers for the same URL
// coalesce onto a single refresh.
func (m *oauthManager) ensureToken(ctx context.Context, url string) (string, error) {
	key := tokenCacheKey(url)

	m.mu.Lock()
	if ch, ok := m.inFlight[key]; ok {
		m.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return m.readCachedAccessToken(key)
	}
	ch := make(chan struct{})
	m.inFlight[key] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inFlight, key)
		m.mu.Unlock()
		close(ch)
	}()

	tok, err := m.loadToken(key)
	if err == nil && !tok.expired() {
		return tok.AccessToken, nil
	}

	if err == nil && tok.RefreshToken != "" {
		refreshed, rerr := m.refresh(ctx, url, tok)
		if rerr == nil {
			return refreshed.AccessToken, m.saveToken(key, refreshed)
		}
		// Fall through to a fresh authorization flow on refresh failure.
	}

	fresh, err := m.authorize(ctx, url)
	if err != nil {
		return "", err
	}
	if err := m.saveToken(key, fresh); err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}

// authorize runs the authorization-code + PKCE flow against the downstream's
// advertised authorization server, discovered via
// /.well-known/oauth-protected-resource, per spec.md §4.4.
func (m *oauthManager) authorize(ctx context.Context, url string) (cachedToken, error) {
	if m.authorizer == nil {
		return cachedToken{}, errors.New("oauth: no authorizer configured for interactive flow")
	}

	meta, err := m.fetchProtectedResourceMetadata(ctx, url)
	if err != nil {
		return cachedToken{}, err
	}

	verifier, challenge, err := generatePKCEPair()
	if err != nil {
		return cachedToken{}, fmt.Errorf("oauth: generate PKCE pair: %w", err)
	}

	cfg := &oauth2.Config{
		ClientID: meta.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:  meta.AuthorizationEndpoint,
			TokenURL: meta.TokenEndpoint,
		},
		RedirectURL: meta.RedirectURL,
	}

	authURL := cfg.AuthCodeURL("", oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"))

	code, err := m.authorizer.Authorize(ctx, authURL)
	if err != nil {
		return cachedToken{}, fmt.Errorf("oauth: authorization failed: %w", err)
	}

	token, err := cfg.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		return cachedToken{}, fmt.Errorf("oauth: code exchange failed: %w", err)
	}

	return tokenFromOAuth2(token), nil
}

func (m *oauthManager) refresh(ctx context.Context, url string, tok cachedToken) (cachedToken, error) {
	meta, err := m.fetchProtectedResourceMetadata(ctx, url)
	if err != nil {
		return cachedToken{}, err
	}
	cfg := &oauth2.Config{
		ClientID: meta.ClientID,
		Endpoint: oauth2.Endpoint{TokenURL: meta.TokenEndpoint},
	}
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken})
	refreshed, err := src.Token()
	if err != nil {
		return cachedToken{}, fmt.Errorf("oauth: refresh failed: %w", err)
	}
	return tokenFromOAuth2(refreshed), nil
}

func tokenFromOAuth2(t *oauth2.Token) cachedToken {
	return cachedToken{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.Expiry,
		TokenType:    t.TokenType,
	}
}

// protectedResourceMetadata is the subset of
// /.well-known/oauth-protected-resource this gateway needs.
type protectedResourceMetadata struct {
	ClientID              string `json:"client_id"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	RedirectURL           string `json:"redirect_uri"`
}

func (m *oauthManager) fetchProtectedResourceMetadata(ctx context.Context, downstreamURL string) (protectedResourceMetadata, error) {
	wellKnown := downstreamURL + "/.well-known/oauth-protected-resource"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return protectedResourceMetadata{}, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return protectedResourceMetadata{}, fmt.Errorf("oauth: fetch protected resource metadata: %w", err)
	}
	defer resp.Body.Close()

	var meta protectedResourceMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return protectedResourceMetadata{}, fmt.Errorf("oauth: decode protected resource metadata: %w", err)
	}
	return meta, nil
}

func generatePKCEPair() (verifier, challenge string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

// tokenCacheKey hashes a downstream URL with xxhash so the on-disk cache
// directory name never embeds the URL itself, per spec.md §6.
func tokenCacheKey(url string) string {
	return strconv.FormatUint(xxhash.Sum64String(url), 16)
}

func (m *oauthManager) tokenPath(key string) string {
	return filepath.Join(m.cacheDir, key, "tokens.json")
}

func (m *oauthManager) loadToken(key string) (cachedToken, error) {
	data, err := os.ReadFile(m.tokenPath(key))
	if err != nil {
		return cachedToken{}, err
	}
	var tok cachedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return cachedToken{}, err
	}
	return tok, nil
}

func (m *oauthManager) readCachedAccessToken(key string) (string, error) {
	tok, err := m.loadToken(key)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// saveToken writes the cached token under an exclusive lock, so a second
// gateway process refreshing the same downstream's token can't interleave
// a partial write with this one.
func (m *oauthManager) saveToken(key string, tok cachedToken) error {
	dir := filepath.Join(m.cacheDir, key)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("oauth: create token cache dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("oauth: marshal token: %w", err)
	}

	f, err := os.OpenFile(m.tokenPath(key), os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("oauth: open token cache: %w", err)
	}
	defer f.Close()
	if err := filelock.Lock(f); err != nil {
		return fmt.Errorf("oauth: lock token cache: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("oauth: truncate token cache: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("oauth: write token cache: %w", err)
	}
	return nil
}
