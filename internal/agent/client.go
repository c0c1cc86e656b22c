package agent

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client is the shared HTTP client used by every protocol adapter. Auth
// header injection and TLS setup live here so individual adapters only build
// payloads and parse envelopes.
type Client struct {
	baseURL string
	auth    Auth
	client  *http.Client

	oauthMu     sync.Mutex
	oauthToken  string
	oauthExpiry time.Time
}

type RawResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

func (r *RawResponse) Header(name string) string {
	if r == nil {
		return ""
	}
	return r.Headers.Get(name)
}

func NewClient(spec Spec) (*Client, error) {
	tlsCfg, err := buildTLSConfig(spec.TLS)
	if err != nil {
		return nil, err
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsCfg
	timeout := time.Duration(spec.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(spec.URL, "/"),
		auth:    spec.Auth,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(base),
		},
	}, nil
}

func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	out := &tls.Config{
		InsecureSkipVerify: !cfg.VerifyEnabled(),
	}
	if strings.TrimSpace(cfg.CACertPath) != "" {
		pem, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("read ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca cert %s contains no certificates", cfg.CACertPath)
		}
		out.RootCAs = pool
	}
	if strings.TrimSpace(cfg.ClientCertPath) != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		out.Certificates = []tls.Certificate{cert}
	}
	return out, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// PostJSON sends a JSON body to baseURL+path and returns the raw response.
// Non-2xx statuses come back as both a RawResponse and an error so callers
// can inspect the body while still treating the call as failed.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (*RawResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return c.Do(ctx, http.MethodPost, path, payload)
}

func (c *Client) Get(ctx context.Context, path string) (*RawResponse, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

func (c *Client) Do(ctx context.Context, method, path string, payload []byte) (*RawResponse, error) {
	fullURL := c.baseURL + path
	var reader io.Reader
	if len(payload) > 0 {
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if len(payload) > 0 {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Accept", "application/json")
	if err := c.applyAuth(ctx, request); err != nil {
		return nil, err
	}

	start := time.Now()
	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer response.Body.Close()

	bodyBytes, readErr := io.ReadAll(response.Body)
	raw := &RawResponse{
		StatusCode: response.StatusCode,
		Headers:    response.Header.Clone(),
		Body:       bodyBytes,
		Duration:   time.Since(start),
	}
	if readErr != nil {
		return raw, fmt.Errorf("read response body: %w", readErr)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return raw, fmt.Errorf("agent status %d: %s", response.StatusCode, firstN(string(bodyBytes), 200))
	}
	return raw, nil
}

func (c *Client) applyAuth(ctx context.Context, request *http.Request) error {
	switch c.auth.Type {
	case "", AuthNone:
		return nil
	case AuthBearer:
		if c.auth.Bearer != nil {
			request.Header.Set("Authorization", "Bearer "+c.auth.Bearer.Token)
		}
		return nil
	case AuthAPIKey:
		if c.auth.APIKey != nil {
			value := c.auth.APIKey.Key
			if c.auth.APIKey.Prefix != "" {
				value = c.auth.APIKey.Prefix + value
			}
			request.Header.Set(c.auth.APIKey.Header, value)
		}
		return nil
	case AuthOAuth:
		token, err := c.oauthAccessToken(ctx)
		if err != nil {
			return err
		}
		request.Header.Set("Authorization", "Bearer "+token)
		return nil
	default:
		return fmt.Errorf("unsupported auth type %q", c.auth.Type)
	}
}

// oauthAccessToken fetches a client-credentials token, caching it until
// shortly before expiry.
func (c *Client) oauthAccessToken(ctx context.Context) (string, error) {
	c.oauthMu.Lock()
	defer c.oauthMu.Unlock()
	if c.oauthToken != "" && time.Now().Before(c.oauthExpiry) {
		return c.oauthToken, nil
	}
	cfg := c.auth.OAuth
	if cfg == nil {
		return "", fmt.Errorf("oauth config missing")
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", cfg.ClientID)
	form.Set("client_secret", cfg.ClientSecret)
	if cfg.Scope != "" {
		form.Set("scope", cfg.Scope)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	response, err := c.client.Do(request)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer response.Body.Close()
	body, _ := io.ReadAll(response.Body)
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint status %d: %s", response.StatusCode, firstN(string(body), 200))
	}
	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access_token")
	}
	ttl := time.Duration(parsed.ExpiresIn) * time.Second
	if ttl <= 30*time.Second {
		ttl = time.Minute
	}
	c.oauthToken = parsed.AccessToken
	c.oauthExpiry = time.Now().Add(ttl - 30*time.Second)
	return c.oauthToken, nil
}

func firstN(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
