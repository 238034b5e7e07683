// Package vault reads database credentials from HashiCorp Vault's KV v2 API
// and caches them with a TTL so repeated lookups do not hit the network.
package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	healthTimeout  = 5 * time.Second

	// DefaultTTL is how long a fetched credential bundle stays valid.
	DefaultTTL = 5 * time.Minute
)

// Field names agreed with the secret store's schema.
const (
	fieldURL      = "ndamli_db_backend_url"
	fieldUsername = "ndamli_db_backend_username"
	fieldPassword = "ndamli_db_backend_password"
)

// Client reads secrets from Vault over HTTP and caches credential bundles
// per secret path. Safe for concurrent use; concurrent misses on the same
// path may each fetch once (last write wins), but readers never observe a
// partial bundle.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	token string
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	cache map[string]Credentials
}

// NewClient returns a Client for the given Vault base URL and token.
// ttl <= 0 uses DefaultTTL.
func NewClient(baseURL, token string, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		token:      token,
		ttl:        ttl,
		now:        time.Now,
		cache:      make(map[string]Credentials),
	}
}

// kvResponse is the KV v2 read envelope: {"data":{"data":{...}}}.
type kvResponse struct {
	Data struct {
		Data map[string]string `json:"data"`
	} `json:"data"`
}

// GetDatabaseCredentials returns the credential bundle for secretPath,
// serving from cache while unexpired and fetching from Vault otherwise.
// Any network error, non-200 status, or missing required field returns a
// *ResolutionError; a bundle is never partially populated.
func (c *Client) GetDatabaseCredentials(ctx context.Context, secretPath string) (Credentials, error) {
	c.mu.Lock()
	cached, ok := c.cache[secretPath]
	c.mu.Unlock()
	if ok && !cached.Expired(c.now()) {
		return cached, nil
	}

	creds, err := c.fetch(ctx, secretPath)
	if err != nil {
		return Credentials{}, err
	}

	c.mu.Lock()
	c.cache[secretPath] = creds
	c.mu.Unlock()
	return creds, nil
}

func (c *Client) fetch(ctx context.Context, secretPath string) (Credentials, error) {
	url := c.BaseURL + "/v1/" + strings.TrimLeft(secretPath, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Credentials{}, &ResolutionError{Op: "fetch", Path: secretPath, Err: err}
	}
	req.Header.Set("X-Vault-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Credentials{}, &ResolutionError{Op: "fetch", Path: secretPath, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credentials{}, &ResolutionError{Op: "fetch", Path: secretPath, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return Credentials{}, &ResolutionError{Op: "fetch", Path: secretPath, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return c.parse(secretPath, body)
}

func (c *Client) parse(secretPath string, body []byte) (Credentials, error) {
	var envelope kvResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Credentials{}, &ResolutionError{Op: "parse", Path: secretPath, Err: err}
	}
	data := envelope.Data.Data
	if len(data) == 0 {
		return Credentials{}, &ResolutionError{Op: "parse", Path: secretPath, Err: fmt.Errorf("no data.data node in response")}
	}

	url := data[fieldURL]
	username := data[fieldUsername]
	password := data[fieldPassword]
	if url == "" || username == "" || password == "" {
		return Credentials{}, &ResolutionError{Op: "parse", Path: secretPath, Err: fmt.Errorf("incomplete credentials in response")}
	}

	return Credentials{
		URL:       url,
		Username:  username,
		Password:  password,
		FetchedAt: c.now(),
		TTL:       c.ttl,
	}, nil
}

// TokenDigest returns a short fingerprint of the token, safe for use in
// configuration keys and logs. The raw token is never exposed.
func (c *Client) TokenDigest() string {
	sum := sha256.Sum256([]byte(c.token))
	return hex.EncodeToString(sum[:6])
}

// ClearCache discards every cached bundle. Called on configuration change.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]Credentials)
	c.mu.Unlock()
}

// ClearExpired removes only bundles past their TTL.
func (c *Client) ClearExpired() {
	now := c.now()
	c.mu.Lock()
	for path, creds := range c.cache {
		if creds.Expired(now) {
			delete(c.cache, path)
		}
	}
	c.mu.Unlock()
}

// HealthCheck probes /v1/sys/health with a short timeout. 200 and 429
// (sealed but responsive) both count as healthy. Returns false, never an
// error, on any failure.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/sys/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusTooManyRequests
}
