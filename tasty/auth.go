// Package tasty is a thin client for the brokerage REST endpoints the
// ingester needs: session login, the streamer quote token and option chains.
package tasty

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.tastyworks.com"

type Credentials struct {
	Username string
	Password string
}

type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
	limiter *rate.Limiter

	mu           sync.Mutex
	sessionToken string
}

func NewClient(baseURL string, creds Credentials, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

// WithRateLimit caps outgoing requests to requestsPerMinute, with a burst
// of a tenth of that. Zero or less leaves the client unlimited.
func (c *Client) WithRateLimit(requestsPerMinute int) *Client {
	if requestsPerMinute <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
		return c
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	return c
}

// Authenticate opens a session and remembers its token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if c.creds.Username == "" || c.creds.Password == "" {
		return "", fmt.Errorf("authentication failed: missing username or password")
	}

	var data sessionData
	err := c.do(ctx, http.MethodPost, "/sessions", "", loginRequest{
		Login:    c.creds.Username,
		Password: c.creds.Password,
	}, &data)
	if err != nil {
		return "", fmt.Errorf("authentication failed: %w", err)
	}
	if data.SessionToken == "" {
		return "", fmt.Errorf("authentication failed: empty session token")
	}

	c.mu.Lock()
	c.sessionToken = data.SessionToken
	c.mu.Unlock()
	return data.SessionToken, nil
}

func (c *Client) session(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.sessionToken
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return c.Authenticate(ctx)
}

func (c *Client) QuoteToken(ctx context.Context) (*QuoteToken, error) {
	session, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	var tok QuoteToken
	if err := c.do(ctx, http.MethodGet, "/api-quote-tokens", session, nil, &tok); err != nil {
		return nil, fmt.Errorf("failed to fetch quote token: %w", err)
	}
	if tok.Token == "" || tok.DXLinkURL == "" {
		return nil, fmt.Errorf("failed to fetch quote token: incomplete response")
	}
	return &tok, nil
}

// StreamerToken returns the DXLink url and token for a new feed connection.
func (c *Client) StreamerToken(ctx context.Context) (string, string, error) {
	tok, err := c.QuoteToken(ctx)
	if err != nil {
		return "", "", err
	}
	return tok.DXLinkURL, tok.Token, nil
}

func (c *Client) NestedOptionChain(ctx context.Context, symbol string) (*NestedChain, error) {
	session, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	var data nestedChainData
	path := "/option-chains/" + url.PathEscape(symbol) + "/nested"
	if err := c.do(ctx, http.MethodGet, path, session, nil, &data); err != nil {
		return nil, fmt.Errorf("failed to fetch option chain for %s: %w", symbol, err)
	}
	if len(data.Items) == 0 {
		return nil, fmt.Errorf("no option chain for %s", symbol)
	}
	return &data.Items[0], nil
}

func (c *Client) do(ctx context.Context, method, path, session string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "greeks-ingest/1.0")
	if session != "" {
		req.Header.Set("Authorization", session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	env := envelope[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || env.Error != nil {
		if env.Error != nil {
			return fmt.Errorf("status %d: %s: %s", resp.StatusCode, env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
