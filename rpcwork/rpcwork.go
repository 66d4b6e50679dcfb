// Package rpcwork implements the shared HTTP JSON-RPC client for
// getwork, getblocktemplate, getmininginfo, and the long-poll loop of
// spec §4.3.
package rpcwork

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/coreminer/gominer/algo"
)

// Config configures one pool's getwork/GBT/long-poll HTTP client.
type Config struct {
	URL       string
	User      string
	Pass      string
	UserAgent string
	Algo      *algo.Family
	Timeout   time.Duration
}

// Client is the single-owner HTTP client of spec §4.6: "Each HTTP call
// uses its owning thread's client." One Client is meant to be driven by
// one goroutine (the work I/O actor) at a time, though its exported
// methods are safe to call from a long-poll goroutine concurrently since
// they share no mutable state besides the two disable flags below.
type Client struct {
	cfg      Config
	http     *http.Client
	longpoll *http.Client

	mu                 sync.Mutex
	gbtDisabled        bool
	miningInfoDisabled bool
}

// longpollTimeout bounds how long a single long-poll HTTP request may
// block; the server is expected to hold the connection open until new
// work exists (spec §4.3), well past the ordinary getwork timeout.
const longpollTimeout = 10 * time.Minute

// NewClient constructs an rpcwork.Client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: timeout},
		longpoll: &http.Client{Timeout: longpollTimeout},
	}
}

type rpcRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
	ID     int           `json:"id"`
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
	ID     json.RawMessage `json:"id"`
}

// call POSTs one JSON-RPC 1.0 style request via the default (short-timeout)
// client and returns the raw result plus the response headers (long-poll
// needs the X-Long-Polling header off the first getwork response).
func (c *Client) call(ctx context.Context, method string, params []interface{}, url string) (json.RawMessage, http.Header, error) {
	return c.callWith(ctx, c.http, method, params, url)
}

// callWith is call parameterized on the HTTP client, so the long-poll loop
// can use a client with a far longer timeout than ordinary getwork/GBT
// calls without affecting them (spec §4.3: long-poll "blocks until
// response").
func (c *Client) callWith(ctx context.Context, httpClient *http.Client, method string, params []interface{}, url string) (json.RawMessage, http.Header, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.SetBasicAuth(c.cfg.User, c.cfg.Pass)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		return nil, resp.Header, ErrNotSupported
	}
	if resp.StatusCode/100 != 2 {
		return nil, resp.Header, fmt.Errorf("%w: HTTP %d", ErrTransient, resp.StatusCode)
	}

	var env rpcEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, resp.Header, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if len(env.Error) > 0 && string(env.Error) != "null" {
		return nil, resp.Header, fmt.Errorf("%w: %s", ErrProtocol, string(env.Error))
	}
	return env.Result, resp.Header, nil
}

// miningInfoResult mirrors getmininginfo's loosely-typed reply: pool
// software disagrees on whether difficulty/hashrate come back as JSON
// numbers or strings, so mapstructure absorbs the coercion the way it
// would for any other pool-supplied interface{} blob (SPEC_FULL.md domain
// stack).
type miningInfoResult struct {
	Difficulty float64 `mapstructure:"difficulty"`
	NetworkHPS float64 `mapstructure:"networkhashps"`
	Blocks     int64   `mapstructure:"blocks"`
}

// GetMiningInfo is opportunistic per spec §4.3: the first
// "method not supported" response disables it for this pool.
func (c *Client) GetMiningInfo(ctx context.Context) (netDiff, netHashrate float64, netBlocks int64, err error) {
	c.mu.Lock()
	disabled := c.miningInfoDisabled
	c.mu.Unlock()
	if disabled {
		return 0, 0, 0, ErrNotSupported
	}

	raw, _, err := c.call(ctx, "getmininginfo", nil, c.cfg.URL)
	if err != nil {
		if err == ErrNotSupported {
			c.mu.Lock()
			c.miningInfoDisabled = true
			c.mu.Unlock()
		}
		return 0, 0, 0, err
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	var info miningInfoResult
	if err := mapstructure.Decode(generic, &info); err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return info.Difficulty, info.NetworkHPS, info.Blocks, nil
}

// GetBlockTemplate extracts height for the pool id it's called against;
// a server error response permanently disables GBT for this pool per
// spec §4.3.
func (c *Client) GetBlockTemplate(ctx context.Context) (height int64, err error) {
	c.mu.Lock()
	disabled := c.gbtDisabled
	c.mu.Unlock()
	if disabled {
		return 0, ErrNotSupported
	}

	raw, _, err := c.call(ctx, "getblocktemplate", []interface{}{}, c.cfg.URL)
	if err != nil {
		c.mu.Lock()
		c.gbtDisabled = true
		c.mu.Unlock()
		return 0, err
	}

	var tmpl struct {
		Height int64 `json:"height"`
	}
	if err := json.Unmarshal(raw, &tmpl); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return tmpl.Height, nil
}
