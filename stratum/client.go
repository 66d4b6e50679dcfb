// Package stratum implements the line-oriented Stratum TCP client of spec
// §4.2: subscribe, authorize, notify, submit, set_difficulty, over
// newline-delimited JSON-RPC, with the state machine DISCONNECTED ->
// CONNECTING -> SUBSCRIBED -> READY. A granted mining.authorize moves the
// client straight from SUBSCRIBED to READY; AUTHORIZED is never entered.
package stratum

import (
	"bufio"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/btccom/connectproxy"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/coreminer/gominer/algo"
	"github.com/coreminer/gominer/stats"
	"github.com/coreminer/gominer/work"
	"github.com/coreminer/gominer/worklog"
)

const (
	subscribeID           = 1
	authorizeID           = 2
	extranonceSubscribeID = 3
	submitID              = 4
)

// idleTimeout is spec §4.2's socket-idle fatal threshold.
const idleTimeout = 120 * time.Second

// callTimeout bounds how long call waits for a matching response before
// giving up; it is well under idleTimeout so a hung request fails fast
// without waiting for the whole socket to be declared dead.
const callTimeout = 30 * time.Second

// purgeAge is how far back hashlog and stats history is kept once a
// clean job boundary fires, mirroring ccminer.cpp's stratum_thread call
// to hashlog_purge_old/stats_purge_old on every stratum.job.clean notify.
const purgeAge = 5 * time.Minute

// Config configures one Stratum session.
type Config struct {
	// URL is the pool address with credentials already stripped
	// (pool.ParseURL's job), scheme stratum+tcp or stratum+tcps.
	URL string
	User string
	Pass string

	// ProxyURL, if set, is a socks5://, http://, or https:// proxy the TCP
	// dial is routed through (spec §5: sockets acquired in
	// stratum_connect with scoped acquisition).
	ProxyURL string

	Algo      *algo.Family
	UserAgent string

	// Vote is the miner's opt_vote setting, packed into header word 20's
	// low 16 bits for algorithm families with HasVote (spec §3).
	Vote uint16
}

// rpcResponse is a decoded reply keyed by request id: Result carries the
// raw JSON-RPC result, ErrorText the extracted message from a non-null
// error field (empty when the call succeeded).
type rpcResponse struct {
	Result    json.RawMessage
	ErrorText string
}

// wireMessage decodes any line: either an id-bearing response or a
// server-pushed method call (mining.notify and friends carry no id worth
// matching, per spec §4.2: "id<4 late answers are tolerated but ignored if
// unsolicited").
type wireMessage struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Client is one Stratum session. Fields under connMu are the "sock_lock"
// domain (spec §5); fields under mu are the "work_lock" domain guarding
// session/notify state.
type Client struct {
	cfg     Config
	work    *work.CurrentWork
	hashLog *worklog.HashLog
	stats   *stats.Store
	log     *zap.SugaredLogger
	poolID  int

	// done is closed exactly once, by readLoop's error-return path, to
	// signal an external session/reconnect loop that this connection is
	// dead and should be redialed or failed over.
	done chan struct{}

	connMu sync.Mutex
	conn   net.Conn
	writer *bufio.Writer
	state  State

	pendingMu sync.Mutex
	pending   map[uint64]chan rpcResponse

	mu              sync.Mutex
	xnonce1         []byte
	xnonce2         []byte
	xnonce2Size     int
	notify          NotifyParams
	sessionDiff     float64
	userDivisor     float64
	dedupEnabled    bool
	srvTimeDiff     int64
	srvTimeCaptured bool
}

// NewClient constructs a Client bound to the shared current-work slot,
// hash-log, and stats store it will publish jobs into, dedup submissions
// against, and purge on clean job boundaries.
func NewClient(cfg Config, cw *work.CurrentWork, hl *worklog.HashLog, st *stats.Store, poolID int, log *zap.SugaredLogger) *Client {
	return &Client{
		cfg:         cfg,
		work:        cw,
		hashLog:     hl,
		stats:       st,
		log:         log,
		poolID:      poolID,
		userDivisor: 1.0,
	}
}

// Done returns a channel closed when the connection's read loop has
// exited, letting an external session loop detect disconnection and
// redial or fail over without polling State.
func (c *Client) Done() <-chan struct{} {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.done
}

// State returns the client's current connection state.
func (c *Client) State() State {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.state
}

// dialTarget opens network to addr, optionally through a SOCKS5 or HTTP
// CONNECT proxy (SPEC_FULL.md domain stack: connectproxy + x/net/proxy).
func dialTarget(network, addr, proxyURL string) (net.Conn, error) {
	if proxyURL == "" {
		return net.DialTimeout(network, addr, callTimeout)
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("stratum: bad proxy url: %w", err)
	}
	switch u.Scheme {
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5(network, u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, err
		}
		return dialer.Dial(network, addr)
	case "http", "https":
		dialer, err := connectproxy.New(u, proxy.Direct)
		if err != nil {
			return nil, err
		}
		return dialer.Dial(network, addr)
	default:
		return nil, fmt.Errorf("stratum: unsupported proxy scheme %q", u.Scheme)
	}
}

// Dial opens the TCP (or TLS, for stratum+tcps) connection and starts the
// read loop. It does not subscribe or authorize; call Subscribe and
// Authorize afterward.
func (c *Client) Dial() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.state = Connecting
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		c.state = Disconnected
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	conn, err := dialTarget("tcp", u.Host, c.cfg.ProxyURL)
	if err != nil {
		c.state = Disconnected
		return err
	}
	if strings.EqualFold(u.Scheme, "stratum+tcps") {
		host, _, splitErr := net.SplitHostPort(u.Host)
		if splitErr != nil {
			host = u.Host
		}
		conn = tls.Client(conn, &tls.Config{ServerName: host})
	}

	c.conn = conn
	c.writer = bufio.NewWriter(conn)
	c.done = make(chan struct{})

	c.pendingMu.Lock()
	c.pending = make(map[uint64]chan rpcResponse)
	c.pendingMu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Close tears down the connection, matching spec §5's requirement that
// sockets are released on every exit path.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.state = Disconnected
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// send marshals and writes one JSON-RPC request line, serializing on
// connMu (the "sock_lock" of spec §5, shared with Submit callers on other
// goroutines).
func (c *Client) send(id uint64, method string, params interface{}) error {
	line, err := json.Marshal(struct {
		ID     uint64      `json:"id"`
		Method string      `json:"method"`
		Params interface{} `json:"params"`
	}{id, method, params})
	if err != nil {
		return err
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil || c.writer == nil {
		return ErrNotConnected
	}
	if _, err := c.writer.Write(line); err != nil {
		return err
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return err
	}
	return c.writer.Flush()
}

// call sends a request under id and blocks for its matching response.
func (c *Client) call(id uint64, method string, params interface{}) (rpcResponse, error) {
	reply := make(chan rpcResponse, 1)
	c.pendingMu.Lock()
	if c.pending == nil {
		c.pendingMu.Unlock()
		return rpcResponse{}, ErrNotConnected
	}
	c.pending[id] = reply
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.send(id, method, params); err != nil {
		return rpcResponse{}, err
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-time.After(callTimeout):
		return rpcResponse{}, ErrTimeout
	}
}

// Subscribe issues mining.subscribe (id 1) and records xnonce1/xnonce2
// size from the reply.
func (c *Client) Subscribe() error {
	resp, err := c.call(subscribeID, "mining.subscribe", []string{c.cfg.UserAgent})
	if err != nil {
		return err
	}
	if resp.ErrorText != "" {
		return fmt.Errorf("%w: subscribe refused: %s", ErrProtocol, resp.ErrorText)
	}

	var reply []interface{}
	if err := json.Unmarshal(resp.Result, &reply); err != nil || len(reply) < 3 {
		return fmt.Errorf("%w: malformed subscribe reply", ErrProtocol)
	}

	xnonce1Hex, ok := reply[1].(string)
	if !ok {
		return fmt.Errorf("%w: xnonce1 not a string", ErrProtocol)
	}
	xnonce1, err := hex.DecodeString(xnonce1Hex)
	if err != nil {
		return fmt.Errorf("%w: bad xnonce1 hex: %v", ErrProtocol, err)
	}

	// mapstructure absorbs the JSON-number-vs-int coercion the raw
	// interface{} value needs, the same convenience the veo/generalstratum
	// clients lean on for loosely-typed stratum extension fields.
	var sizeInfo struct{ XNonce2Size int }
	if err := mapstructure.Decode(map[string]interface{}{"XNonce2Size": reply[2]}, &sizeInfo); err != nil {
		return fmt.Errorf("%w: bad xnonce2_size: %v", ErrProtocol, err)
	}

	c.mu.Lock()
	c.xnonce1 = xnonce1
	c.xnonce2Size = sizeInfo.XNonce2Size
	c.xnonce2 = make([]byte, sizeInfo.XNonce2Size)
	c.mu.Unlock()

	c.connMu.Lock()
	c.state = Subscribed
	c.connMu.Unlock()
	return nil
}

// ExtranonceSubscribe issues the optional mining.extranonce.subscribe
// call; a refusal or timeout is non-fatal since not every pool supports
// it.
func (c *Client) ExtranonceSubscribe() {
	resp, err := c.call(extranonceSubscribeID, "mining.extranonce.subscribe", []interface{}{})
	if err != nil {
		c.log.Debugw("extranonce.subscribe unavailable", "err", err)
		return
	}
	if resp.ErrorText != "" {
		c.log.Debugw("extranonce.subscribe refused", "reason", resp.ErrorText)
	}
}

// Authorize issues mining.authorize (id 2).
func (c *Client) Authorize() error {
	resp, err := c.call(authorizeID, "mining.authorize", []string{c.cfg.User, c.cfg.Pass})
	if err != nil {
		return err
	}
	if resp.ErrorText != "" {
		return fmt.Errorf("%w: authorize refused: %s", ErrProtocol, resp.ErrorText)
	}
	var ok bool
	if err := json.Unmarshal(resp.Result, &ok); err != nil || !ok {
		return fmt.Errorf("%w: authorization not granted", ErrProtocol)
	}

	c.connMu.Lock()
	c.state = Ready
	c.connMu.Unlock()
	return nil
}

// Submit sends mining.submit (id 4) for job's current nonce. When dedup is
// enabled it first consults the hash-log for a prior submission of the
// same (job_id, nonce) pair (spec §4.8); the pair is recorded either way.
func (c *Client) Submit(job *work.Work, now time.Time) error {
	nonce := job.Nonce()

	c.mu.Lock()
	dedup := c.dedupEnabled
	c.mu.Unlock()

	if dedup {
		if t, dup := c.hashLog.Submitted(job.JobID, nonce); dup {
			c.log.Infow("duplicate submission suppressed",
				"job", job.JobID, "nonce", nonce, "seconds_ago", now.Sub(t).Seconds())
			return work.ErrDuplicateNonce
		}
	}
	c.hashLog.Record(job.JobID, nonce, now)

	params := []string{
		c.cfg.User,
		job.JobID,
		hex.EncodeToString(job.XNonce2),
		fmt.Sprintf("%08x", job.NTime()),
		fmt.Sprintf("%08x", nonce),
	}
	if c.cfg.Algo != nil && c.cfg.Algo.HasVote {
		params = append(params, fmt.Sprintf("%04x", job.Vote))
	}

	resp, err := c.call(submitID, "mining.submit", params)
	if err != nil {
		return err
	}
	if resp.ErrorText != "" {
		applyShareResult(c, resp.ErrorText)
		return fmt.Errorf("%w: %s", ErrShareRejected, resp.ErrorText)
	}

	var accepted bool
	if err := json.Unmarshal(resp.Result, &accepted); err != nil || !accepted {
		return ErrShareRejected
	}
	return nil
}

// readLoop parses newline-delimited JSON-RPC lines until the socket
// errors, dispatching id-bearing lines to call and method-bearing lines to
// the notification handlers.
func (c *Client) readLoop(conn net.Conn) {
	c.connMu.Lock()
	done := c.done
	c.connMu.Unlock()

	reader := bufio.NewReader(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		line, err := reader.ReadBytes('\n')
		if err != nil {
			c.log.Debugw("stratum read loop ending", "err", err)
			c.Close()
			close(done)
			return
		}
		line = trimNewline(line)
		if len(line) == 0 {
			continue
		}

		var msg wireMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			c.log.Warnw("malformed stratum line", "err", err)
			continue
		}

		if msg.Method != "" {
			c.dispatchNotification(msg)
			continue
		}
		if msg.ID == nil {
			continue
		}

		c.pendingMu.Lock()
		reply, ok := c.pending[*msg.ID]
		c.pendingMu.Unlock()
		if !ok {
			// id<4 late answers tolerated but ignored per spec §4.2.
			continue
		}
		reply <- rpcResponse{Result: msg.Result, ErrorText: extractErrorMessage(msg.Error)}
	}
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// extractErrorMessage best-effort decodes a JSON-RPC error field, which
// pools represent inconsistently as null, a bare string, or a
// [code, message, traceback] array.
func extractErrorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var arr []interface{}
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) >= 2 {
			if s, ok := arr[1].(string); ok {
				return s
			}
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (c *Client) dispatchNotification(msg wireMessage) {
	var params []interface{}
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			c.log.Warnw("malformed notification params", "method", msg.Method, "err", err)
			return
		}
	}

	switch msg.Method {
	case "mining.notify":
		c.handleNotify(params)
	case "mining.set_difficulty":
		c.handleSetDifficulty(params)
	case "mining.set_extranonce":
		c.handleSetExtranonce(params)
	case "client.reconnect":
		c.handleReconnect(params)
	case "client.show_message":
		if len(params) > 0 {
			c.log.Infow("pool message", "message", params[0])
		}
	case "client.get_version":
		// No response id is associated with this push; nothing to answer
		// without breaking the fixed id scheme, so it's logged only.
		c.log.Debugw("pool requested client version")
	default:
		c.log.Debugw("unhandled stratum notification", "method", msg.Method)
	}
}

func hexParam(v interface{}) ([]byte, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

func stringParam(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func boolParam(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

// handleNotify implements spec §4.2's notify handling: take the session
// work lock, store notify parameters, bump xnonce2, regenerate the job,
// and publish it; clean=true additionally restarts every worker.
func (c *Client) handleNotify(params []interface{}) {
	if len(params) < 9 {
		c.log.Warnw("mining.notify with too few parameters", "count", len(params))
		return
	}

	jobID, ok := stringParam(params[0])
	if !ok {
		c.log.Warnw("mining.notify with non-string job id")
		return
	}
	prevHash, ok := hexParam(params[1])
	if !ok {
		c.log.Warnw("mining.notify with bad prevhash")
		return
	}
	coinbase1, ok := hexParam(params[2])
	if !ok {
		c.log.Warnw("mining.notify with bad coinb1")
		return
	}
	coinbase2, ok := hexParam(params[3])
	if !ok {
		c.log.Warnw("mining.notify with bad coinb2")
		return
	}
	branchList, ok := params[4].([]interface{})
	if !ok {
		c.log.Warnw("mining.notify with bad merkle branch list")
		return
	}
	branches := make([][]byte, 0, len(branchList))
	for _, item := range branchList {
		b, ok := hexParam(item)
		if !ok {
			c.log.Warnw("mining.notify with bad merkle branch entry")
			return
		}
		branches = append(branches, b)
	}
	version, ok := hexParam(params[5])
	if !ok {
		c.log.Warnw("mining.notify with bad version")
		return
	}
	nbits, ok := hexParam(params[6])
	if !ok {
		c.log.Warnw("mining.notify with bad nbits")
		return
	}
	ntime, ok := hexParam(params[7])
	if !ok {
		c.log.Warnw("mining.notify with bad ntime")
		return
	}
	clean := boolParam(params[8])

	// Heavycoin-style pools append a trailing "nreward" param after the
	// standard nine (ccminer.cpp's stratum_gen_work reads sctx->job.nreward
	// only for ALGO_HEAVY); absent for every other family.
	var nreward []byte
	if c.cfg.Algo != nil && c.cfg.Algo.HasVote && len(params) > 9 {
		nreward, _ = hexParam(params[9])
	}

	n := NotifyParams{
		JobID:        jobID,
		PrevHash:     prevHash,
		Coinbase1:    coinbase1,
		Coinbase2:    coinbase2,
		MerkleBranch: branches,
		Version:      version,
		NBits:        nbits,
		NTime:        ntime,
		Clean:        clean,
		NReward:      nreward,
	}

	c.mu.Lock()
	c.notify = n
	IncrementXNonce2(c.xnonce2)
	xnonce2 := append([]byte(nil), c.xnonce2...)
	xnonce1 := append([]byte(nil), c.xnonce1...)
	sessDiff := c.sessionDiff
	userDivisor := c.userDivisor
	dedup := c.dedupEnabled
	if !c.srvTimeCaptured && len(ntime) == 4 {
		srvNTime := int64(beWord(ntime))
		c.srvTimeDiff = srvNTime - time.Now().Unix()
		c.srvTimeCaptured = true
	}
	c.mu.Unlock()

	job := AssembleJob(c.cfg.Algo, n, xnonce1, xnonce2, sessDiff, userDivisor, c.poolID, c.cfg.Vote)
	now := time.Now()
	c.work.Publish(job, c.poolID, now)
	if clean {
		c.work.RestartAll()
		if c.hashLog != nil && dedup {
			c.hashLog.PurgeOlderThan(now, purgeAge)
		}
		if c.stats != nil {
			c.stats.PurgeOld(now, purgeAge)
		}
	}
}

func (c *Client) handleSetDifficulty(params []interface{}) {
	if len(params) < 1 {
		return
	}
	diff, ok := params[0].(float64)
	if !ok {
		c.log.Warnw("mining.set_difficulty with non-numeric difficulty")
		return
	}
	c.mu.Lock()
	c.sessionDiff = diff
	c.mu.Unlock()
}

func (c *Client) handleSetExtranonce(params []interface{}) {
	if len(params) < 2 {
		return
	}
	xnonce1Hex, ok := stringParam(params[0])
	if !ok {
		return
	}
	xnonce1, err := hex.DecodeString(xnonce1Hex)
	if err != nil {
		return
	}

	var sizeInfo struct{ XNonce2Size int }
	if err := mapstructure.Decode(map[string]interface{}{"XNonce2Size": params[1]}, &sizeInfo); err != nil {
		return
	}

	c.mu.Lock()
	c.xnonce1 = xnonce1
	c.xnonce2Size = sizeInfo.XNonce2Size
	c.xnonce2 = make([]byte, sizeInfo.XNonce2Size)
	c.mu.Unlock()
}

// handleReconnect handles client.reconnect by tearing down the current
// socket; the caller's session loop is expected to redial (spec §9's
// "outer loop over a ThreadInput channel" restatement of the goto-based
// reinit pattern), optionally against a new host/port if supplied.
func (c *Client) handleReconnect(params []interface{}) {
	if len(params) >= 2 {
		host, hostOK := stringParam(params[0])
		portVal, portOK := params[1].(float64)
		if hostOK && portOK && host != "" {
			c.mu.Lock()
			if u, err := url.Parse(c.cfg.URL); err == nil {
				u.Host = net.JoinHostPort(host, strconv.Itoa(int(portVal)))
				c.cfg.URL = u.String()
			}
			c.mu.Unlock()
		}
	}
	c.log.Infow("stratum server requested reconnect")
	c.Close()
}
