package stratum

import (
	"bufio"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/coreminer/gominer/algo"
	"github.com/coreminer/gominer/stats"
	"github.com/coreminer/gominer/work"
	"github.com/coreminer/gominer/worklog"
)

type fakeResponse struct {
	ID     uint64      `json:"id"`
	Result interface{} `json:"result"`
	Error  interface{} `json:"error"`
}

func writeLine(t *testing.T, conn net.Conn, v interface{}) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	if _, err := conn.Write(append(b, '\n')); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func TestClientHappyPath(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)

		if _, err := r.ReadBytes('\n'); err != nil { // subscribe
			return
		}
		writeLine(t, conn, fakeResponse{ID: subscribeID, Result: []interface{}{"", "ab", 4}})

		if _, err := r.ReadBytes('\n'); err != nil { // authorize
			return
		}
		writeLine(t, conn, fakeResponse{ID: authorizeID, Result: true})

		writeLine(t, conn, struct {
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}{
			Method: "mining.notify",
			Params: []interface{}{
				"job1",
				strings.Repeat("00", 32),
				"01",
				"02",
				[]interface{}{},
				"00000002",
				"1d00ffff",
				"54a1b2c3",
				true,
			},
		})

		if _, err := r.ReadBytes('\n'); err != nil { // submit
			return
		}
		writeLine(t, conn, fakeResponse{ID: submitID, Result: true})
	}()

	cw := work.NewCurrentWork(1)
	hl := worklog.NewHashLog()
	st := stats.NewStore()
	logger := zap.NewNop().Sugar()
	fam := algo.MustLookup("blake")

	cfg := Config{
		URL:       "stratum+tcp://" + ln.Addr().String(),
		User:      "user",
		Pass:      "pass",
		Algo:      fam,
		UserAgent: "gominer-test/1.0",
	}
	c := NewClient(cfg, cw, hl, st, 0, logger)

	if err := c.Dial(); err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if err := c.Subscribe(); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := c.Authorize(); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if got := c.State(); got != Ready {
		t.Fatalf("expected Ready state after authorize, got %v", got)
	}

	var job *work.Work
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if j, _, _, ok := cw.Snapshot(); ok && j.JobID == "job1" {
			job = j
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job == nil {
		t.Fatalf("expected job1 to be published from mining.notify")
	}
	if job.NTime() != 0x54a1b2c3 {
		t.Fatalf("expected ntime 0x54a1b2c3, got %#x", job.NTime())
	}
	if job.NBits() != 0x1d00ffff {
		t.Fatalf("expected nbits 0x1d00ffff, got %#x", job.NBits())
	}

	job.SetNonce(0xdeadbeef)
	if err := c.Submit(job, time.Now()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	<-serverDone
}

func TestApplyShareResultLowDifficulty(t *testing.T) {
	c := &Client{userDivisor: 1.0}
	applyShareResult(c, "Low difficulty share")
	if c.userDivisor != 2.0/3.0 {
		t.Fatalf("expected userDivisor to become 2/3, got %v", c.userDivisor)
	}
}

func TestApplyShareResultDuplicate(t *testing.T) {
	c := &Client{}
	applyShareResult(c, "duplicate share")
	if !c.dedupEnabled {
		t.Fatalf("expected dedupEnabled to be set true")
	}
}
