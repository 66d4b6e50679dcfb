package rpcwork

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/coreminer/gominer/algo"
	"github.com/coreminer/gominer/work"
)

// getworkResult is the getwork/long-poll reply shape of spec §4.3: "data:
// hex-128-bytes, target: hex-32-bytes, noncerange?: hex-8-bytes,
// maxvote?: hex-2-bytes", plus long-poll's submitold gate.
type getworkResult struct {
	Data       string `json:"data"`
	Target     string `json:"target"`
	NonceRange string `json:"noncerange,omitempty"`
	MaxVote    string `json:"maxvote,omitempty"`
	SubmitOld  bool   `json:"submitold,omitempty"`
}

// wordsFromHexLE decodes a hex string into little-endian 32-bit words,
// spec §4.3: "Data words are little-endian 32-bit; target likewise."
func wordsFromHexLE(s string, n int) ([]uint32, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if len(b) < n*4 {
		return nil, fmt.Errorf("%w: expected at least %d bytes, got %d", ErrProtocol, n*4, len(b))
	}
	words := make([]uint32, n)
	for i := 0; i < n; i++ {
		words[i] = binary.LittleEndian.Uint32(b[i*4 : i*4+4])
	}
	return words, nil
}

// wordsToHexLE is the inverse of wordsFromHexLE, used by the getwork
// decode/re-encode round-trip test (spec §8).
func wordsToHexLE(words []uint32) string {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:i*4+4], w)
	}
	return hex.EncodeToString(b)
}

// decodeGetwork turns a getworkResult into a work.Work, deriving the job
// id from ntime (word 17) for solo mining per spec §3.
func decodeGetwork(res getworkResult, fam *algo.Family, poolID int) (*work.Work, error) {
	dataWordCount := fam.DataSize / 4
	dataWords, err := wordsFromHexLE(res.Data, dataWordCount)
	if err != nil {
		return nil, err
	}
	targetWords, err := wordsFromHexLE(res.Target, work.TargetWords)
	if err != nil {
		return nil, err
	}

	var w work.Work
	copy(w.Data[:], dataWords)
	copy(w.Target[:], targetWords)
	w.PoolID = poolID
	w.SubmitOld = res.SubmitOld
	w.JobID = fmt.Sprintf("%08x", w.NTime())

	if res.MaxVote != "" {
		if v, err := strconv.ParseUint(res.MaxVote, 16, 16); err == nil {
			w.MaxVote = uint16(v)
		}
	}

	return &w, nil
}

// encodeGetwork re-encodes a work.Work's header back into the same
// little-endian hex representation getwork accepts as a submit param,
// exercising the round-trip property of spec §8.
func encodeGetwork(w *work.Work, fam *algo.Family) string {
	dataWordCount := fam.DataSize / 4
	return wordsToHexLE(w.Data[:dataWordCount])
}

// GetWork issues a getwork call and decodes the reply, returning the
// long-poll path advertised in the X-Long-Polling response header (empty
// if the pool doesn't support long-poll).
func (c *Client) GetWork(ctx context.Context) (job *work.Work, longpollPath string, err error) {
	raw, headers, err := c.call(ctx, "getwork", []interface{}{}, c.cfg.URL)
	if err != nil {
		return nil, "", err
	}

	var res getworkResult
	if uerr := json.Unmarshal(raw, &res); uerr != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrProtocol, uerr)
	}

	job, err = decodeGetwork(res, c.cfg.Algo, 0)
	if err != nil {
		return nil, "", err
	}

	// Opportunistically fill in height from getblocktemplate, mirroring
	// ccminer.cpp's get_upstream_work calling gbt_work_decode after every
	// getwork decode; GetBlockTemplate self-disables on any error so this
	// becomes a no-op for pools that don't support GBT.
	if h, gbtErr := c.GetBlockTemplate(ctx); gbtErr == nil {
		job.Height = h
	}

	if headers != nil {
		longpollPath = headers.Get("X-Long-Polling")
	}
	return job, longpollPath, nil
}

// SubmitWork POSTs a solved header back via getwork's submit form:
// {"method":"getwork","params":[hexdata],"id":1}.
func (c *Client) SubmitWork(ctx context.Context, w *work.Work) (accepted bool, err error) {
	hexData := encodeGetwork(w, c.cfg.Algo)
	raw, _, err := c.call(ctx, "getwork", []interface{}{hexData}, c.cfg.URL)
	if err != nil {
		return false, err
	}
	if uerr := json.Unmarshal(raw, &accepted); uerr != nil {
		return false, fmt.Errorf("%w: %v", ErrProtocol, uerr)
	}
	return accepted, nil
}
