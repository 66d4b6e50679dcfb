package stratum

import (
	"context"
	"fmt"
	"time"

	"github.com/coreminer/gominer/work"
)

// GetWork satisfies ioactor.Requester so a Stratum-backed pool can drive
// the same work I/O actor as a getwork pool would; jobs arrive via
// mining.notify instead, so this is never expected to be called while
// have_stratum is true (spec §4.5's Stratum wake path never requests
// fresh work from the I/O actor).
func (c *Client) GetWork(ctx context.Context) (*work.Work, string, error) {
	return nil, "", fmt.Errorf("stratum: GET_WORK is not supported, jobs arrive via mining.notify")
}

// SubmitWork adapts Submit to ioactor.Requester's signature.
func (c *Client) SubmitWork(ctx context.Context, w *work.Work) (bool, error) {
	if err := c.Submit(w, time.Now()); err != nil {
		return false, err
	}
	return true, nil
}
