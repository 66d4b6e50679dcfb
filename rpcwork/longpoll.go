package rpcwork

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/coreminer/gominer/work"
)

// resolveLongpollURL turns the X-Long-Polling header value into an
// absolute URL: pools commonly send either an absolute URL or a
// server-relative path.
func resolveLongpollURL(base, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty long-poll path", ErrProtocol)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// LongPoll issues one getwork call against path (resolved relative to the
// pool's base URL) using the long-timeout client, blocking until the pool
// responds with fresh work or the context is cancelled.
func (c *Client) LongPoll(ctx context.Context, path string) (*work.Work, error) {
	target, err := resolveLongpollURL(c.cfg.URL, path)
	if err != nil {
		return nil, err
	}

	raw, _, err := c.callWith(ctx, c.longpoll, "getwork", []interface{}{}, target)
	if err != nil {
		return nil, err
	}

	var res getworkResult
	if uerr := json.Unmarshal(raw, &res); uerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, uerr)
	}
	return decodeGetwork(res, c.cfg.Algo, 0)
}

// Loop repeatedly long-polls path, invoking publish with each job it
// receives, until ctx is cancelled. A transient error backs off briefly
// rather than busy-looping; the caller (the work I/O actor's owning
// supervisor) is responsible for switching pools if failures persist.
func (c *Client) Loop(ctx context.Context, path string, publish func(*work.Work), onError func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := c.LongPoll(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if onError != nil {
				onError(err)
			}
			pause := time.NewTimer(time.Second)
			select {
			case <-ctx.Done():
				pause.Stop()
				return
			case <-pause.C:
			}
			continue
		}
		publish(job)
	}
}
