package stratum

import "strings"

// shareRule is one entry of the ordered (prefix, action) table spec §4.2
// describes as ccminer's share_result chain of
// strncasecmp(reason, "...", n) checks: "if the message begins with
// 'low difficulty' ... multiply the divisor by 2/3; if it begins with
// 'duplicate' and dedup is off, enable it." Expressed as a table instead
// of a chain of ifs so a future reject-reason needs no caller change
// (SPEC_FULL.md "SUPPLEMENTED FEATURES").
type shareRule struct {
	prefix string
	action func(c *Client)
}

var shareRules = []shareRule{
	{
		prefix: "low difficulty",
		action: func(c *Client) {
			c.mu.Lock()
			c.userDivisor *= 2.0 / 3.0
			c.mu.Unlock()
		},
	},
	{
		prefix: "duplicate",
		action: func(c *Client) {
			c.mu.Lock()
			c.dedupEnabled = true
			c.mu.Unlock()
		},
	},
}

// applyShareResult runs reason (a rejection message from the pool) through
// shareRules, applying the first matching rule's adaptation. It never
// re-submits or re-queues, matching spec §7: "the share-result handler...
// never re-submits and never re-queues."
func applyShareResult(c *Client, reason string) {
	lower := strings.ToLower(reason)
	for _, rule := range shareRules {
		if strings.HasPrefix(lower, rule.prefix) {
			rule.action(c)
			return
		}
	}
}
