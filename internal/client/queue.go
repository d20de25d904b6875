package client

import "taglayer/pkg/types"

// enqueueLocked appends an entry to the holding queue. Consent commands take
// priority: a new consent command is inserted immediately before the first
// non-consent entry currently queued (or appended when none exists), so after
// a flush every consent command precedes every ordinary entry that was queued
// after the earliest consent command. Non-consent entries keep call order.
func (c *Client) enqueueLocked(e types.Entry) {
	sig, ok := c.engine.For(e)
	q := queuedEntry{entry: e, sig: sig, ok: ok}
	if !e.IsConsent() {
		c.queue = append(c.queue, q)
		return
	}
	if ok && c.queuedConsent[sig] {
		c.log.Debug().Str("sig", sig).Msg("duplicate queued consent command dropped")
		return
	}
	idx := len(c.queue)
	for i, held := range c.queue {
		if !held.entry.IsConsent() {
			idx = i
			break
		}
	}
	c.queue = append(c.queue, queuedEntry{})
	copy(c.queue[idx+1:], c.queue[idx:])
	c.queue[idx] = q
	if ok {
		c.queuedConsent[sig] = true
	}
}

// deliverLocked computes the entry's signature and delivers it.
func (c *Client) deliverLocked(e types.Entry) {
	sig, ok := c.engine.For(e)
	c.deliverSignedLocked(e, sig, ok)
}

// deliverSignedLocked applies dedup rules and the size ceiling, then appends
// the entry to the live layer. Entries without a signature always deliver.
func (c *Client) deliverSignedLocked(e types.Entry, sig string, ok bool) {
	if ok && c.snapshotSigs[sig] {
		c.log.Debug().Str("sig", sig).Msg("entry already present in adopted layer; dropped")
		return
	}
	if e.IsConsent() && ok && c.deliveredConsent[sig] {
		c.log.Debug().Str("sig", sig).Msg("duplicate consent command dropped")
		return
	}
	l := c.claim.Layer
	if n := l.Len(); n >= c.cfg.SizeCeiling {
		need := n - c.cfg.SizeCeiling + 1
		evicted, size := l.EvictOldest(need, isCritical)
		if evicted > 0 {
			c.log.Warn().
				Int("evicted", evicted).
				Int("size", size).
				Msg("layer at size ceiling; oldest non-critical entries trimmed")
			if cb := c.cfg.OnEvicted; cb != nil {
				cb(evicted, size)
			}
		}
	}
	l.Append(e)
	if e.IsConsent() {
		if ok {
			c.deliveredConsent[sig] = true
		}
		c.consentCount++
	}
}
