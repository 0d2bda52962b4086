package pool

import (
	"context"
	"time"
)

// WarmResult reports the warmup outcome for one key.
type WarmResult struct {
	Key       Key
	Requested int
	Existing  int   // idle connections already present
	Opened    int   // connections established by this call
	Err       error // first dial failure, when the target was not reached
}

// Warm pre-opens connections so later acquires start hot. Idle connections
// already present count toward countPerKey, caps are respected, and warming
// never waits for slots: hitting a cap ends that key's warmup early. Partial
// success is normal; per-key errors are reported, not escalated.
func (p *Pool) Warm(ctx context.Context, keys []Key, countPerKey int) []WarmResult {
	results := make([]WarmResult, 0, len(keys))
	for _, key := range keys {
		results = append(results, p.warmKey(ctx, key, countPerKey))
	}
	return results
}

func (p *Pool) warmKey(ctx context.Context, key Key, count int) WarmResult {
	res := WarmResult{Key: key, Requested: count}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		res.Err = ErrClosed
		return res
	}
	res.Existing = len(p.idle[key])
	p.mu.Unlock()

	for res.Existing+res.Opened < count {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			res.Err = ErrClosed
			break
		}
		ok := p.reserveLocked(key)
		p.mu.Unlock()
		if !ok {
			// cap reached; warmed as far as allowed
			break
		}

		c, err := p.dial(ctx, key)
		if err != nil {
			p.cancelReservation(key)
			res.Err = err
			break
		}

		p.mu.Lock()
		if p.closed {
			p.dropLocked(c, "closed")
			p.mu.Unlock()
			res.Err = ErrClosed
			break
		}
		c.lastIdleAt = time.Now()
		p.idle[key] = append(p.idle[key], c)
		p.updateGaugesLocked(key)
		p.broadcastLocked()
		p.mu.Unlock()

		res.Opened++
	}

	if res.Err != nil {
		p.logger.Warn().
			Str("authority", key.String()).
			Int("opened", res.Opened).
			Err(res.Err).
			Msg("warmup incomplete")
	} else {
		p.logger.Debug().
			Str("authority", key.String()).
			Int("existing", res.Existing).
			Int("opened", res.Opened).
			Msg("warmup complete")
	}
	return res
}
