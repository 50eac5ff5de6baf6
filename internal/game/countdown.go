package game

import (
	"context"
	"sync"
	"time"
)

// countdown is the cancellable handle of a recurring per-game timer.
type countdown struct {
	stop chan struct{}
	once sync.Once
}

func newCountdown() *countdown {
	return &countdown{stop: make(chan struct{})}
}

// cancel stops the timer. Calling it more than once is a no-op.
func (cd *countdown) cancel() {
	cd.once.Do(func() { close(cd.stop) })
}

func (cd *countdown) cancelled() bool {
	select {
	case <-cd.stop:
		return true
	default:
		return false
	}
}

// every calls fn under the game lock on each tick of d, until fn returns false or
// the handle is cancelled. A tick is dropped unless the handle is still the game's
// current timer, so a cancelled timer never applies a stale tick.
// Caller must hold g.mu and store the returned handle in g.timer.
func (c *Coordinator) every(ctx context.Context, g *game, d time.Duration, fn func(ctx context.Context) bool) *countdown {
	cd := newCountdown()
	t := c.newTicker(d)
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer t.Stop()

		for {
			select {
			case <-cd.stop:
				return
			case <-t.C():
				if !c.fire(ctx, g, cd, fn) {
					return
				}
			}
		}
	}()

	return cd
}

func (c *Coordinator) fire(ctx context.Context, g *game, cd *countdown, fn func(ctx context.Context) bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ended || g.timer != cd || cd.cancelled() {
		return false
	}

	return fn(ctx)
}

// stopTimer cancels the game's current timer, if any. Caller must hold g.mu.
func stopTimer(g *game) {
	if g.timer != nil {
		g.timer.cancel()
		g.timer = nil
	}
}
