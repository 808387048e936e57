/*

Cooldown gate for privileged rebalance actions. Ordinary gated actions may
run at most once per configured period; forced actions bypass the gate
entirely and leave the ordinary clock untouched, so escalation never grants
a free ordinary slot.

*/

package cooldown

import (
	"errors"
	"fmt"
	"time"
)

var ErrCooldownActive = errors.New("cooldown period has not elapsed")

// Gate tracks the single timestamp governing ordinary gated actions.
type Gate struct {
	period time.Duration
	last   time.Time
	now    func() time.Time
}

// NewGate creates a gate with the given period. If startReady is true the
// gate is seeded as already satisfied; otherwise a full period must elapse
// before the first ordinary action. now may be nil, defaulting to time.Now.
func NewGate(period time.Duration, startReady bool, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	g := &Gate{period: period, now: now}
	if startReady {
		g.last = now().Add(-period)
	} else {
		g.last = now()
	}
	return g
}

// Check reports whether an ordinary action is admissible right now, without
// touching state. The clock only moves via Advance, so a gated action that
// fails later in its operation does not consume the slot.
func (g *Gate) Check() error {
	elapsed := g.now().Sub(g.last)
	if elapsed < g.period {
		return fmt.Errorf("%w: %s of %s elapsed", ErrCooldownActive, elapsed, g.period)
	}
	return nil
}

// Advance moves the ordinary clock to now. Called once the gated action has
// succeeded.
func (g *Gate) Advance() {
	g.last = g.now()
}

// CheckAndAdvance admits one ordinary action. On success the clock advances
// to now; on rejection state is untouched.
func (g *Gate) CheckAndAdvance() error {
	if err := g.Check(); err != nil {
		return err
	}
	g.Advance()
	return nil
}

// SetPeriod changes the cooldown period. The ordinary clock is deliberately
// not reset: the next action is gated by real elapsed time under the new
// period.
func (g *Gate) SetPeriod(period time.Duration) {
	g.period = period
}

// Period returns the configured cooldown period.
func (g *Gate) Period() time.Duration {
	return g.period
}

// Remaining reports how long until the next ordinary action is admissible.
// Zero means the gate is open.
func (g *Gate) Remaining() time.Duration {
	remaining := g.period - g.now().Sub(g.last)
	if remaining < 0 {
		return 0
	}
	return remaining
}
