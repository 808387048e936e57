package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func TestGateStartReady(t *testing.T) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := NewGate(time.Hour, true, clock.now)

	assert.NoError(t, g.Check())
	assert.Equal(t, time.Duration(0), g.Remaining())
}

func TestGateStartClosed(t *testing.T) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := NewGate(time.Hour, false, clock.now)

	assert.ErrorIs(t, g.Check(), ErrCooldownActive)
	assert.Equal(t, time.Hour, g.Remaining())

	clock.advance(59 * time.Minute)
	assert.ErrorIs(t, g.Check(), ErrCooldownActive)

	clock.advance(time.Minute)
	assert.NoError(t, g.Check())
}

func TestCheckDoesNotConsumeSlot(t *testing.T) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := NewGate(time.Hour, true, clock.now)

	// Repeated checks without Advance stay admissible.
	require.NoError(t, g.Check())
	require.NoError(t, g.Check())
	require.NoError(t, g.Check())
}

func TestAdvanceClosesGate(t *testing.T) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := NewGate(time.Hour, true, clock.now)

	require.NoError(t, g.Check())
	g.Advance()
	assert.ErrorIs(t, g.Check(), ErrCooldownActive)

	clock.advance(time.Hour)
	assert.NoError(t, g.Check())
}

func TestCheckAndAdvance(t *testing.T) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := NewGate(10*time.Minute, true, clock.now)

	require.NoError(t, g.CheckAndAdvance())
	assert.ErrorIs(t, g.CheckAndAdvance(), ErrCooldownActive)

	clock.advance(10 * time.Minute)
	assert.NoError(t, g.CheckAndAdvance())
}

func TestSetPeriodDoesNotResetClock(t *testing.T) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := NewGate(time.Hour, true, clock.now)

	require.NoError(t, g.CheckAndAdvance())
	clock.advance(30 * time.Minute)

	// Shrinking the period below elapsed time opens the gate immediately.
	g.SetPeriod(20 * time.Minute)
	assert.NoError(t, g.Check())

	// Growing it re-closes against the same last-action timestamp.
	g.SetPeriod(2 * time.Hour)
	assert.ErrorIs(t, g.Check(), ErrCooldownActive)
	assert.Equal(t, 90*time.Minute, g.Remaining())
}

func TestZeroPeriodAlwaysOpen(t *testing.T) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := NewGate(0, false, clock.now)

	require.NoError(t, g.CheckAndAdvance())
	require.NoError(t, g.CheckAndAdvance())
}
