package cache

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetvault/fvm/internal/types"
)

func TestGetMiss(t *testing.T) {
	c := New()

	_, ok := c.Get("alpha")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestPutThenGet(t *testing.T) {
	c := New()
	c.Put("alpha", sdkmath.NewInt(500))

	got, ok := c.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, sdkmath.NewInt(500), got)
	assert.Equal(t, 1, c.Len())
}

func TestPutOverwrites(t *testing.T) {
	c := New()
	c.Put("alpha", sdkmath.NewInt(500))
	c.Put("alpha", sdkmath.NewInt(750))

	got, ok := c.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, sdkmath.NewInt(750), got)
	assert.Equal(t, 1, c.Len())
}

func TestInvalidate(t *testing.T) {
	c := New()
	c.Put("alpha", sdkmath.NewInt(500))
	c.Put("beta", sdkmath.NewInt(200))

	c.Invalidate("alpha")

	_, ok := c.Get("alpha")
	assert.False(t, ok)

	got, ok := c.Get("beta")
	require.True(t, ok)
	assert.Equal(t, sdkmath.NewInt(200), got)
}

func TestInvalidateUnknownIsNoop(t *testing.T) {
	c := New()
	c.Put("alpha", sdkmath.NewInt(1))

	c.Invalidate(types.StrategyID("never-seen"))
	assert.Equal(t, 1, c.Len())
}

func TestZeroBalanceIsCached(t *testing.T) {
	c := New()
	c.Put("alpha", sdkmath.ZeroInt())

	got, ok := c.Get("alpha")
	require.True(t, ok)
	assert.True(t, got.IsZero())
}
