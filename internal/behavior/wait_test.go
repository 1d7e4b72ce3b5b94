package behavior

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBetween_StaysInBounds(t *testing.T) {
	wait, err := Between(DefaultThinkMin, DefaultThinkMax)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	var lo, hi bool
	for i := 0; i < 10000; i++ {
		d := wait(rng)
		require.GreaterOrEqual(t, d, time.Second)
		require.LessOrEqual(t, d, 3*time.Second)
		if d < 1500*time.Millisecond {
			lo = true
		}
		if d > 2500*time.Millisecond {
			hi = true
		}
	}
	assert.True(t, lo, "expected samples near the lower bound")
	assert.True(t, hi, "expected samples near the upper bound")
}

func TestBetween_Invalid(t *testing.T) {
	_, err := Between(3*time.Second, time.Second)
	assert.Error(t, err)

	_, err = Between(-time.Second, time.Second)
	assert.Error(t, err)
}

func TestBetween_Degenerate(t *testing.T) {
	wait, err := Between(2*time.Second, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, wait(rand.New(rand.NewSource(1))))
}

func TestConstant(t *testing.T) {
	assert.Equal(t, 5*time.Millisecond, Constant(5*time.Millisecond)(nil))
}
