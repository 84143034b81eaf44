package retry

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait(t *testing.T) {
	t.Run("zero backoff continues immediately", func(t *testing.T) {
		ok, err := Wait(context.Background(), NoDelay())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stop backoff ends retries", func(t *testing.T) {
		ok, err := Wait(context.Background(), &backoff.StopBackOff{})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("constant backoff sleeps", func(t *testing.T) {
		start := time.Now()
		ok, err := Wait(context.Background(), backoff.NewConstantBackOff(20*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("cancelled context interrupts sleep", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ok, err := Wait(ctx, backoff.NewConstantBackOff(time.Hour))
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, ok)
	})
}

func TestOrDefault(t *testing.T) {
	assert.NotNil(t, OrDefault(nil))

	zero := NoDelay()
	assert.Same(t, zero, OrDefault(zero))
}
