package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLimiter_SeparateBucketsPerKey(t *testing.T) {
	l := NewKeyedLimiter(1, 1, 10, time.Minute)

	assert.True(t, l.Allow("a.example.com"))
	assert.False(t, l.Allow("a.example.com"), "second event in the same minute must be denied")
	assert.True(t, l.Allow("b.example.com"), "other keys have their own bucket")
}

func TestKeyedLimiter_CapacityEvicts(t *testing.T) {
	l := NewKeyedLimiter(60, 1, 3, time.Minute)

	for i := 0; i < 10; i++ {
		l.Allow(fmt.Sprintf("host-%d", i))
	}
	assert.LessOrEqual(t, l.Len(), 3)
}

func TestKeyedLimiter_DisabledWhenZero(t *testing.T) {
	l := NewKeyedLimiter(0, 1, 10, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx, "provider"))
	}
}
