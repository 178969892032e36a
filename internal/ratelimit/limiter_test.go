package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitSpacesCallsPerClass(t *testing.T) {
	l := New(Config{EdgarRPS: 20})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background(), ClassEdgarData))
	}
	// 20 rps with burst 1 forces roughly 50ms between calls.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestClassesAreIndependent(t *testing.T) {
	l := New(Config{EdgarRPS: 1, IRRPS: 1000})

	// Consume the edgar token so its bucket is empty.
	require.NoError(t, l.Wait(context.Background(), ClassEdgarData))

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), ClassIR))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestUnknownClassUsesFallback(t *testing.T) {
	l := New(Config{DefaultRPS: 1000})
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background(), "somewhere-else"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitHonorsCancellation(t *testing.T) {
	l := New(Config{EdgarRPS: 0.1})
	require.NoError(t, l.Wait(context.Background(), ClassEdgarArchives))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, ClassEdgarArchives)
	require.Error(t, err)
}

func TestZeroConfigNeverBlocks(t *testing.T) {
	l := New(Config{})
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), ClassIR))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
