package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPacedLauncher_ZeroIntervalIsPassThrough(t *testing.T) {
	inner := &mockLauncher{page: &mockPage{urls: []string{usageURL}}}
	assert.Same(t, inner, NewPacedLauncher(inner, 0))
}

func TestPacedLauncher_SpacesLaunches(t *testing.T) {
	inner := &mockLauncher{page: &mockPage{urls: []string{usageURL}}}
	launcher := NewPacedLauncher(inner, 50*time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := launcher.Launch(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 3, inner.launches)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestPacedLauncher_ContextCancelled(t *testing.T) {
	inner := &mockLauncher{page: &mockPage{urls: []string{usageURL}}}
	launcher := NewPacedLauncher(inner, time.Hour)

	_, err := launcher.Launch(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = launcher.Launch(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, inner.launches)
}
