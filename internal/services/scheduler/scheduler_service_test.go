package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/models"
)

// blockingOrchestrator holds every run until release is closed
type blockingOrchestrator struct {
	started chan struct{}
	release chan struct{}
	runs    atomic.Int32
	err     error
}

func newBlockingOrchestrator() *blockingOrchestrator {
	return &blockingOrchestrator{
		started: make(chan struct{}, 10),
		release: make(chan struct{}),
	}
}

func (b *blockingOrchestrator) RunAll(ctx context.Context) (*models.AggregateSnapshot, error) {
	b.runs.Add(1)
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if b.err != nil {
		return nil, b.err
	}
	return &models.AggregateSnapshot{Accounts: []models.UsageSnapshot{}}, nil
}

type panickingOrchestrator struct{}

func (panickingOrchestrator) RunAll(ctx context.Context) (*models.AggregateSnapshot, error) {
	panic("boom")
}

func newTestService(t *testing.T, orch *blockingOrchestrator, runOnStart bool) *Service {
	t.Helper()
	svc, err := NewService(orch, Config{Schedule: "*/10 * * * *", RunOnStart: runOnStart}, arbor.NewLogger())
	require.NoError(t, err)
	return svc
}

func waitStarted(t *testing.T, orch *blockingOrchestrator) {
	t.Helper()
	select {
	case <-orch.started:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
	}
}

func TestNextRefreshAfter(t *testing.T) {
	svc := newTestService(t, newBlockingOrchestrator(), false)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"mid interval", time.Date(2026, 3, 2, 10, 3, 0, 0, time.UTC), time.Date(2026, 3, 2, 10, 10, 0, 0, time.UTC)},
		{"on boundary", time.Date(2026, 3, 2, 10, 10, 0, 0, time.UTC), time.Date(2026, 3, 2, 10, 20, 0, 0, time.UTC)},
		{"seconds dropped", time.Date(2026, 3, 2, 10, 19, 59, 500, time.UTC), time.Date(2026, 3, 2, 10, 20, 0, 0, time.UTC)},
		{"hour rollover", time.Date(2026, 3, 2, 23, 55, 0, 0, time.UTC), time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.NextRefreshAfter(tt.now))
		})
	}
}

func TestNewService_InvalidSchedule(t *testing.T) {
	_, err := NewService(newBlockingOrchestrator(), Config{Schedule: "every ten minutes"}, arbor.NewLogger())
	require.Error(t, err)
}

func TestTriggerRefresh_SingleFlight(t *testing.T) {
	orch := newBlockingOrchestrator()
	svc := newTestService(t, orch, false)

	ok, msg := svc.TriggerRefresh()
	assert.True(t, ok)
	assert.Equal(t, MessageRefreshStarted, msg)
	waitStarted(t, orch)
	assert.True(t, svc.Status().IsScraping)

	ok, msg = svc.TriggerRefresh()
	assert.False(t, ok)
	assert.Equal(t, MessageAlreadyScraping, msg)

	close(orch.release)
	assert.Eventually(t, func() bool { return !svc.Status().IsScraping }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), orch.runs.Load(), "rejected trigger must not queue a run")
}

func TestTriggerRefresh_FlagClearedAfterFailure(t *testing.T) {
	orch := newBlockingOrchestrator()
	orch.err = errors.New("cache write failed")
	close(orch.release)
	svc := newTestService(t, orch, false)

	ok, _ := svc.TriggerRefresh()
	require.True(t, ok)
	waitStarted(t, orch)

	assert.Eventually(t, func() bool { return !svc.Status().IsScraping }, 2*time.Second, 10*time.Millisecond)
	ok, _ = svc.TriggerRefresh()
	assert.True(t, ok)
	waitStarted(t, orch)
}

func TestRun_PanicClearsFlag(t *testing.T) {
	svc, err := NewService(panickingOrchestrator{}, Config{Schedule: "*/10 * * * *"}, arbor.NewLogger())
	require.NoError(t, err)

	require.True(t, svc.tryBegin())
	svc.run("test")
	assert.False(t, svc.Status().IsScraping)
}

func TestStart_RunsImmediatelyAndSetsNextRefresh(t *testing.T) {
	orch := newBlockingOrchestrator()
	svc := newTestService(t, orch, true)
	fixed := time.Date(2026, 3, 2, 10, 3, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	require.NoError(t, svc.Start())
	waitStarted(t, orch)

	status := svc.Status()
	assert.True(t, status.IsScraping)
	require.NotNil(t, status.NextRefresh)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 10, 0, 0, time.UTC), *status.NextRefresh)
	assert.GreaterOrEqual(t, status.Uptime, 0.0)

	require.Error(t, svc.Start(), "second start is rejected")

	// Stop cancels the in-flight run instead of waiting for release
	require.NoError(t, svc.Stop())
	assert.False(t, svc.Status().IsScraping)
}

func TestStart_WithoutRunOnStart(t *testing.T) {
	orch := newBlockingOrchestrator()
	svc := newTestService(t, orch, false)

	require.NoError(t, svc.Start())
	defer svc.Stop()

	assert.False(t, svc.Status().IsScraping)
	assert.Equal(t, int32(0), orch.runs.Load())
	assert.NotNil(t, svc.Status().NextRefresh)
}

func TestStatus_BeforeStart(t *testing.T) {
	svc := newTestService(t, newBlockingOrchestrator(), false)
	status := svc.Status()
	assert.False(t, status.IsScraping)
	assert.Nil(t, status.NextRefresh)
}

func TestTick_SkipsWhileScraping(t *testing.T) {
	orch := newBlockingOrchestrator()
	svc := newTestService(t, orch, false)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 10, 10, 0, 0, time.UTC) }

	ok, _ := svc.TriggerRefresh()
	require.True(t, ok)
	waitStarted(t, orch)

	svc.tick()

	status := svc.Status()
	assert.Equal(t, int32(1), orch.runs.Load(), "tick must not start a second run")
	assert.True(t, status.IsScraping)
	require.NotNil(t, status.NextRefresh)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 20, 0, 0, time.UTC), *status.NextRefresh)

	close(orch.release)
	assert.Eventually(t, func() bool { return !svc.Status().IsScraping }, 2*time.Second, 10*time.Millisecond)
}

func TestTick_StartsRunWhenIdle(t *testing.T) {
	orch := newBlockingOrchestrator()
	svc := newTestService(t, orch, false)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 10, 3, 0, 0, time.UTC) }

	done := make(chan struct{})
	go func() {
		svc.tick()
		close(done)
	}()
	waitStarted(t, orch)

	status := svc.Status()
	assert.True(t, status.IsScraping)
	require.NotNil(t, status.NextRefresh)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 10, 0, 0, time.UTC), *status.NextRefresh)

	close(orch.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not return")
	}
	assert.Equal(t, int32(1), orch.runs.Load())
	assert.False(t, svc.Status().IsScraping)
}
