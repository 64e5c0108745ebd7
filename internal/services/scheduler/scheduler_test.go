package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/juju/clock/testclock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shortWait = 2 * time.Second

type call struct {
	kind  models.RunKind
	opts  models.RunOptions
	at    time.Time
	state State
}

// mockRunner reports every call on calls.
type mockRunner struct {
	calls     chan call
	clk       *testclock.Clock
	sched     *Scheduler
	runFunc   func(ctx context.Context, n int) error
	pruneFunc func(ctx context.Context) error
	runs      int
}

func newMockRunner(clk *testclock.Clock) *mockRunner {
	return &mockRunner{calls: make(chan call, 16), clk: clk}
}

func (m *mockRunner) Run(ctx context.Context, opts models.RunOptions) error {
	m.runs++
	m.calls <- call{kind: models.RunBackup, opts: opts, at: m.clk.Now(), state: m.sched.State()}
	if m.runFunc != nil {
		return m.runFunc(ctx, m.runs)
	}
	return nil
}

func (m *mockRunner) Prune(ctx context.Context) error {
	m.calls <- call{kind: models.RunPrune, at: m.clk.Now(), state: m.sched.State()}
	if m.pruneFunc != nil {
		return m.pruneFunc(ctx)
	}
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func mustSet(t *testing.T, exprs ...string) *ScheduleSet {
	t.Helper()
	set, err := NewScheduleSet(exprs)
	require.NoError(t, err)
	return set
}

func start(t *testing.T, s *Scheduler) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func nextCall(t *testing.T, m *mockRunner) call {
	t.Helper()
	select {
	case c := <-m.calls:
		return c
	case <-time.After(shortWait):
		t.Fatal("timed out waiting for a run")
		return call{}
	}
}

func assertNoCall(t *testing.T, m *mockRunner) {
	t.Helper()
	select {
	case c := <-m.calls:
		t.Fatalf("unexpected %s run at %s", c.kind, c.at)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNext_SelectsPruneOnlyWhenStrictlyEarlier(t *testing.T) {
	tests := []struct {
		name     string
		backup   []string
		prune    []string
		expected Trigger
	}{
		{
			name:     "no prune schedule",
			backup:   []string{"0 1 * * *"},
			expected: Trigger{Kind: models.RunBackup, At: t0.Add(time.Hour)},
		},
		{
			name:     "prune earlier",
			backup:   []string{"0 2 * * *"},
			prune:    []string{"0 1 * * *"},
			expected: Trigger{Kind: models.RunPrune, At: t0.Add(time.Hour)},
		},
		{
			name:     "prune later",
			backup:   []string{"0 1 * * *"},
			prune:    []string{"0 2 * * *"},
			expected: Trigger{Kind: models.RunBackup, At: t0.Add(time.Hour)},
		},
		{
			name:     "same instant runs backup",
			backup:   []string{"0 1 * * *"},
			prune:    []string{"0 1 * * *"},
			expected: Trigger{Kind: models.RunBackup, At: t0.Add(time.Hour)},
		},
		{
			name:     "earliest of several backups wins over prune",
			backup:   []string{"0 5 * * *", "30 0 * * *"},
			prune:    []string{"0 1 * * *"},
			expected: Trigger{Kind: models.RunBackup, At: t0.Add(30 * time.Minute)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var prune *ScheduleSet
			if tt.prune != nil {
				prune = mustSet(t, tt.prune...)
			}
			s := NewWithClock(testLogger(), nil, mustSet(t, tt.backup...), prune, testclock.NewClock(t0))

			got := s.Next(t0)
			assert.Equal(t, tt.expected.Kind, got.Kind)
			assert.True(t, tt.expected.At.Equal(got.At), "expected %s, got %s", tt.expected.At, got.At)
		})
	}
}

func TestRun_PruneThenBackup(t *testing.T) {
	clk := testclock.NewClock(t0)
	runner := newMockRunner(clk)
	s := NewWithClock(testLogger(), runner, mustSet(t, "0 * * * *"), mustSet(t, "30 0 * * *"), clk)
	runner.sched = s
	start(t, s)

	// 00:30 prune fires before the 01:00 backup.
	require.NoError(t, clk.WaitAdvance(30*time.Minute, shortWait, 1))
	c := nextCall(t, runner)
	assert.Equal(t, models.RunPrune, c.kind)
	assert.Equal(t, StateRunningPrune, c.state)
	assert.True(t, c.at.Equal(t0.Add(30*time.Minute)))

	require.NoError(t, clk.WaitAdvance(30*time.Minute, shortWait, 1))
	c = nextCall(t, runner)
	assert.Equal(t, models.RunBackup, c.kind)
	assert.Equal(t, StateRunningBackup, c.state)
	assert.False(t, c.opts.Prune)
	assert.True(t, c.at.Equal(t0.Add(time.Hour)))
}

func TestRun_BackupPrunesWithoutPruneSchedule(t *testing.T) {
	clk := testclock.NewClock(t0)
	runner := newMockRunner(clk)
	s := NewWithClock(testLogger(), runner, mustSet(t, "0 * * * *"), nil, clk)
	runner.sched = s
	start(t, s)

	require.NoError(t, clk.WaitAdvance(time.Hour, shortWait, 1))
	c := nextCall(t, runner)
	assert.Equal(t, models.RunBackup, c.kind)
	assert.True(t, c.opts.Prune)
}

func TestRun_PollsUntilTriggerTime(t *testing.T) {
	clk := testclock.NewClock(t0)
	runner := newMockRunner(clk)
	s := NewWithClock(testLogger(), runner, mustSet(t, "0 * * * *"), nil, clk)
	runner.sched = s
	start(t, s)

	for i := 0; i < 5; i++ {
		require.NoError(t, clk.WaitAdvance(PollInterval, shortWait, 1))
	}
	assertNoCall(t, runner)
	assert.Equal(t, StateWaiting, s.State())

	require.NoError(t, clk.WaitAdvance(time.Hour, shortWait, 1))
	c := nextCall(t, runner)
	assert.Equal(t, models.RunBackup, c.kind)
}

func TestRun_FailuresDoNotStopTheLoop(t *testing.T) {
	clk := testclock.NewClock(t0)
	runner := newMockRunner(clk)
	runner.runFunc = func(ctx context.Context, n int) error {
		switch n {
		case 1:
			return &models.StageError{Stage: models.StageBackup, Err: errors.New("repository locked")}
		case 2:
			panic("unexpected nil pointer")
		}
		return nil
	}
	s := NewWithClock(testLogger(), runner, mustSet(t, "0 * * * *"), nil, clk)
	runner.sched = s
	start(t, s)

	for i := 1; i <= 3; i++ {
		require.NoError(t, clk.WaitAdvance(time.Hour, shortWait, 1))
		c := nextCall(t, runner)
		assert.True(t, c.at.Equal(t0.Add(time.Duration(i)*time.Hour)), "run %d at %s", i, c.at)
	}
}

func TestRun_ElapsedTriggersAreCoalesced(t *testing.T) {
	clk := testclock.NewClock(t0)
	runner := newMockRunner(clk)
	runner.runFunc = func(ctx context.Context, n int) error {
		if n == 1 {
			// a long run skips the 02:00 and 03:00 triggers
			clk.Advance(150 * time.Minute)
		}
		return nil
	}
	s := NewWithClock(testLogger(), runner, mustSet(t, "0 * * * *"), nil, clk)
	runner.sched = s
	start(t, s)

	require.NoError(t, clk.WaitAdvance(time.Hour, shortWait, 1))
	first := nextCall(t, runner)
	assert.True(t, first.at.Equal(t0.Add(time.Hour)))

	require.NoError(t, clk.WaitAdvance(30*time.Minute, shortWait, 1))
	second := nextCall(t, runner)
	assert.True(t, second.at.Equal(t0.Add(4*time.Hour)), "got %s", second.at)
	assertNoCall(t, runner)
}

func TestRun_StopsOnCancelWhileWaiting(t *testing.T) {
	clk := testclock.NewClock(t0)
	runner := newMockRunner(clk)
	s := NewWithClock(testLogger(), runner, mustSet(t, "0 * * * *"), nil, clk)
	runner.sched = s
	cancel, done := start(t, s)

	require.NoError(t, clk.WaitAdvance(0, shortWait, 1))
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shortWait):
		t.Fatal("scheduler did not stop")
	}
	assertNoCall(t, runner)
}

func TestRun_StopsAfterRunWhenCancelled(t *testing.T) {
	clk := testclock.NewClock(t0)
	runner := newMockRunner(clk)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.runFunc = func(context.Context, int) error {
		cancel()
		return nil
	}
	s := NewWithClock(testLogger(), runner, mustSet(t, "0 * * * *"), nil, clk)
	runner.sched = s

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, clk.WaitAdvance(time.Hour, shortWait, 1))
	nextCall(t, runner)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shortWait):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 1, runner.runs)
}
