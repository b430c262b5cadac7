package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/observability"
	"github.com/xkilldash9x/specter/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type runFunc func(ctx context.Context, inv *schemas.Investigation) (schemas.StepOutput, error)

func (f runFunc) Run(ctx context.Context, inv *schemas.Investigation) (schemas.StepOutput, error) {
	return f(ctx, inv)
}

// countingRunners returns a runner per step that records how often it ran.
type countingRunners struct {
	mu        sync.Mutex
	counts    map[schemas.StepKey]int
	overrides map[schemas.StepKey]runFunc
}

func newRunners() *countingRunners {
	return &countingRunners{counts: map[schemas.StepKey]int{}, overrides: map[schemas.StepKey]runFunc{}}
}

func (c *countingRunners) Runner(step schemas.StepKey) (schemas.StepRunner, bool) {
	return runFunc(func(ctx context.Context, inv *schemas.Investigation) (schemas.StepOutput, error) {
		c.mu.Lock()
		c.counts[step]++
		fn := c.overrides[step]
		c.mu.Unlock()
		if fn != nil {
			return fn(ctx, inv)
		}
		return schemas.StepOutput{Message: string(step) + " ok"}, nil
	}), true
}

func (c *countingRunners) count(step schemas.StepKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[step]
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		LockTTL:     2 * time.Minute,
		StaleAfter:  3 * time.Minute,
		EventWindow: 500,
		StepTimeout: 10 * time.Second,
	}
}

func setup(t *testing.T, runners Runners) (*Scheduler, *store.Memory, *observability.Metrics) {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateInvestigation(context.Background(), &schemas.Investigation{
		ID:          "inv-1",
		TargetType:  schemas.TargetEmail,
		TargetValue: "alice@example.com",
		Flags:       schemas.DefaultProcessingFlags(),
	}))
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return New(mem, runners, testConfig(), metrics, zaptest.NewLogger(t)), mem, metrics
}

func events(t *testing.T, mem *store.Memory) []schemas.ProgressEvent {
	t.Helper()
	evs, err := mem.EventsAfter(context.Background(), "inv-1", 0, 0)
	require.NoError(t, err)
	return evs
}

func TestTickRunsEveryStepInOrder(t *testing.T) {
	ctx := context.Background()
	runners := newRunners()
	s, mem, metrics := setup(t, runners)

	for _, want := range schemas.StepOrder {
		res, err := s.Tick(ctx, "inv-1")
		require.NoError(t, err)
		assert.Equal(t, schemas.TickResult{Status: schemas.StatusProcessing, RanStep: want}, res)
	}

	res, err := s.Tick(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusCompleted, res.Status)
	assert.Empty(t, res.RanStep)

	res, err = s.Tick(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.TickResult{Status: schemas.StatusCompleted}, res, "terminal tick is a no-op")

	for _, step := range schemas.StepOrder {
		assert.Equal(t, 1, runners.count(step), "step %s", step)
	}

	evs := events(t, mem)
	require.NotEmpty(t, evs)
	assert.Equal(t, schemas.StepPipeline, evs[0].StepKey)
	assert.Equal(t, schemas.EventStarted, evs[0].Status)
	last := evs[len(evs)-1]
	assert.Equal(t, schemas.StepPipeline, last.StepKey)
	assert.Equal(t, schemas.EventCompleted, last.Status)
	assert.Equal(t, 100, last.Percent)

	inv, err := mem.GetInvestigation(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusCompleted, inv.Status)
	assert.Empty(t, inv.LockToken)

	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.TicksTotal.WithLabelValues(observability.TickRan)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TicksTotal.WithLabelValues(observability.TickCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TicksTotal.WithLabelValues(observability.TickNoop)))
}

func TestStartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := setup(t, newRunners())

	require.NoError(t, s.Start(ctx, "inv-1"))
	require.NoError(t, s.Start(ctx, "inv-1"))

	inv, err := mem.GetInvestigation(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusProcessing, inv.Status)

	// The first tick must not write a second started event.
	_, err = s.Tick(ctx, "inv-1")
	require.NoError(t, err)
	started := 0
	for _, ev := range events(t, mem) {
		if ev.StepKey == schemas.StepPipeline && ev.Status == schemas.EventStarted {
			started++
		}
	}
	assert.Equal(t, 1, started)

	assert.Error(t, s.Start(ctx, "missing"))
}

func TestConcurrentTicksRunOneStep(t *testing.T) {
	runners := newRunners()
	entered := make(chan struct{})
	release := make(chan struct{})
	runners.overrides[schemas.StepOSINT] = func(ctx context.Context, _ *schemas.Investigation) (schemas.StepOutput, error) {
		close(entered)
		<-release
		return schemas.StepOutput{}, nil
	}
	s, _, _ := setup(t, runners)

	const callers = 8
	results := make(chan schemas.TickResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Tick(context.Background(), "inv-1")
			assert.NoError(t, err)
			results <- res
		}()
	}

	<-entered
	for i := 0; i < callers-1; i++ {
		res := <-results
		assert.True(t, res.Skipped, "only the lock holder runs a step")
	}
	close(release)
	wg.Wait()
	close(results)

	res := <-results
	assert.Equal(t, schemas.StepOSINT, res.RanStep)
	assert.Equal(t, 1, runners.count(schemas.StepOSINT))
}

func TestLoadBearingFailureFailsInvestigation(t *testing.T) {
	ctx := context.Background()
	runners := newRunners()
	runners.overrides[schemas.StepOSINT] = func(context.Context, *schemas.Investigation) (schemas.StepOutput, error) {
		return schemas.StepOutput{}, errors.New("target rejected")
	}
	s, mem, _ := setup(t, runners)

	res, err := s.Tick(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.TickResult{Error: "target rejected", Step: schemas.StepOSINT}, res)

	inv, err := mem.GetInvestigation(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusFailed, inv.Status)
	assert.Equal(t, schemas.StepOSINT, inv.ErrorStep)
	assert.Equal(t, "target rejected", inv.ErrorMessage)

	res, err = s.Tick(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.TickResult{Status: schemas.StatusFailed}, res)
	assert.Equal(t, 1, runners.count(schemas.StepOSINT))
}

func TestBestEffortFailureContinues(t *testing.T) {
	ctx := context.Background()
	runners := newRunners()
	runners.overrides[schemas.StepSocialProfiles] = func(context.Context, *schemas.Investigation) (schemas.StepOutput, error) {
		return schemas.StepOutput{}, errors.New("platform down")
	}
	s, mem, _ := setup(t, runners)

	_, err := s.Tick(ctx, "inv-1")
	require.NoError(t, err)
	res, err := s.Tick(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.TickResult{Status: schemas.StatusProcessing, RanStep: schemas.StepSocialProfiles}, res)

	var failed *schemas.ProgressEvent
	for _, ev := range events(t, mem) {
		if ev.StepKey == schemas.StepSocialProfiles && ev.Status == schemas.EventFailed {
			ev := ev
			failed = &ev
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "failed (continuing): platform down", failed.Message)

	res, err = s.Tick(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.StepSocialPosts, res.RanStep)

	inv, _ := mem.GetInvestigation(ctx, "inv-1")
	assert.Equal(t, schemas.StatusProcessing, inv.Status)
}

func TestPanicAndTimeoutBecomeStepErrors(t *testing.T) {
	t.Run("panic", func(t *testing.T) {
		runners := newRunners()
		runners.overrides[schemas.StepOSINT] = func(context.Context, *schemas.Investigation) (schemas.StepOutput, error) {
			panic("nil map")
		}
		s, _, _ := setup(t, runners)
		res, err := s.Tick(context.Background(), "inv-1")
		require.NoError(t, err)
		assert.Equal(t, schemas.StepOSINT, res.Step)
		assert.Equal(t, "step panicked: nil map", res.Error)
	})

	t.Run("timeout", func(t *testing.T) {
		runners := newRunners()
		runners.overrides[schemas.StepOSINT] = func(ctx context.Context, _ *schemas.Investigation) (schemas.StepOutput, error) {
			<-ctx.Done()
			return schemas.StepOutput{}, ctx.Err()
		}
		s, _, _ := setup(t, runners)
		s.cfg.StepTimeout = 20 * time.Millisecond
		res, err := s.Tick(context.Background(), "inv-1")
		require.NoError(t, err)
		assert.Equal(t, schemas.StepOSINT, res.Step)
		assert.Contains(t, res.Error, context.DeadlineExceeded.Error())
	})
}

// lossyStore reports a lost lock on every persist.
type lossyStore struct {
	*store.Memory
}

func (l lossyStore) PersistStep(context.Context, string, string, schemas.StepOutput, schemas.ProgressEvent) error {
	return fmt.Errorf("persist: %w", store.ErrLockLost)
}

func TestLockLostIsSkipped(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateInvestigation(ctx, &schemas.Investigation{ID: "inv-1", TargetType: schemas.TargetUsername, TargetValue: "alice"}))
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	s := New(lossyStore{mem}, newRunners(), testConfig(), metrics, zaptest.NewLogger(t))

	res, err := s.Tick(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.TickResult{Skipped: true}, res)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TicksTotal.WithLabelValues(observability.TickLockLost)))

	for _, ev := range events(t, mem) {
		assert.False(t, ev.Status == schemas.EventCompleted && ev.StepKey == schemas.StepOSINT,
			"a tick that lost its lock must not write a completion")
	}
}

func TestStaleLockIsReclaimed(t *testing.T) {
	ctx := context.Background()
	runners := newRunners()
	s, mem, _ := setup(t, runners)
	base := time.Now().UTC()

	ok, err := mem.ClaimLock(ctx, "inv-1", "crashed-tick", base, time.Hour, 3*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	s.now = func() time.Time { return base.Add(time.Minute) }
	res, err := s.Tick(ctx, "inv-1")
	require.NoError(t, err)
	assert.True(t, res.Skipped, "a fresh lock blocks other ticks")

	s.now = func() time.Time { return base.Add(4 * time.Minute) }
	res, err = s.Tick(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.StepOSINT, res.RanStep)
}

func TestTickUsesFreshTokens(t *testing.T) {
	var n atomic.Int32
	s, mem, _ := setup(t, newRunners())
	s.newToken = func() string { return fmt.Sprintf("tok-%d", n.Add(1)) }

	for i := 0; i < 3; i++ {
		_, err := s.Tick(context.Background(), "inv-1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), n.Load())
	inv, _ := mem.GetInvestigation(context.Background(), "inv-1")
	assert.Empty(t, inv.LockToken, "lock is released after each step")

	msgs := []string{}
	for _, ev := range events(t, mem) {
		if ev.Status == schemas.EventCompleted {
			msgs = append(msgs, ev.Message)
		}
	}
	assert.Equal(t, "osint ok|social_profiles ok|social_posts ok", strings.Join(msgs, "|"))
}

func TestStartPercent(t *testing.T) {
	assert.Equal(t, 0, startPercent(schemas.StepOSINT))
	assert.Equal(t, schemas.StepOSINT.Percent(), startPercent(schemas.StepSocialProfiles))
	assert.Equal(t, schemas.StepGeo.Percent(), startPercent(schemas.StepReport))
}
