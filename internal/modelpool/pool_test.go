package modelpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBackends() []Backend {
	return []Backend{
		{ID: "b0", Priority: 0},
		{ID: "b1", Priority: 1},
		{ID: "b2", Priority: 2},
		{ID: "b3", Priority: 3},
	}
}

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p, err := New(cfg, testBackends())
	require.NoError(t, err)
	// deterministic "shuffle" for assignment assertions
	p.shuffle = func(n int, swap func(i, j int)) {}
	return p
}

func TestAssignDistinctBackends(t *testing.T) {
	p := newTestPool(t, Config{FailureThreshold: 3})
	asg := p.AssignForCycle("c1", []string{"a1", "a2", "a3"})

	seen := map[string]bool{}
	for _, agent := range []string{"a1", "a2", "a3"} {
		b, ok := asg.For(agent)
		require.True(t, ok)
		assert.False(t, seen[b.ID], "agent %s got duplicate backend %s", agent, b.ID)
		seen[b.ID] = true
	}
}

func TestAssignRoundRobinWhenAgentsOutnumberBackends(t *testing.T) {
	p := newTestPool(t, Config{FailureThreshold: 3})
	agents := []string{"a1", "a2", "a3", "a4", "a5", "a6"}
	asg := p.AssignForCycle("c1", agents)
	for _, agent := range agents {
		_, ok := asg.For(agent)
		assert.True(t, ok)
	}
	// 6 agents over 4 backends: first two backends serve twice
	counts := map[string]int{}
	for _, b := range asg.Backends {
		counts[b.ID]++
	}
	assert.Len(t, counts, 4)
}

func TestAssignPinnedMode(t *testing.T) {
	p := newTestPool(t, Config{FailureThreshold: 3, Pinned: "b2"})
	asg := p.AssignForCycle("c1", []string{"a1", "a2"})
	for _, agent := range []string{"a1", "a2"} {
		b, _ := asg.For(agent)
		assert.Equal(t, "b2", b.ID)
	}
}

func TestFallbackScenario(t *testing.T) {
	// spec scenario: 4 backends [0..3], priority0 fails, priority1 eligible
	p := newTestPool(t, Config{FailureThreshold: 3})
	fb, ok := p.FallbackFor("b0")
	require.True(t, ok)
	assert.Equal(t, "b1", fb.ID)

	st := p.Snapshot()
	assert.Equal(t, 1, st.Backends[0].Failures)
	assert.Equal(t, 0, st.Backends[1].Failures)
}

func TestFallbackNoAlternativeDoesNotIncrement(t *testing.T) {
	p, err := New(Config{FailureThreshold: 1}, []Backend{{ID: "only", Priority: 0}})
	require.NoError(t, err)
	_, ok := p.FallbackFor("only")
	assert.False(t, ok)
	assert.Equal(t, 0, p.Snapshot().Backends[0].Failures)
}

func TestFallbackSkipsExhaustedBackends(t *testing.T) {
	p := newTestPool(t, Config{FailureThreshold: 1})
	// exhaust b1
	fb, ok := p.FallbackFor("b1")
	require.True(t, ok)
	assert.Equal(t, "b0", fb.ID)
	fb, ok = p.FallbackFor("b0")
	require.True(t, ok)
	assert.Equal(t, "b2", fb.ID, "b1 is over threshold, next by priority is b2")
}

func TestEligibilityResetWhenStarved(t *testing.T) {
	p := newTestPool(t, Config{FailureThreshold: 1})
	// knock out three backends
	for _, id := range []string{"b0", "b1", "b2"} {
		_, ok := p.FallbackFor(id)
		require.True(t, ok)
	}
	asg := p.AssignForCycle("c1", []string{"a1", "a2", "a3"})
	assert.Len(t, asg.Backends, 3)
	// counters were reset so everything is eligible again
	for _, b := range p.Snapshot().Backends {
		assert.True(t, b.Eligible)
	}
}

func TestResetIdempotent(t *testing.T) {
	p := newTestPool(t, Config{FailureThreshold: 2})
	_, _ = p.FallbackFor("b0")

	require.NoError(t, p.ResetFailures(false))
	first := p.Snapshot()
	require.NoError(t, p.ResetFailures(false))
	second := p.Snapshot()
	assert.Equal(t, first.Backends, second.Backends)
}

func TestResetGatedByInFlight(t *testing.T) {
	p := newTestPool(t, Config{FailureThreshold: 2})
	done := p.BeginOperation()
	assert.Error(t, p.ResetFailures(false))
	assert.NoError(t, p.ResetFailures(true))
	done()
	done() // idempotent
	assert.NoError(t, p.ResetFailures(false))
}

func TestBoundedFailureTracking(t *testing.T) {
	p := newTestPool(t, Config{FailureThreshold: 100, MaxTracked: 2})
	_, _ = p.FallbackFor("ghost-1")
	_, _ = p.FallbackFor("ghost-2")
	_, _ = p.FallbackFor("ghost-3")
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.LessOrEqual(t, len(p.failures), 2)
	_, oldestGone := p.failures["ghost-1"]
	assert.False(t, oldestGone)
}

func TestAutoReset(t *testing.T) {
	p := newTestPool(t, Config{FailureThreshold: 2, ResetInterval: time.Millisecond})
	_, _ = p.FallbackFor("b0")
	time.Sleep(5 * time.Millisecond)
	_ = p.AssignForCycle("c1", []string{"a1"})
	assert.Equal(t, 0, p.Snapshot().Backends[0].Failures)
}
