package router

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/acphub/internal/bus"
	"github.com/steveyegge/acphub/internal/event"
)

type recordingAdapter struct {
	id   string
	sent []string
}

func (a *recordingAdapter) SendTask(ctx context.Context, task string) error {
	a.sent = append(a.sent, task)
	return nil
}

func newFixture(t *testing.T, mode Mode, ids ...string) (*Router, map[string]*recordingAdapter) {
	t.Helper()
	adapters := make(map[string]*recordingAdapter, len(ids))
	for _, id := range ids {
		adapters[id] = &recordingAdapter{id: id}
	}
	r, err := New(bus.New(), mode, ids, func(id string) TaskSender { return adapters[id] })
	require.NoError(t, err)
	return r, adapters
}

func TestBroadcastReachesEveryAgentOnce(t *testing.T) {
	r, adapters := newFixture(t, ModeBroadcast, "a1", "a2")
	require.NoError(t, r.SendTask(context.Background(), "t", ""))

	assert.Equal(t, []string{"t"}, adapters["a1"].sent)
	assert.Equal(t, []string{"t"}, adapters["a2"].sent)
}

func TestSingleDefaultsToFirstAgent(t *testing.T) {
	r, adapters := newFixture(t, ModeSingle, "a1", "a2")
	require.NoError(t, r.SendTask(context.Background(), "t", ""))

	assert.Equal(t, []string{"t"}, adapters["a1"].sent)
	assert.Empty(t, adapters["a2"].sent)
}

func TestSingleHonorsExplicitAgentID(t *testing.T) {
	r, adapters := newFixture(t, ModeSingle, "a1", "a2")
	require.NoError(t, r.SendTask(context.Background(), "t", "a2"))

	assert.Empty(t, adapters["a1"].sent)
	assert.Equal(t, []string{"t"}, adapters["a2"].sent)
}

// TestRoundRobinDistributionFormula checks spec.md §8's invariant: after k
// calls, agent i has received ceil((k-i)/N) calls for 0 <= i < N.
func TestRoundRobinDistributionFormula(t *testing.T) {
	const n = 3
	ids := []string{"a0", "a1", "a2"}
	r, adapters := newFixture(t, ModeRoundRobin, ids...)

	const k = 10
	for i := 0; i < k; i++ {
		require.NoError(t, r.SendTask(context.Background(), fmt.Sprintf("t%d", i), ""))
	}

	for i := 0; i < n; i++ {
		expected := ceilDiv(k-i, n)
		assert.Equal(t, expected, len(adapters[ids[i]].sent), "agent %d", i)
	}
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func TestModeratorSendsTaskOnlyToFirstAgent(t *testing.T) {
	r, adapters := newFixture(t, ModeModerator, "a1", "a2")
	require.NoError(t, r.SendTask(context.Background(), "T", ""))

	assert.Equal(t, []string{"T"}, adapters["a1"].sent)
	assert.Empty(t, adapters["a2"].sent)
}

func TestForwardOutputReachesOthersNotSender(t *testing.T) {
	r, adapters := newFixture(t, ModeModerator, "a1", "a2")
	require.NoError(t, r.SendTask(context.Background(), "T", ""))

	r.ForwardOutput(context.Background(), "a1", "ctx")

	require.Len(t, adapters["a2"].sent, 1)
	assert.Contains(t, adapters["a2"].sent[0], "[from a1]")
	assert.Contains(t, adapters["a2"].sent[0], "ctx")
	assert.Equal(t, []string{"T"}, adapters["a1"].sent) // a1 not called again
}

func TestForwardOutputIsNoOpOutsideModeratorMode(t *testing.T) {
	r, adapters := newFixture(t, ModeBroadcast, "a1", "a2")
	r.ForwardOutput(context.Background(), "a1", "ctx")
	assert.Empty(t, adapters["a2"].sent)
}

func TestForwardOutputDropsBeyondMaxForwards(t *testing.T) {
	r, adapters := newFixture(t, ModeModerator, "a1", "a2")

	for i := 0; i < maxForwards+5; i++ {
		r.ForwardOutput(context.Background(), "a1", "x")
	}

	assert.Len(t, adapters["a2"].sent, maxForwards)
}

func TestForwardOutputPublishesRouterForwardedEvent(t *testing.T) {
	b := bus.New()
	var captured event.Event
	b.Subscribe(func(e event.Event) { captured = e }, string(event.KindRouterForward))

	adapters := map[string]*recordingAdapter{"a1": {id: "a1"}, "a2": {id: "a2"}}
	r, err := New(b, ModeModerator, []string{"a1", "a2"}, func(id string) TaskSender { return adapters[id] })
	require.NoError(t, err)

	r.ForwardOutput(context.Background(), "a1", "hello")

	assert.Equal(t, "a1", captured.Payload["from"])
	assert.Equal(t, "a2", captured.Payload["to"])
}
