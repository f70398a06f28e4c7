package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertEmpty(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("unexpected event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	event := Event{RunID: "r1", WorkflowID: "wf-1", StepID: "s1", Type: "step_completed", Payload: map[string]any{"ok": true}}
	require.NoError(t, hub.Publish(ctx, event))

	got := receive(t, ch)
	assert.Equal(t, event, got)
}

func TestFilterByRunAndWorkflow(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	byRun, cancelRun, err := hub.Subscribe(ctx, Filter{RunID: "r1"})
	require.NoError(t, err)
	defer cancelRun()
	byWf, cancelWf, err := hub.Subscribe(ctx, Filter{WorkflowID: "wf-2"})
	require.NoError(t, err)
	defer cancelWf()

	require.NoError(t, hub.Publish(ctx, Event{RunID: "r1", WorkflowID: "wf-1", Type: "run_started"}))
	require.NoError(t, hub.Publish(ctx, Event{RunID: "r2", WorkflowID: "wf-2", Type: "run_started"}))

	assert.Equal(t, "r1", receive(t, byRun).RunID)
	assertEmpty(t, byRun)
	assert.Equal(t, "r2", receive(t, byWf).RunID)
	assertEmpty(t, byWf)
}

func TestFilterByType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{Types: []string{"run_completed", "run_failed"}})
	require.NoError(t, err)
	defer cancel()

	for _, typ := range []string{"run_started", "step_completed", "run_failed"} {
		require.NoError(t, hub.Publish(ctx, Event{RunID: "r", Type: typ}))
	}

	assert.Equal(t, "run_failed", receive(t, ch).Type)
	assertEmpty(t, ch)
}

func TestCancelClosesChannel(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, hub.Subscribers())

	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, hub.Publish(ctx, Event{RunID: "r"}))
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < defaultChannelBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, Event{RunID: "r"}))
	}
	assert.Len(t, ch, defaultChannelBuffer)
	assert.Equal(t, int64(10), hub.Dropped())
}

func TestWithBuffer(t *testing.T) {
	hub := NewMemoryHub(WithBuffer(2), WithBuffer(0))
	ctx := context.Background()
	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	for range 3 {
		require.NoError(t, hub.Publish(ctx, Event{RunID: "r"}))
	}
	assert.Equal(t, 2, cap(ch))
	assert.Equal(t, int64(1), hub.Dropped())
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, stop := context.WithCancel(context.Background())
	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)

	stop()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-ch
	assert.False(t, open)
	cancel()
}

func TestPublishCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, hub.Publish(ctx, Event{}), context.Canceled)
	_, _, err := hub.Subscribe(ctx, Filter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentPublish(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				_ = hub.Publish(ctx, Event{RunID: "r"})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ch, 32)
}

func TestNop(t *testing.T) {
	var hub EventHub = Nop{}
	require.NoError(t, hub.Publish(context.Background(), Event{}))
	ch, cancel, err := hub.Subscribe(context.Background(), Filter{})
	require.NoError(t, err)
	cancel()
	cancel()

	for range ch {
		t.Fatal("nop subscription delivered an event")
	}

	ctx, stop := context.WithCancel(context.Background())
	stop()
	_, _, err = hub.Subscribe(ctx, Filter{})
	assert.ErrorIs(t, err, context.Canceled)
}
