package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
	"github.com/NordCoder/uptimewatch/internal/probe"
)

func TestRegistry_ReplaceCancelsPrevious(t *testing.T) {
	r := NewRegistry()

	ctx1, cancel1 := context.WithCancel(context.Background())
	h1, prev := r.Replace("a", cancel1)
	require.Nil(t, prev)

	_, cancel2 := context.WithCancel(context.Background())
	h2, prev := r.Replace("a", cancel2)
	require.NotNil(t, prev)
	require.Error(t, ctx1.Err())
	require.NotEqual(t, h1.gen, h2.gen)
	require.Equal(t, 1, r.Len())

	close(h1.done)
	select {
	case <-prev:
	default:
		t.Fatal("prev done channel should be the superseded handle's")
	}
}

func TestRegistry_RemoveIfKeepsReplacement(t *testing.T) {
	r := NewRegistry()
	_, c1 := context.WithCancel(context.Background())
	h1, _ := r.Replace("a", c1)

	ctx2, c2 := context.WithCancel(context.Background())
	h2, _ := r.Replace("a", c2)

	require.False(t, r.RemoveIf("a", h1))
	require.True(t, r.Has("a"))
	require.NoError(t, ctx2.Err())

	require.True(t, r.RemoveIf("a", h2))
	require.False(t, r.Has("a"))
	require.Error(t, ctx2.Err())
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	r.Replace("a", cancel)

	require.True(t, r.Remove("a"))
	require.Error(t, ctx.Err())
	require.False(t, r.Remove("a"))
	require.False(t, r.Remove("never"))
}

func TestRegistry_ReplaceAfterRemoveWaitsForRemovedLoop(t *testing.T) {
	r := NewRegistry()
	_, c1 := context.WithCancel(context.Background())
	h1, _ := r.Replace("a", c1)

	require.True(t, r.Remove("a"))
	require.True(t, r.Draining("a"))

	_, c2 := context.WithCancel(context.Background())
	h2, prev := r.Replace("a", c2)
	require.NotNil(t, prev)
	require.False(t, r.Draining("a"))

	close(h1.done)
	select {
	case <-prev:
	default:
		t.Fatal("prev should be the removed handle's done channel")
	}

	require.True(t, r.RemoveIf("a", h2))
	require.True(t, r.Draining("a"))
	close(h2.done)
	require.Eventually(t, func() bool { return !r.Draining("a") }, time.Second, time.Millisecond)

	_, c3 := context.WithCancel(context.Background())
	_, prev = r.Replace("a", c3)
	require.Nil(t, prev)
}

func TestRegistry_DrainKeepsLoopsUntilExit(t *testing.T) {
	r := NewRegistry()
	_, cancel := context.WithCancel(context.Background())
	h, _ := r.Replace("a", cancel)

	require.Equal(t, 1, r.Drain())
	require.True(t, r.Draining("a"))

	_, c2 := context.WithCancel(context.Background())
	_, prev := r.Replace("a", c2)
	require.NotNil(t, prev)
	close(h.done)
	<-prev
}

func TestRegistry_DrainAndIDs(t *testing.T) {
	r := NewRegistry()
	var ctxs []context.Context
	for _, id := range []string{"c", "a", "b"} {
		ctx, cancel := context.WithCancel(context.Background())
		ctxs = append(ctxs, ctx)
		r.Replace(id, cancel)
	}
	require.Equal(t, []string{"a", "b", "c"}, r.IDs())
	require.Equal(t, 3, r.Drain())
	require.Zero(t, r.Len())
	for _, ctx := range ctxs {
		require.Error(t, ctx.Err())
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("t%d", i%5)
			_, cancel := context.WithCancel(context.Background())
			h, _ := r.Replace(id, cancel)
			if i%3 == 0 {
				r.RemoveIf(id, h)
			}
			_ = r.IDs()
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, r.Len(), 5)
}

func TestOrchestrator_SingleWriterUnderConcurrentUpserts(t *testing.T) {
	s := newSpyStore()
	tg := newTarget(t, s, target.Target{ID: "hot", RefreshIntervalMS: 1})
	p := &inflightProber{}
	o := newOrchestrator(t, s, p, &recordingBroadcaster{}, WithSleeper(shortSleep))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 3 {
				o.Remove(tg.ID)
				return
			}
			assert.NoError(t, o.Upsert(tg))
		}(i)
	}
	wg.Wait()
	require.NoError(t, o.Upsert(tg))

	require.Eventually(t, func() bool { return o.Running() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"hot"}, o.Active())
	require.Eventually(t, func() bool { return s.saveCount(tg.ID) > 0 }, 5*time.Second, 5*time.Millisecond)
	require.EqualValues(t, 1, p.max.Load())
}

// heldStore blocks the first SaveTarget until released.
type heldStore struct {
	*spyStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *heldStore) SaveTarget(ctx context.Context, t *target.Target) error {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.spyStore.SaveTarget(ctx, t)
}

func TestOrchestrator_UpsertAfterRemoveWaitsForPersistingLoop(t *testing.T) {
	spy := newSpyStore()
	tg := newTarget(t, spy, target.Target{ID: "slow", RefreshIntervalMS: 1})
	s := &heldStore{spyStore: spy, entered: make(chan struct{}), release: make(chan struct{})}

	var probes atomic.Int32
	p := funcProber(func(context.Context, target.Target) probe.Outcome {
		probes.Add(1)
		return online("200 OK")
	})
	o := newOrchestrator(t, s, p, &recordingBroadcaster{}, WithSleeper(shortSleep))
	var released sync.Once
	unblock := func() { released.Do(func() { close(s.release) }) }
	t.Cleanup(unblock)

	require.NoError(t, o.Upsert(tg))
	select {
	case <-s.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle never reached SaveTarget")
	}

	require.True(t, o.Remove(tg.ID))
	require.NoError(t, o.Upsert(tg))

	time.Sleep(30 * time.Millisecond)
	require.EqualValues(t, 1, probes.Load())

	unblock()
	require.Eventually(t, func() bool { return probes.Load() >= 2 }, 5*time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool { return o.Running() == 1 }, 5*time.Second, 2*time.Millisecond)
	require.Equal(t, []string{tg.ID}, o.Active())
}
