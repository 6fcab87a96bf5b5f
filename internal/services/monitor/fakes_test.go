package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
	"github.com/NordCoder/uptimewatch/internal/probe"
	"github.com/NordCoder/uptimewatch/internal/repository/memory"
)

var errDiskOnFire = errors.New("disk on fire")

// spyStore counts writes and can fail a number of SaveTarget calls.
type spyStore struct {
	*memory.Store

	mu        sync.Mutex
	saves     map[string]int
	failSaves int
}

func newSpyStore() *spyStore {
	return &spyStore{Store: memory.New(), saves: make(map[string]int)}
}

func (s *spyStore) SaveTarget(ctx context.Context, t *target.Target) error {
	s.mu.Lock()
	if s.failSaves > 0 {
		s.failSaves--
		s.mu.Unlock()
		return errDiskOnFire
	}
	s.saves[t.ID]++
	s.mu.Unlock()
	return s.Store.SaveTarget(ctx, t)
}

func (s *spyStore) saveCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[id]
}

func (s *spyStore) totalSaves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.saves {
		n += v
	}
	return n
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	snaps []target.Target
}

func (b *recordingBroadcaster) Publish(_ context.Context, topic string, t target.Target) error {
	if topic != target.TopicUpdated {
		return errors.New("unexpected topic " + topic)
	}
	b.mu.Lock()
	b.snaps = append(b.snaps, t)
	b.mu.Unlock()
	return nil
}

func (b *recordingBroadcaster) snapshots() []target.Target {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]target.Target(nil), b.snaps...)
}

// scriptedProber replays outcomes in order and then blocks until cancelled.
type scriptedProber struct {
	mu      sync.Mutex
	script  []probe.Outcome
	calls   int
	panicAt int
}

func script(statuses ...target.Status) *scriptedProber {
	p := &scriptedProber{panicAt: -1}
	for _, s := range statuses {
		p.script = append(p.script, probe.Outcome{Status: s, Description: string(s)})
	}
	return p
}

func (p *scriptedProber) Probe(ctx context.Context, _ target.Target) probe.Outcome {
	p.mu.Lock()
	call := p.calls
	p.calls++
	if call == p.panicAt {
		p.mu.Unlock()
		panic("prober exploded")
	}
	if len(p.script) > 0 {
		out := p.script[0]
		p.script = p.script[1:]
		p.mu.Unlock()
		return out
	}
	p.mu.Unlock()
	<-ctx.Done()
	return probe.Outcome{Status: target.StatusOffline, Description: "check cancelled"}
}

// funcProber answers every probe through fn.
type funcProber func(ctx context.Context, t target.Target) probe.Outcome

func (f funcProber) Probe(ctx context.Context, t target.Target) probe.Outcome { return f(ctx, t) }

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.now
	c.now = c.now.Add(c.step)
	return n
}

// recSleeper records requested delays and returns without waiting.
type recSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recSleeper) sleep(ctx context.Context, d time.Duration) bool {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err() == nil
}

func (r *recSleeper) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func shortSleep(ctx context.Context, _ time.Duration) bool {
	return sleepCtx(ctx, time.Millisecond)
}

func newTarget(t *testing.T, s *spyStore, tg target.Target) target.Target {
	t.Helper()
	if tg.Protocol == "" {
		tg.Protocol = target.ProtocolHTTP
	}
	created, err := s.CreateTarget(context.Background(), tg)
	require.NoError(t, err)
	return created
}

func newOrchestrator(t *testing.T, s target.Store, p Checker, bc target.Broadcaster, opts ...Option) *Orchestrator {
	t.Helper()
	o := New(s, p, bc, DefaultConfig(), zap.NewNop(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, o.Shutdown(ctx))
	})
	return o
}

func online(desc string) probe.Outcome {
	return probe.Outcome{Status: target.StatusOnline, Description: desc}
}

func offline(desc string) probe.Outcome {
	return probe.Outcome{Status: target.StatusOffline, Description: desc}
}

type inflightProber struct {
	cur atomic.Int32
	max atomic.Int32
}

func (p *inflightProber) Probe(ctx context.Context, _ target.Target) probe.Outcome {
	n := p.cur.Add(1)
	defer p.cur.Add(-1)
	for {
		m := p.max.Load()
		if n <= m || p.max.CompareAndSwap(m, n) {
			break
		}
	}
	select {
	case <-ctx.Done():
	case <-time.After(200 * time.Microsecond):
	}
	return online("200 OK")
}
