package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
	"github.com/NordCoder/uptimewatch/internal/probe"
)

var ErrClosed = errors.New("monitor: shut down")

type Config struct {
	FailureThreshold int
	ErrorCooldown    time.Duration
	PublishTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		ErrorCooldown:    5 * time.Second,
		PublishTimeout:   5 * time.Second,
	}
}

type Checker interface {
	Probe(ctx context.Context, t target.Target) probe.Outcome
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Sleeper waits for d and reports false when ctx ended first.
type Sleeper func(ctx context.Context, d time.Duration) bool

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type Option func(*Orchestrator)

func WithClock(c target.Clock) Option { return func(o *Orchestrator) { o.clock = c } }

func WithSleeper(s Sleeper) Option { return func(o *Orchestrator) { o.sleep = s } }

// Orchestrator owns one check loop per schedulable target.
type Orchestrator struct {
	store    target.Store
	prober   Checker
	bc       target.Broadcaster
	tracker  *DowntimeTracker
	registry *Registry
	clock    target.Clock
	sleep    Sleeper
	cfg      Config
	log      *zap.Logger

	mu      sync.Mutex
	base    context.Context
	closed  bool
	wg      sync.WaitGroup
	running atomic.Int64
}

func New(store target.Store, prober Checker, bc target.Broadcaster, cfg Config, log *zap.Logger, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ErrorCooldown <= 0 {
		cfg.ErrorCooldown = def.ErrorCooldown
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		store:    store,
		prober:   prober,
		bc:       bc,
		tracker:  NewDowntimeTracker(store),
		registry: NewRegistry(),
		clock:    systemClock{},
		sleep:    sleepCtx,
		cfg:      cfg,
		log:      log.With(zap.String("component", "monitor")),
		base:     context.Background(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Bootstrap schedules every non-deleted target that is not in maintenance.
// Loops are bound to ctx: cancelling it stops them all.
func (o *Orchestrator) Bootstrap(ctx context.Context) (int, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0, ErrClosed
	}
	o.base = ctx
	o.mu.Unlock()

	ts, err := o.store.LoadActiveTargets(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active targets: %w", err)
	}
	n := 0
	for _, t := range ts {
		if !t.Schedulable() {
			continue
		}
		if err := o.Upsert(t); err != nil {
			return n, err
		}
		n++
	}
	o.log.Info("bootstrap done", zap.Int("targets", n))
	return n, nil
}

// Upsert replaces any loop running for t.ID with a fresh one. The new loop
// does not start its first cycle before the old one has exited.
func (o *Orchestrator) Upsert(t target.Target) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(o.base)
	h, prev := o.registry.Replace(t.ID, cancel)
	o.wg.Add(1)
	o.running.Add(1)

	l := &loop{
		o:  o,
		id: t.ID,
		h:  h,
		log: o.log.With(
			zap.String("target_id", t.ID),
			zap.String("target", t.Name),
			zap.String("protocol", string(t.Protocol)),
		),
	}
	go l.run(ctx, prev)
	return nil
}

// Remove stops the loop for id. Removing an unknown id is a no-op.
func (o *Orchestrator) Remove(id string) bool {
	removed := o.registry.Remove(id)
	if removed {
		o.log.Info("target unscheduled", zap.String("target_id", id))
	}
	return removed
}

// ProbeOnce checks t without touching the registry or the store.
func (o *Orchestrator) ProbeOnce(ctx context.Context, t target.Target) probe.Outcome {
	return o.prober.Probe(ctx, t)
}

// Reschedule re-reads id from the store and starts, restarts or stops its loop
// accordingly. It reports whether a loop is running afterwards.
func (o *Orchestrator) Reschedule(ctx context.Context, id string) (bool, error) {
	t, err := o.store.LoadTarget(ctx, id)
	if errors.Is(err, target.ErrNotFound) {
		o.Remove(id)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load target: %w", err)
	}
	if !t.Schedulable() {
		o.Remove(id)
		return false, nil
	}
	if err := o.Upsert(*t); err != nil {
		return false, err
	}
	return true, nil
}

// Active returns the ids with a registered loop, sorted.
func (o *Orchestrator) Active() []string { return o.registry.IDs() }

// Running counts loop goroutines that have not exited yet, including
// superseded loops still winding down.
func (o *Orchestrator) Running() int { return int(o.running.Load()) }

// Run bootstraps and blocks until ctx is done, then waits for loops to exit.
func (o *Orchestrator) Run(ctx context.Context) error {
	if _, err := o.Bootstrap(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	wctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.Shutdown(wctx); err != nil {
		o.log.Warn("loops did not stop in time", zap.Error(err))
	}
	return ctx.Err()
}

// Shutdown cancels every loop and waits for them, bounded by ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	n := o.registry.Drain()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.log.Info("check loops stopped", zap.Int("cancelled", n))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
