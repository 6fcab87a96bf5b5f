package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
	"github.com/NordCoder/uptimewatch/internal/obs"
)

var errInvalidated = errors.New("target deleted or in maintenance")

type loop struct {
	o   *Orchestrator
	id  string
	h   *handle
	log *zap.Logger
}

func (l *loop) run(ctx context.Context, prev <-chan struct{}) {
	defer l.o.wg.Done()
	defer l.o.running.Add(-1)
	defer close(l.h.done)

	// prev is already cancelled; wait so two loops never overlap for one id.
	if prev != nil {
		<-prev
	}

	mActiveLoops.Inc()
	defer mActiveLoops.Dec()
	l.log.Debug("check loop started")

	var delay time.Duration
	for {
		if delay > 0 && !l.o.sleep(ctx, delay) {
			l.log.Debug("check loop cancelled")
			return
		}
		if ctx.Err() != nil {
			l.log.Debug("check loop cancelled")
			return
		}

		next, err := l.cycle(ctx)
		switch {
		case err == nil:
			delay = next
		case errors.Is(err, errInvalidated):
			l.o.registry.RemoveIf(l.id, l.h)
			l.log.Info("target no longer schedulable, loop stopped")
			return
		case ctx.Err() != nil:
			l.log.Debug("check loop cancelled")
			return
		default:
			mCycleErrors.Inc()
			l.log.Error("check cycle failed", zap.Error(err), zap.Duration("cooldown", l.o.cfg.ErrorCooldown))
			delay = l.o.cfg.ErrorCooldown
		}
	}
}

func (l *loop) cycle(ctx context.Context) (next time.Duration, err error) {
	start := time.Now()
	ctx, span := otel.Tracer("monitor").Start(ctx, "monitor.cycle")
	span.SetAttributes(attribute.String("target.id", l.id))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in check cycle: %v", r)
		}
		if err != nil && !errors.Is(err, errInvalidated) && ctx.Err() == nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		mCycleDur.Observe(time.Since(start).Seconds())
	}()

	t, err := l.o.store.LoadTarget(ctx, l.id)
	if errors.Is(err, target.ErrNotFound) {
		return 0, errInvalidated
	}
	if err != nil {
		return 0, fmt.Errorf("load target: %w", err)
	}
	if !t.Schedulable() {
		return 0, errInvalidated
	}

	prior := t.Status
	out := l.o.prober.Probe(ctx, t.Clone())
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := l.o.clock.Now()
	d := evaluate(t, out, now, l.o.cfg.FailureThreshold)

	var (
		opened *target.DowntimeEvent
		closed *target.DowntimeEvent
	)
	err = l.o.store.WithTx(ctx, func(txCtx context.Context) error {
		switch d.downtime {
		case downtimeOpen:
			ev, isNew, err := l.o.tracker.Open(txCtx, t.ID, now)
			if err != nil {
				return err
			}
			if isNew {
				opened = ev
			}
		case downtimeClose:
			ev, err := l.o.tracker.Close(txCtx, t.ID, now)
			if err != nil {
				return err
			}
			closed = ev
		}
		return l.o.store.SaveTarget(txCtx, t)
	})
	if err != nil {
		return 0, fmt.Errorf("persist cycle: %w", err)
	}

	mCycles.WithLabelValues(string(out.Status)).Inc()
	l.report(prior, out.Status, t, d, opened, closed)

	if ctx.Err() == nil {
		l.publish(ctx)
	}
	return d.delay, nil
}

func (l *loop) report(prior, probed target.Status, t *target.Target, d decision, opened, closed *target.DowntimeEvent) {
	if opened != nil {
		mDowntime.WithLabelValues("open").Inc()
		l.log.Warn("target went offline", zap.String("reason", t.LastStatusDescription))
	}
	if closed != nil && closed.EndTime != nil {
		mDowntime.WithLabelValues("close").Inc()
		l.log.Info("target back online",
			zap.Int64("downtime_id", closed.ID),
			zap.String("outage", strings.TrimSpace(humanize.RelTime(closed.StartTime, *closed.EndTime, "", ""))),
		)
	}
	if d.threshold {
		mThreshold.Inc()
		l.log.Info("failure threshold reached, backing off",
			zap.Duration("retry_in", d.delay),
		)
	}
	if prior != probed && opened == nil && closed == nil {
		l.log.Debug("status changed", zap.String("from", string(prior)), zap.String("to", string(probed)))
	}
}

// publish re-reads the committed target, group included, and hands it to the
// broadcaster. Failures are logged and never fail the cycle.
func (l *loop) publish(ctx context.Context) {
	log := obs.WithTrace(ctx, l.log)

	snap, err := l.o.store.LoadTarget(ctx, l.id)
	if err != nil {
		mPublishErrors.Inc()
		log.Warn("reload for broadcast", zap.Error(err))
		return
	}

	pctx, cancel := context.WithTimeout(ctx, l.o.cfg.PublishTimeout)
	defer cancel()
	if err := l.o.bc.Publish(pctx, target.TopicUpdated, *snap); err != nil {
		mPublishErrors.Inc()
		log.Warn("broadcast failed", zap.Error(err))
	}
}
