package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
)

// Outcome of a single reachability check. Strategies never return errors:
// every failure is an Offline outcome with a readable description.
type Outcome struct {
	Status      target.Status `json:"status"`
	Description string        `json:"description"`
	Latency     time.Duration `json:"latency"`
}

func (o Outcome) Online() bool { return o.Status == target.StatusOnline }

func online(desc string) Outcome  { return Outcome{Status: target.StatusOnline, Description: desc} }
func offline(desc string) Outcome { return Outcome{Status: target.StatusOffline, Description: desc} }

func offlinef(format string, args ...any) Outcome {
	return offline(fmt.Sprintf(format, args...))
}

type Strategy interface {
	Probe(ctx context.Context, t target.Target) Outcome
}

type StrategyFunc func(ctx context.Context, t target.Target) Outcome

func (f StrategyFunc) Probe(ctx context.Context, t target.Target) Outcome { return f(ctx, t) }

type Config struct {
	HTTPTimeout     time.Duration
	TCPTimeout      time.Duration
	RedisTimeout    time.Duration
	UserAgent       string
	VerifyTLS       bool
	FollowRedirects bool
	MaxRedirects    int
}

func DefaultConfig() Config {
	return Config{
		HTTPTimeout:     15 * time.Second,
		TCPTimeout:      10 * time.Second,
		RedisTimeout:    10 * time.Second,
		UserAgent:       "uptimewatch/1.0",
		VerifyTLS:       true,
		FollowRedirects: true,
		MaxRedirects:    10,
	}
}

var (
	probesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probe_checks_total",
		Help: "Reachability checks by protocol and resulting status.",
	}, []string{"protocol", "status"})
	probeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "probe_latency_seconds",
		Help:    "Reachability check latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"protocol"})
	probePanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "probe_panics_total",
		Help: "Strategies that panicked and were recovered.",
	})
)

// Prober dispatches to the strategy registered for a target's protocol.
type Prober struct {
	strategies map[target.Protocol]Strategy
	log        *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Prober {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Prober{
		strategies: make(map[target.Protocol]Strategy, 3),
		log:        log.With(zap.String("component", "probe")),
	}
	p.Register(target.ProtocolHTTP, NewHTTP(cfg))
	p.Register(target.ProtocolTCP, NewTCP(cfg.TCPTimeout))
	p.Register(target.ProtocolRedis, NewRedis(cfg.RedisTimeout))
	return p
}

// Register replaces the strategy for proto. Not safe to call while probing.
func (p *Prober) Register(proto target.Protocol, s Strategy) {
	p.strategies[proto] = s
}

func (p *Prober) Probe(ctx context.Context, t target.Target) (out Outcome) {
	ctx, span := otel.Tracer("probe").Start(ctx, "probe."+string(t.Protocol))
	span.SetAttributes(
		attribute.String("target.id", t.ID),
		attribute.String("target.protocol", string(t.Protocol)),
	)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			probePanics.Inc()
			p.log.Error("strategy panicked", zap.String("target_id", t.ID), zap.Any("panic", r))
			out = offlinef("check failed: %v", r)
		}
		out.Latency = time.Since(start)
		probesTotal.WithLabelValues(string(t.Protocol), string(out.Status)).Inc()
		probeLatency.WithLabelValues(string(t.Protocol)).Observe(out.Latency.Seconds())
		span.SetAttributes(attribute.String("probe.status", string(out.Status)))
		if !out.Online() {
			span.SetStatus(codes.Error, out.Description)
		}
		span.End()
	}()

	s, ok := p.strategies[t.Protocol]
	if !ok {
		return offlinef("unsupported protocol %q", t.Protocol)
	}
	return s.Probe(ctx, t)
}

func cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}
