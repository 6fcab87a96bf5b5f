package obs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "monitor.log")
	l, err := NewLogger(LogConfig{
		Level: "debug",
		App:   "uptimewatch",
		Env:   "test",
		File:  &LogFile{Path: path, MaxSizeMB: 1},
	})
	require.NoError(t, err)

	l.Info("hello file", zap.String("target_id", "t-1"))
	_ = l.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "hello file")
	require.Contains(t, string(b), `"service":"uptimewatch"`)
	require.Contains(t, string(b), `"target_id":"t-1"`)
}

func TestNewLogger_BadLevelFallsBackToInfo(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "loud"})
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zapcore.InfoLevel))
	require.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestWithTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	WithTrace(context.Background(), l).Info("plain")
	require.Empty(t, logs.All()[0].ContextMap()["trace_id"])

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	WithTrace(ctx, l).Info("traced")
	fields := logs.All()[1].ContextMap()
	require.Equal(t, sc.TraceID().String(), fields["trace_id"])
	require.Equal(t, sc.SpanID().String(), fields["span_id"])

	require.Nil(t, WithTrace(ctx, nil))
}
