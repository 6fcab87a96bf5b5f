package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
	"github.com/NordCoder/uptimewatch/internal/obs/retry"
)

const DefaultStatusTopic = "uptimewatch.target.updated"

// StatusEvents publishes target snapshots to Kafka, keyed by target id.
type StatusEvents struct {
	p       *Producer
	timeout time.Duration
	log     *zap.Logger
}

func NewStatusEvents(p *Producer, timeout time.Duration, log *zap.Logger) *StatusEvents {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StatusEvents{p: p, timeout: timeout, log: log.With(zap.String("component", "kafka.status_events"))}
}

func (s *StatusEvents) Publish(ctx context.Context, topic string, snapshot target.Target) error {
	if topic != target.TopicUpdated {
		return fmt.Errorf("kafka: unsupported topic %q", topic)
	}
	msg, err := EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := []byte(snapshot.ID)
	return retry.Do(ctx, func() error {
		return s.p.PublishProto(ctx, key, msg)
	}, retry.BroadcastPolicy(s.log.With(zap.String("target_id", snapshot.ID))))
}

func (s *StatusEvents) Close() error { return s.p.Close() }

// EncodeSnapshot turns a target into a protobuf Struct using the target's
// JSON field names. Credentials never leave the process.
func EncodeSnapshot(t target.Target) (*structpb.Struct, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(b, st); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return st, nil
}

func DecodeSnapshot(st *structpb.Struct) (target.Target, error) {
	var t target.Target
	b, err := protojson.Marshal(st)
	if err != nil {
		return t, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := json.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("decode snapshot: %w", err)
	}
	return t, nil
}
