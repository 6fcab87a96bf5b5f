package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/uptimewatch/internal/broadcast"
	config "github.com/NordCoder/uptimewatch/internal/config/monitor"
	"github.com/NordCoder/uptimewatch/internal/repository/kafka"
)

type broadcastHandle struct {
	hub   *broadcast.Hub
	sinks broadcast.Fanout
	close func()
}

func initBroadcast(ctx context.Context, cfg *config.Config, l *zap.Logger) broadcastHandle {
	hub := broadcast.NewHub()
	h := broadcastHandle{hub: hub, sinks: broadcast.Fanout{hub}, close: func() {}}
	if !cfg.Kafka.Enable {
		return h
	}

	if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, kafka.TopicSpec{
		Name:              cfg.Kafka.Topic,
		NumPartitions:     cfg.Kafka.Partitions,
		ReplicationFactor: 1,
		MaxWait:           5 * time.Second,
	}, l); err != nil {
		l.Warn("status topic not ready; publishing anyway", zap.Error(err))
	}

	prod := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		WriteTimeout: cfg.Kafka.PublishTimeout,
	}).WithLogger(l)
	events := kafka.NewStatusEvents(prod, cfg.Kafka.PublishTimeout, l)

	h.sinks = append(h.sinks, events)
	h.close = func() { _ = events.Close() }
	l.Info("kafka status events enabled", zap.String("topic", cfg.Kafka.Topic))
	return h
}
