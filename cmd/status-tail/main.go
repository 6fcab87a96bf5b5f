// status-tail follows the target status topic and logs every snapshot.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	config "github.com/NordCoder/uptimewatch/internal/config/monitor"
	"github.com/NordCoder/uptimewatch/internal/obs"
	"github.com/NordCoder/uptimewatch/internal/repository/kafka"
)

func main() {
	root, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("dotenv: %v", err)
	}
	cfg, err := config.Load(os.Getenv("UPTIMEWATCH_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	otelCloser, err := obs.SetupOTel(root, cfg.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	cons := kafka.BootstrapConsumer(root, &kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   cfg.Kafka.Topic,
		Logger:  l,
	}, cfg.Kafka.Partitions, l)
	defer func() { _ = cons.Close() }()

	h := kafka.ProtoHandler(func() *structpb.Struct { return &structpb.Struct{} }, snapshotLogger(l))
	if err := cons.Consume(root, h); err != nil && !errors.Is(err, context.Canceled) {
		l.Error("consume", zap.Error(err))
	}
	l.Info("bye")
}
