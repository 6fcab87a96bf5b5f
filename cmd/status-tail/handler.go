package main

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/NordCoder/uptimewatch/internal/obs"
	"github.com/NordCoder/uptimewatch/internal/repository/kafka"
)

func snapshotLogger(l *zap.Logger) func(context.Context, []byte, *structpb.Struct) error {
	return func(ctx context.Context, key []byte, st *structpb.Struct) error {
		t, err := kafka.DecodeSnapshot(st)
		if err != nil {
			return err
		}
		fields := []zap.Field{
			zap.ByteString("key", key),
			zap.String("target_id", t.ID),
			zap.String("name", t.Name),
			zap.String("status", string(t.Status)),
			zap.String("description", t.LastStatusDescription),
			zap.Int("failed_checks", t.FailedCheckCount),
		}
		if t.Group != nil {
			fields = append(fields, zap.String("group", t.Group.Name))
		}
		if t.LastCheckTime != nil {
			fields = append(fields, zap.Time("checked_at", *t.LastCheckTime))
		}
		obs.WithTrace(ctx, l).Info("target status", fields...)
		return nil
	}
}
