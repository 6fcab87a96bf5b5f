package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	config "github.com/NordCoder/uptimewatch/internal/config/monitor"
	"github.com/NordCoder/uptimewatch/internal/domain/target"
	"github.com/NordCoder/uptimewatch/internal/repository/memory"
	pg "github.com/NordCoder/uptimewatch/internal/repository/postgres"
)

type storeHandle struct {
	store   target.Store
	lister  target.DowntimeLister
	catalog target.Catalog
	ping    func(context.Context) error
	close   func()
}

// ListDowntime lets the handle serve the control API directly.
func (h storeHandle) ListDowntime(ctx context.Context, id string, limit int) ([]target.DowntimeEvent, error) {
	return h.lister.ListDowntime(ctx, id, limit)
}

func initStore(ctx context.Context, cfg *config.Config, l *zap.Logger) (storeHandle, error) {
	if cfg.Standalone() {
		mem := memory.New()
		n, err := seedTargets(ctx, mem, cfg.Targets)
		if err != nil {
			return storeHandle{}, err
		}
		l.Info("in-memory store seeded", zap.Int("targets", n))
		return storeHandle{store: mem, lister: mem, catalog: mem, ping: mem.Ping, close: func() {}}, nil
	}

	if len(cfg.Targets) > 0 {
		l.Warn("targets in config are ignored when a database is configured", zap.Int("targets", len(cfg.Targets)))
	}
	db, err := pg.New(ctx, cfg.DB)
	if err != nil {
		return storeHandle{}, fmt.Errorf("db connect: %w", err)
	}
	s := pg.NewStore(db, l.With(zap.String("component", "postgres")))
	return storeHandle{store: s, lister: s, catalog: s, ping: s.Ping, close: db.Close}, nil
}

func seedTargets(ctx context.Context, mem *memory.Store, seeds []config.TargetSeed) (int, error) {
	for i := range seeds {
		t, err := seeds[i].AsTarget()
		if err != nil {
			return 0, err
		}
		if name := seeds[i].Group; name != "" {
			g, err := mem.EnsureGroup(ctx, name)
			if err != nil {
				return 0, fmt.Errorf("seed group %q: %w", name, err)
			}
			t.GroupID = &g.ID
		}
		if _, err := mem.CreateTarget(ctx, t); err != nil {
			return 0, fmt.Errorf("seed target %q: %w", t.Name, err)
		}
	}
	return len(seeds), nil
}
