package postgres

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
)

var (
	_ target.Store          = (*Store)(nil)
	_ target.DowntimeLister = (*Store)(nil)
	_ target.Catalog        = (*Store)(nil)
)

// Store binds the target and downtime repositories behind the check
// engine's port. Every call made inside WithTx shares one transaction.
type Store struct {
	*Transactor
	db        *DB
	Targets   *TargetRepo
	Downtimes *DowntimeRepo
}

func NewStore(db *DB, log *zap.Logger) *Store {
	return &Store{
		Transactor: NewTransactor(db, log),
		db:         db,
		Targets:    NewTargetRepo(db),
		Downtimes:  NewDowntimeRepo(db),
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *Store) LoadActiveTargets(ctx context.Context) ([]target.Target, error) {
	return s.Targets.LoadActive(ctx)
}

func (s *Store) LoadTarget(ctx context.Context, id string) (*target.Target, error) {
	return s.Targets.Load(ctx, id)
}

func (s *Store) ListTargets(ctx context.Context) ([]target.Target, error) {
	return s.Targets.List(ctx)
}

func (s *Store) DeleteTarget(ctx context.Context, id string) error {
	return s.Targets.Delete(ctx, id)
}

func (s *Store) SaveTarget(ctx context.Context, t *target.Target) error {
	return s.Targets.SaveCycle(ctx, t)
}

func (s *Store) OpenDowntime(ctx context.Context, targetID string, start time.Time) (*target.DowntimeEvent, error) {
	return s.Downtimes.Open(ctx, targetID, start)
}

func (s *Store) CloseOpenDowntime(ctx context.Context, targetID string, end time.Time) (*target.DowntimeEvent, error) {
	return s.Downtimes.CloseOpen(ctx, targetID, end)
}

func (s *Store) FindOpenDowntime(ctx context.Context, targetID string) (*target.DowntimeEvent, error) {
	return s.Downtimes.FindOpen(ctx, targetID)
}

func (s *Store) ListDowntime(ctx context.Context, targetID string, limit int) ([]target.DowntimeEvent, error) {
	return s.Downtimes.ListRecent(ctx, targetID, limit)
}
