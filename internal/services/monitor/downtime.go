package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
)

type downtimeStore interface {
	OpenDowntime(ctx context.Context, targetID string, start time.Time) (*target.DowntimeEvent, error)
	CloseOpenDowntime(ctx context.Context, targetID string, end time.Time) (*target.DowntimeEvent, error)
	FindOpenDowntime(ctx context.Context, targetID string) (*target.DowntimeEvent, error)
}

// DowntimeTracker keeps at most one open downtime event per target.
type DowntimeTracker struct {
	store downtimeStore
}

func NewDowntimeTracker(s downtimeStore) *DowntimeTracker {
	return &DowntimeTracker{store: s}
}

// Open starts an outage at the given time. When one is already open it is
// returned unchanged and opened is false.
func (d *DowntimeTracker) Open(ctx context.Context, targetID string, at time.Time) (ev *target.DowntimeEvent, opened bool, err error) {
	cur, err := d.store.FindOpenDowntime(ctx, targetID)
	switch {
	case err == nil:
		return cur, false, nil
	case !errors.Is(err, target.ErrNotFound):
		return nil, false, fmt.Errorf("find open downtime: %w", err)
	}

	ev, err = d.store.OpenDowntime(ctx, targetID, at)
	if err != nil {
		return nil, false, fmt.Errorf("open downtime: %w", err)
	}
	return ev, true, nil
}

// Close ends the most recent open outage. Nil without error when none is open.
func (d *DowntimeTracker) Close(ctx context.Context, targetID string, at time.Time) (*target.DowntimeEvent, error) {
	ev, err := d.store.CloseOpenDowntime(ctx, targetID, at)
	if errors.Is(err, target.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("close downtime: %w", err)
	}
	return ev, nil
}
