package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
)

type DowntimeRepo struct {
	db *DB
}

func NewDowntimeRepo(db *DB) *DowntimeRepo { return &DowntimeRepo{db: db} }

const (
	qOpenDowntime = `
INSERT INTO downtime_events (target_id, start_time)
VALUES ($1, $2)
RETURNING id, target_id, start_time, end_time;
`

	qCloseDowntime = `
UPDATE downtime_events
SET end_time = GREATEST($2, start_time)
WHERE id = (
    SELECT id FROM downtime_events
    WHERE target_id = $1 AND end_time IS NULL
    ORDER BY start_time DESC
    LIMIT 1
    FOR UPDATE
)
RETURNING id, target_id, start_time, end_time;
`

	qFindOpenDowntime = `
SELECT id, target_id, start_time, end_time
FROM downtime_events
WHERE target_id = $1 AND end_time IS NULL
ORDER BY start_time DESC
LIMIT 1;
`

	qListDowntime = `
SELECT id, target_id, start_time, end_time
FROM downtime_events
WHERE target_id = $1
ORDER BY start_time DESC, id DESC
LIMIT $2;
`
)

func scanEvent(row pgx.Row) (*target.DowntimeEvent, error) {
	var ev target.DowntimeEvent
	if err := row.Scan(&ev.ID, &ev.TargetID, &ev.StartTime, &ev.EndTime); err != nil {
		return nil, mapErr(err)
	}
	ev.StartTime = ev.StartTime.UTC()
	ev.EndTime = utcPtr(ev.EndTime)
	return &ev, nil
}

// Open inserts an open event. A second open event for the same target
// violates the partial unique index and comes back as ErrConflict.
func (r *DowntimeRepo) Open(ctx context.Context, targetID string, start time.Time) (*target.DowntimeEvent, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	ev, err := scanEvent(r.db.execQueryer(ctx).QueryRow(ctx, qOpenDowntime, targetID, start))
	if err != nil {
		return nil, fmt.Errorf("open downtime %s: %w", targetID, err)
	}
	return ev, nil
}

func (r *DowntimeRepo) CloseOpen(ctx context.Context, targetID string, end time.Time) (*target.DowntimeEvent, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanEvent(r.db.execQueryer(ctx).QueryRow(ctx, qCloseDowntime, targetID, end))
}

func (r *DowntimeRepo) FindOpen(ctx context.Context, targetID string) (*target.DowntimeEvent, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanEvent(r.db.execQueryer(ctx).QueryRow(ctx, qFindOpenDowntime, targetID))
}

func (r *DowntimeRepo) ListRecent(ctx context.Context, targetID string, limit int) ([]target.DowntimeEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qListDowntime, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("query downtime: %w", err)
	}
	defer rows.Close()

	out := make([]target.DowntimeEvent, 0, limit)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan downtime: %w", err)
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate downtime: %w", err)
	}
	return out, nil
}
