package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
)

type TargetRepo struct {
	db *DB
}

func NewTargetRepo(db *DB) *TargetRepo { return &TargetRepo{db: db} }

const targetColumns = `
t.id, t.name, t.address, t.protocol, t.status, t.last_check_time, t.last_status_description,
t.refresh_interval_ms, t.retry_interval_ms, t.sort_order, t.is_deleted, t.is_in_maintenance,
t.failed_check_count, t.group_id, g.name, t.redis_username, t.redis_password, t.redis_db`

const (
	qLoadActive = `
SELECT ` + targetColumns + `
FROM targets t
LEFT JOIN service_groups g ON g.id = t.group_id
WHERE NOT t.is_deleted AND NOT t.is_in_maintenance
ORDER BY t.id;
`

	qLoadTarget = `
SELECT ` + targetColumns + `
FROM targets t
LEFT JOIN service_groups g ON g.id = t.group_id
WHERE t.id = $1;
`

	qListTargets = `
SELECT ` + targetColumns + `
FROM targets t
LEFT JOIN service_groups g ON g.id = t.group_id
WHERE NOT t.is_deleted
ORDER BY g.name NULLS FIRST, t.sort_order, t.name;
`

	// only the fields a check cycle owns
	qSaveCycle = `
UPDATE targets
SET status = $2,
    last_check_time = COALESCE($3, last_check_time),
    last_status_description = $4,
    failed_check_count = $5,
    updated_at = NOW()
WHERE id = $1;
`

	qInsertTarget = `
INSERT INTO targets (id, name, address, protocol, status, refresh_interval_ms, retry_interval_ms,
                     sort_order, is_in_maintenance, group_id, redis_username, redis_password, redis_db)
VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, $8, $9, $10, $11, $12);
`

	qSetMaintenance = `
UPDATE targets
SET is_in_maintenance = $2, status = 'pending', failed_check_count = 0, updated_at = NOW()
WHERE id = $1 AND NOT is_deleted;
`

	qSoftDelete = `
UPDATE targets SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted;
`

	qEnsureGroup = `
WITH ins AS (
    INSERT INTO service_groups (name) VALUES ($1)
    ON CONFLICT ((LOWER(name))) DO NOTHING
    RETURNING id, name
)
SELECT id, name FROM ins
UNION ALL
SELECT id, name FROM service_groups WHERE LOWER(name) = LOWER($1)
LIMIT 1;
`
)

func scanTarget(row pgx.Row) (target.Target, error) {
	var (
		t         target.Target
		protocol  string
		status    string
		groupName *string
		redisUser *string
		redisPass *string
		redisDB   *int32
	)
	if err := row.Scan(
		&t.ID, &t.Name, &t.Address, &protocol, &status, &t.LastCheckTime, &t.LastStatusDescription,
		&t.RefreshIntervalMS, &t.RetryIntervalMS, &t.SortOrder, &t.IsDeleted, &t.IsInMaintenance,
		&t.FailedCheckCount, &t.GroupID, &groupName, &redisUser, &redisPass, &redisDB,
	); err != nil {
		return t, mapErr(err)
	}
	t.Protocol = target.Protocol(protocol)
	t.Status = target.Status(status)
	if t.GroupID != nil && groupName != nil {
		t.Group = &target.Group{ID: *t.GroupID, Name: *groupName}
	}
	if redisUser != nil || redisPass != nil || redisDB != nil {
		rc := &target.RedisCredentials{DB: target.RedisDefaultDB}
		if redisUser != nil {
			rc.Username = *redisUser
		}
		if redisPass != nil {
			rc.Password = *redisPass
		}
		if redisDB != nil {
			rc.DB = int(*redisDB)
		}
		t.Redis = rc
	}
	t.LastCheckTime = utcPtr(t.LastCheckTime)
	return t, nil
}

func (r *TargetRepo) query(ctx context.Context, sql string, args ...any) ([]target.Target, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	var out []target.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return out, nil
}

func (r *TargetRepo) LoadActive(ctx context.Context) ([]target.Target, error) {
	return r.query(ctx, qLoadActive)
}

func (r *TargetRepo) List(ctx context.Context) ([]target.Target, error) {
	return r.query(ctx, qListTargets)
}

func (r *TargetRepo) Load(ctx context.Context, id string) (*target.Target, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	t, err := scanTarget(r.db.execQueryer(ctx).QueryRow(ctx, qLoadTarget, id))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TargetRepo) SaveCycle(ctx context.Context, t *target.Target) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qSaveCycle,
		t.ID, string(t.Status), t.LastCheckTime, t.LastStatusDescription, t.FailedCheckCount)
	if err != nil {
		return fmt.Errorf("save target %s: %w", t.ID, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Create inserts a new target in the Pending state. An empty id gets a
// random UUID, zero intervals get the defaults.
func (r *TargetRepo) Create(ctx context.Context, t target.Target) (target.Target, error) {
	if !t.Protocol.Valid() {
		return t, fmt.Errorf("create target: unknown protocol %q", t.Protocol)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.RefreshIntervalMS <= 0 {
		t.RefreshIntervalMS = target.DefaultRefreshInterval.Milliseconds()
	}
	if t.RetryIntervalMS <= 0 {
		t.RetryIntervalMS = target.DefaultRetryInterval.Milliseconds()
	}
	if t.SortOrder == 0 {
		t.SortOrder = target.DefaultSortOrder
	}
	t.ResetForReschedule()
	t.LastCheckTime = nil
	t.LastStatusDescription = ""

	var (
		redisUser, redisPass *string
		redisDB              *int32
	)
	if t.Redis != nil {
		redisUser = nullable(t.Redis.Username)
		redisPass = nullable(t.Redis.Password)
		db := int32(t.Redis.DB)
		redisDB = &db
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qInsertTarget,
		t.ID, t.Name, t.Address, string(t.Protocol), t.RefreshIntervalMS, t.RetryIntervalMS,
		t.SortOrder, t.IsInMaintenance, t.GroupID, redisUser, redisPass, redisDB)
	if err != nil {
		return t, fmt.Errorf("create target: %w", mapErr(err))
	}
	return t, nil
}

func (r *TargetRepo) SetMaintenance(ctx context.Context, id string, on bool) error {
	return r.execOne(ctx, qSetMaintenance, id, on)
}

func (r *TargetRepo) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, qSoftDelete, id)
}

func (r *TargetRepo) EnsureGroup(ctx context.Context, name string) (target.Group, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var g target.Group
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qEnsureGroup, name).Scan(&g.ID, &g.Name); err != nil {
		return g, fmt.Errorf("ensure group: %w", mapErr(err))
	}
	return g, nil
}

func (r *TargetRepo) execOne(ctx context.Context, sql string, args ...any) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
