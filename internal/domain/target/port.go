package target

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// TopicUpdated is the broadcast topic for refreshed target snapshots.
const TopicUpdated = "target.updated"

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is everything the check engine needs from persistence. Calls made
// with a context returned by WithTx join that transaction.
type Store interface {
	Transactor

	LoadActiveTargets(ctx context.Context) ([]Target, error)
	// LoadTarget returns ErrNotFound for unknown ids. The group is populated.
	LoadTarget(ctx context.Context, id string) (*Target, error)
	SaveTarget(ctx context.Context, t *Target) error

	OpenDowntime(ctx context.Context, targetID string, start time.Time) (*DowntimeEvent, error)
	// CloseOpenDowntime returns ErrNotFound when the target has no open event.
	CloseOpenDowntime(ctx context.Context, targetID string, end time.Time) (*DowntimeEvent, error)
	// FindOpenDowntime returns ErrNotFound when the target has no open event.
	FindOpenDowntime(ctx context.Context, targetID string) (*DowntimeEvent, error)
}

// Catalog lists and retires targets for the control API.
type Catalog interface {
	// ListTargets returns non-deleted targets ordered by group name, sort
	// order and name.
	ListTargets(ctx context.Context) ([]Target, error)
	// DeleteTarget soft-deletes id. Unknown or deleted ids give ErrNotFound.
	DeleteTarget(ctx context.Context, id string) error
}

type DowntimeLister interface {
	ListDowntime(ctx context.Context, targetID string, limit int) ([]DowntimeEvent, error)
}

type Broadcaster interface {
	Publish(ctx context.Context, topic string, snapshot Target) error
}

type Clock interface {
	Now() time.Time
}
