package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
)

var _ target.Store = (*Store)(nil)
var _ target.DowntimeLister = (*Store)(nil)
var _ target.Catalog = (*Store)(nil)

// Store keeps targets, groups and downtime events in process memory.
// Transactions are serialized and rolled back from a snapshot on error;
// reads outside a transaction may observe its uncommitted writes.
type Store struct {
	txMu sync.Mutex

	mu          sync.RWMutex
	targets     map[string]*target.Target
	groups      map[int64]target.Group
	events      []target.DowntimeEvent
	nextEventID int64
	nextGroupID int64
}

func New() *Store {
	return &Store{
		targets: make(map[string]*target.Target),
		groups:  make(map[int64]target.Group),
	}
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*Store)
	return ok
}

type snapshot struct {
	targets     map[string]*target.Target
	groups      map[int64]target.Group
	events      []target.DowntimeEvent
	nextEventID int64
	nextGroupID int64
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		targets:     make(map[string]*target.Target, len(s.targets)),
		groups:      make(map[int64]target.Group, len(s.groups)),
		events:      make([]target.DowntimeEvent, len(s.events)),
		nextEventID: s.nextEventID,
		nextGroupID: s.nextGroupID,
	}
	for id, t := range s.targets {
		cp := t.Clone()
		snap.targets[id] = &cp
	}
	for id, g := range s.groups {
		snap.groups[id] = g
	}
	for i, ev := range s.events {
		snap.events[i] = cloneEvent(ev)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = snap.targets
	s.groups = snap.groups
	s.events = snap.events
	s.nextEventID = snap.nextEventID
	s.nextGroupID = snap.nextGroupID
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return fmt.Errorf("function execution error: %w", err)
	}
	return nil
}

// write runs fn under the write lock, waiting for any foreign transaction.
func (s *Store) write(ctx context.Context, fn func() error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) withGroup(t *target.Target) target.Target {
	cp := t.Clone()
	cp.Group = nil
	if cp.GroupID != nil {
		if g, ok := s.groups[*cp.GroupID]; ok {
			cp.Group = &g
		}
	}
	return cp
}

func (s *Store) CreateTarget(ctx context.Context, t target.Target) (target.Target, error) {
	if !t.Protocol.Valid() {
		return target.Target{}, fmt.Errorf("create target: unknown protocol %q", t.Protocol)
	}
	var out target.Target
	err := s.write(ctx, func() error {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if _, ok := s.targets[t.ID]; ok {
			return fmt.Errorf("create target %s: %w", t.ID, target.ErrConflict)
		}
		if t.GroupID != nil {
			if _, ok := s.groups[*t.GroupID]; !ok {
				return fmt.Errorf("create target: group %d: %w", *t.GroupID, target.ErrNotFound)
			}
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
		t.IsDeleted = false
		t.ResetForReschedule()
		cp := t.Clone()
		s.targets[cp.ID] = &cp
		out = s.withGroup(&cp)
		return nil
	})
	return out, err
}

// UpdateTarget replaces the configuration of an existing target and puts it
// back to pending, as every configuration change does.
func (s *Store) UpdateTarget(ctx context.Context, t target.Target) error {
	return s.write(ctx, func() error {
		cur, ok := s.targets[t.ID]
		if !ok || cur.IsDeleted {
			return target.ErrNotFound
		}
		cur.Name = t.Name
		cur.Address = t.Address
		cur.Protocol = t.Protocol
		cur.RefreshIntervalMS = t.RefreshIntervalMS
		cur.RetryIntervalMS = t.RetryIntervalMS
		cur.SortOrder = t.SortOrder
		cur.IsInMaintenance = t.IsInMaintenance
		cur.GroupID = t.Clone().GroupID
		cur.Redis = t.Clone().Redis
		cur.ResetForReschedule()
		return nil
	})
}

func (s *Store) DeleteTarget(ctx context.Context, id string) error {
	return s.write(ctx, func() error {
		cur, ok := s.targets[id]
		if !ok || cur.IsDeleted {
			return target.ErrNotFound
		}
		cur.IsDeleted = true
		return nil
	})
}

func (s *Store) SetMaintenance(ctx context.Context, id string, on bool) error {
	return s.write(ctx, func() error {
		cur, ok := s.targets[id]
		if !ok || cur.IsDeleted {
			return target.ErrNotFound
		}
		cur.IsInMaintenance = on
		return nil
	})
}

// ListTargets returns non-deleted targets ordered by group name, sort order
// and name. Ungrouped targets come first.
func (s *Store) ListTargets(ctx context.Context) ([]target.Target, error) {
	s.mu.RLock()
	out := make([]target.Target, 0, len(s.targets))
	for _, t := range s.targets {
		if t.IsDeleted {
			continue
		}
		out = append(out, s.withGroup(t))
	}
	s.mu.RUnlock()

	groupName := func(t target.Target) string {
		if t.Group == nil {
			return ""
		}
		return t.Group.Name
	}
	sort.Slice(out, func(i, j int) bool {
		gi, gj := groupName(out[i]), groupName(out[j])
		if gi != gj {
			return gi < gj
		}
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// EnsureGroup returns the group with the given name, creating it if needed.
func (s *Store) EnsureGroup(ctx context.Context, name string) (target.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return target.Group{}, fmt.Errorf("ensure group: empty name")
	}
	var out target.Group
	err := s.write(ctx, func() error {
		for _, g := range s.groups {
			if strings.EqualFold(g.Name, name) {
				out = g
				return nil
			}
		}
		s.nextGroupID++
		out = target.Group{ID: s.nextGroupID, Name: name}
		s.groups[out.ID] = out
		return nil
	})
	return out, err
}

// DeleteGroup refuses with ErrConflict while a live target still uses it.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	return s.write(ctx, func() error {
		if _, ok := s.groups[id]; !ok {
			return target.ErrNotFound
		}
		for _, t := range s.targets {
			if !t.IsDeleted && t.GroupID != nil && *t.GroupID == id {
				return fmt.Errorf("group %d in use: %w", id, target.ErrConflict)
			}
		}
		delete(s.groups, id)
		return nil
	})
}

func (s *Store) LoadActiveTargets(ctx context.Context) ([]target.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]target.Target, 0, len(s.targets))
	for _, t := range s.targets {
		if t.Schedulable() {
			out = append(out, s.withGroup(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) LoadTarget(ctx context.Context, id string) (*target.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.targets[id]
	if !ok {
		return nil, target.ErrNotFound
	}
	cp := s.withGroup(t)
	return &cp, nil
}

// SaveTarget persists the fields a check cycle owns.
func (s *Store) SaveTarget(ctx context.Context, t *target.Target) error {
	return s.write(ctx, func() error {
		cur, ok := s.targets[t.ID]
		if !ok {
			return target.ErrNotFound
		}
		cur.Status = t.Status
		cur.LastStatusDescription = t.LastStatusDescription
		cur.FailedCheckCount = t.FailedCheckCount
		if t.LastCheckTime != nil {
			v := *t.LastCheckTime
			cur.LastCheckTime = &v
		}
		return nil
	})
}

func (s *Store) OpenDowntime(ctx context.Context, targetID string, start time.Time) (*target.DowntimeEvent, error) {
	var out target.DowntimeEvent
	err := s.write(ctx, func() error {
		if _, ok := s.targets[targetID]; !ok {
			return target.ErrNotFound
		}
		if i := s.openIndex(targetID); i >= 0 {
			return fmt.Errorf("open downtime for %s: %w", targetID, target.ErrConflict)
		}
		s.nextEventID++
		out = target.DowntimeEvent{ID: s.nextEventID, TargetID: targetID, StartTime: start}
		s.events = append(s.events, out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) CloseOpenDowntime(ctx context.Context, targetID string, end time.Time) (*target.DowntimeEvent, error) {
	var out target.DowntimeEvent
	err := s.write(ctx, func() error {
		i := s.openIndex(targetID)
		if i < 0 {
			return target.ErrNotFound
		}
		e := end
		s.events[i].EndTime = &e
		out = cloneEvent(s.events[i])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) FindOpenDowntime(ctx context.Context, targetID string) (*target.DowntimeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.openIndex(targetID)
	if i < 0 {
		return nil, target.ErrNotFound
	}
	ev := cloneEvent(s.events[i])
	return &ev, nil
}

// ListDowntime returns up to limit events for the target, newest first.
func (s *Store) ListDowntime(ctx context.Context, targetID string, limit int) ([]target.DowntimeEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []target.DowntimeEvent
	for _, ev := range s.events {
		if ev.TargetID == targetID {
			out = append(out, cloneEvent(ev))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// openIndex finds the most recent open event; callers hold mu.
func (s *Store) openIndex(targetID string) int {
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].TargetID == targetID && s.events[i].EndTime == nil {
			return i
		}
	}
	return -1
}

func cloneEvent(ev target.DowntimeEvent) target.DowntimeEvent {
	if ev.EndTime != nil {
		v := *ev.EndTime
		ev.EndTime = &v
	}
	return ev
}
