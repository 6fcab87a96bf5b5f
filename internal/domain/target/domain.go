package target

import (
	"fmt"
	"strings"
	"time"
)

type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolTCP   Protocol = "tcp"
	ProtocolRedis Protocol = "redis"
)

// ParseProtocol accepts the canonical names plus the legacy service type
// aliases (website, api, tcpconnection).
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "http", "https", "website", "api":
		return ProtocolHTTP, nil
	case "tcp", "tcpconnection":
		return ProtocolTCP, nil
	case "redis":
		return ProtocolRedis, nil
	}
	return "", fmt.Errorf("unknown protocol %q", s)
}

func (p Protocol) Valid() bool {
	switch p {
	case ProtocolHTTP, ProtocolTCP, ProtocolRedis:
		return true
	}
	return false
}

type Status string

const (
	StatusPending Status = "pending"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

const (
	DefaultRefreshInterval = 60 * time.Second
	DefaultRetryInterval   = 5 * time.Minute
	DefaultSortOrder       = 100

	// RedisDefaultDB selects the server's default database.
	RedisDefaultDB = -1
)

type RedisCredentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Target struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	Address               string            `json:"address"`
	Protocol              Protocol          `json:"protocol"`
	Status                Status            `json:"status"`
	LastCheckTime         *time.Time        `json:"last_check_time,omitempty"`
	LastStatusDescription string            `json:"last_status_description"`
	RefreshIntervalMS     int64             `json:"refresh_interval_ms"`
	RetryIntervalMS       int64             `json:"retry_interval_ms"`
	SortOrder             int               `json:"sort_order"`
	IsDeleted             bool              `json:"is_deleted"`
	IsInMaintenance       bool              `json:"is_in_maintenance"`
	FailedCheckCount      int               `json:"failed_check_count"`
	GroupID               *int64            `json:"group_id,omitempty"`
	Group                 *Group            `json:"group,omitempty"`
	Redis                 *RedisCredentials `json:"redis,omitempty"`
}

// Schedulable reports whether a check loop may run for the target.
func (t *Target) Schedulable() bool {
	return !t.IsDeleted && !t.IsInMaintenance
}

func (t *Target) RefreshInterval() time.Duration {
	if t.RefreshIntervalMS <= 0 {
		return DefaultRefreshInterval
	}
	return time.Duration(t.RefreshIntervalMS) * time.Millisecond
}

func (t *Target) RetryInterval() time.Duration {
	if t.RetryIntervalMS <= 0 {
		return DefaultRetryInterval
	}
	return time.Duration(t.RetryIntervalMS) * time.Millisecond
}

// ResetForReschedule is applied by every configuration update: the next
// loop starts from a clean slate.
func (t *Target) ResetForReschedule() {
	t.Status = StatusPending
	t.FailedCheckCount = 0
}

func (t *Target) RedisDB() int {
	if t.Redis == nil {
		return RedisDefaultDB
	}
	return t.Redis.DB
}

// Clone returns a deep copy so callers can mutate it without aliasing
// store-owned pointers.
func (t Target) Clone() Target {
	if t.LastCheckTime != nil {
		v := *t.LastCheckTime
		t.LastCheckTime = &v
	}
	if t.GroupID != nil {
		v := *t.GroupID
		t.GroupID = &v
	}
	if t.Group != nil {
		v := *t.Group
		t.Group = &v
	}
	if t.Redis != nil {
		v := *t.Redis
		t.Redis = &v
	}
	return t
}

type DowntimeEvent struct {
	ID        int64      `json:"id"`
	TargetID  string     `json:"target_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

func (e *DowntimeEvent) Open() bool { return e.EndTime == nil }

// Duration of the outage; open events are measured up to now.
func (e *DowntimeEvent) Duration(now time.Time) time.Duration {
	if e.EndTime != nil {
		return e.EndTime.Sub(e.StartTime)
	}
	return now.Sub(e.StartTime)
}
