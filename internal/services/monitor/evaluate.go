package monitor

import (
	"time"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
	"github.com/NordCoder/uptimewatch/internal/probe"
)

type downtimeAction int

const (
	downtimeNone downtimeAction = iota
	downtimeOpen
	downtimeClose
)

func (a downtimeAction) String() string {
	switch a {
	case downtimeOpen:
		return "open"
	case downtimeClose:
		return "close"
	}
	return "none"
}

type decision struct {
	downtime  downtimeAction
	delay     time.Duration
	threshold bool
}

// evaluate applies a probe outcome to t in place and decides the downtime
// action and the delay before the next cycle.
func evaluate(t *target.Target, out probe.Outcome, now time.Time, threshold int) decision {
	prior := t.Status

	t.Status = out.Status
	t.LastStatusDescription = out.Description
	checked := now
	t.LastCheckTime = &checked

	var d decision
	switch out.Status {
	case target.StatusOnline:
		t.FailedCheckCount = 0
		if prior != target.StatusOnline {
			d.downtime = downtimeClose
		}
	case target.StatusOffline:
		t.FailedCheckCount++
		if prior != target.StatusOffline {
			d.downtime = downtimeOpen
		}
	}

	if threshold > 0 && t.FailedCheckCount >= threshold {
		t.Status = target.StatusPending
		t.FailedCheckCount = 0
		d.threshold = true
		d.delay = t.RetryInterval()
		return d
	}
	d.delay = t.RefreshInterval()
	return d
}
