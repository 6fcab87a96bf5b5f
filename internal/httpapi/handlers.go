package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
	"github.com/NordCoder/uptimewatch/internal/obs"
)

const (
	defaultDowntimeLimit = 10
	maxDowntimeLimit     = 100
	maxBodyBytes         = 64 << 10
)

type probeRequest struct {
	Address       string `json:"address"`
	Protocol      string `json:"protocol"`
	RedisUsername string `json:"redis_username"`
	RedisPassword string `json:"redis_password"`
	RedisDB       *int   `json:"redis_db"`
}

func (p probeRequest) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Address, validation.Required, validation.Length(1, 2048)),
		validation.Field(&p.Protocol, validation.Required, validation.By(func(v interface{}) error {
			if _, err := target.ParseProtocol(v.(string)); err != nil {
				return validation.NewError("validation_invalid_protocol", "must be http, tcp or redis")
			}
			return nil
		})),
		validation.Field(&p.RedisDB, validation.When(p.RedisDB != nil, validation.Min(0))),
	)
}

func (p probeRequest) asTarget() target.Target {
	proto, _ := target.ParseProtocol(p.Protocol)
	t := target.Target{
		ID:       "adhoc",
		Name:     "adhoc",
		Address:  strings.TrimSpace(p.Address),
		Protocol: proto,
	}
	if proto == target.ProtocolRedis {
		t.Redis = &target.RedisCredentials{
			Username: p.RedisUsername,
			Password: p.RedisPassword,
			DB:       target.RedisDefaultDB,
		}
		if p.RedisDB != nil {
			t.Redis.DB = *p.RedisDB
		}
	}
	return t
}

type probeResponse struct {
	Online      bool          `json:"online"`
	Status      target.Status `json:"status"`
	Description string        `json:"description"`
	LatencyMS   int64         `json:"latency_ms"`
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	var req probeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	t := req.asTarget()
	out := s.Monitor.ProbeOnce(r.Context(), t)

	obs.WithTrace(r.Context(), s.Logger).Info("adhoc probe",
		zap.String("protocol", string(t.Protocol)),
		zap.String("status", string(out.Status)),
		zap.Duration("latency", out.Latency),
	)

	writeJSON(w, http.StatusOK, probeResponse{
		Online:      out.Status == target.StatusOnline,
		Status:      out.Status,
		Description: out.Description,
		LatencyMS:   out.Latency.Milliseconds(),
	})
}

type targetView struct {
	target.Target
	Scheduled bool `json:"scheduled"`
}

type targetsResponse struct {
	Count   int          `json:"count"`
	Targets []targetView `json:"targets"`
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	if s.Targets == nil {
		writeError(w, http.StatusNotImplemented, "target listing unavailable")
		return
	}
	ts, err := s.Targets.ListTargets(r.Context())
	if err != nil {
		obs.WithTrace(r.Context(), s.Logger).Error("list targets failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list targets failed")
		return
	}

	active := make(map[string]struct{})
	for _, id := range s.Monitor.Active() {
		active[id] = struct{}{}
	}
	out := targetsResponse{Count: len(ts), Targets: make([]targetView, 0, len(ts))}
	for _, t := range ts {
		_, on := active[t.ID]
		out.Targets = append(out.Targets, targetView{Target: t, Scheduled: on})
	}
	writeJSON(w, http.StatusOK, out)
}

type deleteResponse struct {
	ID          string `json:"id"`
	Deleted     bool   `json:"deleted"`
	LoopRemoved bool   `json:"loop_removed"`
}

// handleDeleteTarget soft-deletes the target, then stops its loop.
func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	if s.Targets == nil {
		writeError(w, http.StatusNotImplemented, "target removal unavailable")
		return
	}
	id := chi.URLParam(r, "id")
	err := s.Targets.DeleteTarget(r.Context(), id)
	if errors.Is(err, target.ErrNotFound) {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}
	if err != nil {
		obs.WithTrace(r.Context(), s.Logger).Error("delete target failed", zap.String("target_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "delete target failed")
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{ID: id, Deleted: true, LoopRemoved: s.Monitor.Remove(id)})
}

type scheduleResponse struct {
	ID        string `json:"id"`
	Scheduled bool   `json:"scheduled"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	running, err := s.Monitor.Reschedule(r.Context(), id)
	if err != nil {
		obs.WithTrace(r.Context(), s.Logger).Error("reschedule failed", zap.String("target_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reschedule failed")
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{ID: id, Scheduled: running})
}

type unscheduleResponse struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

func (s *Server) handleUnschedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, unscheduleResponse{ID: id, Removed: s.Monitor.Remove(id)})
}

type downtimeView struct {
	ID            int64      `json:"id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Open          bool       `json:"open"`
	DurationMS    int64      `json:"duration_ms"`
	DurationHuman string     `json:"duration_human"`
}

type downtimeResponse struct {
	TargetID string         `json:"target_id"`
	Events   []downtimeView `json:"events"`
}

func (s *Server) handleDowntime(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := defaultDowntimeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxDowntimeLimit)
	}

	events, err := s.Downtime.ListDowntime(r.Context(), id, limit)
	if errors.Is(err, target.ErrNotFound) {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}
	if err != nil {
		obs.WithTrace(r.Context(), s.Logger).Error("list downtime failed", zap.String("target_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list downtime failed")
		return
	}

	now := s.now().UTC()
	out := downtimeResponse{TargetID: id, Events: make([]downtimeView, 0, len(events))}
	for i := range events {
		ev := &events[i]
		d := ev.Duration(now)
		out.Events = append(out.Events, downtimeView{
			ID:            ev.ID,
			StartTime:     ev.StartTime,
			EndTime:       ev.EndTime,
			Open:          ev.Open(),
			DurationMS:    d.Milliseconds(),
			DurationHuman: humanDuration(ev.StartTime, d),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// humanDuration renders d as e.g. "2 minutes".
func humanDuration(start time.Time, d time.Duration) string {
	return strings.TrimSpace(humanize.RelTime(start, start.Add(d), "", ""))
}

type loopsResponse struct {
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

func (s *Server) handleLoops(w http.ResponseWriter, r *http.Request) {
	ids := s.Monitor.Active()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, loopsResponse{Count: len(ids), IDs: ids})
}
