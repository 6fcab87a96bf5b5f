package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/uptimewatch/internal/broadcast"
	"github.com/NordCoder/uptimewatch/internal/domain/target"
	"github.com/NordCoder/uptimewatch/internal/probe"
	"github.com/NordCoder/uptimewatch/internal/repository/memory"
)

type fakeMonitor struct {
	mu          sync.Mutex
	probed      []target.Target
	outcome     probe.Outcome
	reschedule  map[string]bool
	rescheduleE error
	removed     []string
	active      []string
}

func (f *fakeMonitor) ProbeOnce(_ context.Context, t target.Target) probe.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, t)
	return f.outcome
}

func (f *fakeMonitor) Reschedule(_ context.Context, id string) (bool, error) {
	if f.rescheduleE != nil {
		return false, f.rescheduleE
	}
	return f.reschedule[id], nil
}

func (f *fakeMonitor) Remove(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return id == "t-1"
}

func (f *fakeMonitor) Active() []string { return f.active }

func newTestServer(t *testing.T) (*Server, *fakeMonitor, *memory.Store, *broadcast.Hub) {
	t.Helper()
	m := &fakeMonitor{reschedule: map[string]bool{}}
	store := memory.New()
	hub := broadcast.NewHub()
	s := NewServer(zap.NewNop(), m, store, hub)
	s.Targets = store
	return s, m, store, hub
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProbe_Online(t *testing.T) {
	s, m, _, _ := newTestServer(t)
	m.outcome = probe.Outcome{Status: target.StatusOnline, Description: "200 OK", Latency: 42 * time.Millisecond}

	rec := do(t, s.Router(), http.MethodPost, "/v1/probe", `{"address":"https://example.com","protocol":"website"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp probeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Online)
	require.Equal(t, "200 OK", resp.Description)
	require.Equal(t, int64(42), resp.LatencyMS)

	require.Len(t, m.probed, 1)
	require.Equal(t, target.ProtocolHTTP, m.probed[0].Protocol)
	require.Nil(t, m.probed[0].Redis)
}

func TestProbe_RedisCredentials(t *testing.T) {
	s, m, _, _ := newTestServer(t)
	m.outcome = probe.Outcome{Status: target.StatusOffline, Description: "redis error: NOAUTH"}

	rec := do(t, s.Router(), http.MethodPost, "/v1/probe",
		`{"address":"127.0.0.1:6379","protocol":"redis","redis_password":"pw","redis_db":4}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp probeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Online)
	require.Equal(t, target.StatusOffline, resp.Status)

	got := m.probed[0]
	require.Equal(t, "pw", got.Redis.Password)
	require.Equal(t, 4, got.RedisDB())

	rec = do(t, s.Router(), http.MethodPost, "/v1/probe", `{"address":"127.0.0.1:6379","protocol":"redis"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, target.RedisDefaultDB, m.probed[1].RedisDB())
}

func TestProbe_RejectsBadInput(t *testing.T) {
	s, m, _, _ := newTestServer(t)
	cases := map[string]struct {
		body string
		code int
	}{
		"not json":         {`{`, http.StatusBadRequest},
		"unknown field":    {`{"address":"x","protocol":"tcp","extra":1}`, http.StatusBadRequest},
		"missing address":  {`{"protocol":"tcp"}`, http.StatusUnprocessableEntity},
		"unknown protocol": {`{"address":"x","protocol":"smtp"}`, http.StatusUnprocessableEntity},
		"negative db":      {`{"address":"x","protocol":"redis","redis_db":-2}`, http.StatusUnprocessableEntity},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, s.Router(), http.MethodPost, "/v1/probe", c.body)
			require.Equal(t, c.code, rec.Code, rec.Body.String())
		})
	}
	require.Empty(t, m.probed)
}

func TestListTargets_OrderedWithScheduleState(t *testing.T) {
	s, m, store, _ := newTestServer(t)
	ctx := context.Background()
	alpha, err := store.EnsureGroup(ctx, "Alpha")
	require.NoError(t, err)
	beta, err := store.EnsureGroup(ctx, "Beta")
	require.NoError(t, err)

	for _, tg := range []target.Target{
		{ID: "b1", Name: "b1", Address: "x:1", Protocol: target.ProtocolTCP, SortOrder: 2, GroupID: &beta.ID},
		{ID: "b2", Name: "b2", Address: "x:2", Protocol: target.ProtocolTCP, SortOrder: 1, GroupID: &beta.ID},
		{ID: "a", Name: "a", Address: "x:3", Protocol: target.ProtocolRedis, SortOrder: 5, GroupID: &alpha.ID,
			Redis: &target.RedisCredentials{Password: "hunter2"}},
		{ID: "zeta", Name: "zeta", Address: "http://z", Protocol: target.ProtocolHTTP, SortOrder: 9},
		{ID: "gone", Name: "gone", Address: "http://g", Protocol: target.ProtocolHTTP, SortOrder: 1},
	} {
		_, err := store.CreateTarget(ctx, tg)
		require.NoError(t, err)
	}
	require.NoError(t, store.DeleteTarget(ctx, "gone"))
	m.active = []string{"b2"}

	rec := do(t, s.Router(), http.MethodGet, "/v1/targets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "hunter2")

	var resp targetsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 4, resp.Count)
	var ids []string
	for _, v := range resp.Targets {
		ids = append(ids, v.ID)
		require.Equal(t, v.ID == "b2", v.Scheduled, v.ID)
	}
	require.Equal(t, []string{"zeta", "a", "b2", "b1"}, ids)
	require.Equal(t, "Alpha", resp.Targets[1].Group.Name)
}

func TestDeleteTarget(t *testing.T) {
	s, m, store, _ := newTestServer(t)
	ctx := context.Background()
	_, err := store.CreateTarget(ctx, target.Target{ID: "t-1", Name: "web", Address: "http://x", Protocol: target.ProtocolHTTP})
	require.NoError(t, err)

	rec := do(t, s.Router(), http.MethodDelete, "/v1/targets/t-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.JSONEq(t, `{"id":"t-1","deleted":true,"loop_removed":true}`, rec.Body.String())
	require.Equal(t, []string{"t-1"}, m.removed)

	loaded, err := store.LoadTarget(ctx, "t-1")
	require.NoError(t, err)
	require.True(t, loaded.IsDeleted)
	require.False(t, loaded.Schedulable())

	rec = do(t, s.Router(), http.MethodDelete, "/v1/targets/t-1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s.Router(), http.MethodDelete, "/v1/targets/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, []string{"t-1"}, m.removed)
}

func TestSchedule(t *testing.T) {
	s, m, _, _ := newTestServer(t)
	m.reschedule["t-1"] = true

	rec := do(t, s.Router(), http.MethodPut, "/v1/targets/t-1/schedule", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":"t-1","scheduled":true}`, rec.Body.String())

	rec = do(t, s.Router(), http.MethodPut, "/v1/targets/gone/schedule", "")
	require.JSONEq(t, `{"id":"gone","scheduled":false}`, rec.Body.String())

	m.rescheduleE = errors.New("db down")
	rec = do(t, s.Router(), http.MethodPut, "/v1/targets/t-1/schedule", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUnschedule(t *testing.T) {
	s, m, _, _ := newTestServer(t)
	rec := do(t, s.Router(), http.MethodDelete, "/v1/targets/t-1/schedule", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":"t-1","removed":true}`, rec.Body.String())
	require.Equal(t, []string{"t-1"}, m.removed)
}

func TestDowntime(t *testing.T) {
	s, _, store, _ := newTestServer(t)
	ctx := context.Background()
	tg, err := store.CreateTarget(ctx, target.Target{Name: "web", Address: "http://x", Protocol: target.ProtocolHTTP})
	require.NoError(t, err)

	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err = store.OpenDowntime(ctx, tg.ID, t0)
	require.NoError(t, err)
	_, err = store.CloseOpenDowntime(ctx, tg.ID, t0.Add(2*time.Minute))
	require.NoError(t, err)
	_, err = store.OpenDowntime(ctx, tg.ID, t0.Add(time.Hour))
	require.NoError(t, err)

	s.now = func() time.Time { return t0.Add(time.Hour + 30*time.Second) }

	rec := do(t, s.Router(), http.MethodGet, "/v1/targets/"+tg.ID+"/downtime", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp downtimeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)

	open := resp.Events[0]
	require.True(t, open.Open)
	require.Nil(t, open.EndTime)
	require.Equal(t, int64(30000), open.DurationMS)
	require.Equal(t, "30 seconds", open.DurationHuman)

	closed := resp.Events[1]
	require.False(t, closed.Open)
	require.Equal(t, int64(120000), closed.DurationMS)
	require.Equal(t, "2 minutes", closed.DurationHuman)

	rec = do(t, s.Router(), http.MethodGet, "/v1/targets/"+tg.ID+"/downtime?limit=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)

	rec = do(t, s.Router(), http.MethodGet, "/v1/targets/"+tg.ID+"/downtime?limit=zero", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoops(t *testing.T) {
	s, m, _, _ := newTestServer(t)
	rec := do(t, s.Router(), http.MethodGet, "/v1/loops", "")
	require.JSONEq(t, `{"count":0,"ids":[]}`, rec.Body.String())

	m.active = []string{"a", "b"}
	rec = do(t, s.Router(), http.MethodGet, "/v1/loops", "")
	require.JSONEq(t, `{"count":2,"ids":["a","b"]}`, rec.Body.String())
}

func TestHealthz(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	s.Health = func(context.Context) error { return errors.New("down") }
	rec := do(t, s.Router(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStream(t *testing.T) {
	s, _, _, hub := newTestServer(t)
	s.Heartbeat = time.Hour
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/stream?target=t-2", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(ctx, target.TopicUpdated, target.Target{ID: "t-1"}))
	require.NoError(t, hub.Publish(ctx, target.TopicUpdated, target.Target{ID: "t-2", Status: target.StatusOffline}))

	r := bufio.NewReader(resp.Body)
	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "data: ") {
			lines = append(lines, line)
			break
		}
		if line != "" && !strings.HasPrefix(line, ":") {
			lines = append(lines, line)
		}
	}
	require.Equal(t, "event: "+target.TopicUpdated, lines[0])
	require.Equal(t, "id: t-2", lines[1])

	var ev broadcast.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[2], "data: ")), &ev))
	require.Equal(t, target.StatusOffline, ev.Snapshot.Status)

	cancel()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}
