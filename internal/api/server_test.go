package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/readingprogress/internal/metrics"
	"github.com/JakeFAU/readingprogress/internal/policy/ratelimit"
	"github.com/JakeFAU/readingprogress/internal/progress"
	"github.com/JakeFAU/readingprogress/internal/viewport"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := NewServer(newFakeTracking(), nil, prometheus.NewRegistry(), nil)
	rec := serve(server, http.MethodGet, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_RequestIDPropagates(t *testing.T) {
	t.Parallel()

	server := NewServer(newFakeTracking(), nil, prometheus.NewRegistry(), nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}

func TestServer_GetState(t *testing.T) {
	t.Parallel()

	tracking := newFakeTracking()
	tracking.state = viewport.ViewportState{ActiveContainerID: "1", Active: true, ScrollPercentage: 42.5}
	server := NewServer(tracking, nil, prometheus.NewRegistry(), nil)

	rec := serve(server, http.MethodGet, "/v1/state")

	require.Equal(t, http.StatusOK, rec.Code)
	var body stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, tracking.session, body.Session)
	require.Equal(t, tracking.state, body.State)
}

func TestServer_ListContainers(t *testing.T) {
	t.Parallel()

	tracking := newFakeTracking()
	server := NewServer(tracking, nil, prometheus.NewRegistry(), nil)

	rec := serve(server, http.MethodGet, "/v1/containers")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"containers":[]}`, rec.Body.String())

	tracking.containers = []viewport.TrackedContainer{
		{ID: "0", Position: viewport.ContainerPosition{Top: 0, Bottom: 1000}},
	}
	rec = serve(server, http.MethodGet, "/v1/containers")
	require.JSONEq(t, `{"containers":[{"id":"0","position":{"top":0,"bottom":1000}}]}`, rec.Body.String())
}

func TestServer_Rescan(t *testing.T) {
	t.Parallel()

	tracking := newFakeTracking()
	tracking.resetCount = 3
	server := NewServer(tracking, nil, prometheus.NewRegistry(), nil)

	rec := serve(server, http.MethodPost, "/v1/containers/rescan")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"containers":3}`, rec.Body.String())
	require.Equal(t, 1, tracking.resets)
}

func TestServer_RemoveContainer(t *testing.T) {
	t.Parallel()

	tracking := newFakeTracking()
	tracking.containers = []viewport.TrackedContainer{{ID: "0"}, {ID: "1"}}
	server := NewServer(tracking, nil, prometheus.NewRegistry(), nil)

	rec := serve(server, http.MethodDelete, "/v1/containers/1")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, tracking.Containers(), 1)

	rec = serve(server, http.MethodDelete, "/v1/containers/1")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ClearContainers(t *testing.T) {
	t.Parallel()

	tracking := newFakeTracking()
	tracking.containers = []viewport.TrackedContainer{{ID: "0"}}
	server := NewServer(tracking, nil, prometheus.NewRegistry(), nil)

	rec := serve(server, http.MethodDelete, "/v1/containers")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, tracking.Containers())
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "reading_progress_percentage", Help: "test"})
	reg.MustRegister(gauge)
	gauge.Set(12.5)
	server := NewServer(newFakeTracking(), nil, reg, nil)

	rec := serve(server, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "reading_progress_percentage 12.5")
}

func TestServer_HTTPMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	httpMetrics, err := metrics.NewHTTP(reg)
	require.NoError(t, err)
	server := NewServer(newFakeTracking(), nil, reg, nil, WithHTTPMetrics(httpMetrics))

	require.Equal(t, http.StatusOK, serve(server, http.MethodGet, "/v1/state").Code)
	require.Equal(t, http.StatusNotFound, serve(server, http.MethodDelete, "/v1/containers/nope").Code)

	rec := serve(server, http.MethodGet, "/metrics")
	require.Contains(t, rec.Body.String(), `http_requests_total{code="200",method="GET"} 1`)
	require.Contains(t, rec.Body.String(), `http_requests_total{code="404",method="DELETE"} 1`)
	require.Contains(t, rec.Body.String(), `route="/v1/containers/{container_id}"`)
}

func TestServer_RescanRateLimited(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	httpMetrics, err := metrics.NewHTTP(reg)
	require.NoError(t, err)
	tracking := newFakeTracking()
	server := NewServer(tracking, nil, reg, nil,
		WithHTTPMetrics(httpMetrics),
		WithRescanLimiter(ratelimit.New(ratelimit.Config{RPS: 0.001, Burst: 1})),
	)

	require.Equal(t, http.StatusOK, serve(server, http.MethodPost, "/v1/containers/rescan").Code)
	rec := serve(server, http.MethodPost, "/v1/containers/rescan")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
	require.Equal(t, 1, tracking.resets)

	body := serve(server, http.MethodGet, "/metrics").Body.String()
	require.Contains(t, body, `http_requests_rate_limited_total{route="/v1/containers/rescan"} 1`)
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	tracking := newFakeTracking()
	tracking.panicOnState = true
	server := NewServer(tracking, nil, prometheus.NewRegistry(), nil)

	rec := serve(server, http.MethodGet, "/v1/state")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_StreamDisabledWithoutBroadcaster(t *testing.T) {
	t.Parallel()

	server := NewServer(newFakeTracking(), nil, prometheus.NewRegistry(), nil)
	rec := serve(server, http.MethodGet, "/v1/stream")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBroadcaster_StreamsUpdates(t *testing.T) {
	t.Parallel()

	broadcaster := NewBroadcaster(nil)
	server := NewServer(newFakeTracking(), broadcaster, prometheus.NewRegistry(), nil)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	first := sampleUpdate(1, 10)
	require.NoError(t, broadcaster.Consume(context.Background(), []progress.Update{first}))

	conn := dial(t, srv)
	require.Equal(t, first.Seq, readUpdate(t, conn).Seq, "latest update is replayed on connect")
	require.Eventually(t, func() bool { return broadcaster.Clients() == 1 }, time.Second, 5*time.Millisecond)

	second := sampleUpdate(2, 20)
	second.Transition = progress.TransitionSwitch
	require.NoError(t, broadcaster.Consume(context.Background(), []progress.Update{second}))
	got := readUpdate(t, conn)
	require.Equal(t, uint64(2), got.Seq)
	require.Equal(t, 20.0, got.State.ScrollPercentage)
	require.Equal(t, progress.TransitionSwitch, got.Transition)

	require.NoError(t, broadcaster.Close(context.Background()))
	require.Eventually(t, func() bool { return broadcaster.Clients() == 0 }, time.Second, 5*time.Millisecond)
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestBroadcaster_DropsDisconnectedClients(t *testing.T) {
	t.Parallel()

	broadcaster := NewBroadcaster(nil)
	srv := httptest.NewServer(broadcaster)
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return broadcaster.Clients() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return broadcaster.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBroadcaster_RejectsUnknownOrigin(t *testing.T) {
	t.Parallel()

	broadcaster := NewBroadcaster(nil, "https://blog.example")
	srv := httptest.NewServer(broadcaster)
	t.Cleanup(srv.Close)

	header := http.Header{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()
}

func serve(server *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	path := ""
	if _, ok := srv.Config.Handler.(*Broadcaster); !ok {
		path = "/v1/stream"
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, path), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) progress.Update {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var u progress.Update
	require.NoError(t, conn.ReadJSON(&u))
	return u
}

var testSession = uuid.MustParse("00000000-0000-0000-0000-00000000000a")

func sampleUpdate(seq uint64, pct float64) progress.Update {
	return progress.Update{
		Session: testSession,
		Seq:     seq,
		TS:      time.Unix(int64(seq), 0).UTC(),
		State:   viewport.ViewportState{ActiveContainerID: "0", Active: true, ScrollPercentage: pct},
	}
}

type fakeTracking struct {
	mu           sync.Mutex
	session      uuid.UUID
	state        viewport.ViewportState
	containers   []viewport.TrackedContainer
	resetCount   int
	resets       int
	panicOnState bool
}

func newFakeTracking() *fakeTracking {
	return &fakeTracking{session: testSession}
}

func (f *fakeTracking) Session() uuid.UUID { return f.session }

func (f *fakeTracking) State() viewport.ViewportState {
	if f.panicOnState {
		panic("state unavailable")
	}
	return f.state
}

func (f *fakeTracking) Containers() []viewport.TrackedContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]viewport.TrackedContainer(nil), f.containers...)
}

func (f *fakeTracking) Reset() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.resetCount
}

func (f *fakeTracking) Remove(id viewport.ContainerID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.containers {
		if c.ID == id {
			f.containers = append(f.containers[:i], f.containers[i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakeTracking) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers = nil
}
