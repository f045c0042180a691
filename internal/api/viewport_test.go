package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeViewport struct {
	mu      sync.Mutex
	scrolls []float64
	sizes   [][2]int
	err     error
}

func (f *fakeViewport) ScrollTo(_ context.Context, y float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.scrolls = append(f.scrolls, y)
	return nil
}

func (f *fakeViewport) Resize(_ context.Context, width, height int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sizes = append(f.sizes, [2]int{width, height})
	return nil
}

func serveBody(server *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_ViewportRoutes(t *testing.T) {
	t.Parallel()

	vp := &fakeViewport{}
	server := NewServer(newFakeTracking(), nil, prometheus.NewRegistry(), nil, WithViewport(vp))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "scroll", method: http.MethodPost, path: "/v1/viewport/scroll", body: `{"y":640}`, want: http.StatusAccepted},
		{name: "scroll to top", method: http.MethodPost, path: "/v1/viewport/scroll", body: `{"y":0}`, want: http.StatusAccepted},
		{name: "scroll missing y", method: http.MethodPost, path: "/v1/viewport/scroll", body: `{}`, want: http.StatusBadRequest},
		{name: "scroll negative", method: http.MethodPost, path: "/v1/viewport/scroll", body: `{"y":-1}`, want: http.StatusBadRequest},
		{name: "scroll unknown field", method: http.MethodPost, path: "/v1/viewport/scroll", body: `{"x":1,"y":2}`, want: http.StatusBadRequest},
		{name: "resize", method: http.MethodPut, path: "/v1/viewport", body: `{"width":800,"height":600}`, want: http.StatusAccepted},
		{name: "resize zero", method: http.MethodPut, path: "/v1/viewport", body: `{"width":800}`, want: http.StatusBadRequest},
		{name: "resize bad json", method: http.MethodPut, path: "/v1/viewport", body: `{`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := serveBody(server, tt.method, tt.path, tt.body)
		require.Equal(t, tt.want, rec.Code, tt.name)
	}

	require.Equal(t, []float64{640, 0}, vp.scrolls)
	require.Equal(t, [][2]int{{800, 600}}, vp.sizes)
}

func TestServer_ViewportFailures(t *testing.T) {
	t.Parallel()

	server := NewServer(newFakeTracking(), nil, prometheus.NewRegistry(), nil,
		WithViewport(&fakeViewport{err: errors.New("page closed")}))

	require.Equal(t, http.StatusBadGateway, serveBody(server, http.MethodPost, "/v1/viewport/scroll", `{"y":10}`).Code)
	require.Equal(t, http.StatusBadGateway, serveBody(server, http.MethodPut, "/v1/viewport", `{"width":1,"height":1}`).Code)
}

func TestServer_ViewportRoutesDisabled(t *testing.T) {
	t.Parallel()

	server := NewServer(newFakeTracking(), nil, prometheus.NewRegistry(), nil)
	rec := serveBody(server, http.MethodPost, "/v1/viewport/scroll", `{"y":10}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
