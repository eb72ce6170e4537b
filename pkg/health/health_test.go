package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func serve(h http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func runN(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func TestLiveEndpoint_OK(t *testing.T) {
	h := New()
	h.Add(Check{Name: "goroutines", Func: GoroutineCountCheck(1 << 20)})

	rec := serve(h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCheck_Thresholds(t *testing.T) {
	h := New()
	h.Add(Check{Name: "storage", Func: failing("connection refused")})
	c := h.checks[0]

	runN(c, 2)
	assert.Equal(t, http.StatusOK, serve(h.LiveEndpoint).Code, "below threshold")

	runN(c, 1)
	rec := serve(h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"storage":"connection refused"}}`, rec.Body.String())

	c.Func = func(context.Context) error { return nil }
	runN(c, 1)
	assert.Equal(t, http.StatusOK, serve(h.LiveEndpoint).Code)
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.Add(Check{Name: "upstream", Kind: Readiness, Func: failing("down"), FailureThreshold: 1})
	h.Add(Check{Name: "live", Func: failing("ignored for readiness"), FailureThreshold: 1})

	rec := serve(h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "service is not ready")

	h.SetReady(true)
	assert.True(t, h.IsReady())
	assert.Equal(t, http.StatusOK, serve(h.ReadyEndpoint).Code)

	runN(h.checks[0], 1)
	runN(h.checks[1], 1)
	assert.False(t, h.IsReady())
	rec = serve(h.ReadyEndpoint)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"upstream":"down"}}`, rec.Body.String())
}

func TestStartStop(t *testing.T) {
	h := New()
	h.Add(Check{Name: "storage", Kind: Readiness, FailureThreshold: 1, Func: PingCheck(pingerFunc(func(context.Context) error {
		return errors.New("no route")
	}))})
	h.SetReady(true)

	h.Start(context.Background(), 10*time.Millisecond)
	defer h.Stop()

	require.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)
	h.Stop()
	h.Stop()
}

func TestHTTPCheck(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	check := HTTPCheck(srv.Client(), srv.URL)
	require.NoError(t, check(context.Background()))

	status.Store(http.StatusBadGateway)
	require.Error(t, check(context.Background()))

	srv.Close()
	require.Error(t, check(context.Background()))
}
