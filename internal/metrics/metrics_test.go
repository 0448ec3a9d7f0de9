package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/kpm"
)

func TestObserveDispatch(t *testing.T) {
	m := New()
	m.ObserveDispatch(kpm.Record{Command: "num", Errno: "ok", Duration: time.Millisecond})
	m.ObserveDispatch(kpm.Record{Command: "num", Errno: "ok", Duration: time.Millisecond})
	m.ObserveDispatch(kpm.Record{Command: "list", Errno: "ENOBUFS", RelayError: "bad address"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DispatchTotal.WithLabelValues("num", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchTotal.WithLabelValues("list", "ENOBUFS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayFailures))
}

func TestHookGauge(t *testing.T) {
	m := New()
	reg := hook.NewRegistry()
	m.SeedHooks(reg.Status())
	reg.OnChange(m.HookChanged)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.HooksAttached.WithLabelValues("load")))
	require.NoError(t, reg.AttachBackend("b", noopBackend{}, hook.PointLoad))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HooksAttached.WithLabelValues("load")))
	reg.Detach(hook.PointLoad)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HooksAttached.WithLabelValues("load")))
}

func TestHandlerAndMiddleware(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/things/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/things/7", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/v1/things/{id}", "418")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "kpmd_http_requests_total"))
}
