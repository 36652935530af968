package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationLifecycle(t *testing.T) {
	c := New()

	c.GenerationStarted("new")
	c.GenerationStarted("resumed")
	c.PollPending()
	c.PollPending()
	c.GenerationFinished("succeeded", 3)
	c.SurfaceReleased()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationsStarted.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationsStarted.WithLabelValues("resumed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.pollQueries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationsDone.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activeSurfaces))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	c := New()
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/v1/generations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/generations/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/v1/generations/{id}", "404")))
}

func TestNilCollectorIsInert(t *testing.T) {
	var c *Collector
	c.GenerationStarted("new")
	c.PollPending()
	c.GenerationFinished("failed", 1)
	c.SurfaceReleased()
	assert.Nil(t, c.Registry())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	called := false
	c.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
