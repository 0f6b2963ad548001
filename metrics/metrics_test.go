package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubetok/tubetok/scraper"
)

func TestObservers(t *testing.T) {
	m := New()
	m.ObservePoll("UC1", scraper.Found)
	m.ObservePoll("UC1", scraper.Found)
	m.ObservePoll("UC1", scraper.AuthFailure)
	m.ObserveRotation("UC1")
	m.ObserveNewVideo("UC2")
	m.ObserveSinkError("UC2")
	m.ObservePipeline("done")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pollsTotal.WithLabelValues("UC1", "found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pollsTotal.WithLabelValues("UC1", "auth_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rotationsTotal.WithLabelValues("UC1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.newVideosTotal.WithLabelValues("UC2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sinkErrorsTotal.WithLabelValues("UC2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pipelineTotal.WithLabelValues("done")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObservePoll("UC1", scraper.Empty)

	srv := httptest.NewServer(m.Handler(func() { m.SetActiveChannels(3) }))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Contains(t, string(body), `tubetok_polls_total{channel="UC1",outcome="empty"} 1`)
	assert.Contains(t, string(body), "tubetok_active_channels 3")
}

func TestRequestMiddleware(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal))
}
