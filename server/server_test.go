package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubetok/tubetok/metrics"
	"github.com/tubetok/tubetok/task"
	"github.com/tubetok/tubetok/taskman"
	"github.com/tubetok/tubetok/watcher"
)

type fakeChannels struct {
	mu      sync.Mutex
	stopped map[string]bool
}

func (f *fakeChannels) Channels() []watcher.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := watcher.StateWatching
	if f.stopped["UC1"] {
		state = watcher.StateStopped
	}
	return []watcher.Snapshot{{ChannelID: "UC1", ChannelName: "one", State: state}}
}

func (f *fakeChannels) Stop(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != "UC1" {
		return watcher.ErrUnknownChannel
	}
	if f.stopped["UC1"] {
		return watcher.ErrNotRunning
	}
	f.stopped["UC1"] = true
	return nil
}

func (f *fakeChannels) Start(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != "UC1" {
		return watcher.ErrUnknownChannel
	}
	if !f.stopped["UC1"] {
		return watcher.ErrChannelRunning
	}
	f.stopped["UC1"] = false
	return nil
}

type fakeSubmitter struct {
	seen    map[task.VideoID]bool
	handled chan task.Video
}

func (f *fakeSubmitter) Seen(ctx context.Context, id task.VideoID) (bool, error) {
	return f.seen[id], nil
}

func (f *fakeSubmitter) HandleVideo(ctx context.Context, v task.Video) error {
	f.handled <- v
	return nil
}

type fixture struct {
	srv      *httptest.Server
	tm       *taskman.TaskManager
	channels *fakeChannels
	sub      *fakeSubmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tm:       taskman.New(t.TempDir(), nil),
		channels: &fakeChannels{stopped: map[string]bool{}},
		sub:      &fakeSubmitter{seen: map[task.VideoID]bool{"dQw4w9WgXcQ": true}, handled: make(chan task.Video, 1)},
	}
	s := New(Options{Channels: f.channels, Tasks: f.tm, Pipeline: f.sub, Metrics: metrics.New()})
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestChannels(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/channels", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var snaps []watcher.Snapshot
	require.NoError(t, json.Unmarshal(body, &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, watcher.StateWatching, snaps[0].State)

	resp, _ = f.do(t, http.MethodPost, "/channels/UC1/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/channels/UC1/stop", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/channels/UC1/stop", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/channels/UC1/start", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/channels/nope/stop", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTasks(t *testing.T) {
	f := newFixture(t)
	_, err := f.tm.Insert(task.Video{ID: "abcdefghijk", Title: "Hello"})
	require.NoError(t, err)

	resp, body := f.do(t, http.MethodGet, "/tasks", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var tasks []taskman.Task
	require.NoError(t, json.Unmarshal(body, &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, taskman.StepQueued, tasks[0].Step)

	resp, _ = f.do(t, http.MethodGet, "/tasks/abcdefghijk", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitVideo(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/videos", map[string]string{"url": "https://youtu.be/A1b2C3d4E5_", "channel_id": "UC1"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	select {
	case v := <-f.sub.handled:
		assert.Equal(t, task.VideoID("A1b2C3d4E5_"), v.ID)
		assert.Equal(t, task.WatchURL("A1b2C3d4E5_"), v.URL)
		assert.Equal(t, "UC1", v.ChannelID)
	case <-time.After(time.Second):
		t.Fatal("video was not handed to the pipeline")
	}

	resp, _ = f.do(t, http.MethodPost, "/videos", map[string]string{"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/videos", map[string]string{"url": "https://example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/videos", "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/channels", nil)

	resp, body := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tubetok_active_channels 1")
	assert.Contains(t, string(body), "tubetok_http_requests_total")
}

func TestRunShutsDown(t *testing.T) {
	s := New(Options{Channels: &fakeChannels{stopped: map[string]bool{}}, Tasks: taskman.New(t.TempDir(), nil)})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
