package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubetok/tubetok/config"
	"github.com/tubetok/tubetok/notifier"
	"github.com/tubetok/tubetok/task"
	"github.com/tubetok/tubetok/taskman"
	"github.com/tubetok/tubetok/uploader"
	"github.com/tubetok/tubetok/util/kv"
)

type fakeDownloader struct {
	err   error
	calls int
}

func (d *fakeDownloader) Download(ctx context.Context, video task.Video, dir string, progress func(string)) (string, error) {
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	progress("50.0% of 1.00MiB")
	p := filepath.Join(dir, string(video.ID)+".mp4")
	return p, os.WriteFile(p, []byte("full"), 0o644)
}

type fakeTrimmer struct {
	err error
}

func (t *fakeTrimmer) Trim(ctx context.Context, input string) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	out := strings.TrimSuffix(input, ".mp4") + "_65s.mp4"
	return out, os.WriteFile(out, []byte("trimmed"), 0o644)
}

type fakeUploader struct {
	mu      sync.Mutex
	err     error
	content []string
}

func (u *fakeUploader) Upload(ctx context.Context, item *uploader.Item) (*uploader.UploadResult, error) {
	if u.err != nil {
		return nil, u.err
	}
	data, err := os.ReadFile(item.FilePath)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.content = append(u.content, string(data))
	u.mu.Unlock()
	return &uploader.UploadResult{VideoID: item.Video.ID, PublicURL: "https://tiktok.example/" + string(item.Video.ID)}, nil
}

type fakeNotifier struct {
	results []*uploader.UploadResult
}

func (n *fakeNotifier) NotifyUploaded(ctx context.Context, res *uploader.UploadResult) error {
	n.results = append(n.results, res)
	return errors.New("webhook down")
}

type stepCounter map[string]int

func (s stepCounter) ObservePipeline(step string) { s[step]++ }

type fixture struct {
	p        *Pipeline
	tm       *taskman.TaskManager
	history  History
	down     *fakeDownloader
	trim     *fakeTrimmer
	up       *fakeUploader
	notifier *fakeNotifier
	steps    stepCounter
}

func newFixture(t *testing.T, trim bool) *fixture {
	t.Helper()
	f := &fixture{
		tm:       taskman.New(t.TempDir(), nil),
		history:  kv.NewMemoryKV[task.VideoID, Record](),
		down:     &fakeDownloader{},
		up:       &fakeUploader{},
		notifier: &fakeNotifier{},
		steps:    stepCounter{},
	}
	opts := Options{
		TaskManager: f.tm,
		History:     f.history,
		Downloader:  f.down,
		Uploaders:   []NamedUploader{{Name: "tiktok", Uploader: f.up}},
		Notifiers:   []notifier.Notifier{f.notifier},
		Channels: []config.Channel{
			{Id: "UCfiltered", Filters: []config.Regexp{config.Regexp(*regexp.MustCompile(`(?i)shorts`))}},
		},
		Observer: f.steps,
	}
	if trim {
		f.trim = &fakeTrimmer{}
		opts.Trimmer = f.trim
	}
	p, err := New(opts)
	require.NoError(t, err)
	f.p = p
	return f
}

func video(id, channel, title string) task.Video {
	return task.Video{ID: task.VideoID(id), ChannelID: channel, Title: title}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestHandleVideo(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.p.HandleVideo(context.Background(), video("abc", "UC1", "Hello")))

	assert.Equal(t, []string{"trimmed"}, f.up.content)
	tk, ok := f.tm.Get("abc")
	require.True(t, ok)
	assert.Equal(t, taskman.StepDone, tk.Step)
	assert.NoDirExists(t, tk.WorkingDirectory)
	assert.Equal(t, task.WatchURL("abc"), tk.Video.URL)

	var messages []string
	for _, l := range tk.Logs {
		messages = append(messages, l.Message)
	}
	joined := strings.Join(messages, "\n")
	assert.Contains(t, joined, "Uploaded to tiktok: https://tiktok.example/abc")
	assert.Contains(t, joined, "Timings: download")
	assert.Contains(t, joined, "trim")
	assert.Contains(t, joined, "total")

	rec, err := f.history.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://tiktok.example/abc"}, rec.URLs)
	assert.Equal(t, "Hello", rec.Title)

	require.Len(t, f.notifier.results, 1)
	assert.Equal(t, "tiktok", f.notifier.results[0].Uploader)
	assert.Equal(t, 1, f.steps["done"])
}

func TestHandleVideoDeduplicates(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.p.HandleVideo(ctx, video("abc", "UC1", "Hello")))
	assert.ErrorIs(t, f.p.HandleVideo(ctx, video("abc", "UC1", "Hello")), ErrAlreadyUploaded)
	assert.Equal(t, 1, f.down.calls)
	assert.Equal(t, []string{"full"}, f.up.content)
}

func TestHandleVideoInProgress(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.tm.Insert(video("abc", "UC1", "Hello"))
	require.NoError(t, err)

	err = f.p.HandleVideo(context.Background(), video("abc", "UC1", "Hello"))
	assert.ErrorIs(t, err, taskman.ErrTaskAlreadyExists)
	assert.Zero(t, f.down.calls)
}

func TestHandleVideoFilters(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.p.HandleVideo(ctx, video("v1", "UCfiltered", "A long video")))
	tk, _ := f.tm.Get("v1")
	assert.Equal(t, taskman.StepSkipped, tk.Step)
	assert.Zero(t, f.down.calls)

	require.NoError(t, f.p.HandleVideo(ctx, video("v2", "UCfiltered", "My #Shorts")))
	tk, _ = f.tm.Get("v2")
	assert.Equal(t, taskman.StepDone, tk.Step)
	assert.Equal(t, 1, f.steps["skipped"])

	assert.True(t, f.p.Accepts("UCother", "anything"))
}

func TestTrimFailureFallsBack(t *testing.T) {
	f := newFixture(t, true)
	f.trim.err = errors.New("ffmpeg exploded")

	require.NoError(t, f.p.HandleVideo(context.Background(), video("abc", "UC1", "Hello")))
	assert.Equal(t, []string{"full"}, f.up.content)
}

func TestDownloadFailure(t *testing.T) {
	f := newFixture(t, false)
	f.down.err = errors.New("video unavailable")

	err := f.p.HandleVideo(context.Background(), video("abc", "UC1", "Hello"))
	assert.ErrorContains(t, err, "video unavailable")

	tk, _ := f.tm.Get("abc")
	assert.Equal(t, taskman.StepErrored, tk.Step)
	seen, err := f.p.Seen(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 1, f.steps["errored"])

	// A failed video may be retried.
	f.down.err = nil
	require.NoError(t, f.p.HandleVideo(context.Background(), video("abc", "UC1", "Hello")))
	tk, _ = f.tm.Get("abc")
	assert.Equal(t, taskman.StepDone, tk.Step)
}

func TestUploadFailure(t *testing.T) {
	f := newFixture(t, false)
	f.up.err = errors.New("profile closed")

	err := f.p.HandleVideo(context.Background(), video("abc", "UC1", "Hello"))
	assert.ErrorContains(t, err, "upload to tiktok")
	tk, _ := f.tm.Get("abc")
	assert.Equal(t, taskman.StepErrored, tk.Step)
	assert.Empty(t, f.notifier.results)
	assert.DirExists(t, tk.WorkingDirectory)

	// Retrying replaces the failed task and its leftover files.
	f.up.err = nil
	require.NoError(t, f.p.HandleVideo(context.Background(), video("abc", "UC1", "Hello")))
	assert.NoDirExists(t, tk.WorkingDirectory)
}

func TestAlreadyUploadedIsDuplicate(t *testing.T) {
	assert.ErrorIs(t, ErrAlreadyUploaded, task.ErrDuplicate)
	assert.ErrorIs(t, taskman.ErrTaskAlreadyExists, task.ErrDuplicate)
}

func TestCancelled(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	f.down.err = context.Canceled
	cancel()

	err := f.p.HandleVideo(ctx, video("abc", "UC1", "Hello"))
	assert.ErrorIs(t, err, context.Canceled)
	tk, _ := f.tm.Get("abc")
	assert.Equal(t, taskman.StepCancelled, tk.Step)
}
