package task_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubetok/tubetok/pubsub"
	"github.com/tubetok/tubetok/task"
)

func TestWatchURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=vid42", task.WatchURL("vid42"))
}

func TestParseVideoID(t *testing.T) {
	cases := map[string]task.VideoID{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":           "dQw4w9WgXcQ",
		"https://www.youtube.com/watch?feature=x&v=dQw4w9WgXcQ": "dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/abcdefghijk":            "abcdefghijk",
		"https://youtu.be/A1b2C3d4E5_?t=10":                     "A1b2C3d4E5_",
	}
	for url, want := range cases {
		got, ok := task.ParseVideoID(url)
		assert.True(t, ok, url)
		assert.Equal(t, want, got, url)
	}

	_, ok := task.ParseVideoID("https://example.com/nothing")
	assert.False(t, ok)
}

func TestReporterPublishesStatus(t *testing.T) {
	ps := pubsub.New[task.Status](4)
	ch, err := ps.Subscribe(task.TopicStatus)
	require.NoError(t, err)

	task.NewReporter(ps).Report("UC1", "baseline set = A", "https://example.com")

	st := <-ch
	assert.Equal(t, "UC1", st.ChannelID)
	assert.Equal(t, "baseline set = A", st.Message)
	assert.Equal(t, "https://example.com", st.Link)
	assert.False(t, st.Time.IsZero())
}
