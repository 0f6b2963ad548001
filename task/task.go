package task

import (
	"errors"
	"regexp"
	"time"

	"github.com/tubetok/tubetok/pubsub"
)

// WatchURLPrefix is prepended to a video ID to build its canonical URL.
const WatchURLPrefix = "https://www.youtube.com/watch?v="

// TopicStatus is the pubsub topic carrying human-readable status updates.
const TopicStatus = "status"

// ErrDuplicate is wrapped by errors that mean a video was already handled or
// is being handled right now.
var ErrDuplicate = errors.New("duplicate video")

type VideoID string
type StatusPubSub = pubsub.PubSub[Status]

// Video is a newly published upload detected on a watched channel.
type Video struct {
	// ID is the YouTube video ID.
	// Example: "dQw4w9WgXcQ"
	ID VideoID `json:"id"`
	// Title is the video title at the time it was detected.
	Title string `json:"title"`
	// ChannelID is the ID of the channel the video is from.
	// Example: "UC-lHJZR3Gqxm24_Vd_AJ5Yw"
	ChannelID string `json:"channel_id"`
	// ChannelName is the configured display name of the channel.
	ChannelName string `json:"channel_name"`
	// URL is the canonical watch URL, see WatchURL.
	URL string `json:"url"`
}

// Status is an observational message meant for a log pane or UI. Link is
// optional and usually holds a video URL.
type Status struct {
	Time      time.Time `json:"time"`
	ChannelID string    `json:"channel_id"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(id VideoID) string {
	return WatchURLPrefix + string(id)
}

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/shorts/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`[?&]v=([0-9A-Za-z_-]{11})`),
}

// ParseVideoID extracts the video ID from watch, shorts and youtu.be URLs.
// It returns false when no ID can be found.
func ParseVideoID(url string) (VideoID, bool) {
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return VideoID(m[1]), true
		}
	}
	return "", false
}
