package scraper

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultFeedURL = "https://www.youtube.com/feeds/videos.xml"

// RSS reads the public channel feed. It needs no credential, so a rotator
// in front of it simply goes unused; it is a fallback for when no API quota
// is available at all.
type RSS struct {
	feedURL string
	client  *http.Client
}

var _ Scraper = &RSS{}

// rssFeed represents the YouTube RSS rssFeed.
type rssFeed struct {
	XMLName xml.Name   `xml:"feed"`
	Entries []rssEntry `xml:"entry"`
}

type rssEntry struct {
	XMLName xml.Name `xml:"entry"`
	VideoID string   `xml:"videoId"`
	Title   string   `xml:"title"`
}

func NewRSS(feedURL string) *RSS {
	if feedURL == "" {
		feedURL = defaultFeedURL
	}
	return &RSS{
		feedURL: feedURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Latest fetches the channel feed and returns its first (newest) entry.
func (r *RSS) Latest(ctx context.Context, channelID, _ string) Result {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		r.feedURL+"?channel_id="+url.QueryEscape(channelID),
		nil,
	)
	if err != nil {
		return Result{Outcome: TransientFailure, Err: err}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{Outcome: TransientFailure, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{
			Outcome:    TransientFailure,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("feed returned status %d", resp.StatusCode),
		}
	}

	feed := rssFeed{}
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return Result{Outcome: TransientFailure, Err: fmt.Errorf("decode feed: %w", err)}
	}
	if len(feed.Entries) == 0 {
		return Result{Outcome: Empty}
	}
	return foundOrEmpty(feed.Entries[0].VideoID, feed.Entries[0].Title)
}
