// Package scraper looks up the most recent upload of a YouTube channel. Every
// lookup is a single request with a single credential; failures are
// classified once, here, so callers only ever switch on Outcome.
package scraper

import (
	"context"
	"fmt"

	"github.com/tubetok/tubetok/config"
)

// Outcome tags a Result.
type Outcome int

const (
	// Found means the channel's latest video was returned.
	Found Outcome = iota
	// Empty means the request succeeded but returned no video.
	Empty
	// AuthFailure means the credential was rejected or is out of quota.
	AuthFailure
	// TransientFailure covers network errors, malformed responses and any
	// other server error. The same credential may be retried.
	TransientFailure
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Empty:
		return "empty"
	case AuthFailure:
		return "auth_failure"
	case TransientFailure:
		return "transient_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Video struct {
	ID    string
	Title string
}

// Result is the classified answer of one lookup.
type Result struct {
	Outcome Outcome
	// Video is set when Outcome is Found.
	Video Video
	// StatusCode is the HTTP status of a failed request, if there was one.
	StatusCode int
	// Err is the underlying error for failures.
	Err error
}

// Scraper is an interface for modules that look up the latest video of a
// given YouTube channel. Implementations must be safe for concurrent use and
// must not retry internally.
type Scraper interface {
	Latest(ctx context.Context, channelID, credential string) Result
}

// Func adapts a function to the Scraper interface.
type Func func(ctx context.Context, channelID, credential string) Result

func (f Func) Latest(ctx context.Context, channelID, credential string) Result {
	return f(ctx, channelID, credential)
}

func foundOrEmpty(id, title string) Result {
	if id == "" {
		return Result{Outcome: Empty}
	}
	return Result{Outcome: Found, Video: Video{ID: id, Title: title}}
}

func New(c config.ScraperConfig) (Scraper, error) {
	var s Scraper
	switch c.Type {
	case "youtube":
		s = NewYouTube(c.Endpoint)
	case "rss":
		s = NewRSS(c.Endpoint)
	default:
		return nil, fmt.Errorf("unknown scraper type: %s", c.Type)
	}
	if c.RateLimit > 0 {
		s = Limited(s, c.RateLimit, c.Burst)
	}
	return s, nil
}
