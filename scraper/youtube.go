package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTube looks up the latest upload through the YouTube Data API v3
// search endpoint. The credential is an API key.
type YouTube struct {
	endpoint string

	mu       sync.Mutex
	services map[string]*youtube.Service
}

var _ Scraper = &YouTube{}

// NewYouTube returns a YouTube scraper. endpoint overrides the API base URL
// and may be empty.
func NewYouTube(endpoint string) *YouTube {
	return &YouTube{
		endpoint: endpoint,
		services: make(map[string]*youtube.Service),
	}
}

// service returns the client bound to apiKey, creating it on first use.
func (y *YouTube) service(ctx context.Context, apiKey string) (*youtube.Service, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	if svc, ok := y.services[apiKey]; ok {
		return svc, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if y.endpoint != "" {
		opts = append(opts, option.WithEndpoint(y.endpoint))
	}
	// The service outlives any single poll, so it must not inherit ctx.
	svc, err := youtube.NewService(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	y.services[apiKey] = svc
	return svc, nil
}

// Latest requests exactly one search result ordered by publish date.
func (y *YouTube) Latest(ctx context.Context, channelID, credential string) Result {
	svc, err := y.service(ctx, credential)
	if err != nil {
		return Result{Outcome: TransientFailure, Err: err}
	}

	resp, err := svc.Search.List([]string{"snippet"}).
		ChannelId(channelID).
		Type("video").
		Order("date").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return classify(err)
	}

	if len(resp.Items) == 0 || resp.Items[0].Id == nil {
		return Result{Outcome: Empty}
	}
	item := resp.Items[0]
	title := ""
	if item.Snippet != nil {
		title = item.Snippet.Title
	}
	return foundOrEmpty(item.Id.VideoId, title)
}

// classify maps API errors onto outcomes: 400, 401 and 403 are credential
// problems (invalid key, quota exceeded, key restrictions), everything else
// is transient.
func classify(err error) Result {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return Result{Outcome: AuthFailure, StatusCode: gerr.Code, Err: err}
		}
		return Result{Outcome: TransientFailure, StatusCode: gerr.Code, Err: err}
	}
	return Result{Outcome: TransientFailure, Err: err}
}
