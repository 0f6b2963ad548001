// Package uploader publishes finished video files. Each implementation hands
// the file to one destination and reports where it can be found.
package uploader

import (
	"context"
	"fmt"

	"github.com/tubetok/tubetok/config"
	"github.com/tubetok/tubetok/task"
)

// Item is a file ready to be published.
type Item struct {
	Video    task.Video
	FilePath string
}

type Uploader interface {
	Upload(ctx context.Context, item *Item) (*UploadResult, error)
}

type UploadResult struct {
	Uploader    string       `json:"uploader"`
	Title       string       `json:"title"`
	VideoID     task.VideoID `json:"video_id"`
	PublicURL   string       `json:"public_url"`
	ChannelID   string       `json:"channel_id"`
	ChannelName string       `json:"channel_name"`
}

func newResult(item *Item, publicURL string) *UploadResult {
	return &UploadResult{
		Title:       item.Video.Title,
		VideoID:     item.Video.ID,
		PublicURL:   publicURL,
		ChannelID:   item.Video.ChannelID,
		ChannelName: item.Video.ChannelName,
	}
}

func NewUploader(u config.ModuleConfig) (Uploader, error) {
	switch u.Type {
	case "local":
		path, ok := u.Config["path"]
		if !ok {
			return nil, fmt.Errorf("local uploader requires path")
		}
		baseURL, ok := u.Config["base_url"]
		if !ok {
			return nil, fmt.Errorf("local uploader requires base_url")
		}
		return NewLocal(path, baseURL), nil
	case "http":
		url, ok := u.Config["url"]
		if !ok {
			return nil, fmt.Errorf("http uploader requires url")
		}
		return NewHTTP(url, u.Config["profile"], u.Config["token"]), nil
	default:
		return nil, fmt.Errorf("unknown uploader type: %s", u.Type)
	}
}
