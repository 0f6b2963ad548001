package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tubetok/tubetok/util"
)

// HTTP posts the file as multipart/form-data to an upload service, for
// example one that drives a TikTok creator studio session under a browser
// profile. The service answers with JSON {"url": "..."}.
type HTTP struct {
	URL     string
	Profile string
	Token   string

	client *http.Client
}

func NewHTTP(url, profile, token string) Uploader {
	return &HTTP{
		URL:     url,
		Profile: profile,
		Token:   token,
		client:  &http.Client{Timeout: 30 * time.Minute},
	}
}

type httpResponse struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

func (h *HTTP) Upload(ctx context.Context, item *Item) (*UploadResult, error) {
	lg := util.GetLogger(ctx)

	f, err := os.Open(item.FilePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Stream the body instead of buffering whole videos in memory.
	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, h.Profile, item, f))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}

	lg.Debugf("(%s) uploading %s to %s", item.Video.ID, filepath.Base(item.FilePath), h.URL)
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body httpResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if body.Error != "" {
			return nil, fmt.Errorf("upload service returned %d: %s", resp.StatusCode, body.Error)
		}
		return nil, fmt.Errorf("upload service returned %d", resp.StatusCode)
	}

	return newResult(item, body.URL), nil
}

func writeForm(mw *multipart.Writer, profile string, item *Item, f io.Reader) error {
	fields := [][2]string{
		{"profile", profile},
		{"title", item.Video.Title},
		{"video_id", string(item.Video.ID)},
		{"source_url", item.Video.URL},
		{"channel_id", item.Video.ChannelID},
		{"channel_name", item.Video.ChannelName},
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", filepath.Base(item.FilePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return mw.Close()
}
