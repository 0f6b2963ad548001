package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tubetok/tubetok/uploader"
	"github.com/tubetok/tubetok/util"
)

type Discord struct {
	WebhookURL string

	client *http.Client
}

func NewDiscord(webhookURL string) Notifier {
	return &Discord{
		WebhookURL: webhookURL,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Fields      []discordField `json:"fields"`
}

type discordMessage struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds"`
}

func (d *Discord) NotifyUploaded(ctx context.Context, n *uploader.UploadResult) error {
	lg := util.GetLogger(ctx)
	lg.Debugf("(%s) notifying discord", n.VideoID)

	message := discordMessage{
		Embeds: []discordEmbed{
			{
				Title:       "Video uploaded",
				Description: fmt.Sprintf("[%s](%s)", n.Title, n.PublicURL),
				Fields: []discordField{
					{
						Name:   "Source",
						Value:  fmt.Sprintf("[%s](https://youtu.be/%s)", n.VideoID, n.VideoID),
						Inline: true,
					},
					{
						Name:   "Channel",
						Value:  fmt.Sprintf("[%s](https://www.youtube.com/channel/%s)", n.ChannelName, n.ChannelID),
						Inline: true,
					},
				},
			},
		},
	}
	if n.Uploader != "" {
		message.Embeds[0].Fields = append(message.Embeds[0].Fields, discordField{
			Name: "Uploader", Value: n.Uploader, Inline: true,
		})
	}

	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	lg.Debugf("(%s) discord responded %s", n.VideoID, resp.Status)
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discord returned status code %d", resp.StatusCode)
	}

	return nil
}
