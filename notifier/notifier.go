// Package notifier announces finished uploads.
package notifier

import (
	"context"
	"fmt"

	"github.com/tubetok/tubetok/config"
	"github.com/tubetok/tubetok/uploader"
)

type Notifier interface {
	NotifyUploaded(ctx context.Context, notification *uploader.UploadResult) error
}

func NewNotifier(n config.NotifierConfig) (Notifier, error) {
	switch n.Type {
	case "discord":
		webhookURL, ok := n.Config["webhook_url"]
		if !ok {
			return nil, fmt.Errorf("webhook_url is not set")
		}
		return NewDiscord(webhookURL), nil
	default:
		return nil, fmt.Errorf("unknown notifier type: %s", n.Type)
	}
}
