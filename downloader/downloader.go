// Package downloader fetches a video into a working directory with yt-dlp.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/tubetok/tubetok/config"
	"github.com/tubetok/tubetok/task"
	"github.com/tubetok/tubetok/util"
)

// ErrNoOutput is returned when yt-dlp exits cleanly without reporting a file.
var ErrNoOutput = errors.New("yt-dlp did not report an output file")

type Downloader struct {
	execPath  string
	maxHeight int
	flags     []string

	// commandContext is replaced in tests.
	commandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func New(c config.DownloadConfig) *Downloader {
	execPath := c.ExecPath
	if execPath == "" {
		execPath = "yt-dlp"
	}
	return &Downloader{
		execPath:       execPath,
		maxHeight:      c.MaxHeight,
		flags:          c.Flags,
		commandContext: exec.CommandContext,
	}
}

// Format returns the yt-dlp format selector for the configured height limit.
func (d *Downloader) Format() string {
	if d.maxHeight <= 0 {
		return "bv*+ba/b"
	}
	return fmt.Sprintf("bv*[height<=%d]+ba/b[height<=%d]/b", d.maxHeight, d.maxHeight)
}

// Args returns the yt-dlp arguments used to download url.
func (d *Downloader) Args(url string) []string {
	args := []string{
		"--newline", "--progress", "--no-playlist",
		"--print", "after_move:" + outputPrefix + "%(filepath)s",
		"-f", d.Format(),
		"--merge-output-format", "mp4",
		"-o", "%(id)s.%(ext)s",
	}
	args = append(args, d.flags...)
	return append(args, url)
}

// Download runs yt-dlp in dir and returns the path of the downloaded file.
// progress, if non-nil, is called at most once a second with a short
// description of how far along the download is.
func (d *Downloader) Download(ctx context.Context, video task.Video, dir string, progress func(string)) (string, error) {
	lg := util.GetLogger(ctx)

	url := video.URL
	if url == "" {
		url = task.WatchURL(video.ID)
	}
	cmd := d.commandContext(ctx, d.execPath, d.Args(url)...)
	cmd.Dir = dir
	lg.Debugf("(%s) starting yt-dlp with command %#v", video.ID, cmd.Args)

	yt := NewYTDLP()
	db := util.NewDebounce(time.Second)
	cw := util.NewCallbackWriter(func(line string) {
		yt.ParseLine(line)
		if progress != nil && yt.State == StateDownloading && db.Check() {
			progress(yt.Progress())
		}
	})
	cmd.Stdout = cw
	cmd.Stderr = cw

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("yt-dlp failed to start: %w", err)
	}
	err := cmd.Wait()
	cw.Close()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		if yt.Error != "" {
			return "", fmt.Errorf("yt-dlp failed: %w: %s", err, yt.Error)
		}
		return "", fmt.Errorf("yt-dlp failed: %w", err)
	}
	if yt.OutputFile == "" {
		return "", ErrNoOutput
	}
	if _, err := os.Stat(yt.OutputFile); err != nil {
		return "", fmt.Errorf("downloaded file is missing: %w", err)
	}

	lg.Infof("(%s) yt-dlp finished: %s", video.ID, yt.OutputFile)
	return yt.OutputFile, nil
}
