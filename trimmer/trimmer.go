// Package trimmer cuts a downloaded video down to its opening seconds with
// ffmpeg, copying streams instead of re-encoding.
package trimmer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tubetok/tubetok/config"
	"github.com/tubetok/tubetok/util"
)

type Trimmer struct {
	execPath string
	duration time.Duration

	commandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func New(c config.TrimConfig) *Trimmer {
	execPath := c.ExecPath
	if execPath == "" {
		execPath = "ffmpeg"
	}
	d := c.Duration.Std()
	if d <= 0 {
		d = 65 * time.Second
	}
	return &Trimmer{
		execPath:       execPath,
		duration:       d,
		commandContext: exec.CommandContext,
	}
}

// OutputPath returns where Trim writes the trimmed copy of input, e.g.
// "video.mp4" becomes "video_65s.mp4".
func (t *Trimmer) OutputPath(input string) string {
	ext := filepath.Ext(input)
	return fmt.Sprintf("%s_%ds%s", strings.TrimSuffix(input, ext), int(t.duration.Seconds()), ext)
}

func (t *Trimmer) Args(input, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-t", strconv.FormatFloat(t.duration.Seconds(), 'f', -1, 64),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		output,
	}
}

// Trim writes the first part of input to a new file next to it and returns
// that file's path. input is left untouched.
func (t *Trimmer) Trim(ctx context.Context, input string) (string, error) {
	lg := util.GetLogger(ctx)

	if _, err := os.Stat(input); err != nil {
		return "", err
	}
	output := t.OutputPath(input)

	var stderr strings.Builder
	cmd := t.commandContext(ctx, t.execPath, t.Args(input, output)...)
	cmd.Stderr = &stderr
	lg.Debugf("starting ffmpeg with command %#v", cmd.Args)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[len(msg)-200:]
		}
		return "", fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
	}
	if _, err := os.Stat(output); err != nil {
		return "", fmt.Errorf("ffmpeg did not create %s: %w", output, err)
	}
	return output, nil
}
