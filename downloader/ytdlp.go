package downloader

import (
	"strings"
)

type State string

const (
	StateIdle        State = "idle"
	StateDownloading State = "downloading"
	StateMerging     State = "merging"
	StateFinished    State = "finished"
	StateError       State = "error"
)

// outputPrefix marks the line yt-dlp prints once the final file is in place.
const outputPrefix = "Output file: "

type YTDLP struct {
	// The current state of the process.
	State State `json:"state"`

	// The latest process output.
	LastOutput string `json:"last_output"`

	Percent   string `json:"percent"`
	TotalSize string `json:"total_size"`
	Speed     string `json:"speed"`
	ETA       string `json:"eta"`

	// OutputFile is the absolute path of the merged file.
	OutputFile string `json:"output_file"`
	// Error holds the last ERROR line, without its prefix.
	Error string `json:"error"`
}

func NewYTDLP() *YTDLP {
	return &YTDLP{
		State: StateIdle,
	}
}

// Progress returns a short human-readable progress string.
func (y *YTDLP) Progress() string {
	switch {
	case y.Percent == "":
		return ""
	case y.Speed == "":
		return y.Percent + " of " + y.TotalSize
	default:
		return y.Percent + " of " + y.TotalSize + " at " + y.Speed
	}
}

// ParseLine parses a line of output from the yt-dlp process.
//
// Sample output:
//
//	[youtube] Extracting URL: https://www.youtube.com/watch?v=dQw4w9WgXcQ
//	[download] Destination: dQw4w9WgXcQ.f136.mp4
//	[download]  42.3% of   12.34MiB at    1.23MiB/s ETA 00:10
//	[download] 100% of   12.34MiB in 00:00:05 at 2.41MiB/s
//	[Merger] Merging formats into "dQw4w9WgXcQ.mp4"
//	Output file: /work/tubetok__dQw4w9WgXcQ__123/dQw4w9WgXcQ.mp4
//	ERROR: [youtube] dQw4w9WgXcQ: Video unavailable
func (y *YTDLP) ParseLine(line string) {
	y.LastOutput = line

	switch {
	case strings.HasPrefix(line, outputPrefix):
		y.OutputFile = strings.TrimSpace(strings.TrimPrefix(line, outputPrefix))
		y.State = StateFinished
	case strings.HasPrefix(line, "ERROR: "):
		y.Error = strings.TrimPrefix(line, "ERROR: ")
		y.State = StateError
	case strings.HasPrefix(line, "[Merger]"):
		y.State = StateMerging
	case strings.HasPrefix(line, "[download]"):
		y.State = StateDownloading
		y.parseProgress(strings.Fields(strings.TrimPrefix(line, "[download]")))
	}
}

func (y *YTDLP) parseProgress(fields []string) {
	if len(fields) < 3 || !strings.HasSuffix(fields[0], "%") || fields[1] != "of" {
		return
	}
	rest := fields[2:]
	// Estimated sizes are printed as "~ 12.34MiB" or "~12.34MiB".
	if rest[0] == "~" && len(rest) > 1 {
		rest = rest[1:]
	}
	y.Percent = fields[0]
	y.TotalSize = strings.TrimPrefix(rest[0], "~")
	y.Speed, y.ETA = "", ""
	for i := 1; i+1 < len(rest); i++ {
		switch rest[i] {
		case "at":
			y.Speed = rest[i+1]
		case "ETA":
			y.ETA = rest[i+1]
		}
	}
}
