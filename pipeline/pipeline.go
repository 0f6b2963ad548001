// Package pipeline turns a detected video into uploads: it downloads the
// video, optionally trims it, hands it to every uploader and notifier, and
// remembers it so it is never uploaded twice.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tubetok/tubetok/config"
	"github.com/tubetok/tubetok/logger"
	"github.com/tubetok/tubetok/notifier"
	"github.com/tubetok/tubetok/task"
	"github.com/tubetok/tubetok/taskman"
	"github.com/tubetok/tubetok/uploader"
	"github.com/tubetok/tubetok/util/kv"
)

var ErrAlreadyUploaded = fmt.Errorf("video has already been uploaded: %w", task.ErrDuplicate)

type Downloader interface {
	Download(ctx context.Context, video task.Video, dir string, progress func(string)) (string, error)
}

type Trimmer interface {
	Trim(ctx context.Context, input string) (string, error)
}

type Reporter interface {
	Report(channelID, message, link string)
}

type Observer interface {
	ObservePipeline(step string)
}

// NamedUploader pairs an uploader with its configured name.
type NamedUploader struct {
	Name     string
	Uploader uploader.Uploader
}

// Record is what the history keeps about an uploaded video.
type Record struct {
	Title      string    `json:"title"`
	ChannelID  string    `json:"channel_id"`
	URLs       []string  `json:"urls"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type History = kv.KV[task.VideoID, Record]

type Options struct {
	TaskManager *taskman.TaskManager
	History     History
	// HistoryTTL of zero keeps records forever.
	HistoryTTL time.Duration
	Downloader Downloader
	// Trimmer is nil when trimming is disabled.
	Trimmer   Trimmer
	Uploaders []NamedUploader
	Notifiers []notifier.Notifier
	// Channels supplies per-channel title filters.
	Channels []config.Channel
	Reporter Reporter
	Observer Observer
	Logger   logger.Logger
}

type Pipeline struct {
	tm         *taskman.TaskManager
	history    History
	historyTTL time.Duration
	downloader Downloader
	trimmer    Trimmer
	uploaders  []NamedUploader
	notifiers  []notifier.Notifier
	filters    map[string][]config.Regexp
	reporter   Reporter
	observer   Observer
	lg         logger.Logger
}

func New(o Options) (*Pipeline, error) {
	if o.TaskManager == nil || o.History == nil || o.Downloader == nil {
		return nil, errors.New("pipeline: task manager, history and downloader are required")
	}
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	filters := make(map[string][]config.Regexp)
	for _, ch := range o.Channels {
		if len(ch.Filters) > 0 {
			filters[ch.Id] = ch.Filters
		}
	}
	return &Pipeline{
		tm:         o.TaskManager,
		history:    o.History,
		historyTTL: o.HistoryTTL,
		downloader: o.Downloader,
		trimmer:    o.Trimmer,
		uploaders:  o.Uploaders,
		notifiers:  o.Notifiers,
		filters:    filters,
		reporter:   o.Reporter,
		observer:   o.Observer,
		lg:         o.Logger,
	}, nil
}

// Accepts reports whether the title passes the channel's filters. Channels
// without filters accept everything.
func (p *Pipeline) Accepts(channelID, title string) bool {
	filters, ok := p.filters[channelID]
	if !ok {
		return true
	}
	for i := range filters {
		if filters[i].MatchString(title) {
			return true
		}
	}
	return false
}

// Seen reports whether the video has already been uploaded.
func (p *Pipeline) Seen(ctx context.Context, id task.VideoID) (bool, error) {
	_, err := p.history.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, kv.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// HandleVideo runs the whole pipeline for one video and returns when it is
// done. A video that was uploaded before yields ErrAlreadyUploaded; one that
// is already in progress yields taskman.ErrTaskAlreadyExists.
func (p *Pipeline) HandleVideo(ctx context.Context, video task.Video) error {
	if video.URL == "" {
		video.URL = task.WatchURL(video.ID)
	}

	seen, err := p.Seen(ctx, video.ID)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if seen {
		p.report(video, "already uploaded, skipping")
		return ErrAlreadyUploaded
	}

	tk, err := p.insert(video)
	if err != nil {
		return err
	}

	if !p.Accepts(video.ChannelID, video.Title) {
		p.tm.LogEvent(video.ID, "Title does not match any filter")
		p.finish(video, taskman.StepSkipped)
		p.report(video, fmt.Sprintf("skipped %q: title does not match any filter", video.Title))
		return nil
	}

	if err := p.run(ctx, tk); err != nil {
		if ctx.Err() != nil {
			p.finish(video, taskman.StepCancelled)
			return ctx.Err()
		}
		p.tm.LogEvent(video.ID, err.Error())
		p.finish(video, taskman.StepErrored)
		p.report(video, "failed: "+err.Error())
		return err
	}
	return nil
}

// insert registers the task, replacing an earlier attempt that failed or was
// cancelled.
func (p *Pipeline) insert(video task.Video) (taskman.Task, error) {
	tk, err := p.tm.Insert(video)
	if !errors.Is(err, taskman.ErrTaskAlreadyExists) {
		return tk, err
	}
	prev, ok := p.tm.Get(video.ID)
	if ok && (prev.Step == taskman.StepErrored || prev.Step == taskman.StepCancelled) {
		p.tm.Remove(video.ID)
		return p.tm.Insert(video)
	}
	return tk, err
}

func (p *Pipeline) run(ctx context.Context, tk taskman.Task) error {
	video := tk.Video
	var timings []string
	start := time.Now()
	lap := func(name string, since time.Time) {
		timings = append(timings, fmt.Sprintf("%s %s", name, time.Since(since).Round(time.Millisecond)))
	}

	p.tm.UpdateStep(video.ID, taskman.StepDownloading)
	p.report(video, "downloading")
	stepStart := time.Now()
	path, err := p.downloader.Download(ctx, video, tk.WorkingDirectory, func(progress string) {
		p.tm.UpdateProgress(video.ID, progress)
	})
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	lap("download", stepStart)

	if p.trimmer != nil {
		p.tm.UpdateStep(video.ID, taskman.StepTrimming)
		stepStart = time.Now()
		trimmed, err := p.trimmer.Trim(ctx, path)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			p.lg.Warnf("(%s) trim failed, uploading the full video: %v", video.ID, err)
			p.tm.LogEvent(video.ID, "Trim failed, using the full video: "+err.Error())
		default:
			path = trimmed
		}
		lap("trim", stepStart)
	}

	p.tm.UpdateStep(video.ID, taskman.StepUploading)
	p.report(video, "uploading")
	stepStart = time.Now()
	var results []*uploader.UploadResult
	for _, u := range p.uploaders {
		res, err := u.Uploader.Upload(ctx, &uploader.Item{Video: video, FilePath: path})
		if err != nil {
			return fmt.Errorf("upload to %s: %w", u.Name, err)
		}
		res.Uploader = u.Name
		p.tm.LogEvent(video.ID, fmt.Sprintf("Uploaded to %s: %s", u.Name, res.PublicURL))
		results = append(results, res)
	}
	lap("upload", stepStart)

	for _, res := range results {
		for _, n := range p.notifiers {
			if err := n.NotifyUploaded(ctx, res); err != nil {
				p.lg.Errorf("(%s) notification failed: %v", video.ID, err)
			}
		}
	}

	record := Record{
		Title:      video.Title,
		ChannelID:  video.ChannelID,
		UploadedAt: time.Now(),
	}
	for _, res := range results {
		record.URLs = append(record.URLs, res.PublicURL)
	}
	// The upload already happened; a history failure only risks a duplicate
	// after restart.
	if err := p.history.Set(context.WithoutCancel(ctx), video.ID, record, p.historyTTL); err != nil {
		p.lg.Errorf("(%s) failed to record upload: %v", video.ID, err)
	}

	lap("total", start)
	p.tm.LogEvent(video.ID, "Timings: "+strings.Join(timings, ", "))
	p.finish(video, taskman.StepDone)

	link := ""
	if len(record.URLs) > 0 {
		link = record.URLs[0]
	}
	p.reportLink(video, "uploaded in "+time.Since(start).Round(time.Second).String(), link)
	return nil
}

func (p *Pipeline) finish(video task.Video, step taskman.Step) {
	p.tm.UpdateStep(video.ID, step)
	if p.observer != nil {
		p.observer.ObservePipeline(string(step))
	}
}

func (p *Pipeline) report(video task.Video, message string) {
	p.reportLink(video, message, video.URL)
}

func (p *Pipeline) reportLink(video task.Video, message, link string) {
	p.lg.Infof("(%s) %s", video.ID, message)
	if p.reporter != nil {
		p.reporter.Report(video.ChannelID, fmt.Sprintf("[%s] %s", video.ID, message), link)
	}
}
