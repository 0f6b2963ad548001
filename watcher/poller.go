package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tubetok/tubetok/config"
	"github.com/tubetok/tubetok/logger"
	"github.com/tubetok/tubetok/rotator"
	"github.com/tubetok/tubetok/scraper"
	"github.com/tubetok/tubetok/task"
	"github.com/tubetok/tubetok/util"
)

type State string

const (
	StateEstablishing State = "establishing baseline"
	StateWatching     State = "watching"
	StateStopped      State = "stopped"
)

// Sink receives every newly detected video exactly once. The poller waits
// for HandleVideo to return before polling the channel again.
type Sink interface {
	HandleVideo(ctx context.Context, video task.Video) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, video task.Video) error

func (f SinkFunc) HandleVideo(ctx context.Context, video task.Video) error {
	return f(ctx, video)
}

// Reporter receives human-readable status messages. It must not block.
type Reporter interface {
	Report(channelID, message, link string)
}

// Observer is notified of poll outcomes, credential rotations, detections and
// sink failures. metrics.Metrics implements it.
type Observer interface {
	ObservePoll(channelID string, outcome scraper.Outcome)
	ObserveRotation(channelID string)
	ObserveNewVideo(channelID string)
	ObserveSinkError(channelID string)
}

// Delays configures how long a poller sleeps after each kind of attempt.
type Delays struct {
	// Interval separates polls once the baseline is known.
	Interval time.Duration
	// Empty is used while establishing the baseline and nothing is returned.
	Empty time.Duration
	// Auth follows a rejected credential.
	Auth time.Duration
	// Transient follows any other failure.
	Transient time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		Interval:  30 * time.Second,
		Empty:     2 * time.Second,
		Auth:      time.Second,
		Transient: 5 * time.Second,
	}
}

// Baseline is the latest known video of a channel.
type Baseline struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Snapshot is a point-in-time copy of a poller's progress, safe to read from
// other goroutines.
type Snapshot struct {
	ChannelID       string    `json:"channel_id"`
	ChannelName     string    `json:"channel_name"`
	State           State     `json:"state"`
	Baseline        *Baseline `json:"baseline,omitempty"`
	CredentialIndex int       `json:"credential_index"`
	LastOutcome     string    `json:"last_outcome,omitempty"`
	LastPoll        time.Time `json:"last_poll,omitempty"`
	Detected        int       `json:"detected"`
}

// Poller watches one channel. It first establishes a baseline (the video
// that is already the latest when watching starts) and then reports every
// change of the latest video ID to its Sink.
//
// The rotator and baseline are owned by the goroutine calling Run or Step;
// only the snapshot is shared.
type Poller struct {
	channel  config.Channel
	rotator  *rotator.Rotator
	scraper  scraper.Scraper
	sink     Sink
	reporter Reporter
	observer Observer
	lg       logger.Logger
	delays   Delays
	sleep    func(ctx context.Context, d time.Duration) error

	state    State
	baseline *Baseline
	detected int

	mu   sync.RWMutex
	snap Snapshot
}

// Deps are the collaborators shared by every poller.
type Deps struct {
	Scraper  scraper.Scraper
	Sink     Sink
	Reporter Reporter
	Observer Observer
	Logger   logger.Logger
}

func NewPoller(channel config.Channel, rot *rotator.Rotator, deps Deps, delays Delays) *Poller {
	lg := deps.Logger
	if lg == nil {
		lg = logger.Discard()
	}
	p := &Poller{
		channel:  channel,
		rotator:  rot,
		scraper:  deps.Scraper,
		sink:     deps.Sink,
		reporter: deps.Reporter,
		observer: deps.Observer,
		lg:       lg.With("channel", channel.Id),
		delays:   delays,
		sleep:    util.SleepContext,
		state:    StateEstablishing,
	}
	p.publish(func(s *Snapshot) {})
	return p
}

// Run polls until ctx is cancelled and returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	p.lg.Debugf("[%s] starting watch with credential %s", p.channel.Id, rotator.Redact(p.rotator.Current()))
	defer p.publish(func(s *Snapshot) { s.State = StateStopped })

	return util.LoopUntilCancelled(ctx, func() error {
		return p.Step(ctx)
	})
}

// Step performs one lookup, reacts to its outcome and sleeps for the delay
// that outcome calls for. It returns a non-nil error only when ctx is done.
func (p *Poller) Step(ctx context.Context) error {
	credential := p.rotator.Current()
	res := p.scraper.Latest(ctx, p.channel.Id, credential)
	// A cancelled lookup must not touch the baseline or the rotator.
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.observer != nil {
		p.observer.ObservePoll(p.channel.Id, res.Outcome)
	}

	var delay time.Duration
	switch p.state {
	case StateEstablishing:
		delay = p.establish(res, credential)
	default:
		delay = p.watch(ctx, res, credential)
	}

	p.publish(func(s *Snapshot) {
		s.LastOutcome = res.Outcome.String()
		s.LastPoll = time.Now()
	})
	return p.sleep(ctx, delay)
}

func (p *Poller) establish(res scraper.Result, credential string) time.Duration {
	switch res.Outcome {
	case scraper.Found:
		p.baseline = &Baseline{ID: res.Video.ID, Title: res.Video.Title}
		p.state = StateWatching
		p.report(fmt.Sprintf("baseline set = %s (%s)", res.Video.ID, res.Video.Title), "")
		return 0
	case scraper.Empty:
		p.lg.Debugf("[%s] no video returned, retrying", p.channel.Id)
		return p.delays.Empty
	case scraper.AuthFailure:
		p.rotate(credential, res)
		return p.delays.Auth
	default:
		p.report(fmt.Sprintf("init error: %v", res.Err), "")
		return p.delays.Transient
	}
}

func (p *Poller) watch(ctx context.Context, res scraper.Result, credential string) time.Duration {
	switch res.Outcome {
	case scraper.Found:
		if res.Video.ID == p.baseline.ID {
			p.lg.Debugf("[%s] no new video, latest = %s", p.channel.Id, p.baseline.ID)
			return p.delays.Interval
		}
		p.baseline = &Baseline{ID: res.Video.ID, Title: res.Video.Title}
		p.detected++
		video := task.Video{
			ID:          task.VideoID(res.Video.ID),
			Title:       res.Video.Title,
			ChannelID:   p.channel.Id,
			ChannelName: p.channel.Name,
			URL:         task.WatchURL(task.VideoID(res.Video.ID)),
		}
		p.report(fmt.Sprintf("NEW VIDEO: %s | credential %s", video.Title, rotator.Redact(credential)), video.URL)
		if p.observer != nil {
			p.observer.ObserveNewVideo(p.channel.Id)
		}
		p.publish(func(s *Snapshot) {})
		p.deliver(ctx, video)
		return p.delays.Interval
	case scraper.Empty:
		p.lg.Warnf("[%s] lookup returned no video while watching", p.channel.Id)
		return p.delays.Interval
	case scraper.AuthFailure:
		p.rotate(credential, res)
		return p.delays.Auth
	default:
		p.report(fmt.Sprintf("lookup error: %v", res.Err), "")
		return p.delays.Transient
	}
}

func (p *Poller) rotate(old string, res scraper.Result) {
	next := p.rotator.Advance()
	if p.observer != nil {
		p.observer.ObserveRotation(p.channel.Id)
	}
	p.lg.Warnf("[%s] credential %s rejected (status %d): %v", p.channel.Id, rotator.Redact(old), res.StatusCode, res.Err)
	p.report(fmt.Sprintf("credential error %s → %s", rotator.Redact(old), rotator.Redact(next)), "")
}

// deliver hands the video to the sink. Sink errors and panics are logged and
// otherwise ignored. A video the sink has already handled is not a failure.
func (p *Poller) deliver(ctx context.Context, video task.Video) {
	if p.sink == nil {
		return
	}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("sink panicked: %v", r)
			}
		}()
		return p.sink.HandleVideo(ctx, video)
	}()
	if err == nil {
		return
	}
	if errors.Is(err, task.ErrDuplicate) {
		p.lg.Infof("[%s] %s skipped: %v", p.channel.Id, video.URL, err)
		return
	}
	if p.observer != nil {
		p.observer.ObserveSinkError(p.channel.Id)
	}
	p.lg.Errorf("[%s] handling %s failed: %v", p.channel.Id, video.URL, err)
	p.report(fmt.Sprintf("video handling failed: %v", err), video.URL)
}

func (p *Poller) report(message, link string) {
	p.lg.Infof("[%s] %s", p.channel.Id, message)
	if p.reporter != nil {
		p.reporter.Report(p.channel.Id, message, link)
	}
}

func (p *Poller) publish(update func(s *Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.ChannelID = p.channel.Id
	p.snap.ChannelName = p.channel.Name
	p.snap.State = p.state
	p.snap.CredentialIndex = p.rotator.Index()
	p.snap.Detected = p.detected
	if p.baseline != nil {
		b := *p.baseline
		p.snap.Baseline = &b
	}
	update(&p.snap)
}

// Snapshot returns a copy of the poller's latest published state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.snap
	if s.Baseline != nil {
		b := *s.Baseline
		s.Baseline = &b
	}
	return s
}

// State returns the state machine position. It must only be called from the
// goroutine driving the poller.
func (p *Poller) State() State {
	return p.state
}

// Baseline returns the current baseline or nil. Same ownership rule as State.
func (p *Poller) Baseline() *Baseline {
	return p.baseline
}
