// Package watcher polls YouTube channels for new uploads. Every channel gets
// its own goroutine, credential rotator and baseline; nothing is shared
// between channels except the Sink and the read-only credential list.
package watcher

import (
	"context"
	"errors"
	"sync"

	"github.com/tubetok/tubetok/config"
	"github.com/tubetok/tubetok/logger"
	"github.com/tubetok/tubetok/rotator"
)

var (
	ErrNoChannels     = errors.New("channel list is empty")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrChannelRunning = errors.New("channel is already being watched")
	ErrNotRunning     = errors.New("watcher is not running")
	ErrAlreadyRunning = errors.New("watcher is already running")
)

type Options struct {
	Delays Delays
	// MaxInFlight bounds how many videos per channel may be handled at once.
	// Values of 1 or less make the poller wait for each video.
	MaxInFlight int
}

type run struct {
	poller  *Poller
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

type Watcher struct {
	channels    []config.Channel
	credentials []string
	opts        Options
	deps        Deps
	lg          logger.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	ctx      context.Context
	runs     map[string]*run
	active   int
}

// New validates the inputs and returns a Watcher ready to Run. The
// credentials slice is shared by every rotator and must not be modified.
func New(channels []config.Channel, credentials []string, opts Options, deps Deps) (*Watcher, error) {
	if len(credentials) == 0 {
		return nil, rotator.ErrNoCredentials
	}
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	if deps.Scraper == nil {
		return nil, errors.New("watcher: scraper is required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	w := &Watcher{
		channels:    channels,
		credentials: credentials,
		opts:        opts,
		deps:        deps,
		lg:          deps.Logger,
		runs:        make(map[string]*run, len(channels)),
	}
	w.cond = sync.NewCond(&w.mu)
	return w, nil
}

// Run starts one poller per channel and blocks until ctx is cancelled and
// every poller has exited. Channels stopped individually can be started
// again for as long as Run is blocked.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.ctx != nil {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.ctx = ctx
	for i := range w.channels {
		w.startLocked(i)
	}
	w.lg.Infof("Watching %d channels with %d credentials", len(w.channels), len(w.credentials))

	wake := context.AfterFunc(ctx, func() {
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	})
	defer wake()

	for ctx.Err() == nil || w.active > 0 {
		w.cond.Wait()
	}
	w.mu.Unlock()

	w.lg.Info("All channel watchers stopped")
	return ctx.Err()
}

func (w *Watcher) startLocked(ordinal int) {
	ch := w.channels[ordinal]
	// Spread the channels over the credentials so that they do not all start
	// on the same key.
	rot, _ := rotator.New(w.credentials, ordinal)

	deps := w.deps
	var bounded *BoundedSink
	if w.opts.MaxInFlight > 1 && deps.Sink != nil {
		bounded = Bounded(deps.Sink, w.opts.MaxInFlight, deps.Logger)
		deps.Sink = bounded
	}

	p := NewPoller(ch, rot, deps, w.opts.Delays)
	ctx, cancel := context.WithCancel(w.ctx)
	r := &run{poller: p, cancel: cancel, done: make(chan struct{}), running: true}
	w.runs[ch.Id] = r
	w.active++

	go func() {
		defer close(r.done)
		defer func() {
			w.mu.Lock()
			r.running = false
			w.active--
			w.cond.Broadcast()
			w.mu.Unlock()
		}()
		defer cancel()

		w.lg.Infof("Watching channel %s (%s)", ch.Name, ch.Id)
		_ = p.Run(ctx)
		if bounded != nil {
			bounded.Wait()
		}
		w.lg.Infof("Stopped watching channel %s (%s)", ch.Name, ch.Id)
	}()
}

func (w *Watcher) ordinal(channelID string) (int, bool) {
	for i, ch := range w.channels {
		if ch.Id == channelID {
			return i, true
		}
	}
	return 0, false
}

// Stop cancels the poller of one channel and waits for it to exit. Other
// channels are not affected.
func (w *Watcher) Stop(channelID string) error {
	w.mu.Lock()
	if _, ok := w.ordinal(channelID); !ok {
		w.mu.Unlock()
		return ErrUnknownChannel
	}
	r, ok := w.runs[channelID]
	if !ok || !r.running {
		w.mu.Unlock()
		return ErrNotRunning
	}
	r.cancel()
	w.mu.Unlock()

	<-r.done
	return nil
}

// Start restarts a stopped channel with a fresh rotator and baseline.
func (w *Watcher) Start(channelID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	i, ok := w.ordinal(channelID)
	if !ok {
		return ErrUnknownChannel
	}
	if w.ctx == nil || w.ctx.Err() != nil {
		return ErrNotRunning
	}
	if r, ok := w.runs[channelID]; ok && r.running {
		return ErrChannelRunning
	}
	w.startLocked(i)
	return nil
}

// Channels returns a snapshot per configured channel, in configuration order.
func (w *Watcher) Channels() []Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Snapshot, 0, len(w.channels))
	for _, ch := range w.channels {
		r, ok := w.runs[ch.Id]
		if !ok {
			out = append(out, Snapshot{ChannelID: ch.Id, ChannelName: ch.Name, State: StateStopped})
			continue
		}
		s := r.poller.Snapshot()
		if !r.running {
			s.State = StateStopped
		}
		out = append(out, s)
	}
	return out
}
