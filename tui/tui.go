// Package tui is a terminal dashboard: watched channels on top, pipeline
// tasks in the middle and a scrolling status log at the bottom.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tubetok/tubetok/logger"
	"github.com/tubetok/tubetok/task"
	"github.com/tubetok/tubetok/taskman"
	"github.com/tubetok/tubetok/watcher"
)

// Channels is implemented by *watcher.Watcher.
type Channels interface {
	Channels() []watcher.Snapshot
	Stop(channelID string) error
	Start(channelID string) error
}

type Tui struct {
	app      *tview.Application
	channels *tview.Table
	tasks    *tview.Table
	log      *tview.TextView

	watcher Channels
	tm      *taskman.TaskManager
	status  task.StatusPubSub
	lg      logger.Logger
	cancel  context.CancelFunc
}

func New(w Channels, tm *taskman.TaskManager, status task.StatusPubSub, lg logger.Logger, cancel context.CancelFunc) *Tui {
	t := &Tui{
		app:     tview.NewApplication(),
		watcher: w,
		tm:      tm,
		status:  status,
		lg:      lg,
		cancel:  cancel,
	}

	t.channels = tview.NewTable().
		SetFixed(1, 0).
		SetSelectable(true, false).
		SetSelectedStyle(tcell.StyleDefault.Bold(true).Reverse(true))
	t.channels.SetBorder(true).SetTitle(" Channels (s: stop/start, tab: switch) ")

	t.tasks = tview.NewTable().
		SetFixed(1, 1).
		SetSelectable(true, false).
		SetSelectedStyle(tcell.StyleDefault.Bold(true)).
		SetContent(tm)
	t.tasks.SetBorder(true).SetTitle(" Tasks ")

	t.log = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	t.log.SetBorder(true).SetTitle(" Status ")

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(t.channels, 0, 1, true).
		AddItem(t.tasks, 0, 2, false).
		AddItem(t.log, 0, 1, false)

	t.app.SetInputCapture(t.handleKey)
	t.app.SetRoot(layout, true).SetFocus(t.channels)
	t.refreshChannels()
	return t
}

func (t *Tui) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	switch {
	case ev.Key() == tcell.KeyCtrlC:
		t.app.Stop()
		t.cancel()
		return nil
	case ev.Key() == tcell.KeyTab:
		t.cycleFocus()
		return nil
	case ev.Rune() == 's' && t.app.GetFocus() == t.channels:
		t.toggleSelected()
		return nil
	}
	return ev
}

func (t *Tui) cycleFocus() {
	order := []tview.Primitive{t.channels, t.tasks, t.log}
	focus := t.app.GetFocus()
	for i, p := range order {
		if p == focus {
			t.app.SetFocus(order[(i+1)%len(order)])
			return
		}
	}
	t.app.SetFocus(t.channels)
}

// toggleSelected stops the selected channel if it is being watched and
// starts it otherwise. Stop waits for the poller, so it runs off the UI
// goroutine.
func (t *Tui) toggleSelected() {
	row, _ := t.channels.GetSelection()
	snaps := t.watcher.Channels()
	if row < 1 || row > len(snaps) {
		return
	}
	snap := snaps[row-1]
	go func() {
		var err error
		if snap.State == watcher.StateStopped {
			err = t.watcher.Start(snap.ChannelID)
		} else {
			err = t.watcher.Stop(snap.ChannelID)
		}
		if err != nil {
			t.appendLog(task.Status{Time: time.Now(), ChannelID: snap.ChannelID, Message: err.Error()})
		}
		t.app.QueueUpdateDraw(t.refreshChannels)
	}()
}

func (t *Tui) refreshChannels() {
	headers := []string{"Channel", "Name", "State", "Latest", "Key", "Last poll", "Detected"}
	for i, h := range headers {
		t.channels.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}

	for i, s := range t.watcher.Channels() {
		latest, lastPoll := "", ""
		if s.Baseline != nil {
			latest = fmt.Sprintf("%s %.30s", s.Baseline.ID, s.Baseline.Title)
		}
		if !s.LastPoll.IsZero() {
			lastPoll = s.LastPoll.Format(time.TimeOnly) + " " + s.LastOutcome
		}
		color := tcell.ColorGreen
		switch s.State {
		case watcher.StateStopped:
			color = tcell.ColorGray
		case watcher.StateEstablishing:
			color = tcell.ColorYellow
		}
		row := []string{s.ChannelID, s.ChannelName, string(s.State), latest, fmt.Sprint(s.CredentialIndex), lastPoll, fmt.Sprint(s.Detected)}
		for j, text := range row {
			cell := tview.NewTableCell(tview.Escape(text))
			if j == 2 {
				cell.SetTextColor(color)
			}
			t.channels.SetCell(i+1, j, cell)
		}
	}
}

func (t *Tui) appendLog(s task.Status) {
	line := fmt.Sprintf("[gray]%s[-] [yellow]%s[-] %s", s.Time.Format(time.TimeOnly), tview.Escape(s.ChannelID), tview.Escape(s.Message))
	if s.Link != "" {
		line += " [blue]" + tview.Escape(s.Link) + "[-]"
	}
	fmt.Fprintln(t.log, line)
	t.log.ScrollToEnd()
}

// Run takes over the terminal until ctx is cancelled or the user presses
// Ctrl+C. Logging is muted meanwhile.
func (t *Tui) Run(ctx context.Context) error {
	lastLogLevel := t.lg.GetLogLevel()
	t.lg.SetLogLevel(logger.LogLevelFatal)
	defer t.lg.SetLogLevel(lastLogLevel)
	defer t.cancel()

	sub, err := t.status.Subscribe(task.TopicStatus)
	if err != nil {
		return err
	}
	defer t.status.Unsubscribe(sub)

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				t.app.Stop()
				return
			case s, ok := <-sub:
				if !ok {
					return
				}
				t.app.QueueUpdate(func() { t.appendLog(s) })
			case <-ticker.C:
				t.app.QueueUpdateDraw(t.refreshChannels)
			}
		}
	}()

	return t.app.Run()
}
