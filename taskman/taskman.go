// Package taskman tracks every video handed to the pipeline, from the moment
// it is detected until it is uploaded, skipped or fails.
package taskman

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tubetok/tubetok/logger"
	"github.com/tubetok/tubetok/task"
)

type Step string

const (
	StepQueued      Step = "queued"
	StepDownloading Step = "downloading"
	StepTrimming    Step = "trimming"
	StepUploading   Step = "uploading"
	StepDone        Step = "done"
	StepErrored     Step = "errored"
	StepSkipped     Step = "skipped"
	StepCancelled   Step = "cancelled"
)

// Finished reports whether the step is terminal.
func (s Step) Finished() bool {
	switch s {
	case StepDone, StepErrored, StepSkipped, StepCancelled:
		return true
	}
	return false
}

var (
	ErrTaskAlreadyExists = fmt.Errorf("task already exists: %w", task.ErrDuplicate)
	ErrTaskNotFound      = errors.New("task not found")
)

// Task represents a single video that is being processed.
type Task struct {
	ID       string     `json:"id"`
	Video    task.Video `json:"video"`
	Step     Step       `json:"step"`
	Logs     []LogEntry `json:"logs"`
	Progress string     `json:"progress,omitempty"`

	CreatedAt        time.Time `json:"created_at"`
	LastStepUpdate   time.Time `json:"last_step_update"`
	WorkingDirectory string    `json:"-"`
}

type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

type TaskManager struct {
	tasks   *TaskMap
	workdir string
	logger  logger.Logger

	// mu guards the fields of every *Task in tasks.
	mu sync.RWMutex
}

// New returns a TaskManager that creates per-task working directories under
// workdir. An empty workdir means the system temporary directory.
func New(workdir string, lg logger.Logger) *TaskManager {
	if lg == nil {
		lg = logger.Discard()
	}
	return &TaskManager{
		tasks:   NewTaskMap(),
		workdir: workdir,
		logger:  lg,
	}
}

func (t *TaskManager) Insert(video task.Video) (Task, error) {
	if _, ok := t.tasks.Get(video.ID); ok {
		return Task{}, ErrTaskAlreadyExists
	}

	if t.workdir != "" {
		if err := os.MkdirAll(t.workdir, 0o755); err != nil {
			return Task{}, fmt.Errorf("failed to create working directory: %w", err)
		}
	}
	workdir, err := os.MkdirTemp(t.workdir, "tubetok__"+string(video.ID)+"__")
	if err != nil {
		return Task{}, fmt.Errorf("failed to create temporary working directory: %w", err)
	}

	now := time.Now()
	tk := &Task{
		ID:    uuid.NewString(),
		Video: video,
		Step:  StepQueued,
		Logs: []LogEntry{
			{Time: now, Message: "Task created"},
		},
		WorkingDirectory: workdir,
		CreatedAt:        now,
		LastStepUpdate:   now,
	}

	if !t.tasks.SetIfAbsent(video.ID, tk) {
		os.RemoveAll(workdir)
		return Task{}, ErrTaskAlreadyExists
	}
	t.logger.Debugf("Created temporary working directory %s for video %s", workdir, video.ID)

	return t.copy(tk), nil
}

func (t *TaskManager) copy(tk *Task) Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := *tk
	c.Logs = append([]LogEntry(nil), tk.Logs...)
	return c
}

func (t *TaskManager) Get(videoID task.VideoID) (Task, bool) {
	tk, ok := t.tasks.Get(videoID)
	if !ok {
		return Task{}, false
	}
	return t.copy(tk), true
}

// GetAll returns a copy of every task, oldest first.
func (t *TaskManager) GetAll() []Task {
	all := t.tasks.Values()
	tasks := make([]Task, 0, len(all))
	for _, tk := range all {
		tasks = append(tasks, t.copy(tk))
	}
	return tasks
}

func (t *TaskManager) Len() int {
	return t.tasks.Len()
}

func (t *TaskManager) LogEvent(videoID task.VideoID, message string) error {
	tk, ok := t.tasks.Get(videoID)
	if !ok {
		return ErrTaskNotFound
	}

	t.logger.Debugf("(%s) %s", videoID, message)
	t.mu.Lock()
	tk.Logs = append(tk.Logs, LogEntry{
		Time:    time.Now(),
		Message: message,
	})
	t.mu.Unlock()

	return nil
}

func IsDirectoryEmpty(name string) (bool, error) {
	f, err := os.Open(name)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}

func (t *TaskManager) UpdateStep(videoID task.VideoID, step Step) error {
	tk, ok := t.tasks.Get(videoID)
	if !ok {
		return ErrTaskNotFound
	}

	t.mu.Lock()
	if tk.Step == step {
		t.mu.Unlock()
		return nil
	}
	tk.Step = step
	logMessage := "Task state changed to " + string(step)
	tk.Logs = append(tk.Logs, LogEntry{
		Time:    time.Now(),
		Message: logMessage,
	})
	tk.LastStepUpdate = time.Now()
	if step.Finished() {
		tk.Progress = ""
	}
	workdir := tk.WorkingDirectory
	t.mu.Unlock()
	t.logger.Debugf("(%s) %s", videoID, logMessage)

	switch step {
	case StepDone, StepSkipped, StepCancelled:
		t.removeWorkdir(videoID, workdir)
	case StepErrored:
		// Keep partial downloads around for inspection.
		if empty, _ := IsDirectoryEmpty(workdir); empty {
			t.removeWorkdir(videoID, workdir)
		}
	}

	return nil
}

func (t *TaskManager) removeWorkdir(videoID task.VideoID, workdir string) {
	t.logger.Debugf("Removing temporary working directory %s for video %s", workdir, videoID)
	if err := os.RemoveAll(workdir); err != nil {
		t.logger.Errorf("Failed to remove temporary working directory %s for video %s: %v", workdir, videoID, err)
	}
}

func (t *TaskManager) UpdateProgress(videoID task.VideoID, progress string) error {
	tk, ok := t.tasks.Get(videoID)
	if !ok {
		return ErrTaskNotFound
	}

	t.mu.Lock()
	tk.Progress = progress
	t.mu.Unlock()

	return nil
}

// Remove forgets a task and deletes whatever is left of its working
// directory.
func (t *TaskManager) Remove(videoID task.VideoID) error {
	tk, ok := t.tasks.Get(videoID)
	if !ok {
		return ErrTaskNotFound
	}
	t.mu.RLock()
	workdir := tk.WorkingDirectory
	t.mu.RUnlock()

	t.tasks.Delete(videoID)
	if workdir != "" {
		t.removeWorkdir(videoID, workdir)
	}
	return nil
}

// PrintTable writes a summary of every task to w.
func (t *TaskManager) PrintTable(w io.Writer) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.AppendHeader(table.Row{"Video Id", "Channel", "Title", "Status", "Progress"})
	tbl.SortBy([]table.SortBy{
		{Name: "Status", Mode: table.Asc},
		{Name: "Video Id", Mode: table.Asc},
	})

	for _, tk := range t.GetAll() {
		tbl.AppendRow(table.Row{
			tk.Video.ID,
			fmt.Sprintf("%.10s", tk.Video.ChannelName),
			fmt.Sprintf("%.30s", tk.Video.Title),
			tk.Step,
			tk.Progress,
		})
	}

	tbl.SetStyle(table.StyleLight)
	tbl.Render()
}

// ClearOldTasks forgets finished tasks whose last step change is older than
// maxAge, and returns how many were removed.
func (t *TaskManager) ClearOldTasks(maxAge time.Duration) int {
	removed := 0
	for _, tk := range t.GetAll() {
		if tk.Step.Finished() && time.Since(tk.LastStepUpdate) > maxAge {
			if t.Remove(tk.Video.ID) == nil {
				removed++
			}
		}
	}
	return removed
}

// GetTaskByIndex returns the task at the given index, sorted by the time the
// task was created.
func (t *TaskManager) GetTaskByIndex(index int) (Task, error) {
	all := t.tasks.Values()
	if index < 0 || index >= len(all) {
		return Task{}, ErrTaskNotFound
	}
	return t.copy(all[index]), nil
}
