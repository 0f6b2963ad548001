// Package server exposes channel and task status over HTTP and lets an
// operator stop or start channels and submit videos by hand.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tubetok/tubetok/logger"
	"github.com/tubetok/tubetok/metrics"
	"github.com/tubetok/tubetok/pipeline"
	"github.com/tubetok/tubetok/task"
	"github.com/tubetok/tubetok/taskman"
	"github.com/tubetok/tubetok/watcher"
)

const shutdownTimeout = 10 * time.Second

// Channels is implemented by *watcher.Watcher.
type Channels interface {
	Channels() []watcher.Snapshot
	Stop(channelID string) error
	Start(channelID string) error
}

// Submitter is implemented by *pipeline.Pipeline.
type Submitter interface {
	Seen(ctx context.Context, id task.VideoID) (bool, error)
	HandleVideo(ctx context.Context, video task.Video) error
}

type Options struct {
	Channels Channels
	Tasks    *taskman.TaskManager
	Pipeline Submitter
	Metrics  *metrics.Metrics
	Logger   logger.Logger
}

type Server struct {
	channels Channels
	tasks    *taskman.TaskManager
	pipeline Submitter
	metrics  *metrics.Metrics
	lg       logger.Logger

	// ctx bounds manually submitted videos.
	ctx context.Context
	wg  sync.WaitGroup
}

func New(o Options) *Server {
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	return &Server{
		channels: o.Channels,
		tasks:    o.Tasks,
		pipeline: o.Pipeline,
		metrics:  o.Metrics,
		lg:       o.Logger,
		ctx:      context.Background(),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.lg))
	if s.metrics != nil {
		r.Use(metrics.RequestMiddleware(s.metrics))
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			s.metrics.Handler(s.updateGauges).ServeHTTP(w, r)
		})
	}

	r.Get("/channels", s.listChannels)
	r.Route("/channels/{channel_id}", func(r chi.Router) {
		r.Post("/stop", s.stopChannel)
		r.Post("/start", s.startChannel)
	})
	r.Get("/tasks", s.listTasks)
	r.Get("/tasks/{video_id}", s.getTask)
	r.Post("/videos", s.submitVideo)
	return r
}

func (s *Server) updateGauges() {
	active := 0
	for _, c := range s.channels.Channels() {
		if c.State != watcher.StateStopped {
			active++
		}
	}
	s.metrics.SetActiveChannels(active)

	running := 0
	for _, t := range s.tasks.GetAll() {
		if !t.Step.Finished() {
			running++
		}
	}
	s.metrics.SetActiveTasks(running)
}

// Run serves on addr until ctx is cancelled, then drains connections and
// waits for manually submitted videos to finish.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.ctx = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.lg.Infof("Status API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.wg.Wait()
	s.lg.Info("Status API stopped")
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.channels.Channels())
}

func (s *Server) stopChannel(w http.ResponseWriter, r *http.Request) {
	s.channelAction(w, r, s.channels.Stop)
}

func (s *Server) startChannel(w http.ResponseWriter, r *http.Request) {
	s.channelAction(w, r, s.channels.Start)
}

func (s *Server) channelAction(w http.ResponseWriter, r *http.Request, action func(string) error) {
	err := action(chi.URLParam(r, "channel_id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, watcher.ErrUnknownChannel):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, watcher.ErrChannelRunning), errors.Is(err, watcher.ErrNotRunning):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tasks.GetAll())
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tasks.Get(task.VideoID(chi.URLParam(r, "video_id")))
	if !ok {
		writeError(w, http.StatusNotFound, taskman.ErrTaskNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type submitRequest struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
}

// submitVideo queues a video by URL. The pipeline runs in the background;
// progress is visible under /tasks.
func (s *Server) submitVideo(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, ok := task.ParseVideoID(req.URL)
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("no video id in url"))
		return
	}

	seen, err := s.pipeline.Seen(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if seen {
		writeError(w, http.StatusConflict, pipeline.ErrAlreadyUploaded)
		return
	}
	if t, ok := s.tasks.Get(id); ok && !t.Step.Finished() {
		writeError(w, http.StatusConflict, taskman.ErrTaskAlreadyExists)
		return
	}

	video := task.Video{
		ID:          id,
		Title:       req.Title,
		ChannelID:   req.ChannelID,
		ChannelName: req.ChannelName,
		URL:         task.WatchURL(id),
	}
	if video.Title == "" {
		video.Title = string(id)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.pipeline.HandleVideo(s.ctx, video); err != nil {
			s.lg.Errorf("(%s) manual submission failed: %v", id, err)
		}
	}()
	writeJSON(w, http.StatusAccepted, video)
}
