package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tubetok/tubetok/config"
	"github.com/tubetok/tubetok/downloader"
	"github.com/tubetok/tubetok/logger"
	"github.com/tubetok/tubetok/metrics"
	"github.com/tubetok/tubetok/notifier"
	"github.com/tubetok/tubetok/pipeline"
	"github.com/tubetok/tubetok/pubsub"
	"github.com/tubetok/tubetok/scraper"
	"github.com/tubetok/tubetok/server"
	"github.com/tubetok/tubetok/task"
	"github.com/tubetok/tubetok/taskman"
	"github.com/tubetok/tubetok/trimmer"
	"github.com/tubetok/tubetok/tui"
	"github.com/tubetok/tubetok/uploader"
	"github.com/tubetok/tubetok/util"
	"github.com/tubetok/tubetok/util/kv"
	"github.com/tubetok/tubetok/watcher"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	lg := logger.New(cfg.LogLevel(), cfg.App.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = util.WithLogger(ctx, lg)

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("tubetok stopped:", err)
	}
	lg.Info("Bye")
}

func openHistory(ctx context.Context, c config.HistoryConfig) (pipeline.History, error) {
	switch c.Type {
	case "sqlite":
		return kv.NewSQLiteKV[task.VideoID, pipeline.Record](ctx, c.Path)
	default:
		return kv.NewMemoryKV[task.VideoID, pipeline.Record](), nil
	}
}

func run(ctx context.Context, cfg *config.Config, lg logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	status := pubsub.New[task.Status](64)
	reporter := task.NewReporter(status)
	met := metrics.New()
	tm := taskman.New(cfg.App.Workdir, lg)

	history, err := openHistory(ctx, cfg.History)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer history.Close()

	sc, err := scraper.New(cfg.Scraper)
	if err != nil {
		return err
	}

	var uploaders []pipeline.NamedUploader
	for _, u := range cfg.Uploaders {
		upl, err := uploader.NewUploader(u)
		if err != nil {
			return fmt.Errorf("uploader %s: %w", u.Name, err)
		}
		uploaders = append(uploaders, pipeline.NamedUploader{Name: u.Name, Uploader: upl})
	}

	var notifiers []notifier.Notifier
	for _, n := range cfg.Notifiers {
		not, err := notifier.NewNotifier(n)
		if err != nil {
			return fmt.Errorf("notifier %s: %w", n.Name, err)
		}
		notifiers = append(notifiers, not)
	}

	var trim pipeline.Trimmer
	if cfg.Trim.Enabled {
		trim = trimmer.New(cfg.Trim)
	}

	pl, err := pipeline.New(pipeline.Options{
		TaskManager: tm,
		History:     history,
		HistoryTTL:  cfg.History.TTL.Std(),
		Downloader:  downloader.New(cfg.Download),
		Trimmer:     trim,
		Uploaders:   uploaders,
		Notifiers:   notifiers,
		Channels:    cfg.Channels,
		Reporter:    reporter,
		Observer:    met,
		Logger:      lg,
	})
	if err != nil {
		return err
	}

	w, err := watcher.New(cfg.Channels, cfg.Credentials, watcher.Options{
		Delays: watcher.Delays{
			Interval:  cfg.Poll.Interval.Std(),
			Empty:     cfg.Poll.EmptyDelay.Std(),
			Auth:      cfg.Poll.AuthDelay.Std(),
			Transient: cfg.Poll.TransientDelay.Std(),
		},
		MaxInFlight: cfg.Poll.MaxInFlight,
	}, watcher.Deps{
		Scraper:  sc,
		Sink:     pl,
		Reporter: reporter,
		Observer: met,
		Logger:   lg,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(ctx)
	})

	if cfg.App.Listen != "" {
		srv := server.New(server.Options{
			Channels: w,
			Tasks:    tm,
			Pipeline: pl,
			Metrics:  met,
			Logger:   lg,
		})
		g.Go(func() error {
			return srv.Run(ctx, cfg.App.Listen)
		})
	}

	switch cfg.App.UI {
	case "tui":
		ui := tui.New(w, tm, status, lg, cancel)
		g.Go(func() error {
			return ui.Run(ctx)
		})
	case "table":
		g.Go(func() error {
			return util.LoopUntilCancelled(ctx, func() error {
				tm.ClearOldTasks(7 * 24 * time.Hour)
				if tm.Len() > 0 {
					tm.PrintTable(os.Stdout)
				}
				return util.SleepContext(ctx, 5*time.Second)
			})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	lg.Info("Shutting down")
	return nil
}
