package watcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/tubetok/tubetok/logger"
	"github.com/tubetok/tubetok/task"
)

// BoundedSink hands videos to an underlying Sink in the background, allowing
// at most n of them to be in progress. HandleVideo blocks only while all
// slots are taken.
type BoundedSink struct {
	sink  Sink
	slots chan struct{}
	wg    sync.WaitGroup
	lg    logger.Logger
}

func Bounded(sink Sink, n int, lg logger.Logger) *BoundedSink {
	if n < 1 {
		n = 1
	}
	if lg == nil {
		lg = logger.Discard()
	}
	return &BoundedSink{
		sink:  sink,
		slots: make(chan struct{}, n),
		lg:    lg,
	}
}

func (b *BoundedSink) HandleVideo(ctx context.Context, video task.Video) error {
	select {
	case b.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.slots }()

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("sink panicked: %v", r)
				}
			}()
			return b.sink.HandleVideo(ctx, video)
		}()
		if err != nil {
			b.lg.Errorf("handling %s failed: %v", video.URL, err)
		}
	}()
	return nil
}

// Wait blocks until every video handed over so far has been handled.
func (b *BoundedSink) Wait() {
	b.wg.Wait()
}
