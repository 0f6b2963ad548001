package scraper

import (
	"context"

	"golang.org/x/time/rate"
)

type limited struct {
	next    Scraper
	limiter *rate.Limiter
}

// Limited shares one token bucket between every caller of s, so the total
// lookup rate stays under rps no matter how many channels are watched.
func Limited(s Scraper, rps float64, burst int) Scraper {
	if burst < 1 {
		burst = 1
	}
	return &limited{next: s, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *limited) Latest(ctx context.Context, channelID, credential string) Result {
	if err := l.limiter.Wait(ctx); err != nil {
		return Result{Outcome: TransientFailure, Err: err}
	}
	return l.next.Latest(ctx, channelID, credential)
}
