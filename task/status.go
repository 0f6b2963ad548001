package task

import "time"

// Reporter publishes status messages on TopicStatus.
type Reporter struct {
	ps StatusPubSub
}

func NewReporter(ps StatusPubSub) *Reporter {
	return &Reporter{ps: ps}
}

// Report never blocks; slow subscribers miss messages.
func (r *Reporter) Report(channelID, message, link string) {
	r.ps.Publish(TopicStatus, Status{
		Time:      time.Now(),
		ChannelID: channelID,
		Message:   message,
		Link:      link,
	})
}
