package task

import (
	"context"
	"time"

	"github.com/zhouzirui/driverelay/internal/model/relay"
)

// DefaultPollInterval is the delay between two snapshots of the same watch.
const DefaultPollInterval = time.Second

// Reader is the read side of the registry used by publishers.
type Reader interface {
	Read(handle string) relay.Progress
}

// Publisher turns registry polling into per-observer snapshot streams.
type Publisher struct {
	reader   Reader
	interval time.Duration
}

// NewPublisher polls reader every interval, DefaultPollInterval when interval <= 0.
func NewPublisher(reader Reader, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Publisher{reader: reader, interval: interval}
}

// Watch streams snapshots of handle. The channel is closed after a terminal
// snapshot has been delivered or once ctx is done. Watching never affects the relay.
func (p *Publisher) Watch(ctx context.Context, handle string) <-chan relay.Progress {
	out := make(chan relay.Progress)
	go func() {
		defer close(out)
		timer := time.NewTimer(0)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			snapshot := p.reader.Read(handle)
			select {
			case <-ctx.Done():
				return
			case out <- snapshot:
			}
			if snapshot.Status.IsTerminal() {
				return
			}
			timer.Reset(p.interval)
		}
	}()
	return out
}
