package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/metrics"
	"github.com/oklog/ulid/v2"
)

const defaultQueueSize = 1024

// Publisher fans events out to its sinks from a bounded in-memory queue.
// Publish never blocks: a full queue drops the event.
type Publisher struct {
	sinks   []Sink
	queue   chan Event
	logger  logging.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	wg   sync.WaitGroup
	once sync.Once
}

func NewPublisher(logger logging.Logger, m *metrics.Metrics, queueSize int, sinks ...Sink) *Publisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Publisher{
		sinks:   sinks,
		queue:   make(chan Event, queueSize),
		logger:  logger.With("module", "mirror"),
		metrics: m,
		timeout: 5 * time.Second,
	}
}

// Publish enqueues e. It is a no-op on a nil Publisher or one without sinks.
func (p *Publisher) Publish(ctx context.Context, e Event) {
	if p == nil || len(p.sinks) == 0 {
		return
	}
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	select {
	case p.queue <- e:
	default:
		p.metrics.MirrorEvent("queue", "dropped")
		p.logger.Warn(ctx, "mirror queue full, event dropped", "type", e.Type, "id", e.ID)
	}
}

// Start drains the queue in a goroutine until ctx is cancelled, then
// flushes what is left.
func (p *Publisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case e := <-p.queue:
			p.deliver(ctx, e)
		}
	}
}

// Close waits for the drain goroutine to finish and closes sinks that need closing.
func (p *Publisher) Close() {
	p.once.Do(func() {
		p.wg.Wait()
		for _, s := range p.sinks {
			if c, ok := s.(interface{ Close() error }); ok {
				if err := c.Close(); err != nil {
					p.logger.Warn(context.Background(), "closing mirror sink", "sink", s.Name(), "error", err)
				}
			}
		}
	})
}

func (p *Publisher) drain() {
	for {
		select {
		case e := <-p.queue:
			p.deliver(context.Background(), e)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, e Event) {
	for _, s := range p.sinks {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		err := s.Write(wctx, e)
		cancel()

		if err != nil {
			p.metrics.MirrorEvent(s.Name(), "error")
			p.logger.Warn(ctx, "mirror write failed", "sink", s.Name(), "type", e.Type, "id", e.ID, "error", err)
			continue
		}
		p.metrics.MirrorEvent(s.Name(), "ok")
	}
}
