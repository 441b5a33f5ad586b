package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestPublisher_DeliversToAllSinks(t *testing.T) {
	m := metrics.New("t", prometheus.NewRegistry())
	ok := &recordingSink{name: "ok"}
	bad := &recordingSink{name: "bad", err: errors.New("unreachable")}

	p := NewPublisher(logging.Nop{}, m, 8, ok, bad)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	p.Publish(ctx, Event{Type: ConversionCompleted, UserID: "u-1"})
	p.Publish(ctx, Event{Type: OfferCreated, UserID: "u-1"})

	require.Eventually(t, func() bool { return ok.count() == 2 && bad.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	p.Close()

	assert.True(t, ok.closed)
	assert.NotEmpty(t, ok.events[0].ID)
	assert.False(t, ok.events[0].OccurredAt.IsZero())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MirrorEvents.WithLabelValues("ok", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MirrorEvents.WithLabelValues("bad", "error")))
}

func TestPublisher_DropsWhenFull(t *testing.T) {
	m := metrics.New("t", prometheus.NewRegistry())
	sink := &recordingSink{name: "s"}
	p := NewPublisher(logging.Nop{}, m, 1, sink)

	// not started: the second event finds the queue full
	p.Publish(context.Background(), Event{Type: OfferExpired})
	p.Publish(context.Background(), Event{Type: OfferExpired})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MirrorEvents.WithLabelValues("queue", "dropped")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Start(ctx)
	p.Close()
	assert.Equal(t, 1, sink.count())
}

func TestPublisher_NilAndNoSinks(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() { p.Publish(context.Background(), Event{}) })

	empty := NewPublisher(logging.Nop{}, nil, 0)
	assert.NotPanics(t, func() { empty.Publish(context.Background(), Event{}) })
	assert.Equal(t, defaultQueueSize, cap(empty.queue))
}
