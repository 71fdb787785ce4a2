//go:generate mockgen -source=publisher.go -destination=mocks/mocks.go -package=mocks Producer

// Package stream mirrors recorded audit entries to a Kafka topic.
//
// Mirroring is best effort: entries are buffered in memory and published in
// batches by a background loop. The audit Trail stays the source of truth; a
// broker outage never fails a gated action. Entries are keyed by operator
// code so each operator's entries keep their order within a partition.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "opgate/pkg/platform/audit"
)

// ErrCircuitOpen is returned by Flush while the circuit breaker blocks publishing.
var ErrCircuitOpen = errors.New("stream mirror circuit open")

// Header keys set on every record.
const (
	HeaderEntryID = "entry_id"
	HeaderStatus  = "status"
)

// Producer publishes records synchronously. *kafka.Producer implements it.
type Producer interface {
	Produce(ctx context.Context, records ...*kgo.Record) error
}

// Publisher buffers entries and publishes them to topic.
type Publisher struct {
	producer Producer
	topic    string
	buffer   *RingBuffer
	breaker  *CircuitBreaker
	metrics  *Metrics
	logger   *slog.Logger

	batchSize     int
	flushInterval time.Duration

	flushMu sync.Mutex
	pending []audit.Entry

	started  atomic.Bool
	wake     chan struct{}
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithBufferSize bounds the number of unpublished entries kept in memory.
func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

// WithBatchSize sets how many entries go into one produce call.
func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval sets how often the background loop publishes.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// WithCircuitBreaker replaces the default breaker (5 failures, 30s cooldown).
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(p *Publisher) {
		if cb != nil {
			p.breaker = cb
		}
	}
}

// New creates a mirror publishing to topic. Call Start to run the background
// loop and Close to drain it.
func New(producer Producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		producer:      producer,
		topic:         topic,
		buffer:        NewRingBuffer(10000),
		breaker:       NewCircuitBreaker(5, 30*time.Second),
		logger:        slog.Default(),
		batchSize:     100,
		flushInterval: 250 * time.Millisecond,
		wake:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Mirror queues entry for publication. It never blocks on the broker.
func (p *Publisher) Mirror(ctx context.Context, entry audit.Entry) {
	if p.buffer.Enqueue(entry) {
		p.metrics.IncDropped()
		p.logger.WarnContext(ctx, "audit stream buffer full, dropped oldest entry")
	}
	p.metrics.SetBuffered(p.buffer.Len())

	if p.buffer.Len() >= p.batchSize {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Start runs the publish loop until Close or ctx cancellation.
func (p *Publisher) Start(ctx context.Context) {
	if p.started.Swap(true) {
		return
	}
	go p.run(ctx)
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.stopped)
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
		case <-p.wake:
		}
		if err := p.Flush(ctx); err != nil && !errors.Is(err, ErrCircuitOpen) {
			p.logger.WarnContext(ctx, "audit stream publish failed", "error", err)
		}
	}
}

// Flush publishes everything buffered. A batch that fails is kept and retried
// first on the next call, so entries leave in the order they were recorded.
func (p *Publisher) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	for {
		if len(p.pending) == 0 {
			p.pending = p.buffer.DequeueBatch(p.batchSize)
		}
		p.metrics.SetBuffered(p.buffer.Len() + len(p.pending))
		if len(p.pending) == 0 {
			return nil
		}
		if !p.breaker.Allow() {
			return ErrCircuitOpen
		}

		records, err := p.records(p.pending)
		if err != nil {
			// Unencodable entries cannot become valid on retry.
			p.logger.ErrorContext(ctx, "dropping audit batch that cannot be encoded", "error", err)
			p.pending = nil
			continue
		}
		if err := p.producer.Produce(ctx, records...); err != nil {
			p.breaker.RecordFailure()
			p.metrics.IncPublishFailures()
			p.metrics.SetCircuitBreakerState(p.breaker.IsOpen())
			return fmt.Errorf("produce %d audit records: %w", len(records), err)
		}
		p.breaker.RecordSuccess()
		p.metrics.SetCircuitBreakerState(false)
		p.metrics.AddPublished(len(records))
		p.pending = nil
	}
}

// Close stops the loop and makes a final attempt to publish what is buffered.
func (p *Publisher) Close(ctx context.Context) error {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	if p.started.Load() {
		select {
		case <-p.stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.Flush(ctx)
}

// Pending returns the number of entries not yet published.
func (p *Publisher) Pending() int {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	return p.buffer.Len() + len(p.pending)
}

func (p *Publisher) records(entries []audit.Entry) ([]*kgo.Record, error) {
	out := make([]*kgo.Record, 0, len(entries))
	for _, e := range entries {
		value, err := audit.MarshalEntry(e)
		if err != nil {
			return nil, fmt.Errorf("encode entry %s: %w", e.ID, err)
		}
		out = append(out, &kgo.Record{
			Topic:     p.topic,
			Key:       []byte(e.OperatorCode.String()),
			Value:     value,
			Timestamp: e.Timestamp,
			Headers: []kgo.RecordHeader{
				{Key: HeaderEntryID, Value: []byte(e.ID.String())},
				{Key: HeaderStatus, Value: []byte(e.Status.String())},
			},
		})
	}
	return out, nil
}
