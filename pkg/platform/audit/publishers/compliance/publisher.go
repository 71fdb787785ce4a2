// Package compliance provides the fail-closed audit publisher used by the gate.
//
// Emit is synchronous: the caller blocks until the entry is durable in the
// audit Trail. If the write fails, an error is returned and the calling
// operation MUST fail. Mirrors (for example the Kafka stream) are notified
// only after the Trail accepted the entry and never affect the result.
package compliance

import (
	"context"
	"log/slog"
	"time"

	id "opgate/pkg/domain"
	audit "opgate/pkg/platform/audit"
)

// Appender is the durable sink an entry must reach. *audit.Trail implements it.
type Appender interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// Mirror receives a copy of every entry after it was recorded. Implementations
// must not block the caller.
type Mirror interface {
	Mirror(ctx context.Context, entry audit.Entry)
}

// Publisher emits audit entries with fail-closed semantics.
type Publisher struct {
	trail   Appender
	logger  *slog.Logger
	metrics *Metrics
	mirrors []Mirror
	now     func() time.Time
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
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

// WithMirror adds a best-effort downstream copy of recorded entries.
func WithMirror(m Mirror) Option {
	return func(p *Publisher) {
		if m != nil {
			p.mirrors = append(p.mirrors, m)
		}
	}
}

// New creates a compliance publisher writing to trail.
func New(trail Appender, opts ...Option) *Publisher {
	p := &Publisher{
		trail: trail,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously records entry. A missing ID or timestamp is filled in.
// Returns error if persistence fails - the caller MUST fail its operation.
func (p *Publisher) Emit(ctx context.Context, entry audit.Entry) error {
	start := p.now()

	if entry.ID.IsNil() {
		entry.ID = id.NewEntryID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = start.UTC().Truncate(time.Microsecond)
	}

	if err := p.trail.Append(ctx, entry); err != nil {
		if audit.IsPersistenceError(err) {
			p.metrics.IncPersistFailures()
			if p.logger != nil {
				p.logger.ErrorContext(ctx, "CRITICAL: audit entry not persisted",
					"entry_id", entry.ID.String(),
					"operator_code", entry.OperatorCode.String(),
					"operation", entry.Operation,
					"status", entry.Status.String(),
					"error", err,
				)
			}
		}
		return err
	}

	p.metrics.ObservePersistDuration(time.Since(start))
	p.metrics.IncEventsEmitted(entry.Status)

	for _, m := range p.mirrors {
		m.Mirror(ctx, entry)
	}
	return nil
}
