// Package gate runs permission-checked actions and records exactly one audit
// entry for every invocation.
//
// The entry is written before Execute returns. A denied invocation records
// FAILED and never runs the body. An allowed invocation records SUCCESS or,
// when the body returns an error or panics, ERROR. If the entry cannot be
// persisted the invocation fails with *audit.PersistenceError, so success is
// never reported without a durable record.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"opgate/internal/gate/metrics"
	"opgate/internal/permission"
	id "opgate/pkg/domain"
	dErrors "opgate/pkg/domain-errors"
	audit "opgate/pkg/platform/audit"
)

const tracerName = "opgate/internal/gate"

// Recorder durably records one audit entry. The compliance publisher
// implements it.
type Recorder interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Gate checks permissions and records outcomes. It is safe for concurrent use.
type Gate struct {
	recorder Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	clock    func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithTracer overrides the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gate) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithClock overrides time.Now for entry timestamps.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// New creates a Gate recording through recorder.
func New(recorder Recorder, opts ...Option) (*Gate, error) {
	if recorder == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "audit recorder is required")
	}
	g := &Gate{
		recorder: recorder,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Execute runs action for profile in the scope of unitID (empty for none).
//
// Returns *PermissionDeniedError when the profile lacks the operation, the
// body's error unchanged when it fails, and *audit.PersistenceError (joined
// with the denial or body error) when the entry could not be recorded. A
// nil profile, a profile without an operator code, an unknown operation or a
// missing body is rejected with CodeInvalidInput before anything runs or is
// recorded.
func Execute[T any](ctx context.Context, g *Gate, action Action[T], profile *permission.Profile, unitID id.UnitID) (T, error) {
	var zero T
	if err := validate(action, profile); err != nil {
		return zero, err
	}

	op := action.Operation.String()
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "gate.Execute", trace.WithAttributes(
		attribute.String("opgate.operation", op),
		attribute.String("opgate.operator_code", profile.OperatorCode().String()),
		attribute.String("opgate.unit_id", unitID.String()),
	))
	defer span.End()
	defer func() {
		g.metrics.ObserveExecuteLatency(op, time.Since(start))
	}()

	allowed := permission.Decide(profile, action.Operation, unitID)
	g.metrics.IncrementDecision(op, allowed)
	span.SetAttributes(attribute.Bool("opgate.allowed", allowed))

	if !allowed {
		denied := &PermissionDeniedError{
			Operation:    action.Operation,
			UnitID:       unitID,
			OperatorCode: profile.OperatorCode(),
		}
		g.logger.WarnContext(ctx, "permission denied",
			"operation", op,
			"operator_code", profile.OperatorCode().String(),
			"unit_id", unitID.String(),
		)
		if err := g.record(ctx, span, action.Operation, profile, unitID, audit.StatusFailed, audit.DetailsInsufficientPermissions); err != nil {
			return zero, errors.Join(err, denied)
		}
		span.SetStatus(codes.Error, denied.Error())
		return zero, denied
	}

	result, panicked, bodyErr := invoke(ctx, action.Body, profile, unitID)
	if panicked != nil {
		msg := fmt.Sprint(panicked.value)
		span.SetStatus(codes.Error, "panic: "+msg)
		if err := g.record(ctx, span, action.Operation, profile, unitID, audit.StatusError, msg); err != nil {
			g.logger.ErrorContext(ctx, "panic in action left no audit entry",
				"operation", op,
				"panic", msg,
				"error", err,
			)
		}
		panic(panicked.value)
	}

	if bodyErr != nil {
		span.RecordError(bodyErr)
		span.SetStatus(codes.Error, bodyErr.Error())
		if err := g.record(ctx, span, action.Operation, profile, unitID, audit.StatusError, bodyErr.Error()); err != nil {
			return zero, errors.Join(err, bodyErr)
		}
		return zero, bodyErr
	}

	if err := g.record(ctx, span, action.Operation, profile, unitID, audit.StatusSuccess, action.details(result)); err != nil {
		return zero, err
	}
	return result, nil
}

func validate[T any](action Action[T], profile *permission.Profile) error {
	if profile == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "profile is required")
	}
	if profile.OperatorCode().IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "profile has no operator code")
	}
	if !action.Operation.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "action has unknown operation")
	}
	if action.Body == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "action has no body")
	}
	return nil
}

type bodyPanic struct {
	value any
}

func invoke[T any](ctx context.Context, body Body[T], profile *permission.Profile, unitID id.UnitID) (result T, p *bodyPanic, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = &bodyPanic{value: r}
		}
	}()
	result, err = body(ctx, profile, unitID)
	return result, nil, err
}

func (g *Gate) record(ctx context.Context, span trace.Span, op permission.Operation, profile *permission.Profile, unitID id.UnitID, status audit.Status, details string) error {
	entry := audit.Entry{
		ID:           id.NewEntryID(),
		OperatorCode: profile.OperatorCode(),
		OperatorRole: profile.BaseRole(),
		Operation:    op.String(),
		UnitID:       unitID,
		Timestamp:    g.clock().UTC().Truncate(time.Microsecond),
		Status:       status,
		Details:      details,
	}
	span.SetAttributes(
		attribute.String("opgate.audit.entry_id", entry.ID.String()),
		attribute.String("opgate.audit.status", status.String()),
	)
	if err := g.recorder.Emit(ctx, entry); err != nil {
		g.metrics.IncrementAuditFailure()
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit entry not recorded")
		return err
	}
	g.metrics.IncrementOutcome(op.String(), status.String())
	return nil
}
