package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"opgate/internal/platform/kafka/consumer"
	dErrors "opgate/pkg/domain-errors"
	audit "opgate/pkg/platform/audit"
	"opgate/pkg/platform/sentinel"
)

// Appender is the trail mirrored entries are replicated into.
type Appender interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// ReplicateHandler writes mirrored audit entries into a local trail.
// Replays are idempotent: an entry whose ID is already recorded is skipped.
type ReplicateHandler struct {
	trail  Appender
	logger *slog.Logger

	replicated atomic.Int64
	skipped    atomic.Int64
}

// NewReplicateHandler creates a handler appending to trail.
func NewReplicateHandler(trail Appender, logger *slog.Logger) *ReplicateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplicateHandler{
		trail:  trail,
		logger: logger,
	}
}

// Handle processes one mirrored entry.
func (h *ReplicateHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	entry, err := audit.UnmarshalEntry(msg.Value)
	if err != nil {
		h.logger.ErrorContext(ctx, "CRITICAL: failed to decode mirrored audit entry",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		h.skipped.Add(1)
		// Return nil to commit - malformed messages should not block
		return nil
	}

	if err := h.trail.Append(ctx, entry); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			h.logger.DebugContext(ctx, "audit entry already replicated", "entry_id", entry.ID.String())
			h.skipped.Add(1)
			return nil
		case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
			h.logger.ErrorContext(ctx, "CRITICAL: mirrored audit entry is invalid",
				"entry_id", entry.ID.String(),
				"offset", msg.Offset,
				"error", err,
			)
			h.skipped.Add(1)
			return nil
		}
		h.logger.ErrorContext(ctx, "failed to replicate audit entry",
			"entry_id", entry.ID.String(),
			"error", err,
		)
		return fmt.Errorf("replicate audit entry %s: %w", entry.ID, err)
	}

	h.replicated.Add(1)
	h.logger.DebugContext(ctx, "replicated audit entry",
		"entry_id", entry.ID.String(),
		"operator_code", entry.OperatorCode.String(),
		"status", entry.Status.String(),
	)
	return nil
}

// Replicated returns how many entries were appended.
func (h *ReplicateHandler) Replicated() int64 {
	return h.replicated.Load()
}

// Skipped returns how many messages were committed without an append.
func (h *ReplicateHandler) Skipped() int64 {
	return h.skipped.Load()
}
