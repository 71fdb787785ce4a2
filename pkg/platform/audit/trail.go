package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	id "opgate/pkg/domain"
	dErrors "opgate/pkg/domain-errors"
	"opgate/pkg/platform/sentinel"
)

// Trail is the audit log of record: a durable Store plus the materialized,
// insertion-ordered view that queries run against. Append is the only
// mutation and is serialized, so concurrent gate executions never interleave
// partial writes.
type Trail struct {
	mu      sync.RWMutex
	store   Store
	entries []Entry
	ids     map[id.EntryID]struct{}
	logger  *slog.Logger
}

// TrailOption configures a Trail.
type TrailOption func(*Trail)

// WithTrailLogger sets the logger used for load and persistence diagnostics.
func WithTrailLogger(logger *slog.Logger) TrailOption {
	return func(t *Trail) {
		t.logger = logger
	}
}

// Open loads every entry already in store and returns a Trail backed by it.
func Open(ctx context.Context, store Store, opts ...TrailOption) (*Trail, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "audit store is required")
	}
	t := &Trail{
		store: store,
		ids:   make(map[id.EntryID]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load audit trail: %w", err)
	}
	for _, e := range loaded {
		if _, dup := t.ids[e.ID]; dup {
			return nil, fmt.Errorf("load audit trail: duplicate entry %s: %w", e.ID, sentinel.ErrConflict)
		}
		t.ids[e.ID] = struct{}{}
	}
	t.entries = loaded
	if t.logger != nil {
		t.logger.DebugContext(ctx, "audit trail loaded", "entries", len(loaded))
	}
	return t, nil
}

// Append validates entry, writes it to the backing store and, once durable,
// adds it to the materialized view.
//
// Errors: CodeInvariantViolation for malformed entries, CodeConflict when the
// entry ID was already recorded, and *PersistenceError when the store write
// fails. Only the last one means the audit guarantee was violated.
func (t *Trail) Append(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.ids[entry.ID]; dup {
		return dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "audit entry "+entry.ID.String()+" already recorded")
	}
	if err := t.store.Append(ctx, entry); err != nil {
		if t.logger != nil {
			t.logger.ErrorContext(ctx, "audit store append failed",
				"entry_id", entry.ID.String(),
				"operation", entry.Operation,
				"error", err,
			)
		}
		return &PersistenceError{EntryID: entry.ID.String(), Operation: entry.Operation, Err: err}
	}
	t.ids[entry.ID] = struct{}{}
	t.entries = append(t.entries, entry)
	return nil
}

// Entries returns a copy of every entry in insertion order.
func (t *Trail) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry{}, t.entries...)
}

// Len returns the number of recorded entries.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Recent returns the last n entries in insertion order.
func (t *Trail) Recent(n int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 {
		return []Entry{}
	}
	start := len(t.entries) - n
	if start < 0 {
		start = 0
	}
	return append([]Entry{}, t.entries[start:]...)
}

// ByOperator returns entries recorded for operator code.
func (t *Trail) ByOperator(code id.OperatorCode) []Entry {
	return t.Query(Filter{OperatorCode: code})
}

// ByUnit returns entries scoped to unitID. Unscoped entries never match.
func (t *Trail) ByUnit(unitID id.UnitID) []Entry {
	if unitID.IsNil() {
		return []Entry{}
	}
	return t.Query(Filter{UnitID: unitID})
}

// ByTimeRange returns entries with start <= Timestamp <= end.
func (t *Trail) ByTimeRange(start, end time.Time) []Entry {
	if end.Before(start) {
		return []Entry{}
	}
	return t.Query(Filter{Since: start, Until: end})
}

// ByStatus returns entries with the given outcome.
func (t *Trail) ByStatus(status Status) []Entry {
	return t.Query(Filter{Status: status})
}

// Query returns the entries matching every set field of f, in insertion order.
func (t *Trail) Query(f Filter) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := []Entry{}
	for _, e := range t.entries {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Filter selects entries. Zero-valued fields match everything; Since and Until
// are inclusive bounds.
type Filter struct {
	OperatorCode id.OperatorCode
	UnitID       id.UnitID
	Operation    string
	Status       Status
	Since        time.Time
	Until        time.Time
}

// Matches reports whether e satisfies every set field of f.
func (f Filter) Matches(e Entry) bool {
	if !f.OperatorCode.IsNil() && e.OperatorCode != f.OperatorCode {
		return false
	}
	if !f.UnitID.IsNil() && e.UnitID != f.UnitID {
		return false
	}
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}
