package audit

import (
	"encoding/json"
	"fmt"
	"time"

	id "opgate/pkg/domain"
)

// Record is the persisted shape of an Entry, shared by the file, redis and
// stream backends. Field names are stable; older files depend on them.
type Record struct {
	ID           string  `json:"id"`
	OperatorCode string  `json:"operator_code"`
	OperatorRole string  `json:"operator_role"`
	Operation    string  `json:"operation"`
	UnitID       *string `json:"unit_id"`
	Timestamp    string  `json:"timestamp"`
	Status       string  `json:"status"`
	Details      *string `json:"details"`
}

// Layouts accepted when reading timestamps. The naive layouts cover files
// written without a zone offset; those are read as local time.
var naiveTimestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ToRecord converts an entry into its persisted shape.
func ToRecord(e Entry) Record {
	r := Record{
		ID:           e.ID.String(),
		OperatorCode: e.OperatorCode.String(),
		OperatorRole: e.OperatorRole,
		Operation:    e.Operation,
		Timestamp:    e.Timestamp.Format(time.RFC3339Nano),
		Status:       string(e.Status),
	}
	if !e.UnitID.IsNil() {
		unit := e.UnitID.String()
		r.UnitID = &unit
	}
	// ERROR entries always carry the fault message, even an empty one.
	if e.Details != "" || e.Status == StatusError {
		details := e.Details
		r.Details = &details
	}
	return r
}

// FromRecord parses a persisted record back into an Entry.
func FromRecord(r Record) (Entry, error) {
	entryID, err := id.ParseEntryID(r.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("record %q: %w", r.ID, err)
	}
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return Entry{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	status, err := ParseStatus(r.Status)
	if err != nil {
		return Entry{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	e := Entry{
		ID:           entryID,
		OperatorCode: id.OperatorCode(r.OperatorCode),
		OperatorRole: r.OperatorRole,
		Operation:    r.Operation,
		Timestamp:    ts,
		Status:       status,
	}
	if r.UnitID != nil {
		e.UnitID = id.UnitID(*r.UnitID)
	}
	if r.Details != nil {
		e.Details = *r.Details
	}
	return e, nil
}

// ParseTimestamp reads an ISO-8601 timestamp with or without a zone offset.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	for _, layout := range naiveTimestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: not ISO-8601", s)
}

// MarshalEntry encodes a single entry as one JSON record.
func MarshalEntry(e Entry) ([]byte, error) {
	data, err := json.Marshal(ToRecord(e))
	if err != nil {
		return nil, fmt.Errorf("marshal audit record: %w", err)
	}
	return data, nil
}

// UnmarshalEntry decodes a single JSON record.
func UnmarshalEntry(data []byte) (Entry, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Entry{}, fmt.Errorf("unmarshal audit record: %w", err)
	}
	return FromRecord(r)
}
